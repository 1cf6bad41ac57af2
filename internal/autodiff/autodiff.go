// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation (CPU, GPU, etc.) and adds
// gradient tracking capabilities through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op implements its backward pass
//   - Reverse-mode AD: Computes gradients efficiently using chain rule
//
// Usage:
//
//	cpuBackend := cpu.New()
//	autodiffBackend := autodiff.New(cpuBackend)
//
//	x := tensor.FromSlice([]float32{2.0}, tensor.Shape{1}, autodiffBackend)
//	y := x.Mul(x) // y = x²
//
//	y.Backward()
//	fmt.Println(x.Grad()) // dy/dx = 2x = 4.0
package autodiff

import (
	"github.com/gradkit/tconv/internal/autodiff/ops"
	"github.com/gradkit/tconv/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
//
// Type parameter B must satisfy the tensor.Backend interface.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend (CPU, GPU, etc.)
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
// Useful for:
//   - Starting/stopping recording
//   - Clearing tape between iterations
//   - Inspecting recorded operations
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	// Prevent inplace modification that would corrupt the autodiff graph:
	// temporarily increase refCount so IsUnique() returns false and the
	// wrapped backend allocates a fresh result.
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Add(a, c)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewAddOp(a, c, result))
	}

	return result
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer c.ForceNonUnique()()

	result := b.inner.Mul(a, c)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewMulOp(a, c, result))
	}

	return result
}

// Reshape reshapes a tensor and records the operation.
//
// Reshape must be recorded: the wrapped backend materializes a new tensor,
// and without a ReshapeOp on the tape gradients would stop at the reshaped
// copy instead of flowing back to the original parameter.
func (b *AutodiffBackend[B]) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	defer t.ForceNonUnique()()

	result := b.inner.Reshape(t, newShape)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewReshapeOp(t, result))
	}

	return result
}

// SumDim reduces along a dimension and records the operation.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	result := b.inner.SumDim(x, dim, keepDim)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewSumDimOp(x, result, dim, keepDim))
	}

	return result
}

// Cat concatenates tensors along a dimension. Not recorded: in this module
// Cat only appears inside backend kernels (group stitching), never as a
// user-level differentiable operation.
func (b *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.inner.Cat(tensors, dim)
}

// Chunk splits a tensor along a dimension. Not recorded, see Cat.
func (b *AutodiffBackend[B]) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	return b.inner.Chunk(x, n, dim)
}

// Conv2D performs a plain 2D convolution and records the operation.
func (b *AutodiffBackend[B]) Conv2D(x, w *tensor.RawTensor, p tensor.ConvParams) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	defer w.ForceNonUnique()()

	result := b.inner.Conv2D(x, w, p)

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewConv2DOp(x, w, result, p))
	}

	return result
}

// Conv2DFilterBackward computes the filter gradient primitive. Not recorded:
// it is itself a gradient computation.
func (b *AutodiffBackend[B]) Conv2DFilterBackward(gy, x *tensor.RawTensor, p tensor.ConvParams, kH, kW int) *tensor.RawTensor {
	return b.inner.Conv2DFilterBackward(gy, x, p, kH, kW)
}

// ConvTranspose2D performs a transposed 2D convolution and records the
// operation. Validation, output-size resolution and kernel dispatch live in
// the operation itself so the recorded parameters match what actually ran.
func (b *AutodiffBackend[B]) ConvTranspose2D(x, w, bias *tensor.RawTensor, p tensor.ConvParams, outH, outW int) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	defer w.ForceNonUnique()()
	if bias != nil {
		defer bias.ForceNonUnique()()
	}

	op := ops.NewConvTranspose2DOp(x, w, bias, p, outH, outW)
	result := op.Forward(b.inner)

	if b.tape.IsRecording() {
		b.tape.Record(op)
	}

	return result
}
