package ops

import (
	"fmt"

	"github.com/gradkit/tconv/internal/conv"
	"github.com/gradkit/tconv/internal/tensor"
)

// Accelerator capability thresholds for the transposed-convolution forward
// pass. Configurations below these runtime versions run the portable kernel.
const (
	minAccelDilationVersion = 22
	minAccelGroupVersion    = 24
)

// convTransposeStrategy names the forward execution route.
type convTransposeStrategy int

const (
	strategyDirect convTransposeStrategy = iota
	strategyGrouped
	strategyAccelerated
)

func (s convTransposeStrategy) String() string {
	switch s {
	case strategyDirect:
		return "direct"
	case strategyGrouped:
		return "grouped"
	case strategyAccelerated:
		return "accelerated"
	}
	return "unknown"
}

// ConvTranspose2DOp records a transposed 2D convolution for autodiff and
// routes its forward pass to the best available kernel.
//
// x shape:      [N, C_in, H, W]
// kernel shape: [C_in, C_out/groups, kH, kW]
// bias shape:   [C_out] or nil
// output shape: [N, C_out, outH, outW]
//
// Backward (gradients):
//   - d_x:      plain Conv2D of d_output with the kernel, same parameters
//   - d_kernel: filter-gradient primitive of d_output against x
//   - d_bias:   sum of d_output over batch and spatial axes
type ConvTranspose2DOp struct {
	x      *tensor.RawTensor
	kernel *tensor.RawTensor
	bias   *tensor.RawTensor // nil when the call has no bias
	output *tensor.RawTensor

	params     tensor.ConvParams // normalized; CoverAll holds the resolved flag
	outH, outW int
}

// NewConvTranspose2DOp validates a transposed-convolution call and resolves
// its output size.
//
// Pass outH, outW <= 0 to derive the output size from the parameters. An
// explicit output size must lie within the range of input sizes the plain
// convolution maps onto this input; sizes inside that range but different
// from the derived one force the cover-all gradient mode, so the input
// gradient convolution reproduces x's spatial size exactly.
//
// Panics on malformed arguments; this mirrors how the backends treat caller
// errors.
func NewConvTranspose2DOp(x, kernel, bias *tensor.RawTensor, params tensor.ConvParams, outH, outW int) *ConvTranspose2DOp {
	params = params.Normalize()

	xShape := x.Shape()
	wShape := kernel.Shape()
	if len(xShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: input must be 4D [N,C,H,W], got %dD", len(xShape)))
	}
	if len(wShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: kernel must be 4D [C_in,C_out/groups,kH,kW], got %dD", len(wShape)))
	}
	if x.DType() != kernel.DType() {
		panic(fmt.Sprintf("conv_transpose2d: dtype mismatch: input %s vs kernel %s", x.DType(), kernel.DType()))
	}
	if xShape[1] != wShape[0] {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d != kernel channels %d", xShape[1], wShape[0]))
	}
	if xShape[1]%params.Groups != 0 {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d not divisible by groups %d", xShape[1], params.Groups))
	}

	cOut := wShape[1] * params.Groups
	if bias != nil {
		if len(bias.Shape()) != 1 {
			panic(fmt.Sprintf("conv_transpose2d: bias must be 1D, got %dD", len(bias.Shape())))
		}
		if bias.DType() != x.DType() {
			panic(fmt.Sprintf("conv_transpose2d: dtype mismatch: input %s vs bias %s", x.DType(), bias.DType()))
		}
		if bias.Shape()[0] != cOut {
			panic(fmt.Sprintf("conv_transpose2d: bias length %d != output channels %d", bias.Shape()[0], cOut))
		}
	}

	inH, inW := xShape[2], xShape[3]
	kH, kW := wShape[2], wShape[3]

	if outH <= 0 || outW <= 0 {
		outH = conv.TransposedOutSize(inH, kH, params.StrideY, params.PadH, params.DilateY)
		outW = conv.TransposedOutSize(inW, kW, params.StrideX, params.PadW, params.DilateX)
		if outH <= 0 || outW <= 0 {
			panic(fmt.Sprintf("conv_transpose2d: non-positive output size (%d, %d)", outH, outW))
		}
	} else {
		loH, hiH := conv.InSizeBounds(outH, kH, params.StrideY, params.PadH, params.DilateY)
		if inH < loH || inH > hiH {
			panic(fmt.Sprintf("conv_transpose2d: output height %d incompatible with input height %d (wants %d..%d)",
				outH, inH, loH, hiH))
		}
		loW, hiW := conv.InSizeBounds(outW, kW, params.StrideX, params.PadW, params.DilateX)
		if inW < loW || inW > hiW {
			panic(fmt.Sprintf("conv_transpose2d: output width %d incompatible with input width %d (wants %d..%d)",
				outW, inW, loW, hiW))
		}
	}

	params.CoverAll = conv.NeedsCoverAll(inH, inW, outH, outW, kH, kW,
		params.StrideY, params.StrideX, params.PadH, params.PadW, params.DilateY, params.DilateX)

	return &ConvTranspose2DOp{
		x:      x,
		kernel: kernel,
		bias:   bias,
		params: params,
		outH:   outH,
		outW:   outW,
	}
}

// Params returns the normalized parameters with the resolved cover-all flag.
func (op *ConvTranspose2DOp) Params() tensor.ConvParams {
	return op.params
}

// OutputSize returns the resolved output spatial size.
func (op *ConvTranspose2DOp) OutputSize() (int, int) {
	return op.outH, op.outW
}

// selectStrategy picks the forward route for the given backend capabilities.
// It is pure: the decision depends only on the recorded call and the caps.
func (op *ConvTranspose2DOp) selectStrategy(caps tensor.AccelCaps, hasAccel bool) convTransposeStrategy {
	if hasAccel && op.canAccelerate(caps) {
		return strategyAccelerated
	}
	if op.params.Groups > 1 {
		return strategyGrouped
	}
	return strategyDirect
}

// canAccelerate gates the vendor path. Anything it rejects still computes
// correctly on the portable kernels; the predicate only guards correctness
// and determinism of the accelerated route.
func (op *ConvTranspose2DOp) canAccelerate(caps tensor.AccelCaps) bool {
	if !caps.Available || !caps.Enabled {
		return false
	}
	if op.params.CoverAll {
		return false
	}
	if op.x.DType() != tensor.Float32 || op.kernel.DType() != tensor.Float32 {
		return false
	}
	if op.bias != nil && op.bias.DType() != tensor.Float32 {
		return false
	}
	if op.params.DilateY > 1 || op.params.DilateX > 1 {
		if caps.Version < minAccelDilationVersion || caps.Deterministic {
			return false
		}
	}
	if op.params.Groups > 1 && caps.Version < minAccelGroupVersion {
		return false
	}
	return true
}

// Forward computes the transposed convolution, preferring the accelerated
// route when the backend offers one and the configuration qualifies. An
// accelerated attempt that fails at runtime falls back to the portable
// kernel instead of surfacing the error.
func (op *ConvTranspose2DOp) Forward(backend tensor.Backend) *tensor.RawTensor {
	accel, hasAccel := backend.(tensor.ConvTransposeAccelerator)

	var caps tensor.AccelCaps
	if hasAccel {
		caps = accel.ConvTransposeCaps()
	}

	if op.selectStrategy(caps, hasAccel) == strategyAccelerated {
		if result, err := accel.ConvTranspose2DAccel(op.x, op.kernel, op.bias, op.params, op.outH, op.outW); err == nil {
			op.output = result
			return result
		}
	}

	op.output = backend.ConvTranspose2D(op.x, op.kernel, op.bias, op.params, op.outH, op.outW)
	return op.output
}

// Inputs returns [x, kernel] or [x, kernel, bias].
func (op *ConvTranspose2DOp) Inputs() []*tensor.RawTensor {
	if op.bias != nil {
		return []*tensor.RawTensor{op.x, op.kernel, op.bias}
	}
	return []*tensor.RawTensor{op.x, op.kernel}
}

// Output returns the output tensor.
func (op *ConvTranspose2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for the transposed convolution. Pure
// orchestration: the kernels live in the backend.
//
// The input gradient is the plain convolution of the output gradient with
// the kernel. The resolved cover-all flag rides along in the parameters so
// the convolution's output grid lands exactly on x's spatial size even when
// an explicit output size widened the forward output.
func (op *ConvTranspose2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	kH, kW := op.kernel.Shape()[2], op.kernel.Shape()[3]

	inputGrad := backend.Conv2D(outputGrad, op.kernel, op.params)
	kernelGrad := backend.Conv2DFilterBackward(outputGrad, op.x, op.params, kH, kW)

	if op.bias == nil {
		return []*tensor.RawTensor{inputGrad, kernelGrad}
	}

	// d_bias = sum of d_output over batch and both spatial axes.
	biasGrad := backend.SumDim(outputGrad, 0, false) // [C_out, outH, outW]
	biasGrad = backend.SumDim(biasGrad, 1, false)    // [C_out, outW]
	biasGrad = backend.SumDim(biasGrad, 1, false)    // [C_out]

	return []*tensor.RawTensor{inputGrad, kernelGrad, biasGrad}
}
