// Package cpu implements the pure-Go CPU backend.
package cpu

import (
	"fmt"

	"github.com/gradkit/tconv/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
type CPUBackend struct {
	device tensor.Device
}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("add", a, b, func(x, y float64) float64 { return x + y })
}

// Mul performs element-wise multiplication with NumPy-style broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binaryOp("mul", a, b, func(x, y float64) float64 { return x * y })
}

// binaryOp applies fn element-wise over the broadcast of a and b.
func (cpu *CPUBackend) binaryOp(name string, a, b *tensor.RawTensor, fn func(x, y float64) float64) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch: %s vs %s", name, a.DType(), b.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", name, err))
	}

	switch a.DType() {
	case tensor.Float32:
		out := result.AsFloat32()
		da, db := a.AsFloat32(), b.AsFloat32()
		if !needsBroadcast {
			for i := range out {
				out[i] = float32(fn(float64(da[i]), float64(db[i])))
			}
			return result
		}
		ia := newBroadcastIndexer(a.Shape(), outShape)
		ib := newBroadcastIndexer(b.Shape(), outShape)
		for i := range out {
			out[i] = float32(fn(float64(da[ia.index(i)]), float64(db[ib.index(i)])))
		}
	case tensor.Float64:
		out := result.AsFloat64()
		da, db := a.AsFloat64(), b.AsFloat64()
		if !needsBroadcast {
			for i := range out {
				out[i] = fn(da[i], db[i])
			}
			return result
		}
		ia := newBroadcastIndexer(a.Shape(), outShape)
		ib := newBroadcastIndexer(b.Shape(), outShape)
		for i := range out {
			out[i] = fn(da[ia.index(i)], db[ib.index(i)])
		}
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, a.DType()))
	}

	return result
}

// broadcastIndexer maps a flat index in the broadcast output shape back to a
// flat index in a (possibly smaller) source shape.
type broadcastIndexer struct {
	outStrides []int // strides of the output shape
	srcStrides []int // per-output-dim stride into the source (0 for broadcast dims)
}

func newBroadcastIndexer(src, out tensor.Shape) *broadcastIndexer {
	outStrides := out.ComputeStrides()
	realStrides := src.ComputeStrides()

	srcStrides := make([]int, len(out))
	offset := len(out) - len(src)
	for i := range out {
		if i < offset {
			continue // missing leading dim: stride 0
		}
		if src[i-offset] == 1 && out[i] != 1 {
			continue // broadcast dim: stride 0
		}
		srcStrides[i] = realStrides[i-offset]
	}
	return &broadcastIndexer{outStrides: outStrides, srcStrides: srcStrides}
}

func (bi *broadcastIndexer) index(flat int) int {
	src := 0
	for d, os := range bi.outStrides {
		src += (flat / os) * bi.srcStrides[d]
		flat %= os
	}
	return src
}

// Reshape returns a tensor with the same data and a new shape.
// The number of elements must not change.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}

	result, err := tensor.NewRaw(newShape, t.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("reshape: failed to create result tensor: %v", err))
	}
	copy(result.Data(), t.Data())
	return result
}

// Cat concatenates tensors along the given dimension.
// All tensors must agree on every other dimension.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors to concatenate")
	}

	first := tensors[0]
	ndim := len(first.Shape())
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("cat: invalid dimension %d for %dD tensors", dim, ndim))
	}

	outShape := first.Shape().Clone()
	outShape[dim] = 0
	for _, t := range tensors {
		shape := t.Shape()
		if len(shape) != ndim {
			panic(fmt.Sprintf("cat: rank mismatch: %dD vs %dD", len(shape), ndim))
		}
		if t.DType() != first.DType() {
			panic(fmt.Sprintf("cat: dtype mismatch: %s vs %s", t.DType(), first.DType()))
		}
		for i := range shape {
			if i != dim && shape[i] != first.Shape()[i] {
				panic(fmt.Sprintf("cat: shape mismatch at dim %d: %v vs %v", i, shape, first.Shape()))
			}
		}
		outShape[dim] += shape[dim]
	}

	result, err := tensor.NewRaw(outShape, first.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cat: failed to create result tensor: %v", err))
	}

	// Copy blocks: each source tensor contributes contiguous inner rows
	// (dim..last) interleaved across the outer dims (0..dim-1).
	elemSize := first.DType().Size()
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= outShape[i]
	}
	inner := elemSize
	for i := dim + 1; i < ndim; i++ {
		inner *= outShape[i]
	}

	outRow := outShape[dim] * inner
	dst := result.Data()
	offset := 0
	for _, t := range tensors {
		srcRow := t.Shape()[dim] * inner
		src := t.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*outRow+offset:o*outRow+offset+srcRow], src[o*srcRow:(o+1)*srcRow])
		}
		offset += srcRow
	}

	return result
}

// Chunk splits the tensor into n equal parts along the given dimension.
// The dimension size must be divisible by n.
func (cpu *CPUBackend) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("chunk: invalid dimension %d for shape %v", dim, shape))
	}
	if n <= 0 || shape[dim]%n != 0 {
		panic(fmt.Sprintf("chunk: dimension %d (size %d) not divisible into %d parts", dim, shape[dim], n))
	}

	partShape := shape.Clone()
	partShape[dim] = shape[dim] / n

	elemSize := x.DType().Size()
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	inner := elemSize
	for i := dim + 1; i < ndim; i++ {
		inner *= shape[i]
	}

	srcRow := shape[dim] * inner
	partRow := partShape[dim] * inner
	src := x.Data()

	parts := make([]*tensor.RawTensor, n)
	for p := 0; p < n; p++ {
		part, err := tensor.NewRaw(partShape, x.DType(), cpu.device)
		if err != nil {
			panic(fmt.Sprintf("chunk: failed to create part tensor: %v", err))
		}
		dst := part.Data()
		for o := 0; o < outer; o++ {
			copy(dst[o*partRow:(o+1)*partRow], src[o*srcRow+p*partRow:o*srcRow+(p+1)*partRow])
		}
		parts[p] = part
	}

	return parts
}

// SumDim sums tensor elements along the specified dimension.
//
// Parameters:
//   - dim: dimension to reduce (supports negative indexing: -1 = last dim)
//   - keepDim: if true, keep the reduced dimension with size 1; if false, remove it
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)

	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("sumdim: invalid dimension %d for shape %v", dim, shape))
	}

	outShape := make(tensor.Shape, 0, ndim)
	for i, d := range shape {
		if i == dim {
			if keepDim {
				outShape = append(outShape, 1)
			}
			continue
		}
		outShape = append(outShape, d)
	}

	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sumdim: failed to create result tensor: %v", err))
	}

	outer := 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	reduce := shape[dim]
	inner := 1
	for i := dim + 1; i < ndim; i++ {
		inner *= shape[i]
	}

	switch x.DType() {
	case tensor.Float32:
		src := x.AsFloat32()
		dst := result.AsFloat32()
		for o := 0; o < outer; o++ {
			for r := 0; r < reduce; r++ {
				base := (o*reduce + r) * inner
				for i := 0; i < inner; i++ {
					dst[o*inner+i] += src[base+i]
				}
			}
		}
	case tensor.Float64:
		src := x.AsFloat64()
		dst := result.AsFloat64()
		for o := 0; o < outer; o++ {
			for r := 0; r < reduce; r++ {
				base := (o*reduce + r) * inner
				for i := 0; i < inner; i++ {
					dst[o*inner+i] += src[base+i]
				}
			}
		}
	default:
		panic(fmt.Sprintf("sumdim: unsupported dtype %s", x.DType()))
	}

	return result
}
