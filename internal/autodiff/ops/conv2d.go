package ops

import (
	"github.com/gradkit/tconv/internal/tensor"
)

// Conv2DOp records a plain 2D convolution for autodiff.
//
// Forward: output = Conv2D(x, kernel, params)
//
// Backward (gradients):
//   - d_x:      transposed convolution of d_output with the kernel
//   - d_kernel: correlation of x with d_output (filter-gradient primitive)
//
// References:
//   - "A guide to convolution arithmetic for deep learning" (Dumoulin & Visin, 2016)
type Conv2DOp struct {
	x      *tensor.RawTensor
	kernel *tensor.RawTensor
	output *tensor.RawTensor
	params tensor.ConvParams
}

// NewConv2DOp creates a new Conv2D operation.
func NewConv2DOp(x, kernel, output *tensor.RawTensor, params tensor.ConvParams) *Conv2DOp {
	return &Conv2DOp{
		x:      x,
		kernel: kernel,
		output: output,
		params: params.Normalize(),
	}
}

// Inputs returns the input tensors [x, kernel].
func (op *Conv2DOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.x, op.kernel}
}

// Output returns the output tensor.
func (op *Conv2DOp) Output() *tensor.RawTensor {
	return op.output
}

// Backward computes gradients for Conv2D. Pure orchestration: the actual
// kernels live in the backend.
//
// The kernel layout [C_out, C_in/groups, kH, kW] read as a transposed-conv
// filter [C_in', C_out'/groups, kH, kW] routes the output gradient straight
// back onto the input grid, so d_x is one ConvTranspose2D call with the same
// parameters and the input's spatial size as the explicit output size.
func (op *Conv2DOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	xH, xW := op.x.Shape()[2], op.x.Shape()[3]
	kH, kW := op.kernel.Shape()[2], op.kernel.Shape()[3]

	inputGrad := backend.ConvTranspose2D(outputGrad, op.kernel, nil, op.params, xH, xW)
	kernelGrad := backend.Conv2DFilterBackward(op.x, outputGrad, op.params, kH, kW)

	return []*tensor.RawTensor{inputGrad, kernelGrad}
}
