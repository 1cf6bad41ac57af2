package ops

import "github.com/gradkit/tconv/internal/tensor"

// ReshapeOp represents a shape change: output = reshape(x, newShape).
//
// Backward pass: the gradient is reshaped back to the input shape. The
// element order is unchanged, so no data movement beyond the copy happens.
type ReshapeOp struct {
	inputs []*tensor.RawTensor // [x]
	output *tensor.RawTensor
}

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(x, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{
		inputs: []*tensor.RawTensor{x},
		output: output,
	}
}

// Backward reshapes the output gradient back to the input shape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	gradX := backend.Reshape(outputGrad, op.inputs[0].Shape())
	return []*tensor.RawTensor{gradX}
}

// Inputs returns the input tensors [x].
func (op *ReshapeOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the reshaped output tensor.
func (op *ReshapeOp) Output() *tensor.RawTensor {
	return op.output
}
