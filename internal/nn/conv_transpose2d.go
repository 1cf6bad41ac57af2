package nn

import (
	"fmt"

	"github.com/gradkit/tconv/internal/conv"
	"github.com/gradkit/tconv/internal/tensor"
)

// ConvTranspose2D is a transposed (up-sampling) 2D convolutional layer.
//
// Performs: output = ConvTranspose2D(input, weight) + bias
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [in_channels, out_channels/groups, kernel_h, kernel_w]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where, for each spatial axis:
//
//	out = stride*(in - 1) + dilate*(kernel - 1) + 1 - 2*padding
//
// Example:
//
//	// Upsample 16 channels -> 8 channels, 4x4 kernel, stride 2
//	deconv := nn.NewConvTranspose2D(16, 8, 4, 4, 2, 1, true, backend)
//
//	input := tensor.Zeros[float32](tensor.Shape{32, 16, 14, 14}, backend)
//	output := deconv.Forward(input) // [32, 8, 28, 28]
type ConvTranspose2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  [2]int
	params      tensor.ConvParams
	outputSize  [2]int // explicit output size, 0 means derive
	useBias     bool

	weight *Parameter[B] // [in_channels, out_channels/groups, kernel_h, kernel_w]
	bias   *Parameter[B] // [out_channels] or nil

	backend B
}

// ConvTranspose2DConfig holds the full layer configuration for the
// config-based constructor. Zero values for strides and dilations mean 1.
type ConvTranspose2DConfig struct {
	InChannels  int
	OutChannels int
	KernelH     int
	KernelW     int
	StrideY     int
	StrideX     int
	PadH        int
	PadW        int
	DilateY     int
	DilateX     int
	Groups      int
	// OutH, OutW fix the output spatial size explicitly. Zero derives it
	// from the parameters.
	OutH, OutW int
	NoBias     bool
}

// NewConvTranspose2D creates a transposed convolution layer with symmetric
// stride and padding and Xavier initialization.
func NewConvTranspose2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
) *ConvTranspose2D[B] {
	return NewConvTranspose2DWithConfig(ConvTranspose2DConfig{
		InChannels:  inChannels,
		OutChannels: outChannels,
		KernelH:     kernelH,
		KernelW:     kernelW,
		StrideY:     stride,
		StrideX:     stride,
		PadH:        padding,
		PadW:        padding,
		NoBias:      !useBias,
	}, backend)
}

// NewConvTranspose2DWithConfig creates a transposed convolution layer from a
// full configuration.
//
// Initialization:
//   - Weights: Xavier/Glorot uniform initialization
//   - Bias: Zeros
func NewConvTranspose2DWithConfig[B tensor.Backend](cfg ConvTranspose2DConfig, backend B) *ConvTranspose2D[B] {
	p := tensor.ConvParams{
		StrideY: cfg.StrideY, StrideX: cfg.StrideX,
		PadH: cfg.PadH, PadW: cfg.PadW,
		DilateY: cfg.DilateY, DilateX: cfg.DilateX,
		Groups: cfg.Groups,
	}.Normalize()

	if cfg.InChannels <= 0 || cfg.OutChannels <= 0 {
		panic(fmt.Sprintf("conv_transpose2d: invalid channels in=%d, out=%d", cfg.InChannels, cfg.OutChannels))
	}
	if cfg.KernelH <= 0 || cfg.KernelW <= 0 {
		panic(fmt.Sprintf("conv_transpose2d: invalid kernel size h=%d, w=%d", cfg.KernelH, cfg.KernelW))
	}
	if p.StrideY <= 0 || p.StrideX <= 0 {
		panic(fmt.Sprintf("conv_transpose2d: invalid stride (%d, %d)", p.StrideY, p.StrideX))
	}
	if p.PadH < 0 || p.PadW < 0 {
		panic(fmt.Sprintf("conv_transpose2d: invalid padding (%d, %d)", p.PadH, p.PadW))
	}
	if cfg.InChannels%p.Groups != 0 || cfg.OutChannels%p.Groups != 0 {
		panic(fmt.Sprintf("conv_transpose2d: channels (in=%d, out=%d) not divisible by groups %d",
			cfg.InChannels, cfg.OutChannels, p.Groups))
	}

	// Weight layout [in_channels, out_channels/groups, kernel_h, kernel_w].
	weightShape := tensor.Shape{cfg.InChannels, cfg.OutChannels / p.Groups, cfg.KernelH, cfg.KernelW}

	fanIn := (cfg.InChannels / p.Groups) * cfg.KernelH * cfg.KernelW
	fanOut := (cfg.OutChannels / p.Groups) * cfg.KernelH * cfg.KernelW
	weight := Xavier(fanIn, fanOut, weightShape, backend)
	weightParam := NewParameter("conv_transpose2d.weight", weight)

	var biasParam *Parameter[B]
	if !cfg.NoBias {
		bias := Zeros(tensor.Shape{cfg.OutChannels}, backend)
		biasParam = NewParameter("conv_transpose2d.bias", bias)
	}

	return &ConvTranspose2D[B]{
		inChannels:  cfg.InChannels,
		outChannels: cfg.OutChannels,
		kernelSize:  [2]int{cfg.KernelH, cfg.KernelW},
		params:      p,
		outputSize:  [2]int{cfg.OutH, cfg.OutW},
		useBias:     !cfg.NoBias,
		weight:      weightParam,
		bias:        biasParam,
		backend:     backend,
	}
}

// Forward performs the forward pass.
//
// Input: [batch, in_channels, height, width]
// Output: [batch, out_channels, out_h, out_w].
//
// The bias is applied inside the backend kernel, so its gradient flows
// through the recorded operation without an extra reshape-and-add.
func (c *ConvTranspose2D[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: expected 4D input [N,C,H,W], got %dD", len(inputShape)))
	}
	if inputShape[1] != c.inChannels {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d != expected %d", inputShape[1], c.inChannels))
	}

	var biasRaw *tensor.RawTensor
	if c.useBias {
		biasRaw = c.bias.Tensor().Raw()
	}

	// The backend contract wants resolved output sizes.
	size := c.ComputeOutputSize(inputShape[2], inputShape[3])

	outputRaw := c.backend.ConvTranspose2D(
		input.Raw(),
		c.weight.Tensor().Raw(),
		biasRaw,
		c.params,
		size[0],
		size[1],
	)

	return tensor.New[float32, B](outputRaw, c.backend)
}

// Parameters returns all trainable parameters.
func (c *ConvTranspose2D[B]) Parameters() []*Parameter[B] {
	if c.useBias {
		return []*Parameter[B]{c.weight, c.bias}
	}
	return []*Parameter[B]{c.weight}
}

// String returns a string representation of the layer.
func (c *ConvTranspose2D[B]) String() string {
	return fmt.Sprintf("ConvTranspose2D(in_channels=%d, out_channels=%d, kernel_size=(%d, %d), stride=(%d, %d), padding=(%d, %d), groups=%d, bias=%v)",
		c.inChannels, c.outChannels,
		c.kernelSize[0], c.kernelSize[1],
		c.params.StrideY, c.params.StrideX,
		c.params.PadH, c.params.PadW,
		c.params.Groups, c.useBias)
}

// OutChannels returns the number of output channels.
func (c *ConvTranspose2D[B]) OutChannels() int {
	return c.outChannels
}

// InChannels returns the number of input channels.
func (c *ConvTranspose2D[B]) InChannels() int {
	return c.inChannels
}

// KernelSize returns the kernel size [height, width].
func (c *ConvTranspose2D[B]) KernelSize() [2]int {
	return c.kernelSize
}

// ComputeOutputSize computes output spatial dimensions for given input size.
//
// Returns: [out_height, out_width]. An explicit output size from the
// configuration takes precedence over the derived one.
func (c *ConvTranspose2D[B]) ComputeOutputSize(inputH, inputW int) [2]int {
	if c.outputSize[0] > 0 && c.outputSize[1] > 0 {
		return c.outputSize
	}
	outH := conv.TransposedOutSize(inputH, c.kernelSize[0], c.params.StrideY, c.params.PadH, c.params.DilateY)
	outW := conv.TransposedOutSize(inputW, c.kernelSize[1], c.params.StrideX, c.params.PadW, c.params.DilateX)
	return [2]int{outH, outW}
}
