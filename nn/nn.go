// Copyright 2026 The tconv Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/gradkit/tconv/internal/nn"
	"github.com/gradkit/tconv/internal/tensor"
)

// Module interface defines the common interface for all neural network modules.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter represents a trainable parameter in a neural network.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// NewParameter creates a new parameter with the given name and tensor.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return nn.NewParameter(name, t)
}

// Layers

// ConvTranspose2D represents a 2D transposed (up-sampling) convolutional layer.
type ConvTranspose2D[B tensor.Backend] = nn.ConvTranspose2D[B]

// ConvTranspose2DConfig holds the full configuration for the config-based
// constructor: asymmetric strides and padding, dilation, groups, an explicit
// output size, and bias control.
type ConvTranspose2DConfig = nn.ConvTranspose2DConfig

// NewConvTranspose2D creates a new transposed convolution layer with
// symmetric stride and padding and Xavier initialization.
//
// Example:
//
//	backend := cpu.New()
//	deconv := nn.NewConvTranspose2D(16, 8, 4, 4, 2, 1, true, backend)  // in_channels=16, out_channels=8, kernel=4x4, stride=2, padding=1, useBias=true
func NewConvTranspose2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride, padding int,
	useBias bool,
	backend B,
) *ConvTranspose2D[B] {
	return nn.NewConvTranspose2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, backend)
}

// NewConvTranspose2DWithConfig creates a transposed convolution layer from a
// full configuration.
//
// Example:
//
//	deconv := nn.NewConvTranspose2DWithConfig(nn.ConvTranspose2DConfig{
//	    InChannels: 4, OutChannels: 6,
//	    KernelH: 3, KernelW: 3,
//	    StrideY: 2, StrideX: 2,
//	    Groups: 2,
//	}, backend)
func NewConvTranspose2DWithConfig[B tensor.Backend](cfg ConvTranspose2DConfig, backend B) *ConvTranspose2D[B] {
	return nn.NewConvTranspose2DWithConfig(cfg, backend)
}

// Initialization

// Xavier creates a tensor with Xavier/Glorot uniform initialization.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Xavier(fanIn, fanOut, shape, backend)
}

// Zeros creates a zero-initialized float32 tensor.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Zeros(shape, backend)
}

// Ones creates a one-initialized float32 tensor.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Ones(shape, backend)
}

// Randn creates a float32 tensor with standard normal initialization.
func Randn[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return nn.Randn(shape, backend)
}
