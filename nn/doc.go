// Copyright 2026 The tconv Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides neural network layers and building blocks.
//
// # Overview
//
// This package contains:
//   - Layers: ConvTranspose2D
//   - Utilities: Module interface, Parameter
//   - Initialization: Xavier, Zeros, Ones, Randn
//
// # Basic Usage
//
//	import (
//	    "github.com/gradkit/tconv/nn"
//	    "github.com/gradkit/tconv/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    // Upsample 16 channels -> 8 channels, 4x4 kernel, stride 2
//	    deconv := nn.NewConvTranspose2D(16, 8, 4, 4, 2, 1, true, backend)
//
//	    input := tensor.Zeros[float32](tensor.Shape{32, 16, 14, 14}, backend)
//	    output := deconv.Forward(input) // [32, 8, 28, 28]
//	}
//
// # Layers
//
// ConvTranspose2D: transposed convolution with Xavier initialization. The
// simple constructor covers symmetric stride and padding; the config-based
// constructor adds asymmetric parameters, dilation, groups and an explicit
// output size:
//
//	deconv := nn.NewConvTranspose2DWithConfig(nn.ConvTranspose2DConfig{
//	    InChannels: 1, OutChannels: 1,
//	    KernelH: 2, KernelW: 2,
//	    StrideY: 2, StrideX: 2,
//	    OutH: 5, OutW: 5, // cover-all sizing
//	}, backend)
//
// # Training
//
// Wrap the backend with autodiff to record the forward pass and compute
// parameter gradients:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	output := deconv.Forward(input)
//	grads := autodiff.Backward(output, backend)
package nn
