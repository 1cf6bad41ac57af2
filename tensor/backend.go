// Copyright 2026 The tconv Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/gradkit/tconv/internal/tensor"

// ConvParams carries the spatial configuration shared by the convolution and
// transposed-convolution kernels.
//
// A zero value for a stride, dilation or group field means the identity
// default (1); call Normalize before use. Padding defaults to 0.
type ConvParams = tensor.ConvParams

// AccelCaps describes a backend's accelerated transposed-convolution
// capability.
type AccelCaps = tensor.AccelCaps

// ConvTransposeAccelerator is an optional capability interface for backends
// that provide a vendor-accelerated backward-data convolution. The autodiff
// dispatch type-asserts for it and falls back to the plain ConvTranspose2D
// path when the capability is absent or the configuration is rejected.
type ConvTransposeAccelerator = tensor.ConvTransposeAccelerator

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - backend/cpu: pure Go kernels
//   - backend/webgpu: GPU compute shaders with CPU fallback
//
// Decorator backends for additional functionality:
//   - autodiff: automatic differentiation (wraps any backend)
//
// Example:
//
//	import (
//	    "github.com/gradkit/tconv/tensor"
//	    "github.com/gradkit/tconv/backend/cpu"
//	)
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	z := x.Add(y)  // Uses backend.Add under the hood
type Backend interface {
	// Element-wise binary operations (NumPy-style broadcasting).
	Add(a, b *RawTensor) *RawTensor // Element-wise addition.
	Mul(a, b *RawTensor) *RawTensor // Element-wise multiplication.

	// Shape operations.
	Reshape(t *RawTensor, newShape Shape) *RawTensor // Reshape tensor.

	// Manipulation operations.
	Cat(tensors []*RawTensor, dim int) *RawTensor // Concatenate along dimension.
	Chunk(x *RawTensor, n, dim int) []*RawTensor  // Split into n equal parts.

	// Reduction operations.
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor // Sum along dimension.

	// Convolution operations.
	Conv2D(x, w *RawTensor, p ConvParams) *RawTensor                          // Plain forward convolution.
	Conv2DFilterBackward(gy, x *RawTensor, p ConvParams, kH, kW int) *RawTensor // Filter gradient.
	ConvTranspose2D(x, w, bias *RawTensor, p ConvParams, outH, outW int) *RawTensor // Transposed convolution with fused bias.

	// Metadata.
	Name() string   // Backend name (e.g., "CPU", "WebGPU").
	Device() Device // Device type.
}

// Compile-time check that internal Backend implements public Backend.
var _ Backend = tensor.Backend(nil)
