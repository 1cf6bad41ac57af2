// Copyright 2026 The tconv Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides type-safe tensor operations for the tconv library.
//
// # Overview
//
// Tensors are the fundamental data structure in tconv. This package provides:
//   - Generic type-safe tensors (Tensor[T, B])
//   - NumPy-style broadcasting for element-wise operations
//   - Copy-on-write buffers with reference counting
//   - Device abstraction (CPU, WebGPU)
//
// # Basic Usage
//
//	import (
//	    "github.com/gradkit/tconv/tensor"
//	    "github.com/gradkit/tconv/backend/cpu"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    // Create tensors
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	    y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//
//	    // Tensor operations
//	    z := x.Add(y)
//	}
//
// # Supported Data Types
//
// The tensor package supports the following data types via the DType
// constraint:
//   - float32, float64
//
// The convolution kernels operate on floating-point data only, so the
// constraint is deliberately narrow.
//
// # Convolution Configuration
//
// ConvParams carries the spatial configuration shared by Conv2D and
// ConvTranspose2D: strides, padding, dilation and groups. Zero values mean
// the identity defaults (stride 1, dilation 1, one group):
//
//	p := tensor.ConvParams{StrideY: 2, StrideX: 2, PadH: 1, PadW: 1}
//	y := backend.ConvTranspose2D(x.Raw(), w.Raw(), nil, p, 0, 0)
package tensor
