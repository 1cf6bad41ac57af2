// Copyright 2026 The tconv Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Col2im scatter-accumulate transposed convolution
//   - Im2col-style gather for the plain convolution and filter gradient
//   - Float32 and Float64 support
//   - Grouped and dilated convolutions
//   - NumPy-compatible broadcasting
//
// # Basic Usage
//
//	import (
//	    "github.com/gradkit/tconv/backend/cpu"
//	    "github.com/gradkit/tconv/tensor"
//	    "github.com/gradkit/tconv/nn"
//	)
//
//	func main() {
//	    // Create CPU backend
//	    backend := cpu.New()
//
//	    // Use with tensors
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	    y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	    z := x.Add(y)
//
//	    // Use with layers
//	    deconv := nn.NewConvTranspose2D(16, 8, 4, 4, 2, 1, true, backend)
//	}
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each tensor operation
// is isolated and does not share mutable state.
package cpu
