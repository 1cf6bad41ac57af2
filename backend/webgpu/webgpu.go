// Copyright 2026 The tconv Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for GPU-accelerated transposed
// convolutions.
//
// WebGPU is a cross-platform graphics and compute API that works on:
//   - Windows (via Dawn/D3D12)
//   - macOS (via Dawn/Metal)
//   - Linux (via Dawn/Vulkan)
//
// Only the transposed convolution runs on the GPU; all other operations are
// delegated to an internal CPU backend, and the accelerated path itself falls
// back to the CPU kernel when the configuration is unsupported.
//
// Example:
//
//	import (
//	    "github.com/gradkit/tconv/autodiff"
//	    "github.com/gradkit/tconv/backend/webgpu"
//	    "github.com/gradkit/tconv/tensor"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New(webgpu.Config{})
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//
//	    backend := autodiff.New(gpu)
//	    x := tensor.Randn[float32](tensor.Shape{1, 16, 14, 14}, backend)
//	}
package webgpu

import (
	internalwebgpu "github.com/gradkit/tconv/internal/backend/webgpu"
	"github.com/gradkit/tconv/tensor"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Config controls the accelerated transposed-convolution path.
//
//   - DisableAccel forces every call onto the CPU kernel.
//   - Deterministic pins the algorithm choice to a fixed candidate and
//     disables autotuning, trading speed for reproducible dispatch.
//   - Autotune times the shader candidates on first use of each
//     configuration and memoizes the winner.
type Config = internalwebgpu.Config

// Compile-time checks that Backend implements the backend interfaces.
var (
	_ tensor.Backend                  = (*Backend)(nil)
	_ tensor.ConvTransposeAccelerator = (*Backend)(nil)
)

// New creates a new WebGPU backend.
//
// This function initializes the WebGPU device and returns a backend ready
// for tensor operations. Call Release() when done to free GPU resources.
//
// Returns an error if WebGPU initialization fails (e.g., no compatible GPU).
func New(config Config) (*Backend, error) {
	return internalwebgpu.New(config)
}

// IsAvailable checks if WebGPU is available on the current system.
//
// It attempts to initialize a WebGPU adapter to verify that a compatible GPU
// and drivers are present. Useful for graceful fallback to the CPU backend:
//
//	if webgpu.IsAvailable() {
//	    gpu, _ := webgpu.New(webgpu.Config{})
//	    backend = autodiff.New(gpu)
//	} else {
//	    backend = autodiff.New(cpu.New())
//	}
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
