// Copyright 2026 The tconv Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/gradkit/tconv/internal/backend/cpu"
	"github.com/gradkit/tconv/tensor"
)

// TestBackendInterface verifies that cpu.CPUBackend implements tensor.Backend.
func TestBackendInterface(_ *testing.T) {
	var _ tensor.Backend = (*cpu.CPUBackend)(nil)
}

// TestRawTensorAPI verifies the RawTensor type alias exposes the expected API.
func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}

	if !raw.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("Shape() = %v, want [2 3]", raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		t.Errorf("DType() = %v, want Float32", raw.DType())
	}
	if raw.Device() != tensor.CPU {
		t.Errorf("Device() = %v, want CPU", raw.Device())
	}
	if raw.NumElements() != 6 {
		t.Errorf("NumElements() = %d, want 6", raw.NumElements())
	}
	if raw.ByteSize() != 6*4 {
		t.Errorf("ByteSize() = %d, want %d", raw.ByteSize(), 6*4)
	}

	clone := raw.Clone()
	if clone == nil {
		t.Fatal("Clone() returned nil")
	}
	if raw.IsUnique() {
		t.Error("IsUnique() = true after Clone(), want false (refcount > 1)")
	}
	clone.Release()
	if !raw.IsUnique() {
		t.Error("IsUnique() = false after clone.Release(), want true (refcount == 1)")
	}
}

// TestCreationFunctions exercises the public creation wrappers.
func TestCreationFunctions(t *testing.T) {
	backend := cpu.New()

	x := tensor.Zeros[float32](tensor.Shape{2, 2}, backend)
	for _, v := range x.Data() {
		if v != 0 {
			t.Fatalf("Zeros produced %v", v)
		}
	}

	y := tensor.Full[float32](tensor.Shape{2, 2}, 3.5, backend)
	for _, v := range y.Data() {
		if v != 3.5 {
			t.Fatalf("Full produced %v", v)
		}
	}

	z, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	if z.At(1, 0) != 3 {
		t.Errorf("At(1, 0) = %v, want 3", z.At(1, 0))
	}

	sum := x.Add(y)
	if sum.At(0, 0) != 3.5 {
		t.Errorf("Add: got %v, want 3.5", sum.At(0, 0))
	}
}

// TestConvParamsNormalize verifies the identity defaults.
func TestConvParamsNormalize(t *testing.T) {
	p := tensor.ConvParams{StrideY: 2}.Normalize()
	if p.StrideY != 2 || p.StrideX != 1 {
		t.Errorf("strides = (%d, %d), want (2, 1)", p.StrideY, p.StrideX)
	}
	if p.DilateY != 1 || p.DilateX != 1 || p.Groups != 1 {
		t.Errorf("dilate/groups not defaulted: %+v", p)
	}
}
