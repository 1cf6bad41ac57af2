package cpu

import (
	"testing"

	"github.com/gradkit/tconv/internal/tensor"
)

// TestConv2D_BasicForward tests the basic Conv2D forward pass.
func TestConv2D_BasicForward(t *testing.T) {
	backend := New()

	// Input: [1, 1, 3, 3] - single channel 3x3 image
	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)
	inputData := input.AsFloat32()
	for i := 0; i < 9; i++ {
		inputData[i] = float32(i + 1)
	}

	// Kernel: [1, 1, 2, 2] - diagonal kernel
	kernel, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	kernelData := kernel.AsFloat32()
	kernelData[0] = 1.0
	kernelData[3] = 1.0

	output := backend.Conv2D(input, kernel, tensor.ConvParams{StrideY: 1, StrideX: 1})

	expectedShape := tensor.Shape{1, 1, 2, 2}
	if !output.Shape().Equal(expectedShape) {
		t.Fatalf("Expected shape %v, got %v", expectedShape, output.Shape())
	}

	// Diagonal sums of each 2x2 patch.
	expected := []float32{6, 8, 12, 14}
	outputData := output.AsFloat32()
	for i, exp := range expected {
		if outputData[i] != exp {
			t.Errorf("Output[%d]: expected %.1f, got %.1f", i, exp, outputData[i])
		}
	}
}

// TestConv2D_CoverAll tests the cover-all (ceil) output-size mode: windows
// that only partially cover the input still produce output elements.
func TestConv2D_CoverAll(t *testing.T) {
	backend := New()

	// Input: [1, 1, 1, 5] = 1 2 3 4 5, kernel [1, 1, 1, 2] = 1 1, stride 2.
	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 1, 5}, tensor.Float32, tensor.CPU)
	copy(input.AsFloat32(), []float32{1, 2, 3, 4, 5})

	kernel, _ := tensor.NewRaw(tensor.Shape{1, 1, 1, 2}, tensor.Float32, tensor.CPU)
	copy(kernel.AsFloat32(), []float32{1, 1})

	floor := backend.Conv2D(input, kernel, tensor.ConvParams{StrideY: 1, StrideX: 2})
	if !floor.Shape().Equal(tensor.Shape{1, 1, 1, 2}) {
		t.Fatalf("floor shape: got %v", floor.Shape())
	}
	for i, exp := range []float32{3, 7} {
		if floor.AsFloat32()[i] != exp {
			t.Errorf("floor[%d]: expected %.1f, got %.1f", i, exp, floor.AsFloat32()[i])
		}
	}

	cover := backend.Conv2D(input, kernel, tensor.ConvParams{StrideY: 1, StrideX: 2, CoverAll: true})
	if !cover.Shape().Equal(tensor.Shape{1, 1, 1, 3}) {
		t.Fatalf("cover-all shape: got %v", cover.Shape())
	}
	// Last window covers only x[4]; the out-of-bounds tap contributes zero.
	for i, exp := range []float32{3, 7, 5} {
		if cover.AsFloat32()[i] != exp {
			t.Errorf("cover[%d]: expected %.1f, got %.1f", i, exp, cover.AsFloat32()[i])
		}
	}
}

// TestConv2D_Grouped tests that a grouped convolution equals independent
// per-group convolutions on the channel slices.
func TestConv2D_Grouped(t *testing.T) {
	backend := New()

	input, _ := tensor.NewRaw(tensor.Shape{2, 4, 5, 5}, tensor.Float32, tensor.CPU)
	fillSequence(input.AsFloat32())

	// Kernel [4, 2, 3, 3]: 4 output channels, 2 input channels per group.
	kernel, _ := tensor.NewRaw(tensor.Shape{4, 2, 3, 3}, tensor.Float32, tensor.CPU)
	fillSequence(kernel.AsFloat32())

	p := tensor.ConvParams{StrideY: 1, StrideX: 1, PadH: 1, PadW: 1, Groups: 2}
	grouped := backend.Conv2D(input, kernel, p)

	xParts := backend.Chunk(input, 2, 1)
	wParts := backend.Chunk(kernel, 2, 0)
	single := p
	single.Groups = 1
	want := backend.Cat([]*tensor.RawTensor{
		backend.Conv2D(xParts[0], wParts[0], single),
		backend.Conv2D(xParts[1], wParts[1], single),
	}, 1)

	if !grouped.Shape().Equal(want.Shape()) {
		t.Fatalf("shape mismatch: %v vs %v", grouped.Shape(), want.Shape())
	}
	g, wn := grouped.AsFloat32(), want.AsFloat32()
	for i := range g {
		if g[i] != wn[i] {
			t.Fatalf("value mismatch at %d: %.3f vs %.3f", i, g[i], wn[i])
		}
	}
}

// TestConv2DFilterBackward_AllOnesGradient tests the filter-gradient
// primitive with an all-ones output gradient: every filter tap then
// accumulates the full input sum (stride 1, no padding keeps every
// destination in bounds).
func TestConv2DFilterBackward_AllOnesGradient(t *testing.T) {
	backend := New()

	x, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	copy(x.AsFloat32(), []float32{1, 2, 3, 4})

	// gy covers the transposed-convolution output grid: 3x3 for k=2, s=1.
	gy, _ := tensor.NewRaw(tensor.Shape{1, 1, 3, 3}, tensor.Float32, tensor.CPU)
	for i := range gy.AsFloat32() {
		gy.AsFloat32()[i] = 1
	}

	gW := backend.Conv2DFilterBackward(gy, x, tensor.ConvParams{StrideY: 1, StrideX: 1}, 2, 2)

	if !gW.Shape().Equal(tensor.Shape{1, 1, 2, 2}) {
		t.Fatalf("gW shape: got %v", gW.Shape())
	}
	for i, v := range gW.AsFloat32() {
		if v != 10 {
			t.Errorf("gW[%d]: expected 10, got %.1f", i, v)
		}
	}
}

func fillSequence(data []float32) {
	for i := range data {
		data[i] = float32(i%7) - 3 // small signed values, avoids overflow-ish sums
	}
}
