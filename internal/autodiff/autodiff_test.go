package autodiff_test

import (
	"testing"

	"github.com/gradkit/tconv/internal/autodiff"
	"github.com/gradkit/tconv/internal/backend/cpu"
	"github.com/gradkit/tconv/internal/tensor"
)

func TestBackendName(t *testing.T) {
	backend := autodiff.New(cpu.New())
	if backend.Name() != "Autodiff(CPU)" {
		t.Errorf("unexpected backend name %q", backend.Name())
	}
	if backend.Device() != tensor.CPU {
		t.Errorf("unexpected device %v", backend.Device())
	}
}

func TestMulGradient(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{3.0}, tensor.Shape{1}, backend)
	y := backend.Mul(x.Raw(), x.Raw()) // y = x²

	result := tensor.New[float32](y, backend)
	gradients := autodiff.Backward(result, backend)

	grad := gradients[x.Raw()]
	if grad == nil {
		t.Fatal("no gradient for x")
	}
	// dy/dx = 2x = 6
	if grad.AsFloat32()[0] != 6.0 {
		t.Errorf("expected gradient 6.0, got %f", grad.AsFloat32()[0])
	}
}

func TestGradientAccumulation(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	a := backend.Add(x.Raw(), x.Raw()) // uses x twice
	y := backend.Add(a, x.Raw())       // y = 3x

	result := tensor.New[float32](y, backend)
	gradients := autodiff.Backward(result, backend)

	grad := gradients[x.Raw()]
	for i, v := range grad.AsFloat32() {
		if v != 3.0 {
			t.Errorf("grad[%d]: expected 3.0, got %f", i, v)
		}
	}
}

func TestConvTranspose2DRecorded(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, backend)
	w, _ := tensor.FromSlice([]float32{1, 1, 1, 1}, tensor.Shape{1, 1, 2, 2}, backend)

	y := backend.ConvTranspose2D(x.Raw(), w.Raw(), nil, tensor.ConvParams{StrideY: 1, StrideX: 1}, 0, 0)
	if backend.Tape().NumOps() != 1 {
		t.Fatalf("expected 1 recorded op, got %d", backend.Tape().NumOps())
	}

	result := tensor.New[float32](y, backend)
	gradients := autodiff.Backward(result, backend)

	gx := gradients[x.Raw()]
	gw := gradients[w.Raw()]
	if gx == nil || gw == nil {
		t.Fatal("missing gradients for transposed convolution inputs")
	}
	if !gx.Shape().Equal(x.Shape()) {
		t.Errorf("input gradient shape %v != %v", gx.Shape(), x.Shape())
	}
	if !gw.Shape().Equal(w.Shape()) {
		t.Errorf("kernel gradient shape %v != %v", gw.Shape(), w.Shape())
	}

	// With gy = ones and an all-ones kernel each input element sees all 4
	// kernel taps in bounds, so gx is all 4s.
	for i, v := range gx.AsFloat32() {
		if v != 4.0 {
			t.Errorf("gx[%d]: expected 4.0, got %f", i, v)
		}
	}
	// gW[i,j] = sum(x) = 10 since every tap lands in bounds.
	for i, v := range gw.AsFloat32() {
		if v != 10.0 {
			t.Errorf("gw[%d]: expected 10.0, got %f", i, v)
		}
	}
}

func TestTapeNotRecording(t *testing.T) {
	backend := autodiff.New(cpu.New())

	x, _ := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 1, 2, 2}, backend)
	w, _ := tensor.FromSlice([]float32{1, 1, 1, 1}, tensor.Shape{1, 1, 2, 2}, backend)

	backend.ConvTranspose2D(x.Raw(), w.Raw(), nil, tensor.ConvParams{StrideY: 1, StrideX: 1}, 0, 0)
	if backend.Tape().NumOps() != 0 {
		t.Errorf("expected no recorded ops while tape stopped, got %d", backend.Tape().NumOps())
	}
}

func TestTapeClear(t *testing.T) {
	backend := autodiff.New(cpu.New())
	backend.Tape().StartRecording()

	x, _ := tensor.FromSlice([]float32{1, 2}, tensor.Shape{2}, backend)
	backend.Add(x.Raw(), x.Raw())
	if backend.Tape().NumOps() != 1 {
		t.Fatalf("expected 1 op, got %d", backend.Tape().NumOps())
	}

	backend.Tape().Clear()
	if backend.Tape().NumOps() != 0 {
		t.Errorf("expected empty tape after Clear, got %d ops", backend.Tape().NumOps())
	}
	if !backend.Tape().IsRecording() {
		t.Error("Clear must preserve the recording state")
	}
}
