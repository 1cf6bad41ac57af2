package ops

import (
	"errors"
	"testing"

	"github.com/gradkit/tconv/internal/backend/cpu"
	"github.com/gradkit/tconv/internal/tensor"
)

func rawTensor(t *testing.T, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		t.Fatalf("failed to create tensor: %v", err)
	}
	return raw
}

func TestNewConvTranspose2DOp_DerivedOutputSize(t *testing.T) {
	x := rawTensor(t, tensor.Shape{10, 1, 5, 10}, tensor.Float32)
	w := rawTensor(t, tensor.Shape{1, 3, 10, 10}, tensor.Float32)

	op := NewConvTranspose2DOp(x, w, nil, tensor.ConvParams{
		StrideY: 5, StrideX: 5, PadH: 5, PadW: 5,
	}, 0, 0)

	outH, outW := op.OutputSize()
	if outH != 20 || outW != 45 {
		t.Errorf("expected output size (20, 45), got (%d, %d)", outH, outW)
	}
	if op.Params().CoverAll {
		t.Error("derived output size must never resolve to cover-all")
	}
}

func TestNewConvTranspose2DOp_ExplicitOutputSize(t *testing.T) {
	x := rawTensor(t, tensor.Shape{1, 1, 3, 3}, tensor.Float32)
	w := rawTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	p := tensor.ConvParams{StrideY: 2, StrideX: 2}

	// Derived would be 6. 7 still maps back onto a 3-wide input without
	// cover-all; 5 only does with cover-all.
	op := NewConvTranspose2DOp(x, w, nil, p, 7, 7)
	if op.Params().CoverAll {
		t.Error("output size 7 must not need cover-all")
	}

	op = NewConvTranspose2DOp(x, w, nil, p, 5, 5)
	if !op.Params().CoverAll {
		t.Error("output size 5 must resolve to cover-all")
	}
}

func TestNewConvTranspose2DOp_OutputSizeOutOfRange(t *testing.T) {
	x := rawTensor(t, tensor.Shape{1, 1, 3, 3}, tensor.Float32)
	w := rawTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	p := tensor.ConvParams{StrideY: 2, StrideX: 2}

	for _, size := range []int{4, 8} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("expected panic for output size %d", size)
				}
			}()
			NewConvTranspose2DOp(x, w, nil, p, size, size)
		}()
	}
}

func TestNewConvTranspose2DOp_NonPositiveOutputSize(t *testing.T) {
	x := rawTensor(t, tensor.Shape{1, 1, 1, 1}, tensor.Float32)
	w := rawTensor(t, tensor.Shape{1, 1, 1, 1}, tensor.Float32)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for non-positive derived output size")
		}
	}()
	NewConvTranspose2DOp(x, w, nil, tensor.ConvParams{StrideY: 1, StrideX: 1, PadH: 1, PadW: 1}, 0, 0)
}

func TestNewConvTranspose2DOp_BiasValidation(t *testing.T) {
	x := rawTensor(t, tensor.Shape{1, 4, 3, 3}, tensor.Float32)
	w := rawTensor(t, tensor.Shape{4, 3, 2, 2}, tensor.Float32)
	p := tensor.ConvParams{StrideY: 1, StrideX: 1, Groups: 2}

	// 2 groups x 3 channels per group = 6 output channels.
	good := rawTensor(t, tensor.Shape{6}, tensor.Float32)
	NewConvTranspose2DOp(x, w, good, p, 0, 0)

	bad := rawTensor(t, tensor.Shape{3}, tensor.Float32)
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for bias length mismatch")
		}
	}()
	NewConvTranspose2DOp(x, w, bad, p, 0, 0)
}

func TestNewConvTranspose2DOp_ChannelMismatch(t *testing.T) {
	x := rawTensor(t, tensor.Shape{1, 3, 3, 3}, tensor.Float32)
	w := rawTensor(t, tensor.Shape{4, 2, 2, 2}, tensor.Float32)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for channel mismatch")
		}
	}()
	NewConvTranspose2DOp(x, w, nil, tensor.ConvParams{StrideY: 1, StrideX: 1}, 0, 0)
}

func TestCanAccelerate(t *testing.T) {
	fullCaps := tensor.AccelCaps{Available: true, Enabled: true, Version: 25}

	newOp := func(dtype tensor.DataType, p tensor.ConvParams) *ConvTranspose2DOp {
		x := rawTensor(t, tensor.Shape{1, 2, 4, 4}, dtype)
		w := rawTensor(t, tensor.Shape{2, 2, 2, 2}, dtype)
		return NewConvTranspose2DOp(x, w, nil, p, 0, 0)
	}

	plain := tensor.ConvParams{StrideY: 1, StrideX: 1}

	cases := []struct {
		name string
		op   *ConvTranspose2DOp
		caps tensor.AccelCaps
		want bool
	}{
		{"qualifies", newOp(tensor.Float32, plain), fullCaps, true},
		{"unavailable", newOp(tensor.Float32, plain),
			tensor.AccelCaps{Available: false, Enabled: true, Version: 25}, false},
		{"disabled", newOp(tensor.Float32, plain),
			tensor.AccelCaps{Available: true, Enabled: false, Version: 25}, false},
		{"float64", newOp(tensor.Float64, plain), fullCaps, false},
		{"dilated_recent", newOp(tensor.Float32,
			tensor.ConvParams{StrideY: 1, StrideX: 1, DilateY: 2, DilateX: 2}), fullCaps, true},
		{"dilated_old_runtime", newOp(tensor.Float32,
			tensor.ConvParams{StrideY: 1, StrideX: 1, DilateY: 2, DilateX: 2}),
			tensor.AccelCaps{Available: true, Enabled: true, Version: 21}, false},
		{"dilated_deterministic", newOp(tensor.Float32,
			tensor.ConvParams{StrideY: 1, StrideX: 1, DilateY: 2, DilateX: 2}),
			tensor.AccelCaps{Available: true, Enabled: true, Version: 25, Deterministic: true}, false},
		{"grouped_recent", newOp(tensor.Float32,
			tensor.ConvParams{StrideY: 1, StrideX: 1, Groups: 2}), fullCaps, true},
		{"grouped_old_runtime", newOp(tensor.Float32,
			tensor.ConvParams{StrideY: 1, StrideX: 1, Groups: 2}),
			tensor.AccelCaps{Available: true, Enabled: true, Version: 23}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.op.canAccelerate(tc.caps); got != tc.want {
				t.Errorf("canAccelerate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanAccelerate_CoverAll(t *testing.T) {
	x := rawTensor(t, tensor.Shape{1, 1, 3, 3}, tensor.Float32)
	w := rawTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)

	// Explicit output size 5 resolves to cover-all.
	op := NewConvTranspose2DOp(x, w, nil, tensor.ConvParams{StrideY: 2, StrideX: 2}, 5, 5)
	if op.canAccelerate(tensor.AccelCaps{Available: true, Enabled: true, Version: 25}) {
		t.Error("cover-all configurations must not accelerate")
	}
}

func TestSelectStrategy(t *testing.T) {
	x := rawTensor(t, tensor.Shape{1, 2, 4, 4}, tensor.Float32)
	w := rawTensor(t, tensor.Shape{2, 1, 2, 2}, tensor.Float32)

	direct := NewConvTranspose2DOp(x, rawTensor(t, tensor.Shape{2, 2, 2, 2}, tensor.Float32), nil,
		tensor.ConvParams{StrideY: 1, StrideX: 1}, 0, 0)
	grouped := NewConvTranspose2DOp(x, w, nil,
		tensor.ConvParams{StrideY: 1, StrideX: 1, Groups: 2}, 0, 0)

	fullCaps := tensor.AccelCaps{Available: true, Enabled: true, Version: 25}

	if s := direct.selectStrategy(fullCaps, true); s != strategyAccelerated {
		t.Errorf("expected accelerated, got %v", s)
	}
	if s := direct.selectStrategy(tensor.AccelCaps{}, false); s != strategyDirect {
		t.Errorf("expected direct, got %v", s)
	}
	if s := grouped.selectStrategy(tensor.AccelCaps{}, false); s != strategyGrouped {
		t.Errorf("expected grouped, got %v", s)
	}
	if s := grouped.selectStrategy(fullCaps, true); s != strategyAccelerated {
		t.Errorf("grouped with capable runtime should accelerate, got %v", s)
	}
}

// failingAccel wraps the CPU backend with an accelerator that always errors,
// exercising the runtime fallback.
type failingAccel struct {
	*cpu.CPUBackend
	attempts int
}

func (f *failingAccel) ConvTransposeCaps() tensor.AccelCaps {
	return tensor.AccelCaps{Available: true, Enabled: true, Version: 25}
}

func (f *failingAccel) ConvTranspose2DAccel(_, _, _ *tensor.RawTensor, _ tensor.ConvParams, _, _ int) (*tensor.RawTensor, error) {
	f.attempts++
	return nil, errors.New("device lost")
}

func TestForward_AccelFallback(t *testing.T) {
	backend := &failingAccel{CPUBackend: cpu.New()}

	x := rawTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	copy(x.AsFloat32(), []float32{1, 2, 3, 4})
	w := rawTensor(t, tensor.Shape{1, 1, 2, 2}, tensor.Float32)
	copy(w.AsFloat32(), []float32{1, 1, 1, 1})

	op := NewConvTranspose2DOp(x, w, nil, tensor.ConvParams{StrideY: 1, StrideX: 1}, 0, 0)
	result := op.Forward(backend)

	if backend.attempts != 1 {
		t.Errorf("expected one accelerated attempt, got %d", backend.attempts)
	}
	expected := []float32{1, 3, 2, 4, 10, 6, 3, 7, 4}
	for i, exp := range expected {
		if result.AsFloat32()[i] != exp {
			t.Errorf("fallback result[%d]: expected %.1f, got %.1f", i, exp, result.AsFloat32()[i])
		}
	}
}

func TestConvTranspose2DOp_BackwardShapes(t *testing.T) {
	backend := cpu.New()

	x := rawTensor(t, tensor.Shape{2, 3, 4, 4}, tensor.Float32)
	for i := range x.AsFloat32() {
		x.AsFloat32()[i] = float32(i%5) - 2
	}
	w := rawTensor(t, tensor.Shape{3, 2, 3, 3}, tensor.Float32)
	for i := range w.AsFloat32() {
		w.AsFloat32()[i] = float32(i%3) - 1
	}
	bias := rawTensor(t, tensor.Shape{2}, tensor.Float32)

	op := NewConvTranspose2DOp(x, w, bias, tensor.ConvParams{StrideY: 2, StrideX: 2, PadH: 1, PadW: 1}, 0, 0)
	output := op.Forward(backend)

	gy := rawTensor(t, output.Shape().Clone(), tensor.Float32)
	for i := range gy.AsFloat32() {
		gy.AsFloat32()[i] = 1
	}

	grads := op.Backward(gy, backend)
	if len(grads) != 3 {
		t.Fatalf("expected 3 gradients, got %d", len(grads))
	}
	if !grads[0].Shape().Equal(x.Shape()) {
		t.Errorf("input grad shape %v != %v", grads[0].Shape(), x.Shape())
	}
	if !grads[1].Shape().Equal(w.Shape()) {
		t.Errorf("kernel grad shape %v != %v", grads[1].Shape(), w.Shape())
	}
	if !grads[2].Shape().Equal(bias.Shape()) {
		t.Errorf("bias grad shape %v != %v", grads[2].Shape(), bias.Shape())
	}

	// With gy = ones the bias gradient counts the summed positions.
	outH, outW := op.OutputSize()
	want := float32(2 * outH * outW)
	for i, v := range grads[2].AsFloat32() {
		if v != want {
			t.Errorf("bias grad[%d]: expected %.0f, got %.0f", i, want, v)
		}
	}
}

func TestConvTranspose2DOp_BackwardNoBias(t *testing.T) {
	backend := cpu.New()

	x := rawTensor(t, tensor.Shape{1, 2, 3, 3}, tensor.Float64)
	w := rawTensor(t, tensor.Shape{2, 2, 2, 2}, tensor.Float64)

	op := NewConvTranspose2DOp(x, w, nil, tensor.ConvParams{StrideY: 1, StrideX: 1}, 0, 0)
	output := op.Forward(backend)

	gy := rawTensor(t, output.Shape().Clone(), tensor.Float64)
	grads := op.Backward(gy, backend)
	if len(grads) != 2 {
		t.Fatalf("expected 2 gradients without bias, got %d", len(grads))
	}
	if len(op.Inputs()) != 2 {
		t.Fatalf("expected 2 inputs without bias, got %d", len(op.Inputs()))
	}
}
