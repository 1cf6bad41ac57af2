package webgpu

import (
	"sync"
	"testing"

	"github.com/gradkit/tconv/internal/tensor"
)

func TestIsAvailable(t *testing.T) {
	available := IsAvailable()
	t.Logf("WebGPU available: %v", available)
	// Note: This test doesn't fail if WebGPU is unavailable
	// It just reports the status
}

func TestNew(t *testing.T) {
	backend, err := New(Config{})
	if err != nil {
		t.Logf("WebGPU not available: %v", err)
		t.Skip("WebGPU not available on this system")
	}
	defer backend.Release()

	if backend.Name() == "" {
		t.Error("Backend name should not be empty")
	}
	t.Logf("Backend name: %s", backend.Name())

	if backend.Device() != tensor.WebGPU {
		t.Errorf("Expected device WebGPU, got %v", backend.Device())
	}
}

func TestBackendInterface(t *testing.T) {
	backend, err := New(Config{})
	if err != nil {
		t.Skip("WebGPU not available on this system")
	}
	defer backend.Release()

	// Verify it implements both the backend and accelerator interfaces
	var _ tensor.Backend = backend
	var _ tensor.ConvTransposeAccelerator = backend
}

// TestConvTranspose2DAccel_MatchesCPU verifies the GPU kernel against the
// direct CPU kernel on several configurations.
func TestConvTranspose2DAccel_MatchesCPU(t *testing.T) {
	backend, err := New(Config{})
	if err != nil {
		t.Skip("WebGPU not available on this system")
	}
	defer backend.Release()

	cases := []struct {
		name       string
		xShape     tensor.Shape
		wShape     tensor.Shape
		withBias   bool
		p          tensor.ConvParams
		outH, outW int
	}{
		{"basic", tensor.Shape{1, 1, 2, 2}, tensor.Shape{1, 1, 2, 2}, false,
			tensor.ConvParams{StrideY: 1, StrideX: 1}, 3, 3},
		{"strided_padded", tensor.Shape{2, 3, 4, 5}, tensor.Shape{3, 2, 3, 3}, true,
			tensor.ConvParams{StrideY: 2, StrideX: 2, PadH: 1, PadW: 1}, 7, 9},
		{"dilated", tensor.Shape{1, 2, 3, 3}, tensor.Shape{2, 2, 2, 2}, false,
			tensor.ConvParams{StrideY: 1, StrideX: 1, DilateY: 2, DilateX: 2}, 5, 5},
		{"grouped", tensor.Shape{2, 4, 3, 3}, tensor.Shape{4, 3, 2, 2}, true,
			tensor.ConvParams{StrideY: 2, StrideX: 2, Groups: 2}, 6, 6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			x, _ := tensor.NewRaw(tc.xShape, tensor.Float32, tensor.CPU)
			for i := range x.AsFloat32() {
				x.AsFloat32()[i] = float32(i%7) - 3
			}
			w, _ := tensor.NewRaw(tc.wShape, tensor.Float32, tensor.CPU)
			for i := range w.AsFloat32() {
				w.AsFloat32()[i] = float32(i%5)*0.5 - 1
			}
			var bias *tensor.RawTensor
			if tc.withBias {
				cOut := tc.wShape[1] * tc.p.Normalize().Groups
				bias, _ = tensor.NewRaw(tensor.Shape{cOut}, tensor.Float32, tensor.CPU)
				for i := range bias.AsFloat32() {
					bias.AsFloat32()[i] = float32(i) * 0.25
				}
			}

			got, err := backend.ConvTranspose2DAccel(x, w, bias, tc.p, tc.outH, tc.outW)
			if err != nil {
				t.Fatalf("accelerated path failed: %v", err)
			}
			want := backend.fallback.ConvTranspose2D(x, w, bias, tc.p, tc.outH, tc.outW)

			if !got.Shape().Equal(want.Shape()) {
				t.Fatalf("shape mismatch: %v vs %v", got.Shape(), want.Shape())
			}
			g, wd := got.AsFloat32(), want.AsFloat32()
			for i := range g {
				diff := g[i] - wd[i]
				if diff < -1e-4 || diff > 1e-4 {
					t.Fatalf("value mismatch at %d: %.6f vs %.6f", i, g[i], wd[i])
				}
			}
		})
	}
}

// TestConvTranspose2DAccel_Float64Refused verifies the capability error for
// unsupported dtypes instead of a wrong result.
func TestConvTranspose2DAccel_Float64Refused(t *testing.T) {
	backend, err := New(Config{})
	if err != nil {
		t.Skip("WebGPU not available on this system")
	}
	defer backend.Release()

	x, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float64, tensor.CPU)
	w, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float64, tensor.CPU)

	_, err = backend.ConvTranspose2DAccel(x, w, nil, tensor.ConvParams{StrideY: 1, StrideX: 1}, 3, 3)
	if err == nil {
		t.Fatal("expected error for float64 input")
	}
}

// The algorithm-selection logic does not touch the device and is testable
// without a GPU.

func TestSelectAlgo_DeterministicPin(t *testing.T) {
	b := &Backend{config: Config{Deterministic: true}}

	x, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	w, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	p := tensor.ConvParams{StrideY: 1, StrideX: 1}.Normalize()

	if algo := b.selectAlgo(x, w, nil, p, 3, 3); algo != algoTile16 {
		t.Errorf("deterministic mode must pin the variant, got %v", algo)
	}
	// Deterministic selection must not populate the cache.
	count := 0
	b.algoCache.Range(func(_, _ any) bool { count++; return true })
	if count != 0 {
		t.Errorf("expected empty algo cache, found %d entries", count)
	}
}

func TestSelectAlgo_HeuristicAndMemo(t *testing.T) {
	b := &Backend{}

	small, _ := tensor.NewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.CPU)
	w, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	p := tensor.ConvParams{StrideY: 1, StrideX: 1}.Normalize()

	if algo := b.selectAlgo(small, w, nil, p, 5, 5); algo != algoTile8 {
		t.Errorf("small output plane should pick the 8x8 tile, got %v", algo)
	}
	if algo := b.selectAlgo(small, w, nil, p, 128, 128); algo != algoTile16 {
		t.Errorf("large output plane should pick the 16x16 tile, got %v", algo)
	}

	// Same configuration resolves from the cache to the same variant.
	if _, ok := b.algoCache.Load(algoKey(small, w, p, 5, 5)); !ok {
		t.Error("expected memoized entry for the small configuration")
	}
	if algo := b.selectAlgo(small, w, nil, p, 5, 5); algo != algoTile8 {
		t.Errorf("memoized lookup changed the variant, got %v", algo)
	}
}

func TestSelectAlgo_ConcurrentMemo(t *testing.T) {
	b := &Backend{}

	x, _ := tensor.NewRaw(tensor.Shape{1, 2, 8, 8}, tensor.Float32, tensor.CPU)
	w, _ := tensor.NewRaw(tensor.Shape{2, 2, 3, 3}, tensor.Float32, tensor.CPU)
	p := tensor.ConvParams{StrideY: 2, StrideX: 2}.Normalize()

	results := make([]deconvAlgo, 16)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.selectAlgo(x, w, nil, p, 17, 17)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatalf("concurrent selection disagreed: %v vs %v", results[i], results[0])
		}
	}
}

func TestAlgoKey_DistinguishesParams(t *testing.T) {
	x, _ := tensor.NewRaw(tensor.Shape{1, 1, 4, 4}, tensor.Float32, tensor.CPU)
	w, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)

	a := tensor.ConvParams{StrideY: 1, StrideX: 1}.Normalize()
	b := tensor.ConvParams{StrideY: 2, StrideX: 1}.Normalize()

	if algoKey(x, w, a, 5, 5) == algoKey(x, w, b, 5, 5) {
		t.Error("keys must differ for different strides")
	}
	if algoKey(x, w, a, 5, 5) == algoKey(x, w, a, 5, 6) {
		t.Error("keys must differ for different output sizes")
	}
}

func TestConvTransposeCaps_Unavailable(t *testing.T) {
	b := &Backend{config: Config{Deterministic: true}}

	caps := b.ConvTransposeCaps()
	if caps.Available {
		t.Error("backend without a device must report unavailable")
	}
	if !caps.Deterministic {
		t.Error("deterministic flag must pass through")
	}
	if caps.Version != wgpuNativeVersion {
		t.Errorf("expected version %d, got %d", wgpuNativeVersion, caps.Version)
	}
}
