// Package webgpu implements the GPU-accelerated backend for the transposed
// convolution kernels. Uses go-webgpu (github.com/go-webgpu/webgpu) for
// zero-CGO WebGPU bindings.
//
// Only the transposed-convolution forward pass runs on the GPU; every other
// operation delegates to the CPU backend. Accelerated calls that fail for
// capability or runtime reasons fall back to the CPU kernel transparently.
package webgpu

import (
	"fmt"
	"sync"

	"github.com/gradkit/tconv/internal/backend/cpu"
	"github.com/gradkit/tconv/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// Config controls the accelerated path.
type Config struct {
	// DisableAccel forces every call onto the CPU kernels. The backend
	// still initializes the device so it can be re-enabled later.
	DisableAccel bool

	// Deterministic pins algorithm selection to a fixed shader variant
	// and refuses configurations whose accelerated form is not
	// reproducible run to run.
	Deterministic bool

	// Autotune times the shader variants once per configuration and
	// memoizes the winner. Ignored when Deterministic is set.
	Autotune bool
}

// Backend implements tensor operations with a WebGPU-accelerated
// transposed-convolution path and CPU fallback for everything else.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	// Algorithm memoization: configuration key -> deconvAlgo.
	algoCache sync.Map

	adapterInfo *wgpu.AdapterInfoGo

	config   Config
	fallback *cpu.CPUBackend
}

// New creates a new WebGPU backend.
// Returns an error if WebGPU is not available or initialization fails.
func New(config Config) (backend *Backend, err error) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, _ := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	adapterInfo, _ := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	b := &Backend{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
		adapterInfo: adapterInfo,
		config:      config,
		fallback:    cpu.New(),
	}

	return b, nil
}

// Release releases all WebGPU resources.
// Must be called when the backend is no longer needed.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil

	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	if b.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", b.adapterInfo.Device, b.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// AdapterInfo returns information about the GPU adapter.
func (b *Backend) AdapterInfo() *wgpu.AdapterInfoGo {
	return b.adapterInfo
}

// SetDisableAccel toggles the accelerated path at runtime.
func (b *Backend) SetDisableAccel(disabled bool) {
	b.config.DisableAccel = disabled
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if the wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, _ := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// ConvTranspose2D runs the transposed convolution, preferring the GPU path
// and falling back to the CPU kernel when the accelerated call refuses the
// configuration or fails at runtime.
func (b *Backend) ConvTranspose2D(x, w, bias *tensor.RawTensor, p tensor.ConvParams, outH, outW int) *tensor.RawTensor {
	if result, err := b.ConvTranspose2DAccel(x, w, bias, p, outH, outW); err == nil {
		return result
	}
	return b.fallback.ConvTranspose2D(x, w, bias, p, outH, outW)
}

// The remaining operations delegate to the CPU backend.

func (b *Backend) Add(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.Add(a, other)
}

func (b *Backend) Mul(a, other *tensor.RawTensor) *tensor.RawTensor {
	return b.fallback.Mul(a, other)
}

func (b *Backend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	return b.fallback.Reshape(t, newShape)
}

func (b *Backend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.fallback.Cat(tensors, dim)
}

func (b *Backend) Chunk(x *tensor.RawTensor, n, dim int) []*tensor.RawTensor {
	return b.fallback.Chunk(x, n, dim)
}

func (b *Backend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return b.fallback.SumDim(x, dim, keepDim)
}

func (b *Backend) Conv2D(x, w *tensor.RawTensor, p tensor.ConvParams) *tensor.RawTensor {
	return b.fallback.Conv2D(x, w, p)
}

func (b *Backend) Conv2DFilterBackward(gy, x *tensor.RawTensor, p tensor.ConvParams, kH, kW int) *tensor.RawTensor {
	return b.fallback.Conv2DFilterBackward(gy, x, p, kH, kW)
}
