package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gradkit/tconv/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// Native runtime capability thresholds. The deconvolution path refuses
// configurations the underlying runtime only started supporting in later
// releases, mirroring how driver-version gates work for vendor conv
// libraries.
const (
	wgpuNativeVersion  = 25
	minDilationVersion = 22
	minGroupVersion    = 24
)

// deconvAlgo identifies a shader variant for the transposed convolution.
// Variants differ only in workgroup tiling, so all of them produce identical
// results; selection is purely a performance decision.
type deconvAlgo int

const (
	algoTile8 deconvAlgo = iota
	algoTile16
)

var deconvAlgoCandidates = []deconvAlgo{algoTile8, algoTile16}

func (a deconvAlgo) tile() int {
	if a == algoTile8 {
		return 8
	}
	return 16
}

func (a deconvAlgo) shaderName() string {
	return fmt.Sprintf("deconv2d_wg%d", a.tile())
}

func (a deconvAlgo) shaderCode() string {
	return strings.ReplaceAll(deconvShaderBody, "WG_TILE", fmt.Sprintf("%d", a.tile()))
}

// algoKey builds the memoization key for algorithm selection. Two calls with
// the same shapes and parameters always resolve to the same algorithm.
func algoKey(x, w *tensor.RawTensor, p tensor.ConvParams, outH, outW int) string {
	return fmt.Sprintf("x%v w%v s%d,%d p%d,%d d%d,%d g%d o%d,%d",
		x.Shape(), w.Shape(),
		p.StrideY, p.StrideX, p.PadH, p.PadW, p.DilateY, p.DilateX, p.Groups,
		outH, outW)
}

// ConvTransposeCaps reports whether and how the accelerated path may be used.
func (b *Backend) ConvTransposeCaps() tensor.AccelCaps {
	return tensor.AccelCaps{
		Available:     b.device != nil,
		Enabled:       !b.config.DisableAccel,
		Version:       wgpuNativeVersion,
		Deterministic: b.config.Deterministic,
	}
}

// ConvTranspose2DAccel runs the transposed convolution on the GPU.
// Only float32 is supported; capability and runtime failures are reported as
// errors so the caller can fall back to the direct kernel.
func (b *Backend) ConvTranspose2DAccel(x, w, bias *tensor.RawTensor, p tensor.ConvParams, outH, outW int) (*tensor.RawTensor, error) {
	if b.device == nil {
		return nil, fmt.Errorf("webgpu: device not initialized")
	}
	if x.DType() != tensor.Float32 || w.DType() != tensor.Float32 {
		return nil, fmt.Errorf("webgpu: only float32 is supported, got %s and %s", x.DType(), w.DType())
	}
	if bias != nil && bias.DType() != tensor.Float32 {
		return nil, fmt.Errorf("webgpu: only float32 is supported, got bias %s", bias.DType())
	}
	p = p.Normalize()
	caps := b.ConvTransposeCaps()
	if !caps.Enabled {
		return nil, fmt.Errorf("webgpu: accelerated path disabled")
	}
	if (p.DilateY > 1 || p.DilateX > 1) && caps.Version < minDilationVersion {
		return nil, fmt.Errorf("webgpu: dilation requires native version >= %d", minDilationVersion)
	}
	if p.Groups > 1 && caps.Version < minGroupVersion {
		return nil, fmt.Errorf("webgpu: grouping requires native version >= %d", minGroupVersion)
	}

	algo := b.selectAlgo(x, w, bias, p, outH, outW)
	return b.runDeconv(x, w, bias, p, outH, outW, algo)
}

// selectAlgo resolves the shader variant for this configuration.
// In deterministic mode the variant is fixed. With autotuning enabled the
// candidates are timed once per configuration and the winner is memoized;
// otherwise a size heuristic picks the tile, memoized as well so repeated
// calls skip the lookup arithmetic.
func (b *Backend) selectAlgo(x, w, bias *tensor.RawTensor, p tensor.ConvParams, outH, outW int) deconvAlgo {
	if b.config.Deterministic {
		return algoTile16
	}

	key := algoKey(x, w, p, outH, outW)
	if cached, ok := b.algoCache.Load(key); ok {
		return cached.(deconvAlgo)
	}

	var algo deconvAlgo
	if b.config.Autotune {
		algo = b.autotune(x, w, bias, p, outH, outW)
	} else {
		// Small output planes waste most of a 16x16 tile.
		if outH*outW < 4096 {
			algo = algoTile8
		} else {
			algo = algoTile16
		}
	}

	b.algoCache.Store(key, algo)
	return algo
}

// autotune times every candidate on the real workload and returns the
// fastest. Failures during timing simply disqualify the candidate.
func (b *Backend) autotune(x, w, bias *tensor.RawTensor, p tensor.ConvParams, outH, outW int) deconvAlgo {
	best := algoTile16
	bestElapsed := time.Duration(math.MaxInt64)
	for _, candidate := range deconvAlgoCandidates {
		start := time.Now()
		if _, err := b.runDeconv(x, w, bias, p, outH, outW, candidate); err != nil {
			continue
		}
		if elapsed := time.Since(start); elapsed < bestElapsed {
			best = candidate
			bestElapsed = elapsed
		}
	}
	return best
}

// runDeconv dispatches one transposed-convolution pass with the given
// shader variant and reads the result back to CPU memory.
func (b *Backend) runDeconv(x, w, bias *tensor.RawTensor, p tensor.ConvParams, outH, outW int, algo deconvAlgo) (*tensor.RawTensor, error) {
	n, cIn, inH, inW := x.Shape()[0], x.Shape()[1], x.Shape()[2], x.Shape()[3]
	cOutG, kH, kW := w.Shape()[1], w.Shape()[2], w.Shape()[3]
	cOut := cOutG * p.Groups

	shader := b.compileShader(algo.shaderName(), algo.shaderCode())
	pipeline := b.getOrCreatePipeline(algo.shaderName(), shader)

	bufferX := b.createBuffer(x.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferX.Release()

	bufferW := b.createBuffer(w.Data(), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferW.Release()

	// The bias binding must always be present; bind a dummy element when
	// the call has no bias and tell the shader to ignore it.
	hasBias := uint32(0)
	biasData := []byte{0, 0, 0, 0}
	if bias != nil {
		hasBias = 1
		biasData = bias.Data()
	}
	bufferBias := b.createBuffer(biasData, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferBias.Release()

	resultShape := tensor.Shape{n, cOut, outH, outW}
	//nolint:gosec // G115: Safe conversion, element counts are non-negative
	resultSize := uint64(resultShape.NumElements() * 4) // float32 = 4 bytes
	bufferResult := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:  resultSize,
	})
	defer bufferResult.Release()

	// 17 u32 fields, padded to the 16-byte uniform boundary.
	params := make([]byte, 80)
	for i, v := range []int{
		n, cIn, inH, inW, cOut, outH, outW, kH, kW,
		p.StrideY, p.StrideX, p.PadH, p.PadW, p.DilateY, p.DilateX, p.Groups, int(hasBias),
	} {
		//nolint:gosec // G115: Safe conversion, parameters are validated non-negative
		binary.LittleEndian.PutUint32(params[i*4:i*4+4], uint32(v))
	}
	bufferParams := b.createUniformBuffer(params)
	defer bufferParams.Release()

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	//nolint:gosec // G115: Safe conversions, ByteSize() returns non-negative int
	bindGroup := b.device.CreateBindGroupSimple(bindGroupLayout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferX, 0, uint64(x.ByteSize())),
		wgpu.BufferBindingEntry(1, bufferW, 0, uint64(w.ByteSize())),
		wgpu.BufferBindingEntry(2, bufferBias, 0, uint64(len(biasData))),
		wgpu.BufferBindingEntry(3, bufferResult, 0, resultSize),
		wgpu.BufferBindingEntry(4, bufferParams, 0, 80),
	})
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)

	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)

	tile := float64(algo.tile())
	workgroupsX := uint32(math.Ceil(float64(outW) / tile))
	workgroupsY := uint32(math.Ceil(float64(outH) / tile))
	//nolint:gosec // G115: Safe conversion, workgroup count is non-negative
	workgroupsZ := uint32(n * cOut)
	computePass.DispatchWorkgroups(workgroupsX, workgroupsY, workgroupsZ)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	resultData, err := b.readBuffer(bufferResult, resultSize)
	if err != nil {
		return nil, err
	}

	result, err := tensor.NewRaw(resultShape, tensor.Float32, tensor.WebGPU)
	if err != nil {
		return nil, err
	}

	copy(result.Data(), resultData)
	return result, nil
}
