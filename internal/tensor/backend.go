package tensor

// ConvParams carries the spatial configuration shared by the convolution and
// transposed-convolution kernels.
//
// A zero value for a stride, dilation or group field means the identity
// default (1); call Normalize before use. Padding defaults to 0.
type ConvParams struct {
	StrideY, StrideX int
	PadH, PadW       int
	DilateY, DilateX int
	Groups           int

	// CoverAll selects the ceil output-size mode of the plain convolution.
	// It is resolved by the transposed-convolution dispatch and routed into
	// the gradient computation; callers normally leave it false.
	CoverAll bool
}

// Normalize returns a copy with zero-valued stride/dilation/group fields
// replaced by 1.
func (p ConvParams) Normalize() ConvParams {
	if p.StrideY == 0 {
		p.StrideY = 1
	}
	if p.StrideX == 0 {
		p.StrideX = 1
	}
	if p.DilateY == 0 {
		p.DilateY = 1
	}
	if p.DilateX == 0 {
		p.DilateX = 1
	}
	if p.Groups == 0 {
		p.Groups = 1
	}
	return p
}

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - cpu: pure Go kernels
//   - webgpu: GPU compute shaders with CPU fallback
//   - autodiff: decorator adding gradient recording over any Backend
type Backend interface {
	// Element-wise operations (with NumPy-style broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor

	// Manipulation operations
	Cat(tensors []*RawTensor, dim int) *RawTensor // concatenate along dimension
	Chunk(x *RawTensor, n, dim int) []*RawTensor  // split into n equal parts

	// Reduction operations
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor // sum along dimension

	// Convolution operations.
	//
	// Conv2D: plain forward convolution.
	//   x [N, C_in, H, W], w [C_out, C_in/groups, kH, kW] → [N, C_out, outH, outW]
	//
	// Conv2DFilterBackward: filter gradient of a transposed convolution,
	// accumulated from the output gradient gy and the retained input x.
	//   gy [N, C_gy, H', W'], x [N, C_x, H, W] → [C_x, C_gy/groups, kH, kW]
	//
	// ConvTranspose2D: transposed (backward-data) convolution with optional
	// fused bias. outH/outW are the resolved output spatial sizes.
	//   x [N, C_in, H, W], w [C_in, C_out/groups, kH, kW] → [N, C_out, outH, outW]
	Conv2D(x, w *RawTensor, p ConvParams) *RawTensor
	Conv2DFilterBackward(gy, x *RawTensor, p ConvParams, kH, kW int) *RawTensor
	ConvTranspose2D(x, w, bias *RawTensor, p ConvParams, outH, outW int) *RawTensor

	// Metadata
	Name() string
	Device() Device
}

// AccelCaps describes a backend's accelerated transposed-convolution
// capability. The dispatch core feeds it to a pure selection predicate, so
// strategy choice stays unit-testable without a device.
type AccelCaps struct {
	Available     bool // native library present and device initialized
	Enabled       bool // user configuration permits the accelerated path
	Version       int  // accelerated library version (gates dilation/grouping)
	Deterministic bool // deterministic mode forced by configuration
}

// ConvTransposeAccelerator is an optional capability interface for backends
// that provide a vendor-accelerated backward-data convolution. The dispatch
// core type-asserts for it and falls back to the plain ConvTranspose2D path
// when the capability is absent, the selection predicate rejects the
// configuration, or the accelerated call fails.
type ConvTransposeAccelerator interface {
	ConvTransposeCaps() AccelCaps
	ConvTranspose2DAccel(x, w, bias *RawTensor, p ConvParams, outH, outW int) (*RawTensor, error)
}
