package cpu

import (
	"fmt"

	"github.com/gradkit/tconv/internal/tensor"
)

// ConvTranspose2D performs a transposed (backward-data) 2D convolution.
//
// Input shape:  [N, C_in, H, W]
// Filter shape: [C_in, C_out/groups, kH, kW]
// Bias shape:   [C_out] or nil
// Output shape: [N, C_out, outH, outW]
//
// outH and outW are the resolved output spatial sizes; the dispatch layer
// derives or validates them before calling the kernel.
//
// Algorithm (direct kernel):
//  1. Contract the filter with the input over the input-channel axis into a
//     column tensor gcol of shape (N, C_out/groups, kH, kW, H, W).
//  2. Scatter-accumulate gcol into the output via col2im.
//  3. Add the bias broadcast over batch and spatial axes.
//
// For groups > 1 the channel axes are split into independent groups, each
// group runs the direct kernel, and the results are concatenated along the
// output-channel axis in group order.
func (cpu *CPUBackend) ConvTranspose2D(x, w, bias *tensor.RawTensor, p tensor.ConvParams, outH, outW int) *tensor.RawTensor {
	p = p.Normalize()

	xShape := x.Shape()
	wShape := w.Shape()
	if len(xShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: input must be 4D [N,C,H,W], got %dD", len(xShape)))
	}
	if len(wShape) != 4 {
		panic(fmt.Sprintf("conv_transpose2d: filter must be 4D [C_in,C_out/groups,kH,kW], got %dD", len(wShape)))
	}
	if x.DType() != w.DType() {
		panic(fmt.Sprintf("conv_transpose2d: dtype mismatch: input %s vs filter %s", x.DType(), w.DType()))
	}
	if xShape[1] != wShape[0] {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d != filter channels %d", xShape[1], wShape[0]))
	}
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("conv_transpose2d: non-positive output size (%d, %d)", outH, outW))
	}

	g := p.Groups
	cIn := xShape[1]
	cOutG := wShape[1]
	if cIn%g != 0 {
		panic(fmt.Sprintf("conv_transpose2d: input channels %d not divisible by groups %d", cIn, g))
	}
	if bias != nil {
		if len(bias.Shape()) != 1 {
			panic(fmt.Sprintf("conv_transpose2d: bias must be 1D, got %dD", len(bias.Shape())))
		}
		if bias.DType() != x.DType() {
			panic(fmt.Sprintf("conv_transpose2d: bias dtype %s != input dtype %s", bias.DType(), x.DType()))
		}
		if bias.Shape()[0] != cOutG*g {
			panic(fmt.Sprintf("conv_transpose2d: bias length %d != output channels %d", bias.Shape()[0], cOutG*g))
		}
	}

	if g > 1 {
		return cpu.convTranspose2DGrouped(x, w, bias, p, outH, outW)
	}
	return cpu.convTranspose2DDirect(x, w, bias, p, outH, outW)
}

// convTranspose2DDirect runs the single-group direct kernel.
func (cpu *CPUBackend) convTranspose2DDirect(x, w, bias *tensor.RawTensor, p tensor.ConvParams, outH, outW int) *tensor.RawTensor {
	xShape := x.Shape()
	wShape := w.Shape()
	n, cIn, h, wd := xShape[0], xShape[1], xShape[2], xShape[3]
	cOut, kH, kW := wShape[1], wShape[2], wShape[3]

	out, err := tensor.NewRaw(tensor.Shape{n, cOut, outH, outW}, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv_transpose2d: failed to create output tensor: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		gcol := make([]float32, n*cOut*kH*kW*h*wd)
		tensordotFloat32(gcol, w.AsFloat32(), x.AsFloat32(), n, cIn, cOut, kH, kW, h*wd)
		col2imFloat32(out.AsFloat32(), gcol, n, cOut, kH, kW, h, wd, outH, outW,
			p.StrideY, p.StrideX, p.PadH, p.PadW, p.DilateY, p.DilateX)
		if bias != nil {
			addBiasFloat32(out.AsFloat32(), bias.AsFloat32(), n, cOut, outH*outW)
		}
	case tensor.Float64:
		gcol := make([]float64, n*cOut*kH*kW*h*wd)
		tensordotFloat64(gcol, w.AsFloat64(), x.AsFloat64(), n, cIn, cOut, kH, kW, h*wd)
		col2imFloat64(out.AsFloat64(), gcol, n, cOut, kH, kW, h, wd, outH, outW,
			p.StrideY, p.StrideX, p.PadH, p.PadW, p.DilateY, p.DilateX)
		if bias != nil {
			addBiasFloat64(out.AsFloat64(), bias.AsFloat64(), n, cOut, outH*outW)
		}
	default:
		panic(fmt.Sprintf("conv_transpose2d: unsupported dtype %s", x.DType()))
	}

	return out
}

// convTranspose2DGrouped splits the channel axes into groups, runs the
// direct kernel per group and concatenates along the output-channel axis.
// Groups are independent; concatenation order must follow group index to
// preserve output channel ordering.
func (cpu *CPUBackend) convTranspose2DGrouped(x, w, bias *tensor.RawTensor, p tensor.ConvParams, outH, outW int) *tensor.RawTensor {
	g := p.Groups

	xParts := cpu.Chunk(x, g, 1)
	wParts := cpu.Chunk(w, g, 0)

	single := p
	single.Groups = 1

	parts := make([]*tensor.RawTensor, g)
	for i := 0; i < g; i++ {
		parts[i] = cpu.convTranspose2DDirect(xParts[i], wParts[i], nil, single, outH, outW)
	}
	out := cpu.Cat(parts, 1)

	if bias != nil {
		cOut := bias.Shape()[0]
		switch out.DType() {
		case tensor.Float32:
			addBiasFloat32(out.AsFloat32(), bias.AsFloat32(), out.Shape()[0], cOut, outH*outW)
		case tensor.Float64:
			addBiasFloat64(out.AsFloat64(), bias.AsFloat64(), out.Shape()[0], cOut, outH*outW)
		}
	}

	return out
}

// tensordotFloat32 contracts the filter with the input over the
// input-channel axis:
//
//	gcol[n, co, i, j, t] += w[ci, co, i, j] * x[n, ci, t]
//
// where t ranges over the input spatial plane.
//
//nolint:dupl // float32/float64 pairs are intentionally duplicated
func tensordotFloat32(gcol, w, x []float32, n, cIn, cOut, kH, kW, plane int) {
	kk := kH * kW
	for batch := 0; batch < n; batch++ {
		xBatch := x[batch*cIn*plane:]
		gcolBatch := gcol[batch*cOut*kk*plane:]
		for ci := 0; ci < cIn; ci++ {
			xPlane := xBatch[ci*plane : (ci+1)*plane]
			wRow := w[ci*cOut*kk : (ci+1)*cOut*kk]
			for co := 0; co < cOut; co++ {
				for ij := 0; ij < kk; ij++ {
					wv := wRow[co*kk+ij]
					if wv == 0 {
						continue
					}
					gPlane := gcolBatch[(co*kk+ij)*plane : (co*kk+ij+1)*plane]
					for t := 0; t < plane; t++ {
						gPlane[t] += wv * xPlane[t]
					}
				}
			}
		}
	}
}

//nolint:dupl // float32/float64 pairs are intentionally duplicated
func tensordotFloat64(gcol, w, x []float64, n, cIn, cOut, kH, kW, plane int) {
	kk := kH * kW
	for batch := 0; batch < n; batch++ {
		xBatch := x[batch*cIn*plane:]
		gcolBatch := gcol[batch*cOut*kk*plane:]
		for ci := 0; ci < cIn; ci++ {
			xPlane := xBatch[ci*plane : (ci+1)*plane]
			wRow := w[ci*cOut*kk : (ci+1)*cOut*kk]
			for co := 0; co < cOut; co++ {
				for ij := 0; ij < kk; ij++ {
					wv := wRow[co*kk+ij]
					if wv == 0 {
						continue
					}
					gPlane := gcolBatch[(co*kk+ij)*plane : (co*kk+ij+1)*plane]
					for t := 0; t < plane; t++ {
						gPlane[t] += wv * xPlane[t]
					}
				}
			}
		}
	}
}

func addBiasFloat32(out, bias []float32, n, c, plane int) {
	for batch := 0; batch < n; batch++ {
		for ch := 0; ch < c; ch++ {
			b := bias[ch]
			row := out[(batch*c+ch)*plane : (batch*c+ch+1)*plane]
			for t := range row {
				row[t] += b
			}
		}
	}
}

func addBiasFloat64(out, bias []float64, n, c, plane int) {
	for batch := 0; batch < n; batch++ {
		for ch := 0; ch < c; ch++ {
			b := bias[ch]
			row := out[(batch*c+ch)*plane : (batch*c+ch+1)*plane]
			for t := range row {
				row[t] += b
			}
		}
	}
}
