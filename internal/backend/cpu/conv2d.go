package cpu

import (
	"fmt"

	"github.com/gradkit/tconv/internal/conv"
	"github.com/gradkit/tconv/internal/tensor"
)

// Conv2D performs a plain 2D forward convolution.
//
// Input shape:  [N, C_in, H, W]
// Kernel shape: [C_out, C_in/groups, kH, kW]
// Output shape: [N, C_out, outH, outW]
//
// Supports stride, padding, dilation, grouping and the cover-all output-size
// mode. Cover-all extends the output grid so windows that only partially
// cover the input still contribute; the gather loop drops out-of-bounds
// source positions, so the same loops serve both modes.
//
// Algorithm: im2col gather into a (N, C_in, kH, kW, outH, outW) column
// buffer, then per-group accumulation of kernel x column planes.
func (cpu *CPUBackend) Conv2D(x, w *tensor.RawTensor, p tensor.ConvParams) *tensor.RawTensor {
	p = p.Normalize()

	xShape := x.Shape()
	wShape := w.Shape()
	if len(xShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,C,H,W], got %dD", len(xShape)))
	}
	if len(wShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [C_out,C_in/groups,kH,kW], got %dD", len(wShape)))
	}
	if x.DType() != w.DType() {
		panic(fmt.Sprintf("conv2d: dtype mismatch: input %s vs kernel %s", x.DType(), w.DType()))
	}

	n, cIn, h, wd := xShape[0], xShape[1], xShape[2], xShape[3]
	cOut, cInG, kH, kW := wShape[0], wShape[1], wShape[2], wShape[3]

	g := p.Groups
	if cIn%g != 0 || cOut%g != 0 {
		panic(fmt.Sprintf("conv2d: channels (in=%d, out=%d) not divisible by groups %d", cIn, cOut, g))
	}
	if cIn/g != cInG {
		panic(fmt.Sprintf("conv2d: input channels per group %d != kernel channels %d", cIn/g, cInG))
	}

	outH := conv.OutSize(h, kH, p.StrideY, p.PadH, p.CoverAll, p.DilateY)
	outW := conv.OutSize(wd, kW, p.StrideX, p.PadW, p.CoverAll, p.DilateX)
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("conv2d: non-positive output size (%d, %d)", outH, outW))
	}

	out, err := tensor.NewRaw(tensor.Shape{n, cOut, outH, outW}, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	switch x.DType() {
	case tensor.Float32:
		col := make([]float32, n*cIn*kH*kW*outH*outW)
		im2colFloat32(col, x.AsFloat32(), n, cIn, kH, kW, h, wd, outH, outW,
			p.StrideY, p.StrideX, p.PadH, p.PadW, p.DilateY, p.DilateX)
		conv2dContractFloat32(out.AsFloat32(), col, w.AsFloat32(), n, cIn, cOut, kH, kW, outH, outW, g)
	case tensor.Float64:
		col := make([]float64, n*cIn*kH*kW*outH*outW)
		im2colFloat64(col, x.AsFloat64(), n, cIn, kH, kW, h, wd, outH, outW,
			p.StrideY, p.StrideX, p.PadH, p.PadW, p.DilateY, p.DilateX)
		conv2dContractFloat64(out.AsFloat64(), col, w.AsFloat64(), n, cIn, cOut, kH, kW, outH, outW, g)
	default:
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", x.DType()))
	}

	return out
}

// conv2dContractFloat32 contracts the column buffer with the kernel:
//
//	out[n, co, t] += w[co, ciL, i, j] * col[n, g*cInG+ciL, i, j, t]
//
// where t ranges over the output plane and g = co / (cOut/groups).
//
//nolint:dupl // float32/float64 pairs are intentionally duplicated
func conv2dContractFloat32(out, col, w []float32, n, cIn, cOut, kH, kW, outH, outW, groups int) {
	cInG := cIn / groups
	cOutG := cOut / groups
	plane := outH * outW

	for batch := 0; batch < n; batch++ {
		colBatch := col[batch*cIn*kH*kW*plane:]
		outBatch := out[batch*cOut*plane:]
		for co := 0; co < cOut; co++ {
			g := co / cOutG
			outPlane := outBatch[co*plane : (co+1)*plane]
			wRow := w[co*cInG*kH*kW:]
			for ciL := 0; ciL < cInG; ciL++ {
				ci := g*cInG + ciL
				for i := 0; i < kH; i++ {
					for j := 0; j < kW; j++ {
						wv := wRow[ciL*kH*kW+i*kW+j]
						if wv == 0 {
							continue
						}
						colPlane := colBatch[((ci*kH+i)*kW+j)*plane : ((ci*kH+i)*kW+j+1)*plane]
						for t := 0; t < plane; t++ {
							outPlane[t] += wv * colPlane[t]
						}
					}
				}
			}
		}
	}
}

//nolint:dupl // float32/float64 pairs are intentionally duplicated
func conv2dContractFloat64(out, col, w []float64, n, cIn, cOut, kH, kW, outH, outW, groups int) {
	cInG := cIn / groups
	cOutG := cOut / groups
	plane := outH * outW

	for batch := 0; batch < n; batch++ {
		colBatch := col[batch*cIn*kH*kW*plane:]
		outBatch := out[batch*cOut*plane:]
		for co := 0; co < cOut; co++ {
			g := co / cOutG
			outPlane := outBatch[co*plane : (co+1)*plane]
			wRow := w[co*cInG*kH*kW:]
			for ciL := 0; ciL < cInG; ciL++ {
				ci := g*cInG + ciL
				for i := 0; i < kH; i++ {
					for j := 0; j < kW; j++ {
						wv := wRow[ciL*kH*kW+i*kW+j]
						if wv == 0 {
							continue
						}
						colPlane := colBatch[((ci*kH+i)*kW+j)*plane : ((ci*kH+i)*kW+j+1)*plane]
						for t := 0; t < plane; t++ {
							outPlane[t] += wv * colPlane[t]
						}
					}
				}
			}
		}
	}
}

// Conv2DFilterBackward accumulates the filter gradient of a transposed
// convolution from the output gradient gy and the retained input x.
//
// gy shape: [N, C_gy, H', W'] (the transposed convolution's output grid)
// x shape:  [N, C_x, H, W]    (the transposed convolution's input grid)
// Result:   [C_x, C_gy/groups, kH, kW], the transposed-convolution filter
// layout.
//
// The accumulation is
//
//	gW[ci, coL, i, j] = sum over n, h, w of
//	    x[n, ci, h, w] * gy[n, (ci/cInG)*cGyG + coL, sy*h - ph + i*dy, sx*w - pw + j*dx]
//
// realized by im2col-gathering gy onto x's spatial grid and contracting with x.
func (cpu *CPUBackend) Conv2DFilterBackward(gy, x *tensor.RawTensor, p tensor.ConvParams, kH, kW int) *tensor.RawTensor {
	p = p.Normalize()

	gyShape := gy.Shape()
	xShape := x.Shape()
	if len(gyShape) != 4 || len(xShape) != 4 {
		panic(fmt.Sprintf("conv2d filter backward: expected 4D tensors, got %dD and %dD", len(gyShape), len(xShape)))
	}
	if gy.DType() != x.DType() {
		panic(fmt.Sprintf("conv2d filter backward: dtype mismatch: %s vs %s", gy.DType(), x.DType()))
	}

	n, cGy, gh, gw := gyShape[0], gyShape[1], gyShape[2], gyShape[3]
	if xShape[0] != n {
		panic(fmt.Sprintf("conv2d filter backward: batch mismatch: %d vs %d", xShape[0], n))
	}
	cX, h, wd := xShape[1], xShape[2], xShape[3]

	g := p.Groups
	if cX%g != 0 || cGy%g != 0 {
		panic(fmt.Sprintf("conv2d filter backward: channels (x=%d, gy=%d) not divisible by groups %d", cX, cGy, g))
	}
	cGyG := cGy / g
	cXG := cX / g

	gW, err := tensor.NewRaw(tensor.Shape{cX, cGyG, kH, kW}, gy.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d filter backward: failed to create gradient tensor: %v", err))
	}

	switch gy.DType() {
	case tensor.Float32:
		col := make([]float32, n*cGy*kH*kW*h*wd)
		im2colFloat32(col, gy.AsFloat32(), n, cGy, kH, kW, gh, gw, h, wd,
			p.StrideY, p.StrideX, p.PadH, p.PadW, p.DilateY, p.DilateX)
		filterGradContractFloat32(gW.AsFloat32(), col, x.AsFloat32(), n, cX, cGy, kH, kW, h*wd, cXG, cGyG)
	case tensor.Float64:
		col := make([]float64, n*cGy*kH*kW*h*wd)
		im2colFloat64(col, gy.AsFloat64(), n, cGy, kH, kW, gh, gw, h, wd,
			p.StrideY, p.StrideX, p.PadH, p.PadW, p.DilateY, p.DilateX)
		filterGradContractFloat64(gW.AsFloat64(), col, x.AsFloat64(), n, cX, cGy, kH, kW, h*wd, cXG, cGyG)
	default:
		panic(fmt.Sprintf("conv2d filter backward: unsupported dtype %s", gy.DType()))
	}

	return gW
}

//nolint:dupl // float32/float64 pairs are intentionally duplicated
func filterGradContractFloat32(gW, col, x []float32, n, cX, cGy, kH, kW, plane, cXG, cGyG int) {
	for batch := 0; batch < n; batch++ {
		xBatch := x[batch*cX*plane:]
		colBatch := col[batch*cGy*kH*kW*plane:]
		for ci := 0; ci < cX; ci++ {
			g := ci / cXG
			xPlane := xBatch[ci*plane : (ci+1)*plane]
			for coL := 0; coL < cGyG; coL++ {
				co := g*cGyG + coL
				for i := 0; i < kH; i++ {
					for j := 0; j < kW; j++ {
						colPlane := colBatch[((co*kH+i)*kW+j)*plane : ((co*kH+i)*kW+j+1)*plane]
						var sum float32
						for t := 0; t < plane; t++ {
							sum += xPlane[t] * colPlane[t]
						}
						gW[((ci*cGyG+coL)*kH+i)*kW+j] += sum
					}
				}
			}
		}
	}
}

//nolint:dupl // float32/float64 pairs are intentionally duplicated
func filterGradContractFloat64(gW, col, x []float64, n, cX, cGy, kH, kW, plane, cXG, cGyG int) {
	for batch := 0; batch < n; batch++ {
		xBatch := x[batch*cX*plane:]
		colBatch := col[batch*cGy*kH*kW*plane:]
		for ci := 0; ci < cX; ci++ {
			g := ci / cXG
			xPlane := xBatch[ci*plane : (ci+1)*plane]
			for coL := 0; coL < cGyG; coL++ {
				co := g*cGyG + coL
				for i := 0; i < kH; i++ {
					for j := 0; j < kW; j++ {
						colPlane := colBatch[((co*kH+i)*kW+j)*plane : ((co*kH+i)*kW+j+1)*plane]
						var sum float64
						for t := 0; t < plane; t++ {
							sum += xPlane[t] * colPlane[t]
						}
						gW[((ci*cGyG+coL)*kH+i)*kW+j] += sum
					}
				}
			}
		}
	}
}
