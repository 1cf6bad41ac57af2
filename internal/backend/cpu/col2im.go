package cpu

// col2im and im2col: the scatter/gather primitives behind the convolution
// kernels.
//
// col2im accumulates a 6D column tensor gcol of shape
// (N, C, kH, kW, H, W) into an image tensor img of shape (N, C, outH, outW):
//
//	img[n, c, sy*h - ph + i*dy, sx*w - pw + j*dx] += gcol[n, c, i, j, h, w]
//
// for every in-bounds destination index. Out-of-bounds destinations are
// dropped silently (padding semantics). Overlapping windows add: this is an
// accumulate, not an overwrite, which is what makes it the core primitive of
// the transposed convolution.
//
// im2col is the gather counterpart used by the plain convolution: it reads
// the same index mapping instead of writing it, with zero fill for
// out-of-bounds sources.

//nolint:dupl // float32/float64 pairs are intentionally duplicated
func col2imFloat32(img, gcol []float32, n, c, kH, kW, h, w, outH, outW, sy, sx, ph, pw, dy, dx int) {
	for i := range img {
		img[i] = 0
	}

	idx := 0
	for batch := 0; batch < n; batch++ {
		imgBatch := img[batch*c*outH*outW : (batch+1)*c*outH*outW]
		for ch := 0; ch < c; ch++ {
			imgPlane := imgBatch[ch*outH*outW : (ch+1)*outH*outW]
			for i := 0; i < kH; i++ {
				for j := 0; j < kW; j++ {
					for hh := 0; hh < h; hh++ {
						outY := sy*hh - ph + i*dy
						if outY < 0 || outY >= outH {
							idx += w
							continue
						}
						row := imgPlane[outY*outW : (outY+1)*outW]
						for ww := 0; ww < w; ww++ {
							outX := sx*ww - pw + j*dx
							if outX >= 0 && outX < outW {
								row[outX] += gcol[idx]
							}
							idx++
						}
					}
				}
			}
		}
	}
}

//nolint:dupl // float32/float64 pairs are intentionally duplicated
func col2imFloat64(img, gcol []float64, n, c, kH, kW, h, w, outH, outW, sy, sx, ph, pw, dy, dx int) {
	for i := range img {
		img[i] = 0
	}

	idx := 0
	for batch := 0; batch < n; batch++ {
		imgBatch := img[batch*c*outH*outW : (batch+1)*c*outH*outW]
		for ch := 0; ch < c; ch++ {
			imgPlane := imgBatch[ch*outH*outW : (ch+1)*outH*outW]
			for i := 0; i < kH; i++ {
				for j := 0; j < kW; j++ {
					for hh := 0; hh < h; hh++ {
						outY := sy*hh - ph + i*dy
						if outY < 0 || outY >= outH {
							idx += w
							continue
						}
						row := imgPlane[outY*outW : (outY+1)*outW]
						for ww := 0; ww < w; ww++ {
							outX := sx*ww - pw + j*dx
							if outX >= 0 && outX < outW {
								row[outX] += gcol[idx]
							}
							idx++
						}
					}
				}
			}
		}
	}
}

// im2colFloat32 gathers kernel-window patches from img (N, C, h, w) into col
// (N, C, kH, kW, outH, outW), zero-filling out-of-bounds positions.
//
//nolint:dupl // float32/float64 pairs are intentionally duplicated
func im2colFloat32(col, img []float32, n, c, kH, kW, h, w, outH, outW, sy, sx, ph, pw, dy, dx int) {
	idx := 0
	for batch := 0; batch < n; batch++ {
		imgBatch := img[batch*c*h*w : (batch+1)*c*h*w]
		for ch := 0; ch < c; ch++ {
			imgPlane := imgBatch[ch*h*w : (ch+1)*h*w]
			for i := 0; i < kH; i++ {
				for j := 0; j < kW; j++ {
					for oh := 0; oh < outH; oh++ {
						srcY := sy*oh - ph + i*dy
						if srcY < 0 || srcY >= h {
							for ow := 0; ow < outW; ow++ {
								col[idx] = 0
								idx++
							}
							continue
						}
						row := imgPlane[srcY*w : (srcY+1)*w]
						for ow := 0; ow < outW; ow++ {
							srcX := sx*ow - pw + j*dx
							if srcX >= 0 && srcX < w {
								col[idx] = row[srcX]
							} else {
								col[idx] = 0
							}
							idx++
						}
					}
				}
			}
		}
	}
}

//nolint:dupl // float32/float64 pairs are intentionally duplicated
func im2colFloat64(col, img []float64, n, c, kH, kW, h, w, outH, outW, sy, sx, ph, pw, dy, dx int) {
	idx := 0
	for batch := 0; batch < n; batch++ {
		imgBatch := img[batch*c*h*w : (batch+1)*c*h*w]
		for ch := 0; ch < c; ch++ {
			imgPlane := imgBatch[ch*h*w : (ch+1)*h*w]
			for i := 0; i < kH; i++ {
				for j := 0; j < kW; j++ {
					for oh := 0; oh < outH; oh++ {
						srcY := sy*oh - ph + i*dy
						if srcY < 0 || srcY >= h {
							for ow := 0; ow < outW; ow++ {
								col[idx] = 0
								idx++
							}
							continue
						}
						row := imgPlane[srcY*w : (srcY+1)*w]
						for ow := 0; ow < outW; ow++ {
							srcX := sx*ow - pw + j*dx
							if srcX >= 0 && srcX < w {
								col[idx] = row[srcX]
							} else {
								col[idx] = 0
							}
							idx++
						}
					}
				}
			}
		}
	}
}
