// Package conv provides the output-size arithmetic shared by the convolution
// and transposed-convolution kernels.
//
// All functions are pure integer arithmetic over a single spatial axis.
// Callers apply them once per axis (height, then width).
package conv

// OutSize computes the output size of a plain forward convolution along one
// spatial axis.
//
// With effective kernel keff = d*(k-1)+1:
//
//	floor mode:     (size + 2p - keff) / s + 1
//	cover-all mode: (size + 2p - keff + s - 1) / s + 1
//
// Cover-all rounds up instead of down, so positions where the kernel window
// only partially covers the input still produce an output element.
func OutSize(size, k, s, p int, coverAll bool, d int) int {
	dk := d*(k-1) + 1
	if coverAll {
		return (size+p*2-dk+s-1)/s + 1
	}
	return (size+p*2-dk)/s + 1
}

// TransposedOutSize computes the output size of a transposed convolution
// along one spatial axis: s*(size-1) + keff - 2p.
//
// The result may be non-positive for degenerate configurations; callers must
// reject that case.
func TransposedOutSize(size, k, s, p, d int) int {
	dk := d*(k-1) + 1
	return s*(size-1) + dk - p*2
}

// InSizeBounds returns the inclusive range [lo, hi] of input sizes whose
// forward-convolution output equals outSize. The lower bound corresponds to
// the floor output-size formula, the upper bound to the cover-all formula.
//
// Used to validate an explicitly supplied transposed-convolution output size
// against the actual input size.
func InSizeBounds(outSize, k, s, p, d int) (lo, hi int) {
	lo = OutSize(outSize, k, s, p, false, d)
	hi = OutSize(outSize, k, s, p, true, d)
	return lo, hi
}

// NeedsCoverAll reports whether reproducing the input size from the output
// size requires the cover-all output-size formula.
//
// Transposed convolution is ambiguous: several input sizes can map onto the
// same output size when the stride does not evenly divide. The flag is true
// iff the floor formula does NOT reproduce the input size exactly, in which
// case the gradient computation must run the plain convolution in cover-all
// mode.
func NeedsCoverAll(inH, inW, outH, outW, kH, kW, sy, sx, ph, pw, dy, dx int) bool {
	return inH != OutSize(outH, kH, sy, ph, false, dy) ||
		inW != OutSize(outW, kW, sx, pw, false, dx)
}
