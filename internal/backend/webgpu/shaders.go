// Package webgpu provides embedded WGSL compute shaders for the
// GPU-accelerated transposed-convolution path.
package webgpu

// WGSL compute shaders. Using string constants instead of embed for
// simplicity.

// workgroupSize is the default number of threads per 1D workgroup.
const workgroupSize = 256

// deconvShaderBody is the gather-form transposed convolution. Each thread
// owns one output element, so no atomics are needed: the scatter over input
// positions is re-expressed as a gather over the kernel taps whose strided
// source index lands on an integer input coordinate.
//
// x is [N, C_in, H, W], w is [C_in, C_out/groups, kH, kW], result is
// [N, C_out, outH, outW]. WG_TILE is substituted with the tile width of the
// selected algorithm variant before compilation.
const deconvShaderBody = `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> w: array<f32>;
@group(0) @binding(2) var<storage, read> bias: array<f32>;
@group(0) @binding(3) var<storage, read_write> result: array<f32>;

struct Params {
    n: u32,
    c_in: u32,
    in_h: u32,
    in_w: u32,
    c_out: u32,
    out_h: u32,
    out_w: u32,
    k_h: u32,
    k_w: u32,
    stride_y: u32,
    stride_x: u32,
    pad_h: u32,
    pad_w: u32,
    dilate_y: u32,
    dilate_x: u32,
    groups: u32,
    has_bias: u32,
}
@group(0) @binding(4) var<uniform> params: Params;

@compute @workgroup_size(WG_TILE, WG_TILE)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let ow = global_id.x;
    let oh = global_id.y;
    let nc = global_id.z;

    if (ow >= params.out_w || oh >= params.out_h || nc >= params.n * params.c_out) {
        return;
    }

    let n = nc / params.c_out;
    let co = nc % params.c_out;
    let c_out_g = params.c_out / params.groups;
    let c_in_g = params.c_in / params.groups;
    let g = co / c_out_g;
    let co_local = co % c_out_g;

    var sum: f32 = 0.0;
    if (params.has_bias != 0u) {
        sum = bias[co];
    }

    for (var kh: u32 = 0u; kh < params.k_h; kh = kh + 1u) {
        let num_y = oh + params.pad_h;
        let tap_y = kh * params.dilate_y;
        if (tap_y > num_y) {
            continue;
        }
        if ((num_y - tap_y) % params.stride_y != 0u) {
            continue;
        }
        let ih = (num_y - tap_y) / params.stride_y;
        if (ih >= params.in_h) {
            continue;
        }
        for (var kw: u32 = 0u; kw < params.k_w; kw = kw + 1u) {
            let num_x = ow + params.pad_w;
            let tap_x = kw * params.dilate_x;
            if (tap_x > num_x) {
                continue;
            }
            if ((num_x - tap_x) % params.stride_x != 0u) {
                continue;
            }
            let iw = (num_x - tap_x) / params.stride_x;
            if (iw >= params.in_w) {
                continue;
            }
            for (var ci: u32 = 0u; ci < c_in_g; ci = ci + 1u) {
                let ci_full = g * c_in_g + ci;
                let x_idx = ((n * params.c_in + ci_full) * params.in_h + ih) * params.in_w + iw;
                let w_idx = ((ci_full * c_out_g + co_local) * params.k_h + kh) * params.k_w + kw;
                sum = sum + x[x_idx] * w[w_idx];
            }
        }
    }

    let out_idx = ((n * params.c_out + co) * params.out_h + oh) * params.out_w + ow;
    result[out_idx] = sum;
}
`
