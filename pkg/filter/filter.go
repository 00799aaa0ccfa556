// Package filter provides the 3D grid filters used by the registration
// engines: separable Gaussian smoothing for field regularization and
// central-difference gradients for intensity matching.
package filter

import "math"

// gaussianKernel builds a normalized 1D Gaussian of the given sigma,
// truncated at three sigma.
func gaussianKernel(sigma float64) []float64 {
	r := int(math.Ceil(3 * sigma))
	if r < 1 {
		r = 1
	}
	k := make([]float64, 2*r+1)
	sum := 0.0
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+r] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// Gaussian3D smooths a 3D grid with a separable Gaussian of the given
// sigma (in voxels) along each axis, clamping at the borders. The input
// is not modified.
func Gaussian3D(data []float64, nx, ny, nz int, sigma float64) []float64 {
	if sigma <= 0 {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}
	k := gaussianKernel(sigma)
	r := len(k) / 2

	src := data
	dst := make([]float64, len(data))
	tmp := make([]float64, len(data))

	// Axis passes: x, then y, then z.
	convolveAxis(src, dst, nx, ny, nz, k, r, 0)
	convolveAxis(dst, tmp, nx, ny, nz, k, r, 1)
	convolveAxis(tmp, dst, nx, ny, nz, k, r, 2)
	return dst
}

func convolveAxis(src, dst []float64, nx, ny, nz int, k []float64, r, axis int) {
	ext := [3]int{nx, ny, nz}
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				pos := [3]int{x, y, z}
				sum := 0.0
				for i := -r; i <= r; i++ {
					p := pos
					p[axis] = clampInt(p[axis]+i, 0, ext[axis]-1)
					sum += k[i+r] * src[p[0]+nx*(p[1]+ny*p[2])]
				}
				dst[x+nx*(y+ny*z)] = sum
			}
		}
	}
}

// Gradient3D computes central-difference gradients of a 3D grid along
// each axis, with one-sided differences at the borders.
func Gradient3D(data []float64, nx, ny, nz int) (gx, gy, gz []float64) {
	gx = make([]float64, len(data))
	gy = make([]float64, len(data))
	gz = make([]float64, len(data))
	idx := func(x, y, z int) int { return x + nx*(y+ny*z) }
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				i := idx(x, y, z)
				gx[i] = diff(data, idx(clampInt(x+1, 0, nx-1), y, z), idx(clampInt(x-1, 0, nx-1), y, z), x, nx)
				gy[i] = diff(data, idx(x, clampInt(y+1, 0, ny-1), z), idx(x, clampInt(y-1, 0, ny-1), z), y, ny)
				gz[i] = diff(data, idx(x, y, clampInt(z+1, 0, nz-1)), idx(x, y, clampInt(z-1, 0, nz-1)), z, nz)
			}
		}
	}
	return gx, gy, gz
}

func diff(data []float64, hi, lo, pos, ext int) float64 {
	span := 2.0
	if pos == 0 || pos == ext-1 {
		span = 1.0
	}
	if ext == 1 {
		return 0
	}
	return (data[hi] - data[lo]) / span
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
