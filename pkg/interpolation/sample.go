package interpolation

import (
	"math"

	"volreg/pkg/volume"
)

// Sample evaluates a 3D scalar image at a continuous voxel coordinate
// with the given kernel. Coordinates whose kernel support falls entirely
// outside the grid yield the background value; separable kernels
// re-normalize over the in-bounds taps near the border.
func Sample(img *volume.Image, x, y, z float64, k Kernel, background float64) float64 {
	ext := img.Extents()
	nx, ny, nz := ext[0], ext[1], ext[2]

	if k == NearestNeighbour {
		ix, iy, iz := int(math.Round(x)), int(math.Round(y)), int(math.Round(z))
		if ix < 0 || iy < 0 || iz < 0 || ix >= nx || iy >= ny || iz >= nz {
			return background
		}
		return img.At(ix, iy, iz)
	}

	r := k.Radius()
	x0, y0, z0 := int(math.Floor(x)), int(math.Floor(y)), int(math.Floor(z))
	if x0 < -r || y0 < -r || z0 < -r || x0 >= nx+r-1 || y0 >= ny+r-1 || z0 >= nz+r-1 {
		return background
	}
	// Fully outside on any axis means background, partially outside
	// means a renormalized sum of the in-bounds taps.
	var sum, wsum float64
	for dz := 1 - r; dz <= r; dz++ {
		iz := z0 + dz
		if iz < 0 || iz >= nz {
			continue
		}
		wz := k.weight1D(z - float64(iz))
		if wz == 0 {
			continue
		}
		for dy := 1 - r; dy <= r; dy++ {
			iy := y0 + dy
			if iy < 0 || iy >= ny {
				continue
			}
			wy := k.weight1D(y - float64(iy))
			if wy == 0 {
				continue
			}
			for dx := 1 - r; dx <= r; dx++ {
				ix := x0 + dx
				if ix < 0 || ix >= nx {
					continue
				}
				w := wz * wy * k.weight1D(x-float64(ix))
				sum += w * img.At(ix, iy, iz)
				wsum += w
			}
		}
	}
	if wsum == 0 {
		return background
	}
	return sum / wsum
}

// SampleField evaluates one component of a vector field at a continuous
// voxel coordinate with trilinear interpolation, clamping coordinates to
// the field grid. Clamping (rather than a background fill) keeps chained
// coordinate lookups stable at the volume border.
func SampleField(t *volume.TensorImage, x, y, z float64, c int) float64 {
	nx, ny, nz := t.SpatialExtents()
	x = clampf(x, 0, float64(nx-1))
	y = clampf(y, 0, float64(ny-1))
	z = clampf(z, 0, float64(nz-1))

	x0, y0, z0 := int(x), int(y), int(z)
	x1, y1, z1 := minInt(x0+1, nx-1), minInt(y0+1, ny-1), minInt(z0+1, nz-1)
	fx, fy, fz := x-float64(x0), y-float64(y0), z-float64(z0)

	c000 := t.ComponentAt(x0, y0, z0, c)
	c100 := t.ComponentAt(x1, y0, z0, c)
	c010 := t.ComponentAt(x0, y1, z0, c)
	c110 := t.ComponentAt(x1, y1, z0, c)
	c001 := t.ComponentAt(x0, y0, z1, c)
	c101 := t.ComponentAt(x1, y0, z1, c)
	c011 := t.ComponentAt(x0, y1, z1, c)
	c111 := t.ComponentAt(x1, y1, z1, c)

	c00 := c000*(1-fx) + c100*fx
	c10 := c010*(1-fx) + c110*fx
	c01 := c001*(1-fx) + c101*fx
	c11 := c011*(1-fx) + c111*fx
	c0 := c00*(1-fy) + c10*fy
	c1 := c01*(1-fy) + c11*fy
	return c0*(1-fz) + c1*fz
}

// SampleVector evaluates all three components of a vector field at a
// continuous voxel coordinate.
func SampleVector(t *volume.TensorImage, x, y, z float64) [volume.TensorComponents]float64 {
	var v [volume.TensorComponents]float64
	for c := range v {
		v[c] = SampleField(t, x, y, z, c)
	}
	return v
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
