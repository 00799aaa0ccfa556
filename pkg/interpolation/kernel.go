// Package interpolation provides the interpolation kernels used when
// sampling a volumetric image at continuous coordinates, together with
// trilinear sampling of vector fields needed by transformation
// composition and resampling.
package interpolation

import (
	"math"

	"volreg/pkg/regerr"
)

// Kernel selects the interpolation scheme. The numeric codes are part of
// the external interface and are deliberately non-contiguous: there is
// no kernel 2.
type Kernel int

const (
	NearestNeighbour Kernel = 0
	Linear           Kernel = 1
	CubicSpline      Kernel = 3
	Sinc             Kernel = 4
)

// sincRadius is the half-width of the windowed sinc kernel in voxels.
const sincRadius = 3

// String returns the kernel name.
func (k Kernel) String() string {
	switch k {
	case NearestNeighbour:
		return "nearest neighbour"
	case Linear:
		return "linear"
	case CubicSpline:
		return "cubic spline"
	case Sinc:
		return "sinc"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the supported kernel codes.
func (k Kernel) Valid() bool {
	switch k {
	case NearestNeighbour, Linear, CubicSpline, Sinc:
		return true
	}
	return false
}

// ParseKernel validates an integer kernel code.
func ParseKernel(code int) (Kernel, error) {
	k := Kernel(code)
	if !k.Valid() {
		return 0, regerr.New(regerr.TypeMismatch, "interpolation.ParseKernel",
			"unknown interpolation code %d (supported: 0, 1, 3, 4)", code)
	}
	return k, nil
}

// Radius returns the one-sided support of the kernel in voxels.
func (k Kernel) Radius() int {
	switch k {
	case NearestNeighbour, Linear:
		return 1
	case CubicSpline:
		return 2
	case Sinc:
		return sincRadius
	}
	return 1
}

// cubicWeight is the Catmull-Rom cubic spline weight for offset t.
func cubicWeight(t float64) float64 {
	t = math.Abs(t)
	switch {
	case t < 1:
		return 1.5*t*t*t - 2.5*t*t + 1
	case t < 2:
		return -0.5*t*t*t + 2.5*t*t - 4*t + 2
	default:
		return 0
	}
}

// sincWeight is the Lanczos-windowed sinc weight for offset t.
func sincWeight(t float64) float64 {
	t = math.Abs(t)
	if t >= sincRadius {
		return 0
	}
	if t < 1e-12 {
		return 1
	}
	pt := math.Pi * t
	return (math.Sin(pt) / pt) * (math.Sin(pt/sincRadius) / (pt / sincRadius))
}

// weight1D returns the kernel weight at offset t for separable kernels.
func (k Kernel) weight1D(t float64) float64 {
	switch k {
	case Linear:
		t = math.Abs(t)
		if t >= 1 {
			return 0
		}
		return 1 - t
	case CubicSpline:
		return cubicWeight(t)
	case Sinc:
		return sincWeight(t)
	}
	return 0
}
