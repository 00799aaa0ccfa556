// Package series extracts single volumes from multi-volume image series.
// A series is a rank-4 image whose trailing axis indexes time points;
// time points are 1-based, matching the registration parameter surface.
package series

import (
	"volreg/pkg/regerr"
	"volreg/pkg/volume"
)

// Volumes returns the number of time points in img: 1 for a 3D volume,
// the trailing extent for a rank-4 series.
func Volumes(img *volume.Image) int {
	switch img.Rank() {
	case 3:
		return 1
	case 4:
		return int(img.Dims()[4])
	default:
		return 0
	}
}

// At returns the 3D volume at the given 1-based time point. A 3D image
// has exactly one time point; asking for any other fails.
func At(img *volume.Image, timePoint int) (*volume.Image, error) {
	const op = "series.At"
	n := Volumes(img)
	if n == 0 {
		return nil, regerr.New(regerr.TypeMismatch, op,
			"rank %d image is neither a volume nor a series", img.Rank())
	}
	if timePoint < 1 || timePoint > n {
		return nil, regerr.New(regerr.ConfigurationError, op,
			"time point %d outside 1..%d", timePoint, n)
	}
	if img.Rank() == 3 {
		return img.DeepCopy(), nil
	}
	dims := img.Dims()
	nx, ny, nz := int(dims[1]), int(dims[2]), int(dims[3])
	out, err := volume.NewWithDims([]int{nx, ny, nz}, img.DataType())
	if err != nil {
		return nil, err
	}
	n3 := nx * ny * nz
	copy(out.Data(), img.Data()[(timePoint-1)*n3:timePoint*n3])
	return out, nil
}
