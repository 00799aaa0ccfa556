// Package visualization writes quality-control previews of volumetric
// images: the three orthogonal mid-slices of a volume rendered as
// grayscale JPEG files, intensity-normalized over the whole volume.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"volreg/pkg/regerr"
	"volreg/pkg/volume"
)

// planes, in output naming order.
var planeNames = [3]string{"axial", "coronal", "sagittal"}

// SaveMidSlices writes the three orthogonal mid-slices of a 3D image to
// dir as <prefix>_axial.jpg, <prefix>_coronal.jpg and <prefix>_sagittal.jpg.
// The directory is created if needed.
func SaveMidSlices(img *volume.Image, dir, prefix string) error {
	const op = "visualization.SaveMidSlices"
	if img == nil || !img.Is3D() {
		return regerr.New(regerr.TypeMismatch, op, "input is not a 3D scalar image")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "cannot create %q", dir)
	}
	lo, hi := img.Min(), img.Max()
	for plane := range planeNames {
		slice := extractMidSlice(img, plane, lo, hi)
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.jpg", prefix, planeNames[plane]))
		if err := saveJPEG(slice, path); err != nil {
			return err
		}
	}
	return nil
}

// extractMidSlice renders one mid-plane of the volume as a grayscale
// image, mapping [lo, hi] onto the 8-bit range.
func extractMidSlice(img *volume.Image, plane int, lo, hi float64) *image.Gray {
	ext := img.Extents()
	nx, ny, nz := ext[0], ext[1], ext[2]
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}

	var w, h int
	switch plane {
	case 0: // axial: x-y at mid z
		w, h = nx, ny
	case 1: // coronal: x-z at mid y
		w, h = nx, nz
	default: // sagittal: y-z at mid x
		w, h = ny, nz
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			var v float64
			switch plane {
			case 0:
				v = img.At(i, j, nz/2)
			case 1:
				v = img.At(i, ny/2, j)
			default:
				v = img.At(nx/2, i, j)
			}
			out.SetGray(i, j, color.Gray{Y: uint8((v - lo) * scale)})
		}
	}
	return out
}

func saveJPEG(img image.Image, path string) error {
	const op = "visualization.SaveMidSlices"
	f, err := os.Create(path)
	if err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "cannot create %q", path)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "encode %q", path)
	}
	return nil
}
