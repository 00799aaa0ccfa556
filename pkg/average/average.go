// Package average computes the voxelwise weighted mean of a set of
// same-shape volumetric images.
package average

import (
	"volreg/pkg/regerr"
	"volreg/pkg/volume"
)

type entry struct {
	img    *volume.Image
	weight float64
}

// WeightedMean accumulates (image, weight) pairs and combines them into
// a single voxelwise weighted average on Update. Weights need not sum to
// one; a zero total weight is a configuration error.
type WeightedMean struct {
	entries []entry
	output  *volume.Image
}

// New returns an empty aggregator.
func New() *WeightedMean {
	return &WeightedMean{}
}

// AddImage appends an in-memory image with its weight.
func (w *WeightedMean) AddImage(img *volume.Image, weight float64) error {
	if img == nil {
		return regerr.New(regerr.TypeMismatch, "average.AddImage", "nil image")
	}
	w.entries = append(w.entries, entry{img: img, weight: weight})
	w.output = nil
	return nil
}

// AddImageFile appends an image loaded from a volume file with its
// weight. The file is read immediately; an unreadable file fails with
// IOError and leaves the accumulated set unchanged.
func (w *WeightedMean) AddImageFile(path string, weight float64) error {
	img, err := volume.LoadImage(path)
	if err != nil {
		return err
	}
	w.entries = append(w.entries, entry{img: img, weight: weight})
	w.output = nil
	return nil
}

// Update computes, per voxel, sum(weight_i * value_i) / sum(weight_i)
// across all accumulated images. All images must share identical
// dimensions. The accumulation runs over deviations from the first
// image, so identical inputs reproduce the original bit for bit
// whatever the weights are.
func (w *WeightedMean) Update() error {
	const op = "average.Update"
	if len(w.entries) == 0 {
		return regerr.New(regerr.ConfigurationError, op, "no images accumulated")
	}
	var total float64
	first := w.entries[0].img
	for i, e := range w.entries {
		if e.img.Dims() != first.Dims() {
			return regerr.New(regerr.DimensionMismatch, op,
				"image %d dims %v do not match %v", i, e.img.Extents(), first.Extents())
		}
		total += e.weight
	}
	if total == 0 {
		return regerr.New(regerr.ConfigurationError, op, "total weight is zero")
	}

	out := first.DeepCopy()
	data := out.Data()
	base := first.Data()
	delta := make([]float64, len(data))
	for _, e := range w.entries[1:] {
		src := e.img.Data()
		for i := range delta {
			delta[i] += e.weight * (src[i] - base[i])
		}
	}
	for i := range data {
		if d := delta[i]; d != 0 {
			data[i] = base[i] + d/total
		}
	}
	w.output = out
	return nil
}

// Output returns the weighted mean of the last successful Update.
func (w *WeightedMean) Output() (*volume.Image, error) {
	if w.output == nil {
		return nil, regerr.New(regerr.ConfigurationError, "average.Output",
			"no result: run Update first")
	}
	return w.output.DeepCopy(), nil
}
