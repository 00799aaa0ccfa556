// Package resample warps a floating image into a reference image's grid
// through an ordered transformation chain and a selectable interpolation
// kernel. The chain is composed into a single deformation field before
// sampling; voxels mapping outside the floating grid receive a zero
// background.
package resample

import (
	"volreg/pkg/interpolation"
	"volreg/pkg/regerr"
	"volreg/pkg/transform"
	"volreg/pkg/volume"
)

// Resampler accumulates a transformation chain plus reference and
// floating images. Update composes the chain and produces the output.
type Resampler struct {
	ref    *volume.Image
	flo    *volume.Image
	chain  []transform.Transformation
	kernel interpolation.Kernel
	output *volume.Image
}

// New returns a resampler with an empty chain and the linear kernel.
func New() *Resampler {
	return &Resampler{kernel: interpolation.Linear}
}

// SetReferenceImage sets the grid the output is produced on.
func (r *Resampler) SetReferenceImage(img *volume.Image) error {
	if img == nil || !img.Is3D() {
		return regerr.New(regerr.TypeMismatch, "resample.SetReferenceImage",
			"reference is not a 3D scalar image")
	}
	r.ref = img
	r.output = nil
	return nil
}

// SetFloatingImage sets the image being warped.
func (r *Resampler) SetFloatingImage(img *volume.Image) error {
	if img == nil || !img.Is3D() {
		return regerr.New(regerr.TypeMismatch, "resample.SetFloatingImage",
			"floating is not a 3D scalar image")
	}
	r.flo = img
	r.output = nil
	return nil
}

// AddAffine appends an affine matrix to the transformation chain.
func (r *Resampler) AddAffine(a *transform.Affine) error {
	return r.add(a, "resample.AddAffine")
}

// AddDisplacement appends a displacement field to the chain.
func (r *Resampler) AddDisplacement(d *transform.DisplacementField) error {
	return r.add(d, "resample.AddDisplacement")
}

// AddDeformation appends a deformation field to the chain.
func (r *Resampler) AddDeformation(d *transform.DeformationField) error {
	return r.add(d, "resample.AddDeformation")
}

func (r *Resampler) add(t transform.Transformation, op string) error {
	switch v := t.(type) {
	case *transform.Affine:
		if v == nil {
			return regerr.New(regerr.TypeMismatch, op, "nil transformation")
		}
	case *transform.DisplacementField:
		if v == nil {
			return regerr.New(regerr.TypeMismatch, op, "nil transformation")
		}
	case *transform.DeformationField:
		if v == nil {
			return regerr.New(regerr.TypeMismatch, op, "nil transformation")
		}
	}
	if len(r.chain) >= transform.MaxChain {
		return regerr.New(regerr.UnsupportedArity, op,
			"chain already holds %d transformations", transform.MaxChain)
	}
	r.chain = append(r.chain, t)
	r.output = nil
	return nil
}

// SetInterpolation selects the sampling kernel by its numeric code.
func (r *Resampler) SetInterpolation(k interpolation.Kernel) error {
	if !k.Valid() {
		return regerr.New(regerr.TypeMismatch, "resample.SetInterpolation",
			"unknown interpolation code %d", int(k))
	}
	r.kernel = k
	r.output = nil
	return nil
}

// SetInterpolationToNearestNeighbour selects kernel 0.
func (r *Resampler) SetInterpolationToNearestNeighbour() {
	r.kernel = interpolation.NearestNeighbour
	r.output = nil
}

// SetInterpolationToLinear selects kernel 1.
func (r *Resampler) SetInterpolationToLinear() {
	r.kernel = interpolation.Linear
	r.output = nil
}

// SetInterpolationToCubicSpline selects kernel 3.
func (r *Resampler) SetInterpolationToCubicSpline() {
	r.kernel = interpolation.CubicSpline
	r.output = nil
}

// SetInterpolationToSinc selects kernel 4.
func (r *Resampler) SetInterpolationToSinc() {
	r.kernel = interpolation.Sinc
	r.output = nil
}

// Update composes the accumulated chain into one deformation field over
// the reference grid, then samples the floating image at every deformed
// voxel. An empty chain resamples through the identity. Missing
// reference or floating image fails with ConfigurationError.
func (r *Resampler) Update() error {
	const op = "resample.Update"
	if r.ref == nil {
		return regerr.New(regerr.ConfigurationError, op, "reference image is not set")
	}
	if r.flo == nil {
		return regerr.New(regerr.ConfigurationError, op, "floating image is not set")
	}

	chain := r.chain
	if len(chain) == 0 {
		chain = []transform.Transformation{transform.Identity()}
	}
	def, err := transform.Compose(chain, r.ref)
	if err != nil {
		return err
	}

	out := r.ref.DeepCopy()
	ext := r.ref.Extents()
	for z := 0; z < ext[2]; z++ {
		for y := 0; y < ext[1]; y++ {
			for x := 0; x < ext[0]; x++ {
				p := def.Field.VectorAt(x, y, z)
				out.Set(x, y, z, interpolation.Sample(r.flo, p[0], p[1], p[2], r.kernel, 0))
			}
		}
	}
	r.output = out
	return nil
}

// Output returns the resampled image of the last successful Update.
func (r *Resampler) Output() (*volume.Image, error) {
	if r.output == nil {
		return nil, regerr.New(regerr.ConfigurationError, "resample.Output",
			"no result: run Update first")
	}
	return r.output.DeepCopy(), nil
}
