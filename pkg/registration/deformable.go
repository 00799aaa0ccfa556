package registration

import (
	"math"

	"volreg/internal/series"
	"volreg/pkg/filter"
	"volreg/pkg/regerr"
	"volreg/pkg/transform"
	"volreg/pkg/volume"
)

// Deformable is the non-rigid aligner. It estimates a dense forward
// displacement field by iterative demons-style updates: each iteration
// warps the floating image through the current field, pushes the field
// along the reference gradient weighted by the intensity residual, and
// regularizes the field with Gaussian smoothing.
type Deformable struct {
	engine
	refTimePoint int
	floTimePoint int
	initAffine   *transform.Affine
}

// NewDeformable returns an unconfigured deformable aligner. Time points
// default to the first volume of each series.
func NewDeformable() *Deformable {
	return &Deformable{refTimePoint: 1, floTimePoint: 1}
}

// SetReferenceImage sets the fixed-space target: a 3D scalar image or a
// rank-4 multi-volume series. Any prior result is invalidated.
func (r *Deformable) SetReferenceImage(img *volume.Image) error {
	return r.setImage(&r.ref, img, "registration.Deformable.SetReferenceImage", true)
}

// SetFloatingImage sets the image being aligned: a 3D scalar image or a
// rank-4 multi-volume series. Any prior result is invalidated.
func (r *Deformable) SetFloatingImage(img *volume.Image) error {
	return r.setImage(&r.flo, img, "registration.Deformable.SetFloatingImage", true)
}

// SetReferenceTimePoint selects the 1-based volume of a reference series.
func (r *Deformable) SetReferenceTimePoint(t int) {
	r.refTimePoint = t
	r.res = nil
}

// SetFloatingTimePoint selects the 1-based volume of a floating series.
func (r *Deformable) SetFloatingTimePoint(t int) {
	r.floTimePoint = t
	r.res = nil
}

// SetInitialAffineTransformation seeds the field with a global transform
// estimated beforehand, typically by the rigid/affine aligner.
func (r *Deformable) SetInitialAffineTransformation(a *transform.Affine) {
	r.initAffine = a
	r.res = nil
}

// Update runs the alignment to completion. On failure the previous
// result, if any, is left untouched.
func (r *Deformable) Update() error {
	const op = "registration.Deformable.Update"
	if err := r.checkConfigured(op); err != nil {
		return err
	}
	params, err := r.loadParams()
	if err != nil {
		return err
	}
	ref3, err := series.At(r.ref, r.refTimePoint)
	if err != nil {
		return err
	}
	flo3, err := series.At(r.flo, r.floTimePoint)
	if err != nil {
		return err
	}
	if degenerateGeometry(ref3) || degenerateGeometry(flo3) {
		return regerr.New(regerr.RegistrationFailure, op,
			"degenerate image geometry %v vs %v", ref3.Extents(), flo3.Extents())
	}
	log := r.channels()

	disp, err := r.initialField(ref3)
	if err != nil {
		return err
	}
	ext := ref3.Extents()
	nx, ny, nz := ext[0], ext[1], ext[2]
	gx, gy, gz := filter.Gradient3D(ref3.Data(), nx, ny, nz)

	var warped *volume.Image
	prev := math.Inf(1)
	converged := false
	for iter := 0; iter < params.Deformable.MaxIterations; iter++ {
		var cost float64
		warped, cost = warpField(ref3, flo3, disp)
		if cost <= 1e-12 {
			converged = true
			break
		}
		if iter > 0 {
			if cost > prev {
				return regerr.New(regerr.RegistrationFailure, op,
					"energy diverged at iteration %d (%.6g -> %.6g)", iter, prev, cost)
			}
			if (prev-cost)/prev < params.Deformable.Tolerance {
				converged = true
				break
			}
		}
		log.Info("deformable iteration %d: cost %.6g", iter, cost)

		r.demonsStep(ref3, warped, disp, gx, gy, gz, params.Deformable.StepSize)
		smoothField(disp, params.Deformable.SmoothingSigma)
		prev = cost
	}
	if !converged {
		return regerr.New(regerr.RegistrationFailure, op,
			"no convergence after %d iterations", params.Deformable.MaxIterations)
	}

	forward := transform.NewDisplacement(disp)
	backward := transform.NewDisplacement(negatedField(disp))
	sim := normalizedCorrelation(ref3.Data(), warped.Data())
	log.Info("deformable registration converged, similarity %.4f", sim)

	r.res = &result{
		output:     warped,
		forward:    forward,
		backward:   backward,
		similarity: sim,
		refGrid:    ref3,
	}
	return nil
}

// initialField builds the starting displacement: zero, or the expansion
// of the initial affine when one was set.
func (r *Deformable) initialField(ref3 *volume.Image) (*volume.TensorImage, error) {
	if r.initAffine == nil {
		return volume.NewTensorFromImage(ref3)
	}
	def, err := r.initAffine.AsDeformation(ref3)
	if err != nil {
		return nil, err
	}
	return def.AsDisplacement().Field, nil
}

// warpField samples flo at every deformed reference voxel and returns
// the warped image together with the mean squared residual.
func warpField(ref, flo *volume.Image, disp *volume.TensorImage) (*volume.Image, float64) {
	out := ref.DeepCopy()
	ext := ref.Extents()
	var sum float64
	for z := 0; z < ext[2]; z++ {
		for y := 0; y < ext[1]; y++ {
			for x := 0; x < ext[0]; x++ {
				v := disp.VectorAt(x, y, z)
				w := sampleLinear(flo, float64(x)+v[0], float64(y)+v[1], float64(z)+v[2])
				out.Set(x, y, z, w)
				d := w - ref.At(x, y, z)
				sum += d * d
			}
		}
	}
	return out, sum / float64(ref.NumVoxels())
}

// demonsStep pushes the field along the reference gradient weighted by
// the intensity residual.
func (r *Deformable) demonsStep(ref, warped *volume.Image, disp *volume.TensorImage, gx, gy, gz []float64, step float64) {
	ext := ref.Extents()
	i := 0
	for z := 0; z < ext[2]; z++ {
		for y := 0; y < ext[1]; y++ {
			for x := 0; x < ext[0]; x++ {
				diff := warped.At(x, y, z) - ref.At(x, y, z)
				g2 := gx[i]*gx[i] + gy[i]*gy[i] + gz[i]*gz[i]
				denom := g2 + diff*diff
				if denom > 1e-9 {
					f := -step * diff / denom
					v := disp.VectorAt(x, y, z)
					v[0] += f * gx[i]
					v[1] += f * gy[i]
					v[2] += f * gz[i]
					disp.SetVectorAt(x, y, z, v)
				}
				i++
			}
		}
	}
}

// smoothField regularizes each field component with a Gaussian.
func smoothField(disp *volume.TensorImage, sigma float64) {
	if sigma <= 0 {
		return
	}
	nx, ny, nz := disp.SpatialExtents()
	n := nx * ny * nz
	data := disp.Data()
	for c := 0; c < volume.TensorComponents; c++ {
		smoothed := filter.Gaussian3D(data[c*n:(c+1)*n], nx, ny, nz, sigma)
		copy(data[c*n:(c+1)*n], smoothed)
	}
}

func negatedField(disp *volume.TensorImage) *volume.TensorImage {
	out := disp.DeepCopy()
	data := out.Data()
	for i := range data {
		data[i] = -data[i]
	}
	return out
}
