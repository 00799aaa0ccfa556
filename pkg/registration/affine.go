package registration

import (
	"math"

	"volreg/pkg/regerr"
	"volreg/pkg/transform"
	"volreg/pkg/volume"
)

// Affine is the rigid/affine aligner. It estimates a global 4x4
// transform minimizing the sum of squared intensity differences between
// the reference image and the warped floating image, by multi-level
// coordinate descent over translation, rotation and (unless restricted
// to rigid) per-axis scale.
type Affine struct {
	engine
	rigid bool
}

// NewAffine returns an unconfigured rigid/affine aligner.
func NewAffine() *Affine {
	return &Affine{}
}

// SetRigid restricts the estimate to rotation plus translation without
// needing a parameter file. The parameter file's rigid switch still
// applies; either source enables the restriction. Any prior result is
// invalidated.
func (r *Affine) SetRigid(rigid bool) {
	r.rigid = rigid
	r.res = nil
}

// SetReferenceImage sets the fixed-space target. Requires a 3D scalar
// image; any prior result is invalidated.
func (r *Affine) SetReferenceImage(img *volume.Image) error {
	return r.setImage(&r.ref, img, "registration.Affine.SetReferenceImage", false)
}

// SetFloatingImage sets the image being aligned. Requires a 3D scalar
// image; any prior result is invalidated.
func (r *Affine) SetFloatingImage(img *volume.Image) error {
	return r.setImage(&r.flo, img, "registration.Affine.SetFloatingImage", false)
}

// TransformationMatrixForward returns the estimated forward transform,
// mapping reference coordinates into floating space.
func (r *Affine) TransformationMatrixForward() (*transform.Affine, error) {
	if err := r.checkDone("registration.Affine.TransformationMatrixForward"); err != nil {
		return nil, err
	}
	return r.res.forward.(*transform.Affine).DeepCopy(), nil
}

// TransformationMatrixBackward returns the inverse of the forward
// transform.
func (r *Affine) TransformationMatrixBackward() (*transform.Affine, error) {
	if err := r.checkDone("registration.Affine.TransformationMatrixBackward"); err != nil {
		return nil, err
	}
	return r.res.backward.(*transform.Affine).DeepCopy(), nil
}

// Update runs the alignment to completion. On failure the previous
// result, if any, is left untouched.
func (r *Affine) Update() error {
	const op = "registration.Affine.Update"
	if err := r.checkConfigured(op); err != nil {
		return err
	}
	params, err := r.loadParams()
	if err != nil {
		return err
	}
	if degenerateGeometry(r.ref) || degenerateGeometry(r.flo) {
		return regerr.New(regerr.RegistrationFailure, op,
			"degenerate image geometry %v vs %v", r.ref.Extents(), r.flo.Extents())
	}
	log := r.channels()

	nParams := 9
	if params.Affine.Rigid || r.rigid {
		nParams = 6
	}
	p := make([]float64, 9)
	ext := r.ref.Extents()
	cx := float64(ext[0]-1) / 2
	cy := float64(ext[1]-1) / 2
	cz := float64(ext[2]-1) / 2
	baseStride := costStride(ext)

	for level := params.Affine.Levels; level >= 1; level-- {
		stride := baseStride << (level - 1)
		step := params.Affine.InitialStep * float64(int(1)<<(level-1))
		cost := r.cost(p, cx, cy, cz, stride)
		log.Info("affine level %d: stride %d, initial cost %.6g", level, stride, cost)

		iter := 0
		for step > params.Affine.Tolerance {
			if iter >= params.Affine.MaxIterations {
				if level == 1 {
					return regerr.New(regerr.RegistrationFailure, op,
						"no convergence after %d iterations (residual step %.4g)",
						iter, step)
				}
				log.Warning("affine level %d: iteration cap reached, refining", level)
				break
			}
			improved := false
			for i := 0; i < nParams; i++ {
				for _, dir := range [2]float64{1, -1} {
					trial := make([]float64, len(p))
					copy(trial, p)
					trial[i] += dir * step * paramScales[i]
					if c := r.cost(trial, cx, cy, cz, stride); c < cost-1e-12 {
						p = trial
						cost = c
						improved = true
					}
				}
			}
			if !improved {
				step *= 0.5
			}
			iter++
		}
		log.Info("affine level %d: cost %.6g after %d iterations", level, cost, iter)
	}

	fwd := affineFromParams(p, cx, cy, cz)
	back, err := fwd.Inverse()
	if err != nil {
		return regerr.Wrap(regerr.RegistrationFailure, op, err,
			"estimated transform is not invertible")
	}
	output := warpAffine(r.ref, r.flo, fwd)
	sim := normalizedCorrelation(r.ref.Data(), output.Data())
	log.Info("affine registration converged, similarity %.4f", sim)

	r.res = &result{
		output:     output,
		forward:    fwd,
		backward:   back,
		similarity: sim,
		refGrid:    r.ref.DeepCopy(),
	}
	return nil
}

// paramScales converts the common step length into per-parameter units:
// voxels for translation, radians for rotation, relative units for scale.
var paramScales = [9]float64{1, 1, 1, 0.02, 0.02, 0.02, 0.01, 0.01, 0.01}

// costStride picks the sampling stride so the cost sums at most roughly
// 32 samples per axis.
func costStride(ext []int) int {
	maxExt := 0
	for _, e := range ext {
		if e > maxExt {
			maxExt = e
		}
	}
	s := (maxExt + 31) / 32
	if s < 1 {
		s = 1
	}
	return s
}

// cost is the mean squared intensity difference between the reference
// and the warped floating image over a strided sample grid.
func (r *Affine) cost(p []float64, cx, cy, cz float64, stride int) float64 {
	a := affineFromParams(p, cx, cy, cz)
	ext := r.ref.Extents()
	var sum float64
	var n int
	for z := 0; z < ext[2]; z += stride {
		for y := 0; y < ext[1]; y += stride {
			for x := 0; x < ext[0]; x += stride {
				px, py, pz := a.Apply(float64(x), float64(y), float64(z))
				d := r.ref.At(x, y, z) - sampleLinear(r.flo, px, py, pz)
				sum += d * d
				n++
			}
		}
	}
	return sum / float64(n)
}

// affineFromParams builds the transform from the nine search parameters:
// translation tx ty tz, rotation rx ry rz (radians, applied as Rz Ry Rx)
// and per-axis scale deltas, all about the reference center (cx cy cz).
func affineFromParams(p []float64, cx, cy, cz float64) *transform.Affine {
	sx, sy, sz := 1+p[6], 1+p[7], 1+p[8]
	rot := rotation3(p[3], p[4], p[5])

	var lin [3][3]float64
	scale := [3]float64{sx, sy, sz}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			lin[i][j] = rot[i][j] * scale[j]
		}
	}

	c := [3]float64{cx, cy, cz}
	t := [3]float64{p[0], p[1], p[2]}
	var tm [4][4]float64
	for i := 0; i < 3; i++ {
		copy(tm[i][:3], lin[i][:])
		off := t[i] + c[i]
		for j := 0; j < 3; j++ {
			off -= lin[i][j] * c[j]
		}
		tm[i][3] = off
	}
	tm[3][3] = 1
	return transform.AffineFromArray(tm)
}

// rotation3 returns Rz * Ry * Rx for the given Euler angles.
func rotation3(rx, ry, rz float64) [3][3]float64 {
	cxr, sxr := math.Cos(rx), math.Sin(rx)
	cyr, syr := math.Cos(ry), math.Sin(ry)
	czr, szr := math.Cos(rz), math.Sin(rz)

	return [3][3]float64{
		{czr * cyr, czr*syr*sxr - szr*cxr, czr*syr*cxr + szr*sxr},
		{szr * cyr, szr*syr*sxr + czr*cxr, szr*syr*cxr - czr*sxr},
		{-syr, cyr * sxr, cyr * cxr},
	}
}
