package registration

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"volreg/pkg/diag"
	"volreg/pkg/interpolation"
	"volreg/pkg/regerr"
	"volreg/pkg/transform"
	"volreg/pkg/volume"
)

// result holds the outcome of exactly one engine run. Every Update
// builds a fresh result; a failed Update leaves the previous one intact.
type result struct {
	output     *volume.Image
	forward    transform.Transformation
	backward   transform.Transformation
	similarity float64
	refGrid    *volume.Image
}

// engine carries the configuration shared by the two aligners.
type engine struct {
	ref       *volume.Image
	flo       *volume.Image
	paramFile string
	log       *diag.Channels
	res       *result
}

func (e *engine) setImage(dst **volume.Image, img *volume.Image, op string, allowSeries bool) error {
	if img == nil || !(img.Is3D() || (allowSeries && img.Rank() == 4)) {
		want := "a 3D scalar image"
		if allowSeries {
			want = "a 3D scalar image or a rank-4 series"
		}
		return regerr.New(regerr.TypeMismatch, op, "input is not %s", want)
	}
	*dst = img
	e.res = nil
	return nil
}

// SetParameterFile sets the path of the algorithm parameter file. An
// empty path restores the built-in defaults. The file is read during
// Update.
func (e *engine) SetParameterFile(path string) {
	e.paramFile = path
	e.res = nil
}

// SetDiagnostics injects the diagnostic channels used during Update.
func (e *engine) SetDiagnostics(log *diag.Channels) {
	e.log = log
}

func (e *engine) channels() *diag.Channels {
	if e.log == nil {
		return diag.Discard()
	}
	return e.log
}

func (e *engine) loadParams() (*Params, error) {
	if e.paramFile == "" {
		return DefaultParams(), nil
	}
	return LoadParams(e.paramFile)
}

func (e *engine) checkConfigured(op string) error {
	if e.ref == nil {
		return regerr.New(regerr.ConfigurationError, op, "reference image is not set")
	}
	if e.flo == nil {
		return regerr.New(regerr.ConfigurationError, op, "floating image is not set")
	}
	return nil
}

func (e *engine) checkDone(op string) error {
	if e.res == nil {
		return regerr.New(regerr.ConfigurationError, op, "no result: run Update first")
	}
	return nil
}

// Output returns the floating image warped into reference space by the
// estimated forward transformation.
func (e *engine) Output() (*volume.Image, error) {
	if err := e.checkDone("registration.Output"); err != nil {
		return nil, err
	}
	return e.res.output.DeepCopy(), nil
}

// Similarity returns the normalized cross-correlation between the
// reference and the registered output of the last run.
func (e *engine) Similarity() (float64, error) {
	if err := e.checkDone("registration.Similarity"); err != nil {
		return 0, err
	}
	return e.res.similarity, nil
}

// DeformationFieldForward materializes the forward transformation as a
// deformation field over the reference grid.
func (e *engine) DeformationFieldForward() (*transform.DeformationField, error) {
	if err := e.checkDone("registration.DeformationFieldForward"); err != nil {
		return nil, err
	}
	return e.res.forward.AsDeformation(e.res.refGrid)
}

// DeformationFieldBackward materializes the backward transformation as a
// deformation field over the reference grid.
func (e *engine) DeformationFieldBackward() (*transform.DeformationField, error) {
	if err := e.checkDone("registration.DeformationFieldBackward"); err != nil {
		return nil, err
	}
	return e.res.backward.AsDeformation(e.res.refGrid)
}

// DisplacementFieldForward derives the forward displacement field from
// the estimated transformation.
func (e *engine) DisplacementFieldForward() (*transform.DisplacementField, error) {
	def, err := e.DeformationFieldForward()
	if err != nil {
		return nil, err
	}
	return def.AsDisplacement(), nil
}

// DisplacementFieldBackward derives the backward displacement field from
// the estimated transformation.
func (e *engine) DisplacementFieldBackward() (*transform.DisplacementField, error) {
	def, err := e.DeformationFieldBackward()
	if err != nil {
		return nil, err
	}
	return def.AsDisplacement(), nil
}

// sampleLinear samples an image with the default (linear) kernel and
// zero background.
func sampleLinear(img *volume.Image, x, y, z float64) float64 {
	return interpolation.Sample(img, x, y, z, interpolation.Linear, 0)
}

// warpAffine resamples flo onto the ref grid through an affine with the
// default kernel.
func warpAffine(ref, flo *volume.Image, a *transform.Affine) *volume.Image {
	out := ref.DeepCopy()
	ext := ref.Extents()
	for z := 0; z < ext[2]; z++ {
		for y := 0; y < ext[1]; y++ {
			for x := 0; x < ext[0]; x++ {
				px, py, pz := a.Apply(float64(x), float64(y), float64(z))
				out.Set(x, y, z, sampleLinear(flo, px, py, pz))
			}
		}
	}
	return out
}

// normalizedCorrelation is the similarity reported after a run.
func normalizedCorrelation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	c := stat.Correlation(a, b, nil)
	if math.IsNaN(c) {
		// Zero variance on either side; identical buffers still count
		// as a perfect match.
		for i := range a {
			if a[i] != b[i] {
				return 0
			}
		}
		return 1
	}
	return c
}

func degenerateGeometry(img *volume.Image) bool {
	for _, e := range img.Extents() {
		if e < 2 {
			return true
		}
	}
	return false
}
