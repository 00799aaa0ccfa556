// Package registration implements the volreg registration engines: a
// rigid/affine aligner estimating a global 4x4 transform and a
// deformable aligner estimating a dense displacement field. Both follow
// the same lifecycle: configure reference and floating images (plus an
// optional parameter file), run Update, then read the estimated
// transformations and the resampled output.
package registration

import (
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"volreg/pkg/regerr"
)

// Params holds the algorithm configuration loaded from a YAML parameter
// file. Absent fields keep their built-in defaults.
type Params struct {
	// Affine parameters steer the rigid/affine aligner.
	Affine struct {
		// MaxIterations bounds the coordinate-descent sweeps per level.
		MaxIterations int `yaml:"maxIterations" validate:"gte=1"`

		// Levels is the number of multi-resolution levels.
		Levels int `yaml:"levels" validate:"gte=1,lte=4"`

		// InitialStep is the starting parameter step in voxels/radians.
		InitialStep float64 `yaml:"initialStep" validate:"gt=0"`

		// Tolerance is the step size below which the search is converged.
		Tolerance float64 `yaml:"tolerance" validate:"gt=0"`

		// Rigid restricts the estimate to rotation plus translation.
		Rigid bool `yaml:"rigid"`
	} `yaml:"affine"`

	// Deformable parameters steer the dense aligner.
	Deformable struct {
		// MaxIterations bounds the field update iterations.
		MaxIterations int `yaml:"maxIterations" validate:"gte=1"`

		// StepSize scales each field update.
		StepSize float64 `yaml:"stepSize" validate:"gt=0"`

		// SmoothingSigma regularizes the field after each update (voxels).
		SmoothingSigma float64 `yaml:"smoothingSigma" validate:"gte=0"`

		// Tolerance is the relative cost improvement below which the
		// iteration is converged.
		Tolerance float64 `yaml:"tolerance" validate:"gt=0"`
	} `yaml:"deformable"`
}

// DefaultParams returns the built-in algorithm configuration.
func DefaultParams() *Params {
	p := &Params{}
	p.Affine.MaxIterations = 100
	p.Affine.Levels = 3
	p.Affine.InitialStep = 4.0
	p.Affine.Tolerance = 0.01
	p.Affine.Rigid = false

	p.Deformable.MaxIterations = 50
	p.Deformable.StepSize = 1.0
	p.Deformable.SmoothingSigma = 1.5
	p.Deformable.Tolerance = 1e-4
	return p
}

// LoadParams reads a YAML parameter file over the defaults and validates
// the result. An unreadable file fails with IOError, out-of-range values
// with ConfigurationError.
func LoadParams(path string) (*Params, error) {
	const op = "registration.LoadParams"
	p := DefaultParams()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, regerr.Wrap(regerr.IOError, op, err, "cannot read %q", path)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, regerr.Wrap(regerr.IOError, op, err, "cannot parse %q", path)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the parameter ranges.
func (p *Params) Validate() error {
	if err := validator.New().Struct(p); err != nil {
		return regerr.Wrap(regerr.ConfigurationError, "registration.Params.Validate",
			err, "parameter out of range")
	}
	return nil
}
