package transform

import (
	"volreg/pkg/regerr"
	"volreg/pkg/volume"
)

// MaxChain is the largest transformation chain Compose accepts.
const MaxChain = 5

// Compose combines an ordered chain of one to five transformations into
// a single deformation field over the reference grid. Applying the chain
// to a coordinate means applying the first transformation, then feeding
// the result into the second, and so on. Each element may independently
// be an affine, a displacement field or a deformation field; the
// per-element coordinate update is selected by its explicit Kind tag.
func Compose(chain []Transformation, ref *volume.Image) (*DeformationField, error) {
	const op = "transform.Compose"
	if len(chain) == 0 || len(chain) > MaxChain {
		return nil, regerr.New(regerr.UnsupportedArity, op,
			"%d transformations outside supported range 1..%d", len(chain), MaxChain)
	}
	for i, t := range chain {
		if t == nil {
			return nil, regerr.New(regerr.TypeMismatch, op, "element %d is nil", i)
		}
	}
	if ref == nil || !ref.Is3D() {
		return nil, regerr.New(regerr.TypeMismatch, op, "reference is not a 3D scalar image")
	}
	if len(chain) == 1 {
		return chain[0].AsDeformation(ref)
	}

	out, err := volume.NewTensorFromImage(ref)
	if err != nil {
		return nil, err
	}
	ext := ref.Extents()
	for z := 0; z < ext[2]; z++ {
		for y := 0; y < ext[1]; y++ {
			for x := 0; x < ext[0]; x++ {
				px, py, pz := float64(x), float64(y), float64(z)
				for i, t := range chain {
					px, py, pz, err = applyElement(t, px, py, pz)
					if err != nil {
						return nil, regerr.Wrap(regerr.KindOf(err), op, err,
							"element %d (%s)", i, t.TransformKind())
					}
				}
				out.SetVectorAt(x, y, z, [3]float64{px, py, pz})
			}
		}
	}
	return &DeformationField{Field: out}, nil
}

// applyElement advances a coordinate through one chain element, selected
// by the element's tag: matrix apply, add sampled displacement, or
// substitute sampled deformation coordinate.
func applyElement(t Transformation, x, y, z float64) (float64, float64, float64, error) {
	switch t.TransformKind() {
	case KindAffine:
		a, ok := t.(*Affine)
		if !ok {
			return 0, 0, 0, tagMismatch(t)
		}
		ox, oy, oz := a.Apply(x, y, z)
		return ox, oy, oz, nil
	case KindDisplacement:
		d, ok := t.(*DisplacementField)
		if !ok {
			return 0, 0, 0, tagMismatch(t)
		}
		ox, oy, oz := d.Apply(x, y, z)
		return ox, oy, oz, nil
	case KindDeformation:
		d, ok := t.(*DeformationField)
		if !ok {
			return 0, 0, 0, tagMismatch(t)
		}
		ox, oy, oz := d.Apply(x, y, z)
		return ox, oy, oz, nil
	default:
		return 0, 0, 0, regerr.New(regerr.TypeMismatch, "transform.Compose",
			"unknown transformation kind %d", int(t.TransformKind()))
	}
}

func tagMismatch(t Transformation) error {
	return regerr.New(regerr.TypeMismatch, "transform.Compose",
		"element tagged %s has a different concrete type", t.TransformKind())
}
