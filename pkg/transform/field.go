package transform

import (
	"volreg/pkg/interpolation"
	"volreg/pkg/regerr"
	"volreg/pkg/volume"
)

// DisplacementField stores, per voxel, the offset vector from the
// identity grid. It is both a tensor image and a transformation.
type DisplacementField struct {
	Field *volume.TensorImage
}

// DeformationField stores, per voxel, the absolute coordinate the voxel
// maps to. It is both a tensor image and a transformation.
type DeformationField struct {
	Field *volume.TensorImage
}

// NewDisplacement wraps a tensor image as a displacement field.
func NewDisplacement(t *volume.TensorImage) *DisplacementField {
	return &DisplacementField{Field: t}
}

// NewDeformation wraps a tensor image as a deformation field.
func NewDeformation(t *volume.TensorImage) *DeformationField {
	return &DeformationField{Field: t}
}

// DisplacementFromComponents builds a displacement field from three
// scalar component images sharing identical spatial dimensions.
func DisplacementFromComponents(x, y, z *volume.Image) (*DisplacementField, error) {
	t, err := volume.NewTensorFromComponents(x, y, z)
	if err != nil {
		return nil, err
	}
	return &DisplacementField{Field: t}, nil
}

// DeformationFromComponents builds a deformation field from three scalar
// component images sharing identical spatial dimensions.
func DeformationFromComponents(x, y, z *volume.Image) (*DeformationField, error) {
	t, err := volume.NewTensorFromComponents(x, y, z)
	if err != nil {
		return nil, err
	}
	return &DeformationField{Field: t}, nil
}

// LoadDisplacement reads a displacement field from a volume file.
func LoadDisplacement(path string) (*DisplacementField, error) {
	t, err := volume.LoadTensor(path)
	if err != nil {
		return nil, err
	}
	return &DisplacementField{Field: t}, nil
}

// LoadDeformation reads a deformation field from a volume file.
func LoadDeformation(path string) (*DeformationField, error) {
	t, err := volume.LoadTensor(path)
	if err != nil {
		return nil, err
	}
	return &DeformationField{Field: t}, nil
}

// TransformKind implements Transformation.
func (d *DisplacementField) TransformKind() Kind {
	return KindDisplacement
}

// AsDeformation adds the identity-grid coordinate to every offset. The
// field grid must match the reference grid.
func (d *DisplacementField) AsDeformation(ref *volume.Image) (*DeformationField, error) {
	const op = "transform.DisplacementField.AsDeformation"
	if err := checkFieldGrid(op, d.Field, ref); err != nil {
		return nil, err
	}
	out := d.Field.DeepCopy()
	nx, ny, nz := out.SpatialExtents()
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				v := out.VectorAt(x, y, z)
				v[0] += float64(x)
				v[1] += float64(y)
				v[2] += float64(z)
				out.SetVectorAt(x, y, z, v)
			}
		}
	}
	return &DeformationField{Field: out}, nil
}

// AsDisplacement converts a deformation field back to offsets from the
// identity grid.
func (d *DeformationField) AsDisplacement() *DisplacementField {
	out := d.Field.DeepCopy()
	nx, ny, nz := out.SpatialExtents()
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				v := out.VectorAt(x, y, z)
				v[0] -= float64(x)
				v[1] -= float64(y)
				v[2] -= float64(z)
				out.SetVectorAt(x, y, z, v)
			}
		}
	}
	return &DisplacementField{Field: out}
}

// TransformKind implements Transformation.
func (d *DeformationField) TransformKind() Kind {
	return KindDeformation
}

// AsDeformation returns an independent copy of the field. The field grid
// must match the reference grid; re-gridding is not performed.
func (d *DeformationField) AsDeformation(ref *volume.Image) (*DeformationField, error) {
	const op = "transform.DeformationField.AsDeformation"
	if err := checkFieldGrid(op, d.Field, ref); err != nil {
		return nil, err
	}
	return &DeformationField{Field: d.Field.DeepCopy()}, nil
}

// Apply maps a continuous coordinate through the field: a displacement
// adds its sampled offset.
func (d *DisplacementField) Apply(x, y, z float64) (float64, float64, float64) {
	v := interpolation.SampleVector(d.Field, x, y, z)
	return x + v[0], y + v[1], z + v[2]
}

// Apply maps a continuous coordinate through the field: a deformation
// substitutes its sampled target coordinate.
func (d *DeformationField) Apply(x, y, z float64) (float64, float64, float64) {
	v := interpolation.SampleVector(d.Field, x, y, z)
	return v[0], v[1], v[2]
}

func checkFieldGrid(op string, field *volume.TensorImage, ref *volume.Image) error {
	if ref == nil || !ref.Is3D() {
		return regerr.New(regerr.TypeMismatch, op, "reference is not a 3D scalar image")
	}
	nx, ny, nz := field.SpatialExtents()
	ext := ref.Extents()
	if nx != ext[0] || ny != ext[1] || nz != ext[2] {
		return regerr.New(regerr.DimensionMismatch, op,
			"field grid %dx%dx%d does not match reference %v", nx, ny, nz, ext)
	}
	return nil
}
