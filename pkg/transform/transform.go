// Package transform implements the spatial transformations of volreg:
// 4x4 affine matrices, displacement fields and deformation fields, plus
// composition of a transformation chain into a single deformation field.
//
// Every transformation variant can be materialized as a deformation
// field over a reference grid: a deformation field stores, per voxel,
// the absolute coordinate that voxel maps to, while a displacement field
// stores the offset from the identity grid. Coordinates are continuous
// voxel indices of the reference image.
package transform

import (
	"volreg/pkg/volume"
)

// Kind is the explicit type tag of a transformation chain element. The
// per-element coordinate update during composition is selected by this
// tag, never by runtime type inspection of the element.
type Kind int

const (
	KindAffine Kind = iota + 1
	KindDisplacement
	KindDeformation
)

// String returns the tag name.
func (k Kind) String() string {
	switch k {
	case KindAffine:
		return "affine"
	case KindDisplacement:
		return "displacement"
	case KindDeformation:
		return "deformation"
	default:
		return "unknown"
	}
}

// Transformation is the capability shared by affine matrices,
// displacement fields and deformation fields.
type Transformation interface {
	// TransformKind returns the explicit variant tag.
	TransformKind() Kind

	// AsDeformation materializes the transformation as a deformation
	// field over the grid of the reference image.
	AsDeformation(ref *volume.Image) (*DeformationField, error)
}
