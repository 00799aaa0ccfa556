package volume

import (
	"fmt"

	"volreg/pkg/regerr"
)

// TensorComponents is the fixed vector-component count of a tensor image.
const TensorComponents = 3

// TensorImage is a 3D vector image: a rank-5 Image whose trailing axis
// holds the fixed three vector components (x, y, z). The spatial layout
// matches the scalar Image, with the component axis slowest.
type TensorImage struct {
	Image
}

// NewTensorFromComponents builds a tensor image from three scalar 3D
// component images, which must share identical spatial dimensions.
func NewTensorFromComponents(x, y, z *Image) (*TensorImage, error) {
	const op = "volume.NewTensorFromComponents"
	comps := []*Image{x, y, z}
	for i, c := range comps {
		if c == nil || !c.Is3D() {
			return nil, regerr.New(regerr.TypeMismatch, op,
				"component %d is not a 3D scalar image", i)
		}
		if c.dims != x.dims {
			return nil, regerr.New(regerr.DimensionMismatch, op,
				"component %d dims %v do not match %v", i, c.Extents(), x.Extents())
		}
	}
	t, err := NewTensorFromImage(x)
	if err != nil {
		return nil, err
	}
	n := x.NumVoxels()
	for i, c := range comps {
		copy(t.data[i*n:(i+1)*n], c.data)
	}
	return t, nil
}

// NewTensorFromImage allocates a zero-filled tensor image shaped on the
// spatial dimensions of a 3D scalar image. The source voxel values are
// not used; only its grid defines the output shape.
func NewTensorFromImage(src *Image) (*TensorImage, error) {
	const op = "volume.NewTensorFromImage"
	if src == nil || !src.Is3D() {
		return nil, regerr.New(regerr.TypeMismatch, op, "source is not a 3D scalar image")
	}
	t := &TensorImage{}
	t.dtype = src.dtype
	t.dims[0] = 5
	t.dims[1] = src.dims[1]
	t.dims[2] = src.dims[2]
	t.dims[3] = src.dims[3]
	t.dims[4] = 1
	t.dims[5] = TensorComponents
	t.data = make([]float64, src.NumVoxels()*TensorComponents)
	return t, nil
}

// IsTensor reports whether the image has the rank-5, three-component
// shape of a tensor image.
func (img *Image) IsTensor() bool {
	return img.Rank() == 5 && img.dims[4] == 1 && img.dims[5] == TensorComponents
}

// SpatialExtents returns the nx, ny, nz grid extents of the tensor.
func (t *TensorImage) SpatialExtents() (nx, ny, nz int) {
	return int(t.dims[1]), int(t.dims[2]), int(t.dims[3])
}

// spatialVoxels is the voxel count of one component.
func (t *TensorImage) spatialVoxels() int {
	nx, ny, nz := t.SpatialExtents()
	return nx * ny * nz
}

func (t *TensorImage) index4(x, y, z, c int) int {
	nx, ny := int(t.dims[1]), int(t.dims[2])
	return c*t.spatialVoxels() + x + nx*(y+ny*z)
}

// VectorAt returns the three-component vector stored at a grid point.
func (t *TensorImage) VectorAt(x, y, z int) [TensorComponents]float64 {
	var v [TensorComponents]float64
	for c := range v {
		v[c] = t.data[t.index4(x, y, z, c)]
	}
	return v
}

// SetVectorAt stores a three-component vector at a grid point.
func (t *TensorImage) SetVectorAt(x, y, z int, v [TensorComponents]float64) {
	for c := range v {
		t.data[t.index4(x, y, z, c)] = v[c]
	}
}

// ComponentAt returns one vector component at a grid point.
func (t *TensorImage) ComponentAt(x, y, z, c int) float64 {
	return t.data[t.index4(x, y, z, c)]
}

// Component extracts one vector component as an independent scalar 3D image.
func (t *TensorImage) Component(c int) (*Image, error) {
	if c < 0 || c >= TensorComponents {
		return nil, regerr.New(regerr.TypeMismatch, "volume.Component",
			"component %d outside 0..%d", c, TensorComponents-1)
	}
	nx, ny, nz := t.SpatialExtents()
	out, err := NewWithDims([]int{nx, ny, nz}, t.dtype)
	if err != nil {
		return nil, err
	}
	n := t.spatialVoxels()
	copy(out.data, t.data[c*n:(c+1)*n])
	return out, nil
}

// DeepCopy returns a fully independent copy of the tensor image.
func (t *TensorImage) DeepCopy() *TensorImage {
	cp := &TensorImage{}
	cp.dims = t.dims
	cp.dtype = t.dtype
	cp.data = make([]float64, len(t.data))
	copy(cp.data, t.data)
	return cp
}

// SaveSplitXYZ writes the tensor as three scalar component files named
// <base>_x.vol, <base>_y.vol and <base>_z.vol.
func (t *TensorImage) SaveSplitXYZ(base string) error {
	suffixes := []string{"x", "y", "z"}
	for c, s := range suffixes {
		comp, err := t.Component(c)
		if err != nil {
			return err
		}
		if err := comp.Save(fmt.Sprintf("%s_%s.vol", base, s)); err != nil {
			return err
		}
	}
	return nil
}

// LoadTensor reads a tensor image from a volume file, checking that the
// stored shape is a valid three-component field.
func LoadTensor(path string) (*TensorImage, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	if !img.IsTensor() {
		return nil, regerr.New(regerr.TypeMismatch, "volume.LoadTensor",
			"%q does not hold a three-component tensor image", path)
	}
	return &TensorImage{Image: *img}, nil
}
