// Package volume implements the in-memory volumetric image used throughout
// volreg: an N-dimensional scalar or vector image carrying a dimension
// vector, a declared voxel datatype and a contiguous voxel buffer.
//
// The dimension vector follows the volumetric-header convention: entry 0
// holds the rank and entries 1..rank hold the extent of each axis, with
// the x axis varying fastest in the buffer. Voxel values are held
// canonically as float64 and converted to the declared datatype only at
// the file/export boundary; changing the datatype is always a
// value-preserving cast, never a reinterpretation of raw bytes.
package volume

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"volreg/pkg/regerr"
)

// MaxDims is the length of the dimension vector (rank entry included).
const MaxDims = 8

// MaxHeaderDump is the largest number of images a joint header dump accepts.
const MaxHeaderDump = 5

// DataType identifies the declared voxel datatype of an image.
type DataType int

// Supported voxel datatypes.
const (
	UInt8 DataType = iota + 1
	Int8
	UInt16
	Int16
	UInt32
	Int32
	UInt64
	Int64
	Float32
	Float64
)

// String returns the datatype name used in header dumps and files.
func (d DataType) String() string {
	switch d {
	case UInt8:
		return "uint8"
	case Int8:
		return "int8"
	case UInt16:
		return "uint16"
	case Int16:
		return "int16"
	case UInt32:
		return "uint32"
	case Int32:
		return "int32"
	case UInt64:
		return "uint64"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// Size returns the storage width of one voxel in bytes.
func (d DataType) Size() int {
	switch d {
	case UInt8, Int8:
		return 1
	case UInt16, Int16:
		return 2
	case UInt32, Int32, Float32:
		return 4
	case UInt64, Int64, Float64:
		return 8
	default:
		return 0
	}
}

func (d DataType) valid() bool {
	return d >= UInt8 && d <= Float64
}

// Image is an N-dimensional volumetric image. The zero value is an empty
// image with no voxel data; construct with New3D, NewWithDims or LoadImage.
type Image struct {
	dims  [MaxDims]int32
	dtype DataType
	data  []float64
}

// NewImage returns an empty image with no dimensions and no voxel data.
func NewImage() *Image {
	return &Image{dtype: Float32}
}

// New3D returns a zero-filled 3D float32 image of the given extents.
func New3D(nx, ny, nz int) *Image {
	img, _ := NewWithDims([]int{nx, ny, nz}, Float32)
	return img
}

// NewWithDims returns a zero-filled image with the given axis extents
// (rank entry excluded) and datatype.
func NewWithDims(extents []int, dtype DataType) (*Image, error) {
	const op = "volume.NewWithDims"
	if len(extents) == 0 || len(extents) > MaxDims-1 {
		return nil, regerr.New(regerr.DimensionMismatch, op,
			"rank %d outside 1..%d", len(extents), MaxDims-1)
	}
	if !dtype.valid() {
		return nil, regerr.New(regerr.TypeMismatch, op, "invalid datatype %d", int(dtype))
	}
	img := &Image{dtype: dtype}
	img.dims[0] = int32(len(extents))
	n := 1
	for i, e := range extents {
		if e < 1 {
			return nil, regerr.New(regerr.DimensionMismatch, op,
				"axis %d extent %d is not positive", i, e)
		}
		img.dims[i+1] = int32(e)
		n *= e
	}
	img.data = make([]float64, n)
	return img, nil
}

// Rank returns the number of axes.
func (img *Image) Rank() int {
	return int(img.dims[0])
}

// Dims returns the full dimension vector: entry 0 is the rank, entries
// 1..rank are the axis extents, the remainder is zero.
func (img *Image) Dims() [MaxDims]int32 {
	return img.dims
}

// Extents returns just the axis extents, length Rank().
func (img *Image) Extents() []int {
	out := make([]int, img.Rank())
	for i := range out {
		out[i] = int(img.dims[i+1])
	}
	return out
}

// NumVoxels returns the product of the axis extents.
func (img *Image) NumVoxels() int {
	return len(img.data)
}

// Is3D reports whether the image is a scalar 3D volume.
func (img *Image) Is3D() bool {
	return img.Rank() == 3
}

// DataType returns the declared voxel datatype.
func (img *Image) DataType() DataType {
	return img.dtype
}

// Data returns the canonical voxel buffer. The slice aliases the image
// storage; callers that need an independent copy should DeepCopy first.
func (img *Image) Data() []float64 {
	return img.data
}

// index3 maps a 3D voxel coordinate to its buffer offset (x fastest).
func (img *Image) index3(x, y, z int) int {
	nx, ny := int(img.dims[1]), int(img.dims[2])
	return x + nx*(y+ny*z)
}

// At returns the voxel value at a 3D coordinate. No bounds checking.
func (img *Image) At(x, y, z int) float64 {
	return img.data[img.index3(x, y, z)]
}

// Set stores a voxel value at a 3D coordinate. No bounds checking.
func (img *Image) Set(x, y, z int, v float64) {
	img.data[img.index3(x, y, z)] = v
}

// DeepCopy returns a fully independent copy: same metadata, new buffer.
func (img *Image) DeepCopy() *Image {
	cp := &Image{dims: img.dims, dtype: img.dtype}
	cp.data = make([]float64, len(img.data))
	copy(cp.data, img.data)
	return cp
}

// sameShape reports whether two images have identical dimension vectors.
func (img *Image) sameShape(other *Image) bool {
	return img.dims == other.dims
}

// Add returns a new image holding the voxelwise sum of img and other.
// The operands must have identical dimension vectors.
func (img *Image) Add(other *Image) (*Image, error) {
	return img.combine(other, "volume.Add", func(a, b float64) float64 { return a + b })
}

// Sub returns a new image holding the voxelwise difference img - other.
func (img *Image) Sub(other *Image) (*Image, error) {
	return img.combine(other, "volume.Sub", func(a, b float64) float64 { return a - b })
}

func (img *Image) combine(other *Image, op string, f func(a, b float64) float64) (*Image, error) {
	if other == nil {
		return nil, regerr.New(regerr.TypeMismatch, op, "nil operand")
	}
	if !img.sameShape(other) {
		return nil, regerr.New(regerr.DimensionMismatch, op,
			"operand dims %v do not match %v", other.Extents(), img.Extents())
	}
	out := img.DeepCopy()
	for i := range out.data {
		out.data[i] = f(img.data[i], other.data[i])
	}
	return out, nil
}

// AddScalar returns a new image with s added to every voxel.
func (img *Image) AddScalar(s float64) *Image {
	out := img.DeepCopy()
	for i := range out.data {
		out.data[i] += s
	}
	return out
}

// SubScalar returns a new image with s subtracted from every voxel.
func (img *Image) SubScalar(s float64) *Image {
	return img.AddScalar(-s)
}

// MulScalar returns a new image with every voxel multiplied by s.
func (img *Image) MulScalar(s float64) *Image {
	out := img.DeepCopy()
	for i := range out.data {
		out.data[i] *= s
	}
	return out
}

// Fill sets every voxel to v in place.
func (img *Image) Fill(v float64) {
	for i := range img.data {
		img.data[i] = v
	}
}

// Equal reports exact equality: identical dimension vector, datatype and
// bit-identical voxel values. It is not an approximate comparison.
func (img *Image) Equal(other *Image) bool {
	if other == nil || img.dims != other.dims || img.dtype != other.dtype {
		return false
	}
	for i := range img.data {
		if math.Float64bits(img.data[i]) != math.Float64bits(other.data[i]) {
			return false
		}
	}
	return true
}

// Min returns the smallest voxel value.
func (img *Image) Min() float64 {
	if len(img.data) == 0 {
		return 0
	}
	return floats.Min(img.data)
}

// Max returns the largest voxel value.
func (img *Image) Max() float64 {
	if len(img.data) == 0 {
		return 0
	}
	return floats.Max(img.data)
}

// Sum returns the sum over all voxels.
func (img *Image) Sum() float64 {
	return floats.Sum(img.data)
}

// ChangeDataType casts the image to a new declared datatype. The cast is
// value-preserving: integer targets round to nearest and clamp to the
// target range, Float32 rounds values through float32 precision. The
// image is unchanged if the target datatype is invalid.
func (img *Image) ChangeDataType(dtype DataType) error {
	if !dtype.valid() {
		return regerr.New(regerr.TypeMismatch, "volume.ChangeDataType",
			"invalid datatype %d", int(dtype))
	}
	if dtype == img.dtype {
		return nil
	}
	for i, v := range img.data {
		img.data[i] = castValue(v, dtype)
	}
	img.dtype = dtype
	return nil
}

func castValue(v float64, dtype DataType) float64 {
	switch dtype {
	case Float64:
		return v
	case Float32:
		return float64(float32(v))
	case UInt8:
		return clampRound(v, 0, math.MaxUint8)
	case Int8:
		return clampRound(v, math.MinInt8, math.MaxInt8)
	case UInt16:
		return clampRound(v, 0, math.MaxUint16)
	case Int16:
		return clampRound(v, math.MinInt16, math.MaxInt16)
	case UInt32:
		return clampRound(v, 0, math.MaxUint32)
	case Int32:
		return clampRound(v, math.MinInt32, math.MaxInt32)
	case UInt64:
		return clampRound(v, 0, math.MaxUint64)
	case Int64:
		return clampRound(v, math.MinInt64, math.MaxInt64)
	}
	return v
}

func clampRound(v, lo, hi float64) float64 {
	v = math.Round(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Header returns the human-readable header metadata of the image.
func (img *Image) Header() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rank:     %d\n", img.Rank())
	fmt.Fprintf(&b, "dims:     %v\n", img.Extents())
	fmt.Fprintf(&b, "datatype: %s\n", img.dtype)
	fmt.Fprintf(&b, "voxels:   %d\n", img.NumVoxels())
	if img.NumVoxels() > 0 {
		fmt.Fprintf(&b, "min/max:  %g / %g\n", img.Min(), img.Max())
	}
	return b.String()
}

// DumpHeaders renders the header metadata of one to five images jointly,
// one section per image. More images, or none, fail with UnsupportedArity.
func DumpHeaders(images ...*Image) (string, error) {
	const op = "volume.DumpHeaders"
	if len(images) == 0 || len(images) > MaxHeaderDump {
		return "", regerr.New(regerr.UnsupportedArity, op,
			"%d images outside supported range 1..%d", len(images), MaxHeaderDump)
	}
	var b strings.Builder
	for i, img := range images {
		if img == nil {
			return "", regerr.New(regerr.TypeMismatch, op, "image %d is nil", i)
		}
		fmt.Fprintf(&b, "--- image %d ---\n", i)
		b.WriteString(img.Header())
	}
	return b.String(), nil
}
