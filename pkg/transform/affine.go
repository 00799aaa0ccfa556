package transform

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"volreg/pkg/regerr"
	"volreg/pkg/volume"
)

// Affine is a 4x4 linear+translation transform. The last row of a
// well-formed affine is (0 0 0 1) but this is not enforced: products,
// fills and file loads may carry arbitrary 4x4 content.
type Affine struct {
	m *mat.Dense
}

// NewAffine returns an identity affine.
func NewAffine() *Affine {
	return Identity()
}

// Identity returns the 4x4 identity transform, determinant 1.
func Identity() *Affine {
	a := &Affine{m: mat.NewDense(4, 4, nil)}
	for i := 0; i < 4; i++ {
		a.m.Set(i, i, 1)
	}
	return a
}

// AffineFromArray builds an affine from a row-major 4x4 array.
func AffineFromArray(tm [4][4]float64) *Affine {
	a := &Affine{m: mat.NewDense(4, 4, nil)}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a.m.Set(i, j, tm[i][j])
		}
	}
	return a
}

// LoadAffine reads a plain-text matrix file: four rows of four numbers.
func LoadAffine(path string) (*Affine, error) {
	const op = "transform.LoadAffine"
	f, err := os.Open(path)
	if err != nil {
		return nil, regerr.Wrap(regerr.IOError, op, err, "cannot open %q", path)
	}
	defer f.Close()

	a := &Affine{m: mat.NewDense(4, 4, nil)}
	scanner := bufio.NewScanner(f)
	row := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if row >= 4 {
			return nil, regerr.New(regerr.IOError, op, "%q has more than four rows", path)
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, regerr.New(regerr.IOError, op,
				"%q row %d has %d values, want 4", path, row, len(fields))
		}
		for j, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, regerr.Wrap(regerr.IOError, op, err,
					"%q row %d column %d is not a number", path, row, j)
			}
			a.m.Set(row, j, v)
		}
		row++
	}
	if err := scanner.Err(); err != nil {
		return nil, regerr.Wrap(regerr.IOError, op, err, "read %q", path)
	}
	if row != 4 {
		return nil, regerr.New(regerr.IOError, op, "%q has %d rows, want 4", path, row)
	}
	return a, nil
}

// Save writes the matrix as a plain-text file: four rows of four numbers.
func (a *Affine) Save(path string) error {
	const op = "transform.Affine.Save"
	f, err := os.Create(path)
	if err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "cannot create %q", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if j > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "%.10g", a.m.At(i, j))
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "write %q", path)
	}
	return nil
}

// At returns element (i, j).
func (a *Affine) At(i, j int) float64 {
	return a.m.At(i, j)
}

// SetAt stores element (i, j).
func (a *Affine) SetAt(i, j int, v float64) {
	a.m.Set(i, j, v)
}

// Array returns the matrix as a row-major 4x4 array.
func (a *Affine) Array() [4][4]float64 {
	var tm [4][4]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			tm[i][j] = a.m.At(i, j)
		}
	}
	return tm
}

// Fill sets every element to v.
func (a *Affine) Fill(v float64) {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a.m.Set(i, j, v)
		}
	}
}

// DeepCopy returns an independent copy.
func (a *Affine) DeepCopy() *Affine {
	cp := &Affine{m: mat.NewDense(4, 4, nil)}
	cp.m.Copy(a.m)
	return cp
}

// Equal reports exact elementwise equality.
func (a *Affine) Equal(other *Affine) bool {
	if other == nil {
		return false
	}
	return mat.Equal(a.m, other.m)
}

// Mul returns the matrix product a * other. The product of two affines
// is again a 4x4 affine, not necessarily orthonormal.
func (a *Affine) Mul(other *Affine) *Affine {
	out := &Affine{m: mat.NewDense(4, 4, nil)}
	out.m.Mul(a.m, other.m)
	return out
}

// Determinant returns the determinant of the 4x4 matrix.
func (a *Affine) Determinant() float64 {
	return mat.Det(a.m)
}

// IsIdentity reports whether the matrix equals identity within tol.
func (a *Affine) IsIdentity(tol float64) bool {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(a.m.At(i, j)-want) > tol {
				return false
			}
		}
	}
	return true
}

// Inverse returns the matrix inverse. A singular matrix cannot encode a
// usable spatial transform and is reported as a registration failure.
func (a *Affine) Inverse() (*Affine, error) {
	out := &Affine{m: mat.NewDense(4, 4, nil)}
	if err := out.m.Inverse(a.m); err != nil {
		return nil, regerr.Wrap(regerr.RegistrationFailure, "transform.Affine.Inverse",
			err, "matrix is singular")
	}
	return out, nil
}

// Apply maps a 3D point through the affine.
func (a *Affine) Apply(x, y, z float64) (float64, float64, float64) {
	ox := a.m.At(0, 0)*x + a.m.At(0, 1)*y + a.m.At(0, 2)*z + a.m.At(0, 3)
	oy := a.m.At(1, 0)*x + a.m.At(1, 1)*y + a.m.At(1, 2)*z + a.m.At(1, 3)
	oz := a.m.At(2, 0)*x + a.m.At(2, 1)*y + a.m.At(2, 2)*z + a.m.At(2, 3)
	return ox, oy, oz
}

// TransformKind implements Transformation.
func (a *Affine) TransformKind() Kind {
	return KindAffine
}

// AsDeformation expands the affine analytically over every voxel of the
// reference grid.
func (a *Affine) AsDeformation(ref *volume.Image) (*DeformationField, error) {
	const op = "transform.Affine.AsDeformation"
	if ref == nil || !ref.Is3D() {
		return nil, regerr.New(regerr.TypeMismatch, op, "reference is not a 3D scalar image")
	}
	t, err := volume.NewTensorFromImage(ref)
	if err != nil {
		return nil, err
	}
	ext := ref.Extents()
	for z := 0; z < ext[2]; z++ {
		for y := 0; y < ext[1]; y++ {
			for x := 0; x < ext[0]; x++ {
				ox, oy, oz := a.Apply(float64(x), float64(y), float64(z))
				t.SetVectorAt(x, y, z, [3]float64{ox, oy, oz})
			}
		}
	}
	return &DeformationField{Field: t}, nil
}
