package resample

import (
	"testing"

	"volreg/pkg/interpolation"
	"volreg/pkg/regerr"
	"volreg/pkg/transform"
	"volreg/pkg/volume"
)

func patternImage(nx, ny, nz int) *volume.Image {
	img := volume.New3D(nx, ny, nz)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				img.Set(x, y, z, float64(x+7*y+13*z))
			}
		}
	}
	return img
}

func checkKind(t *testing.T, err error, want regerr.Kind) {
	t.Helper()
	if got := regerr.KindOf(err); got != want {
		t.Fatalf("error kind = %v, want %v (err: %v)", got, want, err)
	}
}

// TestIdentityResample verifies an empty chain with nearest neighbour
// reproduces the floating image exactly on a matching grid.
func TestIdentityResample(t *testing.T) {
	img := patternImage(4, 3, 2)
	rs := New()
	if err := rs.SetReferenceImage(img); err != nil {
		t.Fatal(err)
	}
	if err := rs.SetFloatingImage(img); err != nil {
		t.Fatal(err)
	}
	rs.SetInterpolationToNearestNeighbour()
	if err := rs.Update(); err != nil {
		t.Fatal(err)
	}

	out, err := rs.Output()
	if err != nil {
		t.Fatal(err)
	}
	if !out.Equal(img) {
		t.Fatal("identity resample altered the image")
	}
}

// TestTranslationBackground verifies voxels mapped outside the floating
// grid receive the zero background.
func TestTranslationBackground(t *testing.T) {
	img := patternImage(4, 4, 4)
	shift := transform.Identity()
	shift.SetAt(0, 3, 2) // map x to x+2

	rs := New()
	if err := rs.SetReferenceImage(img); err != nil {
		t.Fatal(err)
	}
	if err := rs.SetFloatingImage(img); err != nil {
		t.Fatal(err)
	}
	if err := rs.AddAffine(shift); err != nil {
		t.Fatal(err)
	}
	rs.SetInterpolationToNearestNeighbour()
	if err := rs.Update(); err != nil {
		t.Fatal(err)
	}

	out, err := rs.Output()
	if err != nil {
		t.Fatal(err)
	}
	if got := out.At(1, 2, 3); got != img.At(3, 2, 3) {
		t.Fatalf("shifted voxel = %v, want %v", got, img.At(3, 2, 3))
	}
	if got := out.At(3, 0, 0); got != 0 {
		t.Fatalf("out-of-grid voxel = %v, want background 0", got)
	}
}

// TestChainOrder verifies two stacked translations accumulate.
func TestChainOrder(t *testing.T) {
	img := patternImage(6, 6, 6)
	a := transform.Identity()
	a.SetAt(0, 3, 1)
	b := transform.Identity()
	b.SetAt(1, 3, 1)

	rs := New()
	if err := rs.SetReferenceImage(img); err != nil {
		t.Fatal(err)
	}
	if err := rs.SetFloatingImage(img); err != nil {
		t.Fatal(err)
	}
	if err := rs.AddAffine(a); err != nil {
		t.Fatal(err)
	}
	if err := rs.AddAffine(b); err != nil {
		t.Fatal(err)
	}
	if err := rs.Update(); err != nil {
		t.Fatal(err)
	}

	out, err := rs.Output()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := out.At(2, 2, 2), img.At(3, 3, 2); got != want {
		t.Fatalf("chained voxel = %v, want %v", got, want)
	}
}

// TestDisplacementChainElement verifies a displacement field element
// participates in the chain.
func TestDisplacementChainElement(t *testing.T) {
	img := patternImage(5, 5, 5)
	field, err := volume.NewTensorFromImage(img)
	if err != nil {
		t.Fatal(err)
	}
	for z := 0; z < 5; z++ {
		for y := 0; y < 5; y++ {
			for x := 0; x < 5; x++ {
				field.SetVectorAt(x, y, z, [3]float64{0, 0, 1})
			}
		}
	}

	rs := New()
	if err := rs.SetReferenceImage(img); err != nil {
		t.Fatal(err)
	}
	if err := rs.SetFloatingImage(img); err != nil {
		t.Fatal(err)
	}
	if err := rs.AddDisplacement(transform.NewDisplacement(field)); err != nil {
		t.Fatal(err)
	}
	rs.SetInterpolationToLinear()
	if err := rs.Update(); err != nil {
		t.Fatal(err)
	}

	out, err := rs.Output()
	if err != nil {
		t.Fatal(err)
	}
	if got, want := out.At(2, 2, 2), img.At(2, 2, 3); got != want {
		t.Fatalf("displaced voxel = %v, want %v", got, want)
	}
}

// TestChainCapacity verifies the sixth element is refused.
func TestChainCapacity(t *testing.T) {
	rs := New()
	for i := 0; i < transform.MaxChain; i++ {
		if err := rs.AddAffine(transform.Identity()); err != nil {
			t.Fatal(err)
		}
	}
	checkKind(t, rs.AddAffine(transform.Identity()), regerr.UnsupportedArity)
}

// TestNilTransformation verifies typed nils are refused.
func TestNilTransformation(t *testing.T) {
	rs := New()
	checkKind(t, rs.AddAffine(nil), regerr.TypeMismatch)
	checkKind(t, rs.AddDisplacement(nil), regerr.TypeMismatch)
	checkKind(t, rs.AddDeformation(nil), regerr.TypeMismatch)
}

// TestUpdateUnconfigured verifies missing images and early Output fail
// with configuration errors.
func TestUpdateUnconfigured(t *testing.T) {
	rs := New()
	checkKind(t, rs.Update(), regerr.ConfigurationError)

	if err := rs.SetReferenceImage(patternImage(3, 3, 3)); err != nil {
		t.Fatal(err)
	}
	checkKind(t, rs.Update(), regerr.ConfigurationError)

	_, err := rs.Output()
	checkKind(t, err, regerr.ConfigurationError)
}

// TestInterpolationCodes verifies the numeric kernel codes accepted by
// the resampler.
func TestInterpolationCodes(t *testing.T) {
	rs := New()
	for _, k := range []interpolation.Kernel{0, 1, 3, 4} {
		if err := rs.SetInterpolation(k); err != nil {
			t.Fatalf("code %d refused: %v", int(k), err)
		}
	}
	checkKind(t, rs.SetInterpolation(2), regerr.TypeMismatch)
	checkKind(t, rs.SetInterpolation(7), regerr.TypeMismatch)
}

// TestRejectsNonScalar verifies tensor-shaped inputs are refused.
func TestRejectsNonScalar(t *testing.T) {
	five, err := volume.NewWithDims([]int{3, 3, 3, 1, 3}, volume.Float64)
	if err != nil {
		t.Fatal(err)
	}
	rs := New()
	checkKind(t, rs.SetReferenceImage(five), regerr.TypeMismatch)
	checkKind(t, rs.SetFloatingImage(nil), regerr.TypeMismatch)
}
