package volume

import (
	"math"
	"strings"
	"testing"

	"volreg/pkg/regerr"
)

// testImage builds a small 3D image with a deterministic ramp pattern.
func testImage(nx, ny, nz int) *Image {
	img := New3D(nx, ny, nz)
	for i, d := 0, img.Data(); i < len(d); i++ {
		d[i] = float64(i%13) * 0.5
	}
	return img
}

// TestScalarRoundTrip verifies (A + s) - s reproduces A within tolerance.
func TestScalarRoundTrip(t *testing.T) {
	a := testImage(4, 3, 2)
	s := 7.25
	b := a.AddScalar(s).SubScalar(s)

	for i := range a.Data() {
		if math.Abs(a.Data()[i]-b.Data()[i]) > 1e-12 {
			t.Fatalf("voxel %d: got %g, want %g", i, b.Data()[i], a.Data()[i])
		}
	}
}

// TestImageRoundTrip verifies A + B - B reproduces A.
func TestImageRoundTrip(t *testing.T) {
	a := testImage(4, 3, 2)
	b := testImage(4, 3, 2).MulScalar(0.3)

	sum, err := a.Add(b)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	back, err := sum.Sub(b)
	if err != nil {
		t.Fatalf("Sub failed: %v", err)
	}
	for i := range a.Data() {
		if math.Abs(a.Data()[i]-back.Data()[i]) > 1e-12 {
			t.Fatalf("voxel %d: got %g, want %g", i, back.Data()[i], a.Data()[i])
		}
	}
}

// TestAddDimensionMismatch verifies binary arithmetic rejects shape
// differences with DimensionMismatch.
func TestAddDimensionMismatch(t *testing.T) {
	a := testImage(4, 3, 2)
	b := testImage(4, 3, 3)

	if _, err := a.Add(b); !regerr.IsKind(err, regerr.DimensionMismatch) {
		t.Fatalf("expected DimensionMismatch, got %v", err)
	}
	if _, err := a.Sub(b); !regerr.IsKind(err, regerr.DimensionMismatch) {
		t.Fatalf("expected DimensionMismatch, got %v", err)
	}
}

// TestDeepCopyIndependence verifies a deep copy equals the original and
// that mutating the copy never affects it.
func TestDeepCopyIndependence(t *testing.T) {
	a := testImage(4, 4, 4)
	c := a.DeepCopy()

	if !a.Equal(c) {
		t.Fatal("copy is not equal to the original immediately after DeepCopy")
	}
	c.Fill(99)
	if a.Equal(c) {
		t.Fatal("mutating the copy changed the original")
	}
	if a.Data()[0] == 99 {
		t.Fatal("original buffer was written through the copy")
	}
}

// TestEqualExact verifies equality is exact, including datatype.
func TestEqualExact(t *testing.T) {
	a := testImage(2, 2, 2)
	b := a.DeepCopy()
	if !a.Equal(b) {
		t.Fatal("identical images reported unequal")
	}

	b.Data()[3] += 1e-15
	if a.Equal(b) {
		t.Fatal("approximately equal images reported equal")
	}

	c := a.DeepCopy()
	if err := c.ChangeDataType(Float64); err != nil {
		t.Fatalf("ChangeDataType failed: %v", err)
	}
	if a.Equal(c) {
		t.Fatal("images with different datatypes reported equal")
	}
}

// TestReductions verifies min, max and sum over all voxels.
func TestReductions(t *testing.T) {
	img := New3D(2, 2, 2)
	vals := []float64{3, -1, 4, 1, 5, -9, 2, 6}
	copy(img.Data(), vals)

	if got := img.Min(); got != -9 {
		t.Errorf("Min = %g, want -9", got)
	}
	if got := img.Max(); got != 6 {
		t.Errorf("Max = %g, want 6", got)
	}
	if got := img.Sum(); got != 11 {
		t.Errorf("Sum = %g, want 11", got)
	}
}

// TestFill verifies in-place constant fill.
func TestFill(t *testing.T) {
	img := testImage(3, 3, 3)
	img.Fill(2.5)
	for i, v := range img.Data() {
		if v != 2.5 {
			t.Fatalf("voxel %d = %g after Fill(2.5)", i, v)
		}
	}
}

// TestChangeDataType verifies the cast preserves values, rounding and
// clamping for integer targets rather than reinterpreting bytes.
func TestChangeDataType(t *testing.T) {
	img := New3D(2, 2, 1)
	copy(img.Data(), []float64{-4.4, 0.6, 200.2, 300.7})

	if err := img.ChangeDataType(UInt8); err != nil {
		t.Fatalf("ChangeDataType failed: %v", err)
	}
	if img.DataType() != UInt8 {
		t.Fatalf("datatype = %v, want uint8", img.DataType())
	}
	want := []float64{0, 1, 200, 255}
	for i, v := range img.Data() {
		if v != want[i] {
			t.Errorf("voxel %d = %g, want %g", i, v, want[i])
		}
	}

	if err := img.ChangeDataType(DataType(99)); !regerr.IsKind(err, regerr.TypeMismatch) {
		t.Fatalf("expected TypeMismatch for invalid datatype, got %v", err)
	}
}

// TestDims verifies the header-style dimension vector.
func TestDims(t *testing.T) {
	img := New3D(5, 6, 7)
	dims := img.Dims()
	if dims[0] != 3 || dims[1] != 5 || dims[2] != 6 || dims[3] != 7 {
		t.Fatalf("dims = %v, want [3 5 6 7 0 ...]", dims)
	}
	if img.NumVoxels() != 210 {
		t.Fatalf("NumVoxels = %d, want 210", img.NumVoxels())
	}
}

// TestDumpHeadersArity verifies joint header dumps accept 1..5 images
// and fail with UnsupportedArity outside that range.
func TestDumpHeadersArity(t *testing.T) {
	imgs := make([]*Image, 6)
	for i := range imgs {
		imgs[i] = testImage(2, 2, 2)
	}

	for n := 1; n <= 5; n++ {
		out, err := DumpHeaders(imgs[:n]...)
		if err != nil {
			t.Fatalf("DumpHeaders with %d images failed: %v", n, err)
		}
		if strings.Count(out, "--- image") != n {
			t.Fatalf("DumpHeaders with %d images produced %d sections", n,
				strings.Count(out, "--- image"))
		}
	}
	if _, err := DumpHeaders(); !regerr.IsKind(err, regerr.UnsupportedArity) {
		t.Fatalf("expected UnsupportedArity for 0 images, got %v", err)
	}
	if _, err := DumpHeaders(imgs...); !regerr.IsKind(err, regerr.UnsupportedArity) {
		t.Fatalf("expected UnsupportedArity for 6 images, got %v", err)
	}
}
