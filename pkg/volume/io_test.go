package volume

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"volreg/pkg/regerr"
)

// writeRawVolume stages a volume file with an arbitrary header and
// payload, bypassing Save's consistency.
func writeRawVolume(t *testing.T, dims [MaxDims]int32, dtype int32, payload []byte) string {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(fileMagic[:])
	buf.WriteByte(fileVersion)
	hdr := append(dims[:], dtype)
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		t.Fatal(err)
	}
	buf.Write(payload)
	path := filepath.Join(t.TempDir(), "raw.vol")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestSaveLoadRoundTrip verifies a float32 image survives a save/load
// cycle bit for bit.
func TestSaveLoadRoundTrip(t *testing.T) {
	img := testImage(5, 4, 3)
	path := filepath.Join(t.TempDir(), "img.vol")

	if err := img.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if !img.Equal(loaded) {
		t.Fatal("loaded image differs from the saved one")
	}
}

// TestSaveLoadInteger verifies the payload is encoded in the declared
// datatype: integer values survive exactly.
func TestSaveLoadInteger(t *testing.T) {
	img := New3D(3, 3, 3)
	for i := range img.Data() {
		img.Data()[i] = float64(i - 10)
	}
	if err := img.ChangeDataType(Int16); err != nil {
		t.Fatalf("ChangeDataType failed: %v", err)
	}
	path := filepath.Join(t.TempDir(), "img.vol")
	if err := img.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if loaded.DataType() != Int16 {
		t.Fatalf("loaded datatype = %v, want int16", loaded.DataType())
	}
	if !img.Equal(loaded) {
		t.Fatal("loaded image differs from the saved one")
	}
}

// TestLoadMissingFile verifies an unreadable path fails with IOError.
func TestLoadMissingFile(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "nope.vol"))
	if !regerr.IsKind(err, regerr.IOError) {
		t.Fatalf("expected IOError, got %v", err)
	}
}

// TestLoadMalformedFile verifies garbage content fails with IOError.
func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.vol")
	if err := os.WriteFile(path, []byte("not a volume file at all"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadImage(path); !regerr.IsKind(err, regerr.IOError) {
		t.Fatalf("expected IOError, got %v", err)
	}
}

// TestLoadOversizedDimensions verifies a header whose dimension product
// overflows, or outruns the stored payload, fails with IOError instead
// of attempting the allocation.
func TestLoadOversizedDimensions(t *testing.T) {
	huge := [MaxDims]int32{3, 2000000000, 2000000000, 2000000000}
	path := writeRawVolume(t, huge, int32(Float32), nil)
	if _, err := LoadImage(path); !regerr.IsKind(err, regerr.IOError) {
		t.Fatalf("expected IOError for oversized dimensions, got %v", err)
	}

	// Dimensions that fit in an int but exceed the stored payload.
	short := [MaxDims]int32{3, 64, 64, 64}
	path = writeRawVolume(t, short, int32(Float32), make([]byte, 16))
	if _, err := LoadImage(path); !regerr.IsKind(err, regerr.IOError) {
		t.Fatalf("expected IOError for undersized payload, got %v", err)
	}
}

// TestLoadTrailingDimensionEntries verifies nonzero dimension entries
// beyond the declared rank are rejected, keeping loaded images
// shape-comparable with constructed ones.
func TestLoadTrailingDimensionEntries(t *testing.T) {
	dims := [MaxDims]int32{3, 2, 2, 2, 5}
	payload := make([]byte, 8*Float32.Size())
	path := writeRawVolume(t, dims, int32(Float32), payload)
	if _, err := LoadImage(path); !regerr.IsKind(err, regerr.IOError) {
		t.Fatalf("expected IOError for trailing dimension entries, got %v", err)
	}
}

// TestSaveUnwritablePath verifies saving into a missing directory fails
// with IOError.
func TestSaveUnwritablePath(t *testing.T) {
	img := testImage(2, 2, 2)
	err := img.Save(filepath.Join(t.TempDir(), "missing", "img.vol"))
	if !regerr.IsKind(err, regerr.IOError) {
		t.Fatalf("expected IOError, got %v", err)
	}
}

// TestTypedBytes verifies the exported buffer is sized by the declared
// datatype.
func TestTypedBytes(t *testing.T) {
	img := testImage(4, 2, 2)
	if got := len(img.TypedBytes()); got != 16*4 {
		t.Fatalf("float32 buffer is %d bytes, want %d", got, 16*4)
	}
	if err := img.ChangeDataType(Float64); err != nil {
		t.Fatal(err)
	}
	if got := len(img.TypedBytes()); got != 16*8 {
		t.Fatalf("float64 buffer is %d bytes, want %d", got, 16*8)
	}
	if err := img.ChangeDataType(UInt8); err != nil {
		t.Fatal(err)
	}
	if got := len(img.TypedBytes()); got != 16 {
		t.Fatalf("uint8 buffer is %d bytes, want %d", got, 16)
	}
}
