package volume

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"volreg/pkg/regerr"
)

// Volume file layout: 4-byte magic, 1-byte version, 8 little-endian
// int32 dimension entries, one int32 datatype code, then the voxel
// payload in the declared datatype, x axis fastest.
var fileMagic = [4]byte{'V', 'O', 'L', 'R'}

const fileVersion = 1

// Save writes the image to path in the volume file format. The payload
// is encoded in the declared datatype.
func (img *Image) Save(path string) error {
	const op = "volume.Save"
	f, err := os.Create(path)
	if err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "cannot create %q", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(fileMagic[:]); err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "write header to %q", path)
	}
	if err := w.WriteByte(fileVersion); err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "write header to %q", path)
	}
	hdr := make([]int32, 0, MaxDims+1)
	hdr = append(hdr, img.dims[:]...)
	hdr = append(hdr, int32(img.dtype))
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "write header to %q", path)
	}
	if _, err := w.Write(img.TypedBytes()); err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "write payload to %q", path)
	}
	if err := w.Flush(); err != nil {
		return regerr.Wrap(regerr.IOError, op, err, "flush %q", path)
	}
	return nil
}

// LoadImage reads an image from a volume file. Unreadable or malformed
// files fail with IOError.
func LoadImage(path string) (*Image, error) {
	const op = "volume.LoadImage"
	f, err := os.Open(path)
	if err != nil {
		return nil, regerr.Wrap(regerr.IOError, op, err, "cannot open %q", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, regerr.Wrap(regerr.IOError, op, err, "read header of %q", path)
	}
	if magic != fileMagic {
		return nil, regerr.New(regerr.IOError, op, "%q is not a volume file", path)
	}
	version, err := r.ReadByte()
	if err != nil {
		return nil, regerr.Wrap(regerr.IOError, op, err, "read header of %q", path)
	}
	if version != fileVersion {
		return nil, regerr.New(regerr.IOError, op,
			"%q has unsupported version %d", path, version)
	}
	hdr := make([]int32, MaxDims+1)
	if err := binary.Read(r, binary.LittleEndian, hdr); err != nil {
		return nil, regerr.Wrap(regerr.IOError, op, err, "read header of %q", path)
	}

	img := &Image{dtype: DataType(hdr[MaxDims])}
	copy(img.dims[:], hdr[:MaxDims])
	rank := int(img.dims[0])
	if rank < 1 || rank > MaxDims-1 || !img.dtype.valid() {
		return nil, regerr.New(regerr.IOError, op, "%q has a malformed header", path)
	}

	// The declared shape must account for no more voxels than the file
	// can hold; checking the running product against that bound also
	// keeps a hostile header from overflowing the allocation size.
	fi, err := f.Stat()
	if err != nil {
		return nil, regerr.Wrap(regerr.IOError, op, err, "stat %q", path)
	}
	const headerSize = 4 + 1 + (MaxDims+1)*4
	maxVoxels := (fi.Size() - headerSize) / int64(img.dtype.Size())
	nv := int64(1)
	for i := 1; i <= rank; i++ {
		d := int64(img.dims[i])
		if d < 1 || maxVoxels < 1 || d > maxVoxels/nv {
			return nil, regerr.New(regerr.IOError, op, "%q has a malformed header", path)
		}
		nv *= d
	}
	for i := rank + 1; i < MaxDims; i++ {
		if img.dims[i] != 0 {
			return nil, regerr.New(regerr.IOError, op, "%q has a malformed header", path)
		}
	}
	n := int(nv)
	payload := make([]byte, n*img.dtype.Size())
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, regerr.Wrap(regerr.IOError, op, err,
			"%q payload truncated (want %d voxels)", path, n)
	}
	img.data = decodePayload(payload, img.dtype, n)
	return img, nil
}

// TypedBytes exports the voxel data as a flat little-endian buffer in
// the declared datatype, sized NumVoxels * DataType.Size().
func (img *Image) TypedBytes() []byte {
	dtype := img.dtype
	out := make([]byte, len(img.data)*dtype.Size())
	for i, v := range img.data {
		off := i * dtype.Size()
		switch dtype {
		case UInt8:
			out[off] = byte(castValue(v, dtype))
		case Int8:
			out[off] = byte(int8(castValue(v, dtype)))
		case UInt16:
			binary.LittleEndian.PutUint16(out[off:], uint16(castValue(v, dtype)))
		case Int16:
			binary.LittleEndian.PutUint16(out[off:], uint16(int16(castValue(v, dtype))))
		case UInt32:
			binary.LittleEndian.PutUint32(out[off:], uint32(castValue(v, dtype)))
		case Int32:
			binary.LittleEndian.PutUint32(out[off:], uint32(int32(castValue(v, dtype))))
		case UInt64:
			binary.LittleEndian.PutUint64(out[off:], uint64(castValue(v, dtype)))
		case Int64:
			binary.LittleEndian.PutUint64(out[off:], uint64(int64(castValue(v, dtype))))
		case Float32:
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(float32(v)))
		case Float64:
			binary.LittleEndian.PutUint64(out[off:], math.Float64bits(v))
		}
	}
	return out
}

func decodePayload(payload []byte, dtype DataType, n int) []float64 {
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		off := i * dtype.Size()
		switch dtype {
		case UInt8:
			data[i] = float64(payload[off])
		case Int8:
			data[i] = float64(int8(payload[off]))
		case UInt16:
			data[i] = float64(binary.LittleEndian.Uint16(payload[off:]))
		case Int16:
			data[i] = float64(int16(binary.LittleEndian.Uint16(payload[off:])))
		case UInt32:
			data[i] = float64(binary.LittleEndian.Uint32(payload[off:]))
		case Int32:
			data[i] = float64(int32(binary.LittleEndian.Uint32(payload[off:])))
		case UInt64:
			data[i] = float64(binary.LittleEndian.Uint64(payload[off:]))
		case Int64:
			data[i] = float64(int64(binary.LittleEndian.Uint64(payload[off:])))
		case Float32:
			data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[off:])))
		case Float64:
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(payload[off:]))
		}
	}
	return data
}
