package geovocab

import (
	"encoding/binary"
	"fmt"
	"os"
)

// Reader gives thread-safe random access to a finished sidecar file
// (spec.md §5 "random reads are thread-safe").
type Reader struct {
	file *os.File
	size uint64
}

// OpenReader opens an existing sidecar file, checking the version header
// against FileVersion. A mismatch is fatal and names the required
// version, per spec.md §3/§7.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path) // #nosec G304 - path is operator-supplied index path
	if err != nil {
		return nil, fmt.Errorf("geovocab: opening sidecar: %w", err)
	}

	header := make([]byte, headerSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("geovocab: reading header: %w", err)
	}
	version := binary.BigEndian.Uint32(header)
	if version != FileVersion {
		_ = f.Close()
		return nil, fmt.Errorf(
			"geovocab: sidecar version %d does not match required version %d, rebuild the index",
			version, FileVersion)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("geovocab: stat sidecar: %w", err)
	}
	dataBytes := info.Size() - headerSize
	if dataBytes < 0 || dataBytes%int64(Stride) != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("geovocab: sidecar size %d is not header + N*%d", info.Size(), Stride)
	}

	return &Reader{file: f, size: uint64(dataBytes) / uint64(Stride)}, nil
}

// Size returns the number of records in the sidecar.
func (r *Reader) Size() uint64 {
	return r.size
}

// GetGeoInfo is a pure function of the on-disk bytes at index i: all-zero
// ⇒ (GeometryInfo{}, false); otherwise the decoded record and true
// (spec.md §4.1 invariant).
func (r *Reader) GetGeoInfo(i uint64) (GeometryInfo, bool, error) {
	if i >= r.size {
		return GeometryInfo{}, false, fmt.Errorf("geovocab: index %d out of range [0,%d)", i, r.size)
	}
	buf := make([]byte, Stride)
	offset := int64(headerSize) + int64(i)*int64(Stride)
	if _, err := r.file.ReadAt(buf, offset); err != nil {
		return GeometryInfo{}, false, fmt.Errorf("geovocab: reading record %d: %w", i, err)
	}
	info, err := UnmarshalGeometryInfo(buf)
	if err != nil {
		return GeometryInfo{}, false, err
	}
	if info.IsZero() {
		return GeometryInfo{}, false, nil
	}
	return info, true, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
