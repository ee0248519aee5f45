// Package geovocab implements the GeoVocabulary writer from spec.md §4.1:
// a parallel preprocessing pipeline that computes bounding box / centroid
// / area / WKT-type metadata for literals while they are being appended to
// the vocabulary, and writes it, in index order, to a fixed-stride
// random-access sidecar file.
package geovocab

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidPolygonArea distinguishes a degenerate-polygon failure from a
// plain WKT parse failure, so callers can count the two events separately
// (spec.md §4.1's "invalid-WKT and invalid-polygon-area" counters).
var ErrInvalidPolygonArea = errors.New("geovocab: invalid polygon area")

// WKTType tags the parsed geometry's shape. Zero is reserved for "unset"
// so that GeometryInfo's all-zero encoding can never be produced by a
// valid geometry, even one with zero area centred at the origin
// (spec.md §3, §4.1 invariant 2).
type WKTType byte

const (
	wktTypeUnset WKTType = iota
	WKTTypePoint
	WKTTypeLineString
	WKTTypePolygon
	WKTTypeMultiPoint
	WKTTypeMultiLineString
	WKTTypeMultiPolygon
	WKTTypeCollection
)

// GeometryInfo is the fixed-stride record stored in the sidecar file: a
// bounding box, a centroid, a metric area (zero for non-area geometries),
// and a WKT-type tag.
type GeometryInfo struct {
	MinX, MinY float64
	MaxX, MaxY float64
	CentroidX  float64
	CentroidY  float64
	Area       float64
	Type       WKTType
}

// Stride is the on-disk byte width of one GeometryInfo record: 7 float64
// fields (56 bytes) plus a 1-byte type tag, padded to an 8-byte boundary.
const Stride = 64

// IsZero reports whether g is the all-zero sentinel marking an invalid or
// unparsed geometry (spec.md §4.1 invariant: "getGeoInfo(i) ... all-zero
// ⇒ None").
func (g GeometryInfo) IsZero() bool {
	return g == GeometryInfo{}
}

// MarshalBinary encodes g into exactly Stride bytes, big-endian; bytes
// after the type tag are zero padding.
func (g GeometryInfo) MarshalBinary() []byte {
	buf := make([]byte, Stride)
	putFloat64(buf[0:8], g.MinX)
	putFloat64(buf[8:16], g.MinY)
	putFloat64(buf[16:24], g.MaxX)
	putFloat64(buf[24:32], g.MaxY)
	putFloat64(buf[32:40], g.CentroidX)
	putFloat64(buf[40:48], g.CentroidY)
	putFloat64(buf[48:56], g.Area)
	buf[56] = byte(g.Type)
	return buf
}

// UnmarshalGeometryInfo decodes a Stride-byte buffer. An all-zero buffer
// decodes to the zero GeometryInfo (the sentinel); callers should check
// IsZero rather than treating this as an error.
func UnmarshalGeometryInfo(buf []byte) (GeometryInfo, error) {
	if len(buf) != Stride {
		return GeometryInfo{}, fmt.Errorf("geovocab: expected %d bytes, got %d", Stride, len(buf))
	}
	return GeometryInfo{
		MinX:      getFloat64(buf[0:8]),
		MinY:      getFloat64(buf[8:16]),
		MaxX:      getFloat64(buf[16:24]),
		MaxY:      getFloat64(buf[24:32]),
		CentroidX: getFloat64(buf[32:40]),
		CentroidY: getFloat64(buf[40:48]),
		Area:      getFloat64(buf[48:56]),
		Type:      WKTType(buf[56]),
	}, nil
}

func putFloat64(dst []byte, v float64) {
	binary.BigEndian.PutUint64(dst, math.Float64bits(v))
}

func getFloat64(src []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(src))
}

// parseGeometry parses a WKT string and computes its GeometryInfo. A parse
// failure, or a polygon whose area computation fails, is reported via the
// returned error; the caller records it as an invalid-WKT / invalid-area
// event and writes the sentinel rather than failing the run (spec.md §4.1
// "Failure semantics").
func parseGeometry(s string) (GeometryInfo, error) {
	geom, err := wkt.Unmarshal(s)
	if err != nil {
		return GeometryInfo{}, fmt.Errorf("invalid WKT: %w", err)
	}

	bound := geom.Bound()
	info := GeometryInfo{
		MinX: bound.Min.X(),
		MinY: bound.Min.Y(),
		MaxX: bound.Max.X(),
		MaxY: bound.Max.Y(),
	}

	centroid, area, err := centroidAndArea(geom)
	if err != nil {
		return GeometryInfo{}, err
	}
	info.CentroidX = centroid.X()
	info.CentroidY = centroid.Y()
	info.Area = area
	info.Type = wktTypeOf(geom)

	return info, nil
}

// centroidAndArea computes the centroid for any geometry and, for
// area-bearing geometries (polygons), the unsigned metric area. A
// degenerate polygon (zero-length ring, self-intersecting to zero net
// area) is reported as an invalid-area event rather than silently
// returning zero, per spec.md §4.1's invalid-polygon-area counter.
func centroidAndArea(geom orb.Geometry) (orb.Point, float64, error) {
	switch geom.(type) {
	case orb.Polygon, orb.MultiPolygon:
		centroid, signedArea := planar.CentroidArea(geom)
		if signedArea == 0 {
			return orb.Point{}, 0, ErrInvalidPolygonArea
		}
		if signedArea < 0 {
			signedArea = -signedArea
		}
		return centroid, signedArea, nil
	default:
		centroid, _ := planar.CentroidArea(geom)
		return centroid, 0, nil
	}
}

func wktTypeOf(geom orb.Geometry) WKTType {
	switch geom.(type) {
	case orb.Point:
		return WKTTypePoint
	case orb.LineString:
		return WKTTypeLineString
	case orb.Polygon:
		return WKTTypePolygon
	case orb.MultiPoint:
		return WKTTypeMultiPoint
	case orb.MultiLineString:
		return WKTTypeMultiLineString
	case orb.MultiPolygon:
		return WKTTypeMultiPolygon
	case orb.Collection:
		return WKTTypeCollection
	default:
		return WKTTypeCollection
	}
}
