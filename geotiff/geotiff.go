// Package geotiff reads the georeferencing of TIFF and BigTIFF files: raster
// size, the GeoTIFF model tags and the CRS of the GeoKey directory. Pixel
// samples are not decoded.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/akhenakh/rastercoding/geocoding"
)

var (
	ErrNotGeoreferenced = errors.New("no GeoTIFF model tags")
	ErrUnsupportedCRS   = errors.New("unsupported CRS")
)

// maxTagBytes bounds the out-of-line payload of a single tag.
const maxTagBytes = 64 << 20

// head represents the TIFF file header information
type head struct {
	byteOrder binary.ByteOrder
	isBigTIFF bool
	ifdOffset uint64
}

// iFDEntry is a single entry of an Image File Directory.
type iFDEntry struct {
	Tag         Tag
	FType       fieldType
	Count       uint64
	ValueOffset uint64
	ValueBytes  []byte // inline value, when it fits in the offset field
}

// tagData holds the decoded values of a tag; only the slice matching fType is set.
type tagData struct {
	fType      fieldType
	length     uint32
	byteData   []uint8
	asciiData  string
	shortData  []uint16
	longData   []uint32
	floatData  []float32
	doubleData []float64
	uint64Data []uint64
}

type Tags map[Tag]tagData

// GeoTIFF is the georeferencing of the first image of a TIFF file.
type GeoTIFF struct {
	byteOrder binary.ByteOrder
	isBigTIFF bool
	tags      Tags

	width  int
	height int

	// pixelScale and tiepoint are used when no ModelTransformation is present.
	pixelScale     []float64
	tiepoint       []float64
	transformation []float64
	geoKeys        []uint16
}

// fieldTypeLen is the length of every field type in bytes
var fieldTypeLen = [...]uint32{
	zeroByte, oneByte, oneByte, twoByte, // 0-3
	fourByte, eightByte, oneByte, oneByte, // 4-7
	twoByte, fourByte, eightByte, fourByte, // 8-11
	eightByte, // 12 (DOUBLE)
	0, 0, 0, // 13-15 (Reserved)
	eightByte, eightByte, eightByte, // 16-18 (LONG8, SLONG8, IFD8)
}

var fieldTypeToLabel = map[fieldType]string{
	BYTE:      "BYTE",
	ASCII:     "ASCII",
	SHORT:     "SHORT",
	LONG:      "LONG",
	RATIONAL:  "RATIONAL",
	SBYTE:     "SBYTE",
	UNDEFINED: "UNDEFINED",
	SSHORT:    "SSHORT",
	SLONG:     "SLONG",
	SRATIONAL: "SRATIONAL",
	FLOAT:     "FLOAT",
	DOUBLE:    "DOUBLE",
	LONG8:     "LONG8",
	SLONG8:    "SLONG8",
	IFD8:      "IFD8",
}

func (f fieldType) String() string {
	v, ok := fieldTypeToLabel[f]
	if !ok {
		return fmt.Sprintf("unrecognized field type %d", f)
	}
	return v
}

// bytes returns the number of bytes in each data type
//
// returns 0 if unrecognized
func (f fieldType) bytes() uint32 {
	if int(f) >= len(fieldTypeLen) {
		return 0
	}
	return fieldTypeLen[int(f)]
}

func (t Tag) String() string {
	v, ok := tagToLabel[t]
	if !ok {
		return fmt.Sprintf("%d", t)
	}
	return v
}

// Open parses the header and first IFD of a TIFF file. The reader must also
// implement io.ReaderAt when tag values are stored out of line.
func Open(r io.ReadSeeker) (*GeoTIFF, error) {
	gTags, header, err := readTags(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tiff tags: %w", err)
	}

	g := &GeoTIFF{
		tags:      gTags,
		byteOrder: header.byteOrder,
		isBigTIFF: header.isBigTIFF,
	}

	width, ok := g.getUint(ImageWidth)
	if !ok || width == 0 {
		return nil, errors.New("missing or invalid tag: ImageWidth")
	}
	length, ok := g.getUint(ImageLength)
	if !ok || length == 0 {
		return nil, errors.New("missing or invalid tag: ImageLength")
	}
	g.width, g.height = int(width), int(length)

	g.pixelScale, _ = gTags[ModelPixelScale].doubleDataValue()
	g.tiepoint, _ = gTags[ModelTiepoint].doubleDataValue()
	g.transformation, _ = gTags[ModelTransformation].doubleDataValue()
	g.geoKeys = gTags[GeoKeyDirectory].shortData

	slog.Debug("opened tiff",
		"width", g.width, "height", g.height,
		"bigtiff", g.isBigTIFF, "tags", len(gTags), "epsg", g.EPSG())
	return g, nil
}

func (g *GeoTIFF) Width() int      { return g.width }
func (g *GeoTIFF) Height() int     { return g.height }
func (g *GeoTIFF) IsBigTIFF() bool { return g.isBigTIFF }

// Tags returns the decoded tags of the first IFD.
func (g *GeoTIFF) Tags() Tags { return g.tags }

// EPSG returns the projected or geographic CRS code of the GeoKey directory,
// or 0 when none is declared.
func (g *GeoTIFF) EPSG() int {
	if v, ok := geoKey(g.geoKeys, gkProjectedCSType); ok && v > 0 {
		return int(v)
	}
	if v, ok := geoKey(g.geoKeys, gkGeographicType); ok && v > 0 {
		return int(v)
	}
	return 0
}

// PixelIsPoint reports whether the model tags reference pixel centers rather
// than pixel corners.
func (g *GeoTIFF) PixelIsPoint() bool {
	v, ok := geoKey(g.geoKeys, gkRasterType)
	return ok && v == rasterPixelIsPoint
}

// ImageToMap returns the transform from pixel positions to map coordinates.
// Integer pixel positions address pixel centers, so area rasters are shifted
// by half a pixel.
func (g *GeoTIFF) ImageToMap() (*geocoding.Affine, error) {
	var t *geocoding.Affine
	switch {
	case len(g.transformation) >= 16:
		m := g.transformation
		t = geocoding.NewAffine(m[3], m[0], m[1], m[7], m[4], m[5])
	case len(g.pixelScale) >= 2 && len(g.tiepoint) >= 6:
		sx, sy := g.pixelScale[0], g.pixelScale[1]
		i, j, x, y := g.tiepoint[0], g.tiepoint[1], g.tiepoint[3], g.tiepoint[4]
		t = geocoding.NewAffine(x-i*sx, sx, 0, y+j*sy, 0, -sy)
	default:
		return nil, ErrNotGeoreferenced
	}
	if !g.PixelIsPoint() {
		t = t.Multiply(geocoding.Translation(0.5, 0.5))
	}
	if !t.IsInvertible() {
		return nil, fmt.Errorf("%w: %s", geocoding.ErrSingularTransform, t)
	}
	return t, nil
}

// GeoCoding builds the analytic geocoding of the image.
func (g *GeoTIFF) GeoCoding() (*geocoding.CrsGeoCoding, error) {
	t, err := g.ImageToMap()
	if err != nil {
		return nil, err
	}
	epsg := g.EPSG()
	proj := geocoding.ForEPSG(epsg)
	if proj == nil {
		return nil, fmt.Errorf("%w: EPSG:%d", ErrUnsupportedCRS, epsg)
	}
	return geocoding.NewCrsGeoCoding(t, proj, g.width, g.height)
}

// geoKey looks up a key stored directly in the GeoKey directory.
func geoKey(keys []uint16, id uint16) (uint16, bool) {
	if len(keys) < 4 {
		return 0, false
	}
	// header: KeyDirectoryVersion, KeyRevision, MinorRevision, NumberOfKeys
	n := int(keys[3])
	for i := 0; i < n; i++ {
		base := 4 + i*4
		if base+3 >= len(keys) {
			break
		}
		// location 0 means the value is the offset field itself
		if keys[base] == id && keys[base+1] == 0 {
			return keys[base+3], true
		}
	}
	return 0, false
}

// readHeader parses the TIFF file header to determine byte order, file format, and IFD location
func readHeader(r io.Reader) (head, error) {
	var h head

	var byteOrderBytes uint16
	if err := binary.Read(r, binary.BigEndian, &byteOrderBytes); err != nil {
		return h, err
	}

	switch byteOrderBytes {
	case littleEndian:
		h.byteOrder = binary.LittleEndian
	case bigEndian:
		h.byteOrder = binary.BigEndian
	default:
		return h, errors.New("invalid byte order")
	}

	var identifier uint16
	if err := binary.Read(r, h.byteOrder, &identifier); err != nil {
		return h, err
	}

	switch identifier {
	case tiffIdentifier:
		var offset32 uint32
		if err := binary.Read(r, h.byteOrder, &offset32); err != nil {
			return h, err
		}
		h.ifdOffset = uint64(offset32)
	case bigTiffIdentifier:
		h.isBigTIFF = true

		var bytesize, reserved uint16
		if err := binary.Read(r, h.byteOrder, &bytesize); err != nil {
			return h, err
		}
		if bytesize != bigTiffBytesize {
			return h, errors.New("invalid BigTIFF bytesize")
		}
		if err := binary.Read(r, h.byteOrder, &reserved); err != nil {
			return h, err
		}
		if err := binary.Read(r, h.byteOrder, &h.ifdOffset); err != nil {
			return h, err
		}
	default:
		return h, fmt.Errorf("invalid tiff identifier: %d", identifier)
	}
	return h, nil
}

// readTags decodes the first IFD only; further IFDs hold overviews or masks.
func readTags(r io.ReadSeeker) (Tags, head, error) {
	tags := make(Tags)
	h, err := readHeader(r)
	if err != nil {
		return nil, h, err
	}

	if h.ifdOffset == 0 {
		return nil, h, errors.New("file contains no IFDs")
	}
	if _, err := r.Seek(int64(h.ifdOffset), io.SeekStart); err != nil {
		return nil, h, err
	}

	var numEntries uint64
	if h.isBigTIFF {
		if err := binary.Read(r, h.byteOrder, &numEntries); err != nil {
			return nil, h, err
		}
	} else {
		var numEntries16 uint16
		if err := binary.Read(r, h.byteOrder, &numEntries16); err != nil {
			return nil, h, err
		}
		numEntries = uint64(numEntries16)
	}

	entryLen, inlineSize := 12, uint64(4)
	if h.isBigTIFF {
		entryLen, inlineSize = 20, 8
	}
	if numEntries > maxTagBytes/uint64(entryLen) {
		return nil, h, fmt.Errorf("implausible IFD entry count %d", numEntries)
	}
	ifdBlock := make([]byte, entryLen*int(numEntries))
	if _, err := io.ReadFull(r, ifdBlock); err != nil {
		return nil, h, fmt.Errorf("failed to read IFD block: %w", err)
	}

	bo := h.byteOrder
	for i := 0; i < int(numEntries); i++ {
		raw := ifdBlock[i*entryLen : (i+1)*entryLen]
		entry := iFDEntry{
			Tag:   Tag(bo.Uint16(raw[0:2])),
			FType: fieldType(bo.Uint16(raw[2:4])),
		}
		if entry.FType.bytes() == 0 {
			slog.Warn("skipping tag with unrecognized field type", "tag", entry.Tag, "type", uint16(entry.FType))
			continue
		}

		var valueField []byte
		if h.isBigTIFF {
			entry.Count = bo.Uint64(raw[4:12])
			valueField = raw[12:20]
			entry.ValueOffset = bo.Uint64(valueField)
		} else {
			entry.Count = uint64(bo.Uint32(raw[4:8]))
			valueField = raw[8:12]
			entry.ValueOffset = uint64(bo.Uint32(valueField))
		}

		totalBytes := uint64(entry.FType.bytes()) * entry.Count
		if totalBytes > maxTagBytes {
			return nil, h, fmt.Errorf("tag %s: value of %d bytes is too large", entry.Tag, totalBytes)
		}
		if totalBytes <= inlineSize {
			entry.ValueBytes = valueField[:totalBytes]
		}

		tagvalue, err := entry.value(r, bo)
		if err != nil {
			return nil, h, fmt.Errorf("tag %s: %w", entry.Tag, err)
		}
		if tagvalue != nil {
			tags[entry.Tag] = *tagvalue
		}
	}
	return tags, h, nil
}

// value decodes the entry payload. Types the reader has no use for return nil.
func (ifd *iFDEntry) value(r io.ReadSeeker, byteOrder binary.ByteOrder) (*tagData, error) {
	t := tagData{fType: ifd.FType, length: uint32(ifd.Count)}
	if ifd.Count == 0 {
		return &t, nil
	}
	var reader io.Reader
	if ifd.ValueBytes != nil {
		reader = bytes.NewReader(ifd.ValueBytes)
	} else {
		readerAt, ok := r.(io.ReaderAt)
		if !ok {
			return nil, errors.New("reader does not implement io.ReaderAt")
		}
		reader = io.NewSectionReader(readerAt, int64(ifd.ValueOffset), int64(ifd.FType.bytes())*int64(ifd.Count))
	}
	var err error
	switch ifd.FType {
	case BYTE, UNDEFINED:
		t.byteData = make([]uint8, ifd.Count)
		_, err = io.ReadFull(reader, t.byteData)
	case ASCII:
		p := make([]uint8, ifd.Count)
		if _, err = io.ReadFull(reader, p); err == nil {
			t.asciiData = string(bytes.Trim(p, "\x00"))
		}
	case SHORT:
		t.shortData = make([]uint16, ifd.Count)
		err = binary.Read(reader, byteOrder, t.shortData)
	case LONG:
		t.longData = make([]uint32, ifd.Count)
		err = binary.Read(reader, byteOrder, t.longData)
	case FLOAT:
		t.floatData = make([]float32, ifd.Count)
		err = binary.Read(reader, byteOrder, t.floatData)
	case DOUBLE:
		t.doubleData = make([]float64, ifd.Count)
		err = binary.Read(reader, byteOrder, t.doubleData)
	case LONG8, IFD8:
		t.uint64Data = make([]uint64, ifd.Count)
		err = binary.Read(reader, byteOrder, t.uint64Data)
	default:
		slog.Debug("ignoring tag value", "tag", ifd.Tag, "type", ifd.FType)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (g *GeoTIFF) getUint(tag Tag) (uint64, bool) {
	t, ok := g.tags[tag]
	if !ok {
		return 0, false
	}
	switch {
	case t.fType == SHORT && len(t.shortData) > 0:
		return uint64(t.shortData[0]), true
	case t.fType == LONG && len(t.longData) > 0:
		return uint64(t.longData[0]), true
	case t.fType == LONG8 && len(t.uint64Data) > 0:
		return t.uint64Data[0], true
	}
	return 0, false
}

func (td tagData) doubleDataValue() ([]float64, bool) {
	if td.fType == DOUBLE {
		return td.doubleData, true
	}
	return nil, false
}
