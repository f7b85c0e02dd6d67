package geotiff

// Tag is a TIFF tag identifier.
type Tag uint16

const (
	ImageWidth          Tag = 256
	ImageLength         Tag = 257
	BitsPerSample       Tag = 258
	Compression         Tag = 259
	SamplesPerPixel     Tag = 277
	TileWidth           Tag = 322
	TileLength          Tag = 323
	SampleFormat        Tag = 339
	ModelPixelScale     Tag = 33550
	ModelTiepoint       Tag = 33922
	ModelTransformation Tag = 34264
	GeoKeyDirectory     Tag = 34735
	GeoDoubleParams     Tag = 34736
	GeoAsciiParams      Tag = 34737
	GDALNoData          Tag = 42113
)

var tagToLabel = map[Tag]string{
	ImageWidth:          "ImageWidth",
	ImageLength:         "ImageLength",
	BitsPerSample:       "BitsPerSample",
	Compression:         "Compression",
	SamplesPerPixel:     "SamplesPerPixel",
	TileWidth:           "TileWidth",
	TileLength:          "TileLength",
	SampleFormat:        "SampleFormat",
	ModelPixelScale:     "ModelPixelScale",
	ModelTiepoint:       "ModelTiepoint",
	ModelTransformation: "ModelTransformation",
	GeoKeyDirectory:     "GeoKeyDirectory",
	GeoDoubleParams:     "GeoDoubleParams",
	GeoAsciiParams:      "GeoAsciiParams",
	GDALNoData:          "GDALNoData",
}

type fieldType uint16

const (
	BYTE      fieldType = 1
	ASCII     fieldType = 2
	SHORT     fieldType = 3
	LONG      fieldType = 4
	RATIONAL  fieldType = 5
	SBYTE     fieldType = 6
	UNDEFINED fieldType = 7
	SSHORT    fieldType = 8
	SLONG     fieldType = 9
	SRATIONAL fieldType = 10
	FLOAT     fieldType = 11
	DOUBLE    fieldType = 12
	LONG8     fieldType = 16
	SLONG8    fieldType = 17
	IFD8      fieldType = 18
)

const (
	zeroByte  = 0
	oneByte   = 1
	twoByte   = 2
	fourByte  = 4
	eightByte = 8
)

// header magic
const (
	littleEndian      = 0x4949 // "II"
	bigEndian         = 0x4D4D // "MM"
	tiffIdentifier    = 42
	bigTiffIdentifier = 43
	bigTiffBytesize   = 8
)

// GeoKey ids and values.
const (
	gkModelType        = 1024
	gkRasterType       = 1025
	gkGeographicType   = 2048
	gkProjectedCSType  = 3072
	rasterPixelIsArea  = 1
	rasterPixelIsPoint = 2
)
