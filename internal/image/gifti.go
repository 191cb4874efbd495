package image

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

type giftiDocument struct {
	XMLName    xml.Name         `xml:"GIFTI"`
	DataArrays []giftiDataArray `xml:"DataArray"`
}

type giftiDataArray struct {
	Intent             string `xml:"Intent,attr"`
	DataType           string `xml:"DataType,attr"`
	ArrayIndexingOrder string `xml:"ArrayIndexingOrder,attr"`
	Dimensionality     int    `xml:"Dimensionality,attr"`
	Dim0               int    `xml:"Dim0,attr"`
	Dim1               int    `xml:"Dim1,attr"`
	Dim2               int    `xml:"Dim2,attr"`
	Dim3               int    `xml:"Dim3,attr"`
	Dim4               int    `xml:"Dim4,attr"`
	Dim5               int    `xml:"Dim5,attr"`
	Encoding           string `xml:"Encoding,attr"`
	Endian             string `xml:"Endian,attr"`
	ExternalFileName   string `xml:"ExternalFileName,attr"`
	Data               string `xml:"Data"`
}

func (da *giftiDataArray) shape() ([]int, error) {
	dims := []int{da.Dim0, da.Dim1, da.Dim2, da.Dim3, da.Dim4, da.Dim5}
	if da.Dimensionality < 1 || da.Dimensionality > len(dims) {
		return nil, errs.Input("GIFTI data array has dimensionality %d", da.Dimensionality)
	}

	shape := dims[:da.Dimensionality]
	for i, d := range shape {
		if d < 1 {
			return nil, errs.Input("GIFTI data array Dim%d is %d", i, d)
		}
	}
	return append([]int(nil), shape...), nil
}

var giftiTypeSize = map[string]int{
	"NIFTI_TYPE_UINT8":   1,
	"NIFTI_TYPE_INT8":    1,
	"NIFTI_TYPE_INT16":   2,
	"NIFTI_TYPE_UINT16":  2,
	"NIFTI_TYPE_INT32":   4,
	"NIFTI_TYPE_UINT32":  4,
	"NIFTI_TYPE_FLOAT32": 4,
	"NIFTI_TYPE_INT64":   8,
	"NIFTI_TYPE_FLOAT64": 8,
}

func (da *giftiDataArray) decode() (*Volume, error) {
	shape, err := da.shape()
	if err != nil {
		return nil, err
	}
	if da.ExternalFileName != "" {
		return nil, errs.Input("GIFTI external data files are not supported (%s)", da.ExternalFileName)
	}

	n := size(shape)
	var values []float64

	switch da.Encoding {
	case "ASCII":
		values, err = parseASCII(da.Data)
	case "Base64Binary", "GZipBase64Binary":
		var raw []byte
		raw, err = base64.StdEncoding.DecodeString(stripSpace(da.Data))
		if err != nil {
			return nil, errs.WrapInput(err, "GIFTI data array is not valid base64")
		}
		if da.Encoding == "GZipBase64Binary" {
			raw, err = inflate(raw)
			if err != nil {
				return nil, errs.WrapInput(err, "GIFTI data array cannot be decompressed")
			}
		}
		values, err = decodeBinary(raw, da.DataType, da.Endian)
	default:
		return nil, errs.Input("unsupported GIFTI encoding %q", da.Encoding)
	}
	if err != nil {
		return nil, err
	}

	if len(values) != n {
		return nil, errs.Input("GIFTI data array holds %d values but its dimensions need %d", len(values), n)
	}

	if da.ArrayIndexingOrder == "ColumnMajorOrder" && len(shape) > 1 {
		values = columnToRowMajor(values, shape)
	}

	return NewVolume(shape, values)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}

func parseASCII(s string) ([]float64, error) {
	fields := strings.Fields(s)
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errs.WrapInput(err, "GIFTI ASCII data")
		}
		values[i] = v
	}
	return values, nil
}

func inflate(raw []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return io.ReadAll(zr)
}

func decodeBinary(raw []byte, dataType string, endian string) ([]float64, error) {
	width, ok := giftiTypeSize[dataType]
	if !ok {
		return nil, errs.Input("unsupported GIFTI data type %q", dataType)
	}
	if len(raw)%width != 0 {
		return nil, errs.Input("GIFTI data length %d is not a multiple of %d", len(raw), width)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if endian == "BigEndian" {
		order = binary.BigEndian
	}

	values := make([]float64, len(raw)/width)
	for i := range values {
		b := raw[i*width : (i+1)*width]
		switch dataType {
		case "NIFTI_TYPE_UINT8":
			values[i] = float64(b[0])
		case "NIFTI_TYPE_INT8":
			values[i] = float64(int8(b[0]))
		case "NIFTI_TYPE_INT16":
			values[i] = float64(int16(order.Uint16(b)))
		case "NIFTI_TYPE_UINT16":
			values[i] = float64(order.Uint16(b))
		case "NIFTI_TYPE_INT32":
			values[i] = float64(int32(order.Uint32(b)))
		case "NIFTI_TYPE_UINT32":
			values[i] = float64(order.Uint32(b))
		case "NIFTI_TYPE_FLOAT32":
			values[i] = float64(math.Float32frombits(order.Uint32(b)))
		case "NIFTI_TYPE_INT64":
			values[i] = float64(int64(order.Uint64(b)))
		case "NIFTI_TYPE_FLOAT64":
			values[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return values, nil
}

// columnToRowMajor reorders column-major values of the given shape into row-major order
func columnToRowMajor(values []float64, shape []int) []float64 {
	out := make([]float64, len(values))
	idx := make([]int, len(shape))
	for rowMajor := range out {
		rem := rowMajor
		for d := len(shape) - 1; d >= 0; d-- {
			idx[d] = rem % shape[d]
			rem /= shape[d]
		}

		colMajor, stride := 0, 1
		for d := 0; d < len(shape); d++ {
			colMajor += idx[d] * stride
			stride *= shape[d]
		}
		out[rowMajor] = values[colMajor]
	}
	return out
}

// ReadGIFTI decodes a GIFTI document. A single data array is returned as is.
// Several 1D arrays of equal length, one per timepoint, are stacked into a
// vertices-by-time volume.
func ReadGIFTI(r io.Reader) (*Volume, error) {
	var doc giftiDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errs.WrapInput(err, "cannot parse GIFTI document")
	}
	if len(doc.DataArrays) == 0 {
		return nil, errs.Input("GIFTI document has no data arrays")
	}

	first, err := doc.DataArrays[0].decode()
	if err != nil {
		return nil, err
	}
	if len(doc.DataArrays) == 1 || len(first.Shape) != 1 {
		return first, nil
	}

	columns := []*Volume{first}
	for i := 1; i < len(doc.DataArrays); i++ {
		v, err := doc.DataArrays[i].decode()
		if err != nil {
			return nil, err
		}
		if len(v.Shape) != 1 || v.Shape[0] != first.Shape[0] {
			// Not a timeseries stack; fall back to the first array.
			return first, nil
		}
		columns = append(columns, v)
	}

	vertices, timepoints := first.Shape[0], len(columns)
	data := make([]float64, vertices*timepoints)
	for t, col := range columns {
		for i, value := range col.Data {
			data[i*timepoints+t] = value
		}
	}

	return NewVolume([]int{vertices, timepoints}, data)
}

// LoadGIFTI reads a .gii file
func LoadGIFTI(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.WrapInput(err, "cannot read GIFTI image %s", path)
	}
	defer f.Close()

	return ReadGIFTI(f)
}
