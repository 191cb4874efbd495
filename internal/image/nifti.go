package image

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/KyungWonPark/nifti"
	"github.com/klauspost/pgzip"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

const niftiHeaderSize = 348

// NIfTI-1 datatype codes
const (
	niftiUint8   int16 = 2
	niftiInt16   int16 = 4
	niftiInt32   int16 = 8
	niftiFloat32 int16 = 16
	niftiFloat64 int16 = 64
	niftiInt8    int16 = 256
	niftiUint16  int16 = 512
)

// niftiBitpix is the voxel width of every datatype LoadNIfTI decodes
var niftiBitpix = map[int16]int16{
	niftiUint8:   8,
	niftiInt16:   16,
	niftiInt32:   32,
	niftiFloat32: 32,
	niftiFloat64: 64,
	niftiInt8:    8,
	niftiUint16:  16,
}

// niftiShape reads the spatial and temporal extents from a NIfTI-1 header.
// Trailing axes beyond dim[0] are ignored.
func niftiShape(dim [8]int16) ([]int, error) {
	ndim := int(dim[0])
	if ndim < 1 || ndim > 4 {
		return nil, errs.Input("NIfTI images must have 1 to 4 dimensions, got %d", ndim)
	}

	shape := make([]int, ndim)
	for i := range shape {
		shape[i] = int(dim[i+1])
		if shape[i] < 1 {
			return nil, errs.Input("NIfTI dimension %d has extent %d", i+1, shape[i])
		}
	}
	return shape, nil
}

// readNIfTIHeader decodes a single-file NIfTI-1 header in whichever byte
// order makes sizeof_hdr read 348, and checks the voxel layout it describes
func readNIfTIHeader(r io.Reader) (*nifti.Nifti1Header, binary.ByteOrder, error) {
	var raw [niftiHeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, nil, errs.WrapInput(err, "reading NIfTI header")
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw[:4]) == niftiHeaderSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw[:4]) == niftiHeaderSize:
		order = binary.BigEndian
	default:
		return nil, nil, errs.Input("not a NIfTI-1 image: sizeof_hdr is %d", int32(binary.LittleEndian.Uint32(raw[:4])))
	}

	header := &nifti.Nifti1Header{}
	if err := binary.Read(bytes.NewReader(raw[:]), order, header); err != nil {
		return nil, nil, errs.WrapInput(err, "decoding NIfTI header")
	}

	if magic := string(header.Magic[:3]); magic != "n+1" {
		return nil, nil, errs.Input("NIfTI magic %q is not a single-file NIfTI-1 image", magic)
	}
	bitpix, ok := niftiBitpix[header.Datatype]
	if !ok {
		return nil, nil, errs.Input("NIfTI datatype %d is not supported", header.Datatype)
	}
	if header.Bitpix != bitpix {
		return nil, nil, errs.Input("NIfTI datatype %d has %d bits per voxel, header says %d", header.Datatype, bitpix, header.Bitpix)
	}
	if header.VoxOffset < niftiHeaderSize || header.VoxOffset != float32(math.Trunc(float64(header.VoxOffset))) {
		return nil, nil, errs.Input("NIfTI vox_offset %g is invalid", header.VoxOffset)
	}

	return header, order, nil
}

// niftiDecoder returns the function turning one voxel's bytes into a value
func niftiDecoder(datatype int16, order binary.ByteOrder) func([]byte) float64 {
	switch datatype {
	case niftiUint8:
		return func(b []byte) float64 { return float64(b[0]) }
	case niftiInt8:
		return func(b []byte) float64 { return float64(int8(b[0])) }
	case niftiInt16:
		return func(b []byte) float64 { return float64(int16(order.Uint16(b))) }
	case niftiUint16:
		return func(b []byte) float64 { return float64(order.Uint16(b)) }
	case niftiInt32:
		return func(b []byte) float64 { return float64(int32(order.Uint32(b))) }
	case niftiFloat32:
		return func(b []byte) float64 { return float64(math.Float32frombits(order.Uint32(b))) }
	default:
		return func(b []byte) float64 { return math.Float64frombits(order.Uint64(b)) }
	}
}

// openNIfTI opens path for reading, decompressing it when the name ends in .gz
func openNIfTI(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.WrapInput(err, "cannot read NIfTI image %s", path)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return f, nil
	}

	zr, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errs.WrapInput(err, "%s is not a gzip stream", path)
	}
	return &gzipFile{Reader: zr, file: f}, nil
}

type gzipFile struct {
	*pgzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if ferr := g.file.Close(); err == nil {
		err = ferr
	}
	return err
}

// LoadNIfTI reads a .nii or .nii.gz image. Values are laid out row-major
// over (x, y, z, t) so the last axis is time, and carry the header's
// scl_slope and scl_inter scaling when the slope is set.
func LoadNIfTI(path string) (*Volume, error) {
	r, err := openNIfTI(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	header, order, err := readNIfTIHeader(r)
	if err != nil {
		return nil, errs.WrapInput(err, "loading %s", path)
	}

	shape, err := niftiShape(header.Dim)
	if err != nil {
		return nil, err
	}

	full := [4]int{1, 1, 1, 1}
	copy(full[:], shape)
	nx, ny, nz, nt := full[0], full[1], full[2], full[3]

	width := int64(header.Bitpix / 8)
	nvox := int64(nx) * int64(ny) * int64(nz) * int64(nt)

	if _, err := io.CopyN(io.Discard, r, int64(header.VoxOffset)-niftiHeaderSize); err != nil {
		return nil, errs.WrapInput(err, "%s is truncated", path)
	}
	payload, err := io.ReadAll(io.LimitReader(r, nvox*width))
	if err != nil {
		return nil, errs.WrapInput(err, "reading %s", path)
	}
	if int64(len(payload)) < nvox*width {
		return nil, errs.Input("%s is truncated: %d of %d data bytes", path, len(payload), nvox*width)
	}

	decode := niftiDecoder(header.Datatype, order)
	slope, inter := float64(header.SclSlope), float64(header.SclInter)
	scaled := slope != 0 && !math.IsNaN(slope) && !math.IsInf(slope, 0)

	data := make([]float64, nvox)

	// file order has x fastest and t slowest
	var wg sync.WaitGroup
	for x := 0; x < nx; x++ {
		wg.Add(1)
		go func(x int) {
			defer wg.Done()
			for y := 0; y < ny; y++ {
				for z := 0; z < nz; z++ {
					base := ((x*ny+y)*nz + z) * nt
					for t := 0; t < nt; t++ {
						at := int64(((t*nz+z)*ny+y)*nx+x) * width
						v := decode(payload[at : at+width])
						if scaled {
							v = v*slope + inter
						}
						data[base+t] = v
					}
				}
			}
		}(x)
	}
	wg.Wait()

	return NewVolume(shape, data)
}
