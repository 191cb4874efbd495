package image

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/KyungWonPark/nifti"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
)

// niftiHeader describes a single-file image with a 4 byte extension gap
func niftiHeader(datatype, bitpix int16, dims ...int16) nifti.Nifti1Header {
	h := nifti.Nifti1Header{
		SizeofHdr: 348,
		Datatype:  datatype,
		Bitpix:    bitpix,
		VoxOffset: 352,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	h.Dim[0] = int16(len(dims))
	copy(h.Dim[1:], dims)
	for i := len(dims) + 1; i < len(h.Dim); i++ {
		h.Dim[i] = 1
	}
	return h
}

// writeNIfTI writes header, extension gap and voxels to path, gzipped when
// the name ends in .gz
func writeNIfTI(t *testing.T, path string, order binary.ByteOrder, h nifti.Nifti1Header, voxels any) {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, order, h))
	buf.Write(make([]byte, max(0, int(h.VoxOffset)-348)))
	require.NoError(t, binary.Write(&buf, order, voxels))

	raw := buf.Bytes()
	if filepath.Ext(path) == ".gz" {
		var z bytes.Buffer
		zw := pgzip.NewWriter(&z)
		_, err := zw.Write(raw)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		raw = z.Bytes()
	}
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

func TestLoadNIfTIDatatypes(t *testing.T) {
	cases := map[string]struct {
		datatype, bitpix int16
		voxels           any
		want             []float64
	}{
		"uint8":   {2, 8, []uint8{0, 1, 200, 255}, []float64{0, 1, 200, 255}},
		"int8":    {256, 8, []int8{-128, -1, 0, 127}, []float64{-128, -1, 0, 127}},
		"int16":   {4, 16, []int16{-1, 0, 1, 2}, []float64{-1, 0, 1, 2}},
		"uint16":  {512, 16, []uint16{0, 1, 40000, 65535}, []float64{0, 1, 40000, 65535}},
		"int32":   {8, 32, []int32{-3, 0, 70000, math.MaxInt32}, []float64{-3, 0, 70000, math.MaxInt32}},
		"float32": {16, 32, []float32{-0.5, 0, 1.25, 3e6}, []float64{-0.5, 0, 1.25, 3e6}},
		"float64": {64, 64, []float64{-math.Pi, 0, math.E, 1e-300}, []float64{-math.Pi, 0, math.E, 1e-300}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bold.nii")
			writeNIfTI(t, path, binary.LittleEndian, niftiHeader(tc.datatype, tc.bitpix, 1, 1, 1, 4), tc.voxels)

			v, err := LoadNIfTI(path)
			require.NoError(t, err)
			assert.Equal(t, []int{1, 1, 1, 4}, v.Shape)
			assert.Equal(t, tc.want, v.Data)
		})
	}
}

func TestLoadNIfTIScaling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bold.nii")
	h := niftiHeader(4, 16, 1, 1, 1, 4)
	h.SclSlope, h.SclInter = 2, 10
	writeNIfTI(t, path, binary.LittleEndian, h, []int16{1, 2, 3, -4})

	v, err := LoadNIfTI(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{12, 14, 16, 2}, v.Data)

	// a zero slope means the values are stored unscaled
	h.SclSlope = 0
	writeNIfTI(t, path, binary.LittleEndian, h, []int16{1, 2, 3, -4})
	v, err = LoadNIfTI(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, -4}, v.Data)
}

func TestLoadNIfTIAxisOrder(t *testing.T) {
	// file order has x fastest; each voxel value is 100x + 10y + t
	var voxels []float32
	for tp := 0; tp < 2; tp++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 2; x++ {
				voxels = append(voxels, float32(100*x+10*y+tp))
			}
		}
	}

	for _, name := range []string{"bold.nii", "bold.nii.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			writeNIfTI(t, path, binary.LittleEndian, niftiHeader(16, 32, 2, 2, 1, 2), voxels)

			v, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, []int{2, 2, 1, 2}, v.Shape)
			assert.Equal(t, []float64{0, 1, 10, 11, 100, 101, 110, 111}, v.Data)
		})
	}
}

func TestLoadNIfTIBigEndian(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bold.nii.gz")
	writeNIfTI(t, path, binary.BigEndian, niftiHeader(8, 32, 3, 1), []int32{-7, 0, 123456})

	v, err := LoadNIfTI(path)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, v.Shape)
	assert.Equal(t, []float64{-7, 0, 123456}, v.Data)
}

func TestLoadNIfTIRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	good := niftiHeader(16, 32, 2, 1, 1, 2)
	voxels := []float32{1, 2, 3, 4}

	unsupported := niftiHeader(32, 64, 2, 1, 1, 2) // complex64
	mismatch := niftiHeader(4, 32, 2, 1, 1, 2)
	badMagic := good
	badMagic.Magic = [4]byte{'n', 'i', '1', 0}
	badOffset := good
	badOffset.VoxOffset = 100
	badSize := good
	badSize.SizeofHdr = 540

	cases := map[string]func(path string){
		"unsupported datatype": func(path string) { writeNIfTI(t, path, binary.LittleEndian, unsupported, voxels) },
		"bitpix mismatch":      func(path string) { writeNIfTI(t, path, binary.LittleEndian, mismatch, voxels) },
		"two file magic":       func(path string) { writeNIfTI(t, path, binary.LittleEndian, badMagic, voxels) },
		"vox offset":           func(path string) { writeNIfTI(t, path, binary.LittleEndian, badOffset, voxels) },
		"header size":          func(path string) { writeNIfTI(t, path, binary.LittleEndian, badSize, voxels) },
		"truncated":            func(path string) { writeNIfTI(t, path, binary.LittleEndian, good, voxels[:3]) },
		"short header": func(path string) {
			require.NoError(t, os.WriteFile(path, []byte{92, 1, 0, 0}, 0o644))
		},
		"empty": func(path string) {
			require.NoError(t, os.WriteFile(path, nil, 0o644))
		},
	}

	for name, write := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".nii")
			write(path)

			_, err := LoadNIfTI(path)
			require.Error(t, err)
			assert.True(t, errs.IsInput(err), err.Error())
		})
	}
}

func TestLoadNIfTIGzipChecks(t *testing.T) {
	dir := t.TempDir()

	// an uncompressed image with a .gz name
	plain := filepath.Join(dir, "plain.nii")
	writeNIfTI(t, plain, binary.LittleEndian, niftiHeader(16, 32, 4), []float32{1, 2, 3, 4})
	raw, err := os.ReadFile(plain)
	require.NoError(t, err)
	mislabelled := filepath.Join(dir, "mislabelled.nii.gz")
	require.NoError(t, os.WriteFile(mislabelled, raw, 0o644))

	_, err = LoadNIfTI(mislabelled)
	require.Error(t, err)
	assert.True(t, errs.IsInput(err))
	assert.Contains(t, err.Error(), "is not a gzip stream")

	// a gzip stream cut off a few bytes into the header
	full := filepath.Join(dir, "full.nii.gz")
	writeNIfTI(t, full, binary.LittleEndian, niftiHeader(16, 32, 4), []float32{1, 2, 3, 4})
	compressed, err := os.ReadFile(full)
	require.NoError(t, err)
	cut := filepath.Join(dir, "cut.nii.gz")
	require.NoError(t, os.WriteFile(cut, compressed[:20], 0o644))

	_, err = LoadNIfTI(cut)
	require.Error(t, err)
	assert.True(t, errs.IsInput(err))
}

func TestLoadNIfTIMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.nii.gz"))
	assert.True(t, errs.IsInput(err))
}

func TestNIfTIShape(t *testing.T) {
	shape, err := niftiShape([8]int16{4, 91, 109, 91, 300, 1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{91, 109, 91, 300}, shape)

	_, err = niftiShape([8]int16{5, 1, 1, 1, 1, 1, 1, 1})
	assert.True(t, errs.IsInput(err))

	_, err = niftiShape([8]int16{2, 4, 0, 1, 1, 1, 1, 1})
	assert.True(t, errs.IsInput(err))
}
