package ldiskfs

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type imageSpec struct {
	blockSize    uint32
	blocks       uint64
	mmp          bool
	mmpBlock     uint64
	metadataCsum bool
	csumSeed     uint32 // non-zero enables csum_seed
	sbInterval   uint16
}

type mmpSpec struct {
	magic    uint32
	seq      uint32
	nodename string
	bdevname string
	interval uint16
}

func defaultImage() imageSpec {
	return imageSpec{blockSize: 4096, blocks: 64, mmp: true, mmpBlock: 10, metadataCsum: true, sbInterval: 5}
}

var testUUID = [16]byte{0x6b, 0x1e, 0x32, 0x0a, 0x9d, 0x41, 0x4c, 0x2f, 0xa1, 0x07, 0x11, 0x5e, 0x8c, 0x20, 0x3d, 0x9f}

func logBlockSize(blockSize uint32) uint32 {
	log := uint32(0)
	for size := uint32(1024); size < blockSize; size <<= 1 {
		log++
	}
	return log
}

func buildSuperblock(spec imageSpec) []byte {
	le := binary.LittleEndian
	buf := make([]byte, SuperblockSize)

	le.PutUint32(buf[offBlocksCountLo:], uint32(spec.blocks))
	le.PutUint32(buf[offFirstDataBlock:], 0)
	le.PutUint32(buf[offLogBlockSize:], logBlockSize(spec.blockSize))
	le.PutUint16(buf[offMagic:], superMagic)
	le.PutUint16(buf[offState:], 1)
	copy(buf[offUUID:], testUUID[:])
	copy(buf[offVolumeName:], "lustre-OST0001")

	incompat := uint32(FeatureIncompat64Bit)
	le.PutUint32(buf[offBlocksCountHi:], uint32(spec.blocks>>32))
	if spec.mmp {
		incompat |= FeatureIncompatMMP
		le.PutUint16(buf[offMMPInterval:], spec.sbInterval)
		le.PutUint64(buf[offMMPBlock:], spec.mmpBlock)
	}
	if spec.csumSeed != 0 {
		incompat |= FeatureIncompatCsumSeed
		le.PutUint32(buf[offChecksumSeed:], spec.csumSeed)
	}
	le.PutUint32(buf[offFeatureIncompat:], incompat)

	if spec.metadataCsum {
		le.PutUint32(buf[offFeatureRoCompat:], FeatureRoCompatMetaCsum)
		le.PutUint32(buf[offChecksum:], crc32cLE(^uint32(0), buf[:offChecksum]))
	}
	return buf
}

func (spec imageSpec) seed() uint32 {
	if spec.csumSeed != 0 {
		return spec.csumSeed
	}
	return crc32cLE(^uint32(0), testUUID[:])
}

func buildMMP(spec imageSpec, m mmpSpec) []byte {
	le := binary.LittleEndian
	buf := make([]byte, spec.blockSize)

	magic := m.magic
	if magic == 0 {
		magic = MMPMagic
	}
	le.PutUint32(buf[offMMPMagic:], magic)
	le.PutUint32(buf[offMMPSeq:], m.seq)
	le.PutUint64(buf[offMMPTime:], uint64(time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC).Unix()))
	copy(buf[offMMPNodename:offMMPNodename+mmpNodenameSize], m.nodename)
	copy(buf[offMMPBdevname:offMMPBdevname+mmpBdevnameSize], m.bdevname)
	le.PutUint16(buf[offMMPCheckInterval:], m.interval)
	if spec.metadataCsum {
		le.PutUint32(buf[offMMPChecksum:], crc32cLE(spec.seed(), buf[:offMMPChecksum]))
	}
	return buf
}

// writeImage creates a sparse image holding a superblock and an MMP block
func writeImage(t *testing.T, spec imageSpec, m mmpSpec) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ost.img")

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Truncate(int64(spec.blocks)*int64(spec.blockSize)))
	_, err = f.WriteAt(buildSuperblock(spec), SuperblockOffset)
	require.NoError(t, err)
	if spec.mmp && spec.mmpBlock < spec.blocks {
		_, err = f.WriteAt(buildMMP(spec, m), int64(spec.mmpBlock)*int64(spec.blockSize))
		require.NoError(t, err)
	}
	require.NoError(t, f.Sync())
	return path
}

// rewriteMMP plays the holder on another node updating the fence
func rewriteMMP(t *testing.T, path string, spec imageSpec, m mmpSpec) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.WriteAt(buildMMP(spec, m), int64(spec.mmpBlock)*int64(spec.blockSize))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
}
