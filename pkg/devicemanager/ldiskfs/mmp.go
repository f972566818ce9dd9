package ldiskfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/coral-ha/clownf/utils"
)

const (
	MMPMagic = 0x004D4D50
	// MMPSeqClean is written by the holder on a clean unmount
	MMPSeqClean = 0xFF4D4D50
	// MMPSeqFsck is written while e2fsck owns the device
	MMPSeqFsck = 0xE24D4D50
	// MMPSeqMax is the largest sequence a live holder ever writes
	MMPSeqMax = 0xE24D4D4F

	// MMPMinCheckInterval seconds, EXT4_MMP_MIN_CHECK_INTERVAL
	MMPMinCheckInterval = 5

	// byte offsets inside struct mmp_struct
	offMMPMagic         = 0
	offMMPSeq           = 4
	offMMPTime          = 8
	offMMPNodename      = 16
	offMMPBdevname      = 80
	offMMPCheckInterval = 112
	offMMPChecksum      = 1020

	mmpNodenameSize = 64
	mmpBdevnameSize = 32
	// MMPStructSize on-disk size of struct mmp_struct
	MMPStructSize = 1024
)

var (
	ErrMMPNotSupported = errors.New("MMP feature is not supported")
	ErrBadMMPBlock     = errors.New("MMP block number beyond filesystem range")
	ErrMMPMagic        = errors.New("MMP block has invalid magic number")
	ErrMMPChecksum     = errors.New("MMP block checksum does not match")
)

// MMPRecord is the liveness fence last written by the holder of the device
type MMPRecord struct {
	Magic uint32
	Seq   uint32
	Time  time.Time
	// NodeName of the last writer
	NodeName string
	// BdevName is the device name on the last writer
	BdevName      string
	CheckInterval uint16
	Checksum      uint32
}

// IsClean is true once the holder unmounted cleanly
func (m *MMPRecord) IsClean() bool {
	return m.Seq == MMPSeqClean
}

// IsFsck is true while e2fsck is running on the device
func (m *MMPRecord) IsFsck() bool {
	return m.Seq == MMPSeqFsck
}

// DecodeMMP parses and validates a raw MMP block against its superblock
func DecodeMMP(buf []byte, sb *Superblock) (*MMPRecord, error) {
	if len(buf) < MMPStructSize {
		return nil, fmt.Errorf("short MMP block: %d bytes", len(buf))
	}
	le := binary.LittleEndian

	m := &MMPRecord{
		Magic:         le.Uint32(buf[offMMPMagic:]),
		Seq:           le.Uint32(buf[offMMPSeq:]),
		Time:          time.Unix(int64(le.Uint64(buf[offMMPTime:])), 0),
		NodeName:      utils.CString(buf[offMMPNodename : offMMPNodename+mmpNodenameSize]),
		BdevName:      utils.CString(buf[offMMPBdevname : offMMPBdevname+mmpBdevnameSize]),
		CheckInterval: le.Uint16(buf[offMMPCheckInterval:]),
		Checksum:      le.Uint32(buf[offMMPChecksum:]),
	}

	if m.Magic != MMPMagic {
		return nil, fmt.Errorf("%w: 0x%08x", ErrMMPMagic, m.Magic)
	}
	if sb.HasMetadataCsum() {
		if got := crc32cLE(sb.CsumSeed, buf[:offMMPChecksum]); got != m.Checksum {
			return nil, fmt.Errorf("%w: 0x%08x != 0x%08x", ErrMMPChecksum, got, m.Checksum)
		}
	}
	return m, nil
}

// checkMMPBlock rejects MMP block numbers outside the data area
func checkMMPBlock(sb *Superblock) error {
	if !sb.HasMMP() {
		return ErrMMPNotSupported
	}
	if sb.MMPBlock <= uint64(sb.FirstDataBlock) || sb.MMPBlock >= sb.BlocksCount {
		return fmt.Errorf("%w: %d", ErrBadMMPBlock, sb.MMPBlock)
	}
	return nil
}
