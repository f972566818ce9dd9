/*
   Copyright @ 2021 bocloud <fushaosong@beyondcent.com>.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package ldiskfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/coral-ha/clownf/utils"
)

const (
	// SuperblockOffset the primary superblock always starts 1024 bytes into the device
	SuperblockOffset = 1024
	// SuperblockSize on-disk size of struct ext4_super_block
	SuperblockSize = 1024

	superMagic = 0xEF53

	// byte offsets inside struct ext4_super_block
	offBlocksCountLo   = 0x04
	offFirstDataBlock  = 0x14
	offLogBlockSize    = 0x18
	offMagic           = 0x38
	offState           = 0x3A
	offFeatureCompat   = 0x5C
	offFeatureIncompat = 0x60
	offFeatureRoCompat = 0x64
	offUUID            = 0x68
	offVolumeName      = 0x78
	offBlocksCountHi   = 0x150
	offMMPInterval     = 0x166
	offMMPBlock        = 0x168
	offChecksumSeed    = 0x270
	offChecksum        = 0x3FC

	FeatureIncompat64Bit    = 0x0080
	FeatureIncompatMMP      = 0x0100
	FeatureIncompatCsumSeed = 0x2000
	FeatureRoCompatMetaCsum = 0x0400

	// block sizes from 1KiB to 64KiB
	maxLogBlockSize = 6
)

var (
	ErrBadMagic     = errors.New("bad magic number in superblock")
	ErrBadBlockSize = errors.New("corrupt superblock, invalid block size")
	ErrChecksum     = errors.New("superblock checksum does not match superblock")

	castagnoli = crc32.MakeTable(crc32.Castagnoli)
)

// Superblock is the subset of the ext4 superblock the MMP check needs
type Superblock struct {
	BlocksCount     uint64
	FirstDataBlock  uint32
	BlockSize       uint32
	State           uint16
	FeatureCompat   uint32
	FeatureIncompat uint32
	FeatureRoCompat uint32
	UUID            [16]byte
	VolumeName      string
	// MMPInterval is the update interval the holder was configured with, in seconds
	MMPInterval uint16
	MMPBlock    uint64
	// CsumSeed seeds the metadata checksums, only meaningful with metadata_csum
	CsumSeed uint32
}

// crc32cLE matches the kernel's crc32c_le(seed, p): no pre or post inversion
func crc32cLE(seed uint32, p []byte) uint32 {
	return ^crc32.Update(^seed, castagnoli, p)
}

// ParseSuperblock decodes and validates a raw superblock
func ParseSuperblock(buf []byte) (*Superblock, error) {
	if len(buf) < SuperblockSize {
		return nil, fmt.Errorf("short superblock: %d bytes", len(buf))
	}
	le := binary.LittleEndian

	if le.Uint16(buf[offMagic:]) != superMagic {
		return nil, ErrBadMagic
	}

	logBlockSize := le.Uint32(buf[offLogBlockSize:])
	if logBlockSize > maxLogBlockSize {
		return nil, fmt.Errorf("%w: log block size %d", ErrBadBlockSize, logBlockSize)
	}

	sb := &Superblock{
		BlocksCount:     uint64(le.Uint32(buf[offBlocksCountLo:])),
		FirstDataBlock:  le.Uint32(buf[offFirstDataBlock:]),
		BlockSize:       1024 << logBlockSize,
		State:           le.Uint16(buf[offState:]),
		FeatureCompat:   le.Uint32(buf[offFeatureCompat:]),
		FeatureIncompat: le.Uint32(buf[offFeatureIncompat:]),
		FeatureRoCompat: le.Uint32(buf[offFeatureRoCompat:]),
		VolumeName:      utils.CString(buf[offVolumeName : offVolumeName+16]),
		MMPInterval:     le.Uint16(buf[offMMPInterval:]),
		MMPBlock:        le.Uint64(buf[offMMPBlock:]),
	}
	copy(sb.UUID[:], buf[offUUID:offUUID+16])

	if sb.HasIncompat(FeatureIncompat64Bit) {
		sb.BlocksCount |= uint64(le.Uint32(buf[offBlocksCountHi:])) << 32
	}

	if sb.HasMetadataCsum() {
		want := le.Uint32(buf[offChecksum:])
		if got := crc32cLE(^uint32(0), buf[:offChecksum]); got != want {
			return nil, fmt.Errorf("%w: 0x%08x != 0x%08x", ErrChecksum, got, want)
		}
		if sb.HasIncompat(FeatureIncompatCsumSeed) {
			sb.CsumSeed = le.Uint32(buf[offChecksumSeed:])
		} else {
			sb.CsumSeed = crc32cLE(^uint32(0), sb.UUID[:])
		}
	}

	return sb, nil
}

func (sb *Superblock) HasIncompat(feature uint32) bool {
	return sb.FeatureIncompat&feature != 0
}

func (sb *Superblock) HasMetadataCsum() bool {
	return sb.FeatureRoCompat&FeatureRoCompatMetaCsum != 0
}

// HasMMP reports whether multi-mount protection is enabled
func (sb *Superblock) HasMMP() bool {
	return sb.HasIncompat(FeatureIncompatMMP)
}
