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
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/coral-ha/clownf/utils/log"
)

// Filesystem is a superblock-only handle on an ldiskfs/ext4 device.
// It never replays the journal and never claims the MMP block.
type Filesystem struct {
	device string
	sb     *Superblock

	mmpFd     int
	mmpDirect bool
	mmpBuf    []byte
}

// Open reads and validates the primary superblock of device
func Open(device string) (*Filesystem, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, SuperblockSize)
	if _, err := f.ReadAt(buf, SuperblockOffset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("device %s too small for a superblock", device)
		}
		return nil, fmt.Errorf("failed to read superblock of %s: %w", device, err)
	}

	sb, err := ParseSuperblock(buf)
	if err != nil {
		return nil, err
	}

	return &Filesystem{device: device, sb: sb, mmpFd: -1}, nil
}

func (fs *Filesystem) Device() string {
	return fs.device
}

func (fs *Filesystem) Superblock() *Superblock {
	return fs.sb
}

// ReadMMP reads the MMP block bypassing the page cache, a cached copy would
// hide the updates of a holder running on another node.
func (fs *Filesystem) ReadMMP() (*MMPRecord, error) {
	if err := checkMMPBlock(fs.sb); err != nil {
		return nil, err
	}

	if fs.mmpBuf == nil {
		// anonymous mappings are page aligned, as O_DIRECT requires
		buf, err := unix.Mmap(-1, 0, int(fs.sb.BlockSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return nil, fmt.Errorf("failed to alloc MMP buffer: %w", err)
		}
		fs.mmpBuf = buf
	}

	if fs.mmpFd < 0 {
		fd, direct, err := openDirect(fs.device)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s for MMP read: %w", fs.device, err)
		}
		fs.mmpFd, fs.mmpDirect = fd, direct
	}

	offset := int64(fs.sb.MMPBlock) * int64(fs.sb.BlockSize)
	n, err := pread(fs.mmpFd, fs.mmpBuf, offset)
	if err == unix.EINVAL && fs.mmpDirect {
		// some filesystems accept O_DIRECT on open and refuse it on read
		n, err = fs.rereadBuffered(offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read MMP block %d: %w", fs.sb.MMPBlock, err)
	}
	if n != len(fs.mmpBuf) {
		return nil, fmt.Errorf("short read of MMP block %d: %d bytes", fs.sb.MMPBlock, n)
	}

	return DecodeMMP(fs.mmpBuf, fs.sb)
}

func (fs *Filesystem) rereadBuffered(offset int64) (int, error) {
	log.Debugf("O_DIRECT read refused on %s, reading through the page cache", fs.device)
	if err := unix.Close(fs.mmpFd); err != nil {
		log.Warnf("failed to close %s: %s", fs.device, err)
	}
	fs.mmpFd = -1

	fd, err := openBuffered(fs.device)
	if err != nil {
		return 0, err
	}
	fs.mmpFd, fs.mmpDirect = fd, false
	return pread(fs.mmpFd, fs.mmpBuf, offset)
}

// Close releases the MMP descriptor and buffer
func (fs *Filesystem) Close() error {
	var errs []error
	if fs.mmpFd >= 0 {
		if err := unix.Close(fs.mmpFd); err != nil {
			errs = append(errs, err)
		}
		fs.mmpFd = -1
	}
	if fs.mmpBuf != nil {
		if err := unix.Munmap(fs.mmpBuf); err != nil {
			errs = append(errs, err)
		}
		fs.mmpBuf = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close filesystem on device [%s]: %v", fs.device, errs)
	}
	return nil
}

func openDirect(device string) (int, bool, error) {
	fd, err := open(device, unix.O_RDONLY|unix.O_DIRECT|unix.O_CLOEXEC)
	if err == unix.EINVAL {
		// tmpfs refuses O_DIRECT, only image files live there
		log.Debugf("O_DIRECT not supported on %s, reading through the page cache", device)
		fd, err = openBuffered(device)
		return fd, false, err
	}
	return fd, true, err
}

func openBuffered(device string) (int, error) {
	return open(device, unix.O_RDONLY|unix.O_CLOEXEC)
}

func open(device string, flags int) (int, error) {
	for {
		fd, err := unix.Open(device, flags, 0)
		if err == unix.EINTR {
			continue
		}
		return fd, err
	}
}

// pread wraps unix.Pread to handle EINTR
func pread(fd int, buf []byte, offset int64) (int, error) {
	for {
		n, err := unix.Pread(fd, buf, offset)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}
