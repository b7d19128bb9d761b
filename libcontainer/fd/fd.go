// Package fd provides a scoped wrapper around a raw kernel file descriptor.
// It is the Go analogue of linyaps_box::utils::file_descriptor: a value that
// exclusively owns one descriptor, closes it on any exit path, and offers
// the byte-at-a-time read/write the sync protocol is built on.
package fd

import (
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by ReadByte when the peer has performed an orderly
// shutdown (a zero-length read), distinguishing that from a protocol error.
var ErrClosed = errors.New("fd: peer closed")

// FD owns a single kernel descriptor. The zero value is not usable; use New.
// FD is not safe to copy -- pass it by pointer, never by value. This is a
// convention (Go has no move semantics), matching how *os.File is used by
// pointer throughout the corpus.
type FD struct {
	raw int
}

// New wraps raw, taking ownership of it.
func New(raw int) *FD {
	return &FD{raw: raw}
}

// Fd returns the underlying descriptor without transferring ownership.
func (f *FD) Fd() int {
	return f.raw
}

// Release consumes f, returning the raw descriptor without closing it.
func (f *FD) Release() int {
	raw := f.raw
	f.raw = -1
	return raw
}

// Close closes the underlying descriptor. Close is a no-op if the
// descriptor was already released or closed.
func (f *FD) Close() error {
	if f.raw < 0 {
		return nil
	}
	raw := f.raw
	f.raw = -1
	return unix.Close(raw)
}

// WriteByte writes exactly one byte, retrying on EINTR/EAGAIN.
func (f *FD) WriteByte(b byte) error {
	buf := [1]byte{b}
	for {
		n, err := unix.Write(f.raw, buf[:])
		if n == 1 {
			return nil
		}
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err == nil {
			// n == 0 with no error: treat as a retry, matching the
			// C++ original's write-loop semantics.
			continue
		}
		return fmt.Errorf("write: %w", err)
	}
}

// ReadByte reads exactly one byte, retrying on EINTR/EAGAIN, returning
// ErrClosed on an orderly peer shutdown (zero-length read).
func (f *FD) ReadByte() (byte, error) {
	var buf [1]byte
	for {
		n, err := unix.Read(f.raw, buf[:])
		if n == 1 {
			return buf[0], nil
		}
		if n == 0 && err == nil {
			return 0, ErrClosed
		}
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		return 0, fmt.Errorf("read: %w", err)
	}
}

// ProcPath yields /proc/self/fd/<n>, a stable name for the resource this
// descriptor refers to, usable even if the directory entry it was opened
// through is later mutated or unlinked.
func (f *FD) ProcPath() string {
	return "/proc/self/fd/" + strconv.Itoa(f.raw)
}
