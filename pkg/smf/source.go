package smf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

var errOutOfRange = errors.New("offset outside file")

// errPastLimit is returned by reads that would cross the current limit.
var errPastLimit = fmt.Errorf("read past end of chunk: %w", io.ErrUnexpectedEOF)

const sourceBufferSize = 512

// source is a buffered, seekable byte cursor over the open file. All tracks
// share one source and reposition it before every read.
type source struct {
	rs    io.ReadSeeker
	br    *bufio.Reader
	off   int64
	size  int64
	limit int64 // reads stop here, size unless a chunk is being read
}

func newSource(rs io.ReadSeeker) (*source, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to size file: %w", err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind file: %w", err)
	}
	return &source{
		rs:    rs,
		br:    bufio.NewReaderSize(rs, sourceBufferSize),
		size:  size,
		limit: size,
	}, nil
}

func (s *source) pos() int64 { return s.off }

// seek moves the cursor to an absolute offset in [0, size]. A forward move
// inside the buffered window is served without touching the underlying file.
func (s *source) seek(off int64) error {
	if off < 0 || off > s.size {
		return errOutOfRange
	}
	if off == s.off {
		return nil
	}
	if off > s.off && off-s.off <= int64(s.br.Buffered()) {
		n, err := s.br.Discard(int(off - s.off))
		s.off += int64(n)
		return err
	}
	if _, err := s.rs.Seek(off, io.SeekStart); err != nil {
		return err
	}
	s.br.Reset(s.rs)
	s.off = off
	return nil
}

// setLimit bounds reads and skips to offsets below end. A negative end
// removes the bound.
func (s *source) setLimit(end int64) {
	if end < 0 || end > s.size {
		end = s.size
	}
	s.limit = end
}

func (s *source) skip(n int64) error {
	if s.off+n > s.limit {
		return errPastLimit
	}
	return s.seek(s.off + n)
}

// ReadByte implements io.ByteReader so the codec helpers can read from it.
func (s *source) ReadByte() (byte, error) {
	if s.off >= s.limit {
		return 0, errPastLimit
	}
	b, err := s.br.ReadByte()
	if err != nil {
		return 0, err
	}
	s.off++
	return b, nil
}

func (s *source) readFull(p []byte) error {
	if s.off+int64(len(p)) > s.limit {
		return errPastLimit
	}
	n, err := io.ReadFull(s.br, p)
	s.off += int64(n)
	return err
}
