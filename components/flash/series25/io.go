package series25

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

type readerAt struct {
	ctx   context.Context
	flash *Flash
}

// ReaderAt returns an io.ReaderAt over the device. Every ReadAt runs under ctx.
func (f *Flash) ReaderAt(ctx context.Context) io.ReaderAt {
	return &readerAt{ctx: ctx, flash: f}
}

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Errorf("negative offset %d", off)
	}
	capacity := int64(r.flash.geometry.Capacity)
	if off >= capacity {
		return 0, io.EOF
	}
	n := len(p)
	if rest := capacity - off; int64(n) > rest {
		n = int(rest)
	}
	if err := r.flash.Read(r.ctx, uint32(off), p[:n]); err != nil {
		return 0, err
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

type writerAt struct {
	ctx   context.Context
	flash *Flash
}

// WriterAt returns an io.WriterAt over the device. It programs without erasing, so the target
// range must have been erased first.
func (f *Flash) WriterAt(ctx context.Context) io.WriterAt {
	return &writerAt{ctx: ctx, flash: f}
}

func (w *writerAt) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(w.flash.geometry.Capacity) {
		return 0, &OutOfRangeError{Addr: uint32(off), Length: uint64(len(p)), Capacity: w.flash.geometry.Capacity}
	}
	err := w.flash.WriteBytes(w.ctx, uint32(off), p)
	var partial *PartialWriteError
	if errors.As(err, &partial) {
		return partial.BytesWritten, err
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
