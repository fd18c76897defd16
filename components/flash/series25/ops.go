package series25

import (
	"context"

	"github.com/pkg/errors"

	"github.com/swobbee-dev/spi-memory/components/flash/codec"
)

// maxData is the number of data bytes that fit one transaction after the opcode and address, or 0
// if the transport has no limit.
func (f *Flash) maxData() int {
	if f.maxTransfer <= 0 {
		return 0
	}
	return f.maxTransfer - 1 - int(f.geometry.Width)
}

// Read fills buf with the contents starting at addr. The device auto-increments its address, so
// this is a single transaction unless the transport limits transfer size.
func (f *Flash) Read(ctx context.Context, addr uint32, buf []byte) error {
	if err := f.checkRange(addr, uint64(len(buf))); err != nil {
		return err
	}
	limit := f.maxData()
	for off := 0; off < len(buf); {
		n := len(buf) - off
		if limit > 0 && n > limit {
			n = limit
		}
		resp, err := f.query(ctx, "read", f.codec.EncodeRead(addr+uint32(off), n))
		if err != nil {
			return err
		}
		copy(buf[off:off+n], resp)
		off += n
	}
	return nil
}

// WriteBytes programs data starting at addr. The range must have been erased: programming can
// only clear bits. The write is split at page boundaries, and each page program is complete before
// the next starts. A failure after the split returns a PartialWriteError telling how many leading
// bytes were committed; they are not rolled back.
func (f *Flash) WriteBytes(ctx context.Context, addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := f.checkRange(addr, uint64(len(data))); err != nil {
		return err
	}
	f.logger.CDebugw(ctx, "writing", "addr", addr, "len", len(data))

	page := f.geometry.PageSize
	limit := f.maxData()
	written := 0
	for written < len(data) {
		at := addr + uint32(written)
		n := int(page - at%page)
		if rest := len(data) - written; n > rest {
			n = rest
		}
		if limit > 0 && n > limit {
			n = limit
		}
		frame := f.codec.EncodePageProgram(at, data[written:written+n])
		if err := f.execute(ctx, "page program", frame, f.bounds.pageProgram); err != nil {
			return &PartialWriteError{BytesWritten: written, Err: err}
		}
		written += n
	}
	return nil
}

// EraseSectors erases count sectors starting at the sector-aligned addr, one at a time.
func (f *Flash) EraseSectors(ctx context.Context, addr uint32, count int) error {
	return f.eraseUnits(ctx, codec.EraseSector, f.geometry.SectorSize, addr, count)
}

// EraseBlock erases the block at the block-aligned addr.
func (f *Flash) EraseBlock(ctx context.Context, addr uint32) error {
	return f.eraseUnits(ctx, f.blockErase, f.geometry.BlockSize, addr, 1)
}

// EraseAll erases the whole device. This can take minutes on large parts.
func (f *Flash) EraseAll(ctx context.Context) error {
	frame, err := f.codec.EncodeErase(codec.EraseChip, 0)
	if err != nil {
		return err
	}
	f.logger.CDebugw(ctx, "erasing chip", "capacity", f.geometry.Capacity)
	return f.execute(ctx, "chip erase", frame, f.bounds.chipErase)
}

// EraseRange erases [addr, addr+length), which must be sector-aligned at both ends. Whole blocks
// are erased with one block erase, the rest sector by sector.
func (f *Flash) EraseRange(ctx context.Context, addr, length uint32) error {
	sector, block := f.geometry.SectorSize, f.geometry.BlockSize
	if addr%sector != 0 {
		return &UnalignedError{Addr: addr, Alignment: sector}
	}
	if length%sector != 0 {
		return &UnalignedError{Addr: addr + length, Alignment: sector}
	}
	if err := f.checkRange(addr, uint64(length)); err != nil {
		return err
	}

	end := uint64(addr) + uint64(length)
	for at := uint64(addr); at < end; {
		var err error
		if at%uint64(block) == 0 && end-at >= uint64(block) {
			err = f.eraseUnits(ctx, f.blockErase, block, uint32(at), 1)
			at += uint64(block)
		} else {
			err = f.eraseUnits(ctx, codec.EraseSector, sector, uint32(at), 1)
			at += uint64(sector)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// eraseUnits erases count units of size bytes with one erase command each. Alignment and range
// are checked before anything is sent.
func (f *Flash) eraseUnits(ctx context.Context, kind codec.EraseKind, size, addr uint32, count int) error {
	if addr%size != 0 {
		return &UnalignedError{Addr: addr, Alignment: size}
	}
	if count < 0 {
		return errors.Errorf("negative erase count %d", count)
	}
	if err := f.checkRange(addr, uint64(size)*uint64(count)); err != nil {
		return err
	}
	op := kind.String() + " erase"
	for i := 0; i < count; i++ {
		at := addr + uint32(i)*size
		frame, err := f.codec.EncodeErase(kind, at)
		if err != nil {
			return err
		}
		f.logger.CDebugw(ctx, "erasing", "kind", kind, "addr", at)
		if err := f.execute(ctx, op, frame, f.bounds.forErase(kind)); err != nil {
			return err
		}
	}
	return nil
}
