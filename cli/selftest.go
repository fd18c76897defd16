package cli

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/swobbee-dev/spi-memory/components/flash/series25"
)

const (
	selftestSector = 0x1000
	loopSize       = 512
	// Iterations up to sectorEraseUntil erase a sector, then blocks until blockEraseUntil, then
	// the chip. This only spreads coverage over the erase commands.
	sectorEraseUntil = 90
	blockEraseUntil  = 98
)

var selftestData = []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE, 0xBA, 0xBE}

// SelftestAction identifies the chip, round trips a few bytes through one sector, then runs a
// write/verify loop through the asynchronous front-end.
func SelftestAction(c *cli.Context) error {
	return withFlash(c, func(ctx context.Context, s *session) error {
		if err := basicSelftest(ctx, c, s.flash); err != nil {
			return err
		}
		a := series25.NewAsync(ctx, s.flash)
		defer a.Close()
		return loopSelftest(ctx, c, a, c.Int(iterationsFlag))
	})
}

func basicSelftest(ctx context.Context, c *cli.Context, f *series25.Flash) error {
	id, err := f.ReadJEDECID(ctx)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "JEDEC ID: %s", id)

	status, err := f.ReadStatus(ctx)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "status: %s", status)

	if err := f.EraseSectors(ctx, selftestSector, 1); err != nil {
		return err
	}
	if err := f.WriteBytes(ctx, selftestSector, selftestData); err != nil {
		return err
	}
	got := make([]byte, len(selftestData))
	if err := f.Read(ctx, selftestSector, got); err != nil {
		return err
	}
	if !bytes.Equal(got, selftestData) {
		return errors.Errorf("verify at 0x%06X failed: wrote % X, read % X", selftestSector, selftestData, got)
	}
	printf(c.App.Writer, "write/verify at 0x%06X ok", selftestSector)

	for _, addr := range []uint32{0x0000, 0x1000, 0x2000} {
		buf := make([]byte, 8)
		if err := f.Read(ctx, addr, buf); err != nil {
			return err
		}
		printf(c.App.Writer, "0x%06X: % X", addr, buf)
	}
	return nil
}

func loopSelftest(ctx context.Context, c *cli.Context, a *series25.Async, iterations int) error {
	data := make([]byte, loopSize)
	buf := make([]byte, loopSize)
	for i := 0; i < iterations; i++ {
		var erase *series25.Pending[struct{}]
		switch {
		case i <= sectorEraseUntil:
			erase = a.EraseSectors(0, 1)
		case i <= blockEraseUntil:
			erase = a.EraseBlock(0)
		default:
			erase = a.EraseAll()
		}
		for j := range data {
			data[j] = byte(i + j)
		}
		write := a.WriteBytes(0, data)
		read := a.Read(0, buf)

		if _, err := erase.Wait(ctx); err != nil {
			return errors.Wrapf(err, "iteration %d: erase", i)
		}
		if _, err := write.Wait(ctx); err != nil {
			return errors.Wrapf(err, "iteration %d: write", i)
		}
		if _, err := read.Wait(ctx); err != nil {
			return errors.Wrapf(err, "iteration %d: read", i)
		}
		if !bytes.Equal(buf, data) {
			return errors.Errorf("iteration %d: verify failed", i)
		}
	}
	printf(c.App.Writer, "%d write/verify iterations ok", iterations)
	return nil
}
