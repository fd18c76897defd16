package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/swobbee-dev/spi-memory/components/flash/codec"
	"github.com/swobbee-dev/spi-memory/components/flash/series25"
)

// IDAction prints the JEDEC ID and the geometry the driver settled on.
func IDAction(c *cli.Context) error {
	return withFlash(c, func(ctx context.Context, s *session) error {
		id, err := s.flash.ReadJEDECID(ctx)
		if err != nil {
			return err
		}
		geo := s.flash.Geometry()

		t := table.NewWriter()
		t.AppendHeader(table.Row{"Field", "Value"})
		t.AppendRow(table.Row{"JEDEC ID", fmt.Sprintf("%02X %02X %02X", id.Manufacturer, id.MemoryType(), id.DensityCode())})
		t.AppendRow(table.Row{"Manufacturer", id.ManufacturerName()})
		t.AppendRow(table.Row{"Part", s.flash.PartName()})
		t.AppendRow(table.Row{"Capacity", fmt.Sprintf("%s (%d bytes)", units.BytesSize(float64(geo.Capacity)), geo.Capacity)})
		t.AppendRow(table.Row{"Page / sector / block", fmt.Sprintf("%d / %d / %d", geo.PageSize, geo.SectorSize, geo.BlockSize)})
		t.AppendRow(table.Row{"Address bytes", int(geo.Width)})
		printf(c.App.Writer, "%s", t.Render())
		return nil
	})
}

// PartsAction lists the built-in part table. It does not touch the bus.
func PartsAction(c *cli.Context) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Part", "JEDEC ID", "Capacity", "Page program", "Sector erase", "32K erase", "64K erase", "Chip erase"})
	for _, part := range codec.KnownParts() {
		block32 := "-"
		if part.Timings.Block32Erase != 0 {
			block32 = part.Timings.Block32Erase.String()
		}
		t.AppendRow(table.Row{
			part.Name,
			fmt.Sprintf("%02X%04X", part.ID.Manufacturer, part.ID.Device),
			units.BytesSize(float64(part.Capacity)),
			part.Timings.PageProgram,
			part.Timings.SectorErase,
			block32,
			part.Timings.Block64Erase,
			part.Timings.ChipErase,
		})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

// StatusAction prints status register 1 bit by bit.
func StatusAction(c *cli.Context) error {
	return withFlash(c, func(ctx context.Context, s *session) error {
		status, err := s.flash.ReadStatus(ctx)
		if err != nil {
			return err
		}
		printf(c.App.Writer, "%s", statusTable(status))
		return nil
	})
}

func statusTable(status codec.Status) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Bit", "Name", "Set"})
	for _, bit := range []struct {
		n    int
		name string
		mask codec.Status
	}{
		{7, "SRP", codec.StatusStatusRegisterProtect},
		{6, "SEC", codec.StatusSectorProtect},
		{5, "TB", codec.StatusTopBottom},
		{4, "BP2", codec.StatusBlockProtect2},
		{3, "BP1", codec.StatusBlockProtect1},
		{2, "BP0", codec.StatusBlockProtect0},
		{1, "WEL", codec.StatusWriteEnableLatch},
		{0, "BUSY", codec.StatusBusy},
	} {
		t.AppendRow(table.Row{bit.n, bit.name, status&bit.mask != 0})
	}
	t.AppendFooter(table.Row{"", "Raw", fmt.Sprintf("0x%02X", byte(status))})
	return t.Render()
}

// ReadAction dumps or saves a range.
func ReadAction(c *cli.Context) error {
	addr, err := addrArg(c)
	if err != nil {
		return err
	}
	length := c.Uint64(lengthFlag)
	return withFlash(c, func(ctx context.Context, s *session) error {
		if capacity := s.flash.Geometry().Capacity; uint64(addr)+length > uint64(capacity) {
			return &series25.OutOfRangeError{Addr: addr, Length: length, Capacity: capacity}
		}
		buf := make([]byte, length)
		if err := s.flash.Read(ctx, addr, buf); err != nil {
			return err
		}
		if out := c.String(outFlag); out != "" {
			return errors.Wrap(os.WriteFile(out, buf, 0o600), "error writing output file")
		}
		hexdump(c.App.Writer, addr, buf)
		return nil
	})
}

// WriteAction programs bytes from a file or the command line.
func WriteAction(c *cli.Context) error {
	addr, err := addrArg(c)
	if err != nil {
		return err
	}
	var data []byte
	switch {
	case c.String(inFlag) != "" && c.String(hexFlag) != "":
		return errors.Errorf("use either --%s or --%s", inFlag, hexFlag)
	case c.String(inFlag) != "":
		//nolint:gosec
		if data, err = os.ReadFile(c.String(inFlag)); err != nil {
			return errors.Wrap(err, "error reading input file")
		}
	case c.String(hexFlag) != "":
		if data, err = hex.DecodeString(c.String(hexFlag)); err != nil {
			return errors.Wrap(err, "error decoding hex data")
		}
	default:
		return errors.Errorf("nothing to write, pass --%s or --%s", inFlag, hexFlag)
	}

	return withFlash(c, func(ctx context.Context, s *session) error {
		if err := s.flash.WriteBytes(ctx, addr, data); err != nil {
			return err
		}
		printf(c.App.Writer, "wrote %d bytes at 0x%06X", len(data), addr)
		return nil
	})
}

// EraseAction erases exactly one of: sectors, a block, a range or the chip.
func EraseAction(c *cli.Context) error {
	addr, err := addrArg(c)
	if err != nil {
		return err
	}
	chosen := 0
	for _, name := range []string{sectorsFlag, blockFlag, rangeFlag, allFlag} {
		if c.IsSet(name) {
			chosen++
		}
	}
	if chosen != 1 {
		return errors.Errorf("pass exactly one of --%s, --%s, --%s or --%s", sectorsFlag, blockFlag, rangeFlag, allFlag)
	}

	return withFlash(c, func(ctx context.Context, s *session) error {
		switch {
		case c.IsSet(sectorsFlag):
			err = s.flash.EraseSectors(ctx, addr, c.Int(sectorsFlag))
		case c.IsSet(blockFlag):
			err = s.flash.EraseBlock(ctx, addr)
		case c.IsSet(rangeFlag):
			length := c.Uint64(rangeFlag)
			if length > 1<<32-1 {
				return errors.Errorf("range %d too large", length)
			}
			err = s.flash.EraseRange(ctx, addr, uint32(length))
		default:
			warningf(c.App.ErrWriter, "erasing the whole chip, this can take minutes")
			err = s.flash.EraseAll(ctx)
		}
		if err != nil {
			return err
		}
		printf(c.App.Writer, "erase done")
		return nil
	})
}

func addrArg(c *cli.Context) (uint32, error) {
	addr := c.Uint64(addrFlag)
	if addr > 1<<32-1 {
		return 0, errors.Errorf("address 0x%X does not fit 32 bits", addr)
	}
	return uint32(addr), nil
}
