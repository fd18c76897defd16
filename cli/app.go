// Package cli contains the flashtool command line harness. It only drives the public flash API.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	busFlag    = "bus"
	csFlag     = "cs"
	baudFlag   = "baud"
	modeFlag   = "mode"
	configFlag = "config"
	fakeFlag   = "fake"
	debugFlag  = "debug"

	addrFlag       = "addr"
	lengthFlag     = "length"
	outFlag        = "out"
	inFlag         = "in"
	hexFlag        = "hex"
	sectorsFlag    = "sectors"
	blockFlag      = "block"
	allFlag        = "all"
	rangeFlag      = "range"
	iterationsFlag = "iterations"
)

var app = &cli.App{
	Name:            "flashtool",
	Usage:           "inspect and exercise 25-series SPI NOR flash",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  busFlag,
			Value: "0",
			Usage: "spidev bus number, 0 for /dev/spidev0.x",
		},
		&cli.StringFlag{
			Name:  csFlag,
			Value: "0",
			Usage: "spidev chip select, 0 for /dev/spidevX.0",
		},
		&cli.UintFlag{
			Name:  baudFlag,
			Usage: "SPI clock in Hz (default 8000000)",
		},
		&cli.UintFlag{
			Name:  modeFlag,
			Usage: "SPI mode, 0 or 3",
		},
		&cli.StringFlag{
			Name:    configFlag,
			Aliases: []string{"c"},
			Usage:   "load bus and flash configuration from `FILE`",
		},
		&cli.BoolFlag{
			Name:  fakeFlag,
			Usage: "use a simulated flash chip instead of a spidev bus",
		},
		&cli.BoolFlag{
			Name:    debugFlag,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "id",
			Usage:  "read the JEDEC ID and print the detected part",
			Action: IDAction,
		},
		{
			Name:   "parts",
			Usage:  "list the parts with known geometry and timings",
			Action: PartsAction,
		},
		{
			Name:   "status",
			Usage:  "read status register 1",
			Action: StatusAction,
		},
		{
			Name:      "read",
			Usage:     "read bytes and hex dump them or write them to a file",
			UsageText: "flashtool read --addr 0x1000 --length 256 [--out FILE]",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  addrFlag,
					Usage: "start address",
				},
				&cli.Uint64Flag{
					Name:  lengthFlag,
					Value: 256,
					Usage: "number of bytes",
				},
				&cli.StringFlag{
					Name:  outFlag,
					Usage: "write the bytes to `FILE` instead of dumping them",
				},
			},
			Action: ReadAction,
		},
		{
			Name:      "write",
			Usage:     "program bytes into an erased range",
			UsageText: "flashtool write --addr 0x1000 (--in FILE | --hex deadbeef)",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  addrFlag,
					Usage: "start address",
				},
				&cli.StringFlag{
					Name:  inFlag,
					Usage: "program the contents of `FILE`",
				},
				&cli.StringFlag{
					Name:  hexFlag,
					Usage: "program hex encoded bytes",
				},
			},
			Action: WriteAction,
		},
		{
			Name:      "erase",
			Usage:     "erase sectors, a block, a range or the whole chip",
			UsageText: "flashtool erase --addr 0x1000 (--sectors N | --block | --range LEN | --all)",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  addrFlag,
					Usage: "aligned start address",
				},
				&cli.IntFlag{
					Name:  sectorsFlag,
					Usage: "number of sectors to erase",
				},
				&cli.BoolFlag{
					Name:  blockFlag,
					Usage: "erase the block at addr",
				},
				&cli.Uint64Flag{
					Name:  rangeFlag,
					Usage: "erase this many bytes from addr",
				},
				&cli.BoolFlag{
					Name:  allFlag,
					Usage: "erase the whole chip",
				},
			},
			Action: EraseAction,
		},
		{
			Name: "selftest",
			Usage: "DESTRUCTIVE: identify the chip, erase and verify a sector, " +
				"then run a write/verify loop at address 0",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  iterationsFlag,
					Value: 100,
					Usage: "iterations of the write/verify loop",
				},
			},
			Action: SelftestAction,
		},
	},
}

// NewApp returns a new app with the flashtool commands, Writer set to out, and ErrWriter set to
// errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
