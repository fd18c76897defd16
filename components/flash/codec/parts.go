package codec

import "time"

// Timings are datasheet maximums for one part. A zero value means the part does not support the
// operation (e.g. 32 KiB block erase on Micron N25Q).
type Timings struct {
	// PageProgram is tPP, the page program cycle time for a full page.
	PageProgram time.Duration
	// SectorErase is tSE, 4 KiB erase.
	SectorErase time.Duration
	// Block32Erase is tBE1, 32 KiB erase.
	Block32Erase time.Duration
	// Block64Erase is tBE2, 64 KiB erase.
	Block64Erase time.Duration
	// ChipErase is tCE.
	ChipErase time.Duration
	// PowerDown is tDP, /CS high to power-down mode.
	PowerDown time.Duration
	// ReleasePowerDown is tRES1, /CS high to standby without ID read.
	ReleasePowerDown time.Duration
}

// Erase returns the timing for an erase kind.
func (t Timings) Erase(kind EraseKind) time.Duration {
	switch kind {
	case EraseSector:
		return t.SectorErase
	case EraseBlock32:
		return t.Block32Erase
	case EraseBlock64:
		return t.Block64Erase
	case EraseChip:
		return t.ChipErase
	default:
		return 0
	}
}

// Part describes a known flash chip.
type Part struct {
	Name     string
	ID       DeviceID
	Capacity uint32
	Timings  Timings
}

var winbondW25Q = Timings{
	// [W25Q128JV|9.6 AC Electrical Characteristics]
	PageProgram:      3 * time.Millisecond,
	SectorErase:      400 * time.Millisecond,
	Block32Erase:     1600 * time.Millisecond,
	Block64Erase:     2000 * time.Millisecond,
	PowerDown:        3 * time.Microsecond,
	ReleasePowerDown: 3 * time.Microsecond,
}

func withChipErase(t Timings, d time.Duration) Timings {
	t.ChipErase = d
	return t
}

var knownParts = []Part{
	{
		Name:     "Winbond W25Q16",
		ID:       DeviceID{0xEF, 0x4015},
		Capacity: 2 << 20,
		Timings:  withChipErase(winbondW25Q, 25*time.Second),
	},
	{
		Name:     "Winbond W25Q32",
		ID:       DeviceID{0xEF, 0x4016},
		Capacity: 4 << 20,
		Timings:  withChipErase(winbondW25Q, 50*time.Second),
	},
	{
		Name:     "Winbond W25Q64",
		ID:       DeviceID{0xEF, 0x4017},
		Capacity: 8 << 20,
		Timings:  withChipErase(winbondW25Q, 100*time.Second),
	},
	{
		Name:     "Winbond W25Q128",
		ID:       DeviceID{0xEF, 0x4018},
		Capacity: 16 << 20,
		Timings:  withChipErase(winbondW25Q, 200*time.Second),
	},
	{
		Name:     "Winbond W25Q128 (QPI/DTR)",
		ID:       DeviceID{0xEF, 0x7018},
		Capacity: 16 << 20,
		Timings:  withChipErase(winbondW25Q, 200*time.Second),
	},
	{
		Name:     "Micron N25Q 32Mb",
		ID:       DeviceID{0x20, 0xBA16},
		Capacity: 4 << 20,
		// [N25Q32|Table 38: AC Characteristics and Operating Conditions]
		Timings: Timings{
			PageProgram:      5 * time.Millisecond,
			SectorErase:      800 * time.Millisecond,
			Block64Erase:     3 * time.Second,
			ChipErase:        60 * time.Second,
			PowerDown:        3 * time.Microsecond,
			ReleasePowerDown: 30 * time.Microsecond,
		},
	},
}

// LookupPart returns the known part with the given ID.
func LookupPart(id DeviceID) (Part, bool) {
	for _, p := range knownParts {
		if p.ID == id {
			return p, true
		}
	}
	return Part{}, false
}

// KnownParts returns a copy of the part table.
func KnownParts() []Part {
	return append([]Part(nil), knownParts...)
}

// MaxTimings returns, per field, the longest timing of all known parts. It is the fallback for
// parts that are not in the table.
func MaxTimings() Timings {
	var t Timings
	for _, p := range knownParts {
		t.PageProgram = max(t.PageProgram, p.Timings.PageProgram)
		t.SectorErase = max(t.SectorErase, p.Timings.SectorErase)
		t.Block32Erase = max(t.Block32Erase, p.Timings.Block32Erase)
		t.Block64Erase = max(t.Block64Erase, p.Timings.Block64Erase)
		t.ChipErase = max(t.ChipErase, p.Timings.ChipErase)
		t.PowerDown = max(t.PowerDown, p.Timings.PowerDown)
		t.ReleasePowerDown = max(t.ReleasePowerDown, p.Timings.ReleasePowerDown)
	}
	return t
}
