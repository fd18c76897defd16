package codec

// Opcodes of the "25-series" serial NOR flash command set. The 4-byte address variants carry
// their own opcode so the device never has to be switched into a 4-byte address mode.
//
//	[W25Q128JV|8.1.2 Instruction Set Table 1]
//	[N25Q32|Table 16: Command Set]
//	[MX25L25645G|Table 5. Command Set]
const (
	OpPageProgram        = 0x02
	OpRead               = 0x03
	OpWriteDisable       = 0x04
	OpReadStatus         = 0x05
	OpWriteEnable        = 0x06
	OpPageProgram4B      = 0x12
	OpRead4B             = 0x13
	OpSectorErase        = 0x20 // 4 KiB
	OpSectorErase4B      = 0x21
	OpBlockErase32       = 0x52 // 32 KiB
	OpBlockErase32Addr4B = 0x5C
	OpReadJEDECID        = 0x9F
	OpReleasePowerDown   = 0xAB
	OpPowerDown          = 0xB9
	OpChipErase          = 0xC7
	OpBlockErase64       = 0xD8 // 64 KiB
	OpBlockErase64Addr4B = 0xDC
)

// Status register bits.
//
//	Bits| [N25Q32|Table 9]                     | [W25Q128|7.1 Status Registers]
//	----+--------------------------------------+-------------------------------
//	7   | Status register write enable/disable | SRP: Status Register Protect
//	6   | Reserved                             | SEC: Sector protect
//	5   | Top/bottom                           | TB: Top/Bottom protect
//	4:2 | Block protect 2-0                    | BP2-0: Block Protect bit 2-0
//	1   | Write enable latch                   | WEL: Write Enable Latch
//	0   | Write in progress                    | BUSY: Erase/Write in progress
const (
	StatusBusy                  Status = 1 << 0
	StatusWriteEnableLatch      Status = 1 << 1
	StatusBlockProtect0         Status = 1 << 2
	StatusBlockProtect1         Status = 1 << 3
	StatusBlockProtect2         Status = 1 << 4
	StatusTopBottom             Status = 1 << 5
	StatusSectorProtect         Status = 1 << 6
	StatusStatusRegisterProtect Status = 1 << 7
)

// Geometry defaults shared by nearly every 25-series part.
const (
	DefaultPageSize   = 256
	DefaultSectorSize = 4 << 10
	DefaultBlockSize  = 64 << 10

	// ErasedValue is what every byte reads back as after an erase.
	ErasedValue = 0xFF

	// Max3ByteCapacity is the largest capacity reachable with 3-byte addresses.
	Max3ByteCapacity = 1 << 24

	statusResponseLen = 1
	jedecResponseLen  = 3
)

// AddressWidth is the number of address bytes following an opcode.
type AddressWidth int

// Supported address widths.
const (
	Address3Byte AddressWidth = 3
	Address4Byte AddressWidth = 4
)

// Valid reports whether w is a width the codec can frame.
func (w AddressWidth) Valid() bool {
	return w == Address3Byte || w == Address4Byte
}

// MaxAddress returns the last address reachable with this width.
func (w AddressWidth) MaxAddress() uint64 {
	if w == Address4Byte {
		return 1<<32 - 1
	}
	return Max3ByteCapacity - 1
}

// EraseKind selects the erase command, and with it the erase granularity.
type EraseKind int

// Erase granularities.
const (
	EraseSector EraseKind = iota
	EraseBlock32
	EraseBlock64
	EraseChip
)

// Size returns the number of bytes erased by one command of this kind. Chip erase has no fixed
// size and returns 0.
func (k EraseKind) Size() uint32 {
	switch k {
	case EraseSector:
		return 4 << 10
	case EraseBlock32:
		return 32 << 10
	case EraseBlock64:
		return 64 << 10
	default:
		return 0
	}
}

func (k EraseKind) String() string {
	switch k {
	case EraseSector:
		return "sector"
	case EraseBlock32:
		return "block32"
	case EraseBlock64:
		return "block64"
	case EraseChip:
		return "chip"
	default:
		return "unknown"
	}
}

// BlockEraseKind maps a block size in bytes to its erase command.
func BlockEraseKind(blockSize uint32) (EraseKind, bool) {
	switch blockSize {
	case 32 << 10:
		return EraseBlock32, true
	case 64 << 10:
		return EraseBlock64, true
	default:
		return 0, false
	}
}
