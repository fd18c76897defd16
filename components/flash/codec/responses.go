package codec

import (
	"fmt"
	"strings"
)

// Status is the value of status register 1. It is a snapshot: erase and program cycles change it
// on the device side, so it must be read again before it is trusted.
type Status byte

// Busy reports an erase or program cycle in progress.
func (s Status) Busy() bool { return s&StatusBusy != 0 }

// WriteEnabled reports the write enable latch.
func (s Status) WriteEnabled() bool { return s&StatusWriteEnableLatch != 0 }

// BlockProtect returns the BP2-0 field.
func (s Status) BlockProtect() uint8 { return uint8(s>>2) & 0x7 }

func (s Status) String() string {
	b := fmt.Sprintf("%08b", byte(s))
	names := []struct {
		bit  Status
		name string
	}{
		{StatusStatusRegisterProtect, "SRP"},
		{StatusSectorProtect, "SEC"},
		{StatusTopBottom, "TB"},
		{StatusBlockProtect2, "BP2"},
		{StatusBlockProtect1, "BP1"},
		{StatusBlockProtect0, "BP0"},
		{StatusWriteEnableLatch, "WEL"},
		{StatusBusy, "BUSY"},
	}
	var set []string
	for _, n := range names {
		if s&n.bit != 0 {
			set = append(set, n.name)
		}
	}
	if len(set) == 0 {
		return b
	}
	return b + " " + strings.Join(set, ",")
}

// DecodeStatus parses the response of a read status frame.
func DecodeStatus(resp []byte) (Status, error) {
	if len(resp) < statusResponseLen {
		return 0, &DecodeError{What: "status", Want: statusResponseLen, Got: len(resp)}
	}
	return Status(resp[0]), nil
}

// DeviceID is the JEDEC identification of a part.
type DeviceID struct {
	Manufacturer byte
	// Device is memory type in the high byte and capacity code in the low byte.
	Device uint16
}

// MemoryType returns the high byte of the device ID.
func (id DeviceID) MemoryType() byte { return byte(id.Device >> 8) }

// DensityCode returns the low byte of the device ID. Most vendors encode capacity as 2^n bytes.
func (id DeviceID) DensityCode() byte { return byte(id.Device) }

// Capacity derives the capacity in bytes from the density code. ok is false for codes that do not
// follow the 2^n convention or that exceed the 32-bit address space.
func (id DeviceID) Capacity() (capacity uint32, ok bool) {
	code := id.DensityCode()
	if code < 0x10 || code > 0x1F {
		return 0, false
	}
	return 1 << code, true
}

// Valid is false for the all-zero and all-ones IDs read back from an absent or unpowered device.
func (id DeviceID) Valid() bool {
	if id.Manufacturer == 0x00 && id.Device == 0x0000 {
		return false
	}
	if id.Manufacturer == 0xFF && id.Device == 0xFFFF {
		return false
	}
	return true
}

// ManufacturerName returns the vendor for known JEDEC manufacturer codes.
func (id DeviceID) ManufacturerName() string {
	if name, ok := manufacturers[id.Manufacturer]; ok {
		return name
	}
	return "unknown"
}

func (id DeviceID) String() string {
	return fmt.Sprintf("%02X%04X (%s)", id.Manufacturer, id.Device, id.ManufacturerName())
}

var manufacturers = map[byte]string{
	0x01: "Spansion",
	0x1F: "Adesto",
	0x20: "Micron",
	0x9D: "ISSI",
	0xBF: "SST",
	0xC2: "Macronix",
	0xC8: "GigaDevice",
	0xEF: "Winbond",
}

// DecodeJEDECID parses the response of a JEDEC ID frame.
func DecodeJEDECID(resp []byte) (DeviceID, error) {
	if len(resp) < jedecResponseLen {
		return DeviceID{}, &DecodeError{What: "jedec id", Want: jedecResponseLen, Got: len(resp)}
	}
	return DeviceID{
		Manufacturer: resp[0],
		Device:       uint16(resp[1])<<8 | uint16(resp[2]),
	}, nil
}
