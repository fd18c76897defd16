package buses

import (
	"fmt"

	"go.viam.com/utils"
)

// DefaultSPIBaud is used when a config does not name a clock rate. Every 25-series part accepts
// it for plain reads.
const DefaultSPIBaud = 8_000_000

// SPIConfig enumerates a specific, shareable SPI bus and the chip select of the device on it.
type SPIConfig struct {
	Name       string `json:"name"`
	BusSelect  string `json:"bus_select"`  // spidev bus number, "0" for /dev/spidev0.x
	ChipSelect string `json:"chip_select"` // spidev device number, "0" for /dev/spidevX.0
	BaudHz     uint   `json:"baud_hz,omitempty"`
	Mode       uint   `json:"mode,omitempty"` // SPI mode 0-3; flash parts support 0 and 3
}

// Validate ensures all parts of the config are valid.
func (config *SPIConfig) Validate(path string) error {
	if config.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if config.BusSelect == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "bus_select")
	}
	if config.ChipSelect == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "chip_select")
	}
	if config.Mode > 3 {
		return utils.NewConfigValidationError(path, fmt.Errorf("mode must be between 0 and 3, got %d", config.Mode))
	}
	return nil
}

// Baud returns the configured clock rate or DefaultSPIBaud.
func (config *SPIConfig) Baud() uint {
	if config.BaudHz == 0 {
		return DefaultSPIBaud
	}
	return config.BaudHz
}
