package cli

import (
	"bytes"
	"encoding/json"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/swobbee-dev/spi-memory/components/board/genericlinux/buses"
	"github.com/swobbee-dev/spi-memory/components/flash/series25"
)

// toolConfig is the file given with --config. Environment variables in it are expanded:
//
//	{
//	  "spi": {"name": "flash", "bus_select": "${FLASH_BUS}", "chip_select": "0", "baud_hz": 20000000},
//	  "flash": {"capacity_bytes": "0x400000", "max_transfer_bytes": 4096}
//	}
type toolConfig struct {
	SPI   buses.SPIConfig
	Flash *series25.Config
}

func loadConfig(path string) (*toolConfig, error) {
	raw, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}
	var attrs map[string]interface{}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&attrs); err != nil {
		return nil, errors.Wrapf(err, "error parsing config file %s", path)
	}
	return decodeConfig(attrs)
}

func decodeConfig(attrs map[string]interface{}) (*toolConfig, error) {
	conf := &toolConfig{Flash: &series25.Config{}}
	for key, val := range attrs {
		section, ok := val.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("config section %q must be an object", key)
		}
		switch key {
		case "spi":
			decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				TagName:          "json",
				Result:           &conf.SPI,
				ErrorUnused:      true,
				WeaklyTypedInput: true,
			})
			if err != nil {
				return nil, err
			}
			if err := decoder.Decode(section); err != nil {
				return nil, errors.Wrap(err, "error decoding spi config")
			}
		case "flash":
			flashConf, err := series25.DecodeConfig(section)
			if err != nil {
				return nil, err
			}
			conf.Flash = flashConf
		default:
			return nil, errors.Errorf("unknown config section %q", key)
		}
	}
	return conf, nil
}

// resolveConfig merges the config file with the bus flags. Flags win.
func resolveConfig(c *cli.Context) (*toolConfig, error) {
	conf := &toolConfig{Flash: &series25.Config{}}
	if path := c.String(configFlag); path != "" {
		var err error
		if conf, err = loadConfig(path); err != nil {
			return nil, err
		}
	}
	if conf.SPI.Name == "" {
		conf.SPI.Name = "flash"
	}
	if conf.SPI.BusSelect == "" || c.IsSet(busFlag) {
		conf.SPI.BusSelect = c.String(busFlag)
	}
	if conf.SPI.ChipSelect == "" || c.IsSet(csFlag) {
		conf.SPI.ChipSelect = c.String(csFlag)
	}
	if c.IsSet(baudFlag) {
		conf.SPI.BaudHz = c.Uint(baudFlag)
	}
	if c.IsSet(modeFlag) {
		conf.SPI.Mode = c.Uint(modeFlag)
	}

	if err := conf.SPI.Validate("spi"); err != nil {
		return nil, err
	}
	if _, err := conf.Flash.Validate("flash"); err != nil {
		return nil, err
	}
	return conf, nil
}
