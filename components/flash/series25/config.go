package series25

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/swobbee-dev/spi-memory/components/flash/codec"
)

// DefaultPollInterval is the backoff between two status polls.
const DefaultPollInterval = time.Millisecond

// minTransferBytes is the smallest transfer limit that still fits a 4-byte address header and a
// useful amount of data.
const minTransferBytes = 16

// Config describes the geometry of a flash part and the driver's polling behavior. Every field is
// optional: geometry defaults to the common 25-series layout, capacity is discovered from the
// JEDEC ID, and poll bounds default to the datasheet maximums of the detected part.
//
// Timeouts are in milliseconds. Zero selects the default, a negative value polls without bound.
type Config struct {
	CapacityBytes    uint32 `json:"capacity_bytes,omitempty"`
	PageSizeBytes    uint32 `json:"page_size_bytes,omitempty"`
	SectorSizeBytes  uint32 `json:"sector_size_bytes,omitempty"`
	BlockSizeBytes   uint32 `json:"block_size_bytes,omitempty"`
	AddressBytes     int    `json:"address_bytes,omitempty"`
	MaxTransferBytes int    `json:"max_transfer_bytes,omitempty"`
	SkipProbe        bool   `json:"skip_probe,omitempty"`

	PollIntervalUs       int `json:"poll_interval_us,omitempty"`
	PageProgramTimeoutMs int `json:"page_program_timeout_ms,omitempty"`
	SectorEraseTimeoutMs int `json:"sector_erase_timeout_ms,omitempty"`
	BlockEraseTimeoutMs  int `json:"block_erase_timeout_ms,omitempty"`
	ChipEraseTimeoutMs   int `json:"chip_erase_timeout_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) ([]string, error) {
	if conf.SkipProbe && conf.CapacityBytes == 0 {
		return nil, utils.NewConfigValidationError(path,
			errors.New("capacity_bytes is required when skip_probe is set"))
	}
	if conf.AddressBytes != 0 && !codec.AddressWidth(conf.AddressBytes).Valid() {
		return nil, utils.NewConfigValidationError(path,
			fmt.Errorf("address_bytes must be 3 or 4, got %d", conf.AddressBytes))
	}
	if conf.AddressBytes == 3 && conf.CapacityBytes > codec.Max3ByteCapacity {
		return nil, utils.NewConfigValidationError(path,
			fmt.Errorf("capacity_bytes %d needs 4 byte addressing", conf.CapacityBytes))
	}

	page, sector, block := conf.geometry()
	for _, size := range []struct {
		name  string
		value uint32
	}{
		{"page_size_bytes", page},
		{"sector_size_bytes", sector},
		{"block_size_bytes", block},
	} {
		if size.value&(size.value-1) != 0 {
			return nil, utils.NewConfigValidationError(path,
				fmt.Errorf("%s must be a power of two, got %d", size.name, size.value))
		}
	}
	if page > sector || sector > block {
		return nil, utils.NewConfigValidationError(path,
			errors.New("page_size_bytes <= sector_size_bytes <= block_size_bytes must hold"))
	}
	if sector != codec.EraseSector.Size() {
		return nil, utils.NewConfigValidationError(path,
			fmt.Errorf("sector_size_bytes must be %d, the 4K erase granularity", codec.EraseSector.Size()))
	}
	if _, ok := codec.BlockEraseKind(block); !ok {
		return nil, utils.NewConfigValidationError(path,
			fmt.Errorf("block_size_bytes must be 32768 or 65536, got %d", block))
	}
	if conf.CapacityBytes != 0 && conf.CapacityBytes%block != 0 {
		return nil, utils.NewConfigValidationError(path,
			fmt.Errorf("capacity_bytes must be a multiple of block_size_bytes (%d)", block))
	}

	if conf.MaxTransferBytes < 0 || (conf.MaxTransferBytes > 0 && conf.MaxTransferBytes < minTransferBytes) {
		return nil, utils.NewConfigValidationError(path,
			fmt.Errorf("max_transfer_bytes must be 0 or at least %d", minTransferBytes))
	}
	if conf.PollIntervalUs < 0 {
		return nil, utils.NewConfigValidationError(path, errors.New("poll_interval_us cannot be negative"))
	}
	return nil, nil
}

func (conf *Config) geometry() (page, sector, block uint32) {
	page, sector, block = conf.PageSizeBytes, conf.SectorSizeBytes, conf.BlockSizeBytes
	if page == 0 {
		page = codec.DefaultPageSize
	}
	if sector == 0 {
		sector = codec.DefaultSectorSize
	}
	if block == 0 {
		block = codec.DefaultBlockSize
	}
	return page, sector, block
}

func (conf *Config) pollInterval() time.Duration {
	if conf.PollIntervalUs == 0 {
		return DefaultPollInterval
	}
	return time.Duration(conf.PollIntervalUs) * time.Microsecond
}

// bound turns a millisecond timeout into a poll bound, falling back to def.
func bound(ms int, def time.Duration) time.Duration {
	switch {
	case ms < 0:
		return -1
	case ms == 0:
		return def
	default:
		return time.Duration(ms) * time.Millisecond
	}
}

// DecodeConfig builds a Config from a generic attribute map such as a parsed JSON file. Unknown
// keys are an error. Numeric fields also accept strings, so capacities can be written in hex.
func DecodeConfig(attributes map[string]interface{}) (*Config, error) {
	var conf Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &conf,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "error decoding flash config")
	}
	return &conf, nil
}
