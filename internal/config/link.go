// Package config loads the link daemon configuration from JSON or TOML.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/banshee-data/packetlink/internal/packet"
	"github.com/banshee-data/packetlink/internal/serialport"
)

const (
	DefaultPortPath    = "/dev/ttyUSB0"
	DefaultCapacity    = packet.Capacity16
	DefaultReadTimeout = 100 * time.Millisecond
	DefaultListen      = ":8080"
	DefaultDBPath      = "packetlink.db"

	maxFileSize = 1 * 1024 * 1024 // 1MB
)

// LinkConfig is the daemon configuration. Unset fields fall back to the
// defaults returned by the Get* methods, so partial files are safe.
type LinkConfig struct {
	PortPath    *string                 `json:"port_path,omitempty" toml:"port_path"`
	Serial      *serialport.PortOptions `json:"serial,omitempty" toml:"serial"`
	Capacity    *int                    `json:"capacity,omitempty" toml:"capacity"`
	ReadTimeout *string                 `json:"read_timeout,omitempty" toml:"read_timeout"` // duration string like "100ms"
	Checksum    *bool                   `json:"checksum,omitempty" toml:"checksum"`
	Listen      *string                 `json:"listen,omitempty" toml:"listen"`
	DBPath      *string                 `json:"db_path,omitempty" toml:"db_path"`
	RecordTx    *bool                   `json:"record_tx,omitempty" toml:"record_tx"`
	RecordRx    *bool                   `json:"record_rx,omitempty" toml:"record_rx"`
}

// Load reads a .json or .toml configuration file and validates it.
func Load(path string) (*LinkConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &LinkConfig{}
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config keys: %v", undecoded)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *LinkConfig) Validate() error {
	if c.PortPath != nil && strings.TrimSpace(*c.PortPath) == "" {
		return fmt.Errorf("port_path must not be empty")
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalise(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	if c.Capacity != nil {
		if err := packet.ValidCapacity(*c.Capacity); err != nil {
			return err
		}
	}
	if c.ReadTimeout != nil {
		d, err := time.ParseDuration(*c.ReadTimeout)
		if err != nil {
			return fmt.Errorf("invalid read_timeout %q: %w", *c.ReadTimeout, err)
		}
		if d < 0 {
			return fmt.Errorf("read_timeout must not be negative, got %s", d)
		}
	}
	if c.Listen != nil && *c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	return nil
}

func (c *LinkConfig) GetPortPath() string {
	if c.PortPath == nil {
		return DefaultPortPath
	}
	return *c.PortPath
}

func (c *LinkConfig) GetSerial() serialport.PortOptions {
	if c.Serial == nil {
		return serialport.PortOptions{}
	}
	return *c.Serial
}

func (c *LinkConfig) GetCapacity() int {
	if c.Capacity == nil {
		return DefaultCapacity
	}
	return *c.Capacity
}

func (c *LinkConfig) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil {
		return DefaultReadTimeout
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil {
		return DefaultReadTimeout
	}
	return d
}

func (c *LinkConfig) GetChecksum() bool { return c.Checksum != nil && *c.Checksum }

func (c *LinkConfig) GetListen() string {
	if c.Listen == nil {
		return DefaultListen
	}
	return *c.Listen
}

func (c *LinkConfig) GetDBPath() string {
	if c.DBPath == nil {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetRecordRx defaults to true.
func (c *LinkConfig) GetRecordRx() bool { return c.RecordRx == nil || *c.RecordRx }

// GetRecordTx defaults to true.
func (c *LinkConfig) GetRecordTx() bool { return c.RecordTx == nil || *c.RecordTx }
