package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultRenderConfigPath is the path to the canonical render defaults file.
const DefaultRenderConfigPath = "config/render.defaults.json"

// RenderConfig is the root configuration of the sonar renderer. Fields
// left out of the JSON file fall back to the defaults returned by the Get*
// accessors, so partial configs are safe.
type RenderConfig struct {
	// Raster
	WindowSize *int     `json:"window_size,omitempty"`
	Gain       *float64 `json:"gain,omitempty"` // intensity multiplier applied before clamping to [0, 255]

	// Frame source
	SerialPort *string `json:"serial_port,omitempty"`
	BaudRate   *int    `json:"baud_rate,omitempty"`
	DataBits   *int    `json:"data_bits,omitempty"`
	StopBits   *int    `json:"stop_bits,omitempty"`
	Parity     *string `json:"parity,omitempty"`

	// Outputs
	OutputDir *string `json:"output_dir,omitempty"`
	DBPath    *string `json:"db_path,omitempty"`
	Listen    *string `json:"listen,omitempty"`
	Debug     *bool   `json:"debug,omitempty"`
}

// EmptyRenderConfig returns a RenderConfig with every field unset.
func EmptyRenderConfig() *RenderConfig {
	return &RenderConfig{}
}

// LoadRenderConfig loads a RenderConfig from a JSON file. The path must
// have a .json extension and the file must be under 1MB.
func LoadRenderConfig(path string) (*RenderConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyRenderConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultRenderConfigPath, searching the
// current directory and its parents. Panics if the file cannot be loaded;
// intended for tests and binaries run from inside the repository.
func MustLoadDefaultConfig() *RenderConfig {
	candidates := []string{
		DefaultRenderConfigPath,
		"../" + DefaultRenderConfigPath,
		"../../" + DefaultRenderConfigPath,       // from internal/config/
		"../../../" + DefaultRenderConfigPath,    // from internal/sonar/render/
		"../../../../" + DefaultRenderConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadRenderConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultRenderConfigPath + " - run from repository root")
}

// Validate checks the values that are set.
func (c *RenderConfig) Validate() error {
	if c.WindowSize != nil && *c.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", *c.WindowSize)
	}
	if c.WindowSize != nil && *c.WindowSize > 8192 {
		return fmt.Errorf("window_size must be at most 8192, got %d", *c.WindowSize)
	}
	if c.Gain != nil && *c.Gain <= 0 {
		return fmt.Errorf("gain must be positive, got %f", *c.Gain)
	}
	if c.BaudRate != nil && *c.BaudRate < 0 {
		return fmt.Errorf("baud_rate must be non-negative, got %d", *c.BaudRate)
	}
	if c.DataBits != nil && *c.DataBits != 0 && (*c.DataBits < 5 || *c.DataBits > 8) {
		return fmt.Errorf("data_bits must be between 5 and 8, got %d", *c.DataBits)
	}
	if c.StopBits != nil && *c.StopBits != 0 && *c.StopBits != 1 && *c.StopBits != 2 {
		return fmt.Errorf("stop_bits must be 1 or 2, got %d", *c.StopBits)
	}
	if c.Parity != nil {
		switch strings.ToUpper(strings.TrimSpace(*c.Parity)) {
		case "", "N", "NONE", "E", "EVEN", "O", "ODD":
		default:
			return fmt.Errorf("unsupported parity %q", *c.Parity)
		}
	}
	return nil
}

// GetWindowSize returns the window_size value or the default.
func (c *RenderConfig) GetWindowSize() int {
	if c.WindowSize == nil {
		return 500
	}
	return *c.WindowSize
}

// GetGain returns the gain value or the default.
func (c *RenderConfig) GetGain() float64 {
	if c.Gain == nil {
		return 255
	}
	return *c.Gain
}

// GetSerialPort returns the serial_port value or the default (none).
func (c *RenderConfig) GetSerialPort() string {
	if c.SerialPort == nil {
		return ""
	}
	return *c.SerialPort
}

// GetBaudRate returns the baud_rate value or the default.
func (c *RenderConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 115200
	}
	return *c.BaudRate
}

// GetDataBits returns the data_bits value or the default.
func (c *RenderConfig) GetDataBits() int {
	if c.DataBits == nil {
		return 8
	}
	return *c.DataBits
}

// GetStopBits returns the stop_bits value or the default.
func (c *RenderConfig) GetStopBits() int {
	if c.StopBits == nil {
		return 1
	}
	return *c.StopBits
}

// GetParity returns the parity value or the default.
func (c *RenderConfig) GetParity() string {
	if c.Parity == nil {
		return "N"
	}
	return *c.Parity
}

// GetOutputDir returns the output_dir value or the default (no PNG export).
func (c *RenderConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return ""
	}
	return *c.OutputDir
}

// GetDBPath returns the db_path value or the default (no LUT cache).
func (c *RenderConfig) GetDBPath() string {
	if c.DBPath == nil {
		return ""
	}
	return *c.DBPath
}

// GetListen returns the listen value or the default (monitor disabled).
func (c *RenderConfig) GetListen() string {
	if c.Listen == nil {
		return ""
	}
	return *c.Listen
}

// GetDebug returns the debug value or the default.
func (c *RenderConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}
