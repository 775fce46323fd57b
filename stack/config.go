package stack

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ftl/gsm-ms/lapdm"
	"github.com/ftl/gsm-ms/serial"
)

// DefaultSocketPath is where the layer 1 of osmocom-bb listens for L1CTL connections.
const DefaultSocketPath = "/tmp/osmocom_l2"

var ErrNoTransport = errors.New("neither L1CTL socket nor serial port configured")

type L1CTLConfig struct {
	Socket     string `yaml:"socket"`
	SerialPort string `yaml:"serialPort"`
	BaudRate   uint   `yaml:"baudRate"`
	TraceFile  string `yaml:"traceFile"`
}

type LAPDmConfig struct {
	T200ACCHms int `yaml:"t200ACCHms"`
	T200DCCHms int `yaml:"t200DCCHms"`
	N200       int `yaml:"n200"`
}

// Options returns the LAPDm options for the configured timer values.
func (c LAPDmConfig) Options() []lapdm.Option {
	result := []lapdm.Option{
		lapdm.WithT200(time.Duration(c.T200ACCHms)*time.Millisecond, time.Duration(c.T200DCCHms)*time.Millisecond),
	}
	if c.N200 > 0 {
		result = append(result, lapdm.WithN200(c.N200))
	}
	return result
}

type GSMTAPConfig struct {
	Remote   string `yaml:"remote"`
	PcapFile string `yaml:"pcapFile"`
}

// Enabled reports whether any GSMTAP export is configured.
func (c GSMTAPConfig) Enabled() bool {
	return c.Remote != "" || c.PcapFile != ""
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
}

// Config of the mobile station.
type Config struct {
	L1CTL  L1CTLConfig  `yaml:"l1ctl"`
	LAPDm  LAPDmConfig  `yaml:"lapdm"`
	GSMTAP GSMTAPConfig `yaml:"gsmtap"`
	Log    LogConfig    `yaml:"log"`
}

// DefaultConfig returns the configuration that is used without a config file.
func DefaultConfig() Config {
	var result Config
	result.applyDefaults()
	return result
}

// LoadConfig reads the YAML config file at the given path. Missing values are replaced by their
// defaults, relative file names are resolved against the directory of the config file.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	result, err := ReadConfig(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}

	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	result.L1CTL.TraceFile = resolvePath(result.L1CTL.TraceFile)
	result.GSMTAP.PcapFile = resolvePath(result.GSMTAP.PcapFile)
	result.Log.File = resolvePath(result.Log.File)

	return result, nil
}

// ReadConfig decodes the YAML config from the given reader and applies the defaults.
func ReadConfig(r io.Reader) (Config, error) {
	var result Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&result)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	result.applyDefaults()
	return result, nil
}

func (c *Config) applyDefaults() {
	if c.L1CTL.Socket == "" && c.L1CTL.SerialPort == "" {
		c.L1CTL.Socket = DefaultSocketPath
	}
	if c.L1CTL.BaudRate == 0 {
		c.L1CTL.BaudRate = serial.DefaultBaudRate
	}
	if c.LAPDm.T200ACCHms <= 0 {
		c.LAPDm.T200ACCHms = int(lapdm.T200ACCH / time.Millisecond)
	}
	if c.LAPDm.T200DCCHms <= 0 {
		c.LAPDm.T200DCCHms = int(lapdm.T200DCCH / time.Millisecond)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 25
	}
	if c.Log.MaxAgeDays <= 0 {
		c.Log.MaxAgeDays = 7
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = 5
	}
}

// Validate checks that the configuration can be used to connect to layer 1.
func (c Config) Validate() error {
	if c.L1CTL.Socket == "" && c.L1CTL.SerialPort == "" {
		return ErrNoTransport
	}
	if c.LAPDm.N200 < 0 {
		return fmt.Errorf("invalid N200: %d", c.LAPDm.N200)
	}
	return nil
}
