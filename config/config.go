// Package config loads the settings of a simulation run.
//
// Settings come from, in order of precedence:
//  1. Command-line flags registered with RegisterFlags
//  2. Environment variables (FLASHSIM_*, plus the short names PAGE, CAPACITY,
//     ERASE, SSDFILL, GC, LOAD, PRINT_EVERY_SSD_WRITE, PREFIX and SWITCH_DIST)
//  3. A YAML configuration file
//  4. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sarchlab/flashsim/bytesize"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "FLASHSIM"

// Config holds everything needed to run a simulation.
type Config struct {
	Device    DeviceConfig    `mapstructure:"device"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Workload  WorkloadConfig  `mapstructure:"workload"`
	Run       RunConfig       `mapstructure:"run"`
	Recording RecordingConfig `mapstructure:"recording"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// DeviceConfig describes the geometry of the simulated drive.
type DeviceConfig struct {
	// PageSize accepts human-readable sizes such as "4K".
	PageSize bytesize.ByteSize `mapstructure:"page_size" validate:"gt=0"`

	// Capacity is the raw capacity, e.g. "16G".
	Capacity bytesize.ByteSize `mapstructure:"capacity" validate:"gt=0"`

	// EraseSize is the erase block size, e.g. "8M".
	EraseSize bytesize.ByteSize `mapstructure:"erase_size" validate:"gt=0"`

	// Fill is the share of the raw capacity exposed to the host.
	Fill float64 `mapstructure:"fill" validate:"gt=0,lte=1"`

	// WriteBuffer sizes the write buffer as a share of the logical pages.
	// Zero disables it.
	WriteBuffer float64 `mapstructure:"write_buffer" validate:"gte=0,lt=1"`
}

// PolicyConfig selects the GC policy.
type PolicyConfig struct {
	// Name is one of greedy, greedy-k<k>, greedy-s2r or multistream-g<G>.
	Name string `mapstructure:"name" validate:"required,gcpolicy"`
}

// WorkloadConfig selects the host access pattern.
type WorkloadConfig struct {
	// Pattern is uniform, sequential, zipf:<s> or hotcold:<alpha>:<beta>.
	Pattern string `mapstructure:"pattern" validate:"required"`

	// Seed seeds both the workload and the sampled victim selection.
	Seed uint64 `mapstructure:"seed"`
}

// RunConfig controls the benchmark loop.
type RunConfig struct {
	// InitLoad writes as many random pages as the device has physical pages
	// before measuring.
	InitLoad bool `mapstructure:"init_load"`

	// PrintEvery is the number of reports per device-sized amount of writes.
	PrintEvery float64 `mapstructure:"print_every" validate:"gt=0"`

	// DriveWrites is the measured amount of writes, in multiples of the
	// logical capacity.
	DriveWrites float64 `mapstructure:"drive_writes" validate:"gt=0"`

	// Prefix tags every report row.
	Prefix string `mapstructure:"prefix"`

	// SwitchDist rebuilds the workload after half of the repetitions and
	// moves it to a random place in the address space.
	SwitchDist bool `mapstructure:"switch_dist"`
}

// RecordingConfig controls where the repetition reports are stored.
type RecordingConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Format is sqlite for a single database or csv for one file per table.
	Format string `mapstructure:"format" validate:"oneof=sqlite csv"`

	// Path of the output, without suffix. A generated name is used if empty.
	Path string `mapstructure:"path"`
}

// MonitorConfig controls the monitoring web server.
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port zero picks a free port.
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`

	OpenBrowser bool `mapstructure:"open_browser"`

	// AssetDir serves the dashboard from a directory instead of the pages
	// built into the binary.
	AssetDir string `mapstructure:"asset_dir"`
}

// LoadEnvFile reads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set are kept. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("loading %s: %w", path, err)
}

// Load builds the configuration. configPath may be empty, in which case no
// file is read. flags may be nil; otherwise flags registered with
// RegisterFlags override every other source when set on the command line.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	ApplyDefaults(v)

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w",
				configPath, err)
		}
	}

	return decode(v)
}

// Default returns the configuration used when nothing is set. Neither the
// environment nor any file is consulted.
func Default() *Config {
	v := viper.New()
	ApplyDefaults(v)

	cfg, err := decode(v)
	if err != nil {
		panic(err)
	}

	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnv(v *viper.Viper) error {
	for _, s := range settings {
		names := []string{s.key, envName(s.key)}
		names = append(names, s.legacyEnv...)

		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("binding environment for %s: %w", s.key, err)
		}
	}

	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, s := range settings {
		f := flags.Lookup(s.flag)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(s.key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", s.flag, err)
		}
	}

	return nil
}

// envName turns "device.page_size" into "FLASHSIM_DEVICE_PAGE_SIZE".
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// decodeHooks lets sizes be written as "4K" through ByteSize.UnmarshalText.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.TextUnmarshallerHookFunc()
}
