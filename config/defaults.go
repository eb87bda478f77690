package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// setting ties a configuration key to its default value, command-line flag
// and environment variables.
type setting struct {
	key       string
	value     any
	flag      string
	usage     string
	legacyEnv []string
}

var settings = []setting{
	{"device.page_size", "4K", "page", "page size (e.g. 4K)",
		[]string{"PAGE"}},
	{"device.capacity", "16G", "capacity", "raw capacity (e.g. 16G)",
		[]string{"CAPACITY"}},
	{"device.erase_size", "8M", "erase", "erase block size (e.g. 8M)",
		[]string{"ERASE"}},
	{"device.fill", 0.875, "ssdfill", "share of capacity exposed to the host",
		[]string{"SSDFILL"}},
	{"device.write_buffer", 0.0, "write-buffer",
		"write buffer size as a share of the logical pages", nil},
	{"policy.name", "greedy", "gc",
		"GC policy: greedy, greedy-k<k>, greedy-s2r or multistream-g<G>",
		[]string{"GC"}},
	{"workload.pattern", "uniform", "pattern",
		"access pattern: uniform, sequential, zipf:<s>, hotcold:<a>:<b>", nil},
	{"workload.seed", uint64(1), "seed", "random seed", nil},
	{"run.init_load", true, "load",
		"write one device worth of random pages before measuring",
		[]string{"LOAD"}},
	{"run.print_every", 10.0, "print-every",
		"reports per device-sized amount of writes",
		[]string{"PRINT_EVERY_SSD_WRITE"}},
	{"run.drive_writes", 10.0, "drive-writes",
		"measured writes in multiples of the logical capacity", nil},
	{"run.prefix", "output", "prefix", "tag added to every report row",
		[]string{"PREFIX"}},
	{"run.switch_dist", false, "switch-dist",
		"rebuild and move the workload after half of the repetitions",
		[]string{"SWITCH_DIST"}},
	{"recording.enabled", false, "record", "record the reports", nil},
	{"recording.format", "sqlite", "format", "report format: sqlite or csv",
		nil},
	{"recording.path", "", "db", "report file name without suffix", nil},
	{"monitor.enabled", false, "monitor", "serve the monitoring API", nil},
	{"monitor.port", 0, "monitor-port", "monitoring port, 0 picks one", nil},
	{"monitor.open_browser", false, "open-browser",
		"open the monitoring page in a browser", nil},
	{"monitor.asset_dir", "", "monitor-assets",
		"serve the dashboard from this directory", nil},
}

// ApplyDefaults registers the default value of every key.
func ApplyDefaults(v *viper.Viper) {
	for _, s := range settings {
		v.SetDefault(s.key, s.value)
	}
}

// RegisterFlags defines one flag per setting on fs. Flag defaults match the
// configuration defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, s := range settings {
		switch d := s.value.(type) {
		case string:
			fs.String(s.flag, d, s.usage)
		case float64:
			fs.Float64(s.flag, d, s.usage)
		case uint64:
			fs.Uint64(s.flag, d, s.usage)
		case int:
			fs.Int(s.flag, d, s.usage)
		case bool:
			fs.Bool(s.flag, d, s.usage)
		default:
			panic("unsupported setting type for " + s.key)
		}
	}
}
