// Package bytesize parses the human-readable sizes used to describe a device,
// such as "4K", "8M" or "16G".
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes that can be decoded from strings like "4K",
// "8MiB" or "100MB".
//
// Single-letter units and the IEC units (Ki, KiB, ...) are binary. Two-letter
// SI units (KB, MB, ...) are decimal.
type ByteSize uint64

// Common sizes.
const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

var sizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var multipliers = map[string]ByteSize{
	"":    B,
	"b":   B,
	"k":   KiB,
	"m":   MiB,
	"g":   GiB,
	"t":   TiB,
	"kb":  KB,
	"mb":  MB,
	"gb":  GB,
	"tb":  TB,
	"ki":  KiB,
	"kib": KiB,
	"mi":  MiB,
	"mib": MiB,
	"gi":  GiB,
	"gib": GiB,
	"ti":  TiB,
	"tib": TiB,
}

// Parse converts a human-readable size into a ByteSize.
func Parse(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}

	multiplier, ok := multipliers[strings.ToLower(matches[2])]
	if !ok {
		return 0, fmt.Errorf("unknown unit %q in byte size %q", matches[2], s)
	}

	if strings.Contains(matches[1], ".") {
		num, err := strconv.ParseFloat(matches[1], 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %q: %w", s, err)
		}

		return ByteSize(num * float64(multiplier)), nil
	}

	num, err := strconv.ParseUint(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}

	return ByteSize(num) * multiplier, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) ByteSize {
	b, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return b
}

// UnmarshalText implements encoding.TextUnmarshaler, so that ByteSize fields
// can be decoded by mapstructure and flag parsers.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := Parse(string(text))
	if err != nil {
		return err
	}

	*b = size

	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (b ByteSize) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(b), 10)), nil
}

// String returns the size in IEC units, e.g. "16 GiB".
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Uint64 returns the size as a plain number of bytes.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}
