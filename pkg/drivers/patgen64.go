package drivers

import (
	"fmt"

	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/model"
)

func init() {
	Register("patgen64", newPatgen64)
}

const patgen64Help = `Resources:
  pattern : the pattern as up to 64 hex digits, for example
      "00f0a5". Spaces and other non hex characters are ignored.
      Digits past the ones given keep their old values.
  frequency : pattern step rate in Hertz. Rates round down to the
      nearest supported rate, from 20000000 down to 5, and rates
      below 5 stop the clock.
  length : number of pattern digits to repeat, 1 to 64.
`

const patgenDigits = 64

// Step rates the clock divider can produce, indexed by the register
// code. Code zero stops the pattern clock.
var patgenRates = [16]int{
	0, 20000000, 10000000, 5000000, 1000000, 500000,
	100000, 50000, 10000, 5000, 1000, 500, 100, 50, 10, 5,
}

// patgen64 drives a 64 step 4 bit pattern generator. The pattern is
// kept host side as the hex string the user typed so a get returns
// exactly what was set.
type patgen64 struct {
	pattern [patgenDigits]byte
}

func newPatgen64() engine.Driver {
	d := &patgen64{}
	for i := range d.pattern {
		d.pattern[i] = '0'
	}
	return d
}

func (d *patgen64) Info() engine.Info {
	return engine.Info{
		Name: "patgen64",
		Desc: "64x4 Pattern Generator",
		Help: patgen64Help,
	}
}

func (d *patgen64) Resources() []engine.ResourceSpec {
	return []engine.ResourceSpec{
		{
			Name:     "pattern",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x00, Count: patgenDigits,
			Cached: true,
			Parse:  d.parsePattern,
			Format: func([]byte) string { return string(d.pattern[:]) + "\n" },
		},
		{
			Name:     "frequency",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x40, Count: 1,
			Cached: true,
			Parse:  parsePatgenFreq,
			Format: patgenFreqLine,
		},
		{
			Name:     "length",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x41, Count: 1,
			Cached: true,
			Parse:  parsePatgenLength,
			Format: patgenLengthLine,
		},
	}
}

// parsePattern overwrites the leading digits of the pattern with the
// hex characters of value and returns the full 64 nibble register
// image. Extra digits are dropped and non hex characters skipped.
func (d *patgen64) parsePattern(value string) ([]byte, error) {
	hidx := 0
	for i := 0; i < len(value) && hidx < patgenDigits; i++ {
		if hexVal(value[i]) >= 0 {
			d.pattern[hidx] = value[i]
			hidx++
		}
	}
	out := make([]byte, patgenDigits)
	for i, c := range d.pattern {
		out[i] = byte(hexVal(c))
	}
	return out, nil
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(10 + c - 'a')
	case c >= 'A' && c <= 'F':
		return int(10 + c - 'A')
	}
	return -1
}

func parsePatgenFreq(value string) ([]byte, error) {
	var newfreq int
	n, err := fmt.Sscanf(value, "%d", &newfreq)
	if n != 1 || err != nil {
		return nil, fmt.Errorf("bad frequency %q", value)
	}
	// Round down to the nearest supported rate.
	for code := 1; code < len(patgenRates); code++ {
		if newfreq >= patgenRates[code] {
			return []byte{byte(code)}, nil
		}
	}
	return []byte{0}, nil
}

func patgenFreqLine(data []byte) string {
	code := byte(0)
	if len(data) > 0 {
		code = data[0] & 0x0f
	}
	return fmt.Sprintf("%d\n", patgenRates[code])
}

func parsePatgenLength(value string) ([]byte, error) {
	var length int
	n, err := fmt.Sscanf(value, "%d", &length)
	if n != 1 || err != nil || length < 1 || length > patgenDigits {
		return nil, fmt.Errorf("bad length %q", value)
	}
	// The register holds the highest step index.
	return []byte{byte(length - 1)}, nil
}

func patgenLengthLine(data []byte) string {
	if len(data) < 1 {
		return fmt.Sprintf("%d\n", patgenDigits)
	}
	return fmt.Sprintf("%d\n", int(data[0])+1)
}
