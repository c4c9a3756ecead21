package drivers

import (
	"fmt"

	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/model"
)

func init() {
	Register("rcc8", newRCC8)
}

const rcc8Help = `Resources:
  rccval : discharge times of the eight RC channels as eight hex
      bytes in units of the configured clock. Use pccat to stream
      samples at the configured update rate.
  config : transition polarity, discharge clock rate, and update
      period. Polarity 1 times a 1 to 0 transition. The clock rate
      is one of 10000000, 1000000, 100000, or 10000 Hertz. The
      update period is 0 to 150 ms in steps of 10, with 0 turning
      sampling off.
`

// rcc8 times resistor capacitor discharges on eight channels, the
// usual way to read a bank of analog knobs without an ADC.
type rcc8 struct{}

func newRCC8() engine.Driver { return rcc8{} }

func (rcc8) Info() engine.Info {
	return engine.Info{
		Name: "rcc8",
		Desc: "Resistor Capacitor discharge timer",
		Help: rcc8Help,
	}
}

func (rcc8) Resources() []engine.ResourceSpec {
	return []engine.ResourceSpec{
		{
			Name:     "rccval",
			Caps:     model.CapBroadcast,
			Register: 0x00, Count: 8,
			Format: rccSampleLine,
		},
		{
			Name:     "config",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x08, Count: 1,
			Cached: true,
			// Power up with sampling off.
			InitWrite: []byte{0},
			Parse:     parseRCCConfig,
			Format:    rccConfigLine,
		},
	}
}

var rccClockRates = [4]int{10000000, 1000000, 100000, 10000}

func parseRCCConfig(value string) ([]byte, error) {
	var pol, clk, update int
	n, err := fmt.Sscanf(value, "%d %d %d", &pol, &clk, &update)
	if n != 3 || err != nil || (pol != 0 && pol != 1) ||
		update < 0 || update > 150 {
		return nil, fmt.Errorf("bad config %q", value)
	}
	clksrc := -1
	for i, rate := range rccClockRates {
		if clk == rate {
			clksrc = i
			break
		}
	}
	if clksrc < 0 {
		return nil, fmt.Errorf("bad clock rate %d", clk)
	}
	// The board counts update ticks of 10 ms.
	return []byte{byte(pol)<<6 | byte(clksrc)<<4 | byte(update/10)}, nil
}

func rccConfigLine(data []byte) string {
	b := byte(0)
	if len(data) > 0 {
		b = data[0]
	}
	return fmt.Sprintf("%d %d %d\n",
		b>>6&1, rccClockRates[b>>4&3], int(b&0x0f)*10)
}

func rccSampleLine(data []byte) string {
	if len(data) != 8 {
		return ""
	}
	return fmt.Sprintf("%02x %02x %02x %02x %02x %02x %02x %02x\n",
		data[0], data[1], data[2], data[3],
		data[4], data[5], data[6], data[7])
}
