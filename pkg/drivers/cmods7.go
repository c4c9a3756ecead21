package drivers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/model"
)

func init() {
	Register("cmods7", newCmodS7)
}

const cmods7Help = `Resources:
  buttons : state of the board buttons as one hex digit. Use pcget
      for the current state or pccat for updates on change.
  rgb : RGB LED value in bits 2/1/0, one hex digit 0 to 7.
  drivlist : driver IDs of the FPGA build as sixteen four digit hex
      numbers.
`

// cmodS7 drives the buttons, RGB LED, and enumerator ROM on a Cmod S7
// dev board.
type cmodS7 struct{}

func newCmodS7() engine.Driver { return &cmodS7{} }

func (d *cmodS7) Info() engine.Info {
	return engine.Info{
		Name: "cmods7",
		Desc: "The buttons and RGB LED on the CmodS7",
		Help: cmods7Help,
	}
}

func (d *cmodS7) Resources() []engine.ResourceSpec {
	return []engine.ResourceSpec{
		{
			Name:     "buttons",
			Caps:     model.CapReadable | model.CapBroadcast,
			Register: 0x00, Count: 1,
			SuppressDup: true,
			Format:      hexDigitLine,
		},
		{
			Name:     "rgb",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x01, Count: 1,
			Cached: true,
			Parse:  parseRGB3,
			Format: hexDigitLine,
		},
		{
			Name:     "drivlist",
			Caps:     model.CapReadable,
			Register: 0x40, Count: 32,
			Cached: true, InitRead: true, Enumerates: true,
			Format: driverIDLine,
		},
	}
}

// parseRGB3 accepts one hex digit with a bit per LED color.
func parseRGB3(value string) ([]byte, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 16, 8)
	if err != nil || n > 7 {
		return nil, fmt.Errorf("rgb value out of range: %q", value)
	}
	return []byte{byte(n)}, nil
}

// hexDigitLine prints a single register as a bare hex value.
func hexDigitLine(data []byte) string {
	if len(data) < 1 {
		return "\n"
	}
	return fmt.Sprintf("%x\n", data[0])
}

// driverIDLine prints an enumerator ROM image as sixteen four digit
// IDs, the last space replaced by the newline.
func driverIDLine(data []byte) string {
	var b strings.Builder
	for i := 0; i+1 < len(data); i += 2 {
		fmt.Fprintf(&b, "%04x ", uint16(data[i])<<8|uint16(data[i+1]))
	}
	out := b.String()
	if out == "" {
		return "\n"
	}
	return out[:len(out)-1] + "\n"
}
