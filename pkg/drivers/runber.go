package drivers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/model"
)

func init() {
	Register("runber", newRunber)
}

const runberHelp = `Resources:
  switches : the eight switches and four buttons as two hex bytes.
      Use pcget for the current state or pccat for updates.
  rgb : the four RGB LEDs as three hex digits, one bit per LED in
      each of the red, green, and blue digits.
  display : up to eight characters for the four digit 7-segment
      display. A dot after a character lights that digit's decimal
      point.
  segments : raw segment values as four hex bytes, leftmost digit
      first.
  drivlist : driver IDs of the FPGA build as sixteen four digit hex
      numbers.
`

// Character to 7-segment mapping, segments MSB -> pgfedcba <- LSB.
var sevenSeg = map[byte]byte{
	'0': 0x3f, '1': 0x06, '2': 0x5b, '3': 0x4f,
	'4': 0x66, '5': 0x6d, '6': 0x7d, '7': 0x07,
	'8': 0x7f, '9': 0x67, 'a': 0x77, 'b': 0x7c,
	'c': 0x39, 'd': 0x5e, 'e': 0x79, 'f': 0x71,
	'A': 0x77, 'B': 0x7c, 'C': 0x39, 'D': 0x5e,
	'E': 0x79, 'F': 0x71, 'o': 0x5c, 'L': 0x38,
	'r': 0x50, 'h': 0x74, 'H': 0x76, '-': 0x40,
	' ': 0x00, '_': 0x08, 'u': 0x1c, '.': 0x00,
}

const runberDigits = 4

// runber drives the switches, RGB LEDs, and 7-segment display on a
// RunBer dev board. The LED and segment registers form one window, so
// every output write sends the combined six byte image.
type runber struct {
	red, green, blue byte
	text             string
	segs             [runberDigits]byte
}

func newRunber() engine.Driver { return &runber{} }

func (d *runber) Info() engine.Info {
	return engine.Info{
		Name: "runber",
		Desc: "Runber on-board peripherals",
		Help: runberHelp,
	}
}

func (d *runber) Resources() []engine.ResourceSpec {
	return []engine.ResourceSpec{
		{
			Name:     "rgb",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x02, Count: 6,
			Cached: true,
			Parse:  d.parseRGB,
			Format: func([]byte) string { return fmt.Sprintf("%x%x%x\n", d.red, d.green, d.blue) },
		},
		{
			Name:     "segments",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x02, Count: 6,
			Cached: true,
			Parse:  d.parseSegments,
			Format: func([]byte) string { return fmt.Sprintf("%02x %02x\n", d.segs[0], d.segs[1]) },
		},
		{
			Name:     "display",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x02, Count: 6,
			Cached: true,
			Parse:  d.parseDisplay,
			Format: func([]byte) string { return d.text + "\n" },
		},
		{
			Name:     "switches",
			Caps:     model.CapReadable | model.CapBroadcast,
			Register: 0x00, Count: 2,
			Format: switchPairLine,
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

// image packs the LED and segment state into the six byte register
// window starting at the red register.
func (d *runber) image() []byte {
	return []byte{
		d.red,
		d.green<<4 | d.blue,
		d.segs[0], d.segs[1], d.segs[2], d.segs[3],
	}
}

func (d *runber) parseRGB(value string) ([]byte, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 16, 16)
	if err != nil || n > 0xfff {
		return nil, fmt.Errorf("rgb value out of range: %q", value)
	}
	d.red = byte(n >> 8)
	d.green = byte(n>>4) & 0x0f
	d.blue = byte(n) & 0x0f
	return d.image(), nil
}

func (d *runber) parseDisplay(value string) ([]byte, error) {
	if len(value) > 2*runberDigits {
		value = value[:2*runberDigits]
	}
	d.text = value
	d.segs = textToSegs(value)
	return d.image(), nil
}

func (d *runber) parseSegments(value string) ([]byte, error) {
	fields := strings.Fields(value)
	if len(fields) != runberDigits {
		return nil, fmt.Errorf("segments want %d hex bytes", runberDigits)
	}
	var segs [runberDigits]byte
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 16, 16)
		if err != nil || n > 0xff {
			return nil, fmt.Errorf("segment value out of range: %q", f)
		}
		// Leftmost digit first on the command line, highest register
		// on the board.
		segs[runberDigits-1-i] = byte(n)
	}
	d.segs = segs
	return d.image(), nil
}

// textToSegs renders up to four characters, folding a trailing dot
// into the decimal point bit of the digit before it. The leftmost
// character lands in the highest segment register.
func textToSegs(text string) [runberDigits]byte {
	var segs [runberDigits]byte
	k := 0
	for i := runberDigits - 1; i >= 0; i-- {
		var cur byte
		if k < len(text) {
			cur = text[k]
		}
		segs[i] = sevenSeg[cur]
		if cur != '.' && k+1 < len(text) && text[k+1] == '.' {
			segs[i] |= 0x80
			k++
		}
		k++
	}
	return segs
}

// switchPairLine prints a two byte switch sample. The hardware can
// emit other sizes while a switch bounces, and those are dropped.
func switchPairLine(data []byte) string {
	if len(data) != 2 {
		return ""
	}
	return fmt.Sprintf("%02x %02x\n", data[0], data[1])
}
