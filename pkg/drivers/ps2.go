package drivers

import (
	"fmt"
	"strings"

	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/model"
)

func init() {
	Register("ps2", newPS2)
}

const ps2Help = `Resources:
  data : received bytes as hex numbers, one line per packet. A
      keyboard sends one byte per line and a mouse three. Use
      pccat to stream the bytes as they arrive.
`

// Bits per received frame, the start bit, eight data bits, the
// parity bit, and the stop bit sampled one per register.
const ps2FrameBits = 11

// ps2 receives scan codes from a PS/2 keyboard or mouse. The FPGA
// samples each line bit into its own register, so framing and parity
// are checked here rather than in the fabric.
type ps2 struct{}

func newPS2() engine.Driver { return ps2{} }

func (ps2) Info() engine.Info {
	return engine.Info{
		Name: "ps2",
		Desc: "PS/2 keyboard input",
		Help: ps2Help,
	}
}

func (ps2) Resources() []engine.ResourceSpec {
	return []engine.ResourceSpec{
		{
			Name:     "data",
			Caps:     model.CapBroadcast,
			Register: 0x00, Count: ps2FrameBits,
			Format: ps2Line,
		},
	}
}

// ps2Line decodes the bit samples of one packet, usually one frame
// from a keyboard or three from a mouse. A bad start bit, parity, or
// stop bit anywhere drops the whole packet.
func ps2Line(data []byte) string {
	if len(data) == 0 || len(data)%ps2FrameBits != 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(data); i += ps2FrameBits {
		frame := data[i : i+ps2FrameBits]
		parity := 1
		value := 0
		// The byte arrives LSB first, so walk the bits backwards to
		// shift the MSB in first.
		for j := 8; j >= 1; j-- {
			value = value<<1 + int(frame[j])
			parity ^= int(frame[j])
		}
		if frame[0] != 0 || int(frame[9]) != parity || frame[10] != 1 {
			return ""
		}
		fmt.Fprintf(&b, "%02x ", value)
	}
	b.WriteByte('\n')
	return b.String()
}
