package drivers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/model"
)

func init() {
	Register("dgspi", newDGSPI)
}

const dgspiHelp = `Resources:
  data : SPI transfer. Use pcget with the bytes to send as hex
      numbers separated by spaces or commas, for example
      "pcget 2 data 03 00 12 ff". The reply has the bytes read
      from the device during the transfer. At most 62 bytes go
      out in one transfer.
  config : SCK frequency in Hertz, SCK polarity, and the chip
      select mode. Frequencies at or above 2000000, 1000000, and
      500000 round down to those rates and anything lower runs at
      100 KHz. Polarity 0 clocks MOSI on the rising edge. The chip
      select modes are al, ah, fl, and fh for active low, active
      high, forced low, and forced high.
`

// SPI transfers can carry this many payload bytes after the count
// byte that leads the register window.
const dgspiMaxTransfer = 62

// dgspi drives a bit-banged SPI port. A transfer is written to the
// count register and the bytes clocked in from the device come back
// as an unsolicited packet on the mode register once the shifting
// finishes.
type dgspi struct{}

func newDGSPI() engine.Driver { return dgspi{} }

func (dgspi) Info() engine.Info {
	return engine.Info{
		Name: "dgspi",
		Desc: "generic SPI interface",
		Help: dgspiHelp,
	}
}

func (dgspi) Resources() []engine.ResourceSpec {
	return []engine.ResourceSpec{
		{
			Name:     "data",
			Caps:     model.CapReadable,
			Register: 0x01, Count: 1,
			WriteOnGet: true,
			AsyncReply: true, ReplyRegister: 0x00,
			Parse:  parseSPITransfer,
			Format: spiReplyLine,
		},
		{
			Name:     "config",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x00, Count: 1,
			Cached: true,
			Parse:  parseSPIConfig,
			Format: spiConfigLine,
		},
	}
}

// parseSPITransfer builds the count register image for one transfer,
// a leading length byte followed by the MOSI bytes.
func parseSPITransfer(value string) ([]byte, error) {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ' ' || r == ','
	})
	out := []byte{0}
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad hex byte %q", f)
		}
		out = append(out, byte(n))
		if len(out)-1 == dgspiMaxTransfer {
			break
		}
	}
	if len(out) == 1 {
		return nil, fmt.Errorf("no bytes to send")
	}
	out[0] = byte(len(out))
	return out, nil
}

// spiReplyLine prints the MISO bytes of a finished transfer. The
// reply mirrors the length byte at the end, which stays hidden.
func spiReplyLine(data []byte) string {
	if len(data) < 2 {
		return ""
	}
	var b strings.Builder
	for _, v := range data[:len(data)-1] {
		fmt.Fprintf(&b, "%02x ", v)
	}
	b.WriteByte('\n')
	return b.String()
}

func parseSPIConfig(value string) ([]byte, error) {
	var clk, pol int
	var mode string
	n, err := fmt.Sscanf(value, "%d %d %s", &clk, &pol, &mode)
	if n != 3 || err != nil || clk < 5000 {
		return nil, fmt.Errorf("bad config %q", value)
	}
	var csmode byte
	switch {
	case strings.HasPrefix(mode, "al"):
		csmode = 0
	case strings.HasPrefix(mode, "ah"):
		csmode = 1
	case strings.HasPrefix(mode, "fl"):
		csmode = 2
	case strings.HasPrefix(mode, "fh"):
		csmode = 3
	default:
		return nil, fmt.Errorf("bad chip select mode %q", mode)
	}
	var clksrc byte
	switch {
	case clk >= 2000000:
		clksrc = 0
	case clk >= 1000000:
		clksrc = 1
	case clk >= 500000:
		clksrc = 2
	default:
		clksrc = 3
	}
	var sckpol byte
	if pol != 0 {
		sckpol = 1
	}
	return []byte{clksrc<<6 | csmode<<2 | sckpol<<1}, nil
}

func spiConfigLine(data []byte) string {
	b := byte(0)
	if len(data) > 0 {
		b = data[0]
	}
	clk := [4]int{2000000, 1000000, 500000, 100000}[b>>6&3]
	mode := [4]string{"al", "ah", "fl", "fh"}[b>>2&3]
	return fmt.Sprintf("%d %d %s\n", clk, b>>1&1, mode)
}
