package drivers

import (
	"fmt"

	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/model"
)

func init() {
	Register("cvcc", newCVCC)
}

const cvccHelp = `Resources:
  viout : maximum load voltage and current as two percentages of
      full scale, for example "50.0 25.0". Setting either value to
      zero disables the output.
  viin : measured load voltage, load current, and reference width
      as percentages of full scale, followed by the reference
      frequency in Hertz. Use pcget for one sample or pccat for a
      stream of samples.
`

const cvccFullScale = 1023

// cvcc drives a constant voltage constant current bench supply. The
// output limits live in one five byte register window of vset, iset,
// and an enable flag.
type cvcc struct{}

func newCVCC() engine.Driver { return cvcc{} }

func (cvcc) Info() engine.Info {
	return engine.Info{
		Name: "cvcc",
		Desc: "Constant Voltage Constant Current regulator",
		Help: cvccHelp,
	}
}

func (cvcc) Resources() []engine.ResourceSpec {
	return []engine.ResourceSpec{
		{
			Name:     "viout",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x08, Count: 5,
			Cached:    true,
			InitWrite: []byte{0, 0, 0, 0, 0},
			Parse:     parseVIOut,
			Format:    vioutLine,
		},
		{
			Name:     "viin",
			Caps:     model.CapReadable | model.CapBroadcast,
			Register: 0x00, Count: 8,
			Format: viinLine,
		},
	}
}

func parseVIOut(value string) ([]byte, error) {
	var newv, newi float64
	n, err := fmt.Sscanf(value, "%f %f", &newv, &newi)
	if n != 2 || err != nil ||
		newv < 0.0 || newv > 100.0 || newi < 0.0 || newi > 100.0 {
		return nil, fmt.Errorf("want two percentages 0 to 100, got %q", value)
	}
	vout := uint16(newv * cvccFullScale / 100)
	iout := uint16(newi * cvccFullScale / 100)
	enable := byte(0)
	if vout != 0 && iout != 0 {
		enable = 1
	}
	return []byte{
		byte(vout >> 8), byte(vout),
		byte(iout >> 8), byte(iout),
		enable,
	}, nil
}

func vioutLine(data []byte) string {
	if len(data) < 4 {
		return "0.0 0.0\n"
	}
	vout := int(data[0])<<8 | int(data[1])
	iout := int(data[2])<<8 | int(data[3])
	return fmt.Sprintf("%3.1f %3.1f\n",
		100.0*float64(vout)/cvccFullScale,
		100.0*float64(iout)/cvccFullScale)
}

// viinLine formats one sample of load measurements. The last two
// bytes hold the reference period in units of 10 ns. A zero period
// means the regulator has not started and every field reads zero.
func viinLine(data []byte) string {
	if len(data) != 8 {
		return ""
	}
	period := float64(int(data[6])<<8 | int(data[7]))
	if period == 0 {
		return "0.0 0.0 0.0 0.0\n"
	}
	return fmt.Sprintf("%3.1f %3.1f %3.1f %3.1f\n",
		100.0*float64(int(data[0])<<8|int(data[1]))/period,
		100.0*float64(int(data[2])<<8|int(data[3]))/period,
		100.0*float64(int(data[4])<<8|int(data[5]))/period,
		100000.0/(period/16.0))
}
