package drivers

import (
	"fmt"
	"strings"

	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/model"
)

func init() {
	Register("sndgen", newSndgen)
}

const sndgenHelp = `Resources:
  config : nine fields controlling the oscillator, the low
      frequency sweep, and the noise source:
        omode   - o, t, s, r, or f for off, triangle, square,
                  rising ramp, or falling ramp
        ofreq   - oscillator frequency, 24 to 7000 Hertz
        lmode   - o, t, r, f, u, or d for off, triangle, rising
                  ramp, falling ramp, step up, or step down
        lfreq   - sweep span in Hertz, 0 to 5000
        lperiod - sweep period in 10 ms steps, 0 to 250
        l1shot  - o for one shot, c for continuous sweep
        nfreq   - noise clock h, m, l, or o for high, medium,
                  low, or off
        oattn   - oscillator attenuation 0, 2, 4, or 8
        nattn   - noise attenuation 0, 2, 4, or 8
      For example "pcset 3 config s 440 o 0 0 o o 0 0" plays an
      A at full volume with the noise source off.
`

// Hertz per LSB of the oscillator phase accumulator.
const oscStep = 1.527

// Waveform codes of the synthesis fabric. The inverted forms ramp
// down instead of up.
const (
	oscSquare   = 0
	oscRamp     = 1
	oscTriangle = 2
	oscOff      = 3
	oscInvert   = 4
)

// sndgen drives a simple sound synthesizer with one oscillator, a
// low frequency sweep, and an LFSR noise source. The full nine field
// configuration goes out as one seven byte register image.
type sndgen struct {
	omode   rune
	ofreq   int
	lmode   rune
	lfreq   int
	lperiod int
	l1shot  rune
	nfreq   rune
	oattn   rune
	nattn   rune
}

func newSndgen() engine.Driver {
	return &sndgen{
		omode:  'o',
		ofreq:  1000,
		lmode:  'o',
		lfreq:  100,
		l1shot: 'o',
		nfreq:  'm',
		oattn:  '2',
		nattn:  '2',
	}
}

func (d *sndgen) Info() engine.Info {
	return engine.Info{
		Name: "sndgen",
		Desc: "Sound generator",
		Help: sndgenHelp,
	}
}

func (d *sndgen) Resources() []engine.ResourceSpec {
	return []engine.ResourceSpec{
		{
			Name:     "config",
			Caps:     model.CapReadable | model.CapWritable,
			Register: 0x00, Count: 7,
			Cached: true,
			Parse:  d.parseConfig,
			Format: d.configLine,
		},
	}
}

func (d *sndgen) configLine([]byte) string {
	return fmt.Sprintf("%c %d %c %d %d %c %c %c %c\n", d.omode, d.ofreq,
		d.lmode, d.lfreq, d.lperiod, d.l1shot, d.nfreq, d.oattn, d.nattn)
}

func (d *sndgen) parseConfig(value string) ([]byte, error) {
	var omode, lmode, l1shot, nfreq, oattn, nattn rune
	var ofreq, lfreq, lperiod int
	n, err := fmt.Sscanf(value, "%c %d %c %d %d %c %c %c %c", &omode, &ofreq,
		&lmode, &lfreq, &lperiod, &l1shot, &nfreq, &oattn, &nattn)
	if n != 9 || err != nil ||
		!strings.ContainsRune("otsrf", omode) ||
		ofreq < 24 || ofreq > 7000 ||
		!strings.ContainsRune("otrfud", lmode) ||
		lfreq < 0 || lfreq > 5000 ||
		lperiod < 0 || lperiod > 250 ||
		!strings.ContainsRune("oc", l1shot) ||
		!strings.ContainsRune("hmlo", nfreq) ||
		!strings.ContainsRune("0248", oattn) ||
		!strings.ContainsRune("0248", nattn) {
		return nil, fmt.Errorf("bad config %q", value)
	}
	d.omode = omode
	d.ofreq = ofreq
	d.lmode = lmode
	d.lfreq = lfreq
	d.lperiod = lperiod
	d.l1shot = l1shot
	d.nfreq = nfreq
	d.oattn = oattn
	d.nattn = nattn
	return d.image(), nil
}

// image packs the configuration into the seven register bytes.
func (d *sndgen) image() []byte {
	data := make([]byte, 7)

	ophasestep := int(float64(d.ofreq) / oscStep)
	switch d.omode {
	case 'o':
		data[0] = oscOff << 4
	case 's':
		data[0] = oscSquare << 4
	case 't':
		data[0] = oscTriangle << 4
	case 'r':
		data[0] = oscRamp << 4
	case 'f':
		data[0] = (oscRamp + oscInvert) << 4
	}
	data[0] |= byte(ophasestep>>8) & 0x0f
	data[1] = byte(ophasestep)

	if d.l1shot == 'o' {
		data[2] = 0x80
	}
	switch d.lmode {
	case 'o':
		data[2] |= oscOff << 4
	case 't':
		data[2] |= oscTriangle << 4
	case 'r':
		data[2] |= oscRamp << 4
	case 'f':
		data[2] |= (oscRamp + oscInvert) << 4
	case 'u':
		data[2] |= oscSquare << 4
	case 'd':
		data[2] |= (oscSquare + oscInvert) << 4
	}
	data[4] = byte(d.lperiod)

	// The sweep hardware steps the oscillator phase once per 10 ms
	// tick. Sweeps slower than one phase step per tick stretch the
	// tick instead.
	switch {
	case d.lmode == 'u' || d.lmode == 'd':
		lstep := int(float64(d.lfreq) / oscStep)
		data[2] |= byte(lstep>>8) & 0x0f
		data[3] = byte(lstep)
		// Half the period at each of the two tones.
		data[5] = byte(d.lperiod / 2)
	case d.lfreq == 0:
		data[3] = 1
		data[5] = 0
	case d.lperiod == 0:
		data[3] = 0
		data[5] = 1
	default:
		lphasestep := (float64(d.lfreq) / float64(d.lperiod)) / oscStep
		if lphasestep > 1 {
			lstep := int(lphasestep)
			data[2] |= byte(lstep>>8) & 0x0f
			data[3] = byte(lstep)
			data[5] = 1
		} else {
			data[3] = 1
			data[5] = byte(int(1 / lphasestep))
		}
	}

	if d.omode != 'o' {
		data[6] = 0x80
	}
	if d.nfreq != 'o' {
		data[6] |= 0x40
	}
	switch d.nfreq {
	case 'h':
		data[6] |= 0x20
	case 'm':
		data[6] |= 0x10
	}
	switch d.oattn {
	case '8':
		data[6] |= 0x0c
	case '4':
		data[6] |= 0x08
	case '2':
		data[6] |= 0x04
	}
	switch d.nattn {
	case '8':
		data[6] |= 0x03
	case '4':
		data[6] |= 0x02
	case '2':
		data[6] |= 0x01
	}
	return data
}
