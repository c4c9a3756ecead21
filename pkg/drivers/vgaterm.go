package drivers

import (
	"fmt"

	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/model"
)

func init() {
	Register("vgaterm", newVGATerm)
}

const vgatermHelp = `Resources:
  char : text for the display. A set appends the characters to the
      output FIFO. The terminal handles carriage control and ANSI
      escape sequences. A get returns the character under the
      cursor, its colors, and u or n and b or n for underline and
      blink.
  cursor : column 1 to 80, row 1 to 40, b or u for a block or
      underline cursor, and v or i for visible or invisible.
  attr : foreground and background colors as hex rgb in 2:2:2
      format, u or n for underline, and b or n for blink. The
      attributes apply to characters written after the set.
  rowoff : first display row after vertical sync, 0 to 39. Full
      screen scrolling without rewriting any text.
`

const (
	vgaRows = 40
	vgaCols = 80
)

// Register windows of the display controller.
const (
	vgaRegChar   = 0 // character FIFO, char under the cursor on read
	vgaRegCursor = 1 // column, row, row offset, cursor style
	vgaRegRowoff = 3
	vgaRegColors = 5 // foreground, background, underline and blink bits
)

// vgaterm drives a text terminal on a VGA display. Text goes to a
// FIFO at a fixed register and the cursor window write needs the
// current row offset, which is kept here.
type vgaterm struct {
	rowoff byte
}

func newVGATerm() engine.Driver { return &vgaterm{} }

func (d *vgaterm) Info() engine.Info {
	return engine.Info{
		Name: "vgaterm",
		Desc: "VGA Terminal with 6 bit color",
		Help: vgatermHelp,
	}
}

func (d *vgaterm) Resources() []engine.ResourceSpec {
	return []engine.ResourceSpec{
		{
			Name:     "char",
			Caps:     model.CapReadable | model.CapWritable,
			Register: vgaRegChar, Count: 8,
			Fixed:  true,
			Parse:  parseVGAText,
			Format: vgaCharLine,
		},
		{
			Name:     "cursor",
			Caps:     model.CapReadable | model.CapWritable,
			Register: vgaRegCursor, Count: 4,
			InitWrite: []byte{0, 0, 0, 0},
			Parse:     d.parseCursor,
			Format:    vgaCursorLine,
		},
		{
			Name:     "attr",
			Caps:     model.CapReadable | model.CapWritable,
			Register: vgaRegColors, Count: 3,
			Cached:    true,
			InitWrite: []byte{0x3f, 0, 0},
			Parse:     parseVGAAttr,
			Format:    vgaAttrLine,
		},
		{
			Name:     "rowoff",
			Caps:     model.CapReadable | model.CapWritable,
			Register: vgaRegRowoff, Count: 1,
			Cached: true,
			Parse:  d.parseRowoff,
			Format: vgaRowoffLine,
		},
	}
}

// parseVGAText passes the text through unchanged. The FIFO register
// does not auto increment, so long strings chunk at the same
// register and arrive in order.
func parseVGAText(value string) ([]byte, error) {
	if len(value) < 1 || len(value) > vgaCols {
		return nil, fmt.Errorf("want 1 to %d characters", vgaCols)
	}
	return []byte(value), nil
}

// vgaCharLine formats a read of the full register window, the
// character under the cursor with the colors and attributes it was
// drawn with.
func vgaCharLine(data []byte) string {
	if len(data) != 8 {
		return ""
	}
	under, blink := 'n', 'n'
	if data[7]&0x1 != 0 {
		under = 'u'
	}
	if data[7]&0x2 != 0 {
		blink = 'b'
	}
	return fmt.Sprintf("0x%02x 0x%02x 0x%02x %c %c\n",
		data[0], data[5], data[6], under, blink)
}

func (d *vgaterm) parseCursor(value string) ([]byte, error) {
	var ccol, crow int
	var style, visible rune
	n, err := fmt.Sscanf(value, "%d %d %c %c", &ccol, &crow, &style, &visible)
	if n != 4 || err != nil ||
		ccol < 1 || ccol > vgaCols || crow < 1 || crow > vgaRows ||
		(style != 'b' && style != 'u') ||
		(visible != 'v' && visible != 'i') {
		return nil, fmt.Errorf("bad cursor %q", value)
	}
	var bits byte
	if style == 'b' {
		bits = 1
	}
	if visible == 'v' {
		bits |= 2
	}
	// The board is zero indexed and the window covers the row
	// offset register, which must keep its current value.
	return []byte{byte(ccol - 1), byte(crow - 1), d.rowoff, bits}, nil
}

func vgaCursorLine(data []byte) string {
	if len(data) != 4 {
		return ""
	}
	style, visible := 'u', 'i'
	if data[3]&0x1 != 0 {
		style = 'b'
	}
	if data[3]&0x2 != 0 {
		visible = 'v'
	}
	return fmt.Sprintf("%3d %3d %c %c\n", 1+data[0], 1+data[1], style, visible)
}

func parseVGAAttr(value string) ([]byte, error) {
	var fg, bg int
	var under, blink rune
	n, err := fmt.Sscanf(value, "%x %x %c %c", &fg, &bg, &under, &blink)
	if n != 4 || err != nil ||
		(under != 'u' && under != 'n') ||
		(blink != 'b' && blink != 'n') {
		return nil, fmt.Errorf("bad attributes %q", value)
	}
	var bits byte
	if under == 'u' {
		bits = 1
	}
	if blink == 'b' {
		bits |= 2
	}
	return []byte{byte(fg), byte(bg), bits}, nil
}

func vgaAttrLine(data []byte) string {
	if len(data) < 3 {
		data = []byte{0x3f, 0, 0}
	}
	under, blink := 'n', 'n'
	if data[2]&0x1 != 0 {
		under = 'u'
	}
	if data[2]&0x2 != 0 {
		blink = 'b'
	}
	return fmt.Sprintf("%03x %03x %c %c\n", data[0], data[1], under, blink)
}

func (d *vgaterm) parseRowoff(value string) ([]byte, error) {
	var newoff int
	n, err := fmt.Sscanf(value, "%d", &newoff)
	if n != 1 || err != nil || newoff < 0 || newoff >= vgaRows {
		return nil, fmt.Errorf("bad row offset %q", value)
	}
	d.rowoff = byte(newoff)
	return []byte{d.rowoff}, nil
}

func vgaRowoffLine(data []byte) string {
	if len(data) < 1 {
		return "0\n"
	}
	return fmt.Sprintf("%d\n", data[0])
}
