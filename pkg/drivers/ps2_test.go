package drivers

import "testing"

// ps2Frame builds the 11 bit samples for one received byte with a
// valid start bit, odd parity, and stop bit.
func ps2Frame(value byte) []byte {
	frame := make([]byte, ps2FrameBits)
	parity := byte(1)
	for i := 0; i < 8; i++ {
		bit := (value >> i) & 1
		frame[1+i] = bit
		parity ^= bit
	}
	frame[9] = parity
	frame[10] = 1
	return frame
}

func TestPS2Line(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{
			name: "single frame",
			data: ps2Frame(0x5a),
			want: "5a \n",
		},
		{
			name: "parity zero frame",
			data: ps2Frame(0x1c),
			want: "1c \n",
		},
		{
			name: "mouse packet",
			data: append(append(ps2Frame(0x08), ps2Frame(0x02)...), ps2Frame(0xfd)...),
			want: "08 02 fd \n",
		},
		{
			name: "empty",
			data: nil,
			want: "",
		},
		{
			name: "partial frame",
			data: ps2Frame(0x5a)[:10],
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ps2Line(tt.data); got != tt.want {
				t.Errorf("ps2Line: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPS2LineDropsBadFrames(t *testing.T) {
	corrupt := func(idx int, v byte) []byte {
		frame := ps2Frame(0x5a)
		frame[idx] = v
		return frame
	}
	tests := []struct {
		name string
		data []byte
	}{
		{name: "start bit high", data: corrupt(0, 1)},
		{name: "parity flipped", data: corrupt(9, 0)},
		{name: "stop bit low", data: corrupt(10, 0)},
		{
			// One bad frame drops the whole packet, good frames included.
			name: "second frame bad",
			data: append(ps2Frame(0xf0), corrupt(9, 0)...),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ps2Line(tt.data); got != "" {
				t.Errorf("ps2Line: got %q, want empty", got)
			}
		})
	}
}
