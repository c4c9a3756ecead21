package discovery_test

import (
	"strings"
	"testing"

	"github.com/perilink/perilink-go/pkg/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDaemonTXTRoundtrip verifies that daemon info survives the TXT encode/decode cycle.
func TestDaemonTXTRoundtrip(t *testing.T) {
	info := &discovery.DaemonInfo{
		Version: "1.0",
		BoardID: "bench0",
		Slots:   3,
	}

	txt := discovery.EncodeDaemonTXT(info)
	assert.Equal(t, "1.0", txt[discovery.TXTKeyVersion])
	assert.Equal(t, "bench0", txt[discovery.TXTKeyBoard])
	assert.Equal(t, "3", txt[discovery.TXTKeySlots])

	decoded, err := discovery.DecodeDaemonTXT(txt)
	require.NoError(t, err)
	assert.Equal(t, info.Version, decoded.Version)
	assert.Equal(t, info.BoardID, decoded.BoardID)
	assert.Equal(t, info.Slots, decoded.Slots)
}

// TestDaemonTXTWithoutSlots verifies that a zero slot count is omitted from the record.
func TestDaemonTXTWithoutSlots(t *testing.T) {
	txt := discovery.EncodeDaemonTXT(&discovery.DaemonInfo{Version: "1.0", BoardID: "bench0"})
	assert.NotContains(t, txt, discovery.TXTKeySlots)

	decoded, err := discovery.DecodeDaemonTXT(txt)
	require.NoError(t, err)
	assert.Equal(t, 0, decoded.Slots)
}

// TestDecodeDaemonTXTRejects verifies validation of malformed TXT records.
func TestDecodeDaemonTXTRejects(t *testing.T) {
	tests := []struct {
		name string
		txt  discovery.TXTRecordMap
		want error
	}{
		{"MissingVersion", discovery.TXTRecordMap{"board": "bench0"}, discovery.ErrMissingRequired},
		{"EmptyVersion", discovery.TXTRecordMap{"v": "", "board": "bench0"}, discovery.ErrMissingRequired},
		{"MissingBoard", discovery.TXTRecordMap{"v": "1.0"}, discovery.ErrMissingRequired},
		{"NonNumericSlots", discovery.TXTRecordMap{"v": "1.0", "board": "b", "slots": "many"}, discovery.ErrInvalidTXTRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := discovery.DecodeDaemonTXT(tt.txt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// TestTXTStringsConversion verifies the map to zeroconf string slice round trip.
func TestTXTStringsConversion(t *testing.T) {
	txt := discovery.TXTRecordMap{"v": "1.0", "board": "bench0"}

	strs := discovery.TXTRecordsToStrings(txt)
	require.Len(t, strs, 2)

	back := discovery.StringsToTXTRecords(strs)
	assert.Equal(t, txt, back)
}

// TestStringsToTXTRecordsFlags verifies parsing of flag-only and multi-equals entries.
func TestStringsToTXTRecordsFlags(t *testing.T) {
	txt := discovery.StringsToTXTRecords([]string{"flag", "k=v", "", "x=a=b"})

	v, ok := txt["flag"]
	assert.True(t, ok)
	assert.Equal(t, "", v)
	assert.Equal(t, "v", txt["k"])
	// Only the first = splits key from value
	assert.Equal(t, "a=b", txt["x"])
}

// TestValidateInstanceName verifies instance name length and presence checks.
func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, discovery.ValidateInstanceName("bench0"))
	assert.ErrorIs(t, discovery.ValidateInstanceName(""), discovery.ErrMissingRequired)

	long := strings.Repeat("x", discovery.MaxInstanceNameLen+1)
	assert.ErrorIs(t, discovery.ValidateInstanceName(long), discovery.ErrInstanceNameTooLong)
}
