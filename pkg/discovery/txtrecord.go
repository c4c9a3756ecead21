package discovery

import (
	"fmt"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeDaemonTXT creates TXT records for a daemon advertisement.
func EncodeDaemonTXT(info *DaemonInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyVersion] = info.Version
	txt[TXTKeyBoard] = info.BoardID

	// Optional fields
	if info.Slots > 0 {
		txt[TXTKeySlots] = strconv.Itoa(info.Slots)
	}

	return txt
}

// DecodeDaemonTXT parses TXT records from a daemon advertisement.
func DecodeDaemonTXT(txt TXTRecordMap) (*DaemonInfo, error) {
	info := &DaemonInfo{}

	// Parse version (required)
	var ok bool
	info.Version, ok = txt[TXTKeyVersion]
	if !ok || info.Version == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}

	// Parse board ID (required)
	info.BoardID, ok = txt[TXTKeyBoard]
	if !ok || info.BoardID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyBoard)
	}

	// Optional fields
	if sStr, ok := txt[TXTKeySlots]; ok {
		s, err := strconv.ParseUint(sStr, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: slot count %q", ErrInvalidTXTRecord, sStr)
		}
		info.Slots = int(s)
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value" strings.
// This format is commonly used by mDNS libraries.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
