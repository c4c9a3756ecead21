package discovery

import (
	"errors"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the service type daemons register.
	ServiceType = "_perilink._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default session listener port.
	DefaultPort = 8870
)

// TXT record key constants.
const (
	// TXTKeyVersion is the protocol version, e.g. "1.0".
	TXTKeyVersion = "v"

	// TXTKeyBoard is the board ID from the daemon config.
	TXTKeyBoard = "board"

	// TXTKeySlots is the loaded slot count (optional).
	TXTKeySlots = "slots"
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 10 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
)

// DaemonInfo contains the information a daemon advertises.
type DaemonInfo struct {
	// Instance is the mDNS instance name. Empty falls back to the
	// board ID.
	Instance string

	// Version is the protocol version string.
	Version string

	// BoardID names the board the daemon drives.
	BoardID string

	// Slots is the number of loaded slots. Zero is omitted from the
	// TXT records; the daemon re-advertises as peripherals load.
	Slots int

	// Port is the session listener port.
	Port int
}

// DaemonService represents a daemon found via mDNS.
type DaemonService struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Host is the hostname (e.g., "bench0.local").
	Host string

	// Port is the session listener port.
	Port uint16

	// Addresses contains resolved IP addresses.
	Addresses []string

	// Version is the protocol version (from TXT "v").
	Version string

	// BoardID is the board ID (from TXT "board").
	BoardID string

	// Slots is the loaded slot count (from TXT "slots").
	Slots int
}
