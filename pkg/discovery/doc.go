// Package discovery advertises running daemons over mDNS and finds
// them from client tools.
//
// A daemon registers one _perilink._tcp service whose TXT records
// carry its protocol version, board ID, and loaded slot count. The
// console browses for those services when started without an explicit
// address and connects to the daemon it picks.
package discovery
