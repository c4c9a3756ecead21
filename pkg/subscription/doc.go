// Package subscription fans unsolicited resource updates out to UI
// sessions.
//
// A session subscribes to one resource of one slot (the pccat
// command). The first subscriber earns the resource a non-zero
// broadcast key; the key survives as long as at least one subscriber
// remains and is reported back as zero when the last one leaves, so
// the owning engine can mirror it into the resource's state.
//
// Broadcast delivers one formatted line to every subscriber through
// the delivery callback. A failed delivery drops that subscriber on
// the spot: a dead or overflowing session must not stall hardware
// updates for the others. Broadcast reports how many subscribers
// remain afterwards, which is the fanout's way of telling the engine
// the key can be cleared.
package subscription
