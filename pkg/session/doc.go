// Package session serves the daemon's TCP client surface: one
// line-oriented command session per connection.
//
// A session reads ASCII command lines (pcget, pcset, pccat, pclist,
// pcload), hands them to a Commander, and writes reply and broadcast
// lines back through a bounded outbound queue. A client that stops
// draining its connection loses lines past the queue depth rather than
// stalling the board. Closing the connection releases everything the
// session holds on the board.
package session
