// Package aer implements the four-phase request/acknowledge handshake
// used to move Address-Event-Representation words to and from a chip.
//
// The same engine serves both directions. When driving (to chip) it owns
// the request line and waits on the chip's acknowledge; when observing
// (from chip) it owns the acknowledge line and follows the chip's request.
// Times are microseconds from a free running clock and may wrap.
package aer
