// Package msgs defines the L1 messages exchanged between a bridge and
// its hosts.
//
// Every message travels in a Typed envelope carrying its type ID and,
// for commands and replies, a sequence number chosen by the host. Device
// packets cross the envelope as their 9 byte encoding, so hosts decode
// them with the l0 comm package.
//
// Commands flow host to bridge and each gets exactly one reply with the
// same sequence. Events flow bridge to host unsolicited.
package msgs
