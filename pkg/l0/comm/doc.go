// Package comm provides L0 protocol support.
package comm

// L0 protocol is communicated between the L0 bridge firmware and the L1
// host over a peer-to-peer byte channel (e.g. USB serial).
//
// Every packet is exactly PacketSize bytes. The first byte is a Header which
// alone selects the packet layout, so the stream is self-framing: a receiver
// that sees an unknown header drops that single byte and tries again from the
// next one. Multi-byte fields are little endian.
//
// There is no bit verification (e.g. CRC/Checksum) to keep the bridge
// lightweight. If needed, parity bits can be enabled on the serial port.
//
// The host realigns a stream by sending PacketSize bytes of 0xff (ALIGN);
// the bridge answers with ALIGN_SUCCESS_VERSION carrying its version.
