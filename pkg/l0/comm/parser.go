package comm

// ByteSource provides received bytes one at a time.
// Any error means no byte is available right now.
type ByteSource interface {
	Pop() (byte, error)
}

// Parser assembles packets from received bytes.
// A partially received packet is kept across calls.
type Parser struct {
	buf       [PacketSize]byte
	recvLen   int
	discarded uint64
}

// ParseResult indicates the result after one parsing step.
type ParseResult struct {
	Packet Packet
	// Discarded is set when the byte was dropped as an unknown header.
	Discarded bool
}

// Receiving indicates a packet is partially received.
func (p *Parser) Receiving() bool {
	return p.recvLen > 0
}

// Discarded returns the number of bytes dropped as unknown headers.
func (p *Parser) Discarded() uint64 {
	return p.discarded
}

// Reset drops any partially received packet.
func (p *Parser) Reset() {
	p.recvLen = 0
}

// Timeout notifies the peer stopped in the middle of a packet.
// The partial packet is dropped and the number of dropped bytes returned.
func (p *Parser) Timeout() int {
	n := p.recvLen
	p.recvLen = 0
	return n
}

// Parse consumes one byte.
func (p *Parser) Parse(b byte) (pr ParseResult) {
	if p.recvLen == 0 && !Header(b).IsKnown() {
		p.discarded++
		pr.Discarded = true
		return
	}
	p.buf[p.recvLen] = b
	if p.recvLen++; p.recvLen >= PacketSize {
		p.recvLen = 0
		pr.Packet = decodeFrame(&p.buf)
	}
	return
}

// Decode consumes bytes from src until a packet completes.
// It returns ErrIncomplete when src runs dry, and *UnknownHeaderError
// after dropping a single unknown header byte.
func (p *Parser) Decode(src ByteSource) (Packet, error) {
	for {
		b, err := src.Pop()
		if err != nil {
			return nil, ErrIncomplete
		}
		pr := p.Parse(b)
		if pr.Discarded {
			return nil, &UnknownHeaderError{Header: Header(b)}
		}
		if pr.Packet != nil {
			return pr.Packet, nil
		}
	}
}
