package device

import "github.com/robotalks/aerlink/pkg/l0/comm"

// instructionQueue holds instructions waiting for their execution time,
// in arrival order.
type instructionQueue struct {
	items []comm.Packet
	head  int
	count int
}

func newInstructionQueue(slots int) *instructionQueue {
	return &instructionQueue{items: make([]comm.Packet, slots)}
}

func (q *instructionQueue) free() int {
	return len(q.items) - q.count
}

func (q *instructionQueue) push(pkt comm.Packet) bool {
	if q.count == len(q.items) {
		return false
	}
	q.items[(q.head+q.count)%len(q.items)] = pkt
	q.count++
	return true
}

func (q *instructionQueue) peek() (comm.Packet, bool) {
	if q.count == 0 {
		return nil, false
	}
	return q.items[q.head], true
}

func (q *instructionQueue) pop() {
	if q.count == 0 {
		return
	}
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.count--
}

func (q *instructionQueue) clear() {
	for q.count > 0 {
		q.pop()
	}
	q.head = 0
}

func (q *instructionQueue) each(fn func(comm.Packet)) {
	for n := 0; n < q.count; n++ {
		fn(q.items[(q.head+n)%len(q.items)])
	}
}

// isInstruction indicates pkt is deferred to its execution time while
// recording. Control and configuration packets run immediately.
func isInstruction(pkt comm.Packet) bool {
	switch p := pkt.(type) {
	case comm.PinPacket:
		return p.Header == comm.PinSet || p.Header == comm.PinRead
	case comm.DataI2CPacket:
		_, ok := p.Header.Index(comm.I2C0, comm.NumI2C)
		return ok
	case comm.Data32bitPacket:
		if _, ok := p.Header.Index(comm.SPI0, comm.NumSPI); ok {
			return true
		}
		_, ok := p.Header.Index(comm.AsyncToChip0, comm.NumAsync)
		return ok
	}
	return false
}
