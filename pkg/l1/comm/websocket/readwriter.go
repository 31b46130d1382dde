package websocket

import (
	"time"

	"golang.org/x/net/websocket"
)

// ReadWriter implements comm.PacketReadWriter with one binary frame per
// packet.
type ReadWriter struct {
	Conn *websocket.Conn
	// WriteTimeout bounds a single send, zero means no limit.
	WriteTimeout time.Duration
}

// New wraps a websocket connection, switching it to binary frames.
func New(conn *websocket.Conn) *ReadWriter {
	conn.PayloadType = websocket.BinaryFrame
	return &ReadWriter{Conn: conn, WriteTimeout: 5 * time.Second}
}

// ReadPacket implements comm.PacketReader.
func (rw *ReadWriter) ReadPacket() ([]byte, error) {
	var pkt []byte
	if err := websocket.Message.Receive(rw.Conn, &pkt); err != nil {
		return nil, err
	}
	return pkt, nil
}

// WritePacket implements comm.PacketWriter.
func (rw *ReadWriter) WritePacket(pkt []byte) error {
	if rw.WriteTimeout > 0 {
		rw.Conn.SetWriteDeadline(time.Now().Add(rw.WriteTimeout))
	}
	return websocket.Message.Send(rw.Conn, pkt)
}

// Close implements io.Closer.
func (rw *ReadWriter) Close() error {
	return rw.Conn.Close()
}
