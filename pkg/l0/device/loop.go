package device

import (
	"context"
	"io"
	"sync"
	"time"

	fx "github.com/robotalks/aerlink/pkg/framework"
)

// Control implements framework.Controller.
func (d *Device) Control(fx.ControlContext) error {
	d.Poll()
	return nil
}

// Run implements framework.Runnable. It triggers the loop whenever a
// hook has work.
func (d *Device) Run(ctx context.Context) error {
	loop := fx.LoopCtlFrom(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wakeCh:
			loop.TriggerNext()
		}
	}
}

// Name implements framework.Named.
func (d *Device) Name() string {
	return "device"
}

// AddToLoop implements framework.LoopAdder.
func (d *Device) AddToLoop(l *fx.Loop) {
	if l.Interval <= 0 || l.Interval > d.conf.TickInterval {
		l.Interval = d.conf.TickInterval
	}
	l.AddController(fx.PrLvDevice, d)
}

// Port is the host side byte stream of a device, as a USB-serial
// connection would see it. Only one Port should be in use at a time.
type Port struct {
	dev      *Device
	closeCh  chan struct{}
	closeOne sync.Once
}

// Port creates a Port.
func (d *Device) Port() *Port {
	return &Port{dev: d, closeCh: make(chan struct{})}
}

// Write implements io.Writer, delivering bytes to the receive hook.
func (p *Port) Write(b []byte) (int, error) {
	select {
	case <-p.closeCh:
		return 0, io.ErrClosedPipe
	default:
	}
	for _, c := range b {
		p.dev.ByteReceived(c)
	}
	return len(b), nil
}

// Read implements io.Reader, draining the transmit hook. It blocks until
// output is available or the Port is closed.
func (p *Port) Read(b []byte) (int, error) {
	for {
		if n := p.dev.TransmitReady(b); n > 0 {
			return n, nil
		}
		select {
		case <-p.closeCh:
			return 0, io.EOF
		case <-p.dev.TransmitChan():
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Close implements io.Closer.
func (p *Port) Close() error {
	p.closeOne.Do(func() { close(p.closeCh) })
	return nil
}

// Serve pumps bytes between a host connection and the device until ctx is
// done or the connection fails. The caller closes rw.
func (d *Device) Serve(ctx context.Context, rw io.ReadWriter) error {
	port := d.Port()
	defer port.Close()
	errCh := make(chan error, 2)
	go func() {
		_, err := io.Copy(port, rw)
		errCh <- err
	}()
	go func() {
		_, err := io.Copy(rw, port)
		errCh <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err == nil {
			err = io.EOF
		}
		return err
	}
}
