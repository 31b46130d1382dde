package comm

import (
	"context"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/aerlink/pkg/framework"
	"github.com/robotalks/aerlink/pkg/l1"
)

// Sessions is a Registrar for hosts connecting directly, over TCP or
// websocket. Every session receives all events.
type Sessions struct {
	lock  sync.RWMutex
	pipes map[*Pipe]struct{}
}

// Serve runs a session until the connection fails or ctx is done. ctx
// must come from a running Loop.
func (s *Sessions) Serve(ctx context.Context, rw PacketReadWriter) error {
	pipe := NewPipe(rw)
	pipe.Handler = dispatchTo(pipe)
	glog.Infof("session opened, %d active", s.track(pipe, true))
	defer func() {
		glog.Infof("session closed, %d active", s.track(pipe, false))
	}()
	return pipe.Run(ctx)
}

func (s *Sessions) track(pipe *Pipe, add bool) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	if add {
		if s.pipes == nil {
			s.pipes = make(map[*Pipe]struct{})
		}
		s.pipes[pipe] = struct{}{}
	} else {
		delete(s.pipes, pipe)
	}
	return len(s.pipes)
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.pipes)
}

// SendEvent implements l1.Registrar. A session failing to send is
// closed, the others still get the event.
func (s *Sessions) SendEvent(ctx context.Context, msg fx.Message) error {
	s.lock.RLock()
	pipes := make([]*Pipe, 0, len(s.pipes))
	for pipe := range s.pipes {
		pipes = append(pipes, pipe)
	}
	s.lock.RUnlock()
	for _, pipe := range pipes {
		if err := pipe.SendEvent(msg); err != nil {
			glog.Warningf("session send error: %v", err)
			pipe.Close()
		}
	}
	return nil
}

// RegistrarMux sends events through several Registrars.
type RegistrarMux struct {
	Registrars []l1.Registrar
}

// Add adds Registrars.
func (r *RegistrarMux) Add(regs ...l1.Registrar) {
	r.Registrars = append(r.Registrars, regs...)
}

// SendEvent implements l1.Registrar.
func (r *RegistrarMux) SendEvent(ctx context.Context, msg fx.Message) error {
	errs := &fx.AggregatedError{}
	for _, reg := range r.Registrars {
		errs.Add(reg.SendEvent(ctx, msg))
	}
	return errs.Aggregate()
}

// AddToLoop implements LoopAdder.
func (r *RegistrarMux) AddToLoop(l *fx.Loop) {
	for _, reg := range r.Registrars {
		switch v := reg.(type) {
		case fx.LoopAdder:
			l.Add(v)
		case fx.Runnable:
			l.AddRunnable(v)
		}
	}
}
