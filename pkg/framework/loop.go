package framework

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is the tick of a Loop without Interval.
const DefaultInterval = 100 * time.Millisecond

// Loop calls Controllers by priority on every tick or trigger, and runs
// Runnables beside it for the lifetime of Run.
type Loop struct {
	// Interval is the tick. Components needing a faster one lower it in
	// AddToLoop.
	Interval time.Duration

	levels  [PriorityLevels][]Controller
	runners []Runnable

	lock    sync.Mutex
	pending []Message
	wakeCh  chan struct{}
}

// LoopAdder is implemented by components knowing how to add themselves.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopCtxKey struct{}

// LoopCtlFrom gets the LoopControl of the loop running a Runnable.
func LoopCtlFrom(ctx context.Context) LoopControl {
	return ctx.Value(loopCtxKey{}).(LoopControl)
}

// NewLoop creates a Loop.
func NewLoop() *Loop {
	return &Loop{Interval: DefaultInterval, wakeCh: make(chan struct{}, 1)}
}

// Add adds LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a priority level. Controllers
// also implementing Runnable are run as well.
func (l *Loop) AddController(priorityLevel int, ctls ...Controller) *Loop {
	l.levels[priorityLevel] = append(l.levels[priorityLevel], ctls...)
	for _, ctl := range ctls {
		if runner, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, runner)
		}
	}
	return l
}

// AddRunnable adds Runnables.
func (l *Loop) AddRunnable(runnables ...Runnable) *Loop {
	l.runners = append(l.runners, runnables...)
	return l
}

// Run implements Runnable. It returns after all Runnables stopped.
func (l *Loop) Run(ctx context.Context) error {
	runner := NewRunnerWith(context.WithValue(ctx, loopCtxKey{}, LoopControl(l)))
	runner.Go(l.runners...)

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := runner.Wait(); err != nil {
				glog.Warningf("stopped with errors: %v", err)
			}
			return ctx.Err()
		case <-ticker.C:
		case <-l.wakeCh:
		}
		l.iterate(ctx)
	}
}

// RunOrFail runs the loop in main until SIGINT or SIGTERM.
func (l *Loop) RunOrFail() {
	r := NewRunner().HandleSignals()
	if err := r.Go(l).Wait(); err != nil {
		glog.Exit(err)
	}
}

// PostMessage implements LoopControl.
func (l *Loop) PostMessage(msg Message) {
	l.lock.Lock()
	l.pending = append(l.pending, msg)
	l.lock.Unlock()
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	select {
	case l.wakeCh <- struct{}{}:
	default:
	}
}

func (l *Loop) iterate(ctx context.Context) {
	l.lock.Lock()
	it := &iteration{Loop: l, time: time.Now(), msgs: l.pending}
	l.pending = nil
	l.lock.Unlock()
	it.ctx = context.WithValue(ctx, loopCtxKey{}, LoopControl(l))
	for lv := range l.levels {
		it.level = lv
		for _, ctl := range l.levels[lv] {
			if err := ctl.Control(it); err != nil {
				glog.Errorf("controller at level %d: %v", lv, err)
			}
		}
	}
	if len(it.msgs) > 0 {
		glog.V(3).Infof("%d messages left unprocessed", len(it.msgs))
	}
}

// iteration implements ControlContext and MessageStore.
type iteration struct {
	*Loop
	ctx   context.Context
	time  time.Time
	level int
	msgs  []Message
}

func (it *iteration) Context() context.Context { return it.ctx }
func (it *iteration) Time() time.Time          { return it.time }
func (it *iteration) PriorityLevel() int       { return it.level }
func (it *iteration) Messages() MessageStore   { return it }

func (it *iteration) AddMessages(msgs ...Message) {
	it.msgs = append(it.msgs, msgs...)
}

type visit struct {
	*iteration
	msg   Message
	taken bool
	stop  bool
}

func (v *visit) CurrentMessage() Message { return v.msg }
func (v *visit) MessageTaken()           { v.taken = true }
func (v *visit) StopProcessing()         { v.stop = true }

// ProcessMessages implements MessageStore. Messages added while
// processing are visited by the next ProcessMessages.
func (it *iteration) ProcessMessages(proc MessageProcessor) {
	msgs := it.msgs
	it.msgs = nil
	remains := make([]Message, 0, len(msgs))
	for n, msg := range msgs {
		v := &visit{iteration: it, msg: msg}
		proc.ProcessMessage(v)
		if !v.taken {
			remains = append(remains, msg)
		}
		if v.stop {
			remains = append(remains, msgs[n+1:]...)
			break
		}
	}
	it.msgs = append(remains, it.msgs...)
}
