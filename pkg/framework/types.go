// Package framework runs a bridge as a single control loop: the device
// poll, the command handlers and the status reporting are Controllers
// called in priority order on every iteration, and the I/O around them
// are Runnables feeding Messages into the loop.
package framework

import (
	"context"
	"time"
)

// Named is implemented by components reporting a name in logs.
type Named interface {
	Name() string
}

// Runnable is a background worker stopped by canceling its context.
type Runnable interface {
	Run(context.Context) error
}

// Message is anything posted to the loop, usually a decoded command.
type Message interface {
	// NewMessage creates an empty message of the same type.
	NewMessage() Message
}

// MessageHandler receives messages outside of the loop.
type MessageHandler interface {
	HandleMessage(context.Context, Message)
}

// HandleMessageFunc is the func form of MessageHandler.
type HandleMessageFunc func(context.Context, Message)

// HandleMessage implements MessageHandler.
func (f HandleMessageFunc) HandleMessage(ctx context.Context, msg Message) {
	f(ctx, msg)
}

// Controller is called once per iteration at its priority level.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc is the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(ctx ControlContext) error {
	return f(ctx)
}

// ControlContext is the state of the current iteration.
type ControlContext interface {
	// Time is when the iteration started.
	Time() time.Time
	Context() context.Context
	PriorityLevel() int
	// Messages holds the messages posted before the iteration started
	// and not yet taken by a higher priority Controller.
	Messages() MessageStore

	LoopControl
}

// PriorityLevels is the number of priority levels.
const PriorityLevels = 8

// Priority levels, lower runs first.
const (
	PrLvTop = 0
	// PrLvDevice polls in-process devices, so their output is ready
	// before the commands are handled.
	PrLvDevice = 2
	// PrLvControl handles commands.
	PrLvControl = 4
	// PrLvPostProc reports state changed by the iteration.
	PrLvPostProc = 6
	// PrLvIdle cleans up, e.g. expires pending commands and answers
	// messages nobody took.
	PrLvIdle = PriorityLevels - 1
)

// LoopControl is available to Controllers and to Runnables through
// LoopCtlFrom.
type LoopControl interface {
	// PostMessage queues a message for the next iteration.
	PostMessage(Message)
	// TriggerNext starts the next iteration without waiting for the tick.
	TriggerNext()
}

// MessageStore gives Controllers access to the pending messages.
type MessageStore interface {
	ProcessMessages(MessageProcessor)
	MessageAppender
}

// MessageAppender adds messages to a store.
type MessageAppender interface {
	// AddMessages appends messages visible to lower priority levels.
	AddMessages(msgs ...Message)
}

// MessageProcessor visits messages in a store.
type MessageProcessor interface {
	ProcessMessage(MessageProcessingContext)
}

// ProcessMessageFunc is the func form of MessageProcessor.
type ProcessMessageFunc func(MessageProcessingContext)

// ProcessMessage implements MessageProcessor.
func (f ProcessMessageFunc) ProcessMessage(mc MessageProcessingContext) {
	f(mc)
}

// MessageProcessingContext is passed for each visited message.
type MessageProcessingContext interface {
	CurrentMessage() Message
	// MessageTaken removes the message from the store.
	MessageTaken()
	// StopProcessing skips the remaining messages.
	StopProcessing()

	MessageAppender
}
