package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kylerisse/watchful/pkg/telemetry"
)

const (
	// DefaultRate is the default sustained delivery rate in messages per second.
	DefaultRate = rate.Limit(1)

	// DefaultBurst is the default number of deliveries allowed back to back.
	DefaultBurst = 5

	// DefaultDeliveryTimeout bounds a single outbound call, including the
	// rate limiter wait.
	DefaultDeliveryTimeout = 30 * time.Second
)

const batchSeparator = "\n"

// ErrStopped is logged for messages enqueued after Stop.
var ErrStopped = errors.New("notify: channel stopped")

// State is the sender's current activity.
type State int32

const (
	// StateIdle means the sender is waiting for work.
	StateIdle State = iota
	// StateDraining means the sender is taking messages off the queue.
	StateDraining
	// StateFlushing means the sender is delivering a grouped batch.
	StateFlushing
	// StateStopped means the sender has exited.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateFlushing:
		return "flushing"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Channel is an unbounded FIFO of messages with one background sender.
type Channel struct {
	sink            Sink
	logger          *logrus.Logger
	formatter       Formatter
	group           bool
	limiter         *rate.Limiter
	deliveryTimeout time.Duration
	maxBatch        int
	metrics         *telemetry.Metrics

	mu       sync.Mutex
	queue    []Message
	buffer   []string
	bufBytes int
	produced int
	busy     bool
	stopping bool
	state    State

	// idle is closed while the queue and the group buffer are empty and
	// nothing is in flight. Enqueue replaces a closed idle channel.
	idle       chan struct{}
	idleClosed bool

	wake      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// Option is a functional option for configuring a Channel.
type Option func(*Channel) error

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Channel) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithGrouping enables or disables batching of drained messages into one
// outbound call.
func WithGrouping(group bool) Option {
	return func(c *Channel) error {
		c.group = group
		return nil
	}
}

// WithFormatter sets the formatter used for messages and summaries.
func WithFormatter(f Formatter) Option {
	return func(c *Channel) error {
		if f == nil {
			return fmt.Errorf("formatter must not be nil")
		}
		c.formatter = f
		return nil
	}
}

// WithRateLimit limits outbound calls to r per second with the given burst.
// rate.Inf disables limiting.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Channel) error {
		if r <= 0 {
			return fmt.Errorf("rate must be positive, got %v", r)
		}
		if r != rate.Inf && burst < 1 {
			return fmt.Errorf("burst must be at least 1, got %d", burst)
		}
		c.limiter = rate.NewLimiter(r, burst)
		return nil
	}
}

// WithDeliveryTimeout bounds each outbound call.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(c *Channel) error {
		if d <= 0 {
			return fmt.Errorf("delivery timeout must be positive, got %v", d)
		}
		c.deliveryTimeout = d
		return nil
	}
}

// WithMaxBatchBytes caps the size of one grouped delivery at n bytes,
// separators included. A batch is flushed early when the next message
// would not fit. A single message over the cap is still delivered on its
// own. Zero removes the cap.
func WithMaxBatchBytes(n int) Option {
	return func(c *Channel) error {
		if n < 0 {
			return fmt.Errorf("max batch bytes must not be negative, got %d", n)
		}
		c.maxBatch = n
		return nil
	}
}

// WithTelemetry records enqueue, delivery and drop counts on m.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(c *Channel) error {
		c.metrics = m
		return nil
	}
}

// NewChannel creates a Channel delivering to sink. Call Start to run the
// sender. When sink implements MessageLimiter its limit becomes the default
// for WithMaxBatchBytes.
func NewChannel(sink Sink, opts ...Option) (*Channel, error) {
	if sink == nil {
		return nil, fmt.Errorf("notify: sink must not be nil")
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &Channel{
		sink:            sink,
		logger:          discard,
		formatter:       NewHostFormatter(),
		limiter:         rate.NewLimiter(DefaultRate, DefaultBurst),
		deliveryTimeout: DefaultDeliveryTimeout,
		idle:            make(chan struct{}),
		idleClosed:      true,
		wake:            make(chan struct{}, 1),
		done:            make(chan struct{}),
	}
	close(c.idle)

	if l, ok := sink.(MessageLimiter); ok {
		c.maxBatch = l.MaxMessageBytes()
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
	}
	return c, nil
}

// Start launches the background sender. Calling it more than once has no
// effect.
func (c *Channel) Start() {
	c.startOnce.Do(func() {
		go c.run()
	})
}

// Enqueue formats text and appends it to the queue. It never blocks on
// delivery. Messages enqueued after Stop are dropped.
func (c *Channel) Enqueue(text string, tag Tag) {
	if !c.push(Message{Text: c.formatter.Format(text, tag), Tag: tag}, true) {
		c.logger.Warnf("Dropping notification %q: %v", text, ErrStopped)
		c.metrics.NotificationsDropped(context.Background(), 1)
		return
	}
	c.metrics.NotificationEnqueued(context.Background())
}

// push appends msg and wakes the sender. It reports false once the channel
// is stopping.
func (c *Channel) push(msg Message, count bool) bool {
	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, msg)
	if count {
		c.produced++
	}
	if c.idleClosed {
		c.idle = make(chan struct{})
		c.idleClosed = false
	}
	c.mu.Unlock()

	c.signal()
	return true
}

func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Produced returns the number of messages enqueued since the last
// successful DrainAndWait.
func (c *Channel) Produced() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.produced
}

// Pending returns the number of messages waiting in the queue.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// State returns the sender's current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DrainAndWait blocks until every queued message has been handed to the
// sink, the group buffer is flushed, and nothing is in flight. With
// summary set and at least one message produced since the last drain, the
// formatter's summary line is enqueued first. The produced count is reset
// on return unless ctx ends first, in which case ctx.Err() is returned.
func (c *Channel) DrainAndWait(ctx context.Context, summary bool) error {
	if summary {
		if n := c.Produced(); n > 0 {
			if c.push(Message{Text: c.formatter.Summary(n), Tag: TagNone}, false) {
				c.metrics.NotificationEnqueued(ctx)
			}
		}
	}

	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	c.produced = 0
	c.mu.Unlock()
	return nil
}

// Stop asks the sender to exit once the queue is empty and the group
// buffer is flushed. It does not wait; use Done for that. Stop is
// idempotent and starts the sender if it was never started so pending
// messages are still delivered.
func (c *Channel) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopping = true
		c.mu.Unlock()
		c.Start()
		c.signal()
	})
}

// Done is closed when the sender has stopped.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) run() {
	defer close(c.done)

	for {
		c.mu.Lock()

		if len(c.queue) == 0 {
			if len(c.buffer) > 0 {
				text, n := c.takeBuffer()
				c.busy = true
				c.state = StateFlushing
				c.mu.Unlock()

				c.deliver(text, n)
				c.finish()
				continue
			}

			c.state = StateIdle
			if !c.busy && !c.idleClosed {
				close(c.idle)
				c.idleClosed = true
			}
			if c.stopping {
				c.state = StateStopped
				c.mu.Unlock()
				c.logger.Debugf("Notification sender stopped")
				return
			}
			c.mu.Unlock()

			<-c.wake
			continue
		}

		msg := c.queue[0]
		c.queue[0] = Message{}
		c.queue = c.queue[1:]
		c.state = StateDraining

		if c.group {
			if !c.fits(msg.Text) {
				text, n := c.takeBuffer()
				c.appendBuffer(msg.Text)
				c.busy = true
				c.state = StateFlushing
				c.mu.Unlock()

				c.deliver(text, n)
				c.finish()
				continue
			}
			c.appendBuffer(msg.Text)
			c.mu.Unlock()
			continue
		}

		c.busy = true
		c.mu.Unlock()

		c.deliver(msg.Text, 1)
		c.finish()
	}
}

// fits reports whether text can join the group buffer without pushing it
// over the batch cap. An empty buffer always fits. Callers hold c.mu.
func (c *Channel) fits(text string) bool {
	if c.maxBatch == 0 || len(c.buffer) == 0 {
		return true
	}
	return c.bufBytes+len(batchSeparator)+len(text) <= c.maxBatch
}

func (c *Channel) appendBuffer(text string) {
	if len(c.buffer) > 0 {
		c.bufBytes += len(batchSeparator)
	}
	c.buffer = append(c.buffer, text)
	c.bufBytes += len(text)
}

func (c *Channel) takeBuffer() (string, int) {
	text := strings.Join(c.buffer, batchSeparator)
	n := len(c.buffer)
	c.buffer = nil
	c.bufBytes = 0
	return text, n
}

func (c *Channel) finish() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// deliver makes one outbound call carrying n messages. Failures are logged
// and the messages dropped.
func (c *Channel) deliver(text string, n int) {
	ctx, cancel := context.WithTimeout(context.Background(), c.deliveryTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Errorf("Notification rate limit wait failed, dropping %d message(s): %v", n, err)
		c.metrics.NotificationsDropped(ctx, n)
		return
	}

	if err := c.safeDeliver(ctx, text); err != nil {
		c.logger.Errorf("Notification delivery failed, dropping %d message(s): %v", n, err)
		c.metrics.NotificationsDropped(ctx, n)
		return
	}

	c.logger.Debugf("Delivered %d notification(s)", n)
	c.metrics.NotificationsDelivered(ctx, n)
}

func (c *Channel) safeDeliver(ctx context.Context, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return c.sink.Deliver(ctx, text)
}
