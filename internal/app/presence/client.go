package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vcall/internal/pkg/logx"
)

// writeQueueSize is the number of pending writes a Client buffers before Write blocks.
const writeQueueSize = 256

// ErrClientClosed is reported for writes issued after Close.
var ErrClientClosed = errors.New("presence: client closed")

// Subscription is a live watch on one path.
type Subscription interface {
	// Cancel stops delivery. It is safe to call more than once.
	Cancel()
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Cancel() {
	s.once.Do(s.cancel)
}

// writeOp is one queued store mutation.
type writeOp struct {
	path  Path
	value []byte

	// barrier ops carry no mutation; done fires once everything before them was applied.
	barrier bool
	done    chan error
}

// Client is the typed, fire-and-forget front of a Backend.
//
// Writes are validated synchronously, then applied in submission order by a single writer
// goroutine; each write is bounded by the write timeout and failures are logged, never
// retried. Subscriptions deliver on goroutines owned by the backend feed.
type Client struct {
	backend Backend
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	ops    chan writeOp
	wg     sync.WaitGroup

	logger zerolog.Logger
}

// NewClient starts a Client over backend.
func NewClient(backend Backend, writeTimeout time.Duration) *Client {
	c := &Client{
		backend: backend,
		timeout: writeTimeout,
		ops:     make(chan writeOp, writeQueueSize),
		logger:  logx.Component("presence"),
	}

	c.wg.Add(1)
	go c.runWriter()

	return c
}

func (c *Client) runWriter() {
	defer c.wg.Done()

	for op := range c.ops {
		if op.barrier {
			op.done <- nil
			continue
		}

		err := c.apply(op)
		if op.done != nil {
			op.done <- err
		}
	}
}

func (c *Client) apply(op writeOp) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var err error
	switch {
	case op.path.IsRecord():
		err = c.backend.Remove(ctx, op.path.Key())
	default:
		err = c.backend.Put(ctx, op.path.Key(), op.value)
	}

	opName := "write"
	if op.value == nil {
		opName = "delete"
	}

	if err != nil {
		c.logger.Error().Err(err).Str("op", opName).Stringer("path", op.path).Msg("Presence store operation failed.")
		return err
	}

	c.logger.Debug().Str("op", opName).Stringer("path", op.path).Msg("Presence store operation applied.")
	return nil
}

func (c *Client) enqueue(op writeOp) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.logger.Warn().Stringer("path", op.path).Msg("Dropping presence write issued after close.")
		if op.done != nil {
			op.done <- ErrClientClosed
		}
		return
	}

	c.ops <- op
}

// Write stores value at a field path. A nil value clears the field.
// Validation errors are returned; store failures are only logged.
func (c *Client) Write(path Path, value any) error {
	if err := path.Validate(); err != nil {
		return err
	}
	if path.IsRecord() {
		return fmt.Errorf("%w: write needs a field path, got %s", ErrInvalidPath, path)
	}

	raw, err := encodeValue(path.Field, value)
	if err != nil {
		return err
	}

	c.enqueue(writeOp{path: path, value: raw})
	return nil
}

// Delete clears a field, or removes the whole record when path is a record path.
func (c *Client) Delete(path Path) error {
	if err := path.Validate(); err != nil {
		return err
	}

	c.enqueue(writeOp{path: path})
	return nil
}

// SetIncoming publishes caller as the pending caller of user.
func (c *Client) SetIncoming(user, caller string) {
	c.logInvalid(c.Write(FieldPath(user, FieldIncoming), caller))
}

// ClearIncoming clears the pending caller of user.
func (c *Client) ClearIncoming(user string) {
	c.logInvalid(c.Delete(FieldPath(user, FieldIncoming)))
}

// SetAvailable writes the isAvailable flag of user.
func (c *Client) SetAvailable(user string, available bool) {
	c.logInvalid(c.Write(FieldPath(user, FieldIsAvailable), available))
}

// SetConnID publishes the connection id of user.
func (c *Client) SetConnID(user, connID string) {
	c.logInvalid(c.Write(FieldPath(user, FieldConnID), connID))
}

// ClearAnswer clears the isAvailable flag and connection id user published when accepting
// a call. isAvailable goes first so no new caller starts reading the connection id.
func (c *Client) ClearAnswer(user string) {
	c.logInvalid(c.Delete(FieldPath(user, FieldIsAvailable)))
	c.logInvalid(c.Delete(FieldPath(user, FieldConnID)))
}

// RemoveUser deletes user's whole record.
func (c *Client) RemoveUser(user string) {
	c.logInvalid(c.Delete(UserPath(user)))
}

func (c *Client) logInvalid(err error) {
	if err != nil {
		c.logger.Error().Err(err).Msg("Rejected invalid presence write.")
	}
}

// Sync waits until every write submitted before it has been applied.
func (c *Client) Sync(ctx context.Context) error {
	done := make(chan error, 1)

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrClientClosed
	}
	select {
	case c.ops <- writeOp{barrier: true, done: done}:
	case <-ctx.Done():
		c.mu.RUnlock()
		return ctx.Err()
	}
	c.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe watches path. onChange receives the current value first and then every
// change; onError receives load failures. Both run on the subscription's goroutine.
func (c *Client) Subscribe(path Path, onChange func(Value), onError func(error)) Subscription {
	if onError == nil {
		onError = func(error) {}
	}

	if err := path.Validate(); err != nil || path.IsRecord() {
		if err == nil {
			err = fmt.Errorf("%w: subscribe needs a field path, got %s", ErrInvalidPath, path)
		}
		c.logger.Error().Err(err).Msg("Rejected invalid presence subscription.")
		onError(err)
		return &subscription{cancel: func() {}}
	}

	cancel, err := c.backend.Watch(path.Key(), func(raw []byte, err error) {
		if err != nil {
			c.logger.Error().Err(err).Stringer("path", path).Msg("Presence subscription error.")
			onError(err)
			return
		}
		onChange(Value{raw: raw})
	})
	if err != nil {
		c.logger.Error().Err(err).Stringer("path", path).Msg("Presence subscribe failed.")
		onError(err)
		return &subscription{cancel: func() {}}
	}

	return &subscription{cancel: cancel}
}

// WatchIncoming reports the pending caller of user; present is false when cleared.
func (c *Client) WatchIncoming(user string, fn func(caller string, present bool)) Subscription {
	return c.watchString(FieldPath(user, FieldIncoming), fn)
}

// WatchConnID reports the published connection id of user.
func (c *Client) WatchConnID(user string, fn func(connID string, present bool)) Subscription {
	return c.watchString(FieldPath(user, FieldConnID), fn)
}

// WatchAvailable reports the isAvailable flag of user; an absent flag reads as false.
func (c *Client) WatchAvailable(user string, fn func(available bool)) Subscription {
	path := FieldPath(user, FieldIsAvailable)

	return c.Subscribe(path, func(v Value) {
		b, _, err := v.AsBool()
		if err != nil {
			c.logger.Warn().Err(err).Stringer("path", path).Msg("Ignoring mistyped presence value.")
			return
		}
		fn(b)
	}, nil)
}

func (c *Client) watchString(path Path, fn func(string, bool)) Subscription {
	return c.Subscribe(path, func(v Value) {
		s, ok, err := v.AsString()
		if err != nil {
			c.logger.Warn().Err(err).Stringer("path", path).Msg("Ignoring mistyped presence value.")
			return
		}
		fn(s, ok)
	}, nil)
}

// Fetch reads user's whole record.
func (c *Client) Fetch(ctx context.Context, user string) (Record, error) {
	var rec Record

	if err := UserPath(user).Validate(); err != nil {
		return rec, err
	}

	for _, field := range []Field{FieldIncoming, FieldIsAvailable, FieldConnID} {
		raw, err := c.backend.Get(ctx, FieldPath(user, field).Key())
		if err != nil {
			return Record{}, fmt.Errorf("fetch %s: %w", FieldPath(user, field), err)
		}

		v := Value{raw: normalizeRaw(raw)}
		switch field {
		case FieldIsAvailable:
			b, ok, err := v.AsBool()
			if err != nil {
				return Record{}, err
			}
			if ok {
				rec.IsAvailable = &b
			}
		default:
			s, ok, err := v.AsString()
			if err != nil {
				return Record{}, err
			}
			if !ok {
				continue
			}
			if field == FieldIncoming {
				rec.Incoming = &s
			} else {
				rec.ConnID = &s
			}
		}
	}

	return rec, nil
}

// Close stops accepting writes, applies the ones already queued and closes the backend.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.ops)
	c.mu.Unlock()

	c.wg.Wait()
	return c.backend.Close()
}
