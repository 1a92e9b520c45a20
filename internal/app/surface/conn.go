package surface

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vcall/internal/app/media"
	"vcall/internal/pkg/errs"
	"vcall/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the page.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the page.
	maxMessageSize = 4096

	sendBuffer = 256

	// WsCloseCodeSessionKicked is a custom WebSocket Close Code (4000-4999 range)
	// used to signal the page that the session was replaced by a new connection.
	WsCloseCodeSessionKicked = 4001
)

// ErrSendQueueFull is returned when the page does not drain its messages fast enough.
var ErrSendQueueFull = errors.New("surface send queue full")

// Handler consumes what the page sends. Both methods run on the read pump goroutine.
type Handler interface {
	HandleMessage(msg Message)
	HandleDisconnect()
}

// Conn is the live WebSocket connection of one rendering surface.
// It implements media.Surface and the view side of the signaling machine.
type Conn struct {
	conn    *websocket.Conn
	handler Handler

	// a buffered channel used to queue messages waiting to be sent to the page.
	send chan []byte

	// mu guards closed, the close frame and every send on the send channel.
	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string

	logger zerolog.Logger
}

var _ media.Surface = (*Conn)(nil)

// NewConn wraps an upgraded WebSocket connection of username's page.
func NewConn(wsConn *websocket.Conn, username string) *Conn {
	return &Conn{
		conn:   wsConn,
		send:   make(chan []byte, sendBuffer),
		logger: logx.Component("surface").With().Str("username", username).Logger(),
	}
}

// SetHandler installs the consumer of inbound messages. It must be called before ReadPump.
func (c *Conn) SetHandler(h Handler) {
	c.handler = h
}

// ReadPump handles reading messages from the WebSocket connection.
// It handles heartbeats (Pong), message parsing, and reports the disconnect when it exits.
func (c *Conn) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, WsCloseCodeSessionKicked) {
				c.logger.Info().Err(err).Msg("Error reading message (page close/going away)")
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.logger.Warn().Err(err).Bytes("message_bytes", messageBytes).Msg("Page sent invalid JSON")
			continue
		}

		if c.handler != nil {
			c.handler.HandleMessage(msg)
		}
	}
}

func (c *Conn) cleanupOnDisconnect() {
	c.logger.Info().Msg("Surface connection cleanup starting.")

	if c.handler != nil {
		c.handler.HandleDisconnect()
	}

	c.Close()

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Surface connection close error")
	}
}

// WritePump handles writing messages from the send channel to the WebSocket connection.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Surface connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.writeQueuedMessage(message, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}
		}
	}
}

// writeQueuedMessage returns false when the WritePump loop should terminate.
func (c *Conn) writeQueuedMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, c.closeFrame()); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

func (c *Conn) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// Send queues an outbound message. Messages sent after Close are dropped.
func (c *Conn) Send(msgType MessageType, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("msg_type", string(msgType)).Msg("Error building message for page")
		return err
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error().Err(err).Msg("Error marshaling message for page")
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	select {
	case c.send <- messageBytes:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Surface send channel full, dropping message")
		return ErrSendQueueFull
	}
}

func (c *Conn) sendOrLog(msgType MessageType, payload any) {
	if err := c.Send(msgType, payload); err != nil {
		c.logger.Error().Err(err).Str("msg_type", string(msgType)).Msg("Failed to queue message")
	}
}

// Execute implements media.Surface.
func (c *Conn) Execute(script string) {
	c.sendOrLog(TypeExec, ExecPayload{Script: script})
}

func (c *Conn) ShowIncomingPrompt(caller string) {
	c.sendOrLog(TypeShowPrompt, PromptPayload{Caller: caller})
}

func (c *Conn) HidePrompt() {
	c.sendOrLog(TypeHidePrompt, nil)
}

func (c *Conn) ShowCallControls() {
	c.sendOrLog(TypeShowControls, nil)
}

func (c *Conn) ShowCallInput() {
	c.sendOrLog(TypeShowInput, nil)
}

// ShowMediaState updates the toggle icons of the call controls.
func (c *Conn) ShowMediaState(audio, video bool) {
	c.sendOrLog(TypeMediaState, MediaStatePayload{Audio: audio, Video: video})
}

// ShowError sends a TypeError message. Errors other than *errs.CustomError are reported
// as ErrUnknown.
func (c *Conn) ShowError(err error) {
	customErr := errs.From(err)
	if customErr == nil {
		return
	}

	if customErr.Code == errs.ErrUnknown {
		c.logger.Error().Err(err).Msg("Reporting internal error to page")
	}

	c.sendOrLog(TypeError, ErrorPayload{Code: customErr.Code, Message: customErr.Message})
}

// closeFrame is the payload of the close message written once the queue is drained.
func (c *Conn) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closeCode == 0 {
		return []byte{}
	}
	return websocket.FormatCloseMessage(c.closeCode, c.closeReason)
}

// Close flushes the queued messages and closes the connection gracefully.
// It is safe to call more than once.
func (c *Conn) Close() {
	c.CloseWith(0, "")
}

// CloseWith flushes the queued messages and then closes the connection with code and reason.
// A zero code sends an empty close frame. Only the first close takes effect.
func (c *Conn) CloseWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.send)
}

// Kick closes the connection with close code 4001, telling the page that its
// session was replaced. Messages queued before the kick are still delivered.
func (c *Conn) Kick(reason string) {
	c.logger.Warn().
		Int("close_code", WsCloseCodeSessionKicked).
		Str("reason", reason).
		Msg("Kicking surface connection.")

	c.CloseWith(WsCloseCodeSessionKicked, reason)
}
