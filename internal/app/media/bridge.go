/*
Package media drives the WebRTC engine embedded in the rendering surface.

The engine itself runs inside the surface; this package only renders the fire-and-forget
script commands it understands and relays its single inbound event, peer-connected.
*/
package media

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"vcall/internal/pkg/logx"
)

// Engine entry points exposed by the surface page.
const (
	fnInit        = "init"
	fnStartCall   = "startCall"
	fnToggleAudio = "toggleAudio"
	fnToggleVideo = "toggleVideo"
	fnUnload      = "unload"
)

// ErrAlreadyInitialized is returned when Initialize is called a second time.
var ErrAlreadyInitialized = errors.New("media: engine already initialized")

// Surface executes script inside the rendering surface, asynchronously and without a result.
type Surface interface {
	Execute(script string)
}

// Bridge is the per-session command channel into the media engine.
type Bridge struct {
	surface Surface

	mu          sync.Mutex
	localID     string
	initialized bool
	onConnected func()

	connectedOnce sync.Once

	logger zerolog.Logger
}

// NewBridge returns a Bridge sending its commands to surface.
func NewBridge(surface Surface) *Bridge {
	return &Bridge{
		surface: surface,
		logger:  logx.Component("media"),
	}
}

// OnPeerConnected registers the handler of the engine's peer-connected event.
func (b *Bridge) OnPeerConnected(fn func()) {
	b.mu.Lock()
	b.onConnected = fn
	b.mu.Unlock()
}

// Initialize boots the engine with the session's local identifier. It runs once per session.
func (b *Bridge) Initialize(localID string) error {
	b.mu.Lock()
	if b.initialized {
		b.mu.Unlock()
		return ErrAlreadyInitialized
	}
	b.initialized = true
	b.localID = localID
	b.mu.Unlock()

	b.exec(fnInit, localID)
	return nil
}

// LocalID returns the identifier passed to Initialize.
func (b *Bridge) LocalID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.localID
}

// Start makes the engine connect to the peer published under connID.
func (b *Bridge) Start(connID string) {
	b.exec(fnStartCall, connID)
}

// SetAudioEnabled toggles the local audio track.
func (b *Bridge) SetAudioEnabled(enabled bool) {
	b.exec(fnToggleAudio, strconv.FormatBool(enabled))
}

// SetVideoEnabled toggles the local video track.
func (b *Bridge) SetVideoEnabled(enabled bool) {
	b.exec(fnToggleVideo, strconv.FormatBool(enabled))
}

// Unload tears the engine down.
func (b *Bridge) Unload() {
	b.exec(fnUnload)
}

// PeerConnected relays the engine's transport-established event. Only the first call is forwarded.
func (b *Bridge) PeerConnected() {
	b.connectedOnce.Do(func() {
		b.mu.Lock()
		fn := b.onConnected
		b.mu.Unlock()

		b.logger.Info().Msg("Media engine reported peer connection.")
		if fn != nil {
			fn()
		}
	})
}

func (b *Bridge) exec(fn string, args ...string) {
	script := Script(fn, args...)
	b.logger.Debug().Str("script", script).Msg("Executing engine command.")
	b.surface.Execute(script)
}

// Script renders a call of fn with string arguments, e.g. startCall("abc123").
// Arguments are JSON-quoted so free text cannot break out of the literal.
func Script(fn string, args ...string) string {
	var sb strings.Builder
	sb.WriteString(fn)
	sb.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		quoted, _ := json.Marshal(arg)
		sb.Write(quoted)
	}
	sb.WriteByte(')')
	return sb.String()
}
