/*
Package session glues a rendering surface to the signaling machine and media bridge of
one logged-in user, and tracks the live sessions of the server.
*/
package session

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"vcall/internal/app/media"
	"vcall/internal/app/signaling"
	"vcall/internal/app/surface"
	"vcall/internal/pkg/errs"
	"vcall/internal/pkg/logx"
)

// Surface is everything a session needs from the page it drives.
type Surface interface {
	media.Surface
	signaling.UI

	ShowMediaState(audio, video bool)
	Kick(reason string)
	Close()
}

// Status is the externally visible state of a session.
type Status struct {
	signaling.Snapshot

	SessionID string `json:"sessionId"`
	Loaded    bool   `json:"loaded"`
	Audio     bool   `json:"audio"`
	Video     bool   `json:"video"`
}

// Controller runs one user's call screen. It implements surface.Handler.
type Controller struct {
	username  string
	sessionID string

	surface Surface
	bridge  *media.Bridge
	machine *signaling.Machine

	// mu guards the page-local state below.
	mu     sync.Mutex
	loaded bool
	audio  bool
	video  bool

	endOnce sync.Once
	onEnd   func(*Controller)

	logger zerolog.Logger
}

var _ surface.Handler = (*Controller)(nil)

// NewController builds the session of username on top of surf and starts its state machine.
// onEnd, when set, runs once after the session ended.
func NewController(username, sessionID string, surf Surface, p signaling.Presence, opts signaling.Options, onEnd func(*Controller)) *Controller {
	bridge := media.NewBridge(surf)
	machine := signaling.NewMachine(username, p, bridge, surf, opts)
	bridge.OnPeerConnected(machine.PeerConnected)

	c := &Controller{
		username:  username,
		sessionID: sessionID,
		surface:   surf,
		bridge:    bridge,
		machine:   machine,
		audio:     true,
		video:     true,
		onEnd:     onEnd,
		logger: logx.Component("session").With().
			Str("username", username).
			Str("session_id", sessionID).
			Logger(),
	}

	go machine.Run()

	return c
}

// Username returns the user owning the session.
func (c *Controller) Username() string {
	return c.username
}

// SessionID returns the id of the token the session was opened with.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Status returns a snapshot of the session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Snapshot:  c.machine.Snapshot(),
		SessionID: c.sessionID,
		Loaded:    c.loaded,
		Audio:     c.audio,
		Video:     c.video,
	}
}

// HandleMessage dispatches one message from the page.
func (c *Controller) HandleMessage(msg surface.Message) {
	switch msg.Type {
	case surface.TypePageLoaded:
		c.handlePageLoaded()
		return

	case surface.TypePeerConnected:
		// the engine may report its transport before or after init completes
		c.bridge.PeerConnected()
		return
	}

	if !c.isLoaded() {
		c.logger.Warn().Str("msg_type", string(msg.Type)).Msg("Action received before the page finished loading.")
		c.surface.ShowError(errs.NewError(errs.ErrSurfaceNotReady))
		return
	}

	var err error
	switch msg.Type {
	case surface.TypePlaceCall:
		var p surface.PlaceCallPayload
		if jsonErr := json.Unmarshal(msg.Payload, &p); jsonErr != nil {
			c.logger.Warn().Err(jsonErr).Msg("Page sent invalid PLACE_CALL payload")
			err = errs.NewError(errs.ErrInvalidJSONFormat)
			break
		}
		err = c.machine.PlaceCall(p.Target)

	case surface.TypeAccept:
		err = c.machine.Accept()

	case surface.TypeReject:
		err = c.machine.Reject()

	case surface.TypeCancelCall:
		err = c.machine.Cancel()

	case surface.TypeToggleAudio:
		c.toggleAudio()

	case surface.TypeToggleVideo:
		c.toggleVideo()

	default:
		c.logger.Warn().Str("msg_type", string(msg.Type)).Msg("Page sent unsupported message type")
		return
	}

	if err != nil {
		c.logger.Info().Err(err).Str("msg_type", string(msg.Type)).Msg("Action rejected.")
		c.surface.ShowError(err)
	}
}

func (c *Controller) isLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Controller) handlePageLoaded() {
	c.mu.Lock()
	if c.loaded {
		c.mu.Unlock()
		c.logger.Debug().Msg("Duplicate page-loaded report ignored.")
		return
	}
	c.loaded = true
	audio, video := c.audio, c.video
	c.mu.Unlock()

	if err := c.machine.Start(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to start signaling.")
		c.surface.ShowError(err)
		return
	}

	c.surface.ShowCallInput()
	c.surface.ShowMediaState(audio, video)
}

func (c *Controller) toggleAudio() {
	c.mu.Lock()
	c.audio = !c.audio
	audio, video := c.audio, c.video
	c.mu.Unlock()

	c.bridge.SetAudioEnabled(audio)
	c.surface.ShowMediaState(audio, video)
}

func (c *Controller) toggleVideo() {
	c.mu.Lock()
	c.video = !c.video
	audio, video := c.audio, c.video
	c.mu.Unlock()

	c.bridge.SetVideoEnabled(video)
	c.surface.ShowMediaState(audio, video)
}

// HandleDisconnect ends the session when the page goes away.
func (c *Controller) HandleDisconnect() {
	c.End()
}

// End terminates the signaling session. It blocks until the record cleanup was queued
// and is safe to call more than once.
func (c *Controller) End() {
	c.endOnce.Do(func() {
		c.machine.End()
		c.logger.Info().Msg("Session ended.")

		if c.onEnd != nil {
			c.onEnd(c)
		}
	})
}

// Kick ends the session and closes its page with the session-replaced close code.
func (c *Controller) Kick(reason string) {
	c.End()
	c.surface.Kick(reason)
}

// Close ends the session and closes its page gracefully.
func (c *Controller) Close() {
	c.End()
	c.surface.Close()
}
