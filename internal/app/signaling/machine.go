package signaling

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vcall/internal/app/presence"
	"vcall/internal/pkg/errs"
	"vcall/internal/pkg/logx"
	"vcall/internal/pkg/randx"
)

const eventBuffer = 64

// Presence is the slice of the presence client the protocol needs.
type Presence interface {
	SetIncoming(user, caller string)
	ClearIncoming(user string)
	SetAvailable(user string, available bool)
	SetConnID(user, connID string)
	ClearAnswer(user string)
	RemoveUser(user string)

	WatchIncoming(user string, fn func(caller string, present bool)) presence.Subscription
	WatchAvailable(user string, fn func(available bool)) presence.Subscription
	WatchConnID(user string, fn func(connID string, present bool)) presence.Subscription
}

// Media is the command side of the media bridge.
type Media interface {
	Initialize(localID string) error
	Start(connID string)
	Unload()
}

// UI receives the view changes driven by the protocol.
type UI interface {
	ShowIncomingPrompt(caller string)
	HidePrompt()
	ShowCallControls()
	ShowCallInput()
	ShowError(err error)
}

// Options tunes a Machine.
type Options struct {
	// CallTimeout ends an unanswered outgoing call. Zero waits forever.
	CallTimeout time.Duration

	// NewLocalID generates the session's local identifier. Defaults to randx.LocalID.
	NewLocalID func() string
}

type eventKind int

const (
	evStart eventKind = iota
	evPlaceCall
	evAccept
	evReject
	evCancel
	evEnd
	evPeerConnected
	evIncoming
	evAvailable
	evConnID
	evTimeout
)

// event is one input of the reducer. attempt tags notifications of an outgoing call so
// that late deliveries from an earlier attempt are dropped.
type event struct {
	kind    eventKind
	attempt uint64
	value   string
	present bool
	reply   chan error
}

// Machine is the signaling state machine of one session. All inputs are serialised
// through a single event loop started with Run.
type Machine struct {
	username string
	presence Presence
	media    Media
	ui       UI

	callTimeout time.Duration
	newLocalID  func() string

	events chan event
	done   chan struct{}

	// owned by the Run loop
	state       State
	localID     string
	target      string
	caller      string
	peer        string
	connID      string
	engineReady bool
	attempt     uint64
	promptFrom  State
	incomingSub presence.Subscription
	availSub    presence.Subscription
	connSub     presence.Subscription
	callTimer   *time.Timer

	snapMu sync.RWMutex
	snap   Snapshot

	logger zerolog.Logger
}

// NewMachine builds the state machine of username's session.
func NewMachine(username string, p Presence, media Media, ui UI, opts Options) *Machine {
	if opts.NewLocalID == nil {
		opts.NewLocalID = randx.LocalID
	}

	m := &Machine{
		username:    username,
		presence:    p,
		media:       media,
		ui:          ui,
		callTimeout: opts.CallTimeout,
		newLocalID:  opts.NewLocalID,
		events:      make(chan event, eventBuffer),
		done:        make(chan struct{}),
		state:       Idle,
		logger:      logx.Component("signaling").With().Str("username", username).Logger(),
	}
	m.snap = Snapshot{State: Idle, Username: username}

	return m
}

// Run is the event loop. It returns once the session is terminated.
func (m *Machine) Run() {
	defer close(m.done)

	m.logger.Debug().Msg("Signaling loop started.")

	for {
		ev := <-m.events

		err := m.handle(ev)
		m.publishSnapshot()

		if ev.reply != nil {
			ev.reply <- err
		}

		if m.state == Terminated {
			m.logger.Info().Msg("Signaling loop finished.")
			return
		}
	}
}

// Done is closed when the loop has exited.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Start generates the local identifier, initializes the engine and starts watching for
// incoming calls.
func (m *Machine) Start() error {
	return m.request(evStart, "")
}

// PlaceCall asks target to accept a call from this session.
func (m *Machine) PlaceCall(target string) error {
	return m.request(evPlaceCall, target)
}

// Accept answers the pending incoming call.
func (m *Machine) Accept() error {
	return m.request(evAccept, "")
}

// Reject clears the local incoming slot and hides the prompt.
func (m *Machine) Reject() error {
	return m.request(evReject, "")
}

// Cancel withdraws the outgoing call.
func (m *Machine) Cancel() error {
	return m.request(evCancel, "")
}

// End removes the session's record, unloads the engine and stops the loop.
// Calling it again is a no-op.
func (m *Machine) End() {
	_ = m.request(evEnd, "")
}

// PeerConnected records the engine's peer-connected event.
func (m *Machine) PeerConnected() {
	m.post(event{kind: evPeerConnected})
}

// Snapshot returns the state as of the last processed event.
func (m *Machine) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

func (m *Machine) post(ev event) bool {
	select {
	case <-m.done:
		return false
	default:
	}

	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Machine) request(kind eventKind, value string) error {
	reply := make(chan error, 1)

	if !m.post(event{kind: kind, value: value, reply: reply}) {
		return m.terminatedErr(kind)
	}

	select {
	case err := <-reply:
		return err
	case <-m.done:
		select {
		case err := <-reply:
			return err
		default:
			return m.terminatedErr(kind)
		}
	}
}

func (m *Machine) terminatedErr(kind eventKind) error {
	if kind == evEnd {
		return nil
	}
	return errs.NewError(errs.ErrCallStateInvalid, Terminated)
}

func (m *Machine) publishSnapshot() {
	m.snapMu.Lock()
	m.snap = Snapshot{
		State:       m.state,
		Username:    m.username,
		LocalID:     m.localID,
		Target:      m.target,
		Caller:      m.caller,
		Peer:        m.peer,
		ConnID:      m.connID,
		EngineReady: m.engineReady,
	}
	m.snapMu.Unlock()
}

func (m *Machine) handle(ev event) error {
	switch ev.kind {
	case evStart:
		return m.handleStart()
	case evPlaceCall:
		return m.handlePlaceCall(ev.value)
	case evAccept:
		return m.handleAccept()
	case evReject:
		return m.handleReject()
	case evCancel:
		return m.handleCancel()
	case evEnd:
		m.handleEnd()
	case evPeerConnected:
		if !m.engineReady {
			m.engineReady = true
			m.logger.Info().Msg("Media engine ready.")
		}
	case evIncoming:
		m.handleIncoming(ev.value, ev.present)
	case evAvailable:
		m.handleAvailable(ev.attempt, ev.present)
	case evConnID:
		m.handleConnID(ev.attempt, ev.value, ev.present)
	case evTimeout:
		m.handleTimeout(ev.attempt)
	}
	return nil
}

func (m *Machine) handleStart() error {
	if m.state != Idle {
		return errs.NewError(errs.ErrCallStateInvalid, m.state)
	}

	m.localID = m.newLocalID()
	if err := m.media.Initialize(m.localID); err != nil {
		m.logger.Error().Err(err).Msg("Media engine initialization failed.")
	}

	m.incomingSub = m.presence.WatchIncoming(m.username, func(caller string, present bool) {
		m.post(event{kind: evIncoming, value: caller, present: present})
	})

	m.state = Ready
	m.logger.Info().Str("local_id", m.localID).Msg("Session ready.")
	return nil
}

func (m *Machine) handlePlaceCall(target string) error {
	if m.state == Terminated {
		return errs.NewError(errs.ErrCallStateInvalid, m.state)
	}
	if !m.engineReady {
		return errs.NewError(errs.ErrPeerNotConnected)
	}

	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return errs.NewError(errs.ErrCallTargetEmpty)
	case target == m.username:
		return errs.NewError(errs.ErrCallSelf)
	case m.state != Ready:
		return errs.NewError(errs.ErrCallStateInvalid, m.state)
	}

	m.attempt++
	attempt := m.attempt
	m.target = target

	m.presence.SetIncoming(target, m.username)
	m.availSub = m.presence.WatchAvailable(target, func(available bool) {
		m.post(event{kind: evAvailable, attempt: attempt, present: available})
	})

	if m.callTimeout > 0 {
		m.callTimer = time.AfterFunc(m.callTimeout, func() {
			m.post(event{kind: evTimeout, attempt: attempt})
		})
	}

	m.state = Calling
	m.logger.Info().Str("target", target).Uint64("attempt", attempt).Msg("Call request sent.")
	return nil
}

func (m *Machine) handleAvailable(attempt uint64, available bool) {
	if attempt != m.attempt || m.state != Calling {
		return
	}
	if !available || m.connSub != nil {
		return
	}

	m.logger.Debug().Str("target", m.target).Msg("Callee available, watching connection id.")
	m.connSub = m.presence.WatchConnID(m.target, func(connID string, present bool) {
		m.post(event{kind: evConnID, attempt: attempt, value: connID, present: present})
	})
}

func (m *Machine) handleConnID(attempt uint64, connID string, present bool) {
	if attempt != m.attempt || m.state != Calling || !present || connID == "" {
		return
	}

	m.stopAttempt()

	// the answer is single use; a later caller must wait for a fresh accept
	m.presence.ClearAnswer(m.target)

	m.connID = connID
	m.peer = m.target
	m.media.Start(connID)
	m.ui.ShowCallControls()

	m.state = Connected
	m.logger.Info().Str("peer", m.peer).Str("conn_id", connID).Msg("Call connected.")
}

func (m *Machine) handleTimeout(attempt uint64) {
	if attempt != m.attempt || m.state != Calling {
		return
	}

	m.logger.Info().Str("target", m.target).Dur("timeout", m.callTimeout).Msg("Call request timed out.")
	m.withdrawCall()
	m.ui.ShowError(errs.NewError(errs.ErrCallTimedOut, m.target))
}

func (m *Machine) handleCancel() error {
	if m.state != Calling {
		return errs.NewError(errs.ErrCallStateInvalid, m.state)
	}

	m.logger.Info().Str("target", m.target).Msg("Call request cancelled.")
	m.withdrawCall()
	return nil
}

// withdrawCall clears the request written into the callee's record and returns to Ready.
func (m *Machine) withdrawCall() {
	m.stopAttempt()
	m.presence.ClearIncoming(m.target)
	m.ui.ShowCallInput()
	m.state = Ready
}

// stopAttempt releases the subscriptions and timer of the current outgoing call.
func (m *Machine) stopAttempt() {
	if m.callTimer != nil {
		m.callTimer.Stop()
		m.callTimer = nil
	}
	if m.availSub != nil {
		m.availSub.Cancel()
		m.availSub = nil
	}
	if m.connSub != nil {
		m.connSub.Cancel()
		m.connSub = nil
	}
}

func (m *Machine) handleIncoming(caller string, present bool) {
	if !present {
		// cleared by us on reject, or withdrawn by the caller
		if m.state == IncomingPrompt {
			m.ui.HidePrompt()
			m.caller = ""
			m.state = m.promptFrom
		}
		return
	}

	switch m.state {
	case Idle, Terminated:
		return

	case IncomingPrompt:
		if caller == m.caller {
			return
		}

	case Connected:
		// the caller we already accepted stays in our incoming slot
		if caller == m.peer {
			return
		}
		// withdraw an answer the current peer never consumed, so the new caller cannot use it
		m.presence.ClearAnswer(m.username)

	case Calling:
		m.logger.Info().Str("target", m.target).Str("caller", caller).Msg("Incoming call while calling, withdrawing request.")
		m.withdrawCall()
	}

	if m.state != IncomingPrompt {
		m.promptFrom = m.state
	}
	m.caller = caller
	m.ui.ShowIncomingPrompt(caller)
	m.state = IncomingPrompt

	m.logger.Info().Str("caller", caller).Msg("Incoming call.")
}

func (m *Machine) handleAccept() error {
	if m.state != IncomingPrompt {
		return errs.NewError(errs.ErrCallStateInvalid, m.state)
	}

	// two independent writes; observers may see either one first
	m.presence.SetConnID(m.username, m.localID)
	m.presence.SetAvailable(m.username, true)

	m.ui.HidePrompt()
	m.ui.ShowCallControls()

	m.peer = m.caller
	m.caller = ""
	m.connID = m.localID
	m.state = Connected

	m.logger.Info().Str("peer", m.peer).Msg("Incoming call accepted.")
	return nil
}

func (m *Machine) handleReject() error {
	if m.state == Terminated {
		return errs.NewError(errs.ErrCallStateInvalid, m.state)
	}

	m.presence.ClearIncoming(m.username)
	m.ui.HidePrompt()

	if m.state == IncomingPrompt {
		m.logger.Info().Str("caller", m.caller).Msg("Incoming call rejected.")
		m.caller = ""
		m.state = m.promptFrom
	}
	return nil
}

func (m *Machine) handleEnd() {
	if m.state == Calling {
		m.stopAttempt()
		m.presence.ClearIncoming(m.target)
	}

	if m.incomingSub != nil {
		m.incomingSub.Cancel()
		m.incomingSub = nil
	}

	m.presence.RemoveUser(m.username)
	m.media.Unload()

	m.state = Terminated
	m.logger.Info().Msg("Session terminated.")
}
