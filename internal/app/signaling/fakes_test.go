package signaling

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vcall/internal/app/presence"
	"vcall/internal/pkg/errs"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// recorder is a concurrency-safe list of strings.
type recorder struct {
	mu    sync.Mutex
	items []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	r.items = append(r.items, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

func (r *recorder) count(item string) int {
	n := 0
	for _, it := range r.all() {
		if it == item {
			n++
		}
	}
	return n
}

// recordingPresence is a real presence client that also logs every write it is asked for.
type recordingPresence struct {
	*presence.Client
	writes recorder
}

func (p *recordingPresence) SetIncoming(user, caller string) {
	p.writes.add("set %s/incoming=%s", user, caller)
	p.Client.SetIncoming(user, caller)
}

func (p *recordingPresence) ClearIncoming(user string) {
	p.writes.add("clear %s/incoming", user)
	p.Client.ClearIncoming(user)
}

func (p *recordingPresence) SetAvailable(user string, available bool) {
	p.writes.add("set %s/isAvailable=%t", user, available)
	p.Client.SetAvailable(user, available)
}

func (p *recordingPresence) SetConnID(user, connID string) {
	p.writes.add("set %s/connId=%s", user, connID)
	p.Client.SetConnID(user, connID)
}

func (p *recordingPresence) ClearAnswer(user string) {
	p.writes.add("clear %s/answer", user)
	p.Client.ClearAnswer(user)
}

func (p *recordingPresence) RemoveUser(user string) {
	p.writes.add("remove %s", user)
	p.Client.RemoveUser(user)
}

type fakeMedia struct {
	calls recorder
}

func (f *fakeMedia) Initialize(localID string) error {
	f.calls.add("init %s", localID)
	return nil
}

func (f *fakeMedia) Start(connID string) { f.calls.add("start %s", connID) }

func (f *fakeMedia) Unload() { f.calls.add("unload") }

type fakeUI struct {
	views recorder
}

func (f *fakeUI) ShowIncomingPrompt(caller string) { f.views.add("prompt %s", caller) }

func (f *fakeUI) HidePrompt() { f.views.add("hide") }

func (f *fakeUI) ShowCallControls() { f.views.add("controls") }

func (f *fakeUI) ShowCallInput() { f.views.add("input") }

func (f *fakeUI) ShowError(err error) {
	f.views.add("error %d", errs.From(err).Code)
}

// world is a shared in-memory presence store with any number of sessions on top.
type world struct {
	t        *testing.T
	backend  *presence.MemoryBackend
	presence *recordingPresence
}

func newWorld(t *testing.T) *world {
	t.Helper()

	backend := presence.NewMemoryBackend()
	client := presence.NewClient(backend, time.Second)
	t.Cleanup(func() { _ = client.Close() })

	return &world{t: t, backend: backend, presence: &recordingPresence{Client: client}}
}

type session struct {
	*Machine
	media *fakeMedia
	ui    *fakeUI
}

func (w *world) session(username string, opts Options) *session {
	w.t.Helper()

	s := &session{media: &fakeMedia{}, ui: &fakeUI{}}
	if opts.NewLocalID == nil {
		opts.NewLocalID = func() string { return "id-" + username }
	}

	s.Machine = NewMachine(username, w.presence, s.media, s.ui, opts)
	go s.Run()
	w.t.Cleanup(s.End)

	return s
}

// started returns a session that already ran Start and, if ready, saw the engine connect.
func (w *world) started(username string, ready bool, opts Options) *session {
	w.t.Helper()

	s := w.session(username, opts)
	require.NoError(w.t, s.Start())
	// let the incoming watch deliver its initial value
	settle(w)
	if ready {
		s.PeerConnected()
		require.Eventually(w.t, func() bool { return s.Snapshot().EngineReady }, waitFor, tick)
	}
	return s
}

// sync waits until every queued store write was applied.
func (w *world) sync() {
	w.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(w.t, w.presence.Sync(ctx))
}

func (w *world) record(user string) presence.Record {
	w.t.Helper()

	w.sync()
	rec, err := w.presence.Fetch(context.Background(), user)
	require.NoError(w.t, err)
	return rec
}

func (w *world) waitState(s *session, want State) {
	w.t.Helper()

	require.Eventually(w.t, func() bool { return s.Snapshot().State == want }, waitFor, tick, "want state %s", want)
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
