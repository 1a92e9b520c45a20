package media

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSurface struct {
	mu      sync.Mutex
	scripts []string
}

func (s *recordingSurface) Execute(script string) {
	s.mu.Lock()
	s.scripts = append(s.scripts, script)
	s.mu.Unlock()
}

func (s *recordingSurface) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scripts...)
}

func TestScript(t *testing.T) {
	assert.Equal(t, `init("a-1")`, Script("init", "a-1"))
	assert.Equal(t, `unload()`, Script("unload"))
	assert.Equal(t, `startCall("x\"); evil(\"")`, Script("startCall", `x"); evil("`))
	assert.Equal(t, `f("a","b")`, Script("f", "a", "b"))
}

func TestBridgeCommands(t *testing.T) {
	surface := &recordingSurface{}
	b := NewBridge(surface)

	require.NoError(t, b.Initialize("local-1"))
	assert.ErrorIs(t, b.Initialize("local-2"), ErrAlreadyInitialized)
	assert.Equal(t, "local-1", b.LocalID())

	b.Start("abc123")
	b.SetAudioEnabled(false)
	b.SetVideoEnabled(true)
	b.Unload()

	assert.Equal(t, []string{
		`init("local-1")`,
		`startCall("abc123")`,
		`toggleAudio("false")`,
		`toggleVideo("true")`,
		`unload()`,
	}, surface.all())
}

func TestBridgePeerConnectedFiresOnce(t *testing.T) {
	b := NewBridge(&recordingSurface{})

	calls := 0
	b.OnPeerConnected(func() { calls++ })

	b.PeerConnected()
	b.PeerConnected()

	assert.Equal(t, 1, calls)
}

func TestBridgePeerConnectedWithoutHandler(t *testing.T) {
	b := NewBridge(&recordingSurface{})

	assert.NotPanics(t, b.PeerConnected)
}
