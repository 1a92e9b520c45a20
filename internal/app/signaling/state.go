/*
Package signaling implements the call-signaling protocol of a single user session.

A Machine turns "alice wants to call bob" into "both engines hold a connection id" using
nothing but the shared presence store: the caller writes its name into the callee's
incoming field, the callee accepts by publishing its connId and isAvailable=true, and the
caller, watching those two fields, starts the media engine with the connId.
*/
package signaling

import "fmt"

// State is the signaling state of one session.
type State int

const (
	// Idle is the initial state; no local identifier exists yet.
	Idle State = iota

	// Ready means the engine was initialized and incoming calls are being watched.
	Ready

	// Calling means a call request was written and the callee's answer is awaited.
	Calling

	// IncomingPrompt means a remote caller is waiting for accept or reject.
	IncomingPrompt

	// Connected means a connection id was exchanged and the engine was told to start.
	Connected

	// Terminated means the session ended and its record was removed.
	Terminated
)

var stateNames = [...]string{
	Idle:           "Idle",
	Ready:          "Ready",
	Calling:        "Calling",
	IncomingPrompt: "IncomingPrompt",
	Connected:      "Connected",
	Terminated:     "Terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("signaling: unknown state %q", text)
}

// Snapshot is a read-only view of a Machine.
type Snapshot struct {
	State    State  `json:"state"`
	Username string `json:"username"`
	LocalID  string `json:"localId,omitempty"`

	// Target is the callee of the current or last outgoing call.
	Target string `json:"target,omitempty"`

	// Caller is the remote user shown in the incoming prompt.
	Caller string `json:"caller,omitempty"`

	// Peer is the remote user of the connected call.
	Peer string `json:"peer,omitempty"`

	// ConnID is the connection id the engine was started with, or the one published on accept.
	ConnID string `json:"connId,omitempty"`

	// EngineReady is raised by the first peer-connected event and never cleared.
	EngineReady bool `json:"engineReady"`
}
