/*
Package surface is the WebSocket link to the rendering surface, the browser page that
hosts the WebRTC engine and the call screen.

This file defines the wire messages exchanged with the page.
*/
package surface

import (
	"encoding/json"
	"time"
)

// MessageType identifies a surface message.
type MessageType string

// Inbound message types, sent by the page.
const (
	// TypePageLoaded reports the page finished loading and can accept engine commands.
	TypePageLoaded MessageType = "PAGE_LOADED"

	// TypePeerConnected relays the engine's onPeerConnected() event.
	TypePeerConnected MessageType = "PEER_CONNECTED"

	// TypePlaceCall asks to call the user named in PlaceCallPayload.
	TypePlaceCall MessageType = "PLACE_CALL"

	TypeAccept      MessageType = "ACCEPT"
	TypeReject      MessageType = "REJECT"
	TypeCancelCall  MessageType = "CANCEL_CALL"
	TypeToggleAudio MessageType = "TOGGLE_AUDIO"
	TypeToggleVideo MessageType = "TOGGLE_VIDEO"
)

// Outbound message types, sent to the page.
const (
	// TypeExec carries a script for the engine, see ExecPayload.
	TypeExec MessageType = "EXEC"

	// TypeShowPrompt shows the incoming-call prompt, see PromptPayload.
	TypeShowPrompt MessageType = "SHOW_PROMPT"

	TypeHidePrompt   MessageType = "HIDE_PROMPT"
	TypeShowControls MessageType = "SHOW_CONTROLS"
	TypeShowInput    MessageType = "SHOW_INPUT"

	// TypeMediaState updates the audio and video toggle icons, see MediaStatePayload.
	TypeMediaState MessageType = "MEDIA_STATE"

	// TypeError reports a user-visible failure, see ErrorPayload.
	TypeError MessageType = "ERROR"
)

// Message is the envelope of every surface message in both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// NewMessage builds an outbound message, marshalling payload when it is not nil.
func NewMessage(msgType MessageType, payload any) (Message, error) {
	msg := Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Payload = raw
	}

	return msg, nil
}

type PlaceCallPayload struct {
	Target string `json:"target"`
}

type ExecPayload struct {
	Script string `json:"script"`
}

type PromptPayload struct {
	Caller string `json:"caller"`
}

type MediaStatePayload struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
