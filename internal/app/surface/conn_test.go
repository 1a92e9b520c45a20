package surface

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcall/internal/pkg/errs"
)

type recordingHandler struct {
	messages     chan Message
	disconnected chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		messages:     make(chan Message, 16),
		disconnected: make(chan struct{}),
	}
}

func (h *recordingHandler) HandleMessage(msg Message) { h.messages <- msg }

func (h *recordingHandler) HandleDisconnect() { close(h.disconnected) }

// serve starts a server whose single connection is wrapped in a Conn, and dials it.
func serve(t *testing.T, h Handler) (*Conn, *websocket.Conn) {
	t.Helper()

	conns := make(chan *Conn, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		c := NewConn(ws, "alice")
		c.SetHandler(h)
		go c.WritePump()
		go c.ReadPump()
		conns <- c
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case c := <-conns:
		return c, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func readMessage(t *testing.T, client *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg Message
	require.NoError(t, client.ReadJSON(&msg))
	return msg
}

func TestInboundMessagesReachHandler(t *testing.T) {
	h := newRecordingHandler()
	_, client := serve(t, h)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, client.WriteJSON(map[string]any{
		"type":    TypePlaceCall,
		"payload": PlaceCallPayload{Target: "bob"},
	}))

	select {
	case msg := <-h.messages:
		assert.Equal(t, TypePlaceCall, msg.Type)

		var p PlaceCallPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		assert.Equal(t, "bob", p.Target)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the message")
	}

	require.NoError(t, client.Close())

	select {
	case <-h.disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect was not reported")
	}
}

func TestOutboundMessages(t *testing.T) {
	c, client := serve(t, newRecordingHandler())

	c.Execute(`init("id-1")`)
	c.ShowIncomingPrompt("bob")
	c.ShowMediaState(false, true)
	c.ShowError(errs.NewError(errs.ErrPeerNotConnected))

	msg := readMessage(t, client)
	assert.Equal(t, TypeExec, msg.Type)
	var exec ExecPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &exec))
	assert.Equal(t, `init("id-1")`, exec.Script)

	msg = readMessage(t, client)
	assert.Equal(t, TypeShowPrompt, msg.Type)
	assert.JSONEq(t, `{"caller":"bob"}`, string(msg.Payload))

	msg = readMessage(t, client)
	assert.Equal(t, TypeMediaState, msg.Type)
	assert.JSONEq(t, `{"audio":false,"video":true}`, string(msg.Payload))

	msg = readMessage(t, client)
	assert.Equal(t, TypeError, msg.Type)
	var e ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &e))
	assert.Equal(t, errs.ErrPeerNotConnected, e.Code)
	assert.Equal(t, "You're not connected. Check your internet", e.Message)
}

func TestKickSendsSessionReplacedCloseCode(t *testing.T) {
	c, client := serve(t, newRecordingHandler())

	c.Kick("replaced")

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, WsCloseCodeSessionKicked, closeErr.Code)
	assert.Equal(t, "replaced", closeErr.Text)

	assert.NoError(t, c.Send(TypeHidePrompt, nil))
	c.Close()
}

func TestKickDeliversQueuedMessagesFirst(t *testing.T) {
	c, client := serve(t, newRecordingHandler())

	c.Execute("unload()")
	c.Kick("replaced")

	msg := readMessage(t, client)
	assert.Equal(t, TypeExec, msg.Type)
	var exec ExecPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &exec))
	assert.Equal(t, "unload()", exec.Script)

	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, WsCloseCodeSessionKicked, closeErr.Code)

	// a later graceful close does not override the kick
	c.Close()
}

func TestCloseSendsNormalClosure(t *testing.T) {
	c, client := serve(t, newRecordingHandler())

	c.ShowCallInput()
	c.Close()

	msg := readMessage(t, client)
	assert.Equal(t, TypeShowInput, msg.Type)

	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNoStatusReceived, closeErr.Code)
}
