package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendahealth/consulta/internal/config"
	"github.com/agendahealth/consulta/internal/logging"
	"github.com/agendahealth/consulta/internal/skill"
)

// echoSkill replies with its input, recording the turns it saw.
type echoSkill struct {
	name  string
	err   error
	turns []skill.Turn
}

func (e *echoSkill) Name() string    { return e.name }
func (e *echoSkill) Validate() error { return nil }

func (e *echoSkill) Execute(ctx context.Context, turn skill.Turn) (*skill.Result, error) {
	e.turns = append(e.turns, turn)
	if e.err != nil {
		return nil, e.err
	}
	return &skill.Result{Message: "echo: " + turn.Text, RequiresInput: true}, nil
}

func testServer(t *testing.T) (*httptest.Server, *echoSkill) {
	t.Helper()
	log := logging.New(nil, "silent")

	echo := &echoSkill{name: skill.AppointmentsSkillName}
	registry := skill.NewRegistry(log)
	require.NoError(t, registry.Register(echo))

	s := New(config.ServerConfig{}, registry, log)
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	ts := httptest.NewServer(withMiddleware(mux, s.log))
	t.Cleanup(ts.Close)
	return ts, echo
}

func postMessage(t *testing.T, ts *httptest.Server, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/messages", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

// --- HTTP ---

func TestServer_Health(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestServer_Skills(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/v1/skills")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{skill.AppointmentsSkillName}, body["skills"])
}

func TestServer_Message(t *testing.T) {
	ts, echo := testServer(t)

	resp, body := postMessage(t, ts, `{"conversationId": "conv-1", "text": "oi", "channel": "whatsapp"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "conv-1", body["conversationId"])
	assert.Equal(t, "echo: oi", body["message"])
	assert.Equal(t, true, body["requiresInput"])

	require.Len(t, echo.turns, 1)
	assert.Equal(t, "whatsapp", string(echo.turns[0].Channel))
}

func TestServer_Message_AssignsConversationID(t *testing.T) {
	ts, _ := testServer(t)

	resp, body := postMessage(t, ts, `{"text": "oi"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	id, ok := body["conversationId"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, id)
}

func TestServer_Message_DefaultsSkill(t *testing.T) {
	ts, echo := testServer(t)

	resp, _ := postMessage(t, ts, `{"text": "oi"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, echo.turns, 1, "unnamed skill routes to appointments")
}

func TestServer_Message_EmptyTextRejected(t *testing.T) {
	ts, echo := testServer(t)

	resp, body := postMessage(t, ts, `{"text": "   "}`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "text is required", body["error"])
	assert.Empty(t, echo.turns)
}

func TestServer_Message_InvalidBodyRejected(t *testing.T) {
	ts, _ := testServer(t)

	resp, body := postMessage(t, ts, `{not json`)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", body["error"])
}

func TestServer_Message_UnknownSkill(t *testing.T) {
	ts, _ := testServer(t)

	resp, body := postMessage(t, ts, `{"text": "oi", "skill": "no-such-task"}`)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "no-such-task")
}

func TestServer_Message_SkillFailureIsOpaque(t *testing.T) {
	ts, echo := testServer(t)
	echo.err = errors.New("store exploded")

	resp, body := postMessage(t, ts, `{"text": "oi"}`)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", body["error"], "internals never leak to the caller")
}

func TestServer_UnknownRouteIs404(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "/nope", body["path"])
}

// --- WebSocket ---

func wsDial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServer_WebSocketTurn(t *testing.T) {
	ts, _ := testServer(t)
	conn := wsDial(t, ts)

	require.NoError(t, conn.WriteJSON(MessageRequest{Text: "oi"}))

	var body map[string]any
	require.NoError(t, conn.ReadJSON(&body))
	assert.Equal(t, "echo: oi", body["message"])
	assert.NotEmpty(t, body["conversationId"])
}

func TestServer_WebSocketCarriesConversationID(t *testing.T) {
	ts, echo := testServer(t)
	conn := wsDial(t, ts)

	require.NoError(t, conn.WriteJSON(MessageRequest{Text: "primeira"}))
	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))

	require.NoError(t, conn.WriteJSON(MessageRequest{Text: "segunda"}))
	var second map[string]any
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, first["conversationId"], second["conversationId"])
	require.Len(t, echo.turns, 2)
	assert.Equal(t, echo.turns[0].ConversationID, echo.turns[1].ConversationID)
}

func TestServer_WebSocketBadFrameKeepsConnection(t *testing.T) {
	ts, _ := testServer(t)
	conn := wsDial(t, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var errBody map[string]any
	require.NoError(t, conn.ReadJSON(&errBody))
	assert.Equal(t, "invalid message frame", errBody["error"])

	// Connection survives the bad frame.
	require.NoError(t, conn.WriteJSON(MessageRequest{Text: "ainda aqui"}))
	var body map[string]any
	require.NoError(t, conn.ReadJSON(&body))
	assert.Equal(t, "echo: ainda aqui", body["message"])
}

func TestServer_WebSocketRejectsCrossOrigin(t *testing.T) {
	ts, _ := testServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		conn.Close()
	}
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_AddrBeforeStart(t *testing.T) {
	log := logging.New(nil, "silent")
	s := New(config.ServerConfig{Bind: "127.0.0.1", Port: 8080}, skill.NewRegistry(log), log)
	assert.Empty(t, s.Addr(), "no address until the listener is up")
}
