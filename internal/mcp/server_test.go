package mcp

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tabpilot/api/schemas"
	"github.com/xkilldash9x/tabpilot/internal/config"
)

// mockTools is a testify double for the tool operations.
type mockTools struct {
	mock.Mock
}

func (m *mockTools) result(args mock.Arguments) *schemas.ToolResult {
	return args.Get(0).(*schemas.ToolResult)
}

func (m *mockTools) Ping(ctx context.Context) *schemas.ToolResult {
	return &schemas.ToolResult{Success: true, Operation: schemas.OpPing, Result: map[string]string{"message": "pong"}}
}
func (m *mockTools) ListTabs(ctx context.Context) *schemas.ToolResult {
	return m.result(m.Called(ctx))
}
func (m *mockTools) Navigate(ctx context.Context, p schemas.NavigateParams) *schemas.ToolResult {
	return m.result(m.Called(ctx, p))
}
func (m *mockTools) Click(ctx context.Context, p schemas.ClickParams) *schemas.ToolResult {
	return m.result(m.Called(ctx, p))
}
func (m *mockTools) Type(ctx context.Context, p schemas.TypeParams) *schemas.ToolResult {
	return m.result(m.Called(ctx, p))
}
func (m *mockTools) Wait(ctx context.Context, p schemas.WaitParams) *schemas.ToolResult {
	return m.result(m.Called(ctx, p))
}
func (m *mockTools) ExtractText(ctx context.Context, p schemas.ExtractTextParams) *schemas.ToolResult {
	return m.result(m.Called(ctx, p))
}
func (m *mockTools) InspectForm(ctx context.Context, p schemas.InspectFormParams) *schemas.ToolResult {
	return m.result(m.Called(ctx, p))
}

func newTestServer(t *testing.T, cfg config.MCPConfig) (*mockTools, *httptest.Server) {
	return newTestServerWithLogger(t, cfg, zaptest.NewLogger(t))
}

// Websocket handlers outlive the test body, so those tests log to a no-op logger.
func newTestServerWithLogger(t *testing.T, cfg config.MCPConfig, logger *zap.Logger) (*mockTools, *httptest.Server) {
	t.Helper()
	tools := new(mockTools)
	srv := NewServer(cfg, tools, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return tools, ts
}

func postCommand(t *testing.T, url string, body string) (*http.Response, CommandResponse) {
	t.Helper()
	resp, err := http.Post(url+"/api/v1/command", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealthCheck(t *testing.T) {
	_, ts := newTestServer(t, config.MCPConfig{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleCommand_Click(t *testing.T) {
	tools, ts := newTestServer(t, config.MCPConfig{RequestTimeout: time.Minute})
	want := schemas.ClickParams{TabID: "T1", Selector: "#go", TimeoutMs: 250}
	tools.On("Click", mock.Anything, want).Return(&schemas.ToolResult{
		Success: true, Operation: schemas.OpClick, TabID: "T1", Selector: "#go",
	})

	resp, out := postCommand(t, ts.URL, `{"command":"click","params":{"tabId":"T1","selector":"#go","timeoutMs":250}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", out.Status)
	data := out.Data.(map[string]interface{})
	assert.Equal(t, true, data["success"])
	assert.Equal(t, "click", data["operation"])
	tools.AssertExpectations(t)
}

func TestHandleCommand_OperationFailureIsStill200(t *testing.T) {
	tools, ts := newTestServer(t, config.MCPConfig{})
	tools.On("Type", mock.Anything, mock.AnythingOfType("schemas.TypeParams")).Return(&schemas.ToolResult{
		Success:   false,
		Operation: schemas.OpType,
		Error:     `type: ElementNotFound (hidden) for "#q"`,
		ErrorKind: "ElementNotFound",
		Reason:    "hidden",
	})

	resp, out := postCommand(t, ts.URL, `{"command":"type","params":{"tabId":"T1","selector":"#q","text":"hi","clear":false}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "error", out.Status)
	assert.Contains(t, out.Error, "ElementNotFound")
	data := out.Data.(map[string]interface{})
	assert.Equal(t, "ElementNotFound", data["errorKind"])

	call := tools.Calls[0].Arguments.Get(1).(schemas.TypeParams)
	require.NotNil(t, call.Clear)
	assert.False(t, *call.Clear)
}

func TestHandleCommand_BadRequests(t *testing.T) {
	_, ts := newTestServer(t, config.MCPConfig{})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"MalformedBody", `{"command":`, "Invalid request body"},
		{"UnknownCommand", `{"command":"scroll"}`, "unknown command"},
		{"WrongParamType", `{"command":"wait","params":{"tabId":"T1","selector":"#x","visible":"yes"}}`, "invalid parameters for wait"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := postCommand(t, ts.URL, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "error", out.Status)
			assert.Contains(t, out.Error, tt.want)
		})
	}
}

func TestHandleCommand_RateLimited(t *testing.T) {
	_, ts := newTestServer(t, config.MCPConfig{RateLimit: 0.001, RateBurst: 1})

	resp, _ := postCommand(t, ts.URL, `{"command":"ping"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Post(ts.URL+"/api/v1/command", "application/json", strings.NewReader(`{"command":"ping"}`))
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp2.StatusCode)
}

func TestMapToStruct(t *testing.T) {
	p, err := mapToStruct[schemas.ExtractTextParams](map[string]interface{}{"tabId": "T1", "maxLength": 12})
	require.NoError(t, err)
	assert.Equal(t, schemas.ExtractTextParams{TabID: "T1", MaxLength: 12}, p)

	empty, err := mapToStruct[schemas.ExtractTextParams](nil)
	require.NoError(t, err)
	assert.Equal(t, schemas.ExtractTextParams{}, empty)
}

// -- WebSocket --

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/v1/interact"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestWebSocket_CommandResult(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tools, ts := newTestServerWithLogger(t, config.MCPConfig{}, zap.NewNop())
	tools.On("ListTabs", mock.Anything).Return(&schemas.ToolResult{
		Success: true, Operation: schemas.OpListTabs,
		Result: schemas.TabList{Tabs: []schemas.TargetInfo{{ID: "T1", Type: "page"}}},
	})

	conn := dialWS(t, ts)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":       "Command",
		"request_id": "req-1",
		"data":       map[string]interface{}{"command": "list_tabs"},
	}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgTypeCommandResult, msg.Type)
	assert.Equal(t, "req-1", msg.RequestID)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, true, data["success"])
	assert.NotEmpty(t, msg.Timestamp)

	require.NoError(t, conn.Close())
	ts.Close()
}

func TestWebSocket_Errors(t *testing.T) {
	_, ts := newTestServerWithLogger(t, config.MCPConfig{}, zap.NewNop())
	conn := dialWS(t, ts)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "Subscribe", "request_id": "r1"}))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgTypeSystemError, msg.Type)
	assert.Equal(t, "r1", msg.RequestID)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "Command", "request_id": "r2", "data": map[string]interface{}{"command": "hover"},
	}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgTypeSystemError, msg.Type)
	assert.Equal(t, "r2", msg.RequestID)
	assert.Contains(t, msg.Data.(map[string]interface{})["error"], "unknown command")
}

func TestWebSocket_AssignsRequestID(t *testing.T) {
	_, ts := newTestServerWithLogger(t, config.MCPConfig{}, zap.NewNop())
	conn := dialWS(t, ts)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "Command", "data": map[string]interface{}{"command": "ping"}}))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MsgTypeCommandResult, msg.Type)
	assert.Len(t, msg.RequestID, 36)
}
