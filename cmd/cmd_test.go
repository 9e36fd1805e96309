// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/tabpilot/api/schemas"
	"github.com/xkilldash9x/tabpilot/internal/config"
	"github.com/xkilldash9x/tabpilot/internal/mcp"
	"github.com/xkilldash9x/tabpilot/internal/mocks"
	"github.com/xkilldash9x/tabpilot/internal/observability"
)

// fakeTools records the parameters each command hands to the engine.
type fakeTools struct {
	mock.Mock
}

func (f *fakeTools) result(args mock.Arguments) *schemas.ToolResult {
	return args.Get(0).(*schemas.ToolResult)
}

func (f *fakeTools) Ping(ctx context.Context) *schemas.ToolResult {
	return f.result(f.Called())
}
func (f *fakeTools) ListTabs(ctx context.Context) *schemas.ToolResult {
	return f.result(f.Called())
}
func (f *fakeTools) Navigate(ctx context.Context, p schemas.NavigateParams) *schemas.ToolResult {
	return f.result(f.Called(p))
}
func (f *fakeTools) Click(ctx context.Context, p schemas.ClickParams) *schemas.ToolResult {
	return f.result(f.Called(p))
}
func (f *fakeTools) Type(ctx context.Context, p schemas.TypeParams) *schemas.ToolResult {
	return f.result(f.Called(p))
}
func (f *fakeTools) Wait(ctx context.Context, p schemas.WaitParams) *schemas.ToolResult {
	return f.result(f.Called(p))
}
func (f *fakeTools) ExtractText(ctx context.Context, p schemas.ExtractTextParams) *schemas.ToolResult {
	return f.result(f.Called(p))
}
func (f *fakeTools) InspectForm(ctx context.Context, p schemas.InspectFormParams) *schemas.ToolResult {
	return f.result(f.Called(p))
}

// withFakeTools swaps newTools for the duration of the test and captures the
// configuration the command loaded.
func withFakeTools(t *testing.T) (*fakeTools, *config.Interface) {
	t.Helper()
	fake := new(fakeTools)
	var loaded config.Interface

	original := newTools
	newTools = func(cfg config.Interface, logger *zap.Logger) mcp.Tools {
		loaded = cfg
		return fake
	}
	t.Cleanup(func() {
		newTools = original
		observability.ResetForTest()
		fake.AssertExpectations(t)
	})
	return fake, &loaded
}

// writeConfig drops a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := runRoot(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestClickCmd_PrintsResult(t *testing.T) {
	fake, _ := withFakeTools(t)
	cfgPath := writeConfig(t, "logger:\n  level: error\n")
	fake.On("Click", schemas.ClickParams{TabID: "T1", Selector: "#go", TimeoutMs: 750}).Return(&schemas.ToolResult{
		Success: true, Operation: schemas.OpClick, TabID: "T1", Selector: "#go",
	})

	out, err := runRoot(t, "--config", cfgPath, "click", "T1", "#go", "--timeout", "750")
	require.NoError(t, err)

	var res schemas.ToolResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.Equal(t, schemas.OpClick, res.Operation)
	assert.Equal(t, "#go", res.Selector)
}

func TestCommand_FailureReturnsOperationFailed(t *testing.T) {
	fake, _ := withFakeTools(t)
	cfgPath := writeConfig(t, "logger:\n  level: error\n")
	fake.On("Wait", mock.AnythingOfType("schemas.WaitParams")).Return(&schemas.ToolResult{
		Success: false, Operation: schemas.OpWait, Error: "wait: ElementNotFound (timeout)",
		ErrorKind: "ElementNotFound", Reason: "timeout",
	})

	out, err := runRoot(t, "--config", cfgPath, "wait", "T1", "#spinner")
	assert.ErrorIs(t, err, errOperationFailed)
	var res schemas.ToolResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Success)
	assert.Equal(t, "ElementNotFound", res.ErrorKind)
}

func TestCommand_FlagsMapToParams(t *testing.T) {
	cfgPath := writeConfig(t, "logger:\n  level: error\n")

	t.Run("TypeNoClear", func(t *testing.T) {
		fake, _ := withFakeTools(t)
		fake.On("Type", mock.AnythingOfType("schemas.TypeParams")).Return(&schemas.ToolResult{Success: true})

		_, err := runRoot(t, "--config", cfgPath, "type", "T1", "#q", "hello", "--no-clear")
		require.NoError(t, err)

		p := fake.Calls[0].Arguments.Get(0).(schemas.TypeParams)
		assert.Equal(t, "hello", p.Text)
		require.NotNil(t, p.Clear)
		assert.False(t, *p.Clear)
	})

	t.Run("TypeDefaultClearIsUnset", func(t *testing.T) {
		fake, _ := withFakeTools(t)
		fake.On("Type", mock.AnythingOfType("schemas.TypeParams")).Return(&schemas.ToolResult{Success: true})

		_, err := runRoot(t, "--config", cfgPath, "type", "T1", "#q", "hello")
		require.NoError(t, err)
		assert.Nil(t, fake.Calls[0].Arguments.Get(0).(schemas.TypeParams).Clear)
	})

	t.Run("WaitHiddenOK", func(t *testing.T) {
		fake, _ := withFakeTools(t)
		fake.On("Wait", mock.AnythingOfType("schemas.WaitParams")).Return(&schemas.ToolResult{Success: true})

		_, err := runRoot(t, "--config", cfgPath, "wait", "T1", "Sign in", "--hidden-ok", "--timeout", "100")
		require.NoError(t, err)

		p := fake.Calls[0].Arguments.Get(0).(schemas.WaitParams)
		require.NotNil(t, p.Visible)
		assert.False(t, *p.Visible)
		assert.Equal(t, 100, p.TimeoutMs)
	})

	t.Run("ExtractWithoutSelector", func(t *testing.T) {
		fake, _ := withFakeTools(t)
		fake.On("ExtractText", schemas.ExtractTextParams{TabID: "T1", MaxLength: 40}).Return(&schemas.ToolResult{Success: true})

		_, err := runRoot(t, "--config", cfgPath, "extract", "T1", "--max", "40")
		require.NoError(t, err)
	})

	t.Run("InspectWithForm", func(t *testing.T) {
		fake, _ := withFakeTools(t)
		fake.On("InspectForm", schemas.InspectFormParams{TabID: "T1", FormSelector: "#login"}).Return(&schemas.ToolResult{Success: true})

		_, err := runRoot(t, "--config", cfgPath, "inspect", "T1", "#login")
		require.NoError(t, err)
	})

	t.Run("Navigate", func(t *testing.T) {
		fake, _ := withFakeTools(t)
		fake.On("Navigate", schemas.NavigateParams{TabID: "T1", URL: "https://example.com", TimeoutMs: 2000}).Return(&schemas.ToolResult{Success: true})

		_, err := runRoot(t, "--config", cfgPath, "navigate", "T1", "https://example.com", "--timeout", "2000")
		require.NoError(t, err)
	})

	t.Run("Tabs", func(t *testing.T) {
		fake, _ := withFakeTools(t)
		fake.On("ListTabs").Return(&schemas.ToolResult{Success: true, Result: schemas.TabList{}})

		_, err := runRoot(t, "--config", cfgPath, "tabs")
		require.NoError(t, err)
	})
}

func TestCommand_ArgumentCount(t *testing.T) {
	withFakeTools(t)
	_, err := runRoot(t, "click", "T1")
	assert.Error(t, err)
}

func TestConfig_FileEnvAndFlags(t *testing.T) {
	fake, loaded := withFakeTools(t)
	cfgPath := writeConfig(t, `
logger:
  level: error
browser:
  debugger_url: http://10.0.0.5:9222
interaction:
  wait_timeout: 2s
`)
	t.Setenv("TABPILOT_INTERACTION_MAX_EXTRACT_LENGTH", "99")
	fake.On("ListTabs").Return(&schemas.ToolResult{Success: true})

	_, err := runRoot(t, "--config", cfgPath, "--untrusted", "tabs")
	require.NoError(t, err)

	cfg := *loaded
	require.NotNil(t, cfg)
	assert.Equal(t, "http://10.0.0.5:9222", cfg.Browser().DebuggerURL)
	assert.False(t, cfg.Browser().TrustedInput)
	assert.Equal(t, 2*time.Second, cfg.Interaction().WaitTimeout)
	assert.Equal(t, 99, cfg.Interaction().MaxExtractLength)
}

func TestConfig_DebuggerURLFlagWins(t *testing.T) {
	fake, loaded := withFakeTools(t)
	cfgPath := writeConfig(t, "logger:\n  level: error\nbrowser:\n  debugger_url: http://10.0.0.5:9222\n")
	fake.On("ListTabs").Return(&schemas.ToolResult{Success: true})

	_, err := runRoot(t, "--config", cfgPath, "--debugger-url", "ws://127.0.0.1:9333/devtools/browser/abc", "tabs")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:9333/devtools/browser/abc", (*loaded).Browser().DebuggerURL)
}

func TestConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"BadScheme", "browser:\n  debugger_url: ftp://host:21\n", "debugger_url must use"},
		{"ZeroWait", "interaction:\n  wait_timeout: 0s\n", "wait_timeout must be a positive duration"},
		{"EmptyListen", "mcp:\n  listen_addr: \"\"\n", "listen_addr is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withFakeTools(t)
			_, err := runRoot(t, "--config", writeConfig(t, tt.body), "tabs")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_MissingExplicitFile(t *testing.T) {
	withFakeTools(t)
	_, err := runRoot(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "tabs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

// The production wiring only reads configuration until an operation needs the
// browser, so ping succeeds without one.
func TestNewTools_WiresFromConfig(t *testing.T) {
	cfg := new(mocks.MockConfig)
	defaults := config.NewDefaultConfig()
	cfg.On("Browser").Return(defaults.Browser())
	cfg.On("Interaction").Return(defaults.Interaction())

	tools := newTools(cfg, zaptest.NewLogger(t))
	require.NotNil(t, tools)

	res := tools.Ping(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, schemas.OpPing, res.Operation)
	cfg.AssertExpectations(t)
}
