// File: internal/mcp/types.go
package mcp

import (
	"context"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

// CommandRequest is the body of POST /api/v1/command and the data of a
// websocket Command message.
type CommandRequest struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params"`
}

// CommandResponse is the HTTP reply envelope.
type CommandResponse struct {
	Status string      `json:"status"` // "success" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Tools is the set of tool operations served over the command surface.
// *engine.Engine satisfies it.
type Tools interface {
	Ping(ctx context.Context) *schemas.ToolResult
	ListTabs(ctx context.Context) *schemas.ToolResult
	Navigate(ctx context.Context, p schemas.NavigateParams) *schemas.ToolResult
	Click(ctx context.Context, p schemas.ClickParams) *schemas.ToolResult
	Type(ctx context.Context, p schemas.TypeParams) *schemas.ToolResult
	Wait(ctx context.Context, p schemas.WaitParams) *schemas.ToolResult
	ExtractText(ctx context.Context, p schemas.ExtractTextParams) *schemas.ToolResult
	InspectForm(ctx context.Context, p schemas.InspectFormParams) *schemas.ToolResult
}
