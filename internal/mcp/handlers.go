// File: internal/mcp/handlers.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

// errUnknownCommand marks a command name that is not a tool operation.
var errUnknownCommand = errors.New("unknown command")

// Handlers manages the HTTP request handling for the MCP server.
type Handlers struct {
	log     *zap.Logger
	tools   Tools
	timeout time.Duration
}

// NewHandlers creates a new Handlers instance. A positive timeout bounds each
// command.
func NewHandlers(logger *zap.Logger, tools Tools, timeout time.Duration) *Handlers {
	return &Handlers{
		log:     logger.Named("mcp_handlers"),
		tools:   tools,
		timeout: timeout,
	}
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/command", h.HandleCommand)
	})
}

// HandleHealthCheck is a simple handler to confirm the server is responsive.
func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleCommand decodes {command, params}, runs the operation and replies with
// the ToolResult. A failed operation is still a 200; only requests that never
// reach an operation are rejected with 400.
func (h *Handlers) HandleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	h.log.Info("Received command", zap.String("command", req.Command))

	res, err := h.Execute(r.Context(), req)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondWithResult(w, res)
}

// Execute runs one command within the handler timeout.
func (h *Handlers) Execute(ctx context.Context, req CommandRequest) (*schemas.ToolResult, error) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	switch schemas.Operation(strings.ToLower(strings.TrimSpace(req.Command))) {
	case schemas.OpPing:
		return h.tools.Ping(ctx), nil
	case schemas.OpListTabs:
		return h.tools.ListTabs(ctx), nil
	case schemas.OpNavigate:
		return invoke(ctx, req, h.tools.Navigate)
	case schemas.OpClick:
		return invoke(ctx, req, h.tools.Click)
	case schemas.OpType:
		return invoke(ctx, req, h.tools.Type)
	case schemas.OpWait:
		return invoke(ctx, req, h.tools.Wait)
	case schemas.OpExtractText:
		return invoke(ctx, req, h.tools.ExtractText)
	case schemas.OpInspectForm:
		return invoke(ctx, req, h.tools.InspectForm)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, req.Command)
	}
}

// invoke decodes the request params into P and runs op.
func invoke[P any](ctx context.Context, req CommandRequest, op func(context.Context, P) *schemas.ToolResult) (*schemas.ToolResult, error) {
	params, err := mapToStruct[P](req.Params)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters for %s: %w", req.Command, err)
	}
	return op(ctx, params), nil
}

// Generic utility function to convert map[string]interface{} to a specific struct using JSON marshaling.
func mapToStruct[T any](m map[string]interface{}) (T, error) {
	var result T
	// Handle nil map gracefully
	if m == nil {
		return result, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return result, err
	}
	err = json.Unmarshal(data, &result)
	return result, err
}

// respondWithResult reports a ToolResult. The status string mirrors Success.
func (h *Handlers) respondWithResult(w http.ResponseWriter, res *schemas.ToolResult) {
	resp := CommandResponse{Status: "success", Data: res}
	if !res.Success {
		resp.Status = "error"
		resp.Error = res.Error
	}
	h.respond(w, http.StatusOK, resp)
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, CommandResponse{Status: "error", Error: message})
}

func (h *Handlers) respond(w http.ResponseWriter, statusCode int, resp CommandResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}
