// File: cmd/tools.go
package cmd

import (
	"context"
	"fmt"
	"io"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/tabpilot/api/schemas"
	"github.com/xkilldash9x/tabpilot/internal/mcp"
	"github.com/xkilldash9x/tabpilot/internal/observability"
)

// runTool executes one operation, prints its ToolResult as JSON and reports
// errOperationFailed when the result is a failure.
func runTool(cmd *cobra.Command, state *appState, op func(ctx context.Context, tools mcp.Tools) *schemas.ToolResult) error {
	tools := newTools(state.cfg, observability.GetLogger())
	res := op(cmd.Context(), tools)
	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.Success {
		return errOperationFailed
	}
	return nil
}

func printResult(w io.Writer, res *schemas.ToolResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newServeCmd(state *appState) *cobra.Command {
	var addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tool operations over HTTP and websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mcpCfg := state.cfg.MCP()
			if addr != "" {
				mcpCfg.ListenAddr = addr
			}
			logger := observability.GetLogger()
			server := mcp.NewServer(mcpCfg, newTools(state.cfg, logger), logger)
			return server.Start(cmd.Context())
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides mcp.listen_addr)")
	return serveCmd
}

func newTabsCmd(state *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "tabs",
		Short: "List the browser's open tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, state, func(ctx context.Context, tools mcp.Tools) *schemas.ToolResult {
				return tools.ListTabs(ctx)
			})
		},
	}
}

func newNavigateCmd(state *appState) *cobra.Command {
	var timeoutMs int
	navigateCmd := &cobra.Command{
		Use:   "navigate <tab> <url>",
		Short: "Load a URL in a tab",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := schemas.NavigateParams{TabID: args[0], URL: args[1], TimeoutMs: timeoutMs}
			return runTool(cmd, state, func(ctx context.Context, tools mcp.Tools) *schemas.ToolResult {
				return tools.Navigate(ctx, p)
			})
		},
	}
	navigateCmd.Flags().IntVar(&timeoutMs, "timeout", 0, "navigation timeout in milliseconds (default interaction.navigation_timeout)")
	return navigateCmd
}

func newClickCmd(state *appState) *cobra.Command {
	var timeoutMs int
	clickCmd := &cobra.Command{
		Use:   "click <tab> <selector-or-hint>",
		Short: "Click an element once it is visible",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := schemas.ClickParams{TabID: args[0], Selector: args[1], TimeoutMs: timeoutMs}
			return runTool(cmd, state, func(ctx context.Context, tools mcp.Tools) *schemas.ToolResult {
				return tools.Click(ctx, p)
			})
		},
	}
	clickCmd.Flags().IntVar(&timeoutMs, "timeout", 0, "visibility wait in milliseconds (default interaction.wait_timeout)")
	return clickCmd
}

func newTypeCmd(state *appState) *cobra.Command {
	var (
		timeoutMs int
		noClear   bool
	)
	typeCmd := &cobra.Command{
		Use:   "type <tab> <selector-or-hint> <text>",
		Short: "Type text into an element",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := schemas.TypeParams{TabID: args[0], Selector: args[1], Text: args[2], TimeoutMs: timeoutMs}
			if cmd.Flags().Changed("no-clear") {
				keep := !noClear
				p.Clear = &keep
			}
			return runTool(cmd, state, func(ctx context.Context, tools mcp.Tools) *schemas.ToolResult {
				return tools.Type(ctx, p)
			})
		},
	}
	typeCmd.Flags().IntVar(&timeoutMs, "timeout", 0, "visibility wait in milliseconds (default interaction.wait_timeout)")
	typeCmd.Flags().BoolVar(&noClear, "no-clear", false, "append to the existing value instead of replacing it")
	return typeCmd
}

func newWaitCmd(state *appState) *cobra.Command {
	var (
		timeoutMs int
		hiddenOK  bool
	)
	waitCmd := &cobra.Command{
		Use:   "wait <tab> <selector-or-hint>",
		Short: "Wait for an element to become visible, or check that it exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := schemas.WaitParams{TabID: args[0], Selector: args[1], TimeoutMs: timeoutMs}
			if hiddenOK {
				visible := false
				p.Visible = &visible
			}
			return runTool(cmd, state, func(ctx context.Context, tools mcp.Tools) *schemas.ToolResult {
				return tools.Wait(ctx, p)
			})
		},
	}
	waitCmd.Flags().IntVar(&timeoutMs, "timeout", 0, "wait in milliseconds (default interaction.wait_timeout)")
	waitCmd.Flags().BoolVar(&hiddenOK, "hidden-ok", false, "succeed as soon as the element exists, visible or not")
	return waitCmd
}

func newExtractCmd(state *appState) *cobra.Command {
	var maxLength int
	extractCmd := &cobra.Command{
		Use:   "extract <tab> [selector-or-hint]",
		Short: "Extract the readable text of an element or the whole page",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := schemas.ExtractTextParams{TabID: args[0], MaxLength: maxLength}
			if len(args) == 2 {
				p.Selector = args[1]
			}
			return runTool(cmd, state, func(ctx context.Context, tools mcp.Tools) *schemas.ToolResult {
				return tools.ExtractText(ctx, p)
			})
		},
	}
	extractCmd.Flags().IntVar(&maxLength, "max", 0, "maximum characters returned (default interaction.max_extract_length)")
	return extractCmd
}

func newInspectCmd(state *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <tab> [form-selector]",
		Short: "List the controls of a form",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := schemas.InspectFormParams{TabID: args[0]}
			if len(args) == 2 {
				p.FormSelector = args[1]
			}
			return runTool(cmd, state, func(ctx context.Context, tools mcp.Tools) *schemas.ToolResult {
				return tools.InspectForm(ctx, p)
			})
		},
	}
}
