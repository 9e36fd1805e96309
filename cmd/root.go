// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/internal/browser/session"
	"github.com/xkilldash9x/tabpilot/internal/config"
	"github.com/xkilldash9x/tabpilot/internal/engine"
	"github.com/xkilldash9x/tabpilot/internal/mcp"
	"github.com/xkilldash9x/tabpilot/internal/observability"
)

// errOperationFailed is returned once a failed ToolResult has been printed, so
// the process exits non-zero without repeating the error.
var errOperationFailed = errors.New("operation failed")

// newTools builds the tool operations for a loaded configuration. Tests
// replace it to run commands without a browser.
var newTools = func(cfg config.Interface, logger *zap.Logger) mcp.Tools {
	browserCfg := cfg.Browser()
	registry := session.NewCDPRegistry(browserCfg.DebuggerURL, browserCfg.HandshakeTimeout, logger)
	gateway := session.NewGateway(browserCfg, cfg.Interaction().EvaluateTimeout, registry, logger)
	return engine.New(gateway, cfg.Interaction(), logger)
}

// appState carries what PersistentPreRunE loads to the subcommands.
type appState struct {
	cfg config.Interface
}

// NewRootCommand builds a fresh command tree. Every call returns independent
// flag state.
func NewRootCommand() *cobra.Command {
	state := &appState{}
	var (
		cfgFile     string
		debuggerURL string
		untrusted   bool
	)

	rootCmd := &cobra.Command{
		Use:           "tabpilot",
		Short:         "Tabpilot drives elements in an already running browser over the DevTools protocol.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return err
			}
			if debuggerURL != "" {
				cfg.SetBrowserDebuggerURL(debuggerURL)
			}
			if untrusted {
				cfg.SetBrowserTrustedInput(false)
			}
			state.cfg = cfg

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded.", zap.String("version", Version),
				zap.String("debugger_url", cfg.Browser().DebuggerURL))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.tabpilot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&debuggerURL, "debugger-url", "", "browser debugging endpoint (overrides browser.debugger_url)")
	rootCmd.PersistentFlags().BoolVar(&untrusted, "untrusted", false, "never dispatch browser-level input; use in-page events only")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newServeCmd(state),
		newTabsCmd(state),
		newNavigateCmd(state),
		newClickCmd(state),
		newTypeCmd(state),
		newWaitCmd(state),
		newExtractCmd(state),
		newInspectCmd(state),
	)
	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errOperationFailed) {
		if logger := observability.GetLogger(); logger != nil {
			logger.Debug("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// loadConfig reads path, or config.yaml from the working directory or
// ~/.tabpilot, then TABPILOT_* environment variables over the defaults.
func loadConfig(path string) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tabpilot"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("TABPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return config.NewConfigFromViper(v)
}
