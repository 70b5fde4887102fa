package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Azure/ai-gateway/pkg/config"
	"github.com/Azure/ai-gateway/pkg/logger"
)

// commonFlags are shared by every command that builds the gateway.
type commonFlags struct {
	envFile  string
	logLevel string
	dataDir  string
	catalog  string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.envFile, "env-file", ".env", "Path to a .env file (ignored when missing)")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "Directory holding the gateway database")
	cmd.Flags().StringVar(&f.catalog, "catalog", "", "Provider catalog YAML used to seed an empty database")
}

// load reads configuration and applies flags that were set explicitly.
func (f *commonFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.envFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if cmd.Flags().Changed("catalog") {
		cfg.CatalogFile = f.catalog
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ai-gateway",
		Short:         "Route chat requests across LLM providers",
		Long:          `ai-gateway fronts several LLM providers behind one API, picks a model per request and records usage and cost per user.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(
		newServeCmd(),
		newMCPCmd(),
		newSeedCmd(),
		newCheckDockerfileCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ai-gateway %s\n", getVersion())
		},
	}
}

// setupLogging configures the global logger. The MCP transport owns stdout,
// so its logs all go to stderr.
func setupLogging(cfg *config.Config, stderrOnly bool) {
	lc := logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}
	if stderrOnly {
		lc.Stdout = os.Stderr
	}
	logger.Setup(lc)
}
