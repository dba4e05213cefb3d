package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/decisionrecords/internal"
	pkgconfig "github.com/starford/decisionrecords/pkg/config"
)

// loadConfig reads the optional config file named by --config and applies
// --workspace on top of it.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if dir := cmd.String("workspace"); dir != "" {
		cfg.Workspace.Path = dir
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "decision-record",
		Usage: "Create decision records and keep their status sections cross-linked",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "workspace",
				Aliases: []string{"w"},
				Usage:   "Directory to start workspace discovery from",
				Sources: cli.EnvVars("DECISION_RECORDS_WORKSPACE"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log at the configured level instead of warnings only",
			},
		},
		Commands: []*cli.Command{
			initCommand(),
			newCommand(),
			statusCommand("approve", []string{"accept", "approved", "promote"}, "Mark records as approved", approveRecords),
			statusCommand("proposed", []string{"propose", "demote"}, "Mark records as proposed", proposeRecords),
			linkCommand(),
			relationCommand("supersede", []string{"supercede"}, "Record that FROM is superseded by TO", supersedeRecord),
			relationCommand("deprecate", nil, "Record that FROM is deprecated by TO", deprecateRecord),
			relationCommand("amend", nil, "Record that FROM is amended by TO", amendRecord),
			listCommand(),
			checkCommand(),
			{
				Name:   "serve",
				Usage:  "Serve the read-only HTTP API, event stream and metrics",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the record tools over MCP on stdio",
				Action: serveMCP,
			},
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
