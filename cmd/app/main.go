package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mimir/internal"
	pkgconfig "github.com/starford/mimir/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}
	if cmd.Bool("no-aggregator") {
		opts = append(opts, internal.WithoutAggregator())
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func aggregate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunAggregate(ctx, cfg)
}

func rebuildIndex(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	userID := cmd.Int("user")
	if userID <= 0 {
		return fmt.Errorf("--user must be a positive user id")
	}
	return internal.RunRebuild(ctx, cfg, int64(userID))
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, cfg)
}

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file",
		Value:   "config/config.yaml",
		Sources: cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "mimir",
		Usage:  "Per-user knowledge base with document ingestion, semantic search, and RSS aggregation",
		Action: serve,
		Flags: []cli.Flag{
			configFlag,
			&cli.BoolFlag{
				Name:  "no-aggregator",
				Usage: "Disable the background feed aggregation loop",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "aggregate",
				Usage:  "Run one feed aggregation cycle and exit",
				Action: aggregate,
				Flags:  []cli.Flag{configFlag},
			},
			{
				Name:   "rebuild-index",
				Usage:  "Rebuild a user's vector index from their stored documents",
				Action: rebuildIndex,
				Flags: []cli.Flag{
					configFlag,
					&cli.IntFlag{
						Name:     "user",
						Usage:    "User id whose index to rebuild",
						Required: true,
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: mcp,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
