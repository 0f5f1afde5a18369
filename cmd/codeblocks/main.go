package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/idoggk/moveo/internal/app"
	"github.com/idoggk/moveo/internal/config"
	"github.com/idoggk/moveo/internal/database"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "codeblocks",
		Short:        "Mentor/student collaborative code-block server",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CODEBLOCKS_CONFIG_FILE"),
		"path to a JSON or YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	blocksCmd := &cobra.Command{
		Use:   "blocks",
		Short: "Inspect the code-block catalog",
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List code blocks, seeding the catalog when empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListBlocks(cmd.Context(), configPath, cmd.OutOrStdout())
		},
	}
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one code block's template and solution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShowBlock(cmd.Context(), configPath, args[0], cmd.OutOrStdout())
		},
	}

	blocksCmd.AddCommand(listCmd, showCmd)
	rootCmd.AddCommand(serveCmd, blocksCmd)
	return rootCmd
}

// runServe loads configuration, installs the logger and serves until
// SIGINT or SIGTERM.
func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfigWithPrecedence(configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func openCatalog(ctx context.Context, configPath string) (*database.Store, error) {
	cfg, err := config.LoadConfigWithPrecedence(configPath)
	if err != nil {
		return nil, err
	}

	store, err := database.Open(cfg.Database.StoreConfig(), zap.NewNop())
	if err != nil {
		return nil, err
	}
	if _, err := store.SeedDefaults(ctx, database.DefaultBlocks()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func runListBlocks(ctx context.Context, configPath string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openCatalog(ctx, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	blocks, err := store.ListBlocks(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE")
	for _, b := range blocks {
		fmt.Fprintf(tw, "%s\t%s\n", b.ID, b.Title)
	}
	return tw.Flush()
}

func runShowBlock(ctx context.Context, configPath, id string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := openCatalog(ctx, configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	block, err := store.GetBlock(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "# %s (%s)\n\n## template\n%s\n\n## solution\n%s\n", block.Title, block.ID, block.Template, block.Solution)
	return nil
}
