package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/stellarlinkco/cordkit/internal/bot"
	"github.com/stellarlinkco/cordkit/internal/command"
	"github.com/stellarlinkco/cordkit/internal/config"
	"github.com/stellarlinkco/cordkit/internal/declare"
	"github.com/stellarlinkco/cordkit/internal/rest"
)

// BotFactory creates the bot used by sync and run (allows mocking in tests)
type BotFactory func(cfg *config.Config) (Runner, error)

// Runner is the part of bot.Bot the CLI drives.
type Runner interface {
	SyncCommands(ctx context.Context) ([]rest.ApplicationCommand, error)
	Run(ctx context.Context) error
}

// DefaultBotFactory validates cfg and creates a bot.Bot
func DefaultBotFactory(cfg *config.Config) (Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := bot.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return b, nil
}

var botFactory BotFactory = DefaultBotFactory

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCmd(),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cordkit",
		Short:        "cordkit - slash-command toolkit for chat platforms",
		SilenceUsage: true,
	}

	var file string
	compileCmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile command declarations and print the platform schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.OutOrStdout(), cmd.ErrOrStderr(), file)
		},
	}
	compileCmd.Flags().StringVarP(&file, "file", "f", "", "Declaration file or directory (defaults to commands.path)")

	var dryRun bool
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Replace the registered commands with the compiled declarations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), dryRun)
		},
	}
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the request body instead of sending it")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot (gateway, channels and cron)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and sample declarations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.OutOrStdout())
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show cordkit status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout())
		},
	}

	root.AddCommand(compileCmd, syncCmd, runCmd, initCmd, statusCmd)
	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)
	return cfg, nil
}

func compileDeclarations(cfg *config.Config, path string) ([]command.Option, error) {
	if path == "" {
		path = cfg.Commands.Path
	}
	tree, err := declare.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load declarations: %w", err)
	}
	return command.New(cfg.Commands.Limits).Compile(tree)
}

// reportCompileError writes a styled report when err is a compile error.
func reportCompileError(w io.Writer, err error) {
	if errors.Is(err, command.ErrUnsupportedFeature) || errors.Is(err, command.ErrUnsupportedParameterFeature) {
		fmt.Fprint(w, RenderCompileError(err))
	}
}

func runCompile(out, errOut io.Writer, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	options, err := compileDeclarations(cfg, path)
	if err != nil {
		reportCompileError(errOut, err)
		return err
	}
	return writeJSON(out, options)
}

func runSync(ctx context.Context, out, errOut io.Writer, dryRun bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if dryRun {
		options, err := compileDeclarations(cfg, "")
		if err != nil {
			reportCompileError(errOut, err)
			return err
		}
		return writeJSON(out, rest.ApplicationCommandsFrom(options))
	}

	b, err := botFactory(cfg)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cmds, err := b.SyncCommands(ctx)
	if err != nil {
		reportCompileError(errOut, err)
		return fmt.Errorf("sync commands: %w", err)
	}
	scope := "global"
	if cfg.Application.GuildID != "" {
		scope = "guild " + cfg.Application.GuildID
	}
	fmt.Fprintf(out, "Synced %d commands (%s)\n", len(cmds), scope)
	return nil
}

func runBot(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := botFactory(cfg)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return b.Run(ctx)
}

func runInit(out io.Writer) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created config: %s\n", cfgPath)
	} else {
		fmt.Fprintf(out, "Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir := cfg.Commands.Path
	if filepath.Ext(dir) != "" {
		dir = filepath.Dir(dir)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create commands dir: %w", err)
	}
	writeIfNotExists(out, filepath.Join(dir, "commands.yaml"), sampleDeclarations)

	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintf(out, "  1. Edit %s to set application.id and application.token\n", cfgPath)
	fmt.Fprintln(out, "  2. Or set CORDKIT_TOKEN and CORDKIT_APPLICATION_ID")
	fmt.Fprintln(out, "  3. Run 'cordkit sync --dry-run' to preview the commands")
	return nil
}

func runStatus(out io.Writer) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Config: %s\n", config.ConfigPath())
	fmt.Fprintf(out, "Application: %s\n", display(cfg.Application.ID))
	fmt.Fprintf(out, "Token: %s\n", mask(cfg.Application.Token))
	if cfg.Application.GuildID != "" {
		fmt.Fprintf(out, "Guild: %s\n", cfg.Application.GuildID)
	}
	fmt.Fprintf(out, "API: %s (v%d)\n", cfg.API.BaseURL, cfg.API.Version)
	fmt.Fprintf(out, "Commands: %s\n", cfg.Commands.Path)

	if options, err := compileDeclarations(cfg, ""); err != nil {
		fmt.Fprintf(out, "Compiled: error (%v)\n", err)
	} else {
		fmt.Fprintf(out, "Compiled: %d top-level commands\n", len(options))
	}

	if cfg.Cache.Enabled {
		fmt.Fprintf(out, "Cache: %s (ttl %s)\n", cfg.Cache.Backend, cfg.Cache.DefaultTTL)
	} else {
		fmt.Fprintln(out, "Cache: disabled")
	}
	fmt.Fprintf(out, "Platform: enabled=%v\n", cfg.Channels.Platform.Enabled)
	fmt.Fprintf(out, "Telegram: enabled=%v mirror=%v\n", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.MirrorCommands)
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func display(s string) string {
	if s == "" {
		return "not set"
	}
	return s
}

func mask(secret string) string {
	switch {
	case secret == "":
		return "not set"
	case len(secret) > 8:
		return secret[:4] + "..." + secret[len(secret)-4:]
	default:
		return "set"
	}
}

func writeIfNotExists(out io.Writer, path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Fprintf(out, "  Created: %s\n", path)
	}
}

const sampleDeclarations = `# Slash commands compiled by 'cordkit compile'.
commands:
  - name: ping
    description: Check that the bot is alive

  - group: admin
    description: Moderation tools
    children:
      - name: kick
        description: Remove a member from the server
        params:
          - name: member
            type: member
            description: Who to kick
          - name: reason
            type: string
            optional: true

  - name: color
    description: Pick a color
    params:
      - name: shade
        type: enum
        enum:
          name: Shade
          members: [red, green, blue]
`
