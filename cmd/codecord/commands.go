package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"tools.zach/dev/codecord/internal/config"
	"tools.zach/dev/codecord/internal/editor"
	"tools.zach/dev/codecord/internal/logger"
	"tools.zach/dev/codecord/internal/paths"
	"tools.zach/dev/codecord/internal/presence"
	"tools.zach/dev/codecord/internal/update"
)

// cliOptions holds flags shared by every command.
type cliOptions struct {
	dataDir string
}

func (o *cliOptions) dirs() paths.DataDir {
	return paths.DataDir{Root: o.dataDir}
}

// newRootCmd builds the command tree. Running the binary without a
// subcommand starts the daemon.
func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:   paths.BinaryName,
		Short: "Show what you're editing on Discord",
		Long: `Codecord mirrors the document focused in your editor to Discord Rich Presence.

Editors report the focused file by writing editor.json into the data
directory (or by calling "codecord focus") and toggle presence with
"codecord toggle".`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", defaultDataDir(), "Data directory for config, editor state, and logs")

	run := newRunCmd(opts)
	root.RunE = run.RunE
	root.Flags().AddFlagSet(run.Flags())

	// Subcommands (alphabetical)
	root.AddCommand(newFocusCmd(opts))
	root.AddCommand(run)
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newToggleCmd(opts))
	root.AddCommand(newVersionCmd())
	return root
}

// ///////////////////////////////////////////////
// run
// ///////////////////////////////////////////////

func newRunCmd(opts *cliOptions) *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the presence daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), daemonOptions{
				dataDir:    opts.dataDir,
				foreground: foreground,
				stderr:     cmd.ErrOrStderr(),
			})
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Also write logs and messages to stderr")
	return cmd
}

// ///////////////////////////////////////////////
// toggle
// ///////////////////////////////////////////////

func newToggleCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Turn Discord Rich Presence on or off",
		Long: `Toggle Discord Rich Presence.

With a daemon running the request is handed to it, which disconnects or
reconnects immediately. Otherwise the persisted setting is flipped and takes
effect on the next start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToggle(cmd.OutOrStdout(), opts.dirs())
		},
	}
}

func runToggle(out io.Writer, dirs paths.DataDir) error {
	if alive, pid := checkStalePID(dirs); alive {
		if err := editor.RequestCommand(dirs.Root, presence.ToggleCommand); err != nil {
			return err
		}
		fmt.Fprintf(out, "Toggle sent to daemon (pid %d).\n", pid)
		return nil
	}

	cfg, err := config.Load(dirs.Root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	enabled := !cfg.Presence.Enabled
	if err := config.SetEnabled(dirs.Root, enabled); err != nil {
		return err
	}
	fmt.Fprintf(out, "Discord Rich Presence %s. The daemon is not running.\n", onOff(enabled))
	return nil
}

func onOff(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// ///////////////////////////////////////////////
// focus
// ///////////////////////////////////////////////

func newFocusCmd(opts *cliOptions) *cobra.Command {
	var language, workspace string
	var clearDoc bool
	cmd := &cobra.Command{
		Use:   "focus [file]",
		Short: "Report the focused document",
		Long: `Write editor.json for editors without a codecord plugin.

"codecord focus main.go --workspace myproj" reports main.go as focused;
"codecord focus --clear" reports that nothing is focused.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var s editor.State
			switch {
			case clearDoc:
				if len(args) > 0 {
					return fmt.Errorf("--clear takes no file")
				}
			case len(args) == 0:
				return fmt.Errorf("a file is required unless --clear is set")
			default:
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return fmt.Errorf("resolve %s: %w", args[0], err)
				}
				s = editor.State{File: abs, LanguageID: language, WorkspaceFolder: workspace}
			}
			return editor.WriteState(opts.dirs().Editor(), s)
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "Editor language identifier, e.g. go or typescriptreact")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace folder name")
	cmd.Flags().BoolVar(&clearDoc, "clear", false, "Report that no document is focused")
	return cmd
}

// ///////////////////////////////////////////////
// status
// ///////////////////////////////////////////////

func newStatusCmd(opts *cliOptions) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, presence, and editor state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout(), opts.dirs(), lines)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of log lines to show (0 to hide)")
	return cmd
}

func runStatus(out io.Writer, dirs paths.DataDir, lines int) error {
	if alive, pid := checkStalePID(dirs); alive {
		fmt.Fprintf(out, "Daemon:    running (pid %d)\n", pid)
	} else {
		fmt.Fprintln(out, "Daemon:    not running")
	}

	cfg, err := config.Load(dirs.Root)
	if err != nil {
		fmt.Fprintf(out, "Config:    invalid (%v)\n", err)
	} else {
		fmt.Fprintf(out, "Presence:  %s\n", onOff(cfg.Presence.Enabled))
		fmt.Fprintf(out, "App ID:    %s\n", cfg.Discord.AppID)
		fmt.Fprintf(out, "Languages: %s\n", cfg.Languages.Source)
	}

	s, err := editor.ReadState(dirs.Editor())
	doc, active := s.Document()
	switch {
	case err != nil:
		fmt.Fprintf(out, "Editor:    unreadable (%v)\n", err)
	case !active:
		fmt.Fprintln(out, "Editor:    no active document")
	default:
		fmt.Fprintf(out, "Editor:    %s", doc.Path)
		if doc.WorkspaceFolder != "" {
			fmt.Fprintf(out, " [%s]", doc.WorkspaceFolder)
		}
		if s.UpdatedAt > 0 {
			fmt.Fprintf(out, " (updated %s)", time.Unix(s.UpdatedAt, 0).Format(time.DateTime))
		}
		fmt.Fprintln(out)
	}

	if n := len(editor.PendingCommands(dirs.Root)); n > 0 {
		fmt.Fprintf(out, "Pending:   %d command request(s)\n", n)
	}

	if lines > 0 {
		tail, err := logger.ReadTail(dirs.Log(), lines)
		if err == nil && tail != "" {
			fmt.Fprintf(out, "\nRecent log:\n%s\n", tail)
		}
	}
	return nil
}

// ///////////////////////////////////////////////
// version
// ///////////////////////////////////////////////

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Show version information",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ver := resolveVersion()
			fmt.Fprintf(out, "codecord %s\n", ver)
			fmt.Fprintf(out, "  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "  Go: %s\n", runtime.Version())
			if !check {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			res, err := update.Latest(ctx, ver)
			if err != nil {
				return fmt.Errorf("check for updates: %w", err)
			}
			if res.Newer {
				fmt.Fprintf(out, "A newer release is available: %s\n", res.Latest)
			} else {
				fmt.Fprintln(out, "You are on the latest release.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Check for a newer release")
	return cmd
}
