package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gjcox/PhotoBackupUtils/internal/bulkcopy"
	"github.com/gjcox/PhotoBackupUtils/internal/config"
	"github.com/gjcox/PhotoBackupUtils/internal/engine"
	"github.com/gjcox/PhotoBackupUtils/internal/filesystem"
	"github.com/gjcox/PhotoBackupUtils/internal/metadata"
)

// Variables for version embedding via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	ExitCodeSuccess     = 0
	ExitCodeFileErrors  = 1
	ExitCodeConfigError = 2
	ExitCodeInterrupt   = 3
	ExitCodeEngineError = 4
	ExitCodeUnknown     = 10
)

var (
	opts   *config.Options
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pbu <command>",
	Short: "File-management utilities for photo backups",
	Long: `pbu manages the file side of a photo backup: collision-avoiding copies
and moves, duplicate detection by suffix convention and timestamps,
set-difference copies between two directories, canonical-date rewriting,
and cutoff bulk copies.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var copyCmd = &cobra.Command{
	Use:   "copy <glob|file>...",
	Short: "Copy or move files into --dest under collision-free names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubcommand(cmd, func(ctx context.Context, eng *engine.Engine) (engine.Report, error) {
			return eng.RunCopy(ctx, args)
		})
	},
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe <dir>",
	Short: "Find and resolve suffix-sibling duplicates inside a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubcommand(cmd, func(ctx context.Context, eng *engine.Engine) (engine.Report, error) {
			return eng.RunDedupe(ctx, args[0])
		})
	},
}

var uniqueCmd = &cobra.Command{
	Use:   "unique <dirP> <dirQ>",
	Short: "Copy the files of dirP absent from dirQ into --dest",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubcommand(cmd, func(ctx context.Context, eng *engine.Engine) (engine.Report, error) {
			return eng.RunUnique(ctx, args[0], args[1])
		})
	},
}

var redateCmd = &cobra.Command{
	Use:   "redate <glob|file>...",
	Short: "Rewrite stored dates to each file's canonical date",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubcommand(cmd, func(ctx context.Context, eng *engine.Engine) (engine.Report, error) {
			return eng.RunRedate(ctx, args)
		})
	},
}

var cutoffCmd = &cobra.Command{
	Use:   "cutoff <src> <dst>",
	Short: "Copy a tree, optionally only files dated at or after --since",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSubcommand(cmd, func(ctx context.Context, eng *engine.Engine) (engine.Report, error) {
			return eng.RunCutoff(ctx, args[0], args[1])
		})
	},
}

// runSubcommand finishes configuration, composes the dependencies and runs
// one engine operation, mapping the outcome to an exit code. Only the active
// command's flags are bound, so another subcommand's identically named flag
// default can never clobber a value at Unmarshal time.
func runSubcommand(cmd *cobra.Command, run func(context.Context, *engine.Engine) (engine.Report, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, flags := range []*pflag.FlagSet{rootCmd.PersistentFlags(), cmd.Flags()} {
		if err := viper.BindPFlags(flags); err != nil {
			fmt.Fprintf(os.Stderr, "Internal error binding flags to viper: %v\n", err)
			os.Exit(ExitCodeConfigError)
			return nil
		}
	}
	if err := viper.Unmarshal(&opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error unmarshalling configuration: %v\n", err)
		os.Exit(ExitCodeConfigError)
		return nil // Unreachable
	}
	if err := opts.ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(ExitCodeConfigError)
		return nil
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	logger.Debug("configuration loaded and validated", "options", *opts)

	fs := filesystem.NewRealFileSystem()

	// Reads go through goexif in-process; writes need exiftool. The provider
	// is composed either way, and the redate write path surfaces a missing
	// tool per file.
	exiftool := metadata.NewExifTool(opts.ExifTool)
	meta := metadata.Chain{
		Reader: metadata.NewExifReader(fs),
		Writer: exiftool,
	}
	if !exiftool.Available() {
		logger.Debug("exiftool not found on PATH, date rewriting will fail per file")
	}

	tree := bulkcopy.NewExecCopier(opts.CopyTool, logger)

	eng := engine.NewEngine(opts, fs, meta, tree, logger)

	startTime := time.Now()
	report, err := run(ctx, eng)
	report.Duration = time.Since(startTime)

	report.PrintSummary(os.Stdout)

	if ctx.Err() != nil {
		logger.Info("process interrupted")
		os.Exit(ExitCodeInterrupt)
		return nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(ExitCodeInterrupt)
			return nil
		}
		logger.Error("run failed", "error", err)
		os.Exit(ExitCodeEngineError)
		return nil
	}
	if report.Errored > 0 {
		logger.Warn("completed with file errors")
		os.Exit(ExitCodeFileErrors)
		return nil
	}

	logger.Info("completed successfully")
	return nil
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(ExitCodeUnknown)
	}
}

func init() {
	opts = &config.Options{}
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigFile, "config", "c", "", "Configuration file path (default: .pbu.yaml)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose debug logging")
	pf.BoolVarP(&opts.Recurse, "recurse", "r", false, "Descend into subdirectories")
	pf.StringSliceVar(&opts.CaptureExtensions, "capture-extensions", nil, "File extensions treated as capture-time-bearing (default built-in set)")
	pf.StringVar(&opts.ExifTool, "exiftool", "", "Path to the exiftool binary (default: found on PATH)")

	copyCmd.Flags().StringVarP(&opts.Dest, "dest", "d", ".", "Destination directory")
	copyCmd.Flags().BoolVar(&opts.Move, "move", false, "Remove each source file after a successful copy")
	copyCmd.Flags().BoolVar(&opts.KeepNumbering, "keep-numbering", false, "Keep existing _N suffixes instead of stripping before allocation")
	copyCmd.Flags().BoolVar(&opts.NewTimestamps, "new-timestamps", false, "Stamp copies with the transfer time instead of the source's")
	copyCmd.Flags().BoolVar(&opts.ReportOnly, "report", false, "Resolve destination names without writing anything")

	dedupeCmd.Flags().BoolVar(&opts.KeepDuplicates, "keep", false, "Relocate duplicates into a Duplicates subdirectory instead of deleting")
	dedupeCmd.Flags().BoolVar(&opts.Watch, "watch", false, "Keep watching the directory and re-run on changes")
	dedupeCmd.Flags().DurationVar(&opts.Debounce, "debounce", 300*time.Millisecond, "Quiet period before a watch-mode re-run")

	uniqueCmd.Flags().StringVarP(&opts.Dest, "dest", "d", ".", "Destination directory")
	uniqueCmd.Flags().BoolVar(&opts.DefaultToModified, "default-to-modified", false, "Fall back to the modified time instead of the created time")

	redateCmd.Flags().BoolVar(&opts.UseLatest, "use-latest", false, "Pick the latest candidate date instead of the earliest")
	redateCmd.Flags().BoolVar(&opts.IgnoreCreated, "ignore-created", false, "Exclude the created time from the candidate set")
	redateCmd.Flags().BoolVar(&opts.ReportOnly, "report", false, "Show what would be rewritten without writing")

	cutoffCmd.Flags().StringVar(&opts.Since, "since", "", "Copy only files dated at or after this instant (RFC3339 or YYYY-MM-DD)")
	cutoffCmd.Flags().IntVar(&opts.Retries, "retries", 0, "Bulk-copy retry count")
	cutoffCmd.Flags().IntVar(&opts.WaitSeconds, "wait", 0, "Seconds to wait between bulk-copy retries")
	cutoffCmd.Flags().StringVar(&opts.CopyTool, "copy-tool", "", "rsync-compatible bulk-copy binary (default: rsync)")
	cutoffCmd.Flags().BoolVar(&opts.DefaultToModified, "default-to-modified", false, "Fall back to the modified time instead of the created time")

	rootCmd.AddCommand(copyCmd, dedupeCmd, uniqueCmd, redateCmd, cutoffCmd)

	rootCmd.SetVersionTemplate(fmt.Sprintf("pbu version %s (commit: %s, built: %s)\n", version, commit, date))
}

// initConfig reads in the config file and ENV variables if set.
func initConfig() {
	v := viper.New()

	v.SetDefault("debounce", "300ms")
	v.SetDefault("dest", ".")

	v.AutomaticEnv()
	v.SetEnvPrefix("PBU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading specified config file %s: %v\n", opts.ConfigFile, err)
			os.Exit(ExitCodeConfigError)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(".pbu")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", v.ConfigFileUsed(), err)
				os.Exit(ExitCodeConfigError)
			}
			// Not found is fine when no file was requested explicitly.
		}
	}

	// Env and file values merge into the global viper; the active command's
	// flags are bound on top in runSubcommand, keeping the precedence
	// flags > env > file > defaults.
	if err := viper.MergeConfigMap(v.AllSettings()); err != nil {
		fmt.Fprintf(os.Stderr, "Internal error merging viper settings: %v\n", err)
		os.Exit(ExitCodeConfigError)
	}
}

func main() {
	Execute()
}
