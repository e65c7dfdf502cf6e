package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"secure-scrub/internal/batch"
	"secure-scrub/internal/config"
	"secure-scrub/internal/domain"
	"secure-scrub/internal/inspect"
	"secure-scrub/internal/jobs"
)

type globalOptions struct {
	configFile string
	verbose    bool
	quiet      bool
}

type runOptions struct {
	replace    bool
	noClean    bool
	noOptimize bool
	workers    int
	reportFile string
}

func (a *App) rootCommand() *cobra.Command {
	global := &globalOptions{}
	opts := &runOptions{}

	root := &cobra.Command{
		Use:   "scrub [flags] <file|dir>...",
		Short: "Strip metadata from and optimize PDF, PNG and JPEG files",
		Long: `scrub removes identifying metadata from PDF, PNG and JPEG files and then
recompresses them, keeping whichever result is smaller.

Each input produces a sibling file named <stem>_<suffix>.<ext>, where the
suffix is cleaned_opt, cleaned or opt depending on the enabled stages.
With --replace the original is securely erased and replaced instead.

Directories are walked recursively. Symlinks are never followed.`,
		Example: `  scrub report.pdf
  scrub -w 4 ~/Pictures/export
  scrub --replace --no-optimize scan.jpg
  scrub doctor
  scrub inspect report_cleaned_opt.pdf`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("at least one file or directory is required (see --help)")
			}
			return a.runBatch(cmd, global, opts, args)
		},
	}
	root.SetVersionTemplate("scrub {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&global.configFile, "config", "", "YAML settings file (default $SCRUB_CONFIG or ./scrub.yaml)")
	pf.BoolVarP(&global.verbose, "verbose", "v", false, "debug logging including every external command")
	pf.BoolVarP(&global.quiet, "quiet", "q", false, "no progress bar or result table")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	f := root.Flags()
	f.BoolVarP(&opts.replace, "replace", "r", false, "replace originals in place (default writes a sibling copy)")
	f.BoolVar(&opts.noClean, "no-clean", false, "skip metadata removal (optimize only)")
	f.BoolVar(&opts.noOptimize, "no-optimize", false, "skip optimization (clean only)")
	f.IntVarP(&opts.workers, "workers", "w", 0, "files processed in parallel (default from settings)")
	f.StringVar(&opts.reportFile, "report", "", "write the batch result and events as JSON to this file")
	root.MarkFlagsMutuallyExclusive("no-clean", "no-optimize")

	root.AddCommand(
		a.doctorCommand(global),
		a.inspectCommand(),
		a.configCommand(),
	)
	return root
}

func (a *App) runBatch(cmd *cobra.Command, global *globalOptions, opts *runOptions, targets []string) error {
	settings, logger, err := a.loadSettings(global)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cmd.Flags().Changed("workers") {
		settings.Workers = opts.workers
		if err := config.Validate(settings); err != nil {
			return err
		}
	}

	mode := domain.ModeCopy
	if opts.replace {
		mode = domain.ModeReplace
	}
	ops := domain.Operations{Clean: !opts.noClean, Optimize: !opts.noOptimize}

	progress := newProgressView(a.stderr, !global.quiet && !global.verbose)
	orchestrator := a.newBatch(settings, logger)
	if global.verbose {
		orchestrator.Events().Subscribe(func(event jobs.Event) {
			if event.Type == jobs.EventTypeStage {
				printInfo(a.stderr, "%s: %s", displayPath(event.Path), event.Stage)
			}
		})
	}
	result, err := orchestrator.Run(cmd.Context(), batch.Request{
		Targets:    targets,
		Mode:       mode,
		Operations: ops,
		Verbose:    global.verbose,
		OnProgress: progress.update,
	})
	progress.finish()
	if err != nil {
		var unavailable *batch.ToolUnavailableError
		if errors.As(err, &unavailable) {
			renderDiagnostics(a.stderr, domain.DiagnosticReport{Items: unavailable.Missing}, a.goos, a.available)
		}
		return err
	}

	if !global.quiet {
		renderOutcomes(a.stdout, result)
		renderSummary(a.stdout, result)
	}
	if cmd.Context().Err() != nil {
		printWarning(a.stderr, "Interrupted; unfinished files were left untouched")
	}

	if opts.reportFile != "" {
		report := runReport{
			GeneratedAt: time.Now().UTC(),
			Mode:        mode,
			Operations:  ops,
			Settings:    settings,
			Result:      result,
			Events:      orchestrator.Events().Since(0),
		}
		if err := writeReport(opts.reportFile, report); err != nil {
			return &exitError{code: ExitFailures, err: err}
		}
		if !global.quiet {
			printInfo(a.stdout, "Report written to %s", opts.reportFile)
		}
	}

	a.code = result.ExitCode()
	return nil
}

func (a *App) doctorCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and the staging directory",
		Long: `doctor checks every external tool scrub may call, the staging directory
and its free space. For missing tools it prints install commands for the
package managers of this system; nothing is installed automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, logger, err := a.loadSettings(global)
			if err != nil {
				return err
			}
			defer logger.Sync()

			report := a.checker.Run(settings, domain.AllOperations(), domain.ModeReplace)
			renderDiagnostics(a.stdout, report, a.goos, a.available)
			if report.HasFailures {
				return fmt.Errorf("%d required check(s) failed", len(report.Failures()))
			}
			return nil
		},
	}
}

func (a *App) inspectCommand() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "inspect <file>...",
		Short: "List identifying metadata left in files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var unreadable, dirty int
			for i, path := range args {
				if i > 0 {
					fmt.Fprintln(a.stdout)
				}
				report, err := inspect.Inspect(path)
				if err != nil {
					printError(a.stdout, "%s: %v", path, err)
					unreadable++
					continue
				}
				renderInspection(a.stdout, report)
				if !report.Clean() {
					dirty++
				}
			}

			switch {
			case unreadable > 0:
				return &exitError{code: ExitFailures, err: fmt.Errorf("%d file(s) could not be inspected", unreadable)}
			case strict && dirty > 0:
				return &exitError{code: ExitFailures, err: fmt.Errorf("%d file(s) still carry metadata", dirty)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit 1 when any file still carries metadata")
	return cmd
}

func (a *App) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage settings files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default scrub.yaml and .env template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return a.initConfig(dir)
		},
	})
	return cmd
}

// initConfig writes starter files into dir without touching existing ones.
func (a *App) initConfig(dir string) error {
	store := config.NewYAMLStore(filepath.Join(dir, config.DefaultFileName))
	switch err := store.Create(config.DefaultSettings()); {
	case errors.Is(err, config.ErrExists):
		printWarning(a.stdout, "%s already exists, left untouched", store.Path())
	case err != nil:
		return fmt.Errorf("write %s: %w", store.Path(), err)
	default:
		printSuccess(a.stdout, "Created %s", store.Path())
	}

	envPath := filepath.Join(dir, ".env")
	f, err := os.OpenFile(envPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	switch {
	case errors.Is(err, os.ErrExist):
		printWarning(a.stdout, "%s already exists, left untouched", envPath)
		return nil
	case err != nil:
		return fmt.Errorf("write %s: %w", envPath, err)
	}
	defer f.Close()

	if _, err := f.WriteString(config.DotEnvTemplate); err != nil {
		return fmt.Errorf("write %s: %w", envPath, err)
	}
	printSuccess(a.stdout, "Created %s", envPath)
	return nil
}
