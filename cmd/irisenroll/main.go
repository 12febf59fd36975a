package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/osvaldoandrade/irisenroll/internal/metrics"
	"github.com/osvaldoandrade/irisenroll/internal/services"
	"github.com/osvaldoandrade/irisenroll/pkg/app"
	"github.com/osvaldoandrade/irisenroll/pkg/config"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

// flagValues holds the command-line overrides layered over the config file.
type flagValues struct {
	configPath      string
	dataDir         string
	tempDir         string
	nCores          int
	pattern         string
	failurePolicy   string
	extractor       string
	extractorCmd    string
	logLevel        string
	metricsTextfile string
	metricsAddr     string
	redisAddr       string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	root := newRootCmd(newUI(), &flagValues{})
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(u *ui, fv *flagValues) *cobra.Command {
	root := &cobra.Command{
		Use:   "irisenroll",
		Short: "Batch iris template enrollment",
		Long:  "irisenroll extracts iris templates from a directory of eye images and stores one MAT-file per image.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnroll(cmd, u, fv)
		},
	}
	root.SetHelpTemplate(helpTemplate(u))
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.SetGlobalNormalizationFunc(underscoreToDash)

	pf := root.PersistentFlags()
	pf.StringVar(&fv.configPath, "config", getenv("IRISENROLL_CONFIG_PATH", ""), "Path to YAML config")
	pf.StringVar(&fv.dataDir, "data-dir", "", "Directory holding the source images")
	pf.StringVar(&fv.tempDir, "temp-dir", "", "Directory receiving the templates")
	pf.IntVar(&fv.nCores, "n-cores", 0, "Number of worker processes (default: all CPUs)")
	pf.StringVar(&fv.pattern, "pattern", "", "Filename glob selecting source images (default \"*_1_*.jpg\")")
	pf.StringVar(&fv.failurePolicy, "failure-policy", "", "isolate or abort")
	pf.StringVar(&fv.extractor, "extractor", "", "Extractor kind: builtin or command")
	pf.StringVar(&fv.extractorCmd, "extractor-command", "", "External extractor program (kind=command)")
	pf.StringVar(&fv.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&fv.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file at the end of the run")
	pf.StringVar(&fv.metricsAddr, "metrics-addr", "", "Serve /metrics on this address during the run")
	pf.StringVar(&fv.redisAddr, "redis-addr", "", "Redis address of the run ledger")

	enroll := &cobra.Command{
		Use:   "enroll",
		Short: "Enroll every matching image (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnroll(cmd, u, fv)
		},
	}

	root.AddCommand(enroll, newInspectCmd(u), newRunsCmd(u, fv))
	return root
}

func underscoreToDash(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// loadConfig reads the config file, then applies the flags the user set.
func loadConfig(cmd *cobra.Command, fv *flagValues) (*config.Config, error) {
	cfg, err := config.LoadConfigOptional(fv.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = fv.dataDir
	}
	if flags.Changed("temp-dir") {
		cfg.TempDir = fv.tempDir
	}
	if flags.Changed("n-cores") {
		cfg.NCores = fv.nCores
	}
	if flags.Changed("pattern") {
		cfg.Pattern = fv.pattern
	}
	if flags.Changed("failure-policy") {
		cfg.FailurePolicy = fv.failurePolicy
	}
	if flags.Changed("extractor") {
		cfg.Extractor.Kind = fv.extractor
	}
	if flags.Changed("extractor-command") {
		cfg.Extractor.Command = fv.extractorCmd
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.TextfilePath = fv.metricsTextfile
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.ListenAddr = fv.metricsAddr
	}
	if flags.Changed("redis-addr") {
		cfg.Ledger.RedisAddr = fv.redisAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runEnroll(cmd *cobra.Command, u *ui, fv *flagValues) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, fv)
	if err != nil {
		fmt.Fprintln(os.Stderr, u.err("[ERROR]"), err)
		return err
	}

	out := services.Output{
		Stdout:       os.Stdout,
		Progress:     os.Stderr,
		ShowProgress: term.IsTerminal(int(os.Stderr.Fd())),
	}
	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(os.Stderr))
	spin.Suffix = " Preparing enrollment..."
	if out.ShowProgress {
		spin.Start()
	}
	application, err := app.NewApplication(ctx, cfg, app.WithOutput(out))
	spin.Stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, u.err("[ERROR]"), "init:", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Close(shutdownCtx)
	}()

	if cfg.Metrics.ListenAddr != "" {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, cfg.Metrics.ListenAddr, application.Logger); err != nil {
				application.Logger.Warn("metrics listener stopped", "err", err)
			}
		}()
	}

	summary, err := application.Enrollment.Run(ctx)
	switch {
	case err == nil:
		fmt.Fprintf(os.Stderr, "%s %d templates written to %s %s\n", u.ok("[OK]"), summary.Enrolled, cfg.TempDir, u.dim("(run "+summary.RunID+")"))
		return nil
	case errors.Is(err, services.ErrItemsFailed):
		fmt.Fprintln(os.Stderr, u.err("[ERROR]"), err, u.dim("(run "+summary.RunID+")"))
	case summary != nil:
		fmt.Fprintln(os.Stderr, u.warn("[WARN]"), err, u.dim("(run "+summary.RunID+")"))
	default:
		fmt.Fprintln(os.Stderr, u.err("[ERROR]"), err)
	}
	return err
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func helpTemplate(u *ui) string {
	title := u.title("irisenroll")
	return fmt.Sprintf(`%s: batch iris template enrollment

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Examples:
  irisenroll --data_dir ../CASIA1/ --temp_dir ./templates/CASIA1/ --n_cores 8
  irisenroll enroll --extractor command --extractor-command ./extract_features.py
  irisenroll inspect templates/CASIA1/001_1_1.jpg.mat
  irisenroll runs show 6f1c2a4e-...

`, title)
}
