package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pfrederiksen/drf-pp/internal/acquire"
	"github.com/pfrederiksen/drf-pp/internal/browser"
	"github.com/pfrederiksen/drf-pp/internal/config"
	"github.com/pfrederiksen/drf-pp/internal/crypto"
	"github.com/pfrederiksen/drf-pp/internal/logger"
	"github.com/pfrederiksen/drf-pp/internal/metrics"
	"github.com/pfrederiksen/drf-pp/internal/racedate"
	"github.com/pfrederiksen/drf-pp/internal/storage"
	"github.com/pfrederiksen/drf-pp/internal/train"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

var (
	flagDate        string
	flagDownloadDir string
	flagCSV         string
	flagModel       string
	flagEpochs      int
	flagBatchSize   int
	flagSeed        int64
	flagHeadless    bool
	flagChromePath  string
	flagDataDir     string
	flagFormat      string
	flagMetricsFile string
	flagLogFormat   string
	flagVerbose     bool
)

// newLauncher builds the browser launcher for a config. Tests replace it.
var newLauncher = func(cfg *config.Config) acquire.Launcher {
	return func(ctx context.Context) (browser.Browser, error) {
		chrome, err := browser.Launch(ctx, browser.Options{
			ExecPath:    cfg.ChromePath,
			Headless:    cfg.Headless,
			StepTimeout: cfg.StepTimeout,
		})
		if err != nil {
			return nil, err
		}
		return chrome, nil
	}
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drf-pp",
		Short: "Download DRF past-performance programs and train a race winner classifier",
		Long: `A CLI tool that downloads the DRF daily racing program PDF through a
browser session and trains an LSTM win/lose classifier on race feature data.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagDataDir, "data-dir", "", "Data directory for run reports (default $DRF_DATA_DIR or "+config.DefaultDataDir+")")
	pf.StringVar(&flagFormat, "format", "text", "Output format: text or json")
	pf.StringVar(&flagMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: console or json")
	pf.BoolVar(&flagVerbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(newRunCmd(), newAcquireCmd(), newTrainCmd(), newSealCmd(), newReportCmd())
	return cmd
}

func addAcquireFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagDate, "date", "", "Race date, e.g. 2024-12-14 (default today)")
	cmd.Flags().StringVar(&flagDownloadDir, "download-dir", "", "Directory for DRFPPS.pdf (default $DRF_DOWNLOAD_DIR or "+config.DefaultDownloadDir+")")
	cmd.Flags().BoolVar(&flagHeadless, "headless", false, "Run Chrome without a window")
	cmd.Flags().StringVar(&flagChromePath, "chrome-path", "", "Chrome executable (default $DRF_CHROME_PATH or auto-detect)")
}

func addTrainFlags(cmd *cobra.Command) {
	defaults := train.DefaultHyperparams()
	cmd.Flags().StringVar(&flagCSV, "csv", "", "Training CSV with a 'winner' column (default $DRF_CSV_PATH)")
	cmd.Flags().StringVar(&flagModel, "model", "", "Model output path, msgpack format (default $DRF_MODEL_PATH or "+config.DefaultModelPath+")")
	cmd.Flags().IntVar(&flagEpochs, "epochs", defaults.Epochs, "Training epochs")
	cmd.Flags().IntVar(&flagBatchSize, "batch-size", defaults.BatchSize, "Mini-batch size")
	cmd.Flags().Int64Var(&flagSeed, "seed", defaults.Seed, "Random seed for the split, weights and shuffling")
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Download the program PDF, then train the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, "run", func(ctx context.Context, s *session) error {
				if err := s.acquire(ctx); err != nil {
					return err
				}
				return s.train(ctx)
			})
		},
	}
	addAcquireFlags(cmd)
	addTrainFlags(cmd)
	return cmd
}

func newAcquireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Download the program PDF only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, "acquire", func(ctx context.Context, s *session) error {
				return s.acquire(ctx)
			})
		},
	}
	addAcquireFlags(cmd)
	return cmd
}

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the model only",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, "train", func(ctx context.Context, s *session) error {
				return s.train(ctx)
			})
		},
	}
	addTrainFlags(cmd)
	return cmd
}

func newSealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "Encrypt a secret from stdin for use as DRF_PASSWORD",
		Long: `Reads one line from stdin and prints it encrypted with DRF_SECRET_KEY.
Put the printed enc:... value in .env as DRF_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := crypto.NewEncryptor(os.Getenv("DRF_SECRET_KEY"))
			if enc == nil {
				return fmt.Errorf("DRF_SECRET_KEY must be set: %w", crypto.ErrNoPassphrase)
			}

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading secret: %w", err)
			}
			secret := strings.TrimRight(line, "\r\n")
			if secret == "" {
				return fmt.Errorf("no secret on stdin")
			}

			sealed, err := enc.Seal(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show the report of the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, format, err := setup(cmd)
			if err != nil {
				return err
			}
			store, err := storage.New(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("initializing storage: %w", err)
			}
			report, err := store.LoadReport()
			if err != nil {
				return err
			}
			if report == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}
			return WriteOutput(cmd.OutOrStdout(), report, format, flagVerbose)
		},
	}
}

// session carries the state of one run/acquire/train invocation
type session struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	report  *storage.RunReport
	stdin   io.Reader
	stdout  io.Writer
}

func (s *session) acquire(ctx context.Context) error {
	if err := s.cfg.ValidateAcquire(); err != nil {
		return err
	}
	date, err := racedate.Parse(flagDate)
	if err != nil {
		return err
	}
	s.report.TargetDate = date.Format("2006-01-02")

	a := acquire.New(newLauncher(s.cfg), acquire.NewConsolePrompter(s.stdin, s.stdout))
	a.Metrics = s.metrics
	a.OnStep = func(step string, d time.Duration, _ error) {
		s.report.StepTimings[step] = d.Round(time.Millisecond).String()
	}

	path, err := a.Acquire(ctx, acquire.Credentials{
		Username: s.cfg.Username,
		Password: s.cfg.Password,
	}, date, s.cfg.DownloadDir)
	if err != nil {
		return fmt.Errorf("acquiring program: %w", err)
	}

	s.report.PDFPath = path
	if info, err := os.Stat(path); err == nil {
		s.report.PDFBytes = info.Size()
	}
	return nil
}

func (s *session) train(ctx context.Context) error {
	if err := s.cfg.ValidateTrain(); err != nil {
		return err
	}
	s.report.CSVPath = s.cfg.CSVPath

	t := train.New(s.cfg.ModelPath, train.Hyperparams{
		Epochs:          flagEpochs,
		BatchSize:       flagBatchSize,
		ValidationSplit: train.DefaultHyperparams().ValidationSplit,
		TestFraction:    train.DefaultHyperparams().TestFraction,
		Seed:            flagSeed,
	})
	t.Metrics = s.metrics

	res, err := t.Run(ctx, s.cfg.CSVPath)
	if err != nil {
		return fmt.Errorf("training model: %w", err)
	}

	s.report.Samples = res.Samples
	s.report.TestLoss = res.TestLoss
	s.report.TestAcc = res.TestAccuracy
	s.report.ModelPath = res.ModelPath
	return nil
}

// setup loads config, applies flag overrides and configures logging
func setup(cmd *cobra.Command) (*config.Config, OutputFormat, error) {
	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON {
		return nil, "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", flagFormat)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, value string) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst = value
		}
	}
	override("data-dir", &cfg.DataDir, flagDataDir)
	override("download-dir", &cfg.DownloadDir, flagDownloadDir)
	override("csv", &cfg.CSVPath, flagCSV)
	override("model", &cfg.ModelPath, flagModel)
	override("chrome-path", &cfg.ChromePath, flagChromePath)
	override("metrics-file", &cfg.MetricsFile, flagMetricsFile)
	override("log-format", &cfg.LogFormat, flagLogFormat)
	if flags.Lookup("headless") != nil && flags.Changed("headless") {
		cfg.Headless = flagHeadless
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if flagVerbose {
		level = logger.LevelDebug
	}
	logger.SetDefault(logger.NewWithFormat(level, cmd.ErrOrStderr(), logger.Format(cfg.LogFormat)))

	return cfg, format, nil
}

// execute wraps a command body with config, metrics, the run report and output
func execute(cmd *cobra.Command, name string, body func(ctx context.Context, s *session) error) error {
	cfg, format, err := setup(cmd)
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	s := &session{
		cfg:     cfg,
		metrics: metrics.New(),
		report: &storage.RunReport{
			RunID:       uuid.NewString(),
			Command:     name,
			StartedAt:   time.Now().UTC(),
			StepTimings: make(map[string]string),
		},
		stdin:  cmd.InOrStdin(),
		stdout: cmd.OutOrStdout(),
	}

	logger.Info("Run started", logger.Fields{"run_id": s.report.RunID, "command": name})
	runErr := body(cmd.Context(), s)
	if runErr != nil {
		s.report.Error = runErr.Error()
	}

	if err := store.SaveReport(s.report); err != nil {
		logger.Warn("Saving run report", logger.Fields{"error": err.Error()})
	}
	if err := s.metrics.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Warn("Writing metrics textfile", logger.Fields{"path": cfg.MetricsFile, "error": err.Error()})
	}
	if err := WriteOutput(cmd.OutOrStdout(), s.report, format, flagVerbose); err != nil {
		logger.Warn("Writing output", logger.Fields{"error": err.Error()})
	}
	return runErr
}

// Execute runs the CLI and exits with ExitError on failure
func Execute() {
	ctx, stop := signalContext()
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(ExitError)
	}
}
