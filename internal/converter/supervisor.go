package converter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agilentuimf/internal/logging"
	"agilentuimf/internal/services"
)

const (
	// DefaultMaxRuntime is the hard ceiling for one converter run.
	DefaultMaxRuntime = 180 * time.Minute
	// DefaultPollInterval is how long each wait on the converter lasts.
	DefaultPollInterval = 2 * time.Second

	progressCheckInterval = 30 * time.Second
	initialStatusInterval = 5 * time.Minute
	statusIntervalStep    = time.Minute
	maxStatusInterval     = 30 * time.Minute
)

// Job describes one converter invocation.
type Job struct {
	Executable string
	// SourceDir is the .d directory passed as the first argument.
	SourceDir string
	// OutputDir receives the converter output and is the second argument.
	OutputDir string
	// ConsolePath captures the combined converter output.
	ConsolePath string
	// CleanupDir is removed after the converter exits when set.
	CleanupDir string
}

// Result reports how a converter run ended.
type Result struct {
	ExitCode      int
	TimedOut      bool
	Canceled      bool
	Percent       float64
	Errors        []string
	Elapsed       time.Duration
	StatusReports int
}

// DirectoryRemover deletes directory trees.
type DirectoryRemover interface {
	RemoveDirectory(path string) error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLauncher overrides the process launcher.
func WithLauncher(l Launcher) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.launcher = l
		}
	}
}

// WithClock overrides the time source used for deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxRuntime sets the runtime ceiling.
func WithMaxRuntime(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.maxRuntime = d
		}
	}
}

// WithPollInterval sets the wait slice between checks.
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithListener forwards console progress and errors.
func WithListener(l Listener) Option {
	return func(s *Supervisor) {
		s.listener = l
	}
}

// WithRemover sets the collaborator used to delete the staged source.
func WithRemover(r DirectoryRemover) Option {
	return func(s *Supervisor) {
		s.remover = r
	}
}

// WithLogger sets the supervisor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Supervisor runs the external converter and watches it until it exits or
// exceeds its runtime ceiling.
type Supervisor struct {
	launcher     Launcher
	now          func() time.Time
	maxRuntime   time.Duration
	pollInterval time.Duration
	listener     Listener
	remover      DirectoryRemover
	logger       *slog.Logger
}

// NewSupervisor constructs a Supervisor with the default policy.
func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		launcher:     ExecLauncher{},
		now:          time.Now,
		maxRuntime:   DefaultMaxRuntime,
		pollInterval: DefaultPollInterval,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "converter")
	return s
}

// Run launches the converter and blocks until it finishes. The returned error
// is nil only when the converter exited with code 0 and printed no errors.
func (s *Supervisor) Run(ctx context.Context, job Job) (Result, error) {
	logger := logging.WithContext(ctx, s.logger)
	console := ConsoleLog{Path: job.ConsolePath, Listener: &consoleReporter{logger: logger, next: s.listener}}

	args := []string{job.SourceDir, job.OutputDir}
	logger.Info("starting converter",
		logging.String("executable", job.Executable),
		logging.String("arguments", quoteArgs(args)),
		logging.String(logging.FieldEventType, "converter_start"),
	)
	proc, err := s.launcher.Start(job.Executable, args, job.ConsolePath)
	if err != nil {
		s.removeSource(job.CleanupDir, logger)
		return Result{ExitCode: -1}, services.Wrap(services.ErrExternalTool, "converter", "launch", "", err)
	}

	result := s.watch(ctx, proc, console, logger)

	final, err := console.Parse()
	if err != nil {
		logging.WarnWithContext(logger, "final console parse failed", "console_parse_failed", logging.Error(err))
	}
	result.Percent = final.Percent
	result.Errors = final.Errors
	if !result.TimedOut && !result.Canceled {
		result.ExitCode = proc.ExitCode()
	}

	s.removeSource(job.CleanupDir, logger)

	return result, s.evaluate(result, logger)
}

func (s *Supervisor) watch(ctx context.Context, proc Process, console ConsoleLog, logger *slog.Logger) Result {
	start := s.now()
	lastProgress := start
	lastStatus := start
	statusInterval := initialStatusInterval
	var result Result

	for {
		if proc.Wait(s.pollInterval) {
			break
		}
		now := s.now()
		elapsed := now.Sub(start)

		if ctx.Err() != nil {
			logging.WarnWithContext(logger, "conversion canceled; stopping converter", "converter_canceled",
				logging.Duration("elapsed", elapsed.Round(time.Second)),
				logging.String(logging.FieldImpact, "conversion aborted"),
			)
			s.terminate(proc, logger)
			result.Canceled = true
			result.ExitCode = -1
			break
		}
		if elapsed >= s.maxRuntime {
			logging.WarnWithContext(logger, fmt.Sprintf("converter exceeded maximum runtime of %d minutes; aborting", int(s.maxRuntime/time.Minute)), "converter_timeout",
				logging.Duration("elapsed", elapsed.Round(time.Second)),
				logging.String(logging.FieldErrorHint, "inspect the console output or raise converter.max_runtime_minutes"),
				logging.String(logging.FieldImpact, "conversion aborted"),
			)
			s.terminate(proc, logger)
			result.TimedOut = true
			result.ExitCode = -1
			break
		}

		if now.Sub(lastProgress) >= progressCheckInterval {
			if _, err := console.Parse(); err != nil {
				logger.Debug("console parse failed", logging.Error(err))
			}
			lastProgress = now
			continue
		}

		if now.Sub(lastStatus) >= statusInterval {
			logger.Info(fmt.Sprintf("converter running for %.1f minutes", elapsed.Minutes()),
				logging.Duration("status_interval", statusInterval),
				logging.String(logging.FieldEventType, "converter_status"),
			)
			result.StatusReports++
			lastStatus = now
			statusInterval = nextStatusInterval(statusInterval)
		}
	}
	result.Elapsed = s.now().Sub(start)
	return result
}

// nextStatusInterval grows the status period by one minute up to the cap.
func nextStatusInterval(current time.Duration) time.Duration {
	return min(current+statusIntervalStep, maxStatusInterval)
}

func (s *Supervisor) terminate(proc Process, logger *slog.Logger) {
	if err := proc.Terminate(); err != nil {
		logging.WarnWithContext(logger, "failed to terminate converter", "converter_terminate_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "kill the converter process manually"),
		)
	}
}

func (s *Supervisor) evaluate(result Result, logger *slog.Logger) error {
	switch {
	case result.TimedOut:
		return services.Wrap(services.ErrTimeout, "converter", "",
			fmt.Sprintf("converter exceeded maximum runtime of %d minutes", int(s.maxRuntime/time.Minute)), nil)
	case result.Canceled:
		return services.Wrap(services.ErrExternalTool, "converter", "", "conversion canceled", nil)
	case result.ExitCode != 0:
		logging.WarnWithContext(logger, "converter failed", "converter_failed",
			logging.Int("exit_code", result.ExitCode),
			logging.String(logging.FieldImpact, "conversion failed"),
		)
		return services.Wrap(services.ErrExternalTool, "converter", "",
			fmt.Sprintf("converter exited with code %d%s", result.ExitCode, firstError(result.Errors)), nil)
	case len(result.Errors) > 0:
		logging.WarnWithContext(logger, "converter exit code is 0 but errors were reported; treating as failure", "converter_anomaly",
			logging.Int("error_lines", len(result.Errors)),
			logging.String(logging.FieldImpact, "conversion failed"),
		)
		return services.Wrap(services.ErrExternalTool, "converter", "",
			"converter reported errors despite exit code 0"+firstError(result.Errors), nil)
	}
	logger.Info("converter finished",
		logging.Duration("elapsed", result.Elapsed.Round(time.Second)),
		logging.Float64("percent", result.Percent),
		logging.String(logging.FieldEventType, "converter_complete"),
	)
	return nil
}

func (s *Supervisor) removeSource(dir string, logger *slog.Logger) {
	if dir == "" || s.remover == nil {
		return
	}
	if err := s.remover.RemoveDirectory(dir); err != nil {
		logging.WarnWithContext(logger, "failed to delete staged dataset", "staged_cleanup_failed",
			logging.String("path", dir),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the directory manually or run clean"),
			logging.String(logging.FieldImpact, "disk space not reclaimed"),
		)
	}
}

func firstError(errs []string) string {
	if len(errs) == 0 {
		return ""
	}
	return ": " + errs[0]
}

func quoteArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = `"` + a + `"`
	}
	return strings.Join(quoted, " ")
}

// consoleReporter logs each distinct error line once across repeated parses.
type consoleReporter struct {
	logger *slog.Logger
	next   Listener
	seen   map[string]struct{}
}

func (r *consoleReporter) ConsoleError(message string) {
	if _, ok := r.seen[message]; ok {
		return
	}
	if r.seen == nil {
		r.seen = make(map[string]struct{})
	}
	r.seen[message] = struct{}{}
	logging.ErrorWithContext(r.logger, "converter reported an error", "converter_output_error",
		logging.String("line", message),
		logging.String(logging.FieldErrorHint, "see the converter console output"),
	)
	if r.next != nil {
		r.next.ConsoleError(message)
	}
}

func (r *consoleReporter) ConsoleProgress(percent float64) {
	r.logger.Debug("converter progress", logging.Float64("percent", percent))
	if r.next != nil {
		r.next.ConsoleProgress(percent)
	}
}
