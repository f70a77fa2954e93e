package conversion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"agilentuimf/internal/config"
	"agilentuimf/internal/converter"
	"agilentuimf/internal/finalize"
	"agilentuimf/internal/layout"
	"agilentuimf/internal/lockqueue"
	"agilentuimf/internal/logging"
	"agilentuimf/internal/multiplex"
	"agilentuimf/internal/notifications"
	"agilentuimf/internal/preflight"
	"agilentuimf/internal/services"
	"agilentuimf/internal/staging"
	"agilentuimf/internal/validation"
)

// Copier is the file transfer capability a run needs.
type Copier interface {
	staging.TreeCopier
	finalize.FileCopier
	converter.DirectoryRemover
}

// Option configures a Runner.
type Option func(*Runner)

// WithCopier replaces the lock-aware copier.
func WithCopier(c Copier) Option {
	return func(r *Runner) {
		if c != nil {
			r.copier = c
		}
	}
}

// WithLauncher replaces the converter process launcher.
func WithLauncher(l converter.Launcher) Option {
	return func(r *Runner) {
		r.launcher = l
	}
}

// WithClock replaces the supervisor time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithNotifier replaces the closeout notifier.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// Runner executes conversions using one configuration.
type Runner struct {
	cfg      *config.Config
	copier   Copier
	launcher converter.Launcher
	notifier notifications.Service
	now      func() time.Time
	// base is handed to collaborators, which add their own component.
	base   *slog.Logger
	logger *slog.Logger
}

// NewRunner constructs a Runner. The default copier coordinates large copies
// through the configured lock directory.
func NewRunner(cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.copier == nil {
		r.copier = lockqueue.NewCopier(
			lockqueue.WithLockDir(cfg.Paths.LockDir),
			lockqueue.WithThreshold(cfg.LargeFileBytes()),
			lockqueue.WithCoordinator(lockqueue.NewStampCoordinator(cfg.Paths.LockDir)),
			lockqueue.WithLogger(r.logger),
		)
	}
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	r.base = r.logger
	r.logger = logging.NewComponentLogger(r.base, "conversion")
	return r
}

// Run converts one dataset. It never panics and never returns an error; the
// outcome carries the verdict.
func (r *Runner) Run(ctx context.Context, req Request) (out Outcome) {
	start := time.Now()
	out = Outcome{RunID: uuid.NewString(), Dataset: req.Dataset}
	ctx = services.WithRunID(ctx, out.RunID)
	ctx = services.WithDataset(ctx, req.Dataset)
	logger := logging.WithContext(ctx, r.logger)

	defer func() {
		if p := recover(); p != nil {
			logging.ErrorWithContext(logger, "conversion panicked", "conversion_panic",
				logging.Any("panic", p),
				logging.String("stack", string(debug.Stack())),
			)
			out.Success = false
			out.Category = "internal"
			out.Message = fmt.Sprintf("unexpected error converting %s: %v", req.Dataset, p)
		}
		out.Elapsed = time.Since(start)
		r.logOutcome(logger, out)
		r.notify(ctx, logger, out)
	}()

	if err := r.run(ctx, req, &out); err != nil {
		out.Success = false
		out.Category = services.Category(err)
		out.Message = services.Detail(err)
		return out
	}
	out.Success = true
	out.Progress = 100
	out.Message = fmt.Sprintf("converted %s to %s", req.Dataset, filepath.Base(req.OutputPath()))
	return out
}

func (r *Runner) run(ctx context.Context, req Request, out *Outcome) error {
	logger := logging.WithContext(ctx, r.logger)

	if err := req.validate(); err != nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "", "", err)
	}
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "create work directory", "", err)
	}
	checks := []preflight.Result{
		preflight.CheckDirectoryAccess("Work directory", req.WorkDir),
		preflight.CheckExecutable("Converter", req.ConverterPath),
	}
	if err := preflight.Failures(checks); err != nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "", "", err)
	}

	unlock, err := acquireRunLock(req)
	if err != nil {
		return err
	}
	defer unlock()

	// Staging
	stageCtx := services.WithStage(ctx, "staging")
	stager := staging.NewStager(r.copier,
		staging.WithLogger(r.base),
		staging.WithSpaceCheck(preflight.FreeSpaceGuard(ctx, int64(r.cfg.Staging.FreeSpaceMarginMB)*1024*1024)),
	)
	if err := stager.Stage(stageCtx, req.SourceDir(), req.StagedDir(), r.cfg.Staging.RequireFiles); err != nil {
		return err
	}

	// Layout
	resolved, err := layout.Resolve(req.StagedDir())
	if err != nil {
		r.removeStaged(req, logger)
		return services.Wrap(services.ErrLayout, "layout", "", "", err)
	}
	if resolved.Alternate {
		logger.Info("using nested dataset layout", logging.String("data_dir", resolved.DataDir))
	}
	if len(resolved.Ignored) > 0 {
		logging.WarnWithContext(logger, "multiple nested .d folders contain acquisition data; using the first", "layout_ambiguous",
			logging.String("selected", filepath.Base(resolved.DataDir)),
			logging.String("ignored", joinBase(resolved.Ignored)),
			logging.String(logging.FieldErrorHint, "verify the dataset folder structure"),
		)
	}

	// Conversion
	convertCtx := services.WithStage(ctx, "conversion")
	consolePath := filepath.Join(req.WorkDir, r.cfg.ConsoleOutputName())
	supervisor := converter.NewSupervisor(r.supervisorOptions(req, out)...)
	if _, err := supervisor.Run(convertCtx, converter.Job{
		Executable:  req.ConverterPath,
		SourceDir:   resolved.DataDir,
		OutputDir:   req.WorkDir,
		ConsolePath: consolePath,
		CleanupDir:  req.StagedDir(),
	}); err != nil {
		return err
	}

	// Finalize
	finalCtx := services.WithStage(ctx, "finalize")
	finalized, err := finalize.New(r.copier, r.base).Finalize(finalCtx, finalize.Request{
		Dataset:     req.Dataset,
		WorkDir:     req.WorkDir,
		RemoteDir:   req.RemoteDir,
		Layout:      resolved,
		ConsolePath: consolePath,
	})
	if err != nil {
		return err
	}
	out.RemotePath = finalized.RemotePath

	// Validation
	validateCtx := services.WithStage(ctx, "validation")
	validator := validation.NewValidator(
		validation.WithThresholds(r.cfg.Validation.MinSizeKB, r.cfg.Validation.SmallSizeKB),
		validation.WithLogger(r.base),
	)
	report, err := validator.Validate(validateCtx, finalized.RemotePath)
	out.Evaluation = report.Evaluation
	if err != nil {
		return err
	}

	if r.cfg.Validation.Classify {
		r.classify(services.WithStage(ctx, "classification"), finalized.RemotePath, out)
	}
	return nil
}

func (r *Runner) supervisorOptions(req Request, out *Outcome) []converter.Option {
	opts := []converter.Option{
		converter.WithMaxRuntime(req.MaxRuntime),
		converter.WithPollInterval(r.cfg.PollInterval()),
		converter.WithListener(&progressTracker{out: out}),
		converter.WithRemover(r.copier),
		converter.WithLogger(r.base),
	}
	if r.launcher != nil {
		opts = append(opts, converter.WithLauncher(r.launcher))
	}
	if r.now != nil {
		opts = append(opts, converter.WithClock(r.now))
	}
	return opts
}

func (r *Runner) classify(ctx context.Context, path string, out *Outcome) {
	logger := logging.WithContext(ctx, r.logger)
	result, err := multiplex.ClassifyFile(ctx, path)
	out.Encoding = &result
	if err != nil {
		logging.WarnWithContext(logger, "unable to classify multiplexing", "classification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "demultiplexing requirement unknown"),
		)
		return
	}
	if len(result.Conflicts) > 0 {
		logging.WarnWithContext(logger, "frames carry conflicting encoding sequences; using the first", "classification_ambiguous",
			logging.String("selected", result.Sequence),
			logging.String("ignored", strings.Join(result.Conflicts, ", ")),
		)
	}
	logger.Info("multiplexing classified",
		logging.String("encoding", result.String()),
		logging.String("source", string(result.Source)),
		logging.String(logging.FieldEventType, "classification_complete"),
	)
}

func (r *Runner) removeStaged(req Request, logger *slog.Logger) {
	if err := r.copier.RemoveDirectory(req.StagedDir()); err != nil {
		logging.WarnWithContext(logger, "failed to delete staged dataset", "staged_cleanup_failed",
			logging.String("path", req.StagedDir()),
			logging.Error(err),
		)
	}
}

func (r *Runner) logOutcome(logger *slog.Logger, out Outcome) {
	attrs := []logging.Attr{
		logging.Bool("success", out.Success),
		logging.Float64("progress", out.Progress),
		logging.Duration("elapsed", out.Elapsed.Round(time.Second)),
		logging.String(logging.FieldEventType, "conversion_complete"),
	}
	if out.Evaluation != "" {
		attrs = append(attrs, logging.String("evaluation", out.Evaluation))
	}
	if out.Encoding != nil {
		attrs = append(attrs, logging.String("encoding", out.Encoding.String()))
	}
	if out.Success {
		logger.Info(out.Message, logging.Args(attrs...)...)
		return
	}
	attrs = append(attrs, logging.String("category", out.Category))
	logging.ErrorWithContext(logger, out.Message, "conversion_failed", attrs...)
}

// notify publishes the closeout. Delivery failures are logged only.
func (r *Runner) notify(ctx context.Context, logger *slog.Logger, out Outcome) {
	event := notifications.EventConversionCompleted
	payload := notifications.Payload{
		"dataset": out.Dataset,
		"elapsed": out.Elapsed.Round(time.Second).String(),
	}
	if out.Success {
		payload["output"] = out.RemotePath
		payload["evaluation"] = out.Evaluation
		if out.Encoding != nil {
			payload["encoding"] = out.Encoding.String()
		}
	} else {
		event = notifications.EventConversionFailed
		payload["category"] = out.Category
		payload["message"] = out.Message
	}
	if err := r.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logger, "failed to send notification", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "closeout not delivered to ntfy"),
		)
	}
}

func acquireRunLock(req Request) (func(), error) {
	lock := flock.New(staging.RunLockPath(req.WorkDir, req.Dataset))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrStaging, "staging", "run lock", "", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrStaging, "staging", "",
			"another conversion of "+req.Dataset+" is already running", nil)
	}
	return func() { _ = lock.Unlock() }, nil
}

func joinBase(paths []string) string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return strings.Join(names, ", ")
}

// progressTracker keeps Outcome.Progress from moving backwards.
type progressTracker struct {
	out *Outcome
}

func (p *progressTracker) ConsoleError(string) {}

func (p *progressTracker) ConsoleProgress(percent float64) {
	if percent > p.out.Progress {
		p.out.Progress = percent
	}
}
