package conversion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"agilentuimf/internal/config"
	"agilentuimf/internal/converter"
	"agilentuimf/internal/lockqueue"
	"agilentuimf/internal/multiplex"
	"agilentuimf/internal/notifications"
	"agilentuimf/internal/staging"
	"agilentuimf/internal/testsupport"
)

type doneProcess struct{ code int }

func (p doneProcess) Alive() bool             { return false }
func (p doneProcess) Wait(time.Duration) bool { return true }
func (p doneProcess) Terminate() error        { return nil }
func (p doneProcess) ExitCode() int           { return p.code }

// stubLauncher plays the converter: it writes console output and, when
// fixture is set, a UIMF file named after the source directory.
type stubLauncher struct {
	t        *testing.T
	console  string
	exitCode int
	fixture  *testsupport.UIMFFixture
	calls    int
	args     []string
}

func (l *stubLauncher) Start(_ string, args []string, outputPath string) (converter.Process, error) {
	l.calls++
	l.args = args
	if err := os.WriteFile(outputPath, []byte(l.console), 0o644); err != nil {
		return nil, err
	}
	if l.fixture != nil {
		base := filepath.Base(args[0])
		name := strings.TrimSuffix(base, filepath.Ext(base)) + ".uimf"
		testsupport.WriteUIMF(l.t, filepath.Join(args[1], name), *l.fixture)
	}
	return doneProcess{code: l.exitCode}, nil
}

type recordingNotifier struct {
	events   []notifications.Event
	payloads []notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.events = append(n.events, event)
	n.payloads = append(n.payloads, payload)
	return nil
}

type panickingCopier struct{ *lockqueue.Copier }

func (panickingCopier) CopyDirectory(context.Context, string, string) error {
	panic("copy engine exploded")
}

const dataset = "BSA_65min_0pt5uL_1pt5ms"

func setup(t *testing.T) (*config.Config, Request) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithConverterScript("#!/bin/sh\nexit 0\n"))
	remote := filepath.Join(cfg.Paths.RemoteRoot, dataset)
	testsupport.WriteDataset(t, filepath.Join(remote, dataset+".d"))
	return cfg, NewRequest(cfg, dataset, "")
}

func multiplexedFixture() *testsupport.UIMFFixture {
	return &testsupport.UIMFFixture{
		Frames:         testsupport.SimpleFrames(3, `C:\IMSFiles\4Bit_24OS.txt`),
		IntensityBytes: 32 * 1024,
	}
}

func TestRunSuccess(t *testing.T) {
	cfg, req := setup(t)
	launcher := &stubLauncher{t: t, console: "Converting frame 3 / 3\n", fixture: multiplexedFixture()}

	out := NewRunner(cfg, WithLauncher(launcher)).Run(context.Background(), req)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Evaluation != "" {
		t.Fatalf("unexpected evaluation %q", out.Evaluation)
	}
	if out.Progress != 100 || out.RunID == "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if launcher.args[0] != req.StagedDir() || launcher.args[1] != req.WorkDir {
		t.Fatalf("unexpected converter arguments %v", launcher.args)
	}
	info, err := os.Stat(filepath.Join(req.RemoteDir, dataset+".uimf"))
	if err != nil {
		t.Fatalf("expected remote uimf: %v", err)
	}
	if info.Size() < 50*1024 {
		t.Fatalf("fixture smaller than expected: %d", info.Size())
	}
	for _, path := range []string{req.StagedDir(), req.OutputPath(), filepath.Join(req.WorkDir, cfg.ConsoleOutputName())} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s cleaned up", path)
		}
	}
	if out.Encoding == nil || out.Encoding.Kind != multiplex.Multiplexed || out.Encoding.BitWidth != 4 {
		t.Fatalf("unexpected encoding %+v", out.Encoding)
	}
}

func TestRunMissingRequiredFilesStopsBeforeLaunch(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConverterScript("#!/bin/sh\n"))
	remote := filepath.Join(cfg.Paths.RemoteRoot, dataset)
	testsupport.WriteDataset(t, filepath.Join(remote, dataset+".d"), "MSPeak.bin", "MSScan.bin")
	launcher := &stubLauncher{t: t}

	out := NewRunner(cfg, WithLauncher(launcher)).Run(context.Background(), NewRequest(cfg, dataset, ""))
	if out.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.Message, "MSPeriodicActuals.bin, MSProfile.bin") {
		t.Fatalf("message should list missing files: %q", out.Message)
	}
	if out.Category != "staging" {
		t.Fatalf("category = %q", out.Category)
	}
	if launcher.calls != 0 {
		t.Fatal("converter must not be launched")
	}
}

func TestRunNestedLayoutRenamesOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConverterScript("#!/bin/sh\n"))
	remote := filepath.Join(cfg.Paths.RemoteRoot, dataset)
	testsupport.WriteDataset(t, filepath.Join(remote, dataset+".d", "Acquisition01.d"))
	req := NewRequest(cfg, dataset, "")
	launcher := &stubLauncher{t: t, fixture: multiplexedFixture()}

	out := NewRunner(cfg, WithLauncher(launcher)).Run(context.Background(), req)
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if filepath.Base(launcher.args[0]) != "Acquisition01.d" {
		t.Fatalf("converter should read the nested folder, got %v", launcher.args)
	}
	if _, err := os.Stat(filepath.Join(req.RemoteDir, dataset+".uimf")); err != nil {
		t.Fatalf("expected renamed remote file: %v", err)
	}
}

func TestRunMissingLayoutFails(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConverterScript("#!/bin/sh\n"))
	cfg.Staging.RequireFiles = false
	source := filepath.Join(cfg.Paths.RemoteRoot, dataset, dataset+".d")
	testsupport.WriteFile(t, filepath.Join(source, "DATA", "MSScan.bin"), 10)
	launcher := &stubLauncher{t: t}

	out := NewRunner(cfg, WithLauncher(launcher)).Run(context.Background(), NewRequest(cfg, dataset, ""))
	if out.Success || out.Category != "layout" {
		t.Fatalf("expected layout failure, got %+v", out)
	}
	if launcher.calls != 0 {
		t.Fatal("converter must not be launched")
	}
}

func TestRunConverterFailureKeepsProgress(t *testing.T) {
	cfg, req := setup(t)
	launcher := &stubLauncher{t: t, exitCode: 1, console: "Converting frame 40 / 100\nError: out of memory\n"}

	out := NewRunner(cfg, WithLauncher(launcher)).Run(context.Background(), req)
	if out.Success {
		t.Fatal("expected failure")
	}
	if out.Category != "process" || !strings.Contains(out.Message, "exited with code 1") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Progress != 40 {
		t.Fatalf("progress = %v", out.Progress)
	}
	if _, err := os.Stat(req.StagedDir()); !os.IsNotExist(err) {
		t.Fatal("staged directory should be removed after the converter ends")
	}
}

func TestRunPublishesCloseout(t *testing.T) {
	cfg, req := setup(t)
	notifier := &recordingNotifier{}
	launcher := &stubLauncher{t: t, console: "Converting frame 3 / 3\n", fixture: multiplexedFixture()}

	NewRunner(cfg, WithLauncher(launcher), WithNotifier(notifier)).Run(context.Background(), req)
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventConversionCompleted {
		t.Fatalf("unexpected events %v", notifier.events)
	}
	if got := notifier.payloads[0]["encoding"]; got != "multiplexed (4-bit)" {
		t.Fatalf("encoding payload = %q", got)
	}

	failing := &stubLauncher{t: t, exitCode: 2}
	cfg2, req2 := setup(t)
	notifier = &recordingNotifier{}
	NewRunner(cfg2, WithLauncher(failing), WithNotifier(notifier)).Run(context.Background(), req2)
	if len(notifier.events) != 1 || notifier.events[0] != notifications.EventConversionFailed {
		t.Fatalf("unexpected events %v", notifier.events)
	}
	if notifier.payloads[0]["category"] != "process" {
		t.Fatalf("unexpected payload %v", notifier.payloads[0])
	}
}

func TestRunSmallOutputFailsValidation(t *testing.T) {
	cfg, req := setup(t)
	launcher := &stubLauncher{t: t, fixture: &testsupport.UIMFFixture{
		Frames: testsupport.SimpleFrames(1, ""),
	}}
	launcher.fixture.Frames[0].Scans = []int{0, 0}

	out := NewRunner(cfg, WithLauncher(launcher)).Run(context.Background(), req)
	if out.Success {
		t.Fatal("expected validation failure")
	}
	if out.Category != "validation" || !strings.Contains(out.Message, "has frame info but no scan data") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Evaluation == "" {
		t.Fatal("expected size evaluation for a small file")
	}
}

func TestRunMissingConverterIsConfigurationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	req := NewRequest(cfg, dataset, "")
	out := NewRunner(cfg, WithLauncher(&stubLauncher{t: t})).Run(context.Background(), req)
	if out.Success || out.Category != "configuration" {
		t.Fatalf("expected configuration failure, got %+v", out)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	cfg, req := setup(t)
	out := NewRunner(cfg, WithCopier(panickingCopier{lockqueue.NewCopier()}), WithLauncher(&stubLauncher{t: t})).Run(context.Background(), req)
	if out.Success || out.Category != "internal" {
		t.Fatalf("expected internal failure, got %+v", out)
	}
	if !strings.Contains(out.Message, "copy engine exploded") {
		t.Fatalf("unexpected message %q", out.Message)
	}
}

func TestRunRefusesConcurrentConversion(t *testing.T) {
	cfg, req := setup(t)
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lock := flock.New(staging.RunLockPath(req.WorkDir, req.Dataset))
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("lock: %v %v", ok, err)
	}
	defer func() { _ = lock.Unlock() }()

	launcher := &stubLauncher{t: t}
	out := NewRunner(cfg, WithLauncher(launcher)).Run(context.Background(), req)
	if out.Success || !strings.Contains(out.Message, "already running") {
		t.Fatalf("expected lock failure, got %+v", out)
	}
	if launcher.calls != 0 {
		t.Fatal("converter must not be launched")
	}
}

func TestProgressTrackerIsMonotone(t *testing.T) {
	out := &Outcome{}
	tracker := &progressTracker{out: out}
	for _, p := range []float64{10, 55, 30, 0, 60} {
		tracker.ConsoleProgress(p)
	}
	if out.Progress != 60 {
		t.Fatalf("progress = %v", out.Progress)
	}
}

func TestRequestPaths(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.WorkDir = "/work"
	cfg.Paths.RemoteRoot = "/store"
	req := NewRequest(&cfg, "Sample", "")
	if req.RemoteDir != "/store/Sample" || req.SourceDir() != "/store/Sample/Sample.d" {
		t.Fatalf("unexpected remote paths %+v", req)
	}
	if req.OutputPath() != "/work/Sample.uimf" || req.StagedDir() != "/work/Sample.d" {
		t.Fatalf("unexpected local paths %s %s", req.OutputPath(), req.StagedDir())
	}
	if req.MaxRuntime != 180*time.Minute {
		t.Fatalf("max runtime = %s", req.MaxRuntime)
	}
	if err := (Request{Dataset: "a/b", RemoteDir: "/r", WorkDir: "/w", ConverterPath: "x"}).validate(); err == nil {
		t.Fatal("expected separator rejection")
	}
}
