package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"agilentuimf/internal/testsupport"
)

func writeFixture(t *testing.T, path string, fixture testsupport.UIMFFixture) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	testsupport.WriteUIMF(t, path, fixture)
	return path
}

func converterCopying(fixture string) string {
	return "#!/bin/sh\n" +
		"echo 'Converting frame 1 / 2'\n" +
		"echo 'Converting frame 2 / 2'\n" +
		"name=$(basename \"$1\" .d)\n" +
		"cp '" + fixture + "' \"$2/$name.uimf\"\n"
}

func TestConvertCommandSuccess(t *testing.T) {
	fixtureDir := t.TempDir()
	fixture := writeFixture(t, filepath.Join(fixtureDir, "template.uimf"), testsupport.UIMFFixture{
		Frames:         testsupport.SimpleFrames(2, `C:\IMSFiles\4Bit_24OS.txt`),
		IntensityBytes: 32 * 1024,
	})
	env := setupCLITestEnv(t, testsupport.WithConverterScript(converterCopying(fixture)))
	remote := filepath.Join(env.cfg.Paths.RemoteRoot, testDataset)
	testsupport.WriteDataset(t, filepath.Join(remote, testDataset+".d"))

	stdout, _, err := runCLI(t, []string{"--json", "convert", testDataset}, env.configPath)
	if err != nil {
		t.Fatalf("convert failed: %v\n%s", err, stdout)
	}
	var payload outcomeJSON
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout)
	}
	if !payload.Success || payload.Progress != 100 {
		t.Fatalf("unexpected outcome %+v", payload)
	}
	if payload.RemotePath != filepath.Join(remote, testDataset+".uimf") {
		t.Fatalf("unexpected remote path %q", payload.RemotePath)
	}
	if payload.Encoding != "multiplexed" || payload.BitWidth != 4 {
		t.Fatalf("unexpected encoding %+v", payload)
	}
}

func TestConvertCommandReportsConverterFailure(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithConverterScript("#!/bin/sh\necho 'Error: unable to open MSScan.bin'\nexit 3\n"))
	remote := filepath.Join(env.cfg.Paths.RemoteRoot, testDataset)
	testsupport.WriteDataset(t, filepath.Join(remote, testDataset+".d"))

	stdout, _, err := runCLI(t, []string{"convert", testDataset}, env.configPath)
	if err == nil {
		t.Fatal("expected error")
	}
	requireContains(t, err.Error(), "(process)")
	requireContains(t, stdout, "[ERROR]")
	requireContains(t, stdout, "exited with code 3")
}

func TestConvertCommandMissingDataset(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithConverterScript("#!/bin/sh\nexit 0\n"))

	stdout, _, err := runCLI(t, []string{"convert", "absent"}, env.configPath)
	if err == nil {
		t.Fatal("expected error")
	}
	requireContains(t, stdout, "Category:")
}

func TestValidateCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	good := writeFixture(t, filepath.Join(env.baseDir, "good.uimf"), testsupport.UIMFFixture{
		Frames:         testsupport.SimpleFrames(1, ""),
		IntensityBytes: 64 * 1024,
	})

	stdout, _, err := runCLI(t, []string{"validate", good}, env.configPath)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	requireContains(t, stdout, "spectra present")

	missing := filepath.Join(env.baseDir, "missing.uimf")
	stdout, _, err = runCLI(t, []string{"validate", good, missing}, env.configPath)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	requireContains(t, err.Error(), "1 of 2 files failed validation")
	requireContains(t, stdout, "UIMF file not found: "+missing)
}

func TestValidateCommandJSONFlagsEmptyFrames(t *testing.T) {
	env := setupCLITestEnv(t)
	path := writeFixture(t, filepath.Join(env.baseDir, "empty.uimf"), testsupport.UIMFFixture{
		Frames:         []testsupport.UIMFFrame{{Number: 1, Type: 1, Scans: []int{0, 0}}},
		IntensityBytes: 8 * 1024,
	})

	stdout, _, err := runCLI(t, []string{"--json", "validate", path}, env.configPath)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	var reports []reportJSON
	if err := json.Unmarshal([]byte(stdout), &reports); err != nil {
		t.Fatalf("decode output: %v\n%s", err, stdout)
	}
	if len(reports) != 1 || reports[0].Valid || !reports[0].ContentChecked {
		t.Fatalf("unexpected reports %+v", reports)
	}
	requireContains(t, reports[0].Message, "no scan data")
}

func TestClassifyCommand(t *testing.T) {
	dir := t.TempDir()
	muxed := writeFixture(t, filepath.Join(dir, "a.uimf"), testsupport.UIMFFixture{
		Frames: testsupport.SimpleFrames(2, `C:\IMSFiles\3Bit_10OS.txt`),
	})
	plain := writeFixture(t, filepath.Join(dir, "b.uimf"), testsupport.UIMFFixture{
		Frames: testsupport.SimpleFrames(2, ""),
	})

	stdout, _, err := runCLI(t, []string{"classify", muxed, plain}, "")
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	requireContains(t, stdout, "a.uimf")
	requireContains(t, stdout, "3Bit_10OS.txt")
	requireContains(t, stdout, "not multiplexed")
}

func TestFramesCommand(t *testing.T) {
	path := writeFixture(t, filepath.Join(t.TempDir(), "frames.uimf"), testsupport.UIMFFixture{
		Frames: []testsupport.UIMFFrame{
			{Number: 1, Type: 1, Scans: []int{1200, 0, 300}},
			{Number: 2, Type: 2, Scans: []int{5}},
		},
	})

	stdout, _, err := runCLI(t, []string{"frames", path}, "")
	if err != nil {
		t.Fatalf("frames failed: %v", err)
	}
	requireContains(t, stdout, "MS2")
	requireContains(t, stdout, "1,505 points")
	requireContains(t, stdout, "2 frames, 4 scans")
}

func TestWorkListAndClean(t *testing.T) {
	env := setupCLITestEnv(t)
	stale := filepath.Join(env.cfg.Paths.WorkDir, "Old_Run.d")
	testsupport.WriteDataset(t, stale)
	old := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	stdout, _, err := runCLI(t, []string{"work", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("work list failed: %v", err)
	}
	requireContains(t, stdout, "Old_Run.d")
	requireContains(t, stdout, "Total: 1 directories")

	stdout, _, err = runCLI(t, []string{"work", "clean", "--max-age", "24h"}, env.configPath)
	if err != nil {
		t.Fatalf("work clean failed: %v", err)
	}
	requireContains(t, stdout, "Removed")
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected %s removed", stale)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithConverterScript("#!/bin/sh\n"))
	if err := os.MkdirAll(env.cfg.Paths.RemoteRoot, 0o755); err != nil {
		t.Fatalf("mkdir remote root: %v", err)
	}

	target := filepath.Join(env.baseDir, "sample", "config.toml")
	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	requireContains(t, stdout, "Wrote sample configuration")
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite")
	}

	stdout, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate failed: %v\n%s", err, stdout)
	}
	requireContains(t, stdout, "Configuration valid")
}

func TestConfigNotifyTest(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("Title") != "agilentuimf - Test" {
			t.Errorf("unexpected title %q", r.Header.Get("Title"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	env := setupCLITestEnv(t)
	stdout, _, err := runCLI(t, []string{"config", "notify-test"}, env.configPath)
	if err != nil {
		t.Fatalf("notify-test failed: %v", err)
	}
	requireContains(t, stdout, "disabled")

	env.cfg.Notifications.NtfyTopic = server.URL
	writeTestConfig(t, env.configPath, env.cfg)
	stdout, _, err = runCLI(t, []string{"config", "notify-test"}, env.configPath)
	if err != nil {
		t.Fatalf("notify-test failed: %v", err)
	}
	requireContains(t, stdout, "Test notification sent")
	if hits != 1 {
		t.Fatalf("expected one request, got %d", hits)
	}
}
