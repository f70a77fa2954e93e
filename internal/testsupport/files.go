package testsupport

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

// AgilentFiles are the acquisition files every complete dataset carries.
var AgilentFiles = []string{"MSPeak.bin", "MSPeriodicActuals.bin", "MSProfile.bin", "MSScan.bin"}

// WriteFile creates path, and any missing parents, holding size bytes of
// filler. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if _, err := io.CopyN(f, filler{}, max(size, 1)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// filler is an endless reader of 'B' bytes.
type filler struct{}

func (filler) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'B'
	}
	return len(p), nil
}

// WriteDataset creates an Agilent .d directory at dir containing AcqData with
// the named files. With no names every file in AgilentFiles is written.
func WriteDataset(t testing.TB, dir string, names ...string) {
	t.Helper()

	if len(names) == 0 {
		names = AgilentFiles
	}
	acq := filepath.Join(dir, "AcqData")
	if err := os.MkdirAll(acq, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", acq, err)
	}
	for _, name := range names {
		WriteFile(t, filepath.Join(acq, name), 128)
	}
}
