package testsupport

import (
	"cmp"
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

//go:embed uimf_schema.sql
var uimfSchema string

//go:embed uimf_legacy_schema.sql
var uimfLegacySchema string

// UIMFFrame describes one frame written by WriteUIMF. Scans holds the
// NonZeroCount of each scan in order.
type UIMFFrame struct {
	Number           int
	Type             int
	EncodingSequence string
	Scans            []int
}

// UIMFFixture configures a generated UIMF file.
type UIMFFixture struct {
	Frames []UIMFFrame
	// Legacy writes the older Frame_Parameters layout without encoding metadata.
	Legacy bool
	// IntensityBytes pads each scan row with an intensity blob of this size.
	// Zero writes a short blob.
	IntensityBytes int
	// DropIntensities stores NULL intensity blobs, as a truncated write would.
	DropIntensities bool
}

const defaultIntensityBytes = 16

// WriteUIMF creates a UIMF SQLite file at path.
func WriteUIMF(t testing.TB, path string, fixture UIMFFixture) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer db.Close()

	ctx := context.Background()
	schema := uimfSchema
	if fixture.Legacy {
		schema = uimfLegacySchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		t.Fatalf("create uimf schema: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	var blob []byte
	if !fixture.DropIntensities {
		blob = make([]byte, cmp.Or(fixture.IntensityBytes, defaultIntensityBytes))
		for i := range blob {
			blob[i] = byte(i)
		}
	}
	for _, frame := range fixture.Frames {
		if fixture.Legacy {
			mustExec(t, tx, "INSERT INTO Frame_Parameters (FrameNum, StartTime, Duration, Accumulations, FrameType, Scans) VALUES (?, 0, 1, 1, ?, ?)",
				frame.Number, frame.Type, len(frame.Scans))
		} else {
			mustExec(t, tx, "INSERT INTO Frame_Params (FrameNum, ParamID, ParamValue) VALUES (?, 1, '0'), (?, 4, ?), (?, 7, ?), (?, 8, ?)",
				frame.Number, frame.Number, frame.Type, frame.Number, len(frame.Scans), frame.Number, frame.EncodingSequence)
		}
		for scan, count := range frame.Scans {
			mustExec(t, tx, "INSERT INTO Frame_Scans (FrameNum, ScanNum, NonZeroCount, BPI, BPI_MZ, TIC, Intensities) VALUES (?, ?, ?, 0, 0, ?, ?)",
				frame.Number, scan, count, count, blob)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

// SimpleFrames returns count MS1 frames with the given encoding sequence, each
// holding one scan with points.
func SimpleFrames(count int, sequence string) []UIMFFrame {
	frames := make([]UIMFFrame, count)
	for i := range frames {
		frames[i] = UIMFFrame{Number: i + 1, Type: 1, EncodingSequence: sequence, Scans: []int{0, 12}}
	}
	return frames
}

func mustExec(t testing.TB, tx *sql.Tx, query string, args ...any) {
	t.Helper()
	if _, err := tx.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
