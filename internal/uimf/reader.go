package uimf

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Extension is the file extension of UIMF files.
const Extension = ".uimf"

const (
	paramFrameType        = "FrameType"
	paramEncodingSequence = "MultiplexingEncodingSequence"

	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Frame is one acquisition frame.
type Frame struct {
	Number int
	Type   int
	// EncodingSequence names the multiplexing sequence file; empty when the
	// frame was not multiplexed or the file predates per-frame metadata.
	EncodingSequence string
}

// Scan identifies one scan within a frame.
type Scan struct {
	Frame int
	Index int
}

// ErrNoFrameTable is returned for SQLite files that carry no frame table at all.
var ErrNoFrameTable = errors.New("no frame parameter table")

// ErrTruncatedScan marks a scan whose point count is set but whose intensity
// blob is missing or empty.
var ErrTruncatedScan = errors.New("scan reports points but has no intensity data")

// Reader provides read-only access to one UIMF file.
type Reader struct {
	db     *sql.DB
	path   string
	legacy bool
}

// Open opens path read-only. The file must exist.
func Open(ctx context.Context, path string) (*Reader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	dsn := (&url.URL{Scheme: "file", Path: abs, RawQuery: "mode=ro&_pragma=busy_timeout(5000)"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open uimf %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	r := &Reader{db: db, path: path}
	hasParams, err := r.hasTable(ctx, "Frame_Params")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if !hasParams {
		hasLegacy, err := r.hasTable(ctx, "Frame_Parameters")
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if !hasLegacy {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", path, ErrNoFrameTable)
		}
		r.legacy = true
	}
	return r, nil
}

// Path returns the file the reader was opened on.
func (r *Reader) Path() string { return r.path }

// Legacy reports whether the file uses the older Frame_Parameters layout.
func (r *Reader) Legacy() bool { return r.legacy }

// Close releases the database handle.
func (r *Reader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Frames lists every frame ordered by frame number.
func (r *Reader) Frames(ctx context.Context) ([]Frame, error) {
	if r.legacy {
		return r.legacyFrames(ctx)
	}
	const query = `
SELECT fp.FrameNum,
       COALESCE(MAX(CASE WHEN k.ParamName = ? THEN fp.ParamValue END), ''),
       COALESCE(MAX(CASE WHEN k.ParamName = ? THEN fp.ParamValue END), '')
FROM Frame_Params fp
JOIN Frame_Param_Keys k ON k.ParamID = fp.ParamID
GROUP BY fp.FrameNum
ORDER BY fp.FrameNum`

	var frames []Frame
	err := retryOnBusy(ctx, func() error {
		frames = frames[:0]
		rows, err := r.db.QueryContext(ctx, query, paramFrameType, paramEncodingSequence)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				f        Frame
				typ, seq string
			)
			if err := rows.Scan(&f.Number, &typ, &seq); err != nil {
				return err
			}
			f.Type = parseFrameType(typ)
			f.EncodingSequence = strings.TrimSpace(seq)
			frames = append(frames, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	return frames, nil
}

func (r *Reader) legacyFrames(ctx context.Context) ([]Frame, error) {
	var frames []Frame
	err := retryOnBusy(ctx, func() error {
		frames = frames[:0]
		rows, err := r.db.QueryContext(ctx, "SELECT FrameNum, COALESCE(FrameType, 0) FROM Frame_Parameters ORDER BY FrameNum")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f Frame
			if err := rows.Scan(&f.Number, &f.Type); err != nil {
				return err
			}
			frames = append(frames, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list legacy frames: %w", err)
	}
	return frames, nil
}

// Scans lists the scans recorded for frame in scan order.
func (r *Reader) Scans(ctx context.Context, frame int) ([]Scan, error) {
	var scans []Scan
	err := retryOnBusy(ctx, func() error {
		scans = scans[:0]
		rows, err := r.db.QueryContext(ctx, "SELECT ScanNum FROM Frame_Scans WHERE FrameNum = ? ORDER BY ScanNum", frame)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			s := Scan{Frame: frame}
			if err := rows.Scan(&s.Index); err != nil {
				return err
			}
			scans = append(scans, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list scans for frame %d: %w", frame, err)
	}
	return scans, nil
}

// PointCount returns the number of non-zero points recorded for one scan. A
// scan without a row has no points. A scan that reports points but carries
// no intensity data is returned as ErrTruncatedScan.
func (r *Reader) PointCount(ctx context.Context, scan Scan) (int, error) {
	var count, blobLen sql.NullInt64
	err := retryOnBusy(ctx, func() error {
		return r.db.QueryRowContext(ctx,
			"SELECT NonZeroCount, length(Intensities) FROM Frame_Scans WHERE FrameNum = ? AND ScanNum = ?",
			scan.Frame, scan.Index,
		).Scan(&count, &blobLen)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read scan %d of frame %d: %w", scan.Index, scan.Frame, err)
	}
	if count.Int64 > 0 && blobLen.Int64 == 0 {
		return 0, fmt.Errorf("scan %d of frame %d: %w", scan.Index, scan.Frame, ErrTruncatedScan)
	}
	return int(count.Int64), nil
}

// FrameStats summarises the scans of one frame.
type FrameStats struct {
	Frame
	Scans         int
	NonEmptyScans int
	Points        int64
}

// Stats aggregates scan counts for every frame.
func (r *Reader) Stats(ctx context.Context) ([]FrameStats, error) {
	frames, err := r.Frames(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[int]int, len(frames))
	stats := make([]FrameStats, len(frames))
	for i, f := range frames {
		stats[i].Frame = f
		index[f.Number] = i
	}

	err = retryOnBusy(ctx, func() error {
		for i := range stats {
			stats[i].Scans, stats[i].NonEmptyScans, stats[i].Points = 0, 0, 0
		}
		rows, err := r.db.QueryContext(ctx, `
SELECT FrameNum, COUNT(*), SUM(CASE WHEN NonZeroCount > 0 THEN 1 ELSE 0 END), COALESCE(SUM(NonZeroCount), 0)
FROM Frame_Scans GROUP BY FrameNum`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				frame, scans, nonEmpty int
				points                 int64
			)
			if err := rows.Scan(&frame, &scans, &nonEmpty, &points); err != nil {
				return err
			}
			if i, ok := index[frame]; ok {
				stats[i].Scans = scans
				stats[i].NonEmptyScans = nonEmpty
				stats[i].Points = points
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("aggregate scans: %w", err)
	}
	return stats, nil
}

func (r *Reader) hasTable(ctx context.Context, name string) (bool, error) {
	var count int
	err := retryOnBusy(ctx, func() error {
		return r.db.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?", name,
		).Scan(&count)
	})
	if err != nil {
		return false, fmt.Errorf("inspect %s: %w", r.path, err)
	}
	return count > 0, nil
}

// parseFrameType accepts both numeric codes and the textual values some
// writers store. Unknown values map to 0.
func parseFrameType(value string) int {
	value = strings.TrimSpace(value)
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
		return n
	}
	switch strings.ToLower(value) {
	case "ms1", "ms":
		return 1
	case "ms2":
		return 2
	case "calibration":
		return 3
	case "prescan":
		return 4
	}
	return 0
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
