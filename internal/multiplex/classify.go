// Package multiplex decides whether a UIMF file still needs demultiplexing.
package multiplex

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"agilentuimf/internal/uimf"
)

// Kind is the classification outcome.
type Kind int

const (
	NotMultiplexed Kind = iota
	Multiplexed
	Error
)

func (k Kind) String() string {
	switch k {
	case NotMultiplexed:
		return "not multiplexed"
	case Multiplexed:
		return "multiplexed"
	default:
		return "error"
	}
}

// Source records which evidence decided a Multiplexed result.
type Source string

const (
	SourceMetadata Source = "metadata"
	SourceFilename Source = "filename"
)

// Result is the outcome of Classify.
type Result struct {
	Kind     Kind
	BitWidth int
	Source   Source
	// Sequence is the encoding sequence that matched.
	Sequence string
	// Conflicts lists other sequences that also matched with a different bit width.
	Conflicts []string
	Detail    string
}

// Multiplexed reports whether the file needs demultiplexing.
func (r Result) Multiplexed() bool { return r.Kind == Multiplexed }

func (r Result) String() string {
	if r.Kind == Multiplexed {
		return fmt.Sprintf("multiplexed (%d-bit)", r.BitWidth)
	}
	return r.Kind.String()
}

var (
	sequencePattern = regexp.MustCompile(`^(\d)bit`)
	filenamePattern = regexp.MustCompile(`_(\d)bit(?:_|$)`)
)

// ErrNoFrames is reported when the file holds no frames.
var ErrNoFrames = errors.New("no frames found")

// Classify decides the multiplexing state from frame metadata, falling back
// to fileName when no frame carries an encoding sequence. Sequences are
// examined in sorted order and the first match wins.
func Classify(frames []uimf.Frame, fileName string) Result {
	if len(frames) == 0 {
		return Result{Kind: Error, Detail: ErrNoFrames.Error()}
	}

	distinct := make(map[string]struct{})
	for _, f := range frames {
		distinct[f.EncodingSequence] = struct{}{}
	}
	sequences := make([]string, 0, len(distinct))
	for seq := range distinct {
		if seq != "" {
			sequences = append(sequences, seq)
		}
	}
	slices.Sort(sequences)

	if len(sequences) == 0 {
		return classifyFilename(fileName)
	}

	var result Result
	for _, seq := range sequences {
		width, ok := sequenceBitWidth(seq)
		if !ok {
			continue
		}
		if result.Kind != Multiplexed {
			result = Result{Kind: Multiplexed, BitWidth: width, Source: SourceMetadata, Sequence: seq}
			continue
		}
		if width != result.BitWidth {
			result.Conflicts = append(result.Conflicts, seq)
		}
	}
	if result.Kind == Multiplexed {
		return result
	}
	return Result{Kind: NotMultiplexed, Detail: "encoding sequences do not name a bit width"}
}

// sequenceBitWidth matches the file name portion of an encoding sequence,
// which may be a Windows or POSIX path.
func sequenceBitWidth(sequence string) (int, bool) {
	name := sequence
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		name = name[i+1:]
	}
	m := sequencePattern.FindStringSubmatch(strings.ToLower(name))
	if m == nil {
		return 0, false
	}
	width, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return width, true
}

func classifyFilename(fileName string) Result {
	base := filepath.Base(fileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	m := filenamePattern.FindStringSubmatch(base)
	if m == nil {
		return Result{Kind: NotMultiplexed}
	}
	width, _ := strconv.Atoi(m[1])
	return Result{Kind: Multiplexed, BitWidth: width, Source: SourceFilename}
}

// ClassifyFile opens a UIMF file and classifies it.
func ClassifyFile(ctx context.Context, path string) (Result, error) {
	r, err := uimf.Open(ctx, path)
	if err != nil {
		return Result{Kind: Error, Detail: err.Error()}, fmt.Errorf("classify %s: %w", path, err)
	}
	defer r.Close()

	frames, err := r.Frames(ctx)
	if err != nil {
		return Result{Kind: Error, Detail: err.Error()}, fmt.Errorf("classify %s: %w", path, err)
	}
	result := Classify(frames, path)
	if result.Kind == Error {
		return result, fmt.Errorf("classify %s: %w", path, ErrNoFrames)
	}
	return result, nil
}
