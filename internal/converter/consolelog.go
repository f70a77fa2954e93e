package converter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var frameProgressPattern = regexp.MustCompile(`(?i)Converting frame (\d+) / (\d+)`)

const (
	unhandledPrefix   = "unhandled exception"
	errorPrefix       = "error:"
	exceptionInPrefix = "exception in"
	exceptionJoiner   = "; "
	maxLineBytes      = 1024 * 1024
)

// Listener receives console events as they are parsed.
type Listener interface {
	ConsoleError(message string)
	ConsoleProgress(percent float64)
}

// ParseResult summarises one pass over the console output.
type ParseResult struct {
	// Percent is the progress of the last frame line seen, 0 when none matched.
	Percent float64
	// Matched reports whether any frame progress line was found.
	Matched bool
	// Errors holds every error reported during the pass, in order.
	Errors []string
}

// ParseConsoleOutput reads r to the end and reports progress and error lines.
// Each call starts from a clean state.
func ParseConsoleOutput(r io.Reader, listener Listener) (ParseResult, error) {
	var (
		result    ParseResult
		capturing bool
		captured  []string
	)
	report := func(msg string) {
		result.Errors = append(result.Errors, msg)
		if listener != nil {
			listener.ConsoleError(msg)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)

		switch {
		case strings.HasPrefix(lower, unhandledPrefix):
			report(line)
			if !capturing {
				capturing = true
				continue
			}
		case strings.HasPrefix(lower, errorPrefix), strings.HasPrefix(lower, exceptionInPrefix):
			report(line)
		}

		if capturing {
			captured = append(captured, line)
			continue
		}

		if percent, ok := frameProgress(line); ok {
			result.Percent = percent
			result.Matched = true
		}
	}
	if err := scanner.Err(); err != nil {
		return result, fmt.Errorf("read console output: %w", err)
	}

	if len(captured) > 0 {
		report(strings.Join(captured, exceptionJoiner))
	}
	if listener != nil {
		listener.ConsoleProgress(result.Percent)
	}
	return result, nil
}

// frameProgress extracts the percent complete from a "Converting frame X / Y"
// line. Lines with a non-positive total are ignored.
func frameProgress(line string) (float64, bool) {
	m := frameProgressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	current, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	total, err := strconv.ParseFloat(m[2], 64)
	if err != nil || total <= 0 {
		return 0, false
	}
	percent := current / total * 100
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return 0, false
	}
	return math.Min(math.Max(percent, 0), 100), true
}

// ConsoleLog is the captured converter output file.
type ConsoleLog struct {
	Path     string
	Listener Listener
}

// Parse re-reads the whole file. A file that does not exist yet yields an
// empty result.
func (c ConsoleLog) Parse() (ParseResult, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if c.Listener != nil {
				c.Listener.ConsoleProgress(0)
			}
			return ParseResult{}, nil
		}
		return ParseResult{}, fmt.Errorf("open console output: %w", err)
	}
	defer f.Close()
	return ParseConsoleOutput(f, c.Listener)
}

// Remove deletes the console file, ignoring failures.
func (c ConsoleLog) Remove() {
	_ = os.Remove(c.Path)
}
