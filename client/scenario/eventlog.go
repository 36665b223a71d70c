package scenario

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"
)

// eventLog follows a file the target appends security events to. Only lines written after open are inspected.
type eventLog struct {
	path   string
	offset int64
}

// openEventLog remembers the current end of path. It fails when the file cannot be read.
func openEventLog(path string) (*eventLog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	return &eventLog{path: path, offset: info.Size()}, nil
}

// newLines returns complete lines appended since open. A shrunk file is read from the start.
func (l *eventLog) newLines() ([]string, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	offset := l.offset
	if info.Size() < offset {
		offset = 0
	}

	if _, err = f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}

	var lines []string

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	return lines, scanner.Err()
}

// await polls until a new line contains every needle or ctx ends.
func (l *eventLog) await(ctx context.Context, interval time.Duration, needles ...string) (string, bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lines, _ := l.newLines()

		for _, line := range lines {
			if containsAll(line, needles) {
				return line, true
			}
		}

		select {
		case <-ctx.Done():
			return "", false
		case <-ticker.C:
		}
	}
}

func containsAll(s string, needles []string) bool {
	for _, n := range needles {
		if !strings.Contains(s, n) {
			return false
		}
	}

	return true
}
