package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Last returns up to n trailing lines of path and the offset just past the
// last complete line. A missing file yields no lines and offset 0.
func Last(path string, n int) ([]string, int64, error) {
	lines, offset, err := ReadFrom(path, 0)
	if err != nil {
		return nil, 0, err
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	if n <= 0 {
		lines = nil
	}
	return lines, offset, nil
}

// ReadFrom returns the complete lines written after offset. A trailing line
// without a newline is left for the next call. If the file shrank below
// offset (rotation or truncation) reading restarts from the top.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, offset, fmt.Errorf("log path %q is a directory", path)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, offset, nil
			}
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
}

// Follow polls path every interval starting at offset and passes each new
// line to emit. It returns when ctx ends.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		lines, next, err := ReadFrom(path, offset)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
		offset = next

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// MatchThread reports whether a console or JSON log line belongs to threadID.
func MatchThread(line, threadID string) bool {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return true
	}
	return strings.Contains(line, "Thread "+threadID+" ") ||
		strings.Contains(line, "Thread "+threadID+"]") ||
		strings.HasSuffix(line, "Thread "+threadID) ||
		strings.Contains(line, `"thread_id":"`+threadID+`"`) ||
		strings.Contains(line, "thread_id="+threadID)
}
