// Package jsonl reads and appends newline-delimited JSON log files.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Appender writes one JSON object per line to an append-only file.
type Appender struct {
	file *os.File
	enc  *json.Encoder
}

// OpenAppender opens (creating parent directories as needed) a JSONL file
// for appending.
func OpenAppender(path string) (*Appender, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &Appender{file: file, enc: json.NewEncoder(file)}, nil
}

// Append writes record as a single JSON line.
func (a *Appender) Append(record any) error {
	if err := a.enc.Encode(record); err != nil {
		return fmt.Errorf("appending to %s: %w", a.file.Name(), err)
	}
	return nil
}

func (a *Appender) Close() error {
	return a.file.Close()
}

// Scanner streams decoded entries from a JSONL file. Blank lines and lines
// that fail to decode are skipped so one corrupt line never aborts a scan.
type Scanner[T any] struct {
	scanner *bufio.Scanner
	closer  io.Closer
	current T
	err     error
}

// Open opens a JSONL file for streaming reads.
func Open[T any](path string) (*Scanner[T], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	scanner := bufio.NewScanner(file)
	// Raw API snapshots can run long; allow lines up to 16MB.
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Scanner[T]{scanner: scanner, closer: file}, nil
}

// Scan advances to the next decodable entry. It returns false at EOF or on
// a read error (see Err).
func (s *Scanner[T]) Scan() bool {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry T
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		s.current = entry
		return true
	}
	s.err = s.scanner.Err()
	return false
}

// Entry returns the entry decoded by the last successful Scan.
func (s *Scanner[T]) Entry() T {
	return s.current
}

func (s *Scanner[T]) Err() error {
	return s.err
}

func (s *Scanner[T]) Close() error {
	return s.closer.Close()
}
