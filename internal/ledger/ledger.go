// Package ledger records pipeline failures in an append-only,
// pipe-delimited file shared by all workers.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"neuropipe/internal/logging"
)

// Entry is one recorded failure. Entries are deduplicated on the
// (unit, pipeline, step, code) signature: retries and repeated reports of
// the same failure produce exactly one line.
type Entry struct {
	Time     time.Time
	Unit     string
	Pipeline string
	Step     string
	Code     int
	Message  string
}

func (e Entry) signature() string {
	return fmt.Sprintf("%s|%s|%s|%d", e.Unit, e.Pipeline, e.Step, e.Code)
}

// Ledger appends failure entries to a single file. In-process callers are
// serialized by a mutex; an advisory file lock additionally guards the
// file against overlapping invocations of the program on the same output
// root.
type Ledger struct {
	path string

	mu   sync.Mutex
	flk  *flock.Flock
	seen map[string]struct{}
}

// New creates a ledger writing to path. The file and its parent directory
// are created on first record.
func New(path string) *Ledger {
	return &Ledger{
		path: path,
		flk:  flock.New(path + ".lock"),
		seen: make(map[string]struct{}),
	}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Record appends the entry unless its signature was already recorded,
// here or by a concurrent invocation sharing the file.
func (l *Ledger) Record(e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	sig := e.signature()

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen[sig]; dup {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0775); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	if err := l.flk.Lock(); err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	defer func() {
		if err := l.flk.Unlock(); err != nil {
			logging.New("ledger").Warn("unlock ledger", "error", err)
		}
	}()

	// Another process may have written the same signature since our last
	// read; re-check on disk while holding the lock.
	existing, err := readEntries(l.path)
	if err != nil {
		return err
	}
	for _, prev := range existing {
		l.seen[prev.signature()] = struct{}{}
	}
	if _, dup := l.seen[sig]; dup {
		return nil
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0664)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(e)); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	l.seen[sig] = struct{}{}
	return nil
}

// Entries reads every recorded entry back from the file. Missing file
// means no failures.
func (l *Ledger) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return readEntries(l.path)
}

// formatLine renders one pipe-delimited ledger line. The free-text
// message comes last and is sanitized so the line stays parseable.
func formatLine(e Entry) string {
	return fmt.Sprintf("%s|%s|%s|%s|%d|%s\n",
		e.Time.UTC().Format(time.RFC3339),
		e.Unit, e.Pipeline, e.Step, e.Code, sanitize(e.Message))
}

func sanitize(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", "; ")
	msg = strings.ReplaceAll(msg, "\r", "")
	return strings.ReplaceAll(msg, "|", "/")
}

func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "|", 6)
		if len(fields) != 6 {
			continue // tolerate hand-edited lines
		}
		ts, _ := time.Parse(time.RFC3339, fields[0])
		code, _ := strconv.Atoi(fields[4])
		entries = append(entries, Entry{
			Time:     ts,
			Unit:     fields[1],
			Pipeline: fields[2],
			Step:     fields[3],
			Code:     code,
			Message:  fields[5],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return entries, nil
}
