package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// maxRecordSize bounds a single line; realized exams are well below it.
const maxRecordSize = 16 << 20

// FileLog stores one record per line. WriteAll replaces the file atomically.
type FileLog struct {
	mu   sync.Mutex
	path string
}

// NewFileLog creates a FileLog at path. The file is created on first write.
func NewFileLog(path string) *FileLog {
	return &FileLog{path: path}
}

func (l *FileLog) Path() string { return l.path }

// WriteAll replaces the file contents with records.
func (l *FileLog) WriteAll(_ context.Context, records [][]byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for i, rec := range records {
		if err := writeLine(w, rec); err != nil {
			tmp.Close()
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// ReadAll returns every non-empty line. A missing file is an empty log.
func (l *FileLog) ReadAll(_ context.Context) ([][]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var records [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxRecordSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		records = append(records, append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return records, fmt.Errorf("read snapshot: %w", err)
	}
	return records, nil
}

// Append adds one record to the end of the file.
func (l *FileLog) Append(_ context.Context, record []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := writeLine(w, record); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("append snapshot: %w", err)
	}
	return f.Close()
}

func writeLine(w *bufio.Writer, rec []byte) error {
	if bytes.IndexByte(rec, '\n') >= 0 {
		return errors.New("record contains a newline")
	}
	if _, err := w.Write(rec); err != nil {
		return err
	}
	return w.WriteByte('\n')
}
