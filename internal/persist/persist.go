// Package persist writes small JSON documents so that readers only ever observe the old or the
// new content of a file.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// Method tells how a document reached the disk.
type Method string

const (
	MethodAtomic         Method = "atomic_replace"
	MethodDirectFallback Method = "direct_fallback"
)

// Test seams.
var (
	renameFile = os.Rename
	syncFile   = func(f *os.File) error { return f.Sync() }
)

// OKMarkerPath is the forensic marker rewritten after each successful save.
func OKMarkerPath(path string) string { return path + ".last_save_ok" }

// ErrorLogPath is the artifact written when a save fails.
func ErrorLogPath(path string) string { return path + ".save_error.log" }

// ReadJSON decodes the file at path into v. The returned error satisfies os.IsNotExist when the
// file is absent.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Marshal encodes v the way documents are stored on disk.
func Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// WriteJSON stores v at path: temp file in the same directory, fsync, rename. If the temp
// write or the rename fails the document is written directly (non-atomic) instead of losing the
// update, and the returned method says so. When both paths fail, an error artifact is left next
// to the file and the error is returned; the previous file content is untouched by the atomic
// path.
func WriteJSON(path string, v any) (Method, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}

	tmpErr := writeTemp(path, data)
	if tmpErr == nil {
		return MethodAtomic, nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		writeErrorLog(path, tmpErr, err)
		return "", fmt.Errorf("save %s: atomic: %v; direct: %w", path, tmpErr, err)
	}
	writeOKMarker(path, MethodDirectFallback)
	return MethodDirectFallback, nil
}

func writeTemp(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	cleanup := func() {
		f.Close()
		os.Remove(tmp)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := syncFile(f); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err := renameFile(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	writeOKMarker(path, MethodAtomic)
	return nil
}

type okMarker struct {
	Time   int64  `json:"time"`
	Method Method `json:"method"`
	Size   int64  `json:"size"`
	Path   string `json:"path"`
}

func writeOKMarker(path string, method Method) {
	m := okMarker{Time: time.Now().Unix(), Method: method, Path: path}
	if st, err := os.Stat(path); err == nil {
		m.Size = st.Size()
	}
	if data, err := json.Marshal(m); err == nil {
		_ = os.WriteFile(OKMarkerPath(path), data, 0o644)
	}
}

func writeErrorLog(path string, errs ...error) {
	text := fmt.Sprintf("time: %s\npath: %s\n%v\n", time.Now().Format(time.RFC3339), path, errors.Join(errs...))
	_ = os.WriteFile(ErrorLogPath(path), []byte(text), 0o644)
}
