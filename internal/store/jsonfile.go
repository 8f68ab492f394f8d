// Package store persists JSON documents on disk.
//
// Writes keep a temporary backup of the previous file and put it back when
// the write fails, so a crash or a full disk never leaves a truncated
// document behind. Reads move anything that is not a readable JSON document
// of the expected shape into a quarantine directory and report the document
// as empty.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zugferd/internal/logger"
)

// Shape is the JSON value expected at the root of a document.
type Shape byte

const (
	Array  Shape = '['
	Object Shape = '{'
)

func (s Shape) String() string {
	if s == Object {
		return "object"
	}
	return "array"
}

// JSONFile is a single JSON document.
type JSONFile struct {
	path          string
	quarantineDir string
	shape         Shape
	log           zerolog.Logger

	now       func() time.Time
	writeFile func(name string, data []byte, perm os.FileMode) error
}

// NewJSONFile returns a document at path. Unreadable documents are moved to
// quarantineDir.
func NewJSONFile(path, quarantineDir string, shape Shape) *JSONFile {
	return &JSONFile{
		path:          path,
		quarantineDir: quarantineDir,
		shape:         shape,
		log:           logger.WithComponent("store").With().Str("file", filepath.Base(path)).Logger(),
		now:           time.Now,
		writeFile:     os.WriteFile,
	}
}

// Path returns the document location.
func (f *JSONFile) Path() string {
	return f.path
}

// Read decodes the document into v.
//
// A missing document returns ErrNotFound. A document that is not a regular
// file, cannot be read, has the wrong root shape or does not decode into v
// is quarantined and ErrQuarantined is returned. v is left untouched in
// both cases. When v points to a struct, fields absent from the document
// keep their current value.
func (f *JSONFile) Read(v any) error {
	const op = "Read"

	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return newStoreError(op, f.path, ErrNotFound, "")
	}
	if err != nil {
		return f.quarantine(op, fmt.Errorf("stat: %w", err))
	}
	if !info.Mode().IsRegular() {
		return f.quarantine(op, fmt.Errorf("not a regular file (%s)", info.Mode().Type()))
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return f.quarantine(op, fmt.Errorf("read: %w", err))
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != byte(f.shape) {
		return f.quarantine(op, fmt.Errorf("expected a JSON %s at the root", f.shape))
	}

	// Decode into a fresh value first so a half-decoded document never
	// reaches the caller.
	target := newLike(v)
	if err := json.Unmarshal(trimmed, target); err != nil {
		return f.quarantine(op, fmt.Errorf("decode: %w", err))
	}
	assign(v, target)

	f.log.Debug().Int("bytes", len(data)).Msg("Document loaded")
	return nil
}

// Quarantine moves the document out of the way because its content was
// rejected by the caller, e.g. a record failed validation.
func (f *JSONFile) Quarantine(reason error) error {
	return f.quarantine("Quarantine", reason)
}

func (f *JSONFile) quarantine(op string, reason error) error {
	target := filepath.Join(f.quarantineDir, fmt.Sprintf("%s.%s-%s",
		filepath.Base(f.path),
		f.now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8],
	))

	if err := moveFile(f.path, target); err != nil {
		f.log.Error().
			Err(err).
			AnErr("reason", reason).
			Str("target", target).
			Msg("Could not quarantine unreadable document")
		return newStoreError(op, f.path, ErrQuarantined, fmt.Sprintf("%v (move failed: %v)", reason, err))
	}

	f.log.Warn().
		AnErr("reason", reason).
		Str("quarantined_as", target).
		Msg("Unreadable document moved to quarantine, starting empty")
	return newStoreError(op, f.path, ErrQuarantined, reason.Error())
}

// Write replaces the document with v encoded as indented JSON.
//
// The previous file is copied to a temporary backup next to it first. When
// the write fails the backup is moved back into place. The backup is always
// removed afterwards.
func (f *JSONFile) Write(v any) error {
	const op = "Write"

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return newStoreError(op, f.path, err, "encode")
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return newStoreError(op, f.path, fmt.Errorf("%w: %v", ErrWriteFailed, err), "create directory")
	}

	backup, err := f.backup()
	if err != nil {
		return newStoreError(op, f.path, fmt.Errorf("%w: %v", ErrWriteFailed, err), "backup")
	}
	if backup != "" {
		defer os.Remove(backup)
	}

	if err := f.writeFile(f.path, data, 0o644); err != nil {
		f.restore(backup)
		return newStoreError(op, f.path, fmt.Errorf("%w: %v", ErrWriteFailed, err), "")
	}

	f.log.Debug().Int("bytes", len(data)).Msg("Document written")
	return nil
}

// backup copies the current document into a temporary file in the same
// directory. It returns "" when there is nothing to back up.
func (f *JSONFile) backup() (string, error) {
	src, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".bak-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (f *JSONFile) restore(backup string) {
	if backup == "" {
		// Nothing existed before; do not leave a partial document behind.
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.log.Error().Err(err).Msg("Could not remove partial document")
		}
		return
	}
	if err := os.Rename(backup, f.path); err != nil {
		f.log.Error().Err(err).Str("backup", backup).Msg("Could not restore previous document")
		return
	}
	f.log.Warn().Msg("Write failed, previous document restored")
}

// moveFile renames src to dst and falls back to copy and remove when the
// quarantine directory lives on another file system.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.RemoveAll(src)
}

// newLike allocates a value of the type v points to. Structs start as a copy
// of *v so fields missing from the document keep the caller's defaults;
// everything else starts from zero.
func newLike(v any) any {
	src := reflect.ValueOf(v).Elem()
	target := reflect.New(src.Type())
	if src.Kind() == reflect.Struct {
		target.Elem().Set(src)
	}
	return target.Interface()
}

func assign(v, decoded any) {
	reflect.ValueOf(v).Elem().Set(reflect.ValueOf(decoded).Elem())
}
