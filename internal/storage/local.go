// Package storage keeps document attachments on local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	keyTimeLayout = "20060102_150405"
	filePerm      = 0o644
	dirPerm       = 0o755
)

var (
	// ErrInvalidKey indicates a key that could escape the upload directory.
	ErrInvalidKey = errors.New("invalid attachment key")
	// ErrNotFound indicates the attachment is not on disk.
	ErrNotFound = errors.New("attachment not found")
)

// Store persists attachment bytes under opaque keys.
type Store interface {
	Save(originalName string, content io.Reader) (string, error)
	Open(key string) (io.ReadSeekCloser, error)
	Remove(key string) error
}

// Upload is a file received from a client.
type Upload struct {
	Name    string
	Content io.Reader
}

// Download is an opened stored file. The caller closes Content.
type Download struct {
	Filename string
	Content  io.ReadSeekCloser
}

// LocalConfig configures a Local store.
type LocalConfig struct {
	Dir   string
	Clock func() time.Time
}

// Local stores attachments as flat files in one directory.
type Local struct {
	dir   string
	clock func() time.Time
}

// NewLocal creates the upload directory if needed and returns a Local store.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Local{dir: cfg.Dir, clock: clock}, nil
}

// Save writes content to a fresh key derived from the upload time and the
// original file extension.
func (l *Local) Save(originalName string, content io.Reader) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s_%s%s", l.clock().Format(keyTimeLayout), id.String(), strings.ToLower(filepath.Ext(originalName)))

	target := filepath.Join(l.dir, key)
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(file, content); err != nil {
		_ = file.Close()
		_ = os.Remove(target)
		return "", err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(target)
		return "", err
	}
	return key, nil
}

// Open returns a reader for key.
func (l *Local) Open(key string) (io.ReadSeekCloser, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Remove deletes key. A missing file is not an error.
func (l *Local) Remove(key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) resolve(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", ErrInvalidKey
	}
	return filepath.Join(l.dir, key), nil
}
