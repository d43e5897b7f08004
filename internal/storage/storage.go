// Package storage keeps ticket attachments in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Attachment folders.
const (
	FolderBefore   = "before"
	FolderAfter    = "after"
	FolderInvoices = "invoices"
)

var (
	ErrNotConfigured = errors.New("attachment storage not configured")
	ErrInvalidFolder = errors.New("invalid attachment folder")
)

// File is an upload held in memory.
type File struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data" validate:"required"`
}

// DetectContentType returns the declared content type, or sniffs it from the data.
func (f File) DetectContentType() string {
	if f.ContentType != "" {
		return f.ContentType
	}
	return mimetype.Detect(f.Data).String()
}

// Store puts and removes attachment objects.
type Store interface {
	// Put stores f under a fresh unique path inside folder and returns the path.
	Put(ctx context.Context, folder string, f File) (string, error)
	PublicURL(objectPath string) string
	// Delete removes every path. It keeps going after a failure and
	// returns the joined errors.
	Delete(ctx context.Context, paths []string) error
}

func validFolder(folder string) error {
	switch folder {
	case FolderBefore, FolderAfter, FolderInvoices:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidFolder, folder)
}

// NewObjectPath builds folder/<unix millis>-<uuid>.<ext>.
func NewObjectPath(folder, filename string, now time.Time) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%d-%s.%s", folder, now.UnixMilli(), uuid.NewString(), ext)
}

// Unconfigured rejects uploads. It is used when no bucket endpoint is set.
type Unconfigured struct{}

func (Unconfigured) Put(context.Context, string, File) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) PublicURL(objectPath string) string { return objectPath }

func (Unconfigured) Delete(_ context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return ErrNotConfigured
}
