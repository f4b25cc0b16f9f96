// Package storage keeps uploaded chat files on local disk.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Dir is the directory, relative to the store root, that holds chat files.
const Dir = "chat_files"

const sniffLen = 3072

var (
	ErrTooLarge       = errors.New("file too large")
	ErrTypeNotAllowed = errors.New("file type not allowed")
	ErrInvalidPath    = errors.New("invalid file path")
)

var allowedPrefixes = []string{"image/", "audio/", "video/"}

var allowedTypes = map[string]bool{
	"application/pdf": true,
	"application/zip": true,
	"text/plain":      true,
	"text/csv":        true,
}

// Saved describes a stored file.
type Saved struct {
	Path     string `json:"file"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// DiskStore writes files under root/chat_files and renders their public
// URL below baseURL.
type DiskStore struct {
	root     string
	baseURL  string
	maxBytes int64
}

func NewDiskStore(root, baseURL string, maxBytes int64) (*DiskStore, error) {
	if err := os.MkdirAll(filepath.Join(root, Dir), 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &DiskStore{root: root, baseURL: baseURL, maxBytes: maxBytes}, nil
}

// Save sniffs the content type, rejects types outside the allow-list and
// writes the file under a unique name. The returned path is relative to the
// store root.
func (s *DiskStore) Save(ctx context.Context, name string, r io.Reader) (Saved, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Saved{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	mime := baseType(mimetype.Detect(head).String())
	if !allowed(mime) {
		return Saved{}, fmt.Errorf("%w: %s", ErrTypeNotAllowed, mime)
	}
	if err := ctx.Err(); err != nil {
		return Saved{}, err
	}

	rel := path.Join(Dir, uuid.NewString()+"_"+sanitizeFilename(name))
	dest := filepath.Join(s.root, filepath.FromSlash(rel))
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Saved{}, fmt.Errorf("create file: %w", err)
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	if s.maxBytes > 0 {
		src = io.LimitReader(src, s.maxBytes+1)
	}
	size, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && size > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dest)
		if errors.Is(err, ErrTooLarge) {
			return Saved{}, err
		}
		return Saved{}, fmt.Errorf("write file: %w", err)
	}
	return Saved{Path: rel, MimeType: mime, Size: size}, nil
}

// Validate accepts only paths of existing files inside chat_files.
func (s *DiskStore) Validate(p string) error {
	clean := path.Clean(p)
	if clean != p || path.IsAbs(p) || !strings.HasPrefix(clean, Dir+"/") || strings.Contains(clean, "..") {
		return ErrInvalidPath
	}
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(clean)))
	if err != nil || info.IsDir() {
		return ErrInvalidPath
	}
	return nil
}

// URL renders the public URL of a stored path.
func (s *DiskStore) URL(p string) string {
	return s.baseURL + strings.TrimPrefix(p, "/")
}

// Root is the directory served as the media base URL.
func (s *DiskStore) Root() string {
	return s.root
}

func baseType(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	return strings.TrimSpace(base)
}

func allowed(mime string) bool {
	if allowedTypes[mime] {
		return true
	}
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == 0:
			return -1
		case r == ' ':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "unnamed"
	}
	return name
}
