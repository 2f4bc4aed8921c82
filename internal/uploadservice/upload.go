// Package uploadservice stores user supplied images on local disk and hands back an opaque
// reference to them. Nothing outside this package interprets the bytes.
package uploadservice

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// PublicPrefix is the URL path prefix under which stored files are served.
const PublicPrefix = "uploads"

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

type UploadService struct {
	dir      string
	maxBytes int64
}

func NewUploadService(dir string, maxBytes int64) (*UploadService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create upload directory: %w", err)
	}

	return &UploadService{dir: dir, maxBytes: maxBytes}, nil
}

func (s *UploadService) Dir() string {
	return s.dir
}

// SaveImage copies the uploaded file into the upload directory under a random name and returns its reference,
// e.g. "uploads/5f0c...png".
func (s *UploadService) SaveImage(file multipart.File, header *multipart.FileHeader) (string, error) {
	if header.Size > s.maxBytes {
		return "", ErrFileTooLarge
	}

	// http.DetectContentType considers at most the first 512 bytes
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	head = head[:n]

	contentType := http.DetectContentType(head)
	ext, ok := extensions[contentType]
	if !ok {
		return "", ErrUnsupportedImage
	}

	name := uuid.NewString() + ext
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}

	written, err := io.Copy(dst, io.LimitReader(io.MultiReader(bytes.NewReader(head), file), s.maxBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > s.maxBytes {
		err = ErrFileTooLarge
	}
	if err != nil {
		os.Remove(filepath.Join(s.dir, name))
		return "", err
	}

	return path.Join(PublicPrefix, name), nil
}

// Remove deletes a file previously returned by SaveImage. References it did not produce are ignored.
func (s *UploadService) Remove(ref string) error {
	name, ok := strings.CutPrefix(ref, PublicPrefix+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) {
		return nil
	}

	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}
