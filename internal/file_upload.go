package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxUploadSize caps any single uploaded file.
const maxUploadSize = 25 << 20

// Upload kinds map to subdirectories of the upload root.
const (
	uploadKindMessage = "messages"
	uploadKindForum   = "forums"
	uploadKindAvatar  = "avatars"
	uploadKindPost    = "posts"
)

// savedUpload describes a file written under the upload root.
type savedUpload struct {
	URL       string
	FileType  string
	SizeBytes int64
	SHA256    string
}

// saveUpload writes one multipart file under uploadDir/kind with a random
// name, returning its public URL and coarse type. The caller owns form
// parsing and size limits.
func (s *Server) saveUpload(file multipart.File, header *multipart.FileHeader, kind string) (savedUpload, error) {
	filename := sanitizePathComponent(filepath.Base(header.Filename))
	if filename == "unnamed" {
		return savedUpload{}, errors.New("invalid filename")
	}
	if header.Size > maxUploadSize {
		return savedUpload{}, errors.New("file too large")
	}

	kindDir := filepath.Join(s.uploadDir, kind)
	if err := os.MkdirAll(kindDir, 0755); err != nil {
		return savedUpload{}, fmt.Errorf("create upload directory: %w", err)
	}

	stored := fmt.Sprintf("%s-%s", uuid.NewString(), filename)
	storagePath := filepath.Join(kindDir, stored)
	destFile, err := os.Create(storagePath)
	if err != nil {
		return savedUpload{}, fmt.Errorf("create file: %w", err)
	}
	defer destFile.Close()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(destFile, hasher), file)
	if err != nil {
		os.Remove(storagePath)
		return savedUpload{}, fmt.Errorf("save file: %w", err)
	}

	s.metrics.Uploads.Inc()
	return savedUpload{
		URL:       s.staticURL(kind, stored),
		FileType:  classifyFileType(header.Header.Get("Content-Type")),
		SizeBytes: written,
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// staticURL builds the serving URL for a stored file. With a public URL
// configured the link is absolute, so API responses work across origins.
func (s *Server) staticURL(kind, stored string) string {
	path := "/static/" + kind + "/" + stored
	if s.publicURL == "" {
		return path
	}
	return strings.TrimRight(s.publicURL, "/") + path
}

// classifyFileType buckets a MIME type into image, video, or file.
func classifyFileType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	default:
		return "file"
	}
}

// StaticHandler serves uploaded files under the /static/ prefix.
func (s *Server) StaticHandler() http.Handler {
	return http.StripPrefix("/static/", http.FileServer(http.Dir(s.uploadDir)))
}

// formFile fetches the named multipart file if one was attached.
func formFile(r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	return file, header, true, nil
}

// sanitizePathComponent strips path separators and null bytes from a name.
func sanitizePathComponent(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return "unnamed"
	}
	return s
}
