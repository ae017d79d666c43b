package internal

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func uploadedFile(t *testing.T, filename, contentType, data string) (multipart.File, *multipart.FileHeader) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write([]byte(data)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	_ = writer.Close()

	req := httptest.NewRequest("POST", "/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	file, fileHeader, err := req.FormFile("file")
	if err != nil {
		t.Fatalf("FormFile: %v", err)
	}
	t.Cleanup(func() {
		_ = file.Close()
	})
	return file, fileHeader
}

func TestSaveUploadWritesFileAndClassifies(t *testing.T) {
	server := newTestServer(t)
	file, fileHeader := uploadedFile(t, "cat.png", "image/png", "pngbytes")

	saved, err := server.saveUpload(file, fileHeader, uploadKindAvatar)
	if err != nil {
		t.Fatalf("saveUpload: %v", err)
	}
	if saved.FileType != "image" {
		t.Fatalf("expected image type, got %q", saved.FileType)
	}
	if !strings.HasPrefix(saved.URL, "/static/avatars/") || !strings.HasSuffix(saved.URL, "-cat.png") {
		t.Fatalf("unexpected url %q", saved.URL)
	}
	if saved.SizeBytes != int64(len("pngbytes")) {
		t.Fatalf("unexpected size %d", saved.SizeBytes)
	}
	if saved.SHA256 == "" {
		t.Fatalf("expected content hash")
	}

	onDisk := filepath.Join(server.uploadDir, "avatars", strings.TrimPrefix(saved.URL, "/static/avatars/"))
	data, err := os.ReadFile(onDisk)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "pngbytes" {
		t.Fatalf("stored bytes mismatch: %q", data)
	}
}

func TestSaveUploadUsesPublicURL(t *testing.T) {
	server := newTestServer(t)
	server.publicURL = "https://forumhub.example.com/"
	file, fileHeader := uploadedFile(t, "doc.pdf", "application/pdf", "pdfbytes")

	saved, err := server.saveUpload(file, fileHeader, uploadKindPost)
	if err != nil {
		t.Fatalf("saveUpload: %v", err)
	}
	if !strings.HasPrefix(saved.URL, "https://forumhub.example.com/static/posts/") {
		t.Fatalf("expected absolute url, got %q", saved.URL)
	}
	if strings.Contains(saved.URL, "com//static") {
		t.Fatalf("trailing slash not trimmed: %q", saved.URL)
	}
}

func TestClassifyFileType(t *testing.T) {
	cases := map[string]string{
		"image/png":       "image",
		"image/jpeg":      "image",
		"video/mp4":       "video",
		"application/pdf": "file",
		"":                "file",
	}
	for contentType, want := range cases {
		if got := classifyFileType(contentType); got != want {
			t.Fatalf("classifyFileType(%q) = %q, want %q", contentType, got, want)
		}
	}
}

func TestSanitizePathComponent(t *testing.T) {
	cases := map[string]string{
		"plain.txt":        "plain.txt",
		"../../etc/passwd": ".._.._etc_passwd",
		"..":               "unnamed",
		"  ":               "unnamed",
		"a/b\\c":           "a_b_c",
	}
	for in, want := range cases {
		if got := sanitizePathComponent(in); got != want {
			t.Fatalf("sanitizePathComponent(%q) = %q, want %q", in, got, want)
		}
	}
}
