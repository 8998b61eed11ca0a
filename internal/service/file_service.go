package service

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"go-direct-chat/pkg/apperrors"
	"go-direct-chat/pkg/config"
	"go-direct-chat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StoredFile describes one uploaded attachment. Path is relative to the
// storage root and doubles as the public download reference.
type StoredFile struct {
	Path     string `json:"fileUrl"`
	Name     string `json:"fileName"`
	Size     int64  `json:"fileSize"`
	MimeType string `json:"fileType"`
}

// FileService stores uploaded attachments on local disk under a per-upload
// nonce directory so concurrent uploads of the same filename never collide.
type FileService struct {
	basePath    string
	maxFileSize int64
}

func NewFileService() *FileService {
	basePath := "./uploads"
	var maxSize int64 = 50 << 20
	if config.GlobalConfig.File != nil {
		if config.GlobalConfig.File.StoragePath != "" {
			basePath = config.GlobalConfig.File.StoragePath
		}
		if config.GlobalConfig.File.MaxFileSize > 0 {
			maxSize = config.GlobalConfig.File.MaxFileSize
		}
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		logger.L.Error("Failed to create upload directory", zap.String("path", basePath), zap.Error(err))
	}
	return &FileService{basePath: basePath, maxFileSize: maxSize}
}

func (s *FileService) BasePath() string { return s.basePath }

func (s *FileService) MaxFileSize() int64 { return s.maxFileSize }

// Store writes the uploaded file to disk and returns its public reference.
func (s *FileService) Store(header *multipart.FileHeader) (*StoredFile, error) {
	if header.Size > s.maxFileSize {
		return nil, apperrors.InvalidArg(fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxFileSize))
	}

	src, err := header.Open()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to open uploaded file", err)
	}
	defer src.Close()

	name := sanitizeFilename(header.Filename)
	nonce := uuid.NewString()
	dir := filepath.Join(s.basePath, nonce)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to create upload directory", err)
	}

	dstPath := filepath.Join(dir, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to create file", err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(dstPath)
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to write file", err)
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mimeTypeByExtension(name)
	}

	logger.L.Info("File stored",
		zap.String("file", name),
		zap.Int64("size", written),
		zap.String("nonce", nonce))

	return &StoredFile{
		Path:     filepath.ToSlash(filepath.Join(nonce, name)),
		Name:     header.Filename,
		Size:     written,
		MimeType: mimeType,
	}, nil
}

// Delete removes a stored file by its reference and cleans up the nonce
// directory when it becomes empty.
func (s *FileService) Delete(reference string) error {
	full, err := s.Resolve(reference)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return apperrors.NotFound("file not found")
		}
		return apperrors.Wrap(apperrors.CodeInternal, "failed to delete file", err)
	}
	// Best effort: Remove on a non-empty directory simply fails.
	os.Remove(filepath.Dir(full))
	return nil
}

// Resolve maps a public reference to a path inside the storage root,
// rejecting anything that would escape it.
func (s *FileService) Resolve(reference string) (string, error) {
	if reference == "" || strings.Contains(reference, "..") {
		return "", apperrors.InvalidArg("invalid file reference")
	}
	full := filepath.Join(s.basePath, filepath.FromSlash(reference))
	base, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "failed to resolve storage root", err)
	}
	abs, err := filepath.Abs(full)
	if err != nil || !strings.HasPrefix(abs, base+string(os.PathSeparator)) {
		return "", apperrors.InvalidArg("invalid file reference")
	}
	return full, nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." {
		name = "file"
	}
	return name
}

var extensionMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".zip":  "application/zip",
}

func mimeTypeByExtension(name string) string {
	if t, ok := extensionMimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return "application/octet-stream"
}
