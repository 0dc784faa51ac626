// Package storage хранит сгенерированные файлы отчётов и выдаёт ссылки на них.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"reviewhub/pkg/config"
)

// DownloadPath префикс ссылки на скачивание для локального хранилища
const DownloadPath = "/api/reports/download/"

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

// Storage хранилище файлов отчётов
type Storage interface {
	// Save сохраняет файл и возвращает ссылку на него
	Save(ctx context.Context, fileName, contentType string, data []byte) (string, error)
	Open(ctx context.Context, fileName string) (io.ReadCloser, error)
	Delete(ctx context.Context, fileName string) error
}

// New создаёт хранилище по конфигурации
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Storage(ctx, cfg)
	case "local", "":
		return NewLocalStorage(cfg.LocalDir, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// ValidateName запрещает пути и служебные имена: файл адресуется только по базовому имени
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
