package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage хранит файлы в каталоге на диске
type LocalStorage struct {
	dir     string
	baseURL string
}

// NewLocalStorage создаёт каталог при необходимости
func NewLocalStorage(dir, publicBaseURL string) (*LocalStorage, error) {
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reports dir: %w", err)
	}
	return &LocalStorage{dir: dir, baseURL: strings.TrimSuffix(publicBaseURL, "/")}, nil
}

// Save пишет во временный файл и переименовывает, чтобы скачивание не увидело частичный файл
func (s *LocalStorage) Save(_ context.Context, fileName, _ string, data []byte) (string, error) {
	if err := ValidateName(fileName); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, fileName)); err != nil {
		return "", fmt.Errorf("failed to move report file: %w", err)
	}

	return s.baseURL + DownloadPath + fileName, nil
}

func (s *LocalStorage) Open(_ context.Context, fileName string) (io.ReadCloser, error) {
	if err := ValidateName(fileName); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, fileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open report file: %w", err)
	}
	return f, nil
}

// Delete отсутствующий файл не считается ошибкой
func (s *LocalStorage) Delete(_ context.Context, fileName string) error {
	if err := ValidateName(fileName); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, fileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete report file: %w", err)
	}
	return nil
}
