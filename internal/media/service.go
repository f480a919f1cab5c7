// Package media はカバー画像とオーディオファイルのアップロード保存を提供する。
//
// ファイルはローカルディスクに保存され、公開URLが返される。
// 保存名はUUIDで採番されるため、アップロード元のファイル名は
// パスとして使用されない（パストラバーサル対策）。
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/khotruyen/khotruyen/internal/model"
)

// allowedTypes は許可されるMIMEタイプと保存時の拡張子。
// カバー画像とオーディオブック音源のみを受け付ける。
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"audio/mpeg": ".mp3",
	"audio/mp4":  ".m4a",
	"audio/ogg":  ".ogg",
}

// UploadResult はアップロード結果。
type UploadResult struct {
	URL      string
	Filename string
	Size     int64
}

// Service はメディアファイルの保存を提供する。
type Service struct {
	dir     string
	baseURL string
	maxSize int64
}

// NewService はServiceを生成する。保存先ディレクトリが無ければ作成する。
func NewService(dir, baseURL string, maxSize int64) (*Service, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("メディアディレクトリの作成に失敗しました: %w", err)
	}
	return &Service{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		maxSize: maxSize,
	}, nil
}

// Save はアップロードされたファイルを検証して保存し、公開URLを返す。
// contentTypeが許可リストに無い場合とサイズ超過の場合はエラーを返す。
func (s *Service) Save(ctx context.Context, r io.Reader, contentType string, size int64) (*UploadResult, error) {
	ext, ok := allowedTypes[strings.ToLower(contentType)]
	if !ok {
		return nil, model.NewInvalidUploadError(contentType)
	}
	if size <= 0 || size > s.maxSize {
		return nil, model.NewInvalidUploadError("kích thước tệp")
	}

	filename := uuid.New().String() + ext
	path := filepath.Join(s.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create media file: %w", err)
	}
	defer f.Close()

	// 申告サイズを超えた書き込みを拒否する
	written, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write media file: %w", err)
	}
	if written > s.maxSize {
		os.Remove(path)
		return nil, model.NewInvalidUploadError("kích thước tệp")
	}

	slog.Info("media uploaded",
		slog.String("filename", filename),
		slog.Int64("size", written),
	)
	return &UploadResult{
		URL:      s.baseURL + "/" + filename,
		Filename: filename,
		Size:     written,
	}, nil
}

// Dir はメディアファイルの保存先ディレクトリを返す。静的配信用。
func (s *Service) Dir() string {
	return s.dir
}
