package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khotruyen/khotruyen/internal/model"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(t.TempDir(), "https://khotruyen.vn/media/", 1024)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

// 許可されたMIMEタイプのファイルが保存されURLが返ることを検証
func TestService_Save_Success(t *testing.T) {
	svc := newTestService(t)

	data := strings.Repeat("x", 100)
	result, err := svc.Save(context.Background(), strings.NewReader(data), "image/jpeg", int64(len(data)))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !strings.HasPrefix(result.URL, "https://khotruyen.vn/media/") {
		t.Errorf("URL = %q", result.URL)
	}
	if !strings.HasSuffix(result.Filename, ".jpg") {
		t.Errorf("Filename = %q", result.Filename)
	}
	if result.Size != 100 {
		t.Errorf("Size = %d", result.Size)
	}

	saved, err := os.ReadFile(filepath.Join(svc.Dir(), result.Filename))
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if string(saved) != data {
		t.Error("saved content does not match input")
	}
}

// 許可リスト外のMIMEタイプが拒否されることを検証
func TestService_Save_DisallowedType(t *testing.T) {
	svc := newTestService(t)

	tests := []string{"application/x-msdownload", "text/html", "image/svg+xml", ""}

	for _, ct := range tests {
		_, err := svc.Save(context.Background(), strings.NewReader("data"), ct, 4)

		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidUpload {
			t.Errorf("Save(%q): expected INVALID_UPLOAD, got %v", ct, err)
		}
	}
}

// 申告サイズを超える実データが拒否され、ファイルが残らないことを検証
func TestService_Save_OversizedBody(t *testing.T) {
	svc := newTestService(t)

	big := strings.Repeat("x", 2048)
	_, err := svc.Save(context.Background(), strings.NewReader(big), "image/png", 500)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidUpload {
		t.Fatalf("expected INVALID_UPLOAD, got %v", err)
	}

	entries, err := os.ReadDir(svc.Dir())
	if err != nil {
		t.Fatalf("ReadDir error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no leftover files, found %d", len(entries))
	}
}

// 申告サイズ0が拒否されることを検証
func TestService_Save_ZeroSize(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Save(context.Background(), strings.NewReader(""), "image/png", 0)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidUpload {
		t.Fatalf("expected INVALID_UPLOAD, got %v", err)
	}
}
