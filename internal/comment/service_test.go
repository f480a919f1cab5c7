package comment

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/khotruyen/khotruyen/internal/model"
	"github.com/khotruyen/khotruyen/internal/security"
)

type mockCommentRepo struct {
	findByIDFn     func(ctx context.Context, id string) (*model.Comment, error)
	createFn       func(ctx context.Context, comment *model.Comment) error
	updateStatusFn func(ctx context.Context, id string, status model.CommentStatus) error
	listByStoryFn  func(ctx context.Context, storyID string, status model.CommentStatus) ([]*model.Comment, error)
	listByStatusFn func(ctx context.Context, status model.CommentStatus, limit int) ([]*model.Comment, error)
	deleteByIDFn   func(ctx context.Context, id string) error
}

func (m *mockCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	return m.createFn(ctx, comment)
}
func (m *mockCommentRepo) UpdateStatus(ctx context.Context, id string, status model.CommentStatus) error {
	return m.updateStatusFn(ctx, id, status)
}
func (m *mockCommentRepo) ListByStory(ctx context.Context, storyID string, status model.CommentStatus) ([]*model.Comment, error) {
	return m.listByStoryFn(ctx, storyID, status)
}
func (m *mockCommentRepo) ListByStatus(ctx context.Context, status model.CommentStatus, limit int) ([]*model.Comment, error) {
	return m.listByStatusFn(ctx, status, limit)
}
func (m *mockCommentRepo) DeleteByID(ctx context.Context, id string) error {
	return m.deleteByIDFn(ctx, id)
}

type mockStoryRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Story, error)
}

func (m *mockStoryRepo) FindByID(ctx context.Context, id string) (*model.Story, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockStoryRepo) FindBySlug(ctx context.Context, slug string) (*model.Story, error) {
	return nil, nil
}
func (m *mockStoryRepo) SlugExists(ctx context.Context, slug string) (bool, error) { return false, nil }
func (m *mockStoryRepo) Create(ctx context.Context, story *model.Story) error      { return nil }
func (m *mockStoryRepo) Update(ctx context.Context, story *model.Story) error      { return nil }
func (m *mockStoryRepo) DeleteByID(ctx context.Context, id string) error           { return nil }
func (m *mockStoryRepo) List(ctx context.Context, search string, includeHidden bool, offset, limit int) ([]*model.Story, error) {
	return nil, nil
}
func (m *mockStoryRepo) Count(ctx context.Context, search string, includeHidden bool) (int, error) {
	return 0, nil
}

func publishedStoryRepo() *mockStoryRepo {
	return &mockStoryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Story, error) {
			return &model.Story{ID: id, Status: model.StoryStatusOngoing}, nil
		},
	}
}

func user() model.Viewer {
	return model.Viewer{UserID: "user-1", Role: model.RoleUser, Authenticated: true}
}

// 投稿がサニタイズされて承認待ちで作成されることを検証
func TestService_Post_SanitizesAndPends(t *testing.T) {
	var created *model.Comment

	commentRepo := &mockCommentRepo{
		createFn: func(ctx context.Context, comment *model.Comment) error {
			created = comment
			return nil
		},
	}

	svc := NewService(commentRepo, publishedStoryRepo(), security.NewContentSanitizer())

	comment, err := svc.Post(context.Background(), user(), "story-1", `<p>truyện hay lắm</p><script>evil()</script>`)
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if comment.Status != model.CommentStatusPending {
		t.Errorf("status = %q, want pending", comment.Status)
	}
	if strings.Contains(created.Body, "<script") {
		t.Errorf("script survived sanitization: %q", created.Body)
	}
	if !strings.Contains(created.Body, "truyện hay lắm") {
		t.Errorf("comment text dropped: %q", created.Body)
	}
}

// サニタイズ後に空になる投稿が拒否されることを検証
func TestService_Post_EmptyAfterSanitize(t *testing.T) {
	svc := NewService(&mockCommentRepo{}, publishedStoryRepo(), security.NewContentSanitizer())

	_, err := svc.Post(context.Background(), user(), "story-1", `<script>only evil</script>`)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
}

// 匿名投稿が拒否されることを検証
func TestService_Post_RequiresAuth(t *testing.T) {
	svc := NewService(&mockCommentRepo{}, publishedStoryRepo(), security.NewContentSanitizer())

	_, err := svc.Post(context.Background(), model.Anonymous(), "story-1", "hay quá")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED, got %v", err)
	}
}

// 承認と却下の状態遷移を検証
func TestService_Moderate(t *testing.T) {
	var updatedStatus model.CommentStatus

	commentRepo := &mockCommentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Comment, error) {
			return &model.Comment{ID: id, Status: model.CommentStatusPending}, nil
		},
		updateStatusFn: func(ctx context.Context, id string, status model.CommentStatus) error {
			updatedStatus = status
			return nil
		},
	}

	svc := NewService(commentRepo, publishedStoryRepo(), security.NewContentSanitizer())

	approved, err := svc.Moderate(context.Background(), "comment-1", true)
	if err != nil {
		t.Fatalf("Moderate(approve) error = %v", err)
	}
	if approved.Status != model.CommentStatusApproved || updatedStatus != model.CommentStatusApproved {
		t.Errorf("approve: status = %q", updatedStatus)
	}

	rejected, err := svc.Moderate(context.Background(), "comment-1", false)
	if err != nil {
		t.Fatalf("Moderate(reject) error = %v", err)
	}
	if rejected.Status != model.CommentStatusRejected || updatedStatus != model.CommentStatusRejected {
		t.Errorf("reject: status = %q", updatedStatus)
	}
}

// 他人のコメント削除が拒否されることを検証
func TestService_Delete_OwnerOrAdminOnly(t *testing.T) {
	deleted := false

	commentRepo := &mockCommentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Comment, error) {
			return &model.Comment{ID: id, UserID: "owner-1"}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}

	svc := NewService(commentRepo, publishedStoryRepo(), security.NewContentSanitizer())

	// 他人は削除不可
	stranger := model.Viewer{UserID: "stranger", Role: model.RoleUser, Authenticated: true}
	err := svc.Delete(context.Background(), stranger, "comment-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeForbidden {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}
	if deleted {
		t.Fatal("comment must not be deleted by a stranger")
	}

	// 本人は削除可
	owner := model.Viewer{UserID: "owner-1", Role: model.RoleUser, Authenticated: true}
	if err := svc.Delete(context.Background(), owner, "comment-1"); err != nil {
		t.Fatalf("Delete(owner) error = %v", err)
	}
	if !deleted {
		t.Error("expected deletion by owner")
	}

	// 管理者も削除可
	deleted = false
	admin := model.Viewer{UserID: "admin-1", Role: model.RoleAdmin, Authenticated: true}
	if err := svc.Delete(context.Background(), admin, "comment-1"); err != nil {
		t.Fatalf("Delete(admin) error = %v", err)
	}
	if !deleted {
		t.Error("expected deletion by admin")
	}
}
