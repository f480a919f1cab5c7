package bookmark

import (
	"context"
	"errors"
	"testing"

	"github.com/khotruyen/khotruyen/internal/model"
)

type mockBookmarkRepo struct {
	existsFn func(ctx context.Context, userID, storyID string) (bool, error)
	createFn func(ctx context.Context, bookmark *model.Bookmark) error
	deleteFn func(ctx context.Context, userID, storyID string) error
	listFn   func(ctx context.Context, userID string) ([]*model.Bookmark, error)
}

func (m *mockBookmarkRepo) Exists(ctx context.Context, userID, storyID string) (bool, error) {
	return m.existsFn(ctx, userID, storyID)
}
func (m *mockBookmarkRepo) Create(ctx context.Context, bookmark *model.Bookmark) error {
	return m.createFn(ctx, bookmark)
}
func (m *mockBookmarkRepo) Delete(ctx context.Context, userID, storyID string) error {
	return m.deleteFn(ctx, userID, storyID)
}
func (m *mockBookmarkRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Bookmark, error) {
	return m.listFn(ctx, userID)
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

func user() model.Viewer {
	return model.Viewer{UserID: "user-1", Role: model.RoleUser, Authenticated: true}
}

// 追加が冪等であることを検証
func TestService_Add_Idempotent(t *testing.T) {
	created := 0

	bookmarkRepo := &mockBookmarkRepo{
		existsFn: func(ctx context.Context, userID, storyID string) (bool, error) {
			return created > 0, nil
		},
		createFn: func(ctx context.Context, bookmark *model.Bookmark) error {
			created++
			return nil
		},
	}
	storyRepo := &mockStoryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Story, error) {
			return &model.Story{ID: id, Status: model.StoryStatusOngoing}, nil
		},
	}

	svc := NewService(bookmarkRepo, storyRepo)

	if err := svc.Add(context.Background(), user(), "story-1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := svc.Add(context.Background(), user(), "story-1"); err != nil {
		t.Fatalf("second Add() error = %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
}

// 非公開ストーリーのブックマークが404相当になることを検証
func TestService_Add_HiddenStory(t *testing.T) {
	storyRepo := &mockStoryRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Story, error) {
			return &model.Story{ID: id, Status: model.StoryStatusHidden}, nil
		},
	}

	svc := NewService(&mockBookmarkRepo{}, storyRepo)

	err := svc.Add(context.Background(), user(), "story-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeStoryNotFound {
		t.Fatalf("expected STORY_NOT_FOUND, got %v", err)
	}
}

// 匿名のブックマーク操作が拒否されることを検証
func TestService_RequiresAuth(t *testing.T) {
	svc := NewService(&mockBookmarkRepo{}, &mockStoryRepo{})

	var apiErr *model.APIError

	if err := svc.Add(context.Background(), model.Anonymous(), "story-1"); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("Add: expected UNAUTHORIZED, got %v", err)
	}
	if err := svc.Remove(context.Background(), model.Anonymous(), "story-1"); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("Remove: expected UNAUTHORIZED, got %v", err)
	}
	if _, err := svc.List(context.Background(), model.Anonymous()); !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUnauthorized {
		t.Errorf("List: expected UNAUTHORIZED, got %v", err)
	}
}
