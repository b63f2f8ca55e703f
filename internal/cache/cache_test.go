package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/streamforge/encoding-service/pkg/models"
)

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	cache, err := NewCache(mr.Host(), mr.Server().Addr().Port, "", 0)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create cache: %v", err)
	}

	return cache, mr
}

func TestNewCache(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	if err := cache.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestCache_VideoOperations(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()

	video := &models.Video{
		ID:       "video-1",
		Title:    "launch teaser",
		Status:   models.VideoStatusEncoding,
		Progress: 40,
		Duration: 60,
	}

	if err := cache.SetVideo(ctx, video, time.Minute); err != nil {
		t.Fatalf("SetVideo failed: %v", err)
	}

	got, err := cache.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected cached video, got miss")
	}
	if got.ID != video.ID || got.Status != video.Status || got.Progress != video.Progress {
		t.Errorf("Cached video mismatch: got %+v", got)
	}

	if err := cache.DeleteVideo(ctx, video.ID); err != nil {
		t.Fatalf("DeleteVideo failed: %v", err)
	}

	got, err = cache.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo after delete failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected miss after delete, got %+v", got)
	}
}

func TestCache_GetVideoMiss(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	got, err := cache.GetVideo(context.Background(), "never-cached")
	if err != nil {
		t.Fatalf("GetVideo failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil on miss, got %+v", got)
	}
}

// countingSource counts how many tokens it actually mints.
type countingSource struct {
	calls int
	token string
	err   error
}

func (s *countingSource) Token(ctx context.Context) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

func TestTokenSource_CachesAcrossCalls(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	source := &countingSource{token: "minted-token"}
	ts := NewTokenSource(cache, source, "broker.publish")

	for i := 0; i < 5; i++ {
		tok, err := ts.Token(ctx)
		if err != nil {
			t.Fatalf("Token call %d failed: %v", i, err)
		}
		if tok != "minted-token" {
			t.Errorf("Token call %d: got %q", i, tok)
		}
	}

	if source.calls != 1 {
		t.Errorf("Expected exactly 1 mint, got %d", source.calls)
	}
}

func TestTokenSource_RemintsAfterExpiry(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	source := &countingSource{token: "minted-token"}
	ts := NewTokenSource(cache, source, "broker.publish")

	if _, err := ts.Token(ctx); err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	// Advance miniredis past the cached entry's TTL.
	mr.FastForward(time.Hour)

	if _, err := ts.Token(ctx); err != nil {
		t.Fatalf("Token after expiry failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("Expected remint after expiry, got %d mints", source.calls)
	}
}

func TestTokenSource_SourceErrorPropagates(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	wantErr := errors.New("key rejected")
	source := &countingSource{err: wantErr}
	ts := NewTokenSource(cache, source, "broker.publish")

	if _, err := ts.Token(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("Expected source error, got %v", err)
	}
}

func TestTokenSource_ScopesAreIsolated(t *testing.T) {
	cache, mr := setupTestCache(t)
	defer mr.Close()
	defer cache.Close()

	ctx := context.Background()
	publish := &countingSource{token: "publish-token"}
	admin := &countingSource{token: "admin-token"}

	if tok, err := NewTokenSource(cache, publish, "broker.publish").Token(ctx); err != nil || tok != "publish-token" {
		t.Fatalf("publish scope: got %q, %v", tok, err)
	}
	if tok, err := NewTokenSource(cache, admin, "broker.admin").Token(ctx); err != nil || tok != "admin-token" {
		t.Fatalf("admin scope: got %q, %v", tok, err)
	}
	if admin.calls != 1 {
		t.Errorf("admin scope should not reuse the publish entry, got %d mints", admin.calls)
	}
}
