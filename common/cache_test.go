package common_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ixe-agent/articleapi/common"
)

func TestCacheRepository(t *testing.T) {
	cache := common.NewCacheStore(time.Hour, time.Hour)

	// 1) Set + Get
	cache.Set("foo", []byte("bar"), time.Hour)
	val, found := cache.Get("foo")
	if !found {
		t.Error("expected 'foo' to be in cache, not found")
	}
	if string(val) != "bar" {
		t.Errorf("expected 'bar', got %s", string(val))
	}

	// 2) Delete
	cache.Delete("foo")
	if _, found = cache.Get("foo"); found {
		t.Error("expected 'foo' to be deleted, but still found")
	}

	// 3) Missing key
	if _, found = cache.Get("nope"); found {
		t.Error("expected missing key to be reported as not found")
	}
}

func TestCacheRepository_DeletePrefix(t *testing.T) {
	cache := common.NewCacheStore(0, 0)

	cache.Set("articles:list:page=1", []byte("a"), 0)
	cache.Set("articles:list:page=2", []byte("b"), 0)
	cache.Set("articles:item:1", []byte("c"), 0)

	cache.DeletePrefix("articles:list:")

	if _, found := cache.Get("articles:list:page=1"); found {
		t.Error("expected page 1 to be dropped")
	}
	if _, found := cache.Get("articles:list:page=2"); found {
		t.Error("expected page 2 to be dropped")
	}
	if _, found := cache.Get("articles:item:1"); !found {
		t.Error("expected unrelated key to survive")
	}
}

func TestCacheRepository_Expiry(t *testing.T) {
	cache := common.NewCacheStore(time.Hour, time.Hour)
	cache.Set("short", []byte("x"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, found := cache.Get("short"); found {
		t.Error("expected entry to expire")
	}
}

func TestLoggerContext(t *testing.T) {
	def := slog.Default()
	if common.LoggerFrom(context.Background()) != def {
		t.Error("expected default logger without one in context")
	}

	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := common.IntoLogger(context.Background(), l)
	if common.LoggerFrom(ctx) != l {
		t.Error("expected logger from context")
	}
	if common.LoggerFromOr(context.Background(), l) != l {
		t.Error("expected fallback logger")
	}
}
