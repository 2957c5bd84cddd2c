package transcription

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"clipforge/internal/logging"
	"clipforge/internal/services"
	"clipforge/internal/subtitles"
)

type stubProvider struct {
	name  string
	words []subtitles.Word
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Transcribe(context.Context, Request) ([]subtitles.Word, error) {
	s.calls++
	return s.words, s.err
}

func sampleWords() []subtitles.Word {
	return []subtitles.Word{
		{Text: "second", Start: 0.5, End: 0.9},
		{Text: " first ", Start: 0.0, End: 0.4},
	}
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mp4")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestChainUsesPrimaryWhenItSucceeds(t *testing.T) {
	primary := &stubProvider{name: "whisperx", words: sampleWords()}
	fallback := &stubProvider{name: "whisper_api", words: sampleWords()}
	chain := NewChain(logging.NewNop(), nil, primary, fallback)

	result, err := chain.Transcribe(context.Background(), "", Request{AudioPath: "a.wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Engine != "whisperx" || result.Fallback {
		t.Fatalf("unexpected engine %+v", result)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback should not run")
	}
	if result.Words[0].Text != "first" {
		t.Fatalf("expected normalized, sorted words, got %+v", result.Words)
	}
}

func TestChainFallsBackTransparently(t *testing.T) {
	primary := &stubProvider{name: "whisperx", err: services.Wrap(services.ErrEngineUnavailable, "transcribe", "whisperx", "uvx missing", nil)}
	fallback := &stubProvider{name: "whisper_api", words: sampleWords()}
	chain := NewChain(logging.NewNop(), nil, primary, fallback)

	result, err := chain.Transcribe(context.Background(), "", Request{AudioPath: "a.wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Engine != "whisper_api" || !result.Fallback || len(result.Words) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestChainTreatsEmptyTranscriptAsFailure(t *testing.T) {
	primary := &stubProvider{name: "whisperx"}
	fallback := &stubProvider{name: "whisper_api", words: sampleWords()}
	result, err := NewChain(logging.NewNop(), nil, primary, fallback).Transcribe(context.Background(), "", Request{})
	if err != nil || result.Engine != "whisper_api" {
		t.Fatalf("expected fallback result, got %+v %v", result, err)
	}
}

func TestChainAllEnginesFail(t *testing.T) {
	primary := &stubProvider{name: "whisperx", err: errors.New("boom")}
	fallback := &stubProvider{name: "whisper_api", err: errors.New("bang")}
	_, err := NewChain(logging.NewNop(), nil, primary, fallback).Transcribe(context.Background(), "", Request{})
	if !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "boom") || !strings.Contains(msg, "bang") {
		t.Fatalf("expected both causes in %q", msg)
	}
}

func TestChainWithoutProviders(t *testing.T) {
	if _, err := NewChain(logging.NewNop(), nil).Transcribe(context.Background(), "", Request{}); !errors.Is(err, services.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestChainCachesByFingerprint(t *testing.T) {
	source := writeSource(t, "video bytes")
	primary := &stubProvider{name: "whisperx", words: sampleWords()}
	chain := NewChain(logging.NewNop(), NewMemoryCache(time.Hour), primary)

	first, err := chain.Transcribe(context.Background(), source, Request{})
	if err != nil || first.Cached {
		t.Fatalf("first call: %+v %v", first, err)
	}
	second, err := chain.Transcribe(context.Background(), source, Request{})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.Cached || primary.calls != 1 {
		t.Fatalf("expected cache hit, got %+v after %d calls", second, primary.calls)
	}
}

func TestFingerprintUsesSizeAndHead(t *testing.T) {
	a, err := Fingerprint(writeSource(t, "same"))
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	b, _ := Fingerprint(writeSource(t, "same"))
	c, _ := Fingerprint(writeSource(t, "diff"))
	if a != b {
		t.Fatalf("identical content should match: %s vs %s", a, b)
	}
	if a == c {
		t.Fatal("different content should not match")
	}
	if _, err := Fingerprint(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }
	ctx := context.Background()
	if err := cache.Set(ctx, "k", Result{Engine: "whisperx"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "k"); !ok {
		t.Fatal("expected hit")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := cache.Get(ctx, "k"); ok {
		t.Fatal("expected expiry")
	}
}

func TestRedisCacheRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cache := NewRedisCache(rdb, "test", time.Hour)
	ctx := context.Background()
	if _, ok, err := cache.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
	if err := cache.Set(ctx, "k", Result{Engine: "whisperx", Words: sampleWords()}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := cache.Get(ctx, "k")
	if err != nil || !ok || got.Engine != "whisperx" || len(got.Words) != 2 {
		t.Fatalf("unexpected %+v %v %v", got, ok, err)
	}
	if ttl := mr.TTL("test:transcript:k"); ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}
