package providers

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestLocalStorePutGet(t *testing.T) {
	tmpDir := t.TempDir()
	store := NewLocalStore(tmpDir, "http://localhost:8080", "secret")
	ctx := context.Background()

	h, err := store.Put(ctx, "synthetic/u1/r1/synthetic_data.csv", "text/csv", []byte("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if h.Key != "synthetic/u1/r1/synthetic_data.csv" || h.Size != 8 {
		t.Fatalf("unexpected handle %+v", h)
	}

	content, err := os.ReadFile(filepath.Join(tmpDir, "synthetic/u1/r1/synthetic_data.csv"))
	if err != nil {
		t.Fatalf("Failed to read stored file: %v", err)
	}
	if string(content) != "a,b\n1,2\n" {
		t.Errorf("unexpected content %q", content)
	}

	got, err := store.Get(ctx, "/synthetic/u1/r1/synthetic_data.csv")
	if err != nil || string(got) != "a,b\n1,2\n" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestLocalStoreMissing(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "", "secret")
	if _, err := store.Get(context.Background(), "datasets/u1/none.csv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.SignedURL(context.Background(), "datasets/u1/none.csv", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(t.TempDir(), "", "secret")
	key := "synthetic/u1/req-1/synthetic.csv"
	if _, err := store.Put(ctx, key, "text/csv", []byte("a\n1\n")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("deleting a missing key should succeed, got %v", err)
	}
	if err := store.Delete(ctx, "../escape"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{"datasets/u1/a.csv", "datasets/u1/a.csv", false},
		{"/datasets//u1/./a.csv", "datasets/u1/a.csv", false},
		{"../etc/passwd", "", true},
		{"datasets/../../x", "", true},
		{"", "", true},
		{"..", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := CleanKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CleanKey(%q) error = %v", tt.key, err)
			}
			if got != tt.want {
				t.Fatalf("CleanKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestSignedURLVerify(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "http://synth.local/", "secret").(*localStore)
	now := time.Unix(1700000000, 0)
	store.now = func() time.Time { return now }
	ctx := context.Background()
	if _, err := store.Put(ctx, "synthetic/u1/r1/out.csv", "text/csv", []byte("x\n1\n")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	raw, expiresAt, err := store.SignedURL(ctx, "synthetic/u1/r1/out.csv", 10*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if !expiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.HasPrefix(raw, "http://synth.local/v1/synth/artifacts/synthetic/u1/r1/out.csv?") {
		t.Fatalf("unexpected url %s", raw)
	}
	exp, sig := u.Query().Get("expires"), u.Query().Get("sig")

	if err := store.Verify("synthetic/u1/r1/out.csv", exp, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := store.Verify("synthetic/u1/r2/out.csv", exp, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected signature mismatch for other key, got %v", err)
	}

	now = now.Add(11 * time.Minute)
	if err := store.Verify("synthetic/u1/r1/out.csv", exp, sig); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestNewRedisProvider(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := NewRedisProvider(RedisOptions{Addr: mr.Addr()})
	defer client.Close()
	if err := PingRedis(context.Background(), client); err != nil {
		t.Fatalf("PingRedis: %v", err)
	}
}
