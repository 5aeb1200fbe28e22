package providers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("artifact not found")
	ErrInvalidKey       = errors.New("invalid artifact key")
	ErrInvalidSignature = errors.New("invalid artifact signature")
	ErrExpired          = errors.New("artifact link expired")
)

// Handle identifies a stored object.
type Handle struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// ArtifactStore holds datasets and generated artifacts.
type ArtifactStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (Handle, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes an object; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)
	Verify(key string, expires string, signature string) error
}

type localStore struct {
	rootDir string
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewLocalStore stores objects under rootDir. Signed URLs point at
// baseURL + "/v1/synth/artifacts/<key>".
func NewLocalStore(rootDir, baseURL, secret string) ArtifactStore {
	return &localStore{
		rootDir: rootDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		now:     time.Now,
	}
}

// CleanKey normalizes key and rejects keys escaping the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

func (s *localStore) path(key string) (string, string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return k, filepath.Join(s.rootDir, filepath.FromSlash(k)), nil
}

func (s *localStore) Put(ctx context.Context, key string, contentType string, data []byte) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}
	k, dst, err := s.path(key)
	if err != nil {
		return Handle{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Handle{}, fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return Handle{}, fmt.Errorf("create artifact: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Handle{}, fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Handle{}, fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return Handle{}, fmt.Errorf("publish artifact: %w", err)
	}
	return Handle{Key: k, Size: int64(len(data))}, nil
}

func (s *localStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, src, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return b, nil
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	_, dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

func (s *localStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	k, src, err := s.path(key)
	if err != nil {
		return "", time.Time{}, err
	}
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return "", time.Time{}, ErrNotFound
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	expiresAt := s.now().Add(ttl).UTC().Truncate(time.Second)
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	q := url.Values{}
	q.Set("expires", exp)
	q.Set("sig", s.sign(k, exp))
	return s.baseURL + "/v1/synth/artifacts/" + k + "?" + q.Encode(), expiresAt, nil
}

// Verify checks a signature produced by SignedURL.
func (s *localStore) Verify(key string, expires string, signature string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	want := s.sign(k, expires)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrInvalidSignature
	}
	ts, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	if s.now().Unix() > ts {
		return ErrExpired
	}
	return nil
}

func (s *localStore) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(key))
	_, _ = mac.Write([]byte("|"))
	_, _ = mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}
