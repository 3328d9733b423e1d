package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRedisTimeout  = 10 * time.Second
	maxResponseSizeBytes = 2 << 20
)

// RedisConfig carries the connection settings for the REST-based Redis
// backend (Upstash and compatible services).
type RedisConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix prepends prefix to every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.keyPrefix = strings.TrimSpace(prefix)
	}
}

// WithHTTPClient overrides the pooled HTTP client shared by all sessions.
func WithHTTPClient(client *http.Client) RedisOption {
	return func(s *RedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// RedisStore is the durable Store variant. Every command is a JSON array
// POSTed to the REST endpoint with a bearer token; transport faults surface
// as ErrUnavailable so callers retry instead of mistaking them for absence.
type RedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// NewRedisStore validates the config and builds the store.
func NewRedisStore(cfg RedisConfig, opts ...RedisOption) (*RedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("redis rest url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("redis rest token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	s := &RedisStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Get returns the value stored at key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.exec(ctx, []any{"GET", s.keyPrefix + key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrNotFound
	}

	// The REST API returns string values as a JSON string.
	var value string
	if err := json.Unmarshal(result, &value); err != nil {
		return nil, fmt.Errorf("decode get result: %w", err)
	}
	return []byte(value), nil
}

// Set writes the value at key with an optional expiry.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := []any{"SET", s.keyPrefix + key, string(value)}
	if ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(ttl))
	}
	_, err := s.exec(ctx, cmd)
	return err
}

// Delete removes the key. Absent keys delete cleanly.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	_, err := s.exec(ctx, []any{"DEL", s.keyPrefix + key})
	return err
}

// Ping probes the backend.
func (s *RedisStore) Ping(ctx context.Context) error {
	_, err := s.exec(ctx, []any{"PING"})
	return err
}

func (s *RedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: execute redis request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read redis response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: redis http status=%d body=%s", ErrUnavailable, resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode redis response: %v", ErrUnavailable, err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("redis command failed: %s", parsed.Error)
	}
	return &parsed, nil
}

// ttlSeconds rounds a duration up to whole seconds for the EX argument.
func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
