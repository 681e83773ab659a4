package storage

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// Rendered reels can be large; each attempt gets its own timeout.
	uploadTimeout = 300 * time.Second

	downloadTimeout = 120 * time.Second

	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Storage is a Supabase Storage bucket client.
type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	log        logrus.FieldLogger

	// retryDelay is swapped out in tests.
	retryDelay func(attempt int) time.Duration
}

func New(url, serviceKey, bucket string, log logrus.FieldLogger) *Storage {
	return &Storage{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log:        log.WithField("component", "storage"),
		retryDelay: retryDelay,
	}
}

func (s *Storage) objectURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, strings.TrimLeft(path, "/"))
}

// UploadFile streams a local file to the bucket with retries. Existing objects
// are overwritten.
func (s *Storage) UploadFile(ctx context.Context, storagePath, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	return s.withRetry(ctx, "upload", storagePath, uploadTimeout, func(ctx context.Context) (bool, error) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return false, fmt.Errorf("failed to rewind %s: %w", localPath, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(storagePath), f)
		if err != nil {
			return false, fmt.Errorf("failed to create request: %w", err)
		}
		req.ContentLength = stat.Size()
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("x-upsert", "true")

		resp, err := s.client.Do(req)
		if err != nil {
			return isRetryableError(err), fmt.Errorf("failed to upload: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
			return false, nil
		}
		body, _ := io.ReadAll(resp.Body)
		return isRetryableStatus(resp.StatusCode),
			fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
	})
}

// DownloadFile writes an object to localPath with retries.
func (s *Storage) DownloadFile(ctx context.Context, storagePath, localPath string) error {
	return s.withRetry(ctx, "download", storagePath, downloadTimeout, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(storagePath), nil)
		if err != nil {
			return false, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+s.serviceKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return isRetryableError(err), fmt.Errorf("failed to download: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return isRetryableStatus(resp.StatusCode),
				fmt.Errorf("download failed with status %d: %s", resp.StatusCode, truncate(string(body), 200))
		}

		out, err := os.Create(localPath)
		if err != nil {
			return false, fmt.Errorf("failed to create %s: %w", localPath, err)
		}
		if _, err := io.Copy(out, resp.Body); err != nil {
			out.Close()
			os.Remove(localPath)
			return true, fmt.Errorf("failed to read download body: %w", err)
		}
		return false, out.Close()
	})
}

// GetPublicURL returns the public URL for an object in a public bucket.
func (s *Storage) GetPublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, strings.TrimLeft(path, "/"))
}

// withRetry runs attempt until it succeeds, reports a non-retryable error,
// or the retry budget is spent.
func (s *Storage) withRetry(ctx context.Context, op, path string, timeout time.Duration, attempt func(ctx context.Context) (bool, error)) error {
	log := s.log.WithFields(logrus.Fields{"op": op, "path": path})

	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			delay := s.retryDelay(i)
			log.WithError(lastErr).WithField("attempt", i+1).Warnf("Retrying in %v", delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", op, ctx.Err())
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		retryable, err := attempt(attemptCtx)
		cancel()
		if err == nil {
			if i > 0 {
				log.WithField("attempt", i+1).Info("Succeeded after retry")
			}
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, maxRetries+1, lastErr)
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func retryDelay(attempt int) time.Duration {
	delay := float64(baseRetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// 0-25% jitter
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "broken pipe")
}

func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusGatewayTimeout
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
