package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelforge/internal/render"
)

// StorageScheme prefixes media references that live in the bucket, for
// example "storage://uploads/abc/clip.mp4".
const StorageScheme = "storage://"

// BucketPath returns the object path for a storage reference.
func BucketPath(ref string) (string, bool) {
	if !strings.HasPrefix(ref, StorageScheme) {
		return "", false
	}
	p := strings.TrimPrefix(ref, StorageScheme)
	return p, p != ""
}

// LocalPublisher leaves the file in the output directory and builds a URL
// under the API's /outputs route.
type LocalPublisher struct {
	baseURL string
}

var _ render.Publisher = (*LocalPublisher)(nil)

func NewLocalPublisher(baseURL string) *LocalPublisher {
	return &LocalPublisher{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *LocalPublisher) Publish(ctx context.Context, jobID, path string) (string, error) {
	name := url.PathEscape(filepath.Base(path))
	if p.baseURL == "" {
		return "/outputs/" + name, nil
	}
	return p.baseURL + "/outputs/" + name, nil
}

// BucketPublisher uploads the final reel to Supabase Storage.
type BucketPublisher struct {
	storage *Storage
	prefix  string
}

var _ render.Publisher = (*BucketPublisher)(nil)

func NewBucketPublisher(s *Storage, prefix string) *BucketPublisher {
	if prefix == "" {
		prefix = "renders"
	}
	return &BucketPublisher{storage: s, prefix: strings.Trim(prefix, "/")}
}

func (p *BucketPublisher) Publish(ctx context.Context, jobID, path string) (string, error) {
	objectPath := fmt.Sprintf("%s/%s/%s", p.prefix, jobID, filepath.Base(path))
	if err := p.storage.UploadFile(ctx, objectPath, path, "video/mp4"); err != nil {
		return "", fmt.Errorf("failed to upload render: %w", err)
	}
	return p.storage.GetPublicURL(objectPath), nil
}
