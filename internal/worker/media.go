package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxParallelDownloads = 4

// Downloader fetches bucket objects to local files.
type Downloader interface {
	DownloadFile(ctx context.Context, storagePath, localPath string) error
}

// MediaResolver turns scene references into local paths. Locations come from
// the request's media mapping, falling back to the reference itself.
// storage:// locations are downloaded into a per-job input directory. Local
// paths are only accepted inside one of localRoots.
// References that cannot be resolved are left out of the mapping, and the
// renderer drops their scenes.
type MediaResolver struct {
	downloader Downloader
	inputDir   string
	localRoots []string
	log        logrus.FieldLogger
}

func NewMediaResolver(downloader Downloader, inputDir string, localRoots []string, log logrus.FieldLogger) *MediaResolver {
	roots := make([]string, 0, len(localRoots))
	for _, r := range localRoots {
		if r == "" {
			continue
		}
		if abs, err := canonicalPath(r); err == nil {
			roots = append(roots, abs)
		}
	}
	return &MediaResolver{
		downloader: downloader,
		inputDir:   inputDir,
		localRoots: roots,
		log:        log.WithField("component", "media"),
	}
}

// Resolve returns the mapping and a cleanup func that removes downloads.
func (m *MediaResolver) Resolve(ctx context.Context, jobID string, sb *models.Storyboard, explicit map[string]string) (map[string]string, func()) {
	log := m.log.WithField("job_id", jobID)
	jobDir := filepath.Join(m.inputDir, jobID)
	cleanup := func() { os.RemoveAll(jobDir) }

	locations := make(map[string]string)
	for _, sc := range sb.Scenes {
		refs := []string{sc.FilePath}
		if sc.InputType == models.InputAIBroll {
			refs = append(refs, sc.BRollKeyword)
		}
		for _, ref := range refs {
			if ref == "" {
				continue
			}
			if loc, ok := explicit[ref]; ok {
				locations[ref] = loc
			} else if ref == sc.FilePath {
				locations[ref] = ref
			}
		}
	}

	resolved := make(map[string]string, len(locations))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDownloads)

	n := 0
	for ref, loc := range locations {
		objectPath, remote := storage.BucketPath(loc)
		if !remote {
			if _, err := os.Stat(loc); err != nil {
				log.WithField("ref", ref).Warn("Media not found locally, scene will be dropped")
				continue
			}
			if !m.allowedLocal(loc) {
				log.WithField("ref", ref).Warn("Media outside the allowed directories, scene will be dropped")
				continue
			}
			mu.Lock()
			resolved[ref] = loc
			mu.Unlock()
			continue
		}
		if m.downloader == nil {
			log.WithField("ref", ref).Warn("Storage not configured, cannot fetch media")
			continue
		}

		n++
		local := filepath.Join(jobDir, fmt.Sprintf("%03d_%s", n, filepath.Base(objectPath)))
		g.Go(func() error {
			if err := os.MkdirAll(jobDir, 0755); err != nil {
				return fmt.Errorf("failed to create input dir: %w", err)
			}
			if err := m.downloader.DownloadFile(gctx, objectPath, local); err != nil {
				log.WithError(err).WithField("ref", ref).Warn("Media download failed, scene will be dropped")
				return nil
			}
			mu.Lock()
			resolved[ref] = local
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Media resolution aborted")
	}
	return resolved, cleanup
}

// allowedLocal reports whether path, with symlinks resolved, sits under one
// of the configured roots.
func (m *MediaResolver) allowedLocal(path string) bool {
	p, err := canonicalPath(path)
	if err != nil {
		return false
	}
	for _, root := range m.localRoots {
		rel, err := filepath.Rel(root, p)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
