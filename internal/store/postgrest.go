package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/bobarin/reelforge/internal/models"
	postgrest "github.com/supabase-community/postgrest-go"
)

const defaultJobsTable = "render_jobs"

// PostgREST stores jobs through a Supabase REST endpoint. PostgREST has no
// row locks, so Update serializes writers within this process only.
type PostgREST struct {
	client *postgrest.Client
	table  string
	mu     sync.Mutex
}

var _ JobStore = (*PostgREST)(nil)

func NewPostgREST(supabaseURL, serviceKey, table string) (*PostgREST, error) {
	if supabaseURL == "" || serviceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}
	client := postgrest.NewClient(supabaseURL+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": "Bearer " + serviceKey,
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("failed to initialize postgrest client: %w", client.ClientError)
	}
	if table == "" {
		table = defaultJobsTable
	}
	return &PostgREST{client: client, table: table}, nil
}

func (p *PostgREST) Create(ctx context.Context, job *models.Job) error {
	var rows []models.Job
	if _, err := p.client.From(p.table).Insert(job, false, "", "representation", "").ExecuteTo(&rows); err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (p *PostgREST) Get(ctx context.Context, id string) (*models.Job, error) {
	var rows []models.Job
	if _, err := p.client.From(p.table).Select("*", "", false).Eq("job_id", id).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (p *PostgREST) Update(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	job, err := p.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	touch(job)

	var rows []models.Job
	if _, err := p.client.From(p.table).Upsert(job, "job_id", "representation", "").ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return job, nil
}

func (p *PostgREST) Close() error { return nil }
