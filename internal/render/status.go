package render

import "context"

// Stage names the coarse phase a job is in.
type Stage string

const (
	StageStarted    Stage = "started"
	StageMediaReady Stage = "media_ready"
	StageComposing  Stage = "composing"
	StageEncoding   Stage = "encoding"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Progress checkpoints. Composing advances from composeStart to composeEnd
// as scenes finish.
const (
	progressStarted    = 5
	progressMediaReady = 20
	progressCompose    = 25
	progressComposeEnd = 75
	progressEncoding   = 80
)

// StatusSink receives job progress. Implementations keep progress monotonic
// and must treat Complete and Fail as terminal.
type StatusSink interface {
	Progress(ctx context.Context, jobID string, percent int, stage Stage) error
	Complete(ctx context.Context, jobID, location string) error
	Fail(ctx context.Context, jobID, message string) error
}

func composeProgress(done, total int) int {
	if total <= 0 {
		return progressCompose
	}
	return progressCompose + (progressComposeEnd-progressCompose)*done/total
}
