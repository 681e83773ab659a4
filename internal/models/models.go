package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Enums
type InputType string

const (
	InputUserClip  InputType = "user_clip"
	InputUserImage InputType = "user_image"
	InputAIBroll   InputType = "ai_broll"
)

type SceneRole string

const (
	RoleHook  SceneRole = "hook"
	RoleBody  SceneRole = "body"
	RolePunch SceneRole = "punch"
)

type Effect string

const (
	EffectNone       Effect = "none"
	EffectSlowZoomIn Effect = "slow_zoom_in"
	EffectCrossfade  Effect = "crossfade" // accepted, rendered as a hard cut
)

type AspectRatio string

const (
	AspectPortrait  AspectRatio = "9:16"
	AspectLandscape AspectRatio = "16:9"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusUnknown    JobStatus = "unknown"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

const (
	// MinClipSeconds is the shortest user_clip the renderer will emit.
	MinClipSeconds = 2.0
	// DefaultImageSeconds applies to stills and b-roll without a duration.
	DefaultImageSeconds = 3.0
)

// Models

type Scene struct {
	InputType    InputType `json:"input_type" validate:"required,oneof=user_clip user_image ai_broll"`
	FilePath     string    `json:"file_path,omitempty"`
	Start        float64   `json:"start,omitempty"`
	End          float64   `json:"end,omitempty"`
	Duration     float64   `json:"duration,omitempty" validate:"gte=0"`
	Role         SceneRole `json:"role,omitempty" validate:"omitempty,oneof=hook body punch"`
	Caption      string    `json:"caption,omitempty"`
	Narration    string    `json:"narration,omitempty"` // voiceover text; caption is used when empty
	Effect       Effect    `json:"effect,omitempty"`
	BRollKeyword string    `json:"b_roll_keyword,omitempty"`
	Provider     string    `json:"provider,omitempty"` // b-roll provider hint, e.g. "veo"
}

// Zooms reports whether the scene gets the slow linear zoom.
func (s Scene) Zooms() bool {
	return s.Role == RoleHook || s.Role == RolePunch || s.Effect == EffectSlowZoomIn
}

// MediaRef is the key a scene uses in the resolved media mapping.
func (s Scene) MediaRef() string {
	if s.FilePath != "" {
		return s.FilePath
	}
	return s.BRollKeyword
}

// NarrationText is what gets spoken when voiceover is on.
func (s Scene) NarrationText() string {
	if s.Narration != "" {
		return s.Narration
	}
	return s.Caption
}

type Storyboard struct {
	Style          string      `json:"style,omitempty"`
	TargetDuration float64     `json:"target_duration,omitempty" validate:"gte=0"` // 0 = flexible
	AspectRatio    AspectRatio `json:"aspect_ratio,omitempty" validate:"omitempty,oneof=9:16 16:9"`
	Scenes         []Scene     `json:"scenes" validate:"required,min=1,dive"`
	UseMusic       bool        `json:"use_music"`
	UseVoiceover   bool        `json:"use_voiceover"`
	MusicStyle     string      `json:"music_style,omitempty"`
	Note           string      `json:"note,omitempty"`
}

// Aspect returns the storyboard's aspect ratio, defaulting to portrait.
func (s *Storyboard) Aspect() AspectRatio {
	if s.AspectRatio == "" {
		return AspectPortrait
	}
	return s.AspectRatio
}

// Clone returns a deep copy so edits never alias the caller's scenes.
func (s *Storyboard) Clone() *Storyboard {
	if s == nil {
		return nil
	}
	out := *s
	out.Scenes = append([]Scene(nil), s.Scenes...)
	return &out
}

// Value stores the storyboard in a JSONB column.
func (s Storyboard) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *Storyboard) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported storyboard column type %T", value)
	}
	return json.Unmarshal(data, s)
}

type Job struct {
	ID           string      `json:"job_id"`
	Status       JobStatus   `json:"status"`
	Progress     int         `json:"progress"`
	Stage        string      `json:"stage,omitempty"`
	OutputURL    *string     `json:"output_url,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
	Storyboard   *Storyboard `json:"storyboard,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// NewJob returns a queued job record.
func NewJob(id string, sb *Storyboard) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:         id,
		Status:     JobStatusQueued,
		Storyboard: sb,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// DTOs for API requests and responses

type AnalyzeRequest struct {
	MediaPaths   []string    `json:"media_paths" validate:"required,min=1,dive,required"`
	Style        string      `json:"style"`
	Duration     float64     `json:"duration" validate:"gte=0"`
	AspectRatio  AspectRatio `json:"aspect_ratio" validate:"omitempty,oneof=9:16 16:9"`
	UseMusic     bool        `json:"use_music"`
	UseVoiceover bool        `json:"use_voiceover"`
	MusicStyle   string      `json:"music_style,omitempty"`
}

type RenderRequest struct {
	Storyboard *Storyboard `json:"storyboard" validate:"required"`
	// Media maps scene references to locations; scenes not listed use their file_path as-is.
	Media map[string]string `json:"media,omitempty"`
}

type RenderResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status"`
}

type ChatEditRequest struct {
	Storyboard *Storyboard `json:"storyboard" validate:"required"`
	Message    string      `json:"message" validate:"required"`
}

type ChatEditResponse struct {
	Explanation string      `json:"explanation"`
	Storyboard  *Storyboard `json:"storyboard"`
}
