package services

import "context"

// ---------------------------------------------------------------------------
// TTSService: common interface for text-to-speech providers
// ElevenLabs and OpenAI both implement this so the narrator can use whichever
// is configured without knowing the underlying provider.
// ---------------------------------------------------------------------------

// TTSResponse is the common response type from any TTS provider.
type TTSResponse struct {
	AudioData []byte
	Format    string // "mp3", "wav", etc.
}

// TTSService is the interface that any TTS provider must implement.
type TTSService interface {
	GenerateSpeech(ctx context.Context, text string) (*TTSResponse, error)
}
