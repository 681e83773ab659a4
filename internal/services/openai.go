package services

import (
	"context"
	"fmt"
	"io"

	"github.com/bobarin/reelforge/internal/models"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIService provides chat storyboard edits and speech synthesis.
type OpenAIService struct {
	client *openai.Client
	model  string
	log    logrus.FieldLogger
}

var (
	_ TTSService       = (*OpenAIService)(nil)
	_ StoryboardEditor = (*OpenAIService)(nil)
)

func NewOpenAIService(apiKey, model string, log logrus.FieldLogger) *OpenAIService {
	return newOpenAIService(openai.DefaultConfig(apiKey), model, log)
}

func newOpenAIService(cfg openai.ClientConfig, model string, log logrus.FieldLogger) *OpenAIService {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		log:    log.WithField("component", "openai"),
	}
}

// EditStoryboard applies a natural-language edit using JSON mode.
func (s *OpenAIService) EditStoryboard(ctx context.Context, sb *models.Storyboard, message string) (*EditResult, error) {
	prompt, err := editPrompt(sb, message)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an assistant that edits video storyboards and always answers in JSON.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	raw := resp.Choices[0].Message.Content
	res, err := parseEditResult(raw)
	if err != nil {
		s.log.WithField("response", truncateString(raw, 2000)).Warn("Unparseable edit response")
		return nil, err
	}
	return res, nil
}

// GenerateSpeech synthesizes narration with the OpenAI speech endpoint.
func (s *OpenAIService) GenerateSpeech(ctx context.Context, text string) (*TTSResponse, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.VoiceAlloy,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech request failed: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read openai speech: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("openai returned empty audio")
	}

	return &TTSResponse{
		AudioData: audio,
		Format:    "mp3",
	}, nil
}
