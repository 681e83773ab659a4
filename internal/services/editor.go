package services

import (
	"context"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/sirupsen/logrus"
)

// StoryboardEditor is a model-backed editor.
type StoryboardEditor interface {
	EditStoryboard(ctx context.Context, sb *models.Storyboard, message string) (*EditResult, error)
}

const editFailedExplanation = "I encountered an error trying to process that edit."

// ChatEditor never fails: when the model is missing or errors, the caller
// gets the original storyboard back with an explanation.
type ChatEditor struct {
	editor StoryboardEditor
	log    logrus.FieldLogger
}

func NewChatEditor(editor StoryboardEditor, log logrus.FieldLogger) *ChatEditor {
	return &ChatEditor{editor: editor, log: log.WithField("component", "chat_editor")}
}

func (c *ChatEditor) Edit(ctx context.Context, sb *models.Storyboard, message string) *EditResult {
	original := sb.Clone()
	if c.editor == nil {
		return &EditResult{Explanation: "Chat editing is not configured.", Storyboard: original}
	}

	res, err := c.editor.EditStoryboard(ctx, sb.Clone(), message)
	if err != nil {
		c.log.WithError(err).Warn("Storyboard edit failed, returning original")
		return &EditResult{Explanation: editFailedExplanation, Storyboard: original}
	}
	return res
}
