// Package inbox abstracts the chat CRM surface the pipeline reads and
// writes: listing conversations, reading their messages, and editing
// the annotation field.
package inbox

import (
	"context"

	"github.com/inboxops/autotag/internal/model"
)

// Inspector reads conversation state from the inbox.
type Inspector interface {
	// ListConversations returns the ids currently visible in the inbox
	// list, top to bottom.
	ListConversations(ctx context.Context) ([]string, error)
	// ReadConversation opens a conversation and returns its readable
	// state. Unknown ids return an error.
	ReadConversation(ctx context.Context, id string) (model.Conversation, error)
}

// Automator performs the write-side actions on an open conversation.
type Automator interface {
	// Open focuses the conversation so annotation edits apply to it.
	Open(ctx context.Context, id string) error
	// ReadAnnotation returns the current annotation field text.
	ReadAnnotation(ctx context.Context, id string) (string, error)
	// WriteAnnotation replaces the annotation field text.
	WriteAnnotation(ctx context.Context, id, text string) error
}
