// Package archive persists completed interviews handed off by the engine.
package archive

import (
	"context"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

// Archive stores completed interview records.
type Archive interface {
	// Save stores rec and its questions, assigning rec.ID when empty, and
	// returns the record id.
	Save(ctx context.Context, rec *model.InterviewRecord) (string, error)
	// List returns interviews newest first, without their questions.
	List(ctx context.Context) ([]*model.InterviewRecord, error)
	// Get returns one interview with its questions ordered by number, or
	// model.ErrInterviewNotFound.
	Get(ctx context.Context, id string) (*model.InterviewRecord, error)
	// Schema returns the DDL the archive maintains.
	Schema() string
	Close() error
}
