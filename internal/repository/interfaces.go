package repository

import (
	"context"
	"errors"

	"github.com/jwalitptl/comms-notebook/internal/model"
)

// ErrNotFound is returned by lookups of a single missing row or key.
var ErrNotFound = errors.New("not found")

// All repository interfaces in one file
type (
	// CommunicationRepository reads logged communications. The report
	// engine only ever reads; Create exists for the entry workflow and tests.
	CommunicationRepository interface {
		Query(ctx context.Context, filter model.CommunicationFilter) ([]*model.Communication, error)
		Create(ctx context.Context, c *model.Communication) error
	}

	WatermarkReader interface {
		// Get returns ok=false for a key that was never written.
		Get(ctx context.Context, key string) (value string, ok bool, err error)
	}

	WatermarkWriter interface {
		// Set upserts key. Writes to one key are atomic, last write wins.
		Set(ctx context.Context, key, value string) error
	}

	// WatermarkRepository is the persisted process-wide key/value state.
	WatermarkRepository interface {
		WatermarkReader
		WatermarkWriter
		List(ctx context.Context) ([]*model.Watermark, error)
		Delete(ctx context.Context, key string) error
		Clear(ctx context.Context) error
	}
)
