package events

import (
	"context"
	"time"

	"codeberg.org/mutker/embedids/internal/errors"
	"github.com/google/uuid"
)

// Event is one detection reported by the algorithm pipeline.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	Metric    string
	Kind      string
	Value     float64
	Code      errors.ErrorCode
	Trend     string
}

// NewEvent stamps a detection with a fresh random ID.
func NewEvent(at time.Time, metricName, kind string, value float64, code errors.ErrorCode, trend string) *Event {
	return &Event{
		ID:        uuid.New(),
		Timestamp: at,
		Metric:    metricName,
		Kind:      kind,
		Value:     value,
		Code:      code,
		Trend:     trend,
	}
}

// Recorder journals detection events.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
	Close() error
}

type nopRecorder struct{}

// NewNop returns a Recorder that drops every event.
func NewNop() Recorder { return nopRecorder{} }

func (nopRecorder) Record(context.Context, *Event) error { return nil }
func (nopRecorder) Close() error                         { return nil }
