package activitymap

import (
	"context"

	"github.com/goliatone/go-print"

	bank "github.com/goliatone/go-bank"
)

// LogSink writes every activity event to a logger as an audit line
type LogSink struct {
	logger bank.Logger
	opts   []Option
}

var _ bank.ActivitySink = (*LogSink)(nil)

// NewLogSink creates an audit sink over logger
func NewLogSink(logger bank.Logger, opts ...Option) *LogSink {
	return &LogSink{logger: logger, opts: opts}
}

// Record implements bank.ActivitySink.
func (s *LogSink) Record(_ context.Context, event bank.ActivityEvent) error {
	if s == nil || s.logger == nil {
		return nil
	}

	rec := Normalize(event, s.opts...)
	s.logger.Info("activity",
		"verb", rec.Verb,
		"channel", rec.Channel,
		"actor_id", rec.ActorID,
		"object_type", rec.ObjectType,
		"object_id", rec.ObjectID,
		"occurred_at", rec.OccurredAt,
		"metadata", print.MaybePrettyJSON(rec.Metadata),
	)
	return nil
}
