package logging

import "log/slog"

// WithRecord creates a logger annotated with the current input record
// number (NR), the counter the record driver increments on every call to
// ProcessRecord.
//
// Example:
//
//	log := logging.WithRecord(ctx.NR())
//	log.Debug("row skipped by WHERE")
func WithRecord(nr int64) *slog.Logger {
	return Get().With("nr", nr)
}

// WithAggregator creates a logger annotated with an aggregator's position
// in the output row and its group key.
func WithAggregator(index int, groupKey string) *slog.Logger {
	return Get().With("aggregator_index", index, "group_key", groupKey)
}

// WithJoin creates a logger annotated with the left-hand join key currently
// being resolved.
func WithJoin(key string) *slog.Logger {
	return Get().With("join_key", key)
}

// WithComponent creates a logger annotated with the engine component/stage
// emitting the message (e.g. "writer.top", "writer.aggregate").
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// WithError creates a logger annotated with an error in structured form.
func WithError(err error) *slog.Logger {
	return Get().With("error", err.Error())
}
