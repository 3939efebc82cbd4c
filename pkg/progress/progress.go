// Package progress delivers job status updates to observers. Delivery is
// fire-and-forget: a slow or dead observer can never block or fail the
// pipeline that is reporting.
package progress

import (
	"time"

	"github.com/echolab/transcriptor/pkg/logger"
)

// Update is one progress event for a job.
type Update struct {
	JobID   string    `json:"job_id"`
	State   string    `json:"state"`
	Percent int       `json:"percent"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Sink receives job lifecycle events. Implementations must return quickly
// and must tolerate being called from multiple goroutines.
type Sink interface {
	// Emit reports a progress update.
	Emit(u Update)

	// EmitError reports a job failure.
	EmitError(jobID string, err error)

	// EmitComplete reports successful completion with the output path.
	EmitComplete(jobID, outputPath string)
}

// LogSink writes progress events to the structured log. It is the default
// sink for CLI runs.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink() *LogSink {
	return &LogSink{log: logger.WithComponent("progress")}
}

func (s *LogSink) Emit(u Update) {
	s.log.Info().
		Str("job", u.JobID).
		Str("state", u.State).
		Int("percent", u.Percent).
		Msg(u.Message)
}

func (s *LogSink) EmitError(jobID string, err error) {
	s.log.Error().Str("job", jobID).Err(err).Msg("Job failed")
}

var _ Sink = (*LogSink)(nil)
var _ Sink = (*Hub)(nil)
var _ Sink = (MultiSink)(nil)

func (s *LogSink) EmitComplete(jobID, outputPath string) {
	s.log.Info().Str("job", jobID).Str("output", outputPath).Msg("Job completed")
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

func (m MultiSink) Emit(u Update) {
	for _, s := range m {
		s.Emit(u)
	}
}

func (m MultiSink) EmitError(jobID string, err error) {
	for _, s := range m {
		s.EmitError(jobID, err)
	}
}

func (m MultiSink) EmitComplete(jobID, outputPath string) {
	for _, s := range m {
		s.EmitComplete(jobID, outputPath)
	}
}
