// Package pipeline orchestrates a transcription job end to end: fetch,
// split, parallel transcription, speaker merge, summary and rendering,
// with a validated state machine and cooperative cancellation throughout.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/echolab/transcriptor/pkg/audio"
	"github.com/echolab/transcriptor/pkg/config"
	"github.com/echolab/transcriptor/pkg/history"
	"github.com/echolab/transcriptor/pkg/keypool"
	"github.com/echolab/transcriptor/pkg/logger"
	"github.com/echolab/transcriptor/pkg/progress"
	"github.com/echolab/transcriptor/pkg/providers"
	"github.com/echolab/transcriptor/pkg/transcriber"
)

// Progress display runs in a 5..90 band while segments are in flight; the
// head and tail stages own the rest.
const (
	progressFloor = 5
	progressSpan  = 85
)

// Pipeline wires the transcription engine together and runs jobs through
// it. One pipeline serves many jobs; the credential pool it holds is the
// process-wide one.
type Pipeline struct {
	cfg       *config.Config
	pool      *keypool.Pool
	provider  providers.Provider
	splitter  audio.Splitter
	fetcher   audio.Fetcher
	renderer  *Renderer
	agents    *Agents
	scheduler *transcriber.Scheduler
	merger    *transcriber.SpeakerMerger
	store     *history.Store
	sink      progress.Sink
	registry  *Registry
	log       *logger.Logger
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithSink replaces the progress sink.
func WithSink(s progress.Sink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithHistory attaches a history store; finished jobs are recorded there.
func WithHistory(s *history.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithRegistry attaches a shared job registry for external cancellation.
func WithRegistry(r *Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// WithSplitter replaces the audio splitter.
func WithSplitter(s audio.Splitter) Option {
	return func(p *Pipeline) { p.splitter = s }
}

// WithFetcher replaces the remote audio fetcher.
func WithFetcher(f audio.Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithRenderer replaces the output renderer.
func WithRenderer(r *Renderer) Option {
	return func(p *Pipeline) { p.renderer = r }
}

// WithSegmentRunner replaces the per-segment transcriber, for tests.
func WithSegmentRunner(r transcriber.SegmentRunner) Option {
	return func(p *Pipeline) { p.scheduler = transcriber.NewScheduler(r) }
}

// New assembles a pipeline from configuration. The provider and credential
// pool are shared across all jobs the pipeline runs.
func New(cfg *config.Config, pool *keypool.Pool, provider providers.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		pool:     pool,
		provider: provider,
		splitter: audio.NewSplitter(cfg.Audio.TempDir),
		fetcher:  audio.NewHTTPFetcher(),
		renderer: NewRenderer(cfg.Output.Directory, audio.NewCompressor()),
		agents:   NewAgents(provider, pool, transcriber.DefaultSpeakerPolicy()),
		scheduler: transcriber.NewScheduler(
			transcriber.NewSegmentTranscriber(provider, pool, transcriber.DefaultTranscribePolicy()),
		),
		merger:   transcriber.NewSpeakerMerger(provider, pool, transcriber.DefaultSpeakerPolicy()),
		sink:     progress.NewLogSink(),
		registry: NewRegistry(),
		log:      logger.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the job registry this pipeline reports into.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Process runs a job to a terminal state and returns its outputs. The
// error is ErrCancelled for cancelled jobs and descriptive for failures;
// in both cases the job's terminal state and history record are already
// written when Process returns.
func (p *Pipeline) Process(ctx context.Context, job *Job) (*Outputs, error) {
	start := time.Now()
	log := p.log.WithField("job", job.ID).WithField("name", job.Name)

	// A job without credentials can only burn time; refuse it up front.
	if p.pool.Size() == 0 {
		p.failJob(job, start, 0, 0, transcriber.ErrNoKeys)
		return nil, transcriber.ErrNoKeys
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	job.bindCancel(cancel)
	p.registry.Add(job)
	defer p.registry.Remove(job.ID)

	localPath := job.Source
	if job.Remote() {
		if err := p.step(job, StateDownloading, 1, "Downloading source audio"); err != nil {
			return nil, p.finishEarly(job, start, 0, 0, err)
		}
		fetched, err := p.fetcher.Fetch(ctx, job.Source, p.cfg.Audio.TempDir)
		if err != nil {
			p.failJob(job, start, 0, 0, fmt.Errorf("download failed: %w", err))
			return nil, err
		}
		localPath = fetched
	}

	if err := p.step(job, StateSplitting, progressFloor, "Splitting audio into segments"); err != nil {
		return nil, p.finishEarly(job, start, 0, 0, err)
	}

	keywords := ""
	if p.cfg.Transcribe.Keywords {
		keywords = p.agents.GenerateKeywords(ctx, job.Name, p.cfg.Transcribe.ChatModel)
		if keywords != "" {
			log.Info().Int("count", len(strings.Split(keywords, ","))).Msg("Injected company-specific keywords")
		}
	}

	segmentDuration := transcriber.SegmentDuration(p.pool.Size(), p.cfg.Transcribe.SegmentMinutes)
	segments, err := p.splitter.Split(localPath, segmentDuration)
	if err != nil {
		p.failJob(job, start, 0, 0, fmt.Errorf("split failed: %w", err))
		return nil, err
	}
	if !p.cfg.Audio.KeepTempFiles {
		defer func() {
			_ = p.splitter.Cleanup(segments)
		}()
	}
	total := len(segments)

	if err := p.step(job, StateTranscribing, progressFloor, fmt.Sprintf("Transcribing %d segments", total)); err != nil {
		return nil, p.finishEarly(job, start, total, 0, err)
	}

	req := &transcriber.SegmentRequest{
		JobName:  job.Name,
		Model:    p.cfg.Transcribe.Model,
		Language: p.cfg.Transcribe.Language,
		Keywords: keywords,
	}
	workers := transcriber.WorkerCount(p.pool, p.cfg.Transcribe.MaxWorkers)
	results, err := p.scheduler.Run(ctx, segments, req, workers, func(completed, t int) {
		p.emit(job, progressFloor+completed*progressSpan/t, fmt.Sprintf("Transcribed %d/%d segments", completed, t))
	})
	if err != nil {
		return nil, p.finishEarly(job, start, total, countFailed(results), transcriber.ErrCancelled)
	}

	failed := countFailed(results)
	if failed == total {
		err := fmt.Errorf("all %d segments failed to transcribe", total)
		p.failJob(job, start, total, failed, err)
		return nil, err
	}

	if err := p.step(job, StateMerging, progressFloor+progressSpan, "Merging transcript"); err != nil {
		return nil, p.finishEarly(job, start, total, failed, err)
	}

	flat := transcriber.Flatten(results)
	var text string
	if p.cfg.Transcribe.SpeakerDetection {
		text, _ = p.merger.Merge(ctx, flat, &transcriber.SpeakerMergeRequest{
			JobName:   job.Name,
			ChatModel: p.cfg.Transcribe.ChatModel,
			Keywords:  keywords,
		})
	} else {
		text = transcriber.Overlay(flat, nil)
	}
	text = PostProcess(text, keywords)

	if err := p.step(job, StateRendering, 95, "Rendering output files"); err != nil {
		return nil, p.finishEarly(job, start, total, failed, err)
	}

	summary := ""
	if p.cfg.Transcribe.Summary {
		summary = p.agents.GenerateSummary(ctx, text, job.Name, p.cfg.Transcribe.ChatModel)
	}

	outputs, err := p.renderer.Render(&RenderInput{
		JobName:       job.Name,
		Transcript:    text,
		Summary:       summary,
		Keywords:      keywords,
		SourceAudio:   localPath,
		KeepAudioCopy: p.cfg.Output.KeepAudioCopy,
		AudioBitrate:  p.cfg.Audio.Bitrate,
		When:          time.Now(),
	})
	if err != nil {
		p.failJob(job, start, total, failed, fmt.Errorf("render failed: %w", err))
		return nil, err
	}

	if err := job.transition(StateCompleted); err != nil {
		return outputs, p.finishEarly(job, start, total, failed, transcriber.ErrCancelled)
	}
	p.emit(job, 100, "Completed")
	p.sink.EmitComplete(job.ID, outputs.TranscriptPath)
	p.record(job, start, total, failed, "", outputs.TranscriptPath)

	log.Info().
		Dur("elapsed", time.Since(start)).
		Int("segments", total).
		Int("failed", failed).
		Str("output", outputs.TranscriptPath).
		Msg("Job finished")
	return outputs, nil
}

// step advances the state machine and reports progress. A transition error
// here means cancellation won the race between stages.
func (p *Pipeline) step(job *Job, next State, percent int, msg string) error {
	if err := job.transition(next); err != nil {
		return transcriber.ErrCancelled
	}
	p.emit(job, percent, msg)
	return nil
}

// finishEarly settles the bookkeeping for a job that stopped before
// completion, distinguishing cancellation from failure.
func (p *Pipeline) finishEarly(job *Job, start time.Time, segments, failed int, err error) error {
	if errors.Is(err, transcriber.ErrCancelled) || job.State() == StateCancelled {
		// Parent-context cancellation arrives without Job.Cancel having
		// moved the state; settle it before recording.
		_ = job.transition(StateCancelled)
		p.emit(job, 0, "Cancelled")
		p.record(job, start, segments, failed, "", "")
		return transcriber.ErrCancelled
	}
	p.failJob(job, start, segments, failed, err)
	return err
}

// failJob moves the job to failed and records the reason.
func (p *Pipeline) failJob(job *Job, start time.Time, segments, failed int, err error) {
	if terr := job.transition(StateFailed); terr != nil && job.State() != StateFailed {
		// Cancellation landed first; keep that terminal state.
		p.emit(job, 0, "Cancelled")
		p.record(job, start, segments, failed, "", "")
		return
	}
	p.sink.EmitError(job.ID, err)
	p.record(job, start, segments, failed, err.Error(), "")
}

// emit publishes a progress update for the job's current state.
func (p *Pipeline) emit(job *Job, percent int, msg string) {
	p.sink.Emit(progress.Update{
		JobID:   job.ID,
		State:   job.State().String(),
		Percent: percent,
		Message: msg,
		Time:    time.Now(),
	})
}

// record writes the job's outcome to history, when a store is attached.
func (p *Pipeline) record(job *Job, start time.Time, segments, failed int, errText, outputPath string) {
	if p.store == nil {
		return
	}
	rec := history.Record{
		ID:           job.ID,
		Name:         job.Name,
		Source:       job.Source,
		OutputPath:   outputPath,
		State:        job.State().String(),
		Error:        errText,
		SegmentCount: segments,
		Failed:       failed,
		Duration:     time.Since(start),
		CreatedAt:    job.CreatedAt,
		FinishedAt:   time.Now(),
	}
	if err := p.store.Add(rec); err != nil {
		p.log.WithError(err).Warn().Str("job", job.ID).Msg("Failed to record job history")
	}
}

func countFailed(results []transcriber.SegmentResult) int {
	n := 0
	for _, r := range results {
		if r.Failed() {
			n++
		}
	}
	return n
}
