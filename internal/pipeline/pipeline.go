// Package pipeline walks every page of patient records, folds the scores
// into an Accumulator and submits the resulting payload once.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/config"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/resilience"
)

// ErrRunBudgetExceeded is returned when Config.MaxRunDuration elapses before
// the last page is collected.
var ErrRunBudgetExceeded = eris.New("pipeline: run budget exceeded")

// PageFetcher fetches one page with retries, reporting false on exhaustion.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, limit int) (*model.Page, bool)
}

// Submitter posts the final payload.
type Submitter interface {
	SubmitAssessment(ctx context.Context, payload model.AssessmentPayload) (*model.SubmissionResult, error)
}

// Observer receives page-level progress.
type Observer interface {
	ObservePage(page, scored, skipped int)
	ObserveCooldown(page int)
}

// Config controls the page walk.
type Config struct {
	PageSize       int
	Cooldown       time.Duration
	InterPageDelay time.Duration
	// MaxRunDuration bounds Collect. 0 means no limit.
	MaxRunDuration time.Duration
}

// DefaultConfig returns the standard page walk settings.
func DefaultConfig() Config {
	return Config{
		PageSize:       5,
		Cooldown:       2500 * time.Millisecond,
		InterPageDelay: 300 * time.Millisecond,
	}
}

// FromConfig builds a Config from application config. Zero page size and
// delays keep the defaults.
func FromConfig(cfg config.PipelineConfig) Config {
	c := DefaultConfig()
	if cfg.PageSize > 0 {
		c.PageSize = cfg.PageSize
	}
	if cfg.CooldownMs > 0 {
		c.Cooldown = time.Duration(cfg.CooldownMs) * time.Millisecond
	}
	if cfg.InterPageDelayMs > 0 {
		c.InterPageDelay = time.Duration(cfg.InterPageDelayMs) * time.Millisecond
	}
	if cfg.MaxRunSecs > 0 {
		c.MaxRunDuration = time.Duration(cfg.MaxRunSecs) * time.Second
	}
	return c
}

// RunResult is the outcome of a full run.
type RunResult struct {
	RunID      string                  `json:"run_id"`
	Payload    model.AssessmentPayload `json:"payload"`
	Submission *model.SubmissionResult `json:"submission,omitempty"`
	Summary    Summary                 `json:"summary"`
}

// Summary counts what Collect saw.
type Summary struct {
	Pages     int `json:"pages"`
	Scored    int `json:"scored"`
	Skipped   int `json:"skipped"`
	Cooldowns int `json:"cooldowns"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSleep replaces the cooldown and inter-page wait (for testing).
func WithSleep(fn resilience.SleepFunc) Option {
	return func(p *Pipeline) {
		p.sleep = fn
	}
}

// WithObserver registers a page observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithClock replaces the clock used for the run budget (for testing).
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithRunID tags logs and the RunResult with id.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		p.runID = id
	}
}

// Pipeline drives one assessment run.
type Pipeline struct {
	cfg       Config
	fetcher   PageFetcher
	submitter Submitter
	observer  Observer
	sleep     resilience.SleepFunc
	log       *zap.Logger
	now       func() time.Time
	runID     string

	summary Summary
}

// New creates a Pipeline. submitter may be nil when only Collect is used.
func New(cfg Config, fetcher PageFetcher, submitter Submitter, opts ...Option) *Pipeline {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	p := &Pipeline{
		cfg:       cfg,
		fetcher:   fetcher,
		submitter: submitter,
		sleep:     resilience.Sleep,
		log:       zap.L(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.runID != "" {
		p.log = p.log.With(zap.String("run_id", p.runID))
	}
	return p
}

// Summary returns the counts of the last Collect.
func (p *Pipeline) Summary() Summary {
	return p.summary
}

// Collect fetches every page and returns the aggregated payload. A page that
// exhausts its attempts is retried after Cooldown until it succeeds, the run
// budget is spent or ctx is done.
func (p *Pipeline) Collect(ctx context.Context) (*model.AssessmentPayload, error) {
	acc := NewAccumulator()
	p.summary = Summary{}
	start := p.now()

	page := 1
	for {
		if p.cfg.MaxRunDuration > 0 && p.now().Sub(start) >= p.cfg.MaxRunDuration {
			p.log.Error("pipeline: run budget exceeded",
				zap.Int("page", page),
				zap.Duration("budget", p.cfg.MaxRunDuration),
			)
			return nil, eris.Wrapf(ErrRunBudgetExceeded, "pipeline: stopped at page %d", page)
		}

		result, ok := p.fetcher.FetchPage(ctx, page, p.cfg.PageSize)
		if !ok {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrapf(err, "pipeline: collect page %d", page)
			}
			p.summary.Cooldowns++
			if p.observer != nil {
				p.observer.ObserveCooldown(page)
			}
			p.log.Warn("page fetch exhausted, cooling down",
				zap.Int("page", page),
				zap.Duration("cooldown", p.cfg.Cooldown),
			)
			if err := p.sleep(ctx, p.cfg.Cooldown); err != nil {
				return nil, eris.Wrapf(err, "pipeline: cooldown page %d", page)
			}
			continue
		}

		scored, skipped := Fold(acc, result.Records)
		p.summary.Pages++
		p.summary.Scored += scored
		p.summary.Skipped += skipped
		if p.observer != nil {
			p.observer.ObservePage(page, scored, skipped)
		}
		p.log.Debug("pipeline: page folded",
			zap.Int("page", page),
			zap.Int("scored", scored),
			zap.Int("skipped", skipped),
			zap.Bool("has_next", result.Pagination.HasNext),
		)
		if skipped > 0 {
			p.log.Warn("pipeline: skipped records without id",
				zap.Int("page", page),
				zap.Int("skipped", skipped),
			)
		}

		if !result.Pagination.HasNext {
			break
		}
		page++
		if err := p.sleep(ctx, p.cfg.InterPageDelay); err != nil {
			return nil, eris.Wrapf(err, "pipeline: delay before page %d", page)
		}
	}

	payload := acc.Payload()
	p.log.Info("pipeline: collection complete",
		zap.Int("pages", p.summary.Pages),
		zap.Int("scored", p.summary.Scored),
		zap.Int("skipped", p.summary.Skipped),
		zap.Int("high_risk", len(payload.HighRiskPatients)),
		zap.Int("fever", len(payload.FeverPatients)),
		zap.Int("data_quality", len(payload.DataQualityIssues)),
	)
	return &payload, nil
}

// Run collects every page and submits the payload exactly once.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	if p.submitter == nil {
		return nil, eris.New("pipeline: no submitter configured")
	}

	payload, err := p.Collect(ctx)
	if err != nil {
		return nil, err
	}

	sub, err := p.submitter.SubmitAssessment(ctx, *payload)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: submit assessment")
	}

	fields := []zap.Field{}
	if sub.Results != nil {
		fields = append(fields,
			zap.Float64("percentage", sub.Results.Percentage),
			zap.String("status", sub.Results.Status),
		)
	}
	p.log.Info("pipeline: assessment submitted", fields...)

	return &RunResult{
		RunID:      p.runID,
		Payload:    *payload,
		Submission: sub,
		Summary:    p.summary,
	}, nil
}
