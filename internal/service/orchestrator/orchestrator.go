package orchestrator

import (
	"context"
	stderrors "errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/persona-avatar-bot-go/internal/domain"
	"github.com/kapu/persona-avatar-bot-go/internal/service/artifact"
	"github.com/kapu/persona-avatar-bot-go/internal/service/audit"
	"github.com/kapu/persona-avatar-bot-go/internal/service/search"
	"github.com/kapu/persona-avatar-bot-go/internal/util"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

const (
	runLockKey = "avatarbot:run-lock"
	runLockTTL = 6 * time.Hour
)

// ErrRunInProgress is returned when another batch holds the run lock.
var ErrRunInProgress = stderrors.New("another avatar run is in progress")

type RecordStore interface {
	ListAll(ctx context.Context) iter.Seq2[*domain.PersonaRecord, error]
	UpdateAvatar(ctx context.Context, id string, value any) error
}

type Assessor interface {
	Assess(ctx context.Context, ref domain.AvatarReference) domain.Assessment
	InferType(rec *domain.PersonaRecord) domain.PersonaType
}

type CandidateFinder interface {
	Search(ctx context.Context, req search.Request) ([]domain.AvatarCandidate, error)
}

type ImageAcquirer interface {
	Acquire(ctx context.Context, sourceURL, stem string) (*domain.NormalizedImage, error)
}

type Publisher interface {
	Publish(ctx context.Context, recordID string, img *domain.NormalizedImage, at time.Time) (*artifact.Published, error)
	Discard(ctx context.Context, name string)
}

type AuditSink interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Locker guards against two batches patching the same store at once.
type Locker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

type Config struct {
	RecordDelay           time.Duration
	ReplaceOnFetchFailure bool
	AvatarShape           string
	QuotaCooldownRecords  int
}

// RunOptions select which records a run touches and whether it may write.
type RunOptions struct {
	CheckOnly  bool
	Limit      int
	NameFilter string
}

type Orchestrator struct {
	records   RecordStore
	assessor  Assessor
	finder    CandidateFinder
	acquirer  ImageAcquirer
	publisher Publisher
	audit     AuditSink
	locker    Locker
	cfg       Config
	now       util.Clock
	sleep     search.Sleeper
	logger    *zap.Logger
}

type Option func(*Orchestrator)

func WithAudit(sink AuditSink) Option {
	return func(o *Orchestrator) { o.audit = sink }
}

func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

func WithClock(clock util.Clock) Option {
	return func(o *Orchestrator) { o.now = clock }
}

func WithSleeper(s search.Sleeper) Option {
	return func(o *Orchestrator) { o.sleep = s }
}

func New(
	records RecordStore,
	assessor Assessor,
	finder CandidateFinder,
	acquirer ImageAcquirer,
	publisher Publisher,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		records:   records,
		assessor:  assessor,
		finder:    finder,
		acquirer:  acquirer,
		publisher: publisher,
		cfg:       cfg,
		now:       util.SystemClock(),
		sleep:     util.Sleep,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// runState is the per-run bookkeeping shared by consecutive records.
type runState struct {
	id            string
	checkOnly     bool
	quotaCooldown int
}

// Run processes records one at a time until the listing ends, the limit is
// reached, or ctx is cancelled. Cancellation is honoured between records
// only; the record in flight always finishes. A listing failure aborts the
// batch and is returned together with the partial result.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	run := &runState{id: uuid.NewString(), checkOnly: opts.CheckOnly}
	result := &RunResult{
		RunID:     run.id,
		CheckOnly: opts.CheckOnly,
		StartedAt: o.now(),
	}

	if o.locker != nil && !opts.CheckOnly {
		acquired, err := o.locker.AcquireLock(ctx, runLockKey, run.id, runLockTTL)
		if err != nil {
			o.logger.Warn("Run lock unavailable, continuing without it", zap.Error(err))
		} else if !acquired {
			return nil, ErrRunInProgress
		} else {
			defer func() {
				if err := o.locker.ReleaseLock(context.WithoutCancel(ctx), runLockKey, run.id); err != nil {
					o.logger.Warn("Failed to release run lock", zap.Error(err))
				}
			}()
		}
	}

	o.logger.Info("Avatar run started",
		zap.String("run_id", run.id),
		zap.Bool("check_only", opts.CheckOnly),
		zap.Int("limit", opts.Limit),
		zap.String("name_filter", opts.NameFilter),
	)

	reporter := NewReporter()
	nameFilter := util.Normalize(opts.NameFilter)
	var runErr error

	for rec, err := range o.records.ListAll(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				result.Stopped = true
				break
			}
			runErr = fmt.Errorf("listing records: %w", err)
			break
		}
		if nameFilter != "" && !strings.Contains(util.Normalize(rec.Name), nameFilter) {
			continue
		}
		if opts.Limit > 0 && reporter.Snapshot().Checked >= opts.Limit {
			break
		}

		if reporter.Snapshot().Checked > 0 {
			if err := o.sleep(ctx, o.cfg.RecordDelay); err != nil {
				result.Stopped = true
				break
			}
		}
		if ctx.Err() != nil {
			result.Stopped = true
			break
		}

		outcome := o.processSafely(context.WithoutCancel(ctx), run, rec)
		reporter.Record(outcome)
	}

	result.FinishedAt = o.now()
	result.Stats = reporter.Snapshot()
	result.Outcomes = reporter.Outcomes()

	o.logger.Info("Avatar run finished",
		zap.String("run_id", run.id),
		zap.Int("checked", result.Stats.Checked),
		zap.Int("needing_replacement", result.Stats.NeedingReplacement),
		zap.Int("replaced", result.Stats.Replaced),
		zap.Int("failed", result.Stats.Failed),
		zap.Float64("success_rate", result.Stats.SuccessRate()),
		zap.Bool("stopped", result.Stopped),
		zap.Duration("duration", result.Duration()),
	)

	return result, runErr
}

// processSafely turns a panic inside one record into a terminal outcome. The
// record only counts as needing replacement if classification said so before
// the panic; an earlier panic sends it to manual review.
func (o *Orchestrator) processSafely(ctx context.Context, run *runState, rec *domain.PersonaRecord) Outcome {
	out := Outcome{RecordID: rec.ID, Name: rec.Name}
	var catcher panics.Catcher
	catcher.Try(func() {
		o.process(ctx, run, rec, &out)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		o.logger.Error("Record processing panicked",
			zap.String("record_id", rec.ID),
			zap.String("name", rec.Name),
			zap.String("reached", string(out.State)),
			zap.Error(recovered.AsError()),
		)
		out.State = StateReview
		if out.NeedsReplacement {
			out.State = StateExhausted
		}
		out.Reason = "internal error"
		out.LastError = fmt.Sprint(recovered.Value)
	}
	return out
}

// process drives one record through the state machine until a terminal state.
func (o *Orchestrator) process(ctx context.Context, run *runState, rec *domain.PersonaRecord, out *Outcome) {
	state := StatePending

	var candidates []domain.AvatarCandidate
	next := 0

	for !state.Terminal() {
		out.State = state
		o.logger.Debug("Record state", zap.String("record_id", rec.ID), zap.String("state", string(state)))
		switch state {
		case StatePending:
			state = StateClassifying

		case StateClassifying:
			assessment := o.assessor.Assess(ctx, rec.Avatar)
			out.Verdict = assessment.Verdict
			out.Reason = assessment.Reason
			out.OldURL = assessment.URL
			state = o.afterClassification(assessment.Verdict, run.checkOnly)
			out.NeedsReplacement = state == StateSearching || state == StateFlagged

		case StateSearching:
			if run.quotaCooldown > 0 {
				run.quotaCooldown--
				out.Reason = "search skipped after quota exhaustion"
				state = StateExhausted
				continue
			}
			out.Type = o.assessor.InferType(rec)
			found, err := o.finder.Search(ctx, search.Request{
				Name:        rec.Name,
				Title:       rec.Title,
				Category:    rec.Category,
				Description: rec.Description,
				Type:        out.Type,
			})
			if err != nil {
				if errors.IsQuota(err) {
					out.QuotaHit = true
					run.quotaCooldown = o.cfg.QuotaCooldownRecords
				} else {
					out.LastError = err.Error()
				}
			}
			candidates = found
			out.Candidates = len(candidates)
			if len(candidates) == 0 {
				out.Reason = "no candidates found"
				state = StateExhausted
				continue
			}
			state = StateTryingCandidate

		case StateTryingCandidate:
			if next >= len(candidates) {
				out.Reason = fmt.Sprintf("all %d candidates failed", len(candidates))
				state = StateExhausted
				continue
			}
			candidate := candidates[next]
			next++
			out.Attempts++

			if err := o.tryCandidate(ctx, rec, candidate, out); err != nil {
				out.LastError = err.Error()
				o.logger.Debug("Candidate rejected",
					zap.String("record_id", rec.ID),
					zap.Int("rank", next),
					zap.String("url", util.TruncateString(candidate.URL, 120)),
					zap.String("code", errors.CodeOf(err)),
					zap.Error(err),
				)
				continue
			}
			out.Reason = fmt.Sprintf("replaced with candidate %d of %d", next, len(candidates))
			state = StateReplaced
		}
	}

	out.State = state
	o.logOutcome(*out)
	o.writeAudit(ctx, run, *out)
}

func (o *Orchestrator) afterClassification(verdict domain.Verdict, checkOnly bool) State {
	switch verdict {
	case domain.VerdictAcceptable:
		return StateAccepted
	case domain.VerdictAnalysisFailed:
		if !o.cfg.ReplaceOnFetchFailure {
			return StateReview
		}
	}
	if checkOnly {
		return StateFlagged
	}
	return StateSearching
}

// tryCandidate acquires, publishes and commits one candidate. The record is
// patched only after the artifact is written; a failed patch removes it again.
func (o *Orchestrator) tryCandidate(ctx context.Context, rec *domain.PersonaRecord, candidate domain.AvatarCandidate, out *Outcome) error {
	at := o.now()
	img, err := o.acquirer.Acquire(ctx, candidate.URL, artifact.Stem(rec.Name, at))
	if err != nil {
		return err
	}

	published, err := o.publisher.Publish(ctx, rec.ID, img, at)
	if err != nil {
		return err
	}

	value := domain.AvatarValue(published.PublicURL, o.cfg.AvatarShape)
	if err := o.records.UpdateAvatar(ctx, rec.ID, value); err != nil {
		o.publisher.Discard(ctx, published.Name)
		return err
	}

	out.NewURL = published.PublicURL
	out.SourceURL = candidate.URL
	out.Query = candidate.Query
	return nil
}

func (o *Orchestrator) logOutcome(out Outcome) {
	fields := []zap.Field{
		zap.String("record_id", out.RecordID),
		zap.String("name", out.Name),
		zap.String("state", out.State.String()),
		zap.String("verdict", out.Verdict.String()),
		zap.String("reason", out.Reason),
	}
	switch out.State {
	case StateReplaced:
		o.logger.Info("Avatar replaced", append(fields,
			zap.String("new_url", out.NewURL),
			zap.Int("attempts", out.Attempts),
		)...)
	case StateExhausted:
		o.logger.Warn("Avatar replacement failed", append(fields,
			zap.Int("candidates", out.Candidates),
			zap.Int("attempts", out.Attempts),
			zap.Bool("quota_hit", out.QuotaHit),
			zap.String("last_error", out.LastError),
		)...)
	case StateReview:
		o.logger.Warn("Avatar needs manual review", fields...)
	default:
		o.logger.Info("Avatar checked", fields...)
	}
}

func (o *Orchestrator) writeAudit(ctx context.Context, run *runState, out Outcome) {
	if o.audit == nil || (out.State != StateReplaced && out.State != StateExhausted) {
		return
	}
	err := o.audit.Record(ctx, audit.Entry{
		RunID:       run.id,
		RecordID:    out.RecordID,
		PersonaName: out.Name,
		Verdict:     out.Verdict.String(),
		Outcome:     out.State.String(),
		OldURL:      out.OldURL,
		NewURL:      out.NewURL,
		SourceURL:   out.SourceURL,
		Query:       out.Query,
		Attempts:    out.Attempts,
		Error:       out.LastError,
		CreatedAt:   o.now(),
	})
	if err != nil {
		o.logger.Warn("Audit entry not written", zap.String("record_id", out.RecordID), zap.Error(err))
	}
}
