package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/kapu/persona-avatar-bot-go/internal/domain"
	"github.com/kapu/persona-avatar-bot-go/internal/service/artifact"
	"github.com/kapu/persona-avatar-bot-go/internal/service/audit"
	"github.com/kapu/persona-avatar-bot-go/internal/service/search"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Unix(1700000000, 0)

type avatarUpdate struct {
	id    string
	value any
}

type fakeStore struct {
	records   []*domain.PersonaRecord
	listErr   error
	failPatch int
	updates   []avatarUpdate
}

func (f *fakeStore) ListAll(context.Context) iter.Seq2[*domain.PersonaRecord, error] {
	return func(yield func(*domain.PersonaRecord, error) bool) {
		for _, rec := range f.records {
			if !yield(rec, nil) {
				return
			}
		}
		if f.listErr != nil {
			yield(nil, f.listErr)
		}
	}
}

func (f *fakeStore) UpdateAvatar(_ context.Context, id string, value any) error {
	f.updates = append(f.updates, avatarUpdate{id: id, value: value})
	if f.failPatch > 0 {
		f.failPatch--
		return errors.NewPersistenceError("patch failed", id, "update", nil)
	}
	return nil
}

type fakeAssessor struct {
	verdicts map[string]domain.Verdict
	calls    int
	onAssess func()
}

func (f *fakeAssessor) Assess(_ context.Context, ref domain.AvatarReference) domain.Assessment {
	f.calls++
	if f.onAssess != nil {
		f.onAssess()
	}
	url, _ := domain.NormalizeAvatar(ref, nil)
	verdict, ok := f.verdicts[url]
	if !ok {
		verdict = domain.VerdictLikelyGeneric
	}
	return domain.Assessment{Verdict: verdict, Reason: "test", URL: url}
}

func (f *fakeAssessor) InferType(*domain.PersonaRecord) domain.PersonaType {
	return domain.PersonaHistorical
}

type searchResult struct {
	candidates []domain.AvatarCandidate
	err        error
}

type fakeFinder struct {
	results map[string]searchResult
	calls   []string
}

func (f *fakeFinder) Search(_ context.Context, req search.Request) ([]domain.AvatarCandidate, error) {
	f.calls = append(f.calls, req.Name)
	r := f.results[req.Name]
	return r.candidates, r.err
}

type fakeAcquirer struct {
	failures map[string]error
	tried    []string
	panicOn  string
}

func (f *fakeAcquirer) Acquire(_ context.Context, sourceURL, stem string) (*domain.NormalizedImage, error) {
	if sourceURL == f.panicOn {
		panic("decoder exploded")
	}
	f.tried = append(f.tried, sourceURL)
	if err := f.failures[sourceURL]; err != nil {
		return nil, err
	}
	return &domain.NormalizedImage{
		Data:        []byte("jpeg:" + sourceURL),
		Width:       400,
		Height:      400,
		Format:      "jpeg",
		Extension:   "jpg",
		ContentType: "image/jpeg",
		Stem:        stem,
		SourceURL:   sourceURL,
	}, nil
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memStore) Put(_ context.Context, name string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return nil
}

func (m *memStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

func (m *memStore) Backend() string { return "memory" }

type fakeAudit struct {
	entries []audit.Entry
}

func (f *fakeAudit) Record(_ context.Context, e audit.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

type harness struct {
	store     *fakeStore
	assessor  *fakeAssessor
	finder    *fakeFinder
	acquirer  *fakeAcquirer
	artifacts *memStore
	audit     *fakeAudit
	sleeps    int
	orch      *Orchestrator
}

func newHarness(cfg Config, records ...*domain.PersonaRecord) *harness {
	h := &harness{
		store:     &fakeStore{records: records},
		assessor:  &fakeAssessor{verdicts: map[string]domain.Verdict{}},
		finder:    &fakeFinder{results: map[string]searchResult{}},
		acquirer:  &fakeAcquirer{failures: map[string]error{}},
		artifacts: &memStore{files: map[string][]byte{}},
		audit:     &fakeAudit{},
	}
	publisher := artifact.NewPublisher(h.artifacts, "https://cdn.example.com/avatars", nil)
	h.orch = New(h.store, h.assessor, h.finder, h.acquirer, publisher, cfg, nil,
		WithClock(func() time.Time { return fixedNow }),
		WithSleeper(func(ctx context.Context, _ time.Duration) error {
			h.sleeps++
			return ctx.Err()
		}),
		WithAudit(h.audit),
	)
	return h
}

func defaultConfig() Config {
	return Config{RecordDelay: time.Second, ReplaceOnFetchFailure: true, AvatarShape: "url"}
}

func persona(id, name, avatar string) *domain.PersonaRecord {
	return &domain.PersonaRecord{ID: id, Name: name, Avatar: domain.ParseAvatarReference(avatar)}
}

func candidates(urls ...string) []domain.AvatarCandidate {
	out := make([]domain.AvatarCandidate, 0, len(urls))
	for i, u := range urls {
		out = append(out, domain.AvatarCandidate{URL: u, Query: fmt.Sprintf("q%d", i), Priority: len(urls) - i})
	}
	return out
}

func TestRun_FirstSuccessfulCandidateWins(t *testing.T) {
	h := newHarness(defaultConfig(), persona("rec1", "Ada Lovelace", "https://old.example.org/ada.png"))
	h.finder.results["Ada Lovelace"] = searchResult{candidates: candidates("https://c/1.jpg", "https://c/2.jpg", "https://c/3.jpg", "https://c/4.jpg")}
	h.acquirer.failures["https://c/1.jpg"] = errors.NewFormatError("html", "text/html", nil)
	h.acquirer.failures["https://c/2.jpg"] = errors.NewConstraintViolation("too small", "min_dimension", 50)

	result, err := h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, RunStatistics{Checked: 1, NeedingReplacement: 1, Replaced: 1}, result.Stats)
	assert.Equal(t, []string{"https://c/1.jpg", "https://c/2.jpg", "https://c/3.jpg"}, h.acquirer.tried, "candidate 4 is never tried")

	require.Len(t, h.store.updates, 1)
	wantURL := "https://cdn.example.com/avatars/ada-lovelace-1700000000.jpg?v=1700000000"
	assert.Equal(t, avatarUpdate{id: "rec1", value: wantURL}, h.store.updates[0])
	assert.Equal(t, []byte("jpeg:https://c/3.jpg"), h.artifacts.files["ada-lovelace-1700000000.jpg"])

	outcome := result.Outcomes[0]
	assert.Equal(t, StateReplaced, outcome.State)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, "https://c/3.jpg", outcome.SourceURL)
	assert.Equal(t, "https://old.example.org/ada.png", outcome.OldURL)
	assert.InDelta(t, 1.0, result.Stats.SuccessRate(), 0.0001)

	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, result.RunID, h.audit.entries[0].RunID)
	assert.Equal(t, wantURL, h.audit.entries[0].NewURL)
}

func TestRun_NoCandidatesLeavesRecordUnchanged(t *testing.T) {
	h := newHarness(defaultConfig(), persona("rec1", "Nobody", ""))

	result, err := h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, RunStatistics{Checked: 1, NeedingReplacement: 1, Failed: 1}, result.Stats)
	assert.Equal(t, StateExhausted, result.Outcomes[0].State)
	assert.Empty(t, h.store.updates)
	assert.Empty(t, h.artifacts.files)
}

func TestRun_AllCandidatesFail(t *testing.T) {
	h := newHarness(defaultConfig(), persona("rec1", "Zeus", ""))
	h.finder.results["Zeus"] = searchResult{candidates: candidates("https://c/1.jpg", "https://c/2.jpg")}
	h.acquirer.failures["https://c/1.jpg"] = errors.NewTransportError("404", "https://c/1.jpg", 404, nil)
	h.acquirer.failures["https://c/2.jpg"] = errors.NewTransportError("timeout", "https://c/2.jpg", 0, nil)

	result, err := h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.Failed)
	assert.Equal(t, 2, result.Outcomes[0].Attempts)
	assert.Contains(t, result.Outcomes[0].LastError, "timeout")
	assert.Empty(t, h.store.updates)
}

func TestRun_AcceptableAvatarSkipsSearch(t *testing.T) {
	h := newHarness(defaultConfig(), persona("rec1", "Plato", "https://cdn.example.com/avatars/plato.jpg"))
	h.assessor.verdicts["https://cdn.example.com/avatars/plato.jpg"] = domain.VerdictAcceptable

	for range 2 {
		result, err := h.orch.Run(context.Background(), RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, RunStatistics{Checked: 1}, result.Stats)
		assert.Equal(t, StateAccepted, result.Outcomes[0].State)
	}
	assert.Empty(t, h.finder.calls)
	assert.Empty(t, h.store.updates)
	assert.Empty(t, h.audit.entries)
}

func TestRun_QuotaStillTriesCollectedCandidates(t *testing.T) {
	h := newHarness(defaultConfig(), persona("rec1", "Cleopatra", ""))
	h.finder.results["Cleopatra"] = searchResult{
		candidates: candidates("https://c/1.jpg", "https://c/2.jpg"),
		err:        errors.NewQuotaExceededError("cleopatra", http.StatusTooManyRequests, nil),
	}
	h.acquirer.failures["https://c/1.jpg"] = errors.NewFormatError("svg", "image/svg+xml", nil)

	result, err := h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	outcome := result.Outcomes[0]
	assert.Equal(t, StateReplaced, outcome.State)
	assert.True(t, outcome.QuotaHit)
	assert.Equal(t, "https://c/2.jpg", outcome.SourceURL)
	assert.Equal(t, 1, result.Stats.Replaced)
}

func TestRun_QuotaCooldownSkipsFollowingRecords(t *testing.T) {
	cfg := defaultConfig()
	cfg.QuotaCooldownRecords = 1
	h := newHarness(cfg, persona("r1", "A", ""), persona("r2", "B", ""), persona("r3", "C", ""))
	h.finder.results["A"] = searchResult{err: errors.NewQuotaExceededError("a", 429, nil)}
	h.finder.results["C"] = searchResult{candidates: candidates("https://c/c.jpg")}

	result, err := h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C"}, h.finder.calls)
	assert.Equal(t, RunStatistics{Checked: 3, NeedingReplacement: 3, Replaced: 1, Failed: 2}, result.Stats)
	assert.Equal(t, "search skipped after quota exhaustion", result.Outcomes[1].Reason)
}

func TestRun_PatchFailureAdvancesAndRemovesArtifact(t *testing.T) {
	h := newHarness(defaultConfig(), persona("rec1", "Hypatia", ""))
	h.finder.results["Hypatia"] = searchResult{candidates: candidates("https://c/1.jpg", "https://c/2.jpg")}
	h.store.failPatch = 1

	result, err := h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, StateReplaced, result.Outcomes[0].State)
	assert.Equal(t, "https://c/2.jpg", result.Outcomes[0].SourceURL)
	assert.Len(t, h.store.updates, 2)
	require.Len(t, h.artifacts.files, 1)
	assert.Equal(t, []byte("jpeg:https://c/2.jpg"), h.artifacts.files["hypatia-1700000000.jpg"])
}

func TestRun_AttachmentShape(t *testing.T) {
	cfg := defaultConfig()
	cfg.AvatarShape = "attachment"
	h := newHarness(cfg, persona("rec1", "Odin", ""))
	h.finder.results["Odin"] = searchResult{candidates: candidates("https://c/1.jpg")}

	_, err := h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	require.Len(t, h.store.updates, 1)
	assert.Equal(t, []map[string]any{{"url": "https://cdn.example.com/avatars/odin-1700000000.jpg?v=1700000000"}}, h.store.updates[0].value)
}

func TestRun_FetchFailurePolicy(t *testing.T) {
	rec := persona("rec1", "Tesla", "https://dead.example.org/t.jpg")

	h := newHarness(defaultConfig(), rec)
	h.assessor.verdicts["https://dead.example.org/t.jpg"] = domain.VerdictAnalysisFailed
	result, err := h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tesla"}, h.finder.calls)
	assert.Equal(t, 1, result.Stats.NeedingReplacement)

	cfg := defaultConfig()
	cfg.ReplaceOnFetchFailure = false
	h = newHarness(cfg, rec)
	h.assessor.verdicts["https://dead.example.org/t.jpg"] = domain.VerdictAnalysisFailed
	result, err = h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Empty(t, h.finder.calls)
	assert.Equal(t, StateReview, result.Outcomes[0].State)
	assert.Equal(t, RunStatistics{Checked: 1}, result.Stats)
}

func TestRun_CheckOnlyNeverSearchesOrWrites(t *testing.T) {
	h := newHarness(defaultConfig(),
		persona("r1", "A", ""),
		persona("r2", "B", "https://ok.example.org/b.jpg"),
	)
	h.assessor.verdicts["https://ok.example.org/b.jpg"] = domain.VerdictAcceptable

	result, err := h.orch.Run(context.Background(), RunOptions{CheckOnly: true})
	require.NoError(t, err)

	assert.True(t, result.CheckOnly)
	assert.Equal(t, RunStatistics{Checked: 2, NeedingReplacement: 1}, result.Stats)
	assert.Equal(t, StateFlagged, result.Outcomes[0].State)
	assert.Empty(t, h.finder.calls)
	assert.Empty(t, h.store.updates)
}

func TestRun_NameFilterAndLimit(t *testing.T) {
	h := newHarness(defaultConfig(),
		persona("r1", "Marcus Aurelius", ""),
		persona("r2", "Ada Lovelace", ""),
		persona("r3", "Marcus Garvey", ""),
		persona("r4", "Marcus Tullius Cicero", ""),
	)

	result, err := h.orch.Run(context.Background(), RunOptions{NameFilter: "MARCUS", Limit: 2})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, "r1", result.Outcomes[0].RecordID)
	assert.Equal(t, "r3", result.Outcomes[1].RecordID)
	assert.Equal(t, 1, h.sleeps, "delay only between processed records")
}

func TestRun_StopBetweenRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(defaultConfig(), persona("r1", "A", ""), persona("r2", "B", ""))
	h.finder.results["A"] = searchResult{candidates: candidates("https://c/a.jpg")}
	h.assessor.onAssess = cancel

	result, err := h.orch.Run(ctx, RunOptions{})
	require.NoError(t, err)

	assert.True(t, result.Stopped)
	assert.Equal(t, 1, result.Stats.Checked)
	assert.Equal(t, StateReplaced, result.Outcomes[0].State, "in-flight record finishes after cancellation")
	assert.Len(t, h.store.updates, 1)
}

func TestRun_ListingFailureAbortsWithPartialResult(t *testing.T) {
	h := newHarness(defaultConfig(), persona("r1", "A", ""))
	h.store.listErr = errors.NewTransportError("page failed", "records", 500, nil)

	result, err := h.orch.Run(context.Background(), RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Stats.Checked)
}

func TestRun_PanicCountsAsFailure(t *testing.T) {
	h := newHarness(defaultConfig(), persona("r1", "A", ""), persona("r2", "B", ""))
	h.finder.results["A"] = searchResult{candidates: candidates("https://c/boom.jpg")}
	h.finder.results["B"] = searchResult{candidates: candidates("https://c/b.jpg")}
	h.acquirer.panicOn = "https://c/boom.jpg"

	result, err := h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, RunStatistics{Checked: 2, NeedingReplacement: 2, Replaced: 1, Failed: 1}, result.Stats)
	assert.Equal(t, "decoder exploded", result.Outcomes[0].LastError)
	assert.Equal(t, StateExhausted, result.Outcomes[0].State)
	assert.Equal(t, 1, result.Outcomes[0].Attempts)
	assert.InDelta(t, 0.5, result.Stats.SuccessRate(), 0.0001)
}

func TestRun_PanicBeforeClassificationGoesToReview(t *testing.T) {
	h := newHarness(defaultConfig(), persona("r1", "A", ""), persona("r2", "B", ""))
	h.finder.results["B"] = searchResult{candidates: candidates("https://c/b.jpg")}
	h.assessor.onAssess = func() {
		if h.assessor.calls == 1 {
			panic("analysis exploded")
		}
	}

	result, err := h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, RunStatistics{Checked: 2, NeedingReplacement: 1, Replaced: 1}, result.Stats)
	assert.Equal(t, StateReview, result.Outcomes[0].State)
	assert.False(t, result.Outcomes[0].NeedsReplacement)
	assert.Equal(t, "analysis exploded", result.Outcomes[0].LastError)
	assert.Equal(t, []string{"B"}, h.finder.calls)
	assert.InDelta(t, 1.0, result.Stats.SuccessRate(), 0.0001)
}

type fakeLocker struct {
	held     bool
	released bool
}

func (f *fakeLocker) AcquireLock(context.Context, string, string, time.Duration) (bool, error) {
	return !f.held, nil
}

func (f *fakeLocker) ReleaseLock(context.Context, string, string) error {
	f.released = true
	return nil
}

func TestRun_RunLock(t *testing.T) {
	locker := &fakeLocker{held: true}
	h := newHarness(defaultConfig(), persona("r1", "A", ""))
	WithLocker(locker)(h.orch)

	_, err := h.orch.Run(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	locker.held = false
	_, err = h.orch.Run(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.True(t, locker.released)
}
