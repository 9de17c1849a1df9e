package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/assessment-cli/internal/config"
	"github.com/sells-group/assessment-cli/internal/fetcher"
	"github.com/sells-group/assessment-cli/internal/model"
	"github.com/sells-group/assessment-cli/internal/resilience"
	"github.com/sells-group/assessment-cli/pkg/patientapi"
)

// --- Fakes ---

// fetchStep is one scripted FetchPage response.
type fetchStep struct {
	page *model.Page
	ok   bool
}

type scriptedFetcher struct {
	steps     []fetchStep
	requested []int
	limits    []int
}

func (s *scriptedFetcher) FetchPage(_ context.Context, page, limit int) (*model.Page, bool) {
	s.requested = append(s.requested, page)
	s.limits = append(s.limits, limit)
	i := len(s.requested) - 1
	if i >= len(s.steps) {
		return nil, false
	}
	return s.steps[i].page, s.steps[i].ok
}

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) SubmitAssessment(ctx context.Context, payload model.AssessmentPayload) (*model.SubmissionResult, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SubmissionResult), args.Error(1)
}

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

type pageLog struct {
	pages     []int
	cooldowns []int
}

func (l *pageLog) ObservePage(page, _, _ int) { l.pages = append(l.pages, page) }
func (l *pageLog) ObserveCooldown(page int)   { l.cooldowns = append(l.cooldowns, page) }

func page(t *testing.T, n int, hasNext bool, js string) fetchStep {
	t.Helper()
	return fetchStep{
		page: &model.Page{Records: records(t, js), Pagination: model.Pagination{Page: n, HasNext: hasNext}},
		ok:   true,
	}
}

func testConfig() Config {
	return Config{PageSize: 5, Cooldown: 2500 * time.Millisecond, InterPageDelay: 300 * time.Millisecond}
}

// --- Config ---

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.PipelineConfig{PageSize: 10, CooldownMs: 100, InterPageDelayMs: 20, MaxRunSecs: 60})
	assert.Equal(t, Config{PageSize: 10, Cooldown: 100 * time.Millisecond, InterPageDelay: 20 * time.Millisecond, MaxRunDuration: time.Minute}, c)

	assert.Equal(t, DefaultConfig(), FromConfig(config.PipelineConfig{}))
}

// --- Collect ---

func TestCollect_WalksPagesWithInterPageDelay(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		page(t, 1, true, `[{"patient_id":"A","age":70,"temperature":101,"blood_pressure":"140/80"}]`),
		page(t, 2, true, `[{"patient_id":"B","age":30,"temperature":100.5,"blood_pressure":"118/75"}]`),
		page(t, 3, false, `[{"patient_id":"C","age":"n/a"}]`),
	}}
	sleeps := &recordedSleeps{}
	pl := &pageLog{}

	p := New(testConfig(), f, nil, WithSleep(sleeps.sleep), WithObserver(pl), WithLogger(zap.NewNop()))
	payload, err := p.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, f.requested)
	assert.Equal(t, []int{5, 5, 5}, f.limits)
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 300 * time.Millisecond}, sleeps.delays)
	assert.Equal(t, []int{1, 2, 3}, pl.pages)

	assert.Equal(t, []string{"A"}, payload.HighRiskPatients)
	assert.Equal(t, []string{"A", "B"}, payload.FeverPatients)
	assert.Equal(t, []string{"C"}, payload.DataQualityIssues)
	assert.Equal(t, Summary{Pages: 3, Scored: 3}, p.Summary())
}

func TestCollect_SinglePageNoDelay(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{page(t, 1, false, `[]`)}}
	sleeps := &recordedSleeps{}

	payload, err := New(testConfig(), f, nil, WithSleep(sleeps.sleep), WithLogger(zap.NewNop())).Collect(context.Background())
	require.NoError(t, err)

	assert.Empty(t, sleeps.delays)
	assert.Empty(t, payload.HighRiskPatients)
	assert.NotNil(t, payload.HighRiskPatients)
}

func TestCollect_ExhaustionCoolsDownAndRetriesSamePage(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		page(t, 1, true, `[{"patient_id":"A","age":70,"temperature":101,"blood_pressure":"140/80"}]`),
		{ok: false},
		{ok: false},
		page(t, 2, false, `[{"patient_id":"B","temperature":102}]`),
	}}
	sleeps := &recordedSleeps{}
	pl := &pageLog{}
	core, logs := observer.New(zap.WarnLevel)

	p := New(testConfig(), f, nil, WithSleep(sleeps.sleep), WithObserver(pl), WithLogger(zap.New(core)))
	payload, err := p.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 2, 2}, f.requested)
	assert.Equal(t, []time.Duration{
		300 * time.Millisecond,
		2500 * time.Millisecond,
		2500 * time.Millisecond,
	}, sleeps.delays)
	assert.Equal(t, []int{2, 2}, pl.cooldowns)
	assert.Equal(t, 2, p.Summary().Cooldowns)
	assert.Equal(t, 2, logs.FilterMessage("page fetch exhausted, cooling down").Len())

	// Page 1 data is kept across the cooldown.
	assert.Equal(t, []string{"A"}, payload.HighRiskPatients)
	assert.Equal(t, []string{"A", "B"}, payload.FeverPatients)
}

func TestCollect_SkipsRecordsWithoutID(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		page(t, 1, false, `[{"age":90,"temperature":105,"blood_pressure":"200/120"},{"patient_id":"Z","age":20}]`),
	}}
	core, logs := observer.New(zap.WarnLevel)

	p := New(testConfig(), f, nil, WithSleep((&recordedSleeps{}).sleep), WithLogger(zap.New(core)))
	payload, err := p.Collect(context.Background())
	require.NoError(t, err)

	assert.Empty(t, payload.HighRiskPatients)
	assert.Empty(t, payload.FeverPatients)
	assert.Equal(t, Summary{Pages: 1, Scored: 1, Skipped: 1}, p.Summary())
	assert.Equal(t, 1, logs.FilterMessage("pipeline: skipped records without id").Len())
}

func TestCollect_RunBudgetExceeded(t *testing.T) {
	f := &scriptedFetcher{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}

	cfg := testConfig()
	cfg.MaxRunDuration = 3 * time.Second
	p := New(cfg, f, nil, WithSleep((&recordedSleeps{}).sleep), WithClock(clock), WithLogger(zap.NewNop()))

	_, err := p.Collect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunBudgetExceeded)
	assert.Len(t, f.requested, 2)
}

func TestCollect_UnboundedByDefault(t *testing.T) {
	steps := make([]fetchStep, 50)
	steps = append(steps, page(t, 1, false, `[]`))
	f := &scriptedFetcher{steps: steps}
	sleeps := &recordedSleeps{}

	p := New(testConfig(), f, nil, WithSleep(sleeps.sleep), WithLogger(zap.NewNop()))
	_, err := p.Collect(context.Background())
	require.NoError(t, err)

	assert.Len(t, f.requested, 51)
	assert.Len(t, sleeps.delays, 50)
	assert.Equal(t, 50, p.Summary().Cooldowns)
}

func TestCollect_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(testConfig(), &scriptedFetcher{}, nil, WithSleep((&recordedSleeps{}).sleep), WithLogger(zap.NewNop()))
	_, err := p.Collect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollect_SleepErrorStopsRun(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{{ok: false}}}
	failing := func(context.Context, time.Duration) error { return context.DeadlineExceeded }

	_, err := New(testConfig(), f, nil, WithSleep(failing), WithLogger(zap.NewNop())).Collect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// --- Run ---

func TestRun_SubmitsOnce(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{
		page(t, 1, false, `[{"patient_id":"A","age":70,"temperature":101,"blood_pressure":"140/80"}]`),
	}}
	want := model.AssessmentPayload{
		HighRiskPatients:  []string{"A"},
		FeverPatients:     []string{"A"},
		DataQualityIssues: []string{},
	}
	sub := &mockSubmitter{}
	sub.On("SubmitAssessment", mock.Anything, want).
		Return(&model.SubmissionResult{Results: &model.SubmissionResults{Percentage: 100, Status: "pass"}}, nil).
		Once()

	p := New(testConfig(), f, sub, WithSleep((&recordedSleeps{}).sleep), WithLogger(zap.NewNop()), WithRunID("run-42"))
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	sub.AssertExpectations(t)
	assert.Equal(t, "run-42", res.RunID)
	assert.Equal(t, want, res.Payload)
	assert.InDelta(t, 100, res.Submission.Results.Percentage, 0.001)
	assert.Equal(t, 1, res.Summary.Pages)
}

func TestRun_SubmissionError(t *testing.T) {
	f := &scriptedFetcher{steps: []fetchStep{page(t, 1, false, `[]`)}}
	sub := &mockSubmitter{}
	sub.On("SubmitAssessment", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	_, err := New(testConfig(), f, sub, WithSleep((&recordedSleeps{}).sleep), WithLogger(zap.NewNop())).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: submit assessment")
	sub.AssertExpectations(t)
}

func TestRun_CollectErrorSkipsSubmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub := &mockSubmitter{}

	_, err := New(testConfig(), &scriptedFetcher{}, sub, WithSleep((&recordedSleeps{}).sleep), WithLogger(zap.NewNop())).Run(ctx)
	require.Error(t, err)
	sub.AssertNotCalled(t, "SubmitAssessment", mock.Anything, mock.Anything)
}

func TestRun_NoSubmitter(t *testing.T) {
	_, err := New(testConfig(), &scriptedFetcher{}, nil).Run(context.Background())
	require.Error(t, err)
}

// --- End to end over HTTP ---

func TestRun_EndToEndOverHTTP(t *testing.T) {
	pages := map[int]string{
		1: `{"data":[{"patient_id":"DEMO001","age":45,"temperature":98.6,"blood_pressure":"120/80"},
		            {"patient_id":"DEMO002","age":67,"temperature":100.8,"blood_pressure":"145/92"}],
		     "pagination":{"page":1,"hasNext":true}}`,
		2: `{"data":[{"patient_id":"DEMO003","age":null,"temperature":"TEMP_ERROR","blood_pressure":"INVALID"}],
		     "pagination":{"page":2,"hasNext":false}}`,
	}
	var page2Calls int
	var submitted model.AssessmentPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/patients":
			n, _ := strconv.Atoi(r.URL.Query().Get("page"))
			if n == 2 {
				page2Calls++
				if page2Calls <= 2 {
					w.WriteHeader(http.StatusTooManyRequests)
					return
				}
			}
			fmt.Fprint(w, pages[n])
		case "/submit-assessment":
			_ = json.NewDecoder(r.Body).Decode(&submitted)
			fmt.Fprint(w, `{"results":{"percentage":100,"status":"PASS"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := patientapi.NewClient("key", patientapi.WithBaseURL(srv.URL))
	fetchSleeps := &recordedSleeps{}
	pf := fetcher.New(client, resilience.DefaultPolicy(), fetcher.WithSleep(fetchSleeps.sleep), fetcher.WithLogger(zap.NewNop()))
	runSleeps := &recordedSleeps{}

	res, err := New(testConfig(), pf, client, WithSleep(runSleeps.sleep), WithLogger(zap.NewNop())).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{850 * time.Millisecond, 1100 * time.Millisecond}, fetchSleeps.delays)
	assert.Equal(t, []time.Duration{300 * time.Millisecond}, runSleeps.delays)

	want := model.AssessmentPayload{
		HighRiskPatients:  []string{"DEMO002"},
		FeverPatients:     []string{"DEMO002"},
		DataQualityIssues: []string{"DEMO003"},
	}
	assert.Equal(t, want, res.Payload)
	assert.Equal(t, want, submitted)
	assert.Equal(t, "PASS", res.Submission.Results.Status)
}
