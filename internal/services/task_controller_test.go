package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/soaringjerry/whenwhy/internal/models"
)

type taskHarness struct {
	c        *TaskController
	clock    *fakeClock
	store    *stubStore
	sink     *captureSink
	provider *FixedProvider
	results  []TaskResult
	queued   []func()
}

type harnessOpt func(*TaskConfig, *TaskDeps, *taskHarness)

// withQueuedFetches holds suggestion fetches until the test runs them.
func withQueuedFetches() harnessOpt {
	return func(_ *TaskConfig, d *TaskDeps, h *taskHarness) {
		d.Spawn = func(f func()) { h.queued = append(h.queued, f) }
	}
}

func transferTask(number int) harnessOpt {
	return func(cfg *TaskConfig, _ *TaskDeps, _ *taskHarness) {
		cfg.Kind = TaskTransfer
		cfg.TaskNumber = number
		cfg.Condition = models.AssignedCondition{TaskID: FirstTransferDataset + number - 1}
	}
}

func newTaskHarness(t *testing.T, timing models.Timing, reflection models.Reflection, opts ...harnessOpt) *taskHarness {
	t.Helper()
	h := &taskHarness{
		clock:    newFakeClock(),
		store:    newStubStore(),
		sink:     &captureSink{},
		provider: NewFixedProvider("Compare readmission by age band", "Plot length of stay against cost"),
	}
	h.store.seed(&models.Participant{ParticipantID: "P001", Phase: models.PhaseExperiment})
	cfg := TaskConfig{
		ParticipantID: "P001",
		Kind:          TaskMain,
		Condition:     models.AssignedCondition{Condition: models.Condition{Timing: timing, Reflection: reflection}, TaskID: 1},
		TaskNumber:    1,
	}
	deps := TaskDeps{
		Store:      h.store,
		Provider:   h.provider,
		Recorder:   h.sink,
		Clock:      h.clock,
		Spawn:      syncSpawn,
		OnComplete: func(r TaskResult) { h.results = append(h.results, r) },
		IDGen:      seqIDs(),
	}
	for _, o := range opts {
		o(&cfg, &deps, h)
	}
	h.c = NewTaskController(cfg, deps)
	return h
}

func (h *taskHarness) start(t *testing.T) {
	t.Helper()
	if err := h.c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func (h *taskHarness) tick(seconds int) { tickFor(h.c, h.clock, seconds) }

func (h *taskHarness) runQueued() {
	q := h.queued
	h.queued = nil
	for _, f := range q {
		f()
	}
}

func validQuestionnaire() models.Questionnaire {
	return models.Questionnaire{Agency: []int{5, 6, 4, 5, 6, 7}, Dependence: 3, CognitiveLoad: []int{4, 3, 2}}
}

func TestStartOpensSessionAndRecordsStart(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	snap := h.c.Snapshot()
	if snap.State != StateRunning || snap.TimeLeft != 600 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Dataset.ID != 1 || snap.SessionID == "" {
		t.Fatalf("dataset/session not set: %+v", snap)
	}
	p, _ := h.store.GetParticipant(context.Background(), "P001")
	if len(p.Sessions) != 1 || p.Sessions[0].SessionID != snap.SessionID {
		t.Fatalf("session not stored: %+v", p.Sessions)
	}
	if h.sink.count(models.ActionTaskStart) != 1 {
		t.Fatalf("task_start not recorded")
	}
	if err := h.c.Start(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second start: want ErrInvalidState, got %v", err)
	}
}

func TestStartFailureLeavesIdle(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.store.failCreateSession = errors.New("disk full")
	if err := h.c.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if got := h.c.State(); got != StateIdle {
		t.Fatalf("want idle after failure, got %s", got)
	}
	h.store.failCreateSession = nil
	h.start(t)
}

func TestTimeLeftRoundsUp(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	h.tick(1)
	if got := h.c.Snapshot().TimeLeft; got != 599 {
		t.Fatalf("want 599, got %d", got)
	}
	h.clock.Advance(500 * time.Millisecond)
	if got := h.c.Snapshot().TimeLeft; got != 599 {
		t.Fatalf("want 599 after half second, got %d", got)
	}
}

func TestRationaleLengthBoundary(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionRequired)
	h.start(t)
	ctx := context.Background()
	state, err := h.c.SubmitIdea(ctx, "Average age by region")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if state != StateAwaitingRationale {
		t.Fatalf("want awaiting_rationale, got %s", state)
	}
	if err := h.c.SubmitRationale(ctx, strings.Repeat("a", 19)); !errors.Is(err, ErrRationaleTooShort) {
		t.Fatalf("19 chars: want ErrRationaleTooShort, got %v", err)
	}
	if h.c.State() != StateAwaitingRationale || len(h.c.Ideas()) != 0 {
		t.Fatalf("short rationale must keep the idea pending")
	}
	if err := h.c.SubmitRationale(ctx, strings.Repeat("é", 20)); err != nil {
		t.Fatalf("20 runes: %v", err)
	}
	ideas := h.c.Ideas()
	if len(ideas) != 1 || ideas[0].Content != "Average age by region" {
		t.Fatalf("unexpected ideas: %+v", ideas)
	}
	if h.c.State() != StateRunning {
		t.Fatalf("want running, got %s", h.c.State())
	}
}

func TestRequiredReflectionEndToEnd(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionRequired)
	h.start(t)
	ctx := context.Background()
	if _, err := h.c.SubmitIdea(ctx, "Average treatment cost by age group"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.c.SubmitRationale(ctx, "Because costs likely correlate with readmission risk"); err != nil {
		t.Fatalf("rationale: %v", err)
	}
	entry, ok := h.sink.last(models.ActionIdeaSubmit)
	if !ok {
		t.Fatalf("idea_submit not recorded")
	}
	if entry.Details["hasRationale"] != true {
		t.Fatalf("hasRationale not set: %+v", entry.Details)
	}
	if err := h.c.Finish(ctx); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := h.c.SubmitQuestionnaire(ctx, validQuestionnaire()); err != nil {
		t.Fatalf("questionnaire: %v", err)
	}
	p, _ := h.store.GetParticipant(ctx, "P001")
	s := p.Sessions[0]
	if !s.Completed || s.EndTime == nil || s.Questionnaire == nil {
		t.Fatalf("session not closed: %+v", s)
	}
	if len(s.Ideas) != 1 || len(s.Rationales) != 1 {
		t.Fatalf("want 1 idea and 1 rationale, got %d/%d", len(s.Ideas), len(s.Rationales))
	}
	if s.Rationales[0].IdeaID != s.Ideas[0].ID || s.Rationales[0].Type != models.RationaleJustification {
		t.Fatalf("rationale not linked: %+v", s.Rationales[0])
	}
	if h.c.State() != StateClosed {
		t.Fatalf("want closed, got %s", h.c.State())
	}
}

func TestSubmitEmptyIdea(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	if _, err := h.c.SubmitIdea(context.Background(), "   \n"); !errors.Is(err, ErrEmptyIdea) {
		t.Fatalf("want ErrEmptyIdea, got %v", err)
	}
	if len(h.c.Ideas()) != 0 || h.sink.count(models.ActionIdeaSubmit) != 0 {
		t.Fatalf("empty idea must not be recorded")
	}
}

func TestOptionalReflectionAcceptsImmediately(t *testing.T) {
	h := newTaskHarness(t, models.TimingAlwaysOn, models.ReflectionOptional)
	h.start(t)
	state, err := h.c.SubmitIdea(context.Background(), "  Trend of visits by month  ")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if state != StateRunning {
		t.Fatalf("want running, got %s", state)
	}
	ideas := h.c.Ideas()
	if len(ideas) != 1 || ideas[0].Content != "Trend of visits by month" || ideas[0].AIInfluenced {
		t.Fatalf("unexpected ideas: %+v", ideas)
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	ctx := context.Background()
	h.tick(42)
	if err := h.c.Finish(ctx); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := h.c.Finish(ctx); err != nil {
		t.Fatalf("second finish: %v", err)
	}
	h.tick(600)
	if n := h.sink.count(models.ActionTaskComplete); n != 1 {
		t.Fatalf("want one task_complete, got %d", n)
	}
	if len(h.results) != 1 || h.results[0].Reason != "finished" || h.results[0].Elapsed != 42*time.Second {
		t.Fatalf("unexpected results: %+v", h.results)
	}
	if h.c.State() != StateAwaitingQuestionnaire {
		t.Fatalf("want awaiting_questionnaire, got %s", h.c.State())
	}
	if _, err := h.c.SubmitIdea(ctx, "too late"); !errors.Is(err, ErrTaskNotActive) {
		t.Fatalf("want ErrTaskNotActive, got %v", err)
	}
}

func TestTimeoutClosesOpenPanel(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	if err := h.c.RequestHelp(context.Background()); err != nil {
		t.Fatalf("help: %v", err)
	}
	h.tick(599)
	if got := h.c.State(); got != StateShowingSuggestions {
		t.Fatalf("want showing_suggestions at 599s, got %s", got)
	}
	h.tick(1)
	snap := h.c.Snapshot()
	if snap.State != StateAwaitingQuestionnaire || snap.PanelOpen {
		t.Fatalf("want completed with panel closed, got %+v", snap)
	}
	entry, _ := h.sink.last(models.ActionTaskComplete)
	if entry.Details["reason"] != "timeout" || entry.Details["timeSpent"] != 600 {
		t.Fatalf("unexpected completion details: %+v", entry.Details)
	}
}

func TestPendingIdeaRecordedOnTimeout(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionRequired)
	h.start(t)
	if _, err := h.c.SubmitIdea(context.Background(), "Median cost per diagnosis"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.tick(600)
	entry, ok := h.sink.last(models.ActionTaskComplete)
	if !ok {
		t.Fatalf("task_complete not recorded")
	}
	if entry.Details["pendingIdea"] != "Median cost per diagnosis" || entry.Details["totalIdeas"] != 0 {
		t.Fatalf("unexpected details: %+v", entry.Details)
	}
}

func TestJITAutoTriggerAfterInactivity(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	ctx := context.Background()
	h.tick(1)
	if _, err := h.c.SubmitIdea(ctx, "Readmission by discharge day"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.tick(63)
	if n := h.sink.count(models.ActionHelpRequest); n != 0 {
		t.Fatalf("triggered before 60s of inactivity: %d", n)
	}
	h.tick(1)
	if n := h.sink.count(models.ActionHelpRequest); n != 1 {
		t.Fatalf("want one auto trigger at 65s, got %d", n)
	}
	gen, _ := h.sink.last(models.ActionSuggestionsGenerated)
	if gen.Details["isAutoTrigger"] != true {
		t.Fatalf("generated entry not marked auto: %+v", gen.Details)
	}
	h.tick(30)
	if n := h.sink.count(models.ActionHelpRequest); n != 1 {
		t.Fatalf("re-triggered while panel open: %d", n)
	}

	// Dismissing does not count as activity, so the next poll fires again.
	snap := h.c.Snapshot()
	if err := h.c.RespondSuggestion(ctx, snap.Suggestions[0].ID, false); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	h.tick(5)
	if n := h.sink.count(models.ActionHelpRequest); n != 2 {
		t.Fatalf("want second auto trigger, got %d", n)
	}
}

func TestJITNoTriggerWithoutIdeas(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	h.tick(300)
	if n := h.sink.count(models.ActionHelpRequest); n != 0 {
		t.Fatalf("auto trigger without ideas: %d", n)
	}
	if len(h.provider.Requests()) != 0 {
		t.Fatalf("provider called without ideas")
	}
}

func TestJITActivityDefersTrigger(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	if _, err := h.c.SubmitIdea(context.Background(), "Cost outliers"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.tick(50)
	if err := h.c.UpdateDraft("typing"); err != nil {
		t.Fatalf("draft: %v", err)
	}
	h.tick(55)
	if n := h.sink.count(models.ActionHelpRequest); n != 0 {
		t.Fatalf("typing must reset inactivity, got %d triggers", n)
	}
	h.tick(10)
	if n := h.sink.count(models.ActionHelpRequest); n != 1 {
		t.Fatalf("want trigger after 60s idle, got %d", n)
	}
}

func TestRequestHelpWhileLoadingIsNoop(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional, withQueuedFetches())
	h.start(t)
	ctx := context.Background()
	if err := h.c.RequestHelp(ctx); err != nil {
		t.Fatalf("help: %v", err)
	}
	if err := h.c.RequestHelp(ctx); err != nil {
		t.Fatalf("second help: %v", err)
	}
	if len(h.queued) != 1 || !h.c.Snapshot().Loading {
		t.Fatalf("want one fetch in flight, got %d", len(h.queued))
	}
	h.runQueued()
	snap := h.c.Snapshot()
	if snap.Loading || !snap.PanelOpen || len(snap.Suggestions) != 2 {
		t.Fatalf("fetch not applied: %+v", snap)
	}
	if err := h.c.RequestHelp(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("help with panel open: want ErrInvalidState, got %v", err)
	}
	if _, err := h.c.SubmitIdea(ctx, "blocked"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("submit with panel open: want ErrInvalidState, got %v", err)
	}
	if err := h.c.CloseSuggestions(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if h.sink.count(models.ActionSuggestionsClosed) != 1 {
		t.Fatalf("suggestions_closed not recorded")
	}
}

func TestAlwaysOnRefreshCadence(t *testing.T) {
	h := newTaskHarness(t, models.TimingAlwaysOn, models.ReflectionOptional)
	h.start(t)
	ctx := context.Background()
	if err := h.c.RequestHelp(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("always-on help: want ErrInvalidState, got %v", err)
	}
	h.tick(1)
	if n := len(h.provider.Requests()); n != 0 {
		t.Fatalf("fetched before 2s: %d", n)
	}
	h.tick(1)
	if n := len(h.provider.Requests()); n != 1 {
		t.Fatalf("want first refresh at 2s, got %d", n)
	}
	first := h.c.Snapshot().Suggestions
	h.tick(18)
	if n := len(h.provider.Requests()); n != 2 {
		t.Fatalf("want periodic refresh at 20s, got %d", n)
	}
	second := h.c.Snapshot().Suggestions
	if first[0].ID == second[0].ID || len(second) != 2 {
		t.Fatalf("displayed set not replaced: %v / %v", first, second)
	}
	h.tick(5)
	if _, err := h.c.SubmitIdea(ctx, "Seasonality of admissions"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.tick(1)
	if n := len(h.provider.Requests()); n != 3 {
		t.Fatalf("want delayed refresh 1s after submit, got %d", n)
	}
	if got := h.provider.Requests()[2].ExistingIdeas; len(got) != 1 || got[0] != "Seasonality of admissions" {
		t.Fatalf("existing ideas not passed: %v", got)
	}
	h.tick(14)
	if n := len(h.provider.Requests()); n != 4 {
		t.Fatalf("want periodic refresh at 40s, got %d", n)
	}
	if snap := h.c.Snapshot(); snap.PanelOpen || snap.State != StateRunning {
		t.Fatalf("always-on must not block: %+v", snap)
	}
	if got := len(h.c.Suggestions()); got != 8 {
		t.Fatalf("want 8 archived suggestions, got %d", got)
	}
}

func TestAlwaysOnDelayedRefreshWaitsForFetch(t *testing.T) {
	h := newTaskHarness(t, models.TimingAlwaysOn, models.ReflectionOptional, withQueuedFetches())
	h.start(t)
	h.tick(2)
	if len(h.queued) != 1 {
		t.Fatalf("want start refresh in flight, got %d", len(h.queued))
	}
	h.tick(1)
	if _, err := h.c.SubmitIdea(context.Background(), "Cost vs length of stay"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.tick(2)
	if len(h.queued) != 1 {
		t.Fatalf("delayed refresh must wait for the running fetch")
	}
	h.runQueued()
	h.tick(1)
	if len(h.queued) != 1 {
		t.Fatalf("want delayed refresh after fetch finished, got %d", len(h.queued))
	}
	h.runQueued()
}

func TestSuggestionResponseIsTerminal(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	ctx := context.Background()
	if err := h.c.RequestHelp(ctx); err != nil {
		t.Fatalf("help: %v", err)
	}
	sugg := h.c.Snapshot().Suggestions
	id := sugg[0].ID
	if err := h.c.RespondSuggestion(ctx, id, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	snap := h.c.Snapshot()
	if snap.PanelOpen || snap.Draft != sugg[0].Content || snap.DraftSuggestionID != id {
		t.Fatalf("accept did not fill draft: %+v", snap)
	}
	if err := h.c.RespondSuggestion(ctx, id, true); !errors.Is(err, ErrSuggestionResolved) {
		t.Fatalf("second accept: want ErrSuggestionResolved, got %v", err)
	}
	if err := h.c.RespondSuggestion(ctx, id, false); !errors.Is(err, ErrSuggestionResolved) {
		t.Fatalf("dismiss after accept: want ErrSuggestionResolved, got %v", err)
	}
	if err := h.c.RespondSuggestion(ctx, "nope", true); !errors.Is(err, ErrUnknownSuggestion) {
		t.Fatalf("unknown id: want ErrUnknownSuggestion, got %v", err)
	}
	if _, err := h.c.SubmitIdea(ctx, snap.Draft); err != nil {
		t.Fatalf("submit: %v", err)
	}
	idea := h.c.Ideas()[0]
	if !idea.AIInfluenced || idea.AISuggestionID != id {
		t.Fatalf("idea not linked to suggestion: %+v", idea)
	}
	archived := h.c.Suggestions()
	if !archived[0].Accepted || archived[0].Dismissed || archived[1].Resolved() {
		t.Fatalf("archive not updated: %+v", archived)
	}
	if h.sink.count(models.ActionSuggestionAccepted) != 1 {
		t.Fatalf("acceptance not recorded once")
	}
}

func TestClearingDraftDropsSuggestionLink(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	ctx := context.Background()
	_ = h.c.RequestHelp(ctx)
	id := h.c.Snapshot().Suggestions[0].ID
	if err := h.c.RespondSuggestion(ctx, id, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_ = h.c.UpdateDraft("")
	_ = h.c.UpdateDraft("My own idea")
	if _, err := h.c.SubmitIdea(ctx, "My own idea"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if h.c.Ideas()[0].AIInfluenced {
		t.Fatalf("cleared draft must not stay linked")
	}
}

func TestJITClosedPanelRejectsResponses(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	ctx := context.Background()
	if err := h.c.RequestHelp(ctx); err != nil {
		t.Fatalf("help: %v", err)
	}
	id := h.c.Snapshot().Suggestions[0].ID
	if err := h.c.CloseSuggestions(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := h.c.RespondSuggestion(ctx, id, true); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("accept after close: want ErrInvalidState, got %v", err)
	}
	if err := h.c.RespondSuggestion(ctx, id, false); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("dismiss after close: want ErrInvalidState, got %v", err)
	}
	snap := h.c.Snapshot()
	if snap.Draft != "" || snap.DraftSuggestionID != "" || snap.Suggestions[0].Resolved() {
		t.Fatalf("hidden suggestion was answered: %+v", snap)
	}
	if h.sink.count(models.ActionSuggestionAccepted)+h.sink.count(models.ActionSuggestionDismissed) != 0 {
		t.Fatalf("response recorded for a closed panel")
	}
}

func TestAlwaysOnRespondsWithoutPanel(t *testing.T) {
	h := newTaskHarness(t, models.TimingAlwaysOn, models.ReflectionOptional)
	h.start(t)
	h.tick(2)
	snap := h.c.Snapshot()
	if len(snap.Suggestions) != 2 || snap.PanelOpen {
		t.Fatalf("always-on suggestions not shown inline: %+v", snap)
	}
	if err := h.c.RespondSuggestion(context.Background(), snap.Suggestions[0].ID, false); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
}

func TestProviderFailureUsesFallback(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.provider.Err = errors.New("upstream 503")
	h.start(t)
	if err := h.c.RequestHelp(context.Background()); err != nil {
		t.Fatalf("help: %v", err)
	}
	snap := h.c.Snapshot()
	if len(snap.Suggestions) != len(FallbackSuggestions) {
		t.Fatalf("want fallback list, got %+v", snap.Suggestions)
	}
	for i, s := range snap.Suggestions {
		if s.Content != FallbackSuggestions[i] || !strings.HasPrefix(s.ID, "fallback_") {
			t.Fatalf("unexpected fallback suggestion: %+v", s)
		}
	}
	gen, _ := h.sink.last(models.ActionSuggestionsGenerated)
	if gen.Details["fallback"] != true {
		t.Fatalf("fallback not flagged: %+v", gen.Details)
	}
}

func TestLateFetchDiscardedAfterTeardown(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional, withQueuedFetches())
	h.start(t)
	if err := h.c.RequestHelp(context.Background()); err != nil {
		t.Fatalf("help: %v", err)
	}
	h.c.Teardown()
	h.runQueued()
	if n := h.sink.count(models.ActionSuggestionsGenerated); n != 0 {
		t.Fatalf("late fetch applied: %d", n)
	}
	if len(h.c.Suggestions()) != 0 || h.c.State() != StateClosed {
		t.Fatalf("late fetch changed state")
	}
	select {
	case <-h.c.Done():
	default:
		t.Fatalf("done channel not closed on teardown")
	}
}

func TestLateFetchDiscardedAfterFinish(t *testing.T) {
	h := newTaskHarness(t, models.TimingAlwaysOn, models.ReflectionOptional, withQueuedFetches())
	h.start(t)
	h.tick(2)
	if err := h.c.Finish(context.Background()); err != nil {
		t.Fatalf("finish: %v", err)
	}
	h.runQueued()
	if len(h.c.Suggestions()) != 0 {
		t.Fatalf("late fetch applied after completion")
	}
}

func TestCancelRationaleRestoresDraft(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionRequired)
	h.start(t)
	ctx := context.Background()
	_ = h.c.RequestHelp(ctx)
	id := h.c.Snapshot().Suggestions[1].ID
	if err := h.c.RespondSuggestion(ctx, id, true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := h.c.SubmitIdea(ctx, "Plot length of stay against cost"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.c.RespondSuggestion(ctx, h.c.Snapshot().Suggestions[0].ID, false); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("respond while awaiting rationale: want ErrInvalidState, got %v", err)
	}
	if err := h.c.CancelRationale(ctx); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	snap := h.c.Snapshot()
	if snap.State != StateRunning || snap.Draft != "Plot length of stay against cost" || snap.DraftSuggestionID != id {
		t.Fatalf("draft not restored: %+v", snap)
	}
	if err := h.c.CancelRationale(ctx); !errors.Is(err, ErrNoPendingIdea) {
		t.Fatalf("second cancel: want ErrNoPendingIdea, got %v", err)
	}
	if h.sink.count(models.ActionRationaleCancel) != 1 {
		t.Fatalf("rationale_cancel not recorded")
	}
}

func TestQuestionnaireSaveFailureAllowsRetry(t *testing.T) {
	h := newTaskHarness(t, models.TimingAlwaysOn, models.ReflectionOptional)
	h.start(t)
	ctx := context.Background()
	if err := h.c.SubmitQuestionnaire(ctx, validQuestionnaire()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("questionnaire while running: want ErrInvalidState, got %v", err)
	}
	h.tick(2)
	_ = h.c.Finish(ctx)
	h.store.failUpdateSession = errors.New("database is locked")
	if err := h.c.SubmitQuestionnaire(ctx, validQuestionnaire()); err == nil {
		t.Fatalf("expected save error")
	}
	if got := h.c.State(); got != StateAwaitingQuestionnaire {
		t.Fatalf("want awaiting_questionnaire after failure, got %s", got)
	}
	h.store.failUpdateSession = nil
	if err := h.c.SubmitQuestionnaire(ctx, validQuestionnaire()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	p, _ := h.store.GetParticipant(ctx, "P001")
	if s := p.Sessions[0]; !s.Completed || len(s.AISuggestions) != 2 {
		t.Fatalf("session not saved with suggestions: %+v", s)
	}
	if h.store.updateCalls != 2 {
		t.Fatalf("want 2 update attempts, got %d", h.store.updateCalls)
	}
}

func TestQuestionnaireValidation(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	ctx := context.Background()
	_ = h.c.Finish(ctx)
	q := validQuestionnaire()
	q.Agency = q.Agency[:5]
	err := h.c.SubmitQuestionnaire(ctx, q)
	se, ok := AsServiceError(err)
	if !ok || se.Code != ErrorInvalid {
		t.Fatalf("want invalid error, got %v", err)
	}
	q = validQuestionnaire()
	q.Dependence = 8
	if err := h.c.SubmitQuestionnaire(ctx, q); err == nil {
		t.Fatalf("out of range dependence accepted")
	}
	if h.store.updateCalls != 0 {
		t.Fatalf("invalid questionnaire reached the store")
	}
}

func TestTransferTaskIsUnassisted(t *testing.T) {
	h := newTaskHarness(t, "", "", transferTask(1))
	h.start(t)
	ctx := context.Background()
	snap := h.c.Snapshot()
	if snap.Kind != "transfer" || snap.TimeLeft != 300 || snap.SessionID != "" || snap.Dataset.ID != FirstTransferDataset {
		t.Fatalf("unexpected transfer snapshot: %+v", snap)
	}
	if err := h.c.RequestHelp(ctx); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("help in transfer: want ErrInvalidState, got %v", err)
	}
	if state, err := h.c.SubmitIdea(ctx, "Compare satisfaction across branches"); err != nil || state != StateRunning {
		t.Fatalf("submit: %s %v", state, err)
	}
	h.tick(299)
	if len(h.provider.Requests()) != 0 {
		t.Fatalf("transfer task fetched suggestions")
	}
	h.tick(1)
	if h.c.State() != StateClosed {
		t.Fatalf("want closed after 300s, got %s", h.c.State())
	}
	if len(h.results) != 1 || h.results[0].Elapsed != TransferTaskDuration || len(h.results[0].Ideas) != 1 {
		t.Fatalf("unexpected result: %+v", h.results)
	}
	p, _ := h.store.GetParticipant(ctx, "P001")
	if len(p.Sessions) != 0 || len(h.sink.all()) != 0 {
		t.Fatalf("transfer task must not open a session or record interactions")
	}
}

func TestRunStopsWhenTaskFinishes(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	done := make(chan struct{})
	go func() {
		h.c.Run(context.Background())
		close(done)
	}()
	if err := h.c.Finish(context.Background()); err != nil {
		t.Fatalf("finish: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionOptional)
	h.start(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.c.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	h.c.Teardown()
}

func TestAbandonClosesSessionIncomplete(t *testing.T) {
	h := newTaskHarness(t, models.TimingJIT, models.ReflectionRequired)
	h.start(t)
	ctx := context.Background()
	if _, err := h.c.SubmitIdea(ctx, "Cost by plan type"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.c.SubmitRationale(ctx, "Plans differ a lot in what they cover"); err != nil {
		t.Fatalf("rationale: %v", err)
	}
	if _, err := h.c.SubmitIdea(ctx, "Denials by specialty"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.tick(30)
	if err := h.c.Abandon(ctx); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if err := h.c.Abandon(ctx); err != nil {
		t.Fatalf("second abandon: %v", err)
	}
	h.tick(600)
	if h.c.State() != StateClosed || len(h.results) != 0 {
		t.Fatalf("abandoned task completed: state=%s results=%d", h.c.State(), len(h.results))
	}
	entry, ok := h.sink.last(models.ActionTaskAbandoned)
	if !ok || h.sink.count(models.ActionTaskAbandoned) != 1 {
		t.Fatalf("want one task_abandoned entry")
	}
	if entry.Details["pendingIdea"] != "Denials by specialty" || entry.Details["timeSpent"] != 30 {
		t.Fatalf("unexpected abandon details: %+v", entry.Details)
	}
	p, _ := h.store.GetParticipant(ctx, "P001")
	s := p.Sessions[0]
	if s.Completed || s.EndTime == nil || !SessionAbandoned(s) || len(s.Ideas) != 1 {
		t.Fatalf("session not closed as abandoned: %+v", s)
	}
}
