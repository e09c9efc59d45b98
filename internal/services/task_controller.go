package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/soaringjerry/whenwhy/internal/logger"
	"github.com/soaringjerry/whenwhy/internal/models"
)

const (
	MainTaskDuration     = 600 * time.Second
	TransferTaskDuration = 300 * time.Second
	TickInterval         = time.Second
	MinRationaleLength   = 20
)

// Clock is the controller's only source of time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = systemClock{}

type TaskKind int

const (
	TaskMain TaskKind = iota
	TaskTransfer
)

type TaskState string

const (
	StateIdle                  TaskState = "idle"
	StateInitializing          TaskState = "initializing"
	StateRunning               TaskState = "running"
	StateAwaitingRationale     TaskState = "awaiting_rationale"
	StateShowingSuggestions    TaskState = "showing_suggestions"
	StateCompleting            TaskState = "completing"
	StateAwaitingQuestionnaire TaskState = "awaiting_questionnaire"
	StateClosed                TaskState = "closed"
)

// TaskSessionStore is the persistence a main task needs.
type TaskSessionStore interface {
	CreateSession(ctx context.Context, participantID string, s *models.Session) error
	UpdateSession(ctx context.Context, participantID, sessionID string, u models.SessionUpdate) error
}

type TaskConfig struct {
	ParticipantID string
	Kind          TaskKind
	Condition     models.AssignedCondition
	// TaskNumber is the 1-based position among tasks of the same kind.
	TaskNumber int
}

// TaskResult is reported once when the task completes.
type TaskResult struct {
	Config    TaskConfig
	SessionID string
	Ideas     []models.Idea
	Elapsed   time.Duration
	EndedAt   time.Time
	Reason    string
}

type TaskDeps struct {
	Store    TaskSessionStore
	Provider SuggestionProvider
	Recorder InteractionSink
	Clock    Clock
	Logger   *logger.Logger
	// Spawn runs a suggestion fetch. Defaults to a new goroutine.
	Spawn func(func())
	// OnComplete is called outside the controller lock after completion.
	OnComplete func(TaskResult)
	IDGen      func(prefix string, n int) string
}

type pendingIdea struct {
	content      string
	suggestionID string
}

// TaskController drives one timed task. All methods are safe for concurrent
// use; Tick is the only place time-driven transitions happen.
type TaskController struct {
	cfg      TaskConfig
	policy   AssistancePolicy
	duration time.Duration

	store      TaskSessionStore
	provider   SuggestionProvider
	recorder   InteractionSink
	clock      Clock
	log        *logger.Logger
	spawn      func(func())
	onComplete func(TaskResult)
	idGen      func(prefix string, n int) string

	mu           sync.Mutex
	state        TaskState
	dataset      models.Dataset
	sessionID    string
	startedAt    time.Time
	deadline     time.Time
	completedAt  time.Time
	lastActivity time.Time
	stopped      chan struct{}
	stopOnce     sync.Once
	saving       bool

	draft             string
	draftSuggestionID string
	pending           *pendingIdea
	ideas             []models.Idea
	rationales        []models.Rationale

	displayed []models.Suggestion
	archive   []models.Suggestion
	archiveAt map[string]int
	panelOpen bool

	loading     bool
	fetchGen    int
	fetchCtx    context.Context
	cancelFetch context.CancelFunc

	nextPoll       time.Time
	nextRefresh    time.Time
	delayedRefresh time.Time
}

func NewTaskController(cfg TaskConfig, deps TaskDeps) *TaskController {
	c := &TaskController{
		cfg:        cfg,
		policy:     PolicyFor(cfg.Kind, cfg.Condition.Timing),
		duration:   MainTaskDuration,
		store:      deps.Store,
		provider:   deps.Provider,
		recorder:   deps.Recorder,
		clock:      deps.Clock,
		log:        deps.Logger,
		spawn:      deps.Spawn,
		onComplete: deps.OnComplete,
		idGen:      deps.IDGen,
		state:      StateIdle,
		stopped:    make(chan struct{}),
		archiveAt:  map[string]int{},
	}
	if cfg.Kind == TaskTransfer {
		c.duration = TransferTaskDuration
	}
	if c.clock == nil {
		c.clock = SystemClock
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	if c.spawn == nil {
		c.spawn = func(f func()) { go f() }
	}
	if c.idGen == nil {
		c.idGen = func(prefix string, n int) string { return prefix + shortID(n) }
	}
	c.fetchCtx, c.cancelFetch = context.WithCancel(context.Background())
	c.log = c.log.With("participant_id", cfg.ParticipantID, "task_id", cfg.Condition.TaskID)
	return c
}

func (c *TaskController) Config() TaskConfig { return c.cfg }

func (c *TaskController) Policy() AssistancePolicy { return c.policy }

// Start loads the dataset, opens the session and starts the countdown.
// Failures leave the controller Idle so the caller may retry.
func (c *TaskController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.state = StateInitializing
	c.mu.Unlock()

	ds, err := DatasetByID(c.cfg.Condition.TaskID)
	if err != nil {
		c.resetToIdle()
		return fmt.Errorf("load dataset %d: %w", c.cfg.Condition.TaskID, err)
	}
	now := c.clock.Now()
	sessionID := ""
	if c.cfg.Kind == TaskMain {
		sessionID = c.idGen("", 32)
		sess := &models.Session{
			SessionID: sessionID,
			Condition: c.cfg.Condition.Condition,
			TaskID:    c.cfg.Condition.TaskID,
			StartTime: now,
		}
		if c.store == nil {
			c.resetToIdle()
			return NewInvalidError("session store not configured")
		}
		if err := c.store.CreateSession(ctx, c.cfg.ParticipantID, sess); err != nil {
			c.resetToIdle()
			return fmt.Errorf("create session: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInitializing {
		// Torn down while the session was being created.
		return ErrTaskNotActive
	}
	c.dataset = ds
	c.sessionID = sessionID
	c.startedAt = now
	c.deadline = now.Add(c.duration)
	c.lastActivity = now
	c.state = StateRunning
	c.policy.start(c, now)
	c.recordLocked(now, models.ActionTaskStart, map[string]any{"condition": c.cfg.Condition.Condition, "taskId": c.cfg.Condition.TaskID})
	c.log.Info("task started", "session", sessionID, "timing", string(c.cfg.Condition.Timing), "reflection", string(c.cfg.Condition.Reflection))
	return nil
}

func (c *TaskController) resetToIdle() {
	c.mu.Lock()
	if c.state == StateInitializing {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// Tick evaluates every deadline against the clock. Expiry wins over any
// other pending work.
func (c *TaskController) Tick(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	if !now.Before(c.deadline) {
		result, ok := c.completeLocked(now, "timeout")
		c.mu.Unlock()
		if ok {
			c.finished(result)
		}
		return
	}
	launch := c.policy.tick(c, now)
	c.mu.Unlock()
	if launch != nil {
		launch()
	}
}

// Run ticks once per second until the task leaves Running or ctx ends.
func (c *TaskController) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopped:
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Done is closed once the task stops accepting time-driven work.
func (c *TaskController) Done() <-chan struct{} { return c.stopped }

func (c *TaskController) stopLocked() {
	c.stopOnce.Do(func() { close(c.stopped) })
	c.fetchGen++
	c.loading = false
	c.cancelFetch()
}

// UpdateDraft mirrors the participant's input box and counts as activity.
func (c *TaskController) UpdateDraft(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return ErrTaskNotActive
	}
	now := c.clock.Now()
	c.draft = text
	if strings.TrimSpace(text) == "" {
		c.draftSuggestionID = ""
	}
	c.lastActivity = now
	return nil
}

// SubmitIdea accepts an idea, or stages it behind the rationale prompt when
// reflection is required.
func (c *TaskController) SubmitIdea(ctx context.Context, text string) (TaskState, error) {
	c.mu.Lock()
	if err := c.requireInteractiveLocked(); err != nil {
		c.mu.Unlock()
		return "", err
	}
	content := strings.TrimSpace(text)
	if content == "" {
		c.mu.Unlock()
		return "", ErrEmptyIdea
	}
	now := c.clock.Now()
	c.lastActivity = now
	suggestionID := c.draftSuggestionID
	if c.cfg.Kind == TaskMain && c.cfg.Condition.Reflection == models.ReflectionRequired {
		c.pending = &pendingIdea{content: content, suggestionID: suggestionID}
		c.draft = ""
		c.draftSuggestionID = ""
		state := c.stateLocked()
		c.mu.Unlock()
		return state, nil
	}
	c.acceptIdeaLocked(now, content, suggestionID, "")
	state := c.stateLocked()
	c.mu.Unlock()
	return state, nil
}

// SubmitRationale releases the pending idea once the rationale is at least
// MinRationaleLength characters long.
func (c *TaskController) SubmitRationale(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return ErrTaskNotActive
	}
	if c.pending == nil {
		return ErrNoPendingIdea
	}
	if utf8.RuneCountInString(text) < MinRationaleLength {
		return ErrRationaleTooShort
	}
	now := c.clock.Now()
	p := c.pending
	c.acceptIdeaLocked(now, p.content, p.suggestionID, text)
	return nil
}

// CancelRationale drops the pending idea back into the draft.
func (c *TaskController) CancelRationale(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return ErrTaskNotActive
	}
	if c.pending == nil {
		return ErrNoPendingIdea
	}
	now := c.clock.Now()
	p := c.pending
	c.pending = nil
	c.draft = p.content
	c.draftSuggestionID = p.suggestionID
	c.recordLocked(now, models.ActionRationaleCancel, map[string]any{"idea": p.content})
	return nil
}

func (c *TaskController) acceptIdeaLocked(now time.Time, content, suggestionID, rationale string) {
	idea := models.Idea{
		ID:             c.idGen("idea_", 10),
		Content:        content,
		Timestamp:      now,
		AIInfluenced:   suggestionID != "",
		AISuggestionID: suggestionID,
	}
	c.ideas = append(c.ideas, idea)
	if rationale != "" {
		c.rationales = append(c.rationales, models.Rationale{IdeaID: idea.ID, Text: rationale, Timestamp: now, Type: models.RationaleJustification})
	}
	c.pending = nil
	c.draft = ""
	c.draftSuggestionID = ""
	c.lastActivity = now
	c.recordLocked(now, models.ActionIdeaSubmit, map[string]any{
		"idea":         idea,
		"rationale":    rationale,
		"hasRationale": rationale != "",
	})
	c.policy.ideaAccepted(c, now)
}

// RequestHelp fetches suggestions on demand under the just-in-time policy.
// A request while a fetch is already running is a no-op.
func (c *TaskController) RequestHelp(ctx context.Context) error {
	c.mu.Lock()
	if !c.policy.OnDemand() {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.state != StateRunning {
		c.mu.Unlock()
		return ErrTaskNotActive
	}
	if c.pending != nil || c.panelOpen {
		c.mu.Unlock()
		return ErrInvalidState
	}
	if c.loading {
		c.mu.Unlock()
		return nil
	}
	now := c.clock.Now()
	c.recordLocked(now, models.ActionHelpRequest, map[string]any{"isAutoTrigger": false})
	launch := c.beginFetchLocked(false)
	c.mu.Unlock()
	launch()
	return nil
}

// CloseSuggestions hides the modal panel without answering.
func (c *TaskController) CloseSuggestions(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return ErrTaskNotActive
	}
	if !c.policy.Modal() || !c.panelOpen {
		return ErrInvalidState
	}
	c.panelOpen = false
	c.recordLocked(c.clock.Now(), models.ActionSuggestionsClosed, map[string]any{"timing": c.policy.Timing()})
	return nil
}

// RespondSuggestion accepts or dismisses a displayed suggestion. The first
// response wins; later ones return ErrSuggestionResolved.
func (c *TaskController) RespondSuggestion(ctx context.Context, id string, accept bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRunning {
		return ErrTaskNotActive
	}
	if c.pending != nil {
		return ErrInvalidState
	}
	idx := -1
	for i := range c.displayed {
		if c.displayed[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		if ai, ok := c.archiveAt[id]; ok && c.archive[ai].Resolved() {
			return ErrSuggestionResolved
		}
		return ErrUnknownSuggestion
	}
	if c.displayed[idx].Resolved() {
		return ErrSuggestionResolved
	}
	// A closed modal hides its suggestions until the next fetch.
	if c.policy.Modal() && !c.panelOpen {
		return ErrInvalidState
	}
	now := c.clock.Now()
	action := models.ActionSuggestionDismissed
	if accept {
		c.displayed[idx].Accepted = true
		action = models.ActionSuggestionAccepted
		c.draft = c.displayed[idx].Content
		c.draftSuggestionID = id
		c.lastActivity = now
	} else {
		c.displayed[idx].Dismissed = true
	}
	if ai, ok := c.archiveAt[id]; ok {
		c.archive[ai] = c.displayed[idx]
	}
	if c.policy.Modal() {
		c.panelOpen = false
	}
	c.recordLocked(now, action, map[string]any{"suggestion": c.displayed[idx], "timing": c.policy.Timing()})
	return nil
}

// beginFetchLocked marks a fetch in flight and returns the launcher, which
// must be called after the lock is released.
func (c *TaskController) beginFetchLocked(auto bool) func() {
	c.loading = true
	c.fetchGen++
	gen := c.fetchGen
	req := SuggestionRequest{Dataset: c.dataset, ExistingIdeas: c.ideaContentsLocked()}
	ctx := c.fetchCtx
	return func() {
		c.spawn(func() {
			list, fallback, err := GenerateOrFallback(ctx, c.provider, req)
			if err != nil && ctx.Err() == nil {
				c.log.Warn("suggestion provider failed, using fallback", "err", err)
			}
			c.applyFetch(gen, list, fallback, auto)
		})
	}
}

func (c *TaskController) applyFetch(gen int, list []string, fallback, auto bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.fetchGen || c.state != StateRunning {
		return
	}
	c.loading = false
	now := c.clock.Now()
	prefix := fmt.Sprintf("g%d_", gen)
	if fallback {
		prefix = "fallback_" + prefix
	}
	batch := make([]models.Suggestion, 0, len(list))
	for i, content := range list {
		s := models.Suggestion{ID: fmt.Sprintf("%s%d_%d", prefix, now.UnixMilli(), i), Content: content, Timestamp: now}
		batch = append(batch, s)
		c.archiveAt[s.ID] = len(c.archive)
		c.archive = append(c.archive, s)
	}
	c.displayed = batch
	if c.policy.Modal() {
		c.panelOpen = true
	}
	c.recordLocked(now, models.ActionSuggestionsGenerated, map[string]any{
		"suggestions":   batch,
		"isAutoTrigger": auto,
		"timing":        c.policy.Timing(),
		"fallback":      fallback,
	})
}

// Finish completes the task early. Calling it again is a no-op.
func (c *TaskController) Finish(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateInitializing:
		c.mu.Unlock()
		return ErrTaskNotActive
	case StateRunning:
	default:
		c.mu.Unlock()
		return nil
	}
	result, ok := c.completeLocked(c.clock.Now(), "finished")
	c.mu.Unlock()
	if ok {
		c.finished(result)
	}
	return nil
}

func (c *TaskController) completeLocked(now time.Time, reason string) (TaskResult, bool) {
	if c.state != StateRunning {
		return TaskResult{}, false
	}
	c.state = StateCompleting
	c.stopLocked()
	c.panelOpen = false
	c.completedAt = now
	elapsed := now.Sub(c.startedAt)
	if elapsed > c.duration {
		elapsed = c.duration
	}
	details := map[string]any{
		"totalIdeas": len(c.ideas),
		"timeSpent":  int(elapsed.Round(time.Second) / time.Second),
		"condition":  c.cfg.Condition.Condition,
		"reason":     reason,
	}
	if c.pending != nil {
		details["pendingIdea"] = c.pending.content
	}
	c.recordLocked(now, models.ActionTaskComplete, details)
	if c.cfg.Kind == TaskTransfer {
		c.state = StateClosed
	} else {
		c.state = StateAwaitingQuestionnaire
	}
	c.log.Info("task completed", "reason", reason, "ideas", len(c.ideas))
	return TaskResult{
		Config:    c.cfg,
		SessionID: c.sessionID,
		Ideas:     append([]models.Idea(nil), c.ideas...),
		Elapsed:   elapsed,
		EndedAt:   now,
		Reason:    reason,
	}, true
}

func (c *TaskController) finished(result TaskResult) {
	if c.onComplete != nil {
		c.onComplete(result)
	}
}

// SubmitQuestionnaire validates and persists the post-task ratings together
// with the ideas and every suggestion generated. A failed write leaves the
// task awaiting the questionnaire so the participant can retry.
func (c *TaskController) SubmitQuestionnaire(ctx context.Context, q models.Questionnaire) error {
	if err := ValidateQuestionnaire(q); err != nil {
		return err
	}
	c.mu.Lock()
	if c.state != StateAwaitingQuestionnaire || c.saving {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.saving = true
	end := c.clock.Now()
	completed := true
	update := models.SessionUpdate{
		Questionnaire: &q,
		Ideas:         append([]models.Idea{}, c.ideas...),
		AISuggestions: append([]models.Suggestion{}, c.archive...),
		Rationales:    append([]models.Rationale{}, c.rationales...),
		EndTime:       &end,
		Completed:     &completed,
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	err := c.store.UpdateSession(ctx, c.cfg.ParticipantID, sessionID, update)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saving = false
	if err != nil {
		c.log.Error("save questionnaire", "session", sessionID, "err", err)
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	if c.state == StateAwaitingQuestionnaire {
		c.state = StateClosed
	}
	return nil
}

// Teardown cancels timers and in-flight fetches. Late results are dropped.
func (c *TaskController) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.stopLocked()
	c.state = StateClosed
	c.panelOpen = false
}

// Abandon closes a task the participant walked away from. The session keeps
// what was composed so far and gets an end time but stays incomplete, which
// marks it as superseded by the next attempt at the same slot.
func (c *TaskController) Abandon(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	opened := c.sessionID != "" && c.state != StateIdle && c.state != StateInitializing
	now := c.clock.Now()
	if opened {
		details := map[string]any{
			"state":      string(c.stateLocked()),
			"totalIdeas": len(c.ideas),
			"timeSpent":  int(now.Sub(c.startedAt).Round(time.Second) / time.Second),
		}
		if c.pending != nil {
			details["pendingIdea"] = c.pending.content
		}
		c.recordLocked(now, models.ActionTaskAbandoned, details)
	}
	c.stopLocked()
	c.state = StateClosed
	c.panelOpen = false
	update := models.SessionUpdate{
		Ideas:         append([]models.Idea{}, c.ideas...),
		AISuggestions: append([]models.Suggestion{}, c.archive...),
		Rationales:    append([]models.Rationale{}, c.rationales...),
		EndTime:       &now,
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	if !opened || c.store == nil {
		return nil
	}
	c.log.Info("task abandoned", "session", sessionID)
	if err := c.store.UpdateSession(ctx, c.cfg.ParticipantID, sessionID, update); err != nil {
		return fmt.Errorf("close abandoned session %s: %w", sessionID, err)
	}
	return nil
}

func (c *TaskController) requireInteractiveLocked() error {
	switch c.stateLocked() {
	case StateRunning:
		return nil
	case StateAwaitingRationale, StateShowingSuggestions:
		return ErrInvalidState
	default:
		return ErrTaskNotActive
	}
}

func (c *TaskController) stateLocked() TaskState {
	if c.state != StateRunning {
		return c.state
	}
	if c.pending != nil {
		return StateAwaitingRationale
	}
	if c.panelOpen {
		return StateShowingSuggestions
	}
	return StateRunning
}

func (c *TaskController) State() TaskState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *TaskController) ideaContentsLocked() []string {
	out := make([]string, 0, len(c.ideas))
	for _, idea := range c.ideas {
		out = append(out, idea.Content)
	}
	return out
}

// recordLocked hands an entry to the sink. Sinks never block.
func (c *TaskController) recordLocked(now time.Time, action string, details map[string]any) {
	if c.recorder == nil || c.sessionID == "" {
		return
	}
	c.recorder.Record(c.cfg.ParticipantID, c.sessionID, models.Interaction{Action: action, Timestamp: now, Details: details})
}

// TaskSnapshot is the view a client polls.
type TaskSnapshot struct {
	State             TaskState           `json:"state"`
	Kind              string              `json:"kind"`
	SessionID         string              `json:"sessionId,omitempty"`
	TaskNumber        int                 `json:"taskNumber"`
	Condition         models.Condition    `json:"condition"`
	TaskID            int                 `json:"taskId"`
	Dataset           models.Dataset      `json:"dataset"`
	TimeLeft          int                 `json:"timeLeft"`
	Ideas             []models.Idea       `json:"ideas"`
	Suggestions       []models.Suggestion `json:"suggestions"`
	PanelOpen         bool                `json:"panelOpen"`
	Loading           bool                `json:"loading"`
	PendingIdea       string              `json:"pendingIdea,omitempty"`
	Draft             string              `json:"draft"`
	DraftSuggestionID string              `json:"draftSuggestionId,omitempty"`
}

func (c *TaskController) Snapshot() TaskSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	kind := "main"
	if c.cfg.Kind == TaskTransfer {
		kind = "transfer"
	}
	snap := TaskSnapshot{
		State:             c.stateLocked(),
		Kind:              kind,
		SessionID:         c.sessionID,
		TaskNumber:        c.cfg.TaskNumber,
		Condition:         c.cfg.Condition.Condition,
		TaskID:            c.cfg.Condition.TaskID,
		Dataset:           c.dataset,
		Ideas:             append([]models.Idea{}, c.ideas...),
		Suggestions:       append([]models.Suggestion{}, c.displayed...),
		PanelOpen:         c.panelOpen,
		Loading:           c.loading,
		Draft:             c.draft,
		DraftSuggestionID: c.draftSuggestionID,
	}
	if c.pending != nil {
		snap.PendingIdea = c.pending.content
	}
	switch c.state {
	case StateRunning:
		left := c.deadline.Sub(c.clock.Now())
		if left < 0 {
			left = 0
		}
		snap.TimeLeft = int((left + time.Second - 1) / time.Second)
	case StateIdle, StateInitializing:
		snap.TimeLeft = int(c.duration / time.Second)
	}
	return snap
}

// Suggestions returns every suggestion generated so far, resolved or not.
func (c *TaskController) Suggestions() []models.Suggestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Suggestion(nil), c.archive...)
}

func (c *TaskController) Ideas() []models.Idea {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Idea(nil), c.ideas...)
}
