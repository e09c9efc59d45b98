package services

import (
	"context"
	"sync"
	"time"

	"github.com/soaringjerry/whenwhy/internal/logger"
	"github.com/soaringjerry/whenwhy/internal/models"
)

type StudyStore interface {
	TaskSessionStore
	CreateParticipant(ctx context.Context, alloc Allocator) (*models.Participant, error)
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	UpdateDemographics(ctx context.Context, id string, d models.Demographics) error
	UpdateProgress(ctx context.Context, id string, phase models.Phase, conditionIndex int) error
	SetTransferTasks(ctx context.Context, participantID string, tasks []models.TransferTask) error
	SetPostStudy(ctx context.Context, participantID string, p models.PostStudy) error
}

type StudyOptions struct {
	Clock  Clock
	Logger *logger.Logger
	// ManualTicks disables the per-task Run loop; callers drive Tick.
	ManualTicks bool
	Spawn       func(func())
	IDGen       func(prefix string, n int) string
}

type participantRun struct {
	mu              sync.Mutex
	flow            Flow
	task            *TaskController
	transferIndex   int
	transfer        []models.TransferTask
	transferUnsaved bool
}

// StudyService hosts one live task per participant and moves participants
// through the study phases.
type StudyService struct {
	store    StudyStore
	provider SuggestionProvider
	recorder InteractionSink
	clock    Clock
	log      *logger.Logger
	manual   bool
	spawn    func(func())
	idGen    func(prefix string, n int) string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*participantRun
}

func NewStudyService(store StudyStore, provider SuggestionProvider, recorder InteractionSink, opts StudyOptions) *StudyService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &StudyService{
		store:    store,
		provider: provider,
		recorder: recorder,
		clock:    opts.Clock,
		log:      opts.Logger,
		manual:   opts.ManualTicks,
		spawn:    opts.Spawn,
		idGen:    opts.IDGen,
		ctx:      ctx,
		cancel:   cancel,
		runs:     map[string]*participantRun{},
	}
	if s.clock == nil {
		s.clock = SystemClock
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.spawn == nil {
		s.spawn = func(f func()) {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				f()
			}()
		}
	}
	return s
}

type StudyState struct {
	ParticipantID  string                    `json:"participantId"`
	Phase          models.Phase              `json:"phase"`
	ConditionIndex int                       `json:"conditionIndex"`
	Condition      *models.AssignedCondition `json:"condition,omitempty"`
	ConditionOrder models.ConditionOrder     `json:"conditionOrder"`
	TransferTask   int                       `json:"transferTask,omitempty"`
	TransferSaved  bool                      `json:"transferSaved"`
	Task           *TaskSnapshot             `json:"task,omitempty"`
}

// Consent creates the participant and assigns the condition order.
func (s *StudyService) Consent(ctx context.Context) (*models.Participant, error) {
	p, err := s.store.CreateParticipant(ctx, Assign)
	if err != nil {
		return nil, err
	}
	r := &participantRun{flow: *NewFlow(p.ConditionOrder)}
	if err := r.flow.AdvancePhase(); err != nil {
		return nil, err
	}
	s.saveProgress(ctx, p.ParticipantID, r)
	p.Phase = r.flow.Phase
	s.mu.Lock()
	s.runs[p.ParticipantID] = r
	s.mu.Unlock()
	s.log.Info("participant consented", "participant_id", p.ParticipantID, "group", p.Ordinal%ConditionCount)
	return p, nil
}

func (s *StudyService) SubmitDemographics(ctx context.Context, pid string, d models.Demographics) error {
	r, err := s.runFor(ctx, pid)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flow.Phase != models.PhasePreSurvey {
		return ErrWrongPhase
	}
	if err := ValidateDemographics(d); err != nil {
		return err
	}
	if err := s.store.UpdateDemographics(ctx, pid, d); err != nil {
		return err
	}
	return s.advanceLocked(ctx, pid, r)
}

func (s *StudyService) CompleteTutorial(ctx context.Context, pid string) error {
	r, err := s.runFor(ctx, pid)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flow.Phase != models.PhaseTutorial {
		return ErrWrongPhase
	}
	return s.advanceLocked(ctx, pid, r)
}

// StartTask opens the task for the participant's current slot: the current
// condition during Experiment, or the next transfer task during Transfer.
func (s *StudyService) StartTask(ctx context.Context, pid string) (TaskSnapshot, error) {
	r, err := s.runFor(ctx, pid)
	if err != nil {
		return TaskSnapshot{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task != nil && r.task.State() != StateClosed {
		return TaskSnapshot{}, ErrTaskActive
	}
	var cfg TaskConfig
	switch r.flow.Phase {
	case models.PhaseExperiment:
		cond, ok := r.flow.CurrentCondition()
		if !ok {
			return TaskSnapshot{}, ErrWrongPhase
		}
		cfg = TaskConfig{ParticipantID: pid, Kind: TaskMain, Condition: cond, TaskNumber: r.flow.ConditionIndex + 1}
	case models.PhaseTransfer:
		if r.transferUnsaved {
			return TaskSnapshot{}, ErrInvalidState
		}
		cfg = s.transferConfig(pid, r.transferIndex)
	default:
		return TaskSnapshot{}, ErrWrongPhase
	}
	c, err := s.startLocked(ctx, r, cfg)
	if err != nil {
		return TaskSnapshot{}, err
	}
	return c.Snapshot(), nil
}

func (s *StudyService) transferConfig(pid string, index int) TaskConfig {
	return TaskConfig{
		ParticipantID: pid,
		Kind:          TaskTransfer,
		Condition:     models.AssignedCondition{TaskID: FirstTransferDataset + index},
		TaskNumber:    index + 1,
	}
}

func (s *StudyService) startLocked(ctx context.Context, r *participantRun, cfg TaskConfig) (*TaskController, error) {
	pid := cfg.ParticipantID
	c := NewTaskController(cfg, TaskDeps{
		Store:      s.store,
		Provider:   s.provider,
		Recorder:   s.recorder,
		Clock:      s.clock,
		Logger:     s.log,
		Spawn:      s.spawn,
		IDGen:      s.idGen,
		OnComplete: func(res TaskResult) { s.taskCompleted(pid, res) },
	})
	r.task = c
	if err := c.Start(ctx); err != nil {
		r.task = nil
		return nil, err
	}
	if !s.manual {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.Run(s.ctx)
		}()
	}
	return c, nil
}

// Task returns the participant's live controller.
func (s *StudyService) Task(ctx context.Context, pid string) (*TaskController, error) {
	r, err := s.runFor(ctx, pid)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task == nil {
		return nil, ErrTaskNotActive
	}
	return r.task, nil
}

// LeaveTask abandons the live task. The participant restarts the slot with
// a fresh session; the abandoned one keeps an end time and stays incomplete.
func (s *StudyService) LeaveTask(ctx context.Context, pid string) error {
	r, err := s.runFor(ctx, pid)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.task == nil {
		return ErrTaskNotActive
	}
	if err := r.task.Abandon(ctx); err != nil {
		s.log.Warn("mark abandoned session", "participant_id", pid, "err", err)
	}
	r.task = nil
	return nil
}

// SubmitQuestionnaire closes the current main task and moves to the next
// condition.
func (s *StudyService) SubmitQuestionnaire(ctx context.Context, pid string, q models.Questionnaire) error {
	r, err := s.runFor(ctx, pid)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flow.Phase != models.PhaseExperiment {
		return ErrWrongPhase
	}
	if r.task == nil {
		return ErrTaskNotActive
	}
	if err := r.task.SubmitQuestionnaire(ctx, q); err != nil {
		return err
	}
	r.task = nil
	if err := r.flow.AdvanceCondition(); err != nil {
		return err
	}
	s.saveProgress(ctx, pid, r)
	return nil
}

func (s *StudyService) taskCompleted(pid string, res TaskResult) {
	if res.Config.Kind != TaskTransfer {
		return
	}
	s.mu.Lock()
	r := s.runs[pid]
	s.mu.Unlock()
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ideas := make([]string, 0, len(res.Ideas))
	for _, idea := range res.Ideas {
		ideas = append(ideas, idea.Content)
	}
	r.transfer = append(r.transfer, models.TransferTask{
		TaskNumber:     res.Config.TaskNumber,
		Ideas:          ideas,
		CompletionTime: int(res.Elapsed.Round(time.Second) / time.Second),
		Timestamp:      res.EndedAt,
	})
	r.task = nil
	r.transferIndex++
	if r.transferIndex < TransferTaskCount {
		// Partial results are saved so a restart resumes at the next task.
		if err := s.store.SetTransferTasks(s.ctx, pid, r.transfer); err != nil {
			s.log.Warn("save partial transfer results", "participant_id", pid, "err", err)
		}
		if _, err := s.startLocked(s.ctx, r, s.transferConfig(pid, r.transferIndex)); err != nil {
			s.log.Error("start transfer task", "participant_id", pid, "task", r.transferIndex+1, "err", err)
		}
		return
	}
	if err := s.saveTransferLocked(s.ctx, pid, r); err != nil {
		s.log.Error("save transfer results", "participant_id", pid, "err", err)
	}
}

func (s *StudyService) saveTransferLocked(ctx context.Context, pid string, r *participantRun) error {
	if err := s.store.SetTransferTasks(ctx, pid, r.transfer); err != nil {
		r.transferUnsaved = true
		return err
	}
	r.transferUnsaved = false
	return s.advanceLocked(ctx, pid, r)
}

// RetryTransferSave writes transfer results that failed to save earlier.
func (s *StudyService) RetryTransferSave(ctx context.Context, pid string) error {
	r, err := s.runFor(ctx, pid)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flow.Phase != models.PhaseTransfer || !r.transferUnsaved {
		return ErrInvalidState
	}
	return s.saveTransferLocked(ctx, pid, r)
}

func (s *StudyService) SubmitPostStudy(ctx context.Context, pid string, p models.PostStudy) error {
	r, err := s.runFor(ctx, pid)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flow.Phase != models.PhasePostSurvey {
		return ErrWrongPhase
	}
	if err := ValidatePostStudy(p); err != nil {
		return err
	}
	if err := s.store.SetPostStudy(ctx, pid, p); err != nil {
		return err
	}
	return s.advanceLocked(ctx, pid, r)
}

func (s *StudyService) State(ctx context.Context, pid string) (StudyState, error) {
	r, err := s.runFor(ctx, pid)
	if err != nil {
		return StudyState{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := StudyState{
		ParticipantID:  pid,
		Phase:          r.flow.Phase,
		ConditionIndex: r.flow.ConditionIndex,
		ConditionOrder: r.flow.Order,
		TransferSaved:  !r.transferUnsaved,
	}
	if cond, ok := r.flow.CurrentCondition(); ok {
		st.Condition = &cond
	}
	if r.flow.Phase == models.PhaseTransfer {
		st.TransferTask = r.transferIndex + 1
	}
	if r.task != nil {
		snap := r.task.Snapshot()
		st.Task = &snap
	}
	return st, nil
}

// Shutdown tears down every live task and waits for their goroutines.
func (s *StudyService) Shutdown() {
	s.mu.Lock()
	for _, r := range s.runs {
		r.mu.Lock()
		if r.task != nil {
			r.task.Teardown()
		}
		r.mu.Unlock()
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *StudyService) advanceLocked(ctx context.Context, pid string, r *participantRun) error {
	if err := r.flow.AdvancePhase(); err != nil {
		return err
	}
	s.saveProgress(ctx, pid, r)
	return nil
}

// saveProgress records the phase so a restarted server resumes there. It
// is best-effort; the authoritative records are written by each step.
func (s *StudyService) saveProgress(ctx context.Context, pid string, r *participantRun) {
	if err := s.store.UpdateProgress(ctx, pid, r.flow.Phase, r.flow.ConditionIndex); err != nil {
		s.log.Warn("save progress", "participant_id", pid, "phase", string(r.flow.Phase), "err", err)
	}
}

// runFor returns the in-memory run, rebuilding it from the store after a
// restart.
func (s *StudyService) runFor(ctx context.Context, pid string) (*participantRun, error) {
	s.mu.Lock()
	r, ok := s.runs[pid]
	s.mu.Unlock()
	if ok {
		return r, nil
	}
	p, err := s.store.GetParticipant(ctx, pid)
	if err != nil {
		return nil, err
	}
	phase := p.Phase
	if phase == "" || phase == models.PhaseConsent {
		// A stored participant has already consented.
		phase = models.PhasePreSurvey
	}
	r = &participantRun{flow: Flow{Phase: phase, ConditionIndex: p.ConditionIndex, Order: p.ConditionOrder}}
	if phase == models.PhaseTransfer {
		r.transfer = append([]models.TransferTask(nil), p.TransferTasks...)
		r.transferIndex = len(r.transfer)
		if r.transferIndex >= TransferTaskCount {
			// Results were saved but the phase change was not.
			r.flow.Phase = models.PhasePostSurvey
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.runs[pid]; ok {
		return existing, nil
	}
	s.runs[pid] = r
	return r, nil
}
