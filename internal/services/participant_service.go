package services

import (
	"context"
	"strings"
	"time"

	"github.com/soaringjerry/whenwhy/internal/models"
)

type ParticipantStore interface {
	CreateParticipant(ctx context.Context, alloc Allocator) (*models.Participant, error)
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	UpdateDemographics(ctx context.Context, id string, d models.Demographics) error
	CreateSession(ctx context.Context, participantID string, s *models.Session) error
	UpdateSession(ctx context.Context, participantID, sessionID string, u models.SessionUpdate) error
	AppendInteraction(ctx context.Context, participantID, sessionID string, in models.Interaction) error
	SetTransferTasks(ctx context.Context, participantID string, tasks []models.TransferTask) error
	SetPostStudy(ctx context.Context, participantID string, p models.PostStudy) error
}

// ParticipantService exposes the record-level operations a client drives
// directly, without a server-hosted task.
type ParticipantService struct {
	store ParticipantStore
	now   func() time.Time
	idGen func(prefix string, n int) string
}

func NewParticipantService(store ParticipantStore) *ParticipantService {
	return &ParticipantService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: func(prefix string, n int) string { return prefix + shortID(n) },
	}
}

func (s *ParticipantService) Create(ctx context.Context) (*models.Participant, error) {
	return s.store.CreateParticipant(ctx, Assign)
}

func (s *ParticipantService) Get(ctx context.Context, pid string) (*models.Participant, error) {
	if strings.TrimSpace(pid) == "" {
		return nil, NewInvalidError("participant id required")
	}
	return s.store.GetParticipant(ctx, pid)
}

func (s *ParticipantService) UpdateDemographics(ctx context.Context, pid string, d models.Demographics) error {
	if err := ValidateDemographics(d); err != nil {
		return err
	}
	return s.store.UpdateDemographics(ctx, pid, d)
}

// OpenSession starts a session record and returns its id.
func (s *ParticipantService) OpenSession(ctx context.Context, pid string, cond models.Condition, taskID int) (string, error) {
	if _, err := DatasetByID(taskID); err != nil {
		return "", NewInvalidError("dataset.invalid_task")
	}
	if cond.Timing != models.TimingJIT && cond.Timing != models.TimingAlwaysOn {
		return "", NewInvalidError("session.invalid_condition")
	}
	if cond.Reflection != models.ReflectionRequired && cond.Reflection != models.ReflectionOptional {
		return "", NewInvalidError("session.invalid_condition")
	}
	sess := &models.Session{SessionID: s.idGen("", 32), Condition: cond, TaskID: taskID, StartTime: s.now()}
	if err := s.store.CreateSession(ctx, pid, sess); err != nil {
		return "", err
	}
	return sess.SessionID, nil
}

// UpdateSession merges a client-written update. Ideas may only grow,
// answered suggestions keep their answer, and completing a session stamps
// its end time when the client sent none.
func (s *ParticipantService) UpdateSession(ctx context.Context, pid, sid string, u models.SessionUpdate) error {
	if u.Questionnaire != nil {
		if err := ValidateQuestionnaire(*u.Questionnaire); err != nil {
			return err
		}
	}
	p, err := s.store.GetParticipant(ctx, pid)
	if err != nil {
		return err
	}
	var stored *models.Session
	for i := range p.Sessions {
		if p.Sessions[i].SessionID == sid {
			stored = &p.Sessions[i]
			break
		}
	}
	if stored == nil {
		return ErrSessionNotFound
	}
	if err := checkSessionUpdate(stored, u); err != nil {
		return err
	}
	if u.Completed != nil && *u.Completed && u.EndTime == nil && stored.EndTime == nil {
		end := s.now()
		u.EndTime = &end
	}
	return s.store.UpdateSession(ctx, pid, sid, u)
}

func checkSessionUpdate(stored *models.Session, u models.SessionUpdate) error {
	if stored.Completed && u.Completed != nil && !*u.Completed {
		return NewInvalidError("session.already_completed")
	}
	if u.Ideas != nil {
		if len(u.Ideas) < len(stored.Ideas) {
			return NewInvalidError("session.ideas_append_only")
		}
		for i, prev := range stored.Ideas {
			if u.Ideas[i].ID != prev.ID || u.Ideas[i].Content != prev.Content {
				return NewInvalidError("session.ideas_append_only")
			}
		}
		for _, idea := range u.Ideas[len(stored.Ideas):] {
			if strings.TrimSpace(idea.Content) == "" {
				return ErrEmptyIdea
			}
		}
	}
	if u.AISuggestions != nil {
		answered := make(map[string]models.Suggestion, len(stored.AISuggestions))
		for _, sg := range stored.AISuggestions {
			if sg.Resolved() {
				answered[sg.ID] = sg
			}
		}
		for _, sg := range u.AISuggestions {
			if sg.Accepted && sg.Dismissed {
				return NewInvalidError("session.suggestion_flags")
			}
			if prev, ok := answered[sg.ID]; ok && (prev.Accepted != sg.Accepted || prev.Dismissed != sg.Dismissed) {
				return NewInvalidError("session.suggestion_reverted")
			}
		}
	}
	return nil
}

func (s *ParticipantService) AppendInteraction(ctx context.Context, pid, sid, action string, details map[string]any) error {
	if strings.TrimSpace(action) == "" {
		return NewInvalidError("interaction.action_required")
	}
	if details == nil {
		details = map[string]any{}
	}
	return s.store.AppendInteraction(ctx, pid, sid, models.Interaction{Action: action, Timestamp: s.now(), Details: details})
}

func (s *ParticipantService) SetTransferTasks(ctx context.Context, pid string, tasks []models.TransferTask) error {
	if len(tasks) > TransferTaskCount {
		return NewInvalidError("transfer.too_many_tasks")
	}
	return s.store.SetTransferTasks(ctx, pid, tasks)
}

func (s *ParticipantService) Complete(ctx context.Context, pid string, p models.PostStudy) error {
	if err := ValidatePostStudy(p); err != nil {
		return err
	}
	return s.store.SetPostStudy(ctx, pid, p)
}
