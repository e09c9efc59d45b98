package services

import (
	"context"
	"math"
	"time"

	"github.com/soaringjerry/whenwhy/internal/models"
)

type ExportStore interface {
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	ListParticipants(ctx context.Context) ([]*models.Participant, error)
	ImportParticipant(ctx context.Context, p *models.Participant) error
}

type ExportService struct {
	store ExportStore
	now   func() time.Time
}

func NewExportService(store ExportStore) *ExportService {
	return &ExportService{store: store, now: func() time.Time { return time.Now().UTC() }}
}

type SessionExport struct {
	SessionID     string                `json:"sessionId"`
	Condition     models.Condition      `json:"condition"`
	TaskID        int                   `json:"taskId"`
	StartTime     time.Time             `json:"startTime"`
	EndTime       *time.Time            `json:"endTime"`
	Duration      *int                  `json:"duration"`
	IdeasCount    int                   `json:"ideasCount"`
	Ideas         []models.Idea         `json:"ideas"`
	AISuggestions []models.Suggestion   `json:"aiSuggestions"`
	Rationales    []models.Rationale    `json:"rationales"`
	Interactions  []models.Interaction  `json:"interactions"`
	Questionnaire *models.Questionnaire `json:"questionnaire"`
	Completed     bool                  `json:"completed"`
	// Abandoned sessions were left before completion and restarted.
	Abandoned     bool                  `json:"abandoned"`
}

type ParticipantExport struct {
	ExportDate     *time.Time            `json:"exportDate,omitempty"`
	ParticipantID  string                `json:"participantId"`
	Demographics   *models.Demographics  `json:"demographics"`
	ConditionOrder models.ConditionOrder `json:"conditionOrder"`
	Sessions       []SessionExport       `json:"sessions"`
	TransferTasks  []models.TransferTask `json:"transferTasks"`
	PostStudy      *models.PostStudy     `json:"postStudy"`
	Completed      bool                  `json:"completed"`
	Phase          models.Phase          `json:"phase,omitempty"`
	ConditionIndex int                   `json:"conditionIndex"`
	CreatedAt      time.Time             `json:"createdAt"`
}

type ExportEnvelope struct {
	ExportDate        time.Time           `json:"exportDate"`
	TotalParticipants int                 `json:"totalParticipants"`
	Participants      []ParticipantExport `json:"participants"`
}

type StudyStats struct {
	TotalParticipants     int `json:"totalParticipants"`
	CompletedParticipants int `json:"completedParticipants"`
	TotalSessions         int `json:"totalSessions"`
	CompletedSessions     int `json:"completedSessions"`
	TotalIdeas            int `json:"totalIdeas"`
	TotalInteractions     int `json:"totalInteractions"`
	CompletionRate        int `json:"completionRate"`
}

func (s *ExportService) ExportParticipant(ctx context.Context, pid string) (*ParticipantExport, error) {
	p, err := s.store.GetParticipant(ctx, pid)
	if err != nil {
		return nil, err
	}
	out := toParticipantExport(p)
	now := s.now()
	out.ExportDate = &now
	return &out, nil
}

func (s *ExportService) ExportAll(ctx context.Context) (*ExportEnvelope, error) {
	ps, err := s.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	env := &ExportEnvelope{ExportDate: s.now(), TotalParticipants: len(ps), Participants: make([]ParticipantExport, 0, len(ps))}
	for _, p := range ps {
		env.Participants = append(env.Participants, toParticipantExport(p))
	}
	return env, nil
}

func (s *ExportService) Stats(ctx context.Context) (*StudyStats, error) {
	ps, err := s.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	st := &StudyStats{TotalParticipants: len(ps)}
	for _, p := range ps {
		if p.Completed {
			st.CompletedParticipants++
		}
		st.TotalSessions += len(p.Sessions)
		for _, sess := range p.Sessions {
			if sess.Completed {
				st.CompletedSessions++
			}
			st.TotalIdeas += len(sess.Ideas)
			st.TotalInteractions += len(sess.Interactions)
		}
	}
	if st.TotalParticipants > 0 {
		st.CompletionRate = int(math.Round(float64(st.CompletedParticipants) / float64(st.TotalParticipants) * 100))
	}
	return st, nil
}

// CSV kinds accepted by ExportCSV.
const (
	CSVIdeas         = "ideas"
	CSVQuestionnaire = "questionnaire"
)

// ExportCSV renders every participant as one of the flat CSV tables.
func (s *ExportService) ExportCSV(ctx context.Context, kind string) ([]byte, error) {
	ps, err := s.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	switch kind {
	case CSVIdeas, "":
		return ExportIdeasCSV(ps)
	case CSVQuestionnaire:
		return ExportQuestionnaireCSV(ps)
	default:
		return nil, NewInvalidError("export.unknown_kind")
	}
}

// ImportParticipants loads an export back into the store. Participants that
// already exist are skipped and counted.
func (s *ExportService) ImportParticipants(ctx context.Context, env ExportEnvelope) (imported, skipped int, err error) {
	for _, pe := range env.Participants {
		p := FromParticipantExport(pe)
		if err := s.store.ImportParticipant(ctx, p); err != nil {
			if se, ok := AsServiceError(err); ok && se.Code == ErrorConflict {
				skipped++
				continue
			}
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}

// SessionDuration is the whole seconds between start and end, or nil while
// the session is open.
func SessionDuration(start time.Time, end *time.Time) *int {
	if end == nil || start.IsZero() {
		return nil
	}
	d := int(math.Round(end.Sub(start).Seconds()))
	return &d
}

func toParticipantExport(p *models.Participant) ParticipantExport {
	out := ParticipantExport{
		ParticipantID:  p.ParticipantID,
		Demographics:   p.Demographics,
		ConditionOrder: p.ConditionOrder,
		Sessions:       make([]SessionExport, 0, len(p.Sessions)),
		TransferTasks:  p.TransferTasks,
		PostStudy:      p.PostStudy,
		Completed:      p.Completed,
		Phase:          p.Phase,
		ConditionIndex: p.ConditionIndex,
		CreatedAt:      p.CreatedAt,
	}
	for _, s := range p.Sessions {
		out.Sessions = append(out.Sessions, SessionExport{
			SessionID:     s.SessionID,
			Condition:     s.Condition,
			TaskID:        s.TaskID,
			StartTime:     s.StartTime,
			EndTime:       s.EndTime,
			Duration:      SessionDuration(s.StartTime, s.EndTime),
			IdeasCount:    len(s.Ideas),
			Ideas:         s.Ideas,
			AISuggestions: s.AISuggestions,
			Rationales:    s.Rationales,
			Interactions:  s.Interactions,
			Questionnaire: s.Questionnaire,
			Completed:     s.Completed,
			Abandoned:     SessionAbandoned(s),
		})
	}
	return out
}

// SessionAbandoned reports a session that was closed without completing.
func SessionAbandoned(s models.Session) bool {
	return !s.Completed && s.EndTime != nil
}

// FromParticipantExport rebuilds the stored document from its export form.
// Derived fields (duration, ideasCount) are dropped.
func FromParticipantExport(pe ParticipantExport) *models.Participant {
	p := &models.Participant{
		ParticipantID:  pe.ParticipantID,
		Demographics:   pe.Demographics,
		ConditionOrder: pe.ConditionOrder,
		Sessions:       make([]models.Session, 0, len(pe.Sessions)),
		TransferTasks:  pe.TransferTasks,
		PostStudy:      pe.PostStudy,
		Completed:      pe.Completed,
		Phase:          pe.Phase,
		ConditionIndex: pe.ConditionIndex,
		CreatedAt:      pe.CreatedAt,
	}
	for _, s := range pe.Sessions {
		p.Sessions = append(p.Sessions, models.Session{
			SessionID:     s.SessionID,
			Condition:     s.Condition,
			TaskID:        s.TaskID,
			StartTime:     s.StartTime,
			EndTime:       s.EndTime,
			Ideas:         s.Ideas,
			AISuggestions: s.AISuggestions,
			Rationales:    s.Rationales,
			Interactions:  s.Interactions,
			Questionnaire: s.Questionnaire,
			Completed:     s.Completed,
		})
	}
	return p
}
