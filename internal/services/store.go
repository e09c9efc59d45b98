package services

import (
	"context"

	"github.com/soaringjerry/whenwhy/internal/models"
)

// Allocator turns the participant ordinal into an id and condition order.
type Allocator func(ordinal int) (string, models.ConditionOrder)

// SessionStore is the full persistence surface. Services depend on the
// narrower interfaces below.
type SessionStore interface {
	// CreateParticipant reads and increments the participant ordinal and
	// inserts the participant atomically.
	CreateParticipant(ctx context.Context, alloc Allocator) (*models.Participant, error)
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	ListParticipants(ctx context.Context) ([]*models.Participant, error)
	UpdateDemographics(ctx context.Context, id string, d models.Demographics) error
	UpdateProgress(ctx context.Context, id string, phase models.Phase, conditionIndex int) error
	CreateSession(ctx context.Context, participantID string, s *models.Session) error
	UpdateSession(ctx context.Context, participantID, sessionID string, u models.SessionUpdate) error
	AppendInteraction(ctx context.Context, participantID, sessionID string, in models.Interaction) error
	SetTransferTasks(ctx context.Context, participantID string, tasks []models.TransferTask) error
	SetPostStudy(ctx context.Context, participantID string, p models.PostStudy) error
	ImportParticipant(ctx context.Context, p *models.Participant) error

	AddResearcher(ctx context.Context, r *models.Researcher) error
	FindResearcherByEmail(ctx context.Context, email string) (*models.Researcher, error)

	Close() error
}

// ApplySessionUpdate merges u into s field by field.
func ApplySessionUpdate(s *models.Session, u models.SessionUpdate) {
	if u.Ideas != nil {
		s.Ideas = append([]models.Idea(nil), u.Ideas...)
	}
	if u.AISuggestions != nil {
		s.AISuggestions = append([]models.Suggestion(nil), u.AISuggestions...)
	}
	if u.Rationales != nil {
		s.Rationales = append([]models.Rationale(nil), u.Rationales...)
	}
	if u.Questionnaire != nil {
		q := *u.Questionnaire
		s.Questionnaire = &q
	}
	if u.EndTime != nil {
		t := *u.EndTime
		s.EndTime = &t
	}
	if u.Completed != nil {
		s.Completed = *u.Completed
	}
}
