package api

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/soaringjerry/whenwhy/internal/models"
	"github.com/soaringjerry/whenwhy/internal/services"
)

// memoryStore keeps every participant document in memory. Reads and writes
// copy, so callers never share state with the store.
type memoryStore struct {
	mu           sync.RWMutex
	counter      int
	order        []string
	participants map[string]*models.Participant
	usersByEmail map[string]*models.Researcher
	now          func() time.Time
}

// NewMemoryStore returns an empty in-memory SessionStore.
func NewMemoryStore() services.SessionStore {
	return newMemoryStore()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		participants: map[string]*models.Participant{},
		usersByEmail: map[string]*models.Researcher{},
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryStore) CreateParticipant(_ context.Context, alloc services.Allocator) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ordinal := s.counter
	id, order := alloc(ordinal)
	if _, exists := s.participants[id]; exists {
		return nil, services.ErrParticipantExists
	}
	s.counter++
	p := &models.Participant{
		ParticipantID:  id,
		Ordinal:        ordinal,
		ConditionOrder: order,
		Phase:          models.PhaseConsent,
		CreatedAt:      s.now(),
	}
	s.participants[id] = p
	s.order = append(s.order, id)
	return cloneParticipant(p), nil
}

func (s *memoryStore) get(id string) (*models.Participant, error) {
	p, ok := s.participants[id]
	if !ok {
		return nil, services.ErrParticipantNotFound
	}
	return p, nil
}

func (s *memoryStore) GetParticipant(_ context.Context, id string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return cloneParticipant(p), nil
}

func (s *memoryStore) ListParticipants(context.Context) ([]*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneParticipant(s.participants[id]))
	}
	return out, nil
}

func (s *memoryStore) UpdateDemographics(_ context.Context, id string, d models.Demographics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	d.PriorCourses = append([]string(nil), d.PriorCourses...)
	p.Demographics = &d
	return nil
}

func (s *memoryStore) UpdateProgress(_ context.Context, id string, phase models.Phase, idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	p.Phase = phase
	p.ConditionIndex = idx
	return nil
}

func (s *memoryStore) CreateSession(_ context.Context, pid string, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(pid)
	if err != nil {
		return err
	}
	for _, existing := range p.Sessions {
		if existing.SessionID == sess.SessionID {
			return services.NewConflictError("session.exists")
		}
	}
	p.Sessions = append(p.Sessions, cloneSession(*sess))
	return nil
}

func (s *memoryStore) session(pid, sid string) (*models.Session, error) {
	p, err := s.get(pid)
	if err != nil {
		return nil, err
	}
	for i := range p.Sessions {
		if p.Sessions[i].SessionID == sid {
			return &p.Sessions[i], nil
		}
	}
	return nil, services.ErrSessionNotFound
}

func (s *memoryStore) UpdateSession(_ context.Context, pid, sid string, u models.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(pid, sid)
	if err != nil {
		return err
	}
	services.ApplySessionUpdate(sess, u)
	return nil
}

func (s *memoryStore) AppendInteraction(_ context.Context, pid, sid string, in models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(pid, sid)
	if err != nil {
		return err
	}
	sess.Interactions = append(sess.Interactions, cloneInteraction(in))
	return nil
}

func (s *memoryStore) SetTransferTasks(_ context.Context, pid string, tasks []models.TransferTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(pid)
	if err != nil {
		return err
	}
	p.TransferTasks = cloneTransfer(tasks)
	return nil
}

func (s *memoryStore) SetPostStudy(_ context.Context, pid string, ps models.PostStudy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(pid)
	if err != nil {
		return err
	}
	ps.ConditionPreference = append([]int(nil), ps.ConditionPreference...)
	p.PostStudy = &ps
	p.Completed = true
	return nil
}

func (s *memoryStore) ImportParticipant(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.participants[p.ParticipantID]; exists {
		return services.ErrParticipantExists
	}
	cp := cloneParticipant(p)
	if n, ok := services.OrdinalFromID(p.ParticipantID); ok {
		cp.Ordinal = n
		if n >= s.counter {
			s.counter = n + 1
		}
	}
	s.participants[cp.ParticipantID] = cp
	s.order = append(s.order, cp.ParticipantID)
	return nil
}

func (s *memoryStore) AddResearcher(_ context.Context, r *models.Researcher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(r.Email)
	if _, exists := s.usersByEmail[key]; exists {
		return services.NewConflictError("email exists")
	}
	cp := *r
	s.usersByEmail[key] = &cp
	return nil
}

func (s *memoryStore) FindResearcherByEmail(_ context.Context, email string) (*models.Researcher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memoryStore) Close() error { return nil }

func cloneParticipant(p *models.Participant) *models.Participant {
	cp := *p
	if p.Demographics != nil {
		d := *p.Demographics
		d.PriorCourses = append([]string(nil), d.PriorCourses...)
		cp.Demographics = &d
	}
	cp.ConditionOrder = append(models.ConditionOrder(nil), p.ConditionOrder...)
	cp.Sessions = nil
	for _, sess := range p.Sessions {
		cp.Sessions = append(cp.Sessions, cloneSession(sess))
	}
	cp.TransferTasks = cloneTransfer(p.TransferTasks)
	if p.PostStudy != nil {
		ps := *p.PostStudy
		ps.ConditionPreference = append([]int(nil), ps.ConditionPreference...)
		cp.PostStudy = &ps
	}
	return &cp
}

func cloneSession(s models.Session) models.Session {
	cp := s
	if s.EndTime != nil {
		t := *s.EndTime
		cp.EndTime = &t
	}
	cp.Ideas = append([]models.Idea(nil), s.Ideas...)
	cp.AISuggestions = append([]models.Suggestion(nil), s.AISuggestions...)
	cp.Rationales = append([]models.Rationale(nil), s.Rationales...)
	cp.Interactions = nil
	for _, in := range s.Interactions {
		cp.Interactions = append(cp.Interactions, cloneInteraction(in))
	}
	if s.Questionnaire != nil {
		q := *s.Questionnaire
		q.Agency = append([]int(nil), q.Agency...)
		q.CognitiveLoad = append([]int(nil), q.CognitiveLoad...)
		cp.Questionnaire = &q
	}
	return cp
}

func cloneInteraction(in models.Interaction) models.Interaction {
	cp := in
	if in.Details != nil {
		cp.Details = make(map[string]any, len(in.Details))
		for k, v := range in.Details {
			cp.Details[k] = v
		}
	}
	return cp
}

func cloneTransfer(tasks []models.TransferTask) []models.TransferTask {
	if tasks == nil {
		return nil
	}
	out := make([]models.TransferTask, len(tasks))
	for i, t := range tasks {
		t.Ideas = append([]string(nil), t.Ideas...)
		out[i] = t
	}
	return out
}

var _ services.SessionStore = (*memoryStore)(nil)
