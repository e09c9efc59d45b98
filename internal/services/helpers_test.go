package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/soaringjerry/whenwhy/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// tickFor advances the clock one second at a time, ticking after each step.
func tickFor(c *TaskController, clock *fakeClock, seconds int) {
	for i := 0; i < seconds; i++ {
		clock.Advance(time.Second)
		c.Tick(context.Background())
	}
}

func syncSpawn(f func()) { f() }

func seqIDs() func(prefix string, n int) string {
	var n int64
	return func(prefix string, _ int) string {
		return fmt.Sprintf("%sid%d", prefix, atomic.AddInt64(&n, 1))
	}
}

type captureSink struct {
	mu      sync.Mutex
	entries []models.Interaction
}

func (s *captureSink) Record(_, _ string, in models.Interaction) {
	s.mu.Lock()
	s.entries = append(s.entries, in)
	s.mu.Unlock()
}

func (s *captureSink) all() []models.Interaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Interaction(nil), s.entries...)
}

func (s *captureSink) count(action string) int {
	n := 0
	for _, in := range s.all() {
		if in.Action == action {
			n++
		}
	}
	return n
}

func (s *captureSink) last(action string) (models.Interaction, bool) {
	entries := s.all()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Action == action {
			return entries[i], true
		}
	}
	return models.Interaction{}, false
}

// stubStore keeps whole participant documents and clones on every read and
// write.
type stubStore struct {
	mu           sync.Mutex
	counter      int
	order        []string
	participants map[string]*models.Participant
	researchers  map[string]*models.Researcher

	failUpdateSession error
	failTransfer      error
	failCreateSession error
	updateCalls       int
}

func newStubStore() *stubStore {
	return &stubStore{participants: map[string]*models.Participant{}, researchers: map[string]*models.Researcher{}}
}

func clone[T any](v T) T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}

func (s *stubStore) CreateParticipant(_ context.Context, alloc Allocator) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ord := s.counter
	s.counter++
	id, order := alloc(ord)
	p := &models.Participant{ParticipantID: id, Ordinal: ord, ConditionOrder: order, Phase: models.PhaseConsent, CreatedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	s.participants[id] = clone(p)
	s.order = append(s.order, id)
	return p, nil
}

func (s *stubStore) seed(p *models.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ParticipantID] = clone(p)
	s.order = append(s.order, p.ParticipantID)
	s.counter++
}

func (s *stubStore) get(id string) (*models.Participant, error) {
	p, ok := s.participants[id]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	return p, nil
}

func (s *stubStore) GetParticipant(_ context.Context, id string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return clone(p), nil
}

func (s *stubStore) ListParticipants(context.Context) ([]*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clone(s.participants[id]))
	}
	return out, nil
}

func (s *stubStore) UpdateDemographics(_ context.Context, id string, d models.Demographics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	p.Demographics = &d
	return nil
}

func (s *stubStore) UpdateProgress(_ context.Context, id string, phase models.Phase, idx int) error {
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

func (s *stubStore) CreateSession(_ context.Context, pid string, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateSession != nil {
		return s.failCreateSession
	}
	p, err := s.get(pid)
	if err != nil {
		return err
	}
	p.Sessions = append(p.Sessions, clone(*sess))
	return nil
}

func (s *stubStore) session(pid, sid string) (*models.Session, error) {
	p, err := s.get(pid)
	if err != nil {
		return nil, err
	}
	for i := range p.Sessions {
		if p.Sessions[i].SessionID == sid {
			return &p.Sessions[i], nil
		}
	}
	return nil, ErrSessionNotFound
}

func (s *stubStore) UpdateSession(_ context.Context, pid, sid string, u models.SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.failUpdateSession != nil {
		return s.failUpdateSession
	}
	sess, err := s.session(pid, sid)
	if err != nil {
		return err
	}
	ApplySessionUpdate(sess, clone(u))
	return nil
}

func (s *stubStore) AppendInteraction(_ context.Context, pid, sid string, in models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.session(pid, sid)
	if err != nil {
		return err
	}
	sess.Interactions = append(sess.Interactions, clone(in))
	return nil
}

func (s *stubStore) SetTransferTasks(_ context.Context, pid string, tasks []models.TransferTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTransfer != nil {
		return s.failTransfer
	}
	p, err := s.get(pid)
	if err != nil {
		return err
	}
	p.TransferTasks = clone(tasks)
	return nil
}

func (s *stubStore) SetPostStudy(_ context.Context, pid string, ps models.PostStudy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(pid)
	if err != nil {
		return err
	}
	p.PostStudy = &ps
	p.Completed = true
	return nil
}

func (s *stubStore) ImportParticipant(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[p.ParticipantID]; ok {
		return ErrParticipantExists
	}
	s.participants[p.ParticipantID] = clone(p)
	s.order = append(s.order, p.ParticipantID)
	s.counter++
	return nil
}

func (s *stubStore) AddResearcher(_ context.Context, r *models.Researcher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.researchers[r.Email]; ok {
		return ErrParticipantExists
	}
	cp := *r
	s.researchers[r.Email] = &cp
	return nil
}

func (s *stubStore) FindResearcherByEmail(_ context.Context, email string) (*models.Researcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.researchers[email]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) Close() error { return nil }

var _ SessionStore = (*stubStore)(nil)
