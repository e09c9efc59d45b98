package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/whenwhy/internal/models"
	"github.com/soaringjerry/whenwhy/internal/services"
)

// Open opens (and creates) the SQLite file at path.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_busy_timeout=5000&_foreign_keys=on", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps the pragmas in effect.
	db.SetMaxOpenConns(1)
	return db, nil
}

// SQLiteStore implements services.SessionStore. Each participant is a row;
// sessions and interactions live in child tables.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

var _ services.SessionStore = (*SQLiteStore)(nil)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	return fn(tx)
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, v)
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// nullJSON stores nil pointers as NULL.
func nullJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeJSON(ns sql.NullString, dst any) error {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" || ns.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint
	}
	return false
}

// --- Participants ---

const participantColumns = `participant_id, ordinal, demographics, condition_order, transfer_tasks, post_study, completed, phase, condition_index, created_at`

func (s *SQLiteStore) CreateParticipant(ctx context.Context, alloc services.Allocator) (*models.Participant, error) {
	var out *models.Participant
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// Bumping first takes the write lock, so concurrent consents never
		// see the same ordinal.
		var ordinal int
		if err := tx.QueryRowContext(ctx, `UPDATE participant_counter SET next_ordinal = next_ordinal + 1 WHERE id = 1 RETURNING next_ordinal - 1`).Scan(&ordinal); err != nil {
			return fmt.Errorf("allocate ordinal: %w", err)
		}
		id, order := alloc(ordinal)
		p := &models.Participant{
			ParticipantID:  id,
			Ordinal:        ordinal,
			ConditionOrder: order,
			Phase:          models.PhaseConsent,
			CreatedAt:      s.now(),
		}
		if err := insertParticipant(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func insertParticipant(ctx context.Context, q queryer, p *models.Participant) error {
	demo, err := nullJSON(p.Demographics)
	if err != nil {
		return err
	}
	order, err := encodeJSON(p.ConditionOrder)
	if err != nil {
		return err
	}
	var transfer sql.NullString
	if p.TransferTasks != nil {
		v, err := encodeJSON(p.TransferTasks)
		if err != nil {
			return err
		}
		transfer = sql.NullString{String: v, Valid: true}
	}
	post, err := nullJSON(p.PostStudy)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `INSERT INTO participants (`+participantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ParticipantID, p.Ordinal, demo, order, transfer, post, boolToInt64(p.Completed), string(p.Phase), p.ConditionIndex, formatTime(p.CreatedAt))
	if isConstraint(err) {
		return services.ErrParticipantExists
	}
	if err != nil {
		return fmt.Errorf("insert participant %s: %w", p.ParticipantID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var (
		p                           models.Participant
		demo, order, transfer, post sql.NullString
		completed                   int64
		phase, created              string
	)
	if err := row.Scan(&p.ParticipantID, &p.Ordinal, &demo, &order, &transfer, &post, &completed, &phase, &p.ConditionIndex, &created); err != nil {
		return nil, err
	}
	if err := decodeJSON(demo, &p.Demographics); err != nil {
		return nil, fmt.Errorf("decode demographics: %w", err)
	}
	if err := decodeJSON(order, &p.ConditionOrder); err != nil {
		return nil, fmt.Errorf("decode condition order: %w", err)
	}
	if err := decodeJSON(transfer, &p.TransferTasks); err != nil {
		return nil, fmt.Errorf("decode transfer tasks: %w", err)
	}
	if err := decodeJSON(post, &p.PostStudy); err != nil {
		return nil, fmt.Errorf("decode post study: %w", err)
	}
	p.Completed = completed != 0
	p.Phase = models.Phase(phase)
	t, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	p.CreatedAt = t
	return &p, nil
}

func loadParticipant(ctx context.Context, q queryer, id string) (*models.Participant, error) {
	row := q.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE participant_id = ?`, id)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.ErrParticipantNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := attachSessions(ctx, q, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	return loadParticipant(ctx, s.db, id)
}

func (s *SQLiteStore) ListParticipants(ctx context.Context) ([]*models.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+participantColumns+` FROM participants ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	var out []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	// Sessions are loaded after the participant cursor is closed; the pool
	// holds a single connection.
	for _, p := range out {
		if err := attachSessions(ctx, s.db, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLiteStore) updateParticipant(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrParticipantNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateDemographics(ctx context.Context, id string, d models.Demographics) error {
	demo, err := nullJSON(&d)
	if err != nil {
		return err
	}
	return s.updateParticipant(ctx, id, `UPDATE participants SET demographics = ? WHERE participant_id = ?`, demo)
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, id string, phase models.Phase, conditionIndex int) error {
	return s.updateParticipant(ctx, id, `UPDATE participants SET phase = ?, condition_index = ? WHERE participant_id = ?`, string(phase), conditionIndex)
}

func (s *SQLiteStore) SetTransferTasks(ctx context.Context, id string, tasks []models.TransferTask) error {
	if tasks == nil {
		tasks = []models.TransferTask{}
	}
	v, err := encodeJSON(tasks)
	if err != nil {
		return err
	}
	return s.updateParticipant(ctx, id, `UPDATE participants SET transfer_tasks = ? WHERE participant_id = ?`, v)
}

func (s *SQLiteStore) SetPostStudy(ctx context.Context, id string, p models.PostStudy) error {
	v, err := nullJSON(&p)
	if err != nil {
		return err
	}
	return s.updateParticipant(ctx, id, `UPDATE participants SET post_study = ?, completed = 1 WHERE participant_id = ?`, v)
}

// ImportParticipant inserts a whole exported document. Ids of the P### form
// move the counter past them.
func (s *SQLiteStore) ImportParticipant(ctx context.Context, p *models.Participant) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		cp := *p
		if n, ok := services.OrdinalFromID(p.ParticipantID); ok {
			cp.Ordinal = n
			if _, err := tx.ExecContext(ctx, `UPDATE participant_counter SET next_ordinal = MAX(next_ordinal, ?) WHERE id = 1`, n+1); err != nil {
				return fmt.Errorf("bump counter: %w", err)
			}
		}
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = s.now()
		}
		if err := insertParticipant(ctx, tx, &cp); err != nil {
			return err
		}
		for i := range p.Sessions {
			if err := insertSession(ctx, tx, p.ParticipantID, i, &p.Sessions[i]); err != nil {
				return err
			}
			for _, in := range p.Sessions[i].Interactions {
				if err := insertInteraction(ctx, tx, p.ParticipantID, p.Sessions[i].SessionID, in); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// --- Sessions ---

const sessionColumns = `session_id, cond, task_id, start_time, end_time, ideas, ai_suggestions, rationales, questionnaire, completed`

func insertSession(ctx context.Context, q queryer, pid string, position int, sess *models.Session) error {
	cond, err := encodeJSON(sess.Condition)
	if err != nil {
		return err
	}
	ideas, suggestions, rationales, err := encodeSessionLists(sess)
	if err != nil {
		return err
	}
	questionnaire, err := nullJSON(sess.Questionnaire)
	if err != nil {
		return err
	}
	var end sql.NullString
	if sess.EndTime != nil {
		end = sql.NullString{String: formatTime(*sess.EndTime), Valid: true}
	}
	_, err = q.ExecContext(ctx, `INSERT INTO sessions (participant_id, position, `+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pid, position, sess.SessionID, cond, sess.TaskID, formatTime(sess.StartTime), end, ideas, suggestions, rationales, questionnaire, boolToInt64(sess.Completed))
	if isConstraint(err) {
		return services.NewConflictError("session.exists")
	}
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.SessionID, err)
	}
	return nil
}

func encodeSessionLists(sess *models.Session) (ideas, suggestions, rationales string, err error) {
	if ideas, err = encodeJSON(nonNil(sess.Ideas)); err != nil {
		return
	}
	if suggestions, err = encodeJSON(nonNil(sess.AISuggestions)); err != nil {
		return
	}
	rationales, err = encodeJSON(nonNil(sess.Rationales))
	return
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		sess                                models.Session
		cond, start                         string
		end, ideas, suggestions, rationales sql.NullString
		questionnaire                       sql.NullString
		completed                           int64
	)
	if err := row.Scan(&sess.SessionID, &cond, &sess.TaskID, &start, &end, &ideas, &suggestions, &rationales, &questionnaire, &completed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cond), &sess.Condition); err != nil {
		return nil, fmt.Errorf("decode condition: %w", err)
	}
	t, err := parseTime(start)
	if err != nil {
		return nil, fmt.Errorf("parse start_time: %w", err)
	}
	sess.StartTime = t
	if end.Valid {
		et, err := parseTime(end.String)
		if err != nil {
			return nil, fmt.Errorf("parse end_time: %w", err)
		}
		sess.EndTime = &et
	}
	for _, f := range []struct {
		col sql.NullString
		dst any
	}{{ideas, &sess.Ideas}, {suggestions, &sess.AISuggestions}, {rationales, &sess.Rationales}, {questionnaire, &sess.Questionnaire}} {
		if err := decodeJSON(f.col, f.dst); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", sess.SessionID, err)
		}
	}
	sess.Completed = completed != 0
	return &sess, nil
}

func attachSessions(ctx context.Context, q queryer, p *models.Participant) error {
	rows, err := q.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE participant_id = ? ORDER BY position ASC`, p.ParticipantID)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			_ = rows.Close()
			return err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}
	for i := range sessions {
		in, err := loadInteractions(ctx, q, p.ParticipantID, sessions[i].SessionID)
		if err != nil {
			return err
		}
		sessions[i].Interactions = in
	}
	p.Sessions = sessions
	return nil
}

// sessionMissing tells a missing participant apart from a missing session.
func sessionMissing(ctx context.Context, q queryer, pid string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM participants WHERE participant_id = ?`, pid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return services.ErrParticipantNotFound
	}
	if err != nil {
		return err
	}
	return services.ErrSessionNotFound
}

func (s *SQLiteStore) CreateSession(ctx context.Context, pid string, sess *models.Session) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var position int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE participant_id = ?`, pid).Scan(&position)
		if err != nil {
			return err
		}
		if position == 0 {
			if err := sessionMissing(ctx, tx, pid); errors.Is(err, services.ErrParticipantNotFound) {
				return err
			}
		}
		// A fresh session's interactions are appended separately.
		return insertSession(ctx, tx, pid, position, sess)
	})
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, pid, sid string, u models.SessionUpdate) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE participant_id = ? AND session_id = ?`, pid, sid)
		sess, err := scanSession(row)
		if errors.Is(err, sql.ErrNoRows) {
			return sessionMissing(ctx, tx, pid)
		}
		if err != nil {
			return err
		}
		services.ApplySessionUpdate(sess, u)
		ideas, suggestions, rationales, err := encodeSessionLists(sess)
		if err != nil {
			return err
		}
		questionnaire, err := nullJSON(sess.Questionnaire)
		if err != nil {
			return err
		}
		var end sql.NullString
		if sess.EndTime != nil {
			end = sql.NullString{String: formatTime(*sess.EndTime), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `UPDATE sessions SET ideas = ?, ai_suggestions = ?, rationales = ?, questionnaire = ?, end_time = ?, completed = ?
      WHERE participant_id = ? AND session_id = ?`, ideas, suggestions, rationales, questionnaire, end, boolToInt64(sess.Completed), pid, sid)
		return err
	})
}

// --- Interactions ---

func insertInteraction(ctx context.Context, q queryer, pid, sid string, in models.Interaction) error {
	details := in.Details
	if details == nil {
		details = map[string]any{}
	}
	v, err := encodeJSON(details)
	if err != nil {
		return fmt.Errorf("encode interaction details: %w", err)
	}
	_, err = q.ExecContext(ctx, `INSERT INTO interactions (participant_id, session_id, action, ts, details) VALUES (?, ?, ?, ?, ?)`,
		pid, sid, in.Action, formatTime(in.Timestamp), v)
	if isConstraint(err) {
		return sessionMissing(ctx, q, pid)
	}
	return err
}

func loadInteractions(ctx context.Context, q queryer, pid, sid string) ([]models.Interaction, error) {
	rows, err := q.QueryContext(ctx, `SELECT action, ts, details FROM interactions WHERE participant_id = ? AND session_id = ? ORDER BY id ASC`, pid, sid)
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []models.Interaction
	for rows.Next() {
		var (
			in      models.Interaction
			ts      string
			details sql.NullString
		)
		if err := rows.Scan(&in.Action, &ts, &details); err != nil {
			return nil, err
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse interaction ts: %w", err)
		}
		in.Timestamp = t
		if err := decodeJSON(details, &in.Details); err != nil {
			return nil, fmt.Errorf("decode interaction details: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendInteraction(ctx context.Context, pid, sid string, in models.Interaction) error {
	return insertInteraction(ctx, s.db, pid, sid, in)
}

// --- Researchers ---

func (s *SQLiteStore) AddResearcher(ctx context.Context, r *models.Researcher) error {
	created := r.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO researchers (id, email, pass_hash, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, strings.ToLower(r.Email), r.PassHash, formatTime(created))
	if isConstraint(err) {
		return services.NewConflictError("email exists")
	}
	return err
}

func (s *SQLiteStore) FindResearcherByEmail(ctx context.Context, email string) (*models.Researcher, error) {
	var (
		r       models.Researcher
		created string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, email, pass_hash, created_at FROM researchers WHERE email = ?`, strings.ToLower(email)).
		Scan(&r.ID, &r.Email, &r.PassHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t, perr := parseTime(created); perr == nil {
		r.CreatedAt = t
	}
	return &r, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
