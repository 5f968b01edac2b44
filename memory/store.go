// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

// Package memory is the durable local store for everything the assistant
// remembers: mirrored Moodle entities, learned admin patterns, and the
// append-only conversation history. It backs the context assembler and the
// query orchestrator.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is what datetime('now') produces.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// Store is the SQLite-backed memory store. Safe for concurrent use; the
// single-connection pool serializes writers so pattern upserts cannot race.
type Store struct {
	db     *sql.DB
	path   string
	logger *log.Logger
}

// NewStore opens (creating if necessary) the memory database at path and
// applies the schema.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, newStoreError("open", "failed to create data directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, newStoreError("open", "failed to open database", err)
	}
	// modernc sqlite allows one writer; a single connection avoids
	// SQLITE_BUSY under concurrent request handling.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		_ = db.Close()
		return nil, newStoreError("open", "failed to apply pragmas", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, newStoreError("open", "failed to apply schema", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: log.New(os.Stdout, "[MEMORY] ", log.LstdFlags),
	}
	s.logger.Printf("Memory store opened: %s", path)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return newStoreError("close", "failed to close database", err)
	}
	return nil
}

// SaveCourse upserts a course keyed by its Moodle id.
func (s *Store) SaveCourse(ctx context.Context, c Course) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (moodle_id, fullname, shortname, category_id, summary, format, startdate, enddate, visible, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(moodle_id) DO UPDATE SET
			fullname = excluded.fullname,
			shortname = excluded.shortname,
			category_id = excluded.category_id,
			summary = excluded.summary,
			format = excluded.format,
			startdate = excluded.startdate,
			enddate = excluded.enddate,
			visible = excluded.visible,
			updated_at = datetime('now')`,
		c.MoodleID, c.FullName, c.ShortName, c.CategoryID, c.Summary, c.Format,
		c.StartDate, c.EndDate, boolToInt(c.Visible))
	if err != nil {
		return newStoreError("SaveCourse", fmt.Sprintf("failed to upsert course %d", c.MoodleID), err)
	}
	return nil
}

// GetCourses returns all courses ordered by full name, with enrollment
// counts attached.
func (s *Store) GetCourses(ctx context.Context) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.moodle_id, c.fullname, c.shortname, IFNULL(c.category_id, 0),
		       IFNULL(c.summary, ''), IFNULL(c.format, ''), IFNULL(c.startdate, 0),
		       IFNULL(c.enddate, 0), c.visible, c.updated_at,
		       (SELECT COUNT(*) FROM enrollments e WHERE e.course_id = c.id) AS enrolled_users
		FROM courses c
		ORDER BY c.fullname`)
	if err != nil {
		return nil, newStoreError("GetCourses", "query failed", err)
	}
	defer rows.Close()

	var courses []Course
	for rows.Next() {
		var c Course
		var visible int
		var updated string
		if err := rows.Scan(&c.ID, &c.MoodleID, &c.FullName, &c.ShortName, &c.CategoryID,
			&c.Summary, &c.Format, &c.StartDate, &c.EndDate, &visible, &updated, &c.EnrolledUsers); err != nil {
			return nil, newStoreError("GetCourses", "scan failed", err)
		}
		c.Visible = visible != 0
		c.UpdatedAt = parseStoredTime(updated)
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, newStoreError("GetCourses", "row iteration failed", err)
	}
	return courses, nil
}

// GetCourse returns one course by its Moodle id, or sql.ErrNoRows wrapped
// in a StoreError when absent.
func (s *Store) GetCourse(ctx context.Context, moodleID int64) (*Course, error) {
	var c Course
	var visible int
	var updated string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, moodle_id, fullname, shortname, IFNULL(category_id, 0),
		       IFNULL(summary, ''), IFNULL(format, ''), IFNULL(startdate, 0),
		       IFNULL(enddate, 0), visible, updated_at
		FROM courses WHERE moodle_id = ?`, moodleID).
		Scan(&c.ID, &c.MoodleID, &c.FullName, &c.ShortName, &c.CategoryID,
			&c.Summary, &c.Format, &c.StartDate, &c.EndDate, &visible, &updated)
	if err != nil {
		return nil, newStoreError("GetCourse", fmt.Sprintf("course %d not found", moodleID), err)
	}
	c.Visible = visible != 0
	c.UpdatedAt = parseStoredTime(updated)
	return &c, nil
}

// SaveUser upserts a user keyed by its Moodle id.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (moodle_id, username, firstname, lastname, email, role, last_access, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(moodle_id) DO UPDATE SET
			username = excluded.username,
			firstname = excluded.firstname,
			lastname = excluded.lastname,
			email = excluded.email,
			role = excluded.role,
			last_access = excluded.last_access,
			updated_at = datetime('now')`,
		u.MoodleID, u.Username, u.FirstName, u.LastName, u.Email, u.Role, u.LastAccess)
	if err != nil {
		return newStoreError("SaveUser", fmt.Sprintf("failed to upsert user %d", u.MoodleID), err)
	}
	return nil
}

// GetUsers returns all users ordered by last name then first name, with
// enrolled course counts attached.
func (s *Store) GetUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.moodle_id, u.username, IFNULL(u.firstname, ''), IFNULL(u.lastname, ''),
		       IFNULL(u.email, ''), IFNULL(u.role, ''), IFNULL(u.last_access, 0), u.updated_at,
		       (SELECT COUNT(*) FROM enrollments e WHERE e.user_id = u.id) AS enrolled_courses
		FROM users u
		ORDER BY u.lastname, u.firstname`)
	if err != nil {
		return nil, newStoreError("GetUsers", "query failed", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var updated string
		if err := rows.Scan(&u.ID, &u.MoodleID, &u.Username, &u.FirstName, &u.LastName,
			&u.Email, &u.Role, &u.LastAccess, &updated, &u.EnrolledCourses); err != nil {
			return nil, newStoreError("GetUsers", "scan failed", err)
		}
		u.UpdatedAt = parseStoredTime(updated)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, newStoreError("GetUsers", "row iteration failed", err)
	}
	return users, nil
}

// SaveQuestion upserts a question keyed by its Moodle id.
func (s *Store) SaveQuestion(ctx context.Context, q Question) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions (moodle_id, category_id, name, questiontext, qtype, defaultmark, penalty, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(moodle_id) DO UPDATE SET
			category_id = excluded.category_id,
			name = excluded.name,
			questiontext = excluded.questiontext,
			qtype = excluded.qtype,
			defaultmark = excluded.defaultmark,
			penalty = excluded.penalty,
			updated_at = datetime('now')`,
		q.MoodleID, q.CategoryID, q.Name, q.QuestionText, q.QType, q.DefaultMark, q.Penalty)
	if err != nil {
		return newStoreError("SaveQuestion", fmt.Sprintf("failed to upsert question %d", q.MoodleID), err)
	}
	return nil
}

// GetQuestions returns questions ordered by name. categoryID 0 means all
// categories.
func (s *Store) GetQuestions(ctx context.Context, categoryID int64) ([]Question, error) {
	query := `
		SELECT id, moodle_id, IFNULL(category_id, 0), name, IFNULL(questiontext, ''),
		       IFNULL(qtype, ''), IFNULL(defaultmark, 0), IFNULL(penalty, 0), updated_at
		FROM questions`
	args := []any{}
	if categoryID > 0 {
		query += ` WHERE category_id = ?`
		args = append(args, categoryID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newStoreError("GetQuestions", "query failed", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		var updated string
		if err := rows.Scan(&q.ID, &q.MoodleID, &q.CategoryID, &q.Name, &q.QuestionText,
			&q.QType, &q.DefaultMark, &q.Penalty, &updated); err != nil {
			return nil, newStoreError("GetQuestions", "scan failed", err)
		}
		q.UpdatedAt = parseStoredTime(updated)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, newStoreError("GetQuestions", "row iteration failed", err)
	}
	return questions, nil
}

// SaveEnrollment upserts an enrollment keyed by (user, course).
func (s *Store) SaveEnrollment(ctx context.Context, e Enrollment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (user_id, course_id, role, status, timestart, timeend)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, course_id) DO UPDATE SET
			role = excluded.role,
			status = excluded.status,
			timestart = excluded.timestart,
			timeend = excluded.timeend`,
		e.UserID, e.CourseID, e.Role, e.Status, e.TimeStart, e.TimeEnd)
	if err != nil {
		return newStoreError("SaveEnrollment", "failed to upsert enrollment", err)
	}
	return nil
}

// SaveQuiz upserts a quiz keyed by its Moodle id.
func (s *Store) SaveQuiz(ctx context.Context, q Quiz) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quizzes (moodle_id, course_id, name, intro, timeopen, timeclose, timelimit, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(moodle_id) DO UPDATE SET
			course_id = excluded.course_id,
			name = excluded.name,
			intro = excluded.intro,
			timeopen = excluded.timeopen,
			timeclose = excluded.timeclose,
			timelimit = excluded.timelimit,
			attempts = excluded.attempts`,
		q.MoodleID, q.CourseID, q.Name, q.Intro, q.TimeOpen, q.TimeClose, q.TimeLimit, q.Attempts)
	if err != nil {
		return newStoreError("SaveQuiz", fmt.Sprintf("failed to upsert quiz %d", q.MoodleID), err)
	}
	return nil
}

// SaveAdminPattern records a learning event for a pattern type. The upsert
// is a single statement: repeated events for the same type increment the
// frequency and replace the payload, so concurrent learners cannot create
// duplicate rows.
func (s *Store) SaveAdminPattern(ctx context.Context, patternType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return newStoreError("SaveAdminPattern", "failed to encode pattern data", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO admin_patterns (pattern_type, pattern_data)
		VALUES (?, ?)
		ON CONFLICT(pattern_type) DO UPDATE SET
			pattern_data = excluded.pattern_data,
			frequency = frequency + 1,
			last_used = datetime('now')`,
		patternType, string(payload))
	if err != nil {
		return newStoreError("SaveAdminPattern", fmt.Sprintf("failed to upsert pattern %q", patternType), err)
	}
	return nil
}

// GetAdminPattern returns the pattern for a type, or nil when none has
// been learned yet.
func (s *Store) GetAdminPattern(ctx context.Context, patternType string) (*AdminPattern, error) {
	var p AdminPattern
	var data, lastUsed string
	err := s.db.QueryRowContext(ctx, `
		SELECT pattern_type, pattern_data, frequency, last_used
		FROM admin_patterns WHERE pattern_type = ?`, patternType).
		Scan(&p.PatternType, &data, &p.Frequency, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, newStoreError("GetAdminPattern", fmt.Sprintf("failed to read pattern %q", patternType), err)
	}
	p.Data = json.RawMessage(data)
	p.LastUsed = parseStoredTime(lastUsed)
	return &p, nil
}

// SaveConversation appends one conversation turn. History is append-only.
func (s *Store) SaveConversation(ctx context.Context, rec ConversationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_conversations (session_id, user_input, ai_response, context_used, action_taken, ai_provider)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.UserInput, rec.AIResponse, rec.ContextUsed, rec.ActionTaken, rec.Provider)
	if err != nil {
		return newStoreError("SaveConversation", "failed to append conversation", err)
	}
	return nil
}

// GetConversationHistory returns up to limit turns for a session, most
// recent first.
func (s *Store) GetConversationHistory(ctx context.Context, sessionID string, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_input, ai_response, IFNULL(context_used, ''),
		       IFNULL(action_taken, ''), IFNULL(ai_provider, ''), created_at
		FROM ai_conversations
		WHERE session_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, newStoreError("GetConversationHistory", "query failed", err)
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		var rec ConversationRecord
		var created string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserInput, &rec.AIResponse,
			&rec.ContextUsed, &rec.ActionTaken, &rec.Provider, &created); err != nil {
			return nil, newStoreError("GetConversationHistory", "scan failed", err)
		}
		rec.CreatedAt = parseStoredTime(created)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, newStoreError("GetConversationHistory", "row iteration failed", err)
	}
	return records, nil
}

// SaveContext upserts a scored context snippet keyed by (type, entity).
func (s *Store) SaveContext(ctx context.Context, contextType string, entityID int64, data any, relevanceScore float64) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return newStoreError("SaveContext", "failed to encode context data", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memory_context (context_type, entity_id, context_data, relevance_score, last_accessed)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT(context_type, entity_id) DO UPDATE SET
			context_data = excluded.context_data,
			relevance_score = excluded.relevance_score,
			last_accessed = datetime('now')`,
		contextType, entityID, string(payload), relevanceScore)
	if err != nil {
		return newStoreError("SaveContext", "failed to upsert context", err)
	}
	return nil
}

// GetRelevantContext returns up to limit context snippets of one type,
// highest relevance first.
func (s *Store) GetRelevantContext(ctx context.Context, contextType string, limit int) ([]ContextEntry, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT context_type, entity_id, context_data, relevance_score, last_accessed
		FROM memory_context
		WHERE context_type = ?
		ORDER BY relevance_score DESC, last_accessed DESC
		LIMIT ?`, contextType, limit)
	if err != nil {
		return nil, newStoreError("GetRelevantContext", "query failed", err)
	}
	defer rows.Close()

	var entries []ContextEntry
	for rows.Next() {
		var e ContextEntry
		var data, accessed string
		if err := rows.Scan(&e.ContextType, &e.EntityID, &data, &e.RelevanceScore, &accessed); err != nil {
			return nil, newStoreError("GetRelevantContext", "scan failed", err)
		}
		e.Data = json.RawMessage(data)
		e.LastAccessed = parseStoredTime(accessed)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, newStoreError("GetRelevantContext", "row iteration failed", err)
	}
	return entries, nil
}

// GetStats returns row counts for the stats endpoint.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM courses`, &stats.Courses},
		{`SELECT COUNT(*) FROM users`, &stats.Users},
		{`SELECT COUNT(*) FROM questions`, &stats.Questions},
		{`SELECT COUNT(*) FROM ai_conversations`, &stats.Conversations},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, newStoreError("GetStats", "count query failed", err)
		}
	}
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseStoredTime parses sqlite datetime text. Zero time on anything
// unparseable rather than failing the whole read.
func parseStoredTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(sqliteTimeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}
