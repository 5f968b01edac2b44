// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

// Package moodle mirrors entities from a Moodle MySQL database into the
// local memory store. Sync is one-way: Moodle is the source of truth,
// the memory store is a read model for context assembly.
package moodle

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/MFTechStaffs/moodle-ai-assistant/memory"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 2
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
)

// Config holds the Moodle database connection settings.
type Config struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
}

// ConnectorError wraps a sync failure with the operation that caused it.
type ConnectorError struct {
	Op      string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("moodle %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("moodle %s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

func newConnectorError(op, message string, cause error) *ConnectorError {
	return &ConnectorError{Op: op, Message: message, Cause: cause}
}

// MemoryStore is the slice of the memory store the connector writes to.
type MemoryStore interface {
	SaveCourse(ctx context.Context, c memory.Course) error
	SaveUser(ctx context.Context, u memory.User) error
	SaveQuestion(ctx context.Context, q memory.Question) error
	SaveEnrollment(ctx context.Context, e memory.Enrollment) error
	SaveQuiz(ctx context.Context, q memory.Quiz) error
	GetCourses(ctx context.Context) ([]memory.Course, error)
	GetUsers(ctx context.Context) ([]memory.User, error)
}

// SyncReport counts what a full sync moved.
type SyncReport struct {
	Courses     int `json:"courses"`
	Users       int `json:"users"`
	Enrollments int `json:"enrollments"`
	Questions   int `json:"questions"`
	Quizzes     int `json:"quizzes"`
}

// Connector pulls Moodle entities over MySQL and upserts them into the
// memory store.
type Connector struct {
	cfg    Config
	db     *sql.DB
	store  MemoryStore
	logger *log.Logger
}

// NewConnector creates a connector. Connect must be called before any
// sync operation.
func NewConnector(cfg Config, store MemoryStore) *Connector {
	return &Connector{
		cfg:    cfg,
		store:  store,
		logger: log.New(os.Stdout, "[MOODLE] ", log.LstdFlags),
	}
}

// NewConnectorWithDB creates a connector over an existing database
// handle. Used by tests and by callers that manage the pool themselves.
func NewConnectorWithDB(db *sql.DB, store MemoryStore) *Connector {
	return &Connector{
		db:     db,
		store:  store,
		logger: log.New(os.Stdout, "[MOODLE] ", log.LstdFlags),
	}
}

// Connect opens the MySQL pool and verifies it with a ping.
func (c *Connector) Connect(ctx context.Context) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.cfg.User, c.cfg.Password, c.cfg.Host, c.cfg.Port, c.cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return newConnectorError("Connect", "failed to open connection", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return newConnectorError("Connect", "failed to ping database", err)
	}

	c.db = db
	c.logger.Printf("Connected to Moodle database %s@%s:%d", c.cfg.Database, c.cfg.Host, c.cfg.Port)
	return nil
}

// Close releases the MySQL pool.
func (c *Connector) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Connector) requireConnection(op string) error {
	if c.db == nil {
		return newConnectorError(op, "not connected to Moodle database", nil)
	}
	return nil
}

const coursesQuery = `
	SELECT id, fullname, shortname, category, summary, format,
	       startdate, enddate, visible
	FROM mdl_course
	WHERE id > 1
	ORDER BY fullname`

// SyncCourses mirrors all real courses. The site course (id 1) is
// excluded.
func (c *Connector) SyncCourses(ctx context.Context) (int, error) {
	if err := c.requireConnection("SyncCourses"); err != nil {
		return 0, err
	}

	rows, err := c.db.QueryContext(ctx, coursesQuery)
	if err != nil {
		return 0, newConnectorError("SyncCourses", "query failed", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			course  memory.Course
			visible int
		)
		if err := rows.Scan(&course.MoodleID, &course.FullName, &course.ShortName,
			&course.CategoryID, &course.Summary, &course.Format,
			&course.StartDate, &course.EndDate, &visible); err != nil {
			return count, newConnectorError("SyncCourses", "scan failed", err)
		}
		course.Visible = visible != 0

		if err := c.store.SaveCourse(ctx, course); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, newConnectorError("SyncCourses", "row iteration failed", err)
	}

	c.logger.Printf("Synced %d courses", count)
	return count, nil
}

const usersQuery = `
	SELECT u.id, u.username, u.firstname, u.lastname, u.email,
	       u.lastaccess,
	       GROUP_CONCAT(DISTINCT r.shortname) as roles
	FROM mdl_user u
	LEFT JOIN mdl_role_assignments ra ON u.id = ra.userid
	LEFT JOIN mdl_role r ON ra.roleid = r.id
	WHERE u.deleted = 0 AND u.id > 1
	GROUP BY u.id
	ORDER BY u.lastname, u.firstname`

// SyncUsers mirrors all non-deleted users with their aggregated roles.
// Users without a role assignment default to student.
func (c *Connector) SyncUsers(ctx context.Context) (int, error) {
	if err := c.requireConnection("SyncUsers"); err != nil {
		return 0, err
	}

	rows, err := c.db.QueryContext(ctx, usersQuery)
	if err != nil {
		return 0, newConnectorError("SyncUsers", "query failed", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			user  memory.User
			roles sql.NullString
		)
		if err := rows.Scan(&user.MoodleID, &user.Username, &user.FirstName,
			&user.LastName, &user.Email, &user.LastAccess, &roles); err != nil {
			return count, newConnectorError("SyncUsers", "scan failed", err)
		}
		user.Role = "student"
		if roles.Valid && roles.String != "" {
			user.Role = roles.String
		}

		if err := c.store.SaveUser(ctx, user); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, newConnectorError("SyncUsers", "row iteration failed", err)
	}

	c.logger.Printf("Synced %d users", count)
	return count, nil
}

const enrollmentsQuery = `
	SELECT ue.userid, e.courseid, ue.status, ue.timestart, ue.timeend,
	       r.shortname as role
	FROM mdl_user_enrolments ue
	JOIN mdl_enrol e ON ue.enrolid = e.id
	LEFT JOIN mdl_role_assignments ra ON (ra.userid = ue.userid AND ra.contextid IN (
	    SELECT id FROM mdl_context WHERE contextlevel = 50 AND instanceid = e.courseid
	))
	LEFT JOIN mdl_role r ON ra.roleid = r.id
	WHERE ue.status = 0
	ORDER BY e.courseid, ue.userid`

// SyncEnrollments mirrors active enrollments, translating Moodle ids to
// local row ids. Enrollments whose user or course has not been synced
// yet are skipped, not failed.
func (c *Connector) SyncEnrollments(ctx context.Context) (int, error) {
	if err := c.requireConnection("SyncEnrollments"); err != nil {
		return 0, err
	}

	userIDs, courseIDs, err := c.localIDMaps(ctx)
	if err != nil {
		return 0, err
	}

	rows, err := c.db.QueryContext(ctx, enrollmentsQuery)
	if err != nil {
		return 0, newConnectorError("SyncEnrollments", "query failed", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			moodleUserID   int64
			moodleCourseID int64
			enrollment     memory.Enrollment
			role           sql.NullString
		)
		if err := rows.Scan(&moodleUserID, &moodleCourseID, &enrollment.Status,
			&enrollment.TimeStart, &enrollment.TimeEnd, &role); err != nil {
			return count, newConnectorError("SyncEnrollments", "scan failed", err)
		}

		userID, haveUser := userIDs[moodleUserID]
		courseID, haveCourse := courseIDs[moodleCourseID]
		if !haveUser || !haveCourse {
			continue
		}

		enrollment.UserID = userID
		enrollment.CourseID = courseID
		enrollment.Role = "student"
		if role.Valid && role.String != "" {
			enrollment.Role = role.String
		}

		if err := c.store.SaveEnrollment(ctx, enrollment); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, newConnectorError("SyncEnrollments", "row iteration failed", err)
	}

	c.logger.Printf("Synced %d enrollments", count)
	return count, nil
}

const questionsQuery = `
	SELECT q.id, qbe.questioncategoryid as category, q.name, q.questiontext, q.qtype,
	       q.defaultmark, q.penalty
	FROM mdl_question q
	JOIN mdl_question_versions qv ON q.id = qv.questionid
	JOIN mdl_question_bank_entries qbe ON qv.questionbankentryid = qbe.id
	WHERE qv.status = 'ready' AND q.parent = 0
	ORDER BY qbe.questioncategoryid, q.name`

// SyncQuestions mirrors ready top-level questions from the question bank.
func (c *Connector) SyncQuestions(ctx context.Context) (int, error) {
	if err := c.requireConnection("SyncQuestions"); err != nil {
		return 0, err
	}

	rows, err := c.db.QueryContext(ctx, questionsQuery)
	if err != nil {
		return 0, newConnectorError("SyncQuestions", "query failed", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var question memory.Question
		if err := rows.Scan(&question.MoodleID, &question.CategoryID, &question.Name,
			&question.QuestionText, &question.QType,
			&question.DefaultMark, &question.Penalty); err != nil {
			return count, newConnectorError("SyncQuestions", "scan failed", err)
		}

		if err := c.store.SaveQuestion(ctx, question); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, newConnectorError("SyncQuestions", "row iteration failed", err)
	}

	c.logger.Printf("Synced %d questions", count)
	return count, nil
}

const quizzesQuery = `
	SELECT q.id, q.course, q.name, q.intro, q.timeopen, q.timeclose,
	       q.timelimit, q.attempts
	FROM mdl_quiz q
	ORDER BY q.course, q.name`

// SyncQuizzes mirrors quizzes for courses that exist locally.
func (c *Connector) SyncQuizzes(ctx context.Context) (int, error) {
	if err := c.requireConnection("SyncQuizzes"); err != nil {
		return 0, err
	}

	courses, err := c.store.GetCourses(ctx)
	if err != nil {
		return 0, err
	}
	courseIDs := make(map[int64]int64, len(courses))
	for _, course := range courses {
		courseIDs[course.MoodleID] = course.ID
	}

	rows, err := c.db.QueryContext(ctx, quizzesQuery)
	if err != nil {
		return 0, newConnectorError("SyncQuizzes", "query failed", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			quiz           memory.Quiz
			moodleCourseID int64
		)
		if err := rows.Scan(&quiz.MoodleID, &moodleCourseID, &quiz.Name, &quiz.Intro,
			&quiz.TimeOpen, &quiz.TimeClose, &quiz.TimeLimit, &quiz.Attempts); err != nil {
			return count, newConnectorError("SyncQuizzes", "scan failed", err)
		}

		courseID, ok := courseIDs[moodleCourseID]
		if !ok {
			continue
		}
		quiz.CourseID = courseID

		if err := c.store.SaveQuiz(ctx, quiz); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, newConnectorError("SyncQuizzes", "row iteration failed", err)
	}

	c.logger.Printf("Synced %d quizzes", count)
	return count, nil
}

// localIDMaps loads moodle-id to local-id translations for users and
// courses.
func (c *Connector) localIDMaps(ctx context.Context) (map[int64]int64, map[int64]int64, error) {
	users, err := c.store.GetUsers(ctx)
	if err != nil {
		return nil, nil, err
	}
	courses, err := c.store.GetCourses(ctx)
	if err != nil {
		return nil, nil, err
	}

	userIDs := make(map[int64]int64, len(users))
	for _, u := range users {
		userIDs[u.MoodleID] = u.ID
	}
	courseIDs := make(map[int64]int64, len(courses))
	for _, course := range courses {
		courseIDs[course.MoodleID] = course.ID
	}
	return userIDs, courseIDs, nil
}

// FullSync runs every sync in dependency order: entities first, then the
// relations that reference them.
func (c *Connector) FullSync(ctx context.Context) (*SyncReport, error) {
	c.logger.Printf("Starting full Moodle sync")

	report := &SyncReport{}
	var err error

	if report.Courses, err = c.SyncCourses(ctx); err != nil {
		return report, err
	}
	if report.Users, err = c.SyncUsers(ctx); err != nil {
		return report, err
	}
	if report.Enrollments, err = c.SyncEnrollments(ctx); err != nil {
		return report, err
	}
	if report.Questions, err = c.SyncQuestions(ctx); err != nil {
		return report, err
	}
	if report.Quizzes, err = c.SyncQuizzes(ctx); err != nil {
		return report, err
	}

	c.logger.Printf("Full sync completed: %d courses, %d users, %d enrollments, %d questions, %d quizzes",
		report.Courses, report.Users, report.Enrollments, report.Questions, report.Quizzes)
	return report, nil
}
