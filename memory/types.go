// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// Course is a course row mirrored from the Moodle store. MoodleID is the
// natural key; ID is the local rowid. EnrolledUsers is computed on read.
type Course struct {
	ID            int64     `json:"id"`
	MoodleID      int64     `json:"moodle_id"`
	FullName      string    `json:"fullname"`
	ShortName     string    `json:"shortname"`
	CategoryID    int64     `json:"category_id"`
	Summary       string    `json:"summary"`
	Format        string    `json:"format"`
	StartDate     int64     `json:"startdate"`
	EndDate       int64     `json:"enddate"`
	Visible       bool      `json:"visible"`
	EnrolledUsers int       `json:"enrolled_users"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// User is a user row mirrored from the Moodle store. EnrolledCourses is
// computed on read.
type User struct {
	ID              int64     `json:"id"`
	MoodleID        int64     `json:"moodle_id"`
	Username        string    `json:"username"`
	FirstName       string    `json:"firstname"`
	LastName        string    `json:"lastname"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	LastAccess      int64     `json:"last_access"`
	EnrolledCourses int       `json:"enrolled_courses"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Question is a question-bank row mirrored from the Moodle store.
type Question struct {
	ID           int64     `json:"id"`
	MoodleID     int64     `json:"moodle_id"`
	CategoryID   int64     `json:"category_id"`
	Name         string    `json:"name"`
	QuestionText string    `json:"questiontext"`
	QType        string    `json:"qtype"`
	DefaultMark  float64   `json:"defaultmark"`
	Penalty      float64   `json:"penalty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Enrollment links a local user row to a local course row.
type Enrollment struct {
	UserID    int64  `json:"user_id"`
	CourseID  int64  `json:"course_id"`
	Role      string `json:"role"`
	Status    int    `json:"status"`
	TimeStart int64  `json:"timestart"`
	TimeEnd   int64  `json:"timeend"`
}

// Quiz is a quiz row mirrored from the Moodle store.
type Quiz struct {
	MoodleID  int64  `json:"moodle_id"`
	CourseID  int64  `json:"course_id"`
	Name      string `json:"name"`
	Intro     string `json:"intro"`
	TimeOpen  int64  `json:"timeopen"`
	TimeClose int64  `json:"timeclose"`
	TimeLimit int64  `json:"timelimit"`
	Attempts  int    `json:"attempts"`
}

// ConversationRecord is one turn of an operator/AI exchange. Records are
// append-only; the core never edits or deletes them.
type ConversationRecord struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	UserInput   string    `json:"user_input"`
	AIResponse  string    `json:"ai_response"`
	ContextUsed string    `json:"context_used,omitempty"`
	ActionTaken string    `json:"action_taken,omitempty"`
	Provider    string    `json:"ai_provider,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AdminPattern is a learned, frequency-weighted record of operator
// preferences for one action family. One row per pattern type.
type AdminPattern struct {
	PatternType string          `json:"pattern_type"`
	Data        json.RawMessage `json:"pattern_data"`
	Frequency   int             `json:"frequency"`
	LastUsed    time.Time       `json:"last_used"`
}

// ContextEntry is a persisted, scored snippet of entity data used to seed
// future prompt context.
type ContextEntry struct {
	ContextType    string          `json:"context_type"`
	EntityID       int64           `json:"entity_id"`
	Data           json.RawMessage `json:"context_data"`
	RelevanceScore float64         `json:"relevance_score"`
	LastAccessed   time.Time       `json:"last_accessed"`
}

// Stats holds row counts for the health/stats surface.
type Stats struct {
	Courses       int `json:"courses"`
	Users         int `json:"users"`
	Questions     int `json:"questions"`
	Conversations int `json:"conversations"`
}

// StoreError wraps a persistence failure with the operation that caused it.
// Store failures are always surfaced to callers; losing learned context
// silently is worse than a failed request.
type StoreError struct {
	Op      string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("memory store %s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("memory store %s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

func newStoreError(op, message string, cause error) *StoreError {
	return &StoreError{Op: op, Message: message, Cause: cause}
}
