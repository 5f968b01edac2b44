// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package moodle

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MFTechStaffs/moodle-ai-assistant/memory"
)

// recordingStore captures writes and serves canned reads.
type recordingStore struct {
	savedCourses     []memory.Course
	savedUsers       []memory.User
	savedQuestions   []memory.Question
	savedEnrollments []memory.Enrollment
	savedQuizzes     []memory.Quiz

	existingCourses []memory.Course
	existingUsers   []memory.User
}

func (r *recordingStore) SaveCourse(ctx context.Context, c memory.Course) error {
	r.savedCourses = append(r.savedCourses, c)
	return nil
}

func (r *recordingStore) SaveUser(ctx context.Context, u memory.User) error {
	r.savedUsers = append(r.savedUsers, u)
	return nil
}

func (r *recordingStore) SaveQuestion(ctx context.Context, q memory.Question) error {
	r.savedQuestions = append(r.savedQuestions, q)
	return nil
}

func (r *recordingStore) SaveEnrollment(ctx context.Context, e memory.Enrollment) error {
	r.savedEnrollments = append(r.savedEnrollments, e)
	return nil
}

func (r *recordingStore) SaveQuiz(ctx context.Context, q memory.Quiz) error {
	r.savedQuizzes = append(r.savedQuizzes, q)
	return nil
}

func (r *recordingStore) GetCourses(ctx context.Context) ([]memory.Course, error) {
	return r.existingCourses, nil
}

func (r *recordingStore) GetUsers(ctx context.Context) ([]memory.User, error) {
	return r.existingUsers, nil
}

func newMockConnector(t *testing.T) (*Connector, sqlmock.Sqlmock, *recordingStore) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := &recordingStore{}
	return NewConnectorWithDB(db, store), mock, store
}

func TestSyncCourses(t *testing.T) {
	c, mock, store := newMockConnector(t)

	mock.ExpectQuery("FROM mdl_course").WillReturnRows(
		sqlmock.NewRows([]string{"id", "fullname", "shortname", "category", "summary", "format", "startdate", "enddate", "visible"}).
			AddRow(2, "Electronics Fundamentals", "ELEC101", 1, "Intro to circuits", "topics", 1735689600, 1751241600, 1).
			AddRow(3, "Hidden Course", "HID1", 1, "", "weeks", 0, 0, 0),
	)

	count, err := c.SyncCourses(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2, count)
	require.Len(t, store.savedCourses, 2)
	assert.Equal(t, int64(2), store.savedCourses[0].MoodleID)
	assert.Equal(t, "Electronics Fundamentals", store.savedCourses[0].FullName)
	assert.True(t, store.savedCourses[0].Visible)
	assert.False(t, store.savedCourses[1].Visible)
}

func TestSyncUsersDefaultsRoleToStudent(t *testing.T) {
	c, mock, store := newMockConnector(t)

	mock.ExpectQuery("FROM mdl_user").WillReturnRows(
		sqlmock.NewRows([]string{"id", "username", "firstname", "lastname", "email", "lastaccess", "roles"}).
			AddRow(5, "jdoe", "Jane", "Doe", "jane@example.com", 1735689600, "editingteacher").
			AddRow(6, "bsmith", "Bob", "Smith", "bob@example.com", 0, nil),
	)

	count, err := c.SyncUsers(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 2, count)
	require.Len(t, store.savedUsers, 2)
	assert.Equal(t, "editingteacher", store.savedUsers[0].Role)
	assert.Equal(t, "student", store.savedUsers[1].Role)
}

func TestSyncEnrollmentsSkipsUnsyncedEntities(t *testing.T) {
	c, mock, store := newMockConnector(t)
	store.existingUsers = []memory.User{{ID: 10, MoodleID: 5}}
	store.existingCourses = []memory.Course{{ID: 20, MoodleID: 2}}

	mock.ExpectQuery("FROM mdl_user_enrolments").WillReturnRows(
		sqlmock.NewRows([]string{"userid", "courseid", "status", "timestart", "timeend", "role"}).
			AddRow(5, 2, 0, 100, 200, "student").
			AddRow(99, 2, 0, 100, 200, nil), // user 99 never synced
	)

	count, err := c.SyncEnrollments(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, count)
	require.Len(t, store.savedEnrollments, 1)
	assert.Equal(t, int64(10), store.savedEnrollments[0].UserID)
	assert.Equal(t, int64(20), store.savedEnrollments[0].CourseID)
	assert.Equal(t, "student", store.savedEnrollments[0].Role)
}

func TestSyncQuestions(t *testing.T) {
	c, mock, store := newMockConnector(t)

	mock.ExpectQuery("FROM mdl_question").WillReturnRows(
		sqlmock.NewRows([]string{"id", "category", "name", "questiontext", "qtype", "defaultmark", "penalty"}).
			AddRow(7, 3, "Ohm's Law", "What is V=IR?", "multichoice", 2.0, 0.33),
	)

	count, err := c.SyncQuestions(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, count)
	require.Len(t, store.savedQuestions, 1)
	assert.Equal(t, int64(7), store.savedQuestions[0].MoodleID)
	assert.Equal(t, int64(3), store.savedQuestions[0].CategoryID)
	assert.Equal(t, "multichoice", store.savedQuestions[0].QType)
}

func TestSyncQuizzesSkipsUnknownCourses(t *testing.T) {
	c, mock, store := newMockConnector(t)
	store.existingCourses = []memory.Course{{ID: 20, MoodleID: 2}}

	mock.ExpectQuery("FROM mdl_quiz").WillReturnRows(
		sqlmock.NewRows([]string{"id", "course", "name", "intro", "timeopen", "timeclose", "timelimit", "attempts"}).
			AddRow(11, 2, "Week 1 Quiz", "Basics", 0, 0, 3600, 3).
			AddRow(12, 99, "Orphan Quiz", "", 0, 0, 0, 0),
	)

	count, err := c.SyncQuizzes(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, count)
	require.Len(t, store.savedQuizzes, 1)
	assert.Equal(t, int64(20), store.savedQuizzes[0].CourseID)
}

func TestSyncRequiresConnection(t *testing.T) {
	c := NewConnector(Config{}, &recordingStore{})

	_, err := c.SyncCourses(context.Background())
	require.Error(t, err)

	var connErr *ConnectorError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "SyncCourses", connErr.Op)
}

func TestSyncCoursesQueryError(t *testing.T) {
	c, mock, _ := newMockConnector(t)

	mock.ExpectQuery("FROM mdl_course").WillReturnError(errors.New("connection lost"))

	_, err := c.SyncCourses(context.Background())
	require.Error(t, err)

	var connErr *ConnectorError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorContains(t, err, "connection lost")
}

func TestFullSyncRunsInDependencyOrder(t *testing.T) {
	c, mock, store := newMockConnector(t)
	store.existingUsers = []memory.User{{ID: 10, MoodleID: 5}}
	store.existingCourses = []memory.Course{{ID: 20, MoodleID: 2}}

	mock.ExpectQuery("FROM mdl_course").WillReturnRows(
		sqlmock.NewRows([]string{"id", "fullname", "shortname", "category", "summary", "format", "startdate", "enddate", "visible"}).
			AddRow(2, "Electronics Fundamentals", "ELEC101", 1, "", "topics", 0, 0, 1),
	)
	mock.ExpectQuery("FROM mdl_user").WillReturnRows(
		sqlmock.NewRows([]string{"id", "username", "firstname", "lastname", "email", "lastaccess", "roles"}).
			AddRow(5, "jdoe", "Jane", "Doe", "jane@example.com", 0, "manager"),
	)
	mock.ExpectQuery("FROM mdl_user_enrolments").WillReturnRows(
		sqlmock.NewRows([]string{"userid", "courseid", "status", "timestart", "timeend", "role"}).
			AddRow(5, 2, 0, 0, 0, "student"),
	)
	mock.ExpectQuery("FROM mdl_question").WillReturnRows(
		sqlmock.NewRows([]string{"id", "category", "name", "questiontext", "qtype", "defaultmark", "penalty"}),
	)
	mock.ExpectQuery("FROM mdl_quiz").WillReturnRows(
		sqlmock.NewRows([]string{"id", "course", "name", "intro", "timeopen", "timeclose", "timelimit", "attempts"}),
	)

	report, err := c.FullSync(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, 1, report.Courses)
	assert.Equal(t, 1, report.Users)
	assert.Equal(t, 1, report.Enrollments)
	assert.Equal(t, 0, report.Questions)
	assert.Equal(t, 0, report.Quizzes)
}
