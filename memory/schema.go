// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package memory

// schema is applied on every open. All statements are idempotent so a
// restart against an existing database is a no-op.
const schema = `
CREATE TABLE IF NOT EXISTS courses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	moodle_id INTEGER NOT NULL UNIQUE,
	fullname TEXT NOT NULL,
	shortname TEXT NOT NULL,
	category_id INTEGER,
	summary TEXT,
	format TEXT,
	startdate INTEGER,
	enddate INTEGER,
	visible INTEGER NOT NULL DEFAULT 1,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	moodle_id INTEGER NOT NULL UNIQUE,
	username TEXT NOT NULL,
	firstname TEXT,
	lastname TEXT,
	email TEXT,
	role TEXT,
	last_access INTEGER,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	moodle_id INTEGER NOT NULL UNIQUE,
	category_id INTEGER,
	name TEXT NOT NULL,
	questiontext TEXT,
	qtype TEXT,
	defaultmark REAL,
	penalty REAL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS enrollments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	course_id INTEGER NOT NULL,
	role TEXT,
	status INTEGER NOT NULL DEFAULT 0,
	timestart INTEGER,
	timeend INTEGER,
	UNIQUE(user_id, course_id),
	FOREIGN KEY(user_id) REFERENCES users(id),
	FOREIGN KEY(course_id) REFERENCES courses(id)
);

CREATE TABLE IF NOT EXISTS quizzes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	moodle_id INTEGER NOT NULL UNIQUE,
	course_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	intro TEXT,
	timeopen INTEGER,
	timeclose INTEGER,
	timelimit INTEGER,
	attempts INTEGER,
	FOREIGN KEY(course_id) REFERENCES courses(id)
);

CREATE TABLE IF NOT EXISTS admin_patterns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern_type TEXT NOT NULL UNIQUE,
	pattern_data TEXT NOT NULL,
	frequency INTEGER NOT NULL DEFAULT 1,
	last_used TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ai_conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	user_input TEXT NOT NULL,
	ai_response TEXT NOT NULL,
	context_used TEXT,
	action_taken TEXT,
	ai_provider TEXT,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_conversations_session
	ON ai_conversations(session_id, created_at);

CREATE TABLE IF NOT EXISTS memory_context (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	context_type TEXT NOT NULL,
	entity_id INTEGER NOT NULL,
	context_data TEXT NOT NULL,
	relevance_score REAL NOT NULL DEFAULT 1.0,
	last_accessed TEXT NOT NULL DEFAULT (datetime('now')),
	UNIQUE(context_type, entity_id)
);
`
