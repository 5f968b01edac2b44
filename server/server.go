// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the assistant over HTTP: query and action
// endpoints, context building, Moodle sync triggers, pattern storage,
// and read access to the mirrored Moodle data.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/MFTechStaffs/moodle-ai-assistant/ai"
	"github.com/MFTechStaffs/moodle-ai-assistant/assembler"
	"github.com/MFTechStaffs/moodle-ai-assistant/memory"
	"github.com/MFTechStaffs/moodle-ai-assistant/moodle"
	"github.com/MFTechStaffs/moodle-ai-assistant/shared/logger"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

const (
	defaultHistoryLimit = 10
	defaultContextLimit = 5
)

// AIService is the orchestration surface the HTTP layer drives.
type AIService interface {
	ProcessQuery(ctx context.Context, query, sessionID string) (*ai.Response, error)
	ExecuteAction(ctx context.Context, action string, params map[string]any, sessionID string) (*ai.ActionResult, error)
	Stats(ctx context.Context) (*ai.ServiceStats, error)
}

// ContextService builds prompt context, persists finished exchanges, and
// records operator preferences.
type ContextService interface {
	BuildContext(ctx context.Context, query, sessionID string) (string, []assembler.ContextItem, error)
	SaveInteraction(ctx context.Context, sessionID, userInput, aiResponse string, contextUsed []assembler.ContextItem, actionTaken, provider string) error
	LearnFromInteraction(ctx context.Context, actionType string, preferences any) error
}

// DataStore is the read/write surface of the local mirror the handlers
// need.
type DataStore interface {
	GetStats(ctx context.Context) (*memory.Stats, error)
	GetCourses(ctx context.Context) ([]memory.Course, error)
	GetUsers(ctx context.Context) ([]memory.User, error)
	GetQuestions(ctx context.Context, categoryID int64) ([]memory.Question, error)
	GetConversationHistory(ctx context.Context, sessionID string, limit int) ([]memory.ConversationRecord, error)
	GetAdminPattern(ctx context.Context, patternType string) (*memory.AdminPattern, error)
	SaveAdminPattern(ctx context.Context, patternType string, data any) error
	GetRelevantContext(ctx context.Context, contextType string, limit int) ([]memory.ContextEntry, error)
}

// SyncService mirrors Moodle tables into the local store.
type SyncService interface {
	Connect(ctx context.Context) error
	FullSync(ctx context.Context) (*moodle.SyncReport, error)
	SyncCourses(ctx context.Context) (int, error)
	Close() error
}

// ConnectorFactory builds a sync connector for a Moodle database config.
// Sync endpoints accept per-request credentials so one assistant can be
// pointed at different Moodle instances.
type ConnectorFactory func(cfg moodle.Config) SyncService

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	aiService    AIService
	contexts     ContextService
	store        DataStore
	newConnector ConnectorFactory
	moodleCfg    moodle.Config
	origins      []string
	log          *logger.Logger
}

// NewServer wires the HTTP surface. moodleCfg is the default sync target
// used when a sync request carries no config of its own.
func NewServer(aiService AIService, contexts ContextService, store DataStore, factory ConnectorFactory, moodleCfg moodle.Config, origins []string) *Server {
	return &Server{
		aiService:    aiService,
		contexts:     contexts,
		store:        store,
		newConnector: factory,
		moodleCfg:    moodleCfg,
		origins:      origins,
		log:          logger.New("http"),
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/stats", s.handleStats).Methods("GET")

	router.HandleFunc("/api/ai/query", s.handleQuery).Methods("POST")
	router.HandleFunc("/api/ai/action", s.handleAction).Methods("POST")
	router.HandleFunc("/api/ai/stats", s.handleAIStats).Methods("GET")

	router.HandleFunc("/api/context/build", s.handleContextBuild).Methods("POST")
	router.HandleFunc("/api/context/save", s.handleContextSave).Methods("POST")
	router.HandleFunc("/api/context/learn", s.handleContextLearn).Methods("POST")
	router.HandleFunc("/api/context/{type}", s.handleContextEntries).Methods("GET")

	router.HandleFunc("/api/sync/full", s.handleSyncFull).Methods("POST")
	router.HandleFunc("/api/sync/courses", s.handleSyncCourses).Methods("POST")

	router.HandleFunc("/api/patterns/{type}", s.handleGetPattern).Methods("GET")
	router.HandleFunc("/api/patterns/{type}", s.handleSavePattern).Methods("POST")

	router.HandleFunc("/api/conversations/{sessionId}", s.handleConversations).Methods("GET")

	router.HandleFunc("/api/moodle/courses", s.handleCourses).Methods("GET")
	router.HandleFunc("/api/moodle/users", s.handleUsers).Methods("GET")
	router.HandleFunc("/api/moodle/questions", s.handleQuestions).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Endpoint not found", http.StatusNotFound)
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.log.ErrorWithCode("", requestID, "stats query failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAIStats(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	stats, err := s.aiService.Stats(r.Context())
	if err != nil {
		s.log.ErrorWithCode("", requestID, "ai stats query failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" || req.SessionID == "" {
		writeError(w, "Query and sessionId are required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	resp, err := s.aiService.ProcessQuery(r.Context(), req.Query, req.SessionID)
	if err != nil {
		s.log.ErrorWithCode(req.SessionID, requestID, "query processing failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to process query", http.StatusInternalServerError)
		return
	}

	s.log.InfoWithDuration(req.SessionID, requestID, "query processed",
		float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"provider": resp.Provider,
		})
	writeJSON(w, http.StatusOK, resp)
}

type actionRequest struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
	SessionID  string         `json:"sessionId"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Action == "" || req.SessionID == "" {
		writeError(w, "Action and sessionId are required", http.StatusBadRequest)
		return
	}

	result, err := s.aiService.ExecuteAction(r.Context(), req.Action, req.Parameters, req.SessionID)
	if err != nil {
		if errors.Is(err, ai.ErrUnknownAction) {
			writeError(w, "Unknown action: "+req.Action, http.StatusBadRequest)
			return
		}
		s.log.ErrorWithCode(req.SessionID, requestID, "action execution failed", http.StatusInternalServerError, err, map[string]interface{}{
			"action": req.Action,
		})
		writeError(w, "Failed to execute action", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleContextBuild(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" || req.SessionID == "" {
		writeError(w, "Query and sessionId are required", http.StatusBadRequest)
		return
	}

	contextBlock, _, err := s.contexts.BuildContext(r.Context(), req.Query, req.SessionID)
	if err != nil {
		s.log.ErrorWithCode(req.SessionID, requestID, "context build failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to build context", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"context": contextBlock})
}

type contextSaveRequest struct {
	SessionID   string                  `json:"sessionId"`
	UserInput   string                  `json:"userInput"`
	AIResponse  string                  `json:"aiResponse"`
	ContextUsed []assembler.ContextItem `json:"contextUsed"`
	ActionTaken string                  `json:"actionTaken"`
	Provider    string                  `json:"provider"`
}

func (s *Server) handleContextSave(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	var req contextSaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := s.contexts.SaveInteraction(r.Context(), req.SessionID, req.UserInput,
		req.AIResponse, req.ContextUsed, req.ActionTaken, req.Provider)
	if err != nil {
		s.log.ErrorWithCode(req.SessionID, requestID, "interaction save failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to save interaction", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type contextLearnRequest struct {
	ActionType  string          `json:"actionType"`
	Preferences json.RawMessage `json:"preferences"`
	SessionID   string          `json:"sessionId"`
}

func (s *Server) handleContextLearn(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	var req contextLearnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ActionType == "" {
		writeError(w, "actionType is required", http.StatusBadRequest)
		return
	}

	if err := s.contexts.LearnFromInteraction(r.Context(), req.ActionType, req.Preferences); err != nil {
		s.log.ErrorWithCode(req.SessionID, requestID, "preference save failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to save preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleContextEntries(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	contextType := mux.Vars(r)["type"]

	limit := defaultContextLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.store.GetRelevantContext(r.Context(), contextType, limit)
	if err != nil {
		s.log.ErrorWithCode("", requestID, "context lookup failed", http.StatusInternalServerError, err, map[string]interface{}{
			"context_type": contextType,
		})
		writeError(w, "Failed to get context", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []memory.ContextEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type syncRequest struct {
	MoodleConfig *moodle.Config `json:"moodleConfig"`
}

func (s *Server) handleSyncFull(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.MoodleConfig == nil {
		writeError(w, "Moodle configuration required", http.StatusBadRequest)
		return
	}

	conn := s.newConnector(*req.MoodleConfig)
	defer conn.Close()

	if err := conn.Connect(r.Context()); err != nil {
		s.log.ErrorWithCode("", requestID, "moodle connection failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to connect to Moodle database", http.StatusInternalServerError)
		return
	}

	report, err := conn.FullSync(r.Context())
	if err != nil {
		s.log.ErrorWithCode("", requestID, "full sync failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Sync failed", http.StatusInternalServerError)
		return
	}

	s.log.Info("", requestID, "full sync complete", map[string]interface{}{
		"courses": report.Courses,
		"users":   report.Users,
	})
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleSyncCourses(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	cfg := s.moodleCfg
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.MoodleConfig != nil {
		cfg = *req.MoodleConfig
	}

	conn := s.newConnector(cfg)
	defer conn.Close()

	if err := conn.Connect(r.Context()); err != nil {
		s.log.ErrorWithCode("", requestID, "moodle connection failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to connect to Moodle database", http.StatusInternalServerError)
		return
	}

	count, err := conn.SyncCourses(r.Context())
	if err != nil {
		s.log.ErrorWithCode("", requestID, "course sync failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Sync failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"courses": count})
}

func (s *Server) handleGetPattern(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	patternType := mux.Vars(r)["type"]

	pattern, err := s.store.GetAdminPattern(r.Context(), patternType)
	if err != nil {
		s.log.ErrorWithCode("", requestID, "pattern lookup failed", http.StatusInternalServerError, err, map[string]interface{}{
			"pattern_type": patternType,
		})
		writeError(w, "Failed to get pattern", http.StatusInternalServerError)
		return
	}
	if pattern == nil {
		writeError(w, "Pattern not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pattern)
}

func (s *Server) handleSavePattern(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	patternType := mux.Vars(r)["type"]

	var req struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Data) == 0 {
		writeError(w, "Pattern data required", http.StatusBadRequest)
		return
	}

	if err := s.store.SaveAdminPattern(r.Context(), patternType, req.Data); err != nil {
		s.log.ErrorWithCode("", requestID, "pattern save failed", http.StatusInternalServerError, err, map[string]interface{}{
			"pattern_type": patternType,
		})
		writeError(w, "Failed to save pattern", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	sessionID := mux.Vars(r)["sessionId"]

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.store.GetConversationHistory(r.Context(), sessionID, limit)
	if err != nil {
		s.log.ErrorWithCode(sessionID, requestID, "history lookup failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to get conversations", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []memory.ConversationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	courses, err := s.store.GetCourses(r.Context())
	if err != nil {
		s.log.ErrorWithCode("", requestID, "course lookup failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to get courses", http.StatusInternalServerError)
		return
	}
	if courses == nil {
		courses = []memory.Course{}
	}
	writeJSON(w, http.StatusOK, courses)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	users, err := s.store.GetUsers(r.Context())
	if err != nil {
		s.log.ErrorWithCode("", requestID, "user lookup failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to get users", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []memory.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()

	var categoryID int64
	if v := r.URL.Query().Get("category"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, "Invalid category id", http.StatusBadRequest)
			return
		}
		categoryID = id
	}

	questions, err := s.store.GetQuestions(r.Context(), categoryID)
	if err != nil {
		s.log.ErrorWithCode("", requestID, "question lookup failed", http.StatusInternalServerError, err, nil)
		writeError(w, "Failed to get questions", http.StatusInternalServerError)
		return
	}
	if questions == nil {
		questions = []memory.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
