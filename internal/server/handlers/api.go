package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/karmalens/karmalens/internal/collectlog"
	"github.com/karmalens/karmalens/internal/core"
	"github.com/karmalens/karmalens/internal/core/reddit"
	apperrors "github.com/karmalens/karmalens/internal/errors"
	"github.com/karmalens/karmalens/internal/metrics"
)

const maxSnapshotLimit = 1000

// TrackingStore is the persistence surface the API needs.
type TrackingStore interface {
	AddTrackedUser(ctx context.Context, username string) (*core.TrackedUser, error)
	RemoveTrackedUser(ctx context.Context, username string) (bool, error)
	ListTrackedUsers(ctx context.Context) ([]core.TrackedUser, error)
	IsTracked(ctx context.Context, username string) (bool, error)
	LatestSnapshot(ctx context.Context, username string) (*core.Snapshot, error)
	ListSnapshots(ctx context.Context, username string, limit int) ([]core.Snapshot, error)
	LatestRun(ctx context.Context) (*core.CollectionRunMetrics, error)
	ListRuns(ctx context.Context, limit int) ([]core.CollectionRunMetrics, error)
}

// Collector runs single-user and full collections.
type Collector interface {
	CollectUser(ctx context.Context, username string) (*core.Snapshot, error)
	CollectAll(ctx context.Context) (*core.CollectionRunMetrics, error)
}

// API serves the tracking and collection endpoints.
type API struct {
	Store      TrackingStore
	Collector  Collector
	Log        *collectlog.Log
	CronSecret string
}

// SuccessResponse is the body of every successful API call.
type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// UserSummary is a tracked user with its latest snapshot, if any.
type UserSummary struct {
	Username string         `json:"username"`
	AddedAt  time.Time      `json:"added_at"`
	Latest   *core.Snapshot `json:"latest,omitempty"`
}

// LogsResponse is the body of GET /api/collection/logs.
type LogsResponse struct {
	Stats   collectlog.Stats   `json:"stats"`
	Entries []collectlog.Entry `json:"entries"`
}

// ReportResponse pairs the latest run with its recovery analysis.
type ReportResponse struct {
	Run      *core.CollectionRunMetrics `json:"run"`
	Analysis collectlog.Analysis        `json:"analysis"`
}

type addUserRequest struct {
	Username string `json:"username"`
}

// Routes mounts the API under r.
func (a *API) Routes(r chi.Router) {
	r.Post("/collect", a.CollectAll)
	r.Post("/collect/{username}", a.CollectUser)

	r.Get("/users", a.ListUsers)
	r.Post("/users", a.AddUser)
	r.Delete("/users/{username}", a.RemoveUser)
	r.Get("/users/{username}/snapshots", a.ListSnapshots)

	r.Get("/collection/logs", a.Logs)
	r.Delete("/collection/logs", a.ClearLogs)
	r.Get("/collection/runs", a.ListRuns)
	r.Get("/collection/report", a.Report)
}

// CollectAll runs a full collection. When a cron secret is configured the
// caller must present it as a bearer token.
func (a *API) CollectAll(w http.ResponseWriter, r *http.Request) {
	if !a.authorizedCron(r) {
		respondWithError(w, r, apperrors.NewUnauthorizedError("invalid or missing cron secret"))
		return
	}

	run, err := a.Collector.CollectAll(r.Context())
	metrics.RecordCommand("api_collect_all", err == nil)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInternal(r.Context(), err, "collection run failed"))
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// CollectUser fetches a fresh snapshot for one username.
func (a *API) CollectUser(w http.ResponseWriter, r *http.Request) {
	username, ok := a.usernameParam(w, r)
	if !ok {
		return
	}

	snapshot, err := a.Collector.CollectUser(r.Context(), username)
	metrics.RecordCommand("api_collect_user", err == nil)
	if err != nil {
		respondWithError(w, r, core.Classify(err, username))
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// ListUsers returns tracked users with their latest snapshots.
func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.Store.ListTrackedUsers(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list tracked users"))
		return
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, user := range users {
		latest, err := a.Store.LatestSnapshot(r.Context(), user.Username)
		if err != nil {
			respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to read latest snapshot"))
			return
		}
		summaries = append(summaries, UserSummary{Username: user.Username, AddedAt: user.AddedAt, Latest: latest})
	}
	metrics.SetTrackedUsers(len(users))
	respondJSON(w, http.StatusOK, summaries)
}

// AddUser starts tracking the username in the JSON body.
func (a *API) AddUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be JSON with a username"))
		return
	}

	username := reddit.NormalizeUsername(req.Username)
	if !reddit.ValidUsername(username) {
		respondWithError(w, r, apperrors.NewInvalidInputError("username must be 3-20 letters, digits, underscores or hyphens"))
		return
	}

	user, err := a.Store.AddTrackedUser(r.Context(), username)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to add tracked user"))
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

// RemoveUser stops tracking a username. Snapshots are kept.
func (a *API) RemoveUser(w http.ResponseWriter, r *http.Request) {
	username, ok := a.usernameParam(w, r)
	if !ok {
		return
	}

	removed, err := a.Store.RemoveTrackedUser(r.Context(), username)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to remove tracked user"))
		return
	}
	if !removed {
		respondWithError(w, r, apperrors.NewNotFoundError("user is not tracked"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"username": username})
}

// ListSnapshots returns snapshot history for a username, newest first.
func (a *API) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	username, ok := a.usernameParam(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	snapshots, err := a.Store.ListSnapshots(r.Context(), username, limit)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list snapshots"))
		return
	}
	respondJSON(w, http.StatusOK, snapshots)
}

// Logs returns buffered collection log entries, optionally filtered by level.
func (a *API) Logs(w http.ResponseWriter, r *http.Request) {
	level := collectlog.Level(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("level"))))
	switch level {
	case "", collectlog.LevelDebug, collectlog.LevelInfo, collectlog.LevelWarn, collectlog.LevelError:
	default:
		respondWithError(w, r, apperrors.NewInvalidInputError("level must be one of debug, info, warn, error"))
		return
	}

	entries := a.Log.Entries(level)
	if entries == nil {
		entries = []collectlog.Entry{}
	}
	respondJSON(w, http.StatusOK, LogsResponse{Stats: a.Log.Stats(), Entries: entries})
}

// ClearLogs empties the collection log buffer.
func (a *API) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if !a.authorizedCron(r) {
		respondWithError(w, r, apperrors.NewUnauthorizedError("invalid or missing cron secret"))
		return
	}
	a.Log.Clear()
	respondJSON(w, http.StatusOK, a.Log.Stats())
}

// ListRuns returns recent collection runs, newest first.
func (a *API) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}

	runs, err := a.Store.ListRuns(r.Context(), limit)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to list collection runs"))
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// Report returns the latest run with its recovery analysis.
func (a *API) Report(w http.ResponseWriter, r *http.Request) {
	run, err := a.Store.LatestRun(r.Context())
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to read latest run"))
		return
	}
	if run == nil {
		respondWithError(w, r, apperrors.NewNotFoundError("no collection runs recorded"))
		return
	}
	respondJSON(w, http.StatusOK, ReportResponse{Run: run, Analysis: collectlog.Analyze(run.Errors)})
}

func (a *API) usernameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	username := reddit.NormalizeUsername(chi.URLParam(r, "username"))
	if !reddit.ValidUsername(username) {
		respondWithError(w, r, apperrors.NewInvalidInputError("username must be 3-20 letters, digits, underscores or hyphens"))
		return "", false
	}
	return username, true
}

func (a *API) authorizedCron(r *http.Request) bool {
	if a.CronSecret == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(a.CronSecret)) == 1
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxSnapshotLimit {
		respondWithError(w, r, apperrors.NewInvalidInputError("limit must be between 1 and 1000"))
		return 0, false
	}
	return limit, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{Success: true, Data: data})
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}
