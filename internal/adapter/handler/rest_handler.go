package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hive-corporation/actionables/internal/adapter/exporter"
	"github.com/hive-corporation/actionables/internal/core/domain"
	"github.com/hive-corporation/actionables/internal/core/ports"
	"github.com/hive-corporation/actionables/internal/core/tagging"
	"go.uber.org/zap"
)

// UserHeader carries the authenticated user name set by the front end proxy.
const UserHeader = "X-Remote-User"

const defaultPageSize = 50

// Checker reports whether a backing service is usable.
type Checker func(ctx context.Context) error

type RestHandler struct {
	store  ports.Store
	tags   *tagging.Engine
	groups map[string][]string
	ready  Checker
	logger *zap.Logger
}

func NewRestHandler(store ports.Store, tags *tagging.Engine, groups map[string][]string, ready Checker, logger *zap.Logger) *RestHandler {
	return &RestHandler{
		store:  store,
		tags:   tags,
		groups: groups,
		ready:  ready,
		logger: logger.Named("rest"),
	}
}

// Register mounts the API routes on r.
func (h *RestHandler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	api.HandleFunc("/indicators", h.ListIndicators).Methods(http.MethodGet)
	api.HandleFunc("/indicators/{id:[0-9]+}/sources", h.IndicatorSources).Methods(http.MethodGet)
	api.HandleFunc("/indicators/{id:[0-9]+}/status", h.StatusHistory).Methods(http.MethodGet)
	api.HandleFunc("/tags/bulk", h.BulkTags).Methods(http.MethodPost)
	api.HandleFunc("/contexts/{name}/history", h.ContextHistory).Methods(http.MethodGet)
	api.HandleFunc("/feed", h.Feed).Methods(http.MethodGet)
}

// Health check endpoint
func (h *RestHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "actionables-api",
	}
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			response["status"] = "unhealthy"
			response["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// ListIndicators serves one page of indicators with tags and active status.
func (h *RestHandler) ListIndicators(w http.ResponseWriter, r *http.Request) {
	q, err := h.indicatorQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var (
		views []domain.IndicatorView
		total int
	)
	err = h.store.View(ctx, func(ctx context.Context, repo ports.Repository) error {
		views, total, err = repo.ListIndicators(ctx, q)
		return err
	})
	if err != nil {
		h.logger.Error("failed to list indicators", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list indicators")
		return
	}

	items := make([]indicatorJSON, 0, len(views))
	for _, v := range views {
		items = append(items, toIndicatorJSON(v))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   total,
		"limit":   q.Limit,
		"offset":  q.Offset,
		"results": items,
	})
}

func (h *RestHandler) indicatorQuery(r *http.Request) (ports.IndicatorQuery, error) {
	v := r.URL.Query()
	q := ports.IndicatorQuery{
		Types:      v["type"],
		Search:     v.Get("search"),
		TagSearch:  v.Get("tag"),
		ActiveOnly: v.Get("active") == "true",
		SortBy:     v.Get("sort"),
		Descending: v.Get("order") == "desc",
		Limit:      defaultPageSize,
	}
	if g := v.Get("group"); g != "" {
		types, ok := h.groups[g]
		if !ok {
			return q, errors.New("unknown indicator group " + strconv.Quote(g))
		}
		q.Types = append(q.Types, types...)
	}
	var err error
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit < 0 {
			return q, errors.New("invalid 'limit' parameter")
		}
	}
	if s := v.Get("offset"); s != "" {
		if q.Offset, err = strconv.Atoi(s); err != nil || q.Offset < 0 {
			return q, errors.New("invalid 'offset' parameter")
		}
	}
	return q, nil
}

// IndicatorSources lists where an indicator was seen, with related entities.
func (h *RestHandler) IndicatorSources(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var out []sourceJSON
	err := h.store.View(ctx, func(ctx context.Context, repo ports.Repository) error {
		ind, err := repo.GetIndicator(ctx, id)
		if err != nil {
			return err
		}
		sources, err := repo.SourcesForTargets(ctx, []domain.Target{ind.Target()})
		if err != nil {
			return err
		}
		var entityIDs []int64
		for _, s := range sources {
			entityIDs = append(entityIDs, s.RelatedEntityIDs...)
		}
		entities, err := repo.EntitiesByIDs(ctx, entityIDs)
		if err != nil {
			return err
		}
		byID := make(map[int64]domain.StixEntity, len(entities))
		for _, e := range entities {
			byID[e.ID] = e
		}
		out = make([]sourceJSON, 0, len(sources))
		for _, s := range sources {
			out = append(out, toSourceJSON(s, byID))
		}
		return nil
	})
	if h.handleStoreError(w, err, "failed to load sources") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"indicator_id": id, "sources": out})
}

// StatusHistory lists every status an indicator went through, oldest first.
func (h *RestHandler) StatusHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var out []statusLinkJSON
	err := h.store.View(ctx, func(ctx context.Context, repo ports.Repository) error {
		ind, err := repo.GetIndicator(ctx, id)
		if err != nil {
			return err
		}
		links, err := repo.StatusHistory(ctx, ind.Target())
		if err != nil {
			return err
		}
		out = make([]statusLinkJSON, 0, len(links))
		for _, l := range links {
			st, err := repo.GetStatus(ctx, l.StatusID)
			if err != nil {
				return err
			}
			out = append(out, statusLinkJSON{
				ID:        l.ID,
				ActionID:  l.ActionID,
				Active:    l.Active,
				Timestamp: l.Timestamp,
				Status:    toStatusJSON(&st),
			})
		}
		return nil
	})
	if h.handleStoreError(w, err, "failed to load status history") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"indicator_id": id, "history": out})
}

// BulkTags adds or removes actionable tags on many targets at once.
func (h *RestHandler) BulkTags(w http.ResponseWriter, r *http.Request) {
	var body bulkTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	req, err := h.tags.Matcher().ParseBulkRequest(tagging.BulkInput{
		Action:      body.Action,
		Objects:     body.Objects,
		Tags:        body.Tags,
		CurrContext: body.CurrContext,
		Comment:     body.Comment,
		Kind:        domain.TargetKind(body.Kind),
		User:        r.Header.Get(UserHeader),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Kind != domain.TargetIndicator && req.Kind != domain.TargetImportInfo {
		writeError(w, http.StatusBadRequest, "unsupported target kind "+strconv.Quote(string(req.Kind)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var res tagging.BulkResult
	err = h.store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		var err error
		res, err = h.tags.BulkAction(ctx, repo, req)
		return err
	})
	if err != nil {
		h.logger.Error("bulk tag action failed",
			zap.String("action", req.Action.String()),
			zap.Int("targets", len(req.TargetIDs)),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "bulk tag action failed")
		return
	}

	h.logger.Info("bulk tag action",
		zap.String("action", req.Action.String()),
		zap.String("user", req.User),
		zap.Int("attached", res.Attached),
		zap.Int("detached", res.Detached),
		zap.Int("mirrored", res.Mirrored))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"action":   req.Action.String(),
		"attached": res.Attached,
		"detached": res.Detached,
		"mirrored": res.Mirrored,
		"history":  res.History,
	})
}

// ContextHistory lists the tag history of one context.
func (h *RestHandler) ContextHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var out []tagHistoryJSON
	err := h.store.View(ctx, func(ctx context.Context, repo ports.Repository) error {
		c, err := repo.GetContext(ctx, name)
		if err != nil {
			return err
		}
		entries, err := repo.TagHistory(ctx, c.Name)
		if err != nil {
			return err
		}
		out = make([]tagHistoryJSON, 0, len(entries))
		for _, e := range entries {
			out = append(out, tagHistoryJSON{
				Tag:        e.Tag.Name,
				TargetKind: string(e.Target.Kind),
				TargetID:   e.Target.ID,
				Action:     e.Action.String(),
				User:       e.User,
				Comment:    e.Comment,
				Timestamp:  e.Timestamp,
			})
		}
		return nil
	})
	if h.handleStoreError(w, err, "failed to load tag history") {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"context": name, "history": out})
}

// Feed exports active indicators for SIEM ingestion
func (h *RestHandler) Feed(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "stix"
	}
	feed, ok := exporter.FeedByName(format)
	if !ok {
		writeError(w, http.StatusBadRequest, "unsupported format (use 'cef' or 'stix')")
		return
	}
	q, err := h.indicatorQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q.ActiveOnly = true
	q.ExcludeFalsePositives = true
	if r.URL.Query().Get("limit") == "" {
		q.Limit = 0
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var views []domain.IndicatorView
	err = h.store.View(ctx, func(ctx context.Context, repo ports.Repository) error {
		views, _, err = repo.ListIndicators(ctx, q)
		return err
	})
	if err != nil {
		h.logger.Error("failed to load feed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export feed")
		return
	}

	data, err := feed.Render(views)
	if err != nil {
		h.logger.Error("failed to render feed", zap.String("format", format), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to export feed")
		return
	}
	w.Header().Set("Content-Type", feed.ContentType())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write feed response", zap.Error(err))
	}
}

// handleStoreError writes the error response and reports whether it did.
func (h *RestHandler) handleStoreError(w http.ResponseWriter, err error, msg string) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error(msg, zap.Error(err))
		writeError(w, http.StatusInternalServerError, msg)
	}
	return true
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
