package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/destiny-client/pkg/cache"
	"github.com/Sternrassler/destiny-client/pkg/client"
	"github.com/Sternrassler/destiny-client/pkg/logging"
	"github.com/Sternrassler/destiny-client/pkg/manifest"
	"github.com/Sternrassler/destiny-client/pkg/metrics"
	"github.com/Sternrassler/destiny-client/pkg/raidhub"
)

// Payload freshness. Carnage reports never change once written; rosters do.
const (
	pgcrMaxAge        = 7 * 24 * time.Hour
	clanMembersMaxAge = time.Hour
	maxSearchLimit    = 100
)

// bungieAPI is the part of the client the handlers use.
type bungieAPI interface {
	GetPostGameCarnageReport(ctx context.Context, activityID string) (json.RawMessage, error)
	GetAllGroupMembers(ctx context.Context, groupID string) ([]client.GroupMember, error)
}

type server struct {
	bungie       bungieAPI
	items        *manifest.Cache
	payloads     *cache.Manager
	leaderboards *raidhub.Leaderboards
	logger       zerolog.Logger
}

func newServer(bungie bungieAPI, items *manifest.Cache, payloads *cache.Manager, leaderboards *raidhub.Leaderboards) *server {
	return &server{
		bungie:       bungie,
		items:        items,
		payloads:     payloads,
		leaderboards: leaderboards,
		logger:       logging.NewLogger("http"),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /items/search", s.searchHandler)
	mux.HandleFunc("GET /items/{id}", s.itemHandler)
	mux.HandleFunc("GET /pgcr/{id}", s.pgcrHandler)
	mux.HandleFunc("GET /clans/{id}/members", s.clanMembersHandler)
	mux.HandleFunc("GET /leaderboards/{kind}", s.leaderboardHandler)
	return mux
}

// healthHandler reports the manifest status; 503 until it is ready.
func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := s.items.Status()
	code := http.StatusOK
	if status.State != manifest.StateReady {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

func (s *server) searchHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxSearchLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	results, err := s.items.Search(r.URL.Query().Get("q"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *server) itemHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "item id must be an unsigned 32-bit integer")
		return
	}

	item, ok, err := s.items.GetByID(uint32(id))
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, item)
}

func (s *server) pgcrHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		s.writeError(w, http.StatusBadRequest, "activity id must be numeric")
		return
	}

	key := cache.CacheKey{Endpoint: "pgcr", PathParams: map[string]string{"id": id}}.String()
	entry, err := s.payloads.GetOrFetch(r.Context(), key, pgcrMaxAge, func(ctx context.Context) (json.RawMessage, error) {
		return s.bungie.GetPostGameCarnageReport(ctx, id)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writePayload(w, entry)
}

func (s *server) clanMembersHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		s.writeError(w, http.StatusBadRequest, "group id must be numeric")
		return
	}

	key := cache.CacheKey{Endpoint: "clan/members", PathParams: map[string]string{"group": id}}.String()
	entry, err := s.payloads.GetOrFetch(r.Context(), key, clanMembersMaxAge, func(ctx context.Context) (json.RawMessage, error) {
		members, err := s.bungie.GetAllGroupMembers(ctx, id)
		if err != nil {
			return nil, err
		}
		return json.Marshal(members)
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writePayload(w, entry)
}

func (s *server) leaderboardHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := raidhub.LeaderboardQuery{
		Kind:     raidhub.LeaderboardKind(r.PathValue("kind")),
		Raid:     query.Get("raid"),
		Category: query.Get("category"),
		Activity: query.Get("activity"),
		Version:  query.Get("version"),
		Column:   query.Get("column"),
	}
	for name, dst := range map[string]*int{"page": &q.Page, "count": &q.Count} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, name+" must be a positive integer")
			return
		}
		*dst = n
	}

	page, err := s.leaderboards.Get(r.Context(), q)
	if err != nil {
		s.fail(w, err)
		return
	}
	if page.Stale {
		w.Header().Set("X-Cache-Stale", "true")
	}
	s.writePayload(w, page.Entry)
}

// fail maps an error to a status code.
func (s *server) fail(w http.ResponseWriter, err error) {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, manifest.ErrEmptyQuery):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, raidhub.ErrInvalidQuery):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, manifest.ErrNotInitialized), errors.Is(err, raidhub.ErrNotConfigured):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound,
		raidhub.StatusCode(err) == http.StatusNotFound:
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
	default:
		s.logger.Warn().Err(err).Msg("Upstream request failed")
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *server) writePayload(w http.ResponseWriter, entry *cache.Entry) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache-Fetched-At", entry.FetchedAt.UTC().Format(time.RFC3339))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(entry.Payload); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to write response")
	}
}

func (s *server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
