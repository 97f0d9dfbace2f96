package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/minelist/status-sync/logutils"
	"github.com/minelist/status-sync/vote"
)

const (
	defaultVotesLimit = 50
	maxVotesLimit     = 500
	maxVoteBodyBytes  = 4096
)

type errorResponse struct {
	Error string `json:"error"`
}

type voteResponse struct {
	Status      string `json:"status"`
	ServerSlug  string `json:"serverSlug,omitempty"`
	RemainingMs int64  `json:"remainingMs,omitempty"`
	RewardSent  bool   `json:"rewardSent"`
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/text")
	s.write(w, r, http.StatusOK, []byte("ok\n"))
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.servers.GetAll(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, servers)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	srv, err := s.servers.GetOne(r.Context(), r.PathValue("slug"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if srv == nil {
		s.writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "unknown_server"})
		return
	}
	s.writeJSON(w, r, http.StatusOK, srv)
}

func (s *Server) handleListVotes(w http.ResponseWriter, r *http.Request) {
	limit := defaultVotesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid_limit"})
			return
		}
		limit = min(n, maxVotesLimit)
	}

	evts, err := s.store.ListVoteEvents(r.Context(), r.PathValue("slug"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, evts)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req vote.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVoteBodyBytes)).Decode(&req); err != nil {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid_request"})
		return
	}

	r = r.WithContext(logutils.ContextWithFields(r.Context(),
		zap.String("server_slug", req.ServerSlug),
		zap.String("username", req.Username),
	))

	outcome, err := s.votes.TryVote(r.Context(), req)
	if errors.Is(err, vote.ErrInvalidUsername) {
		s.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "invalid_username"})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res := voteResponse{
		Status:     outcome.Status.String(),
		ServerSlug: outcome.ServerSlug,
		RewardSent: outcome.RewardSent,
	}

	code := http.StatusOK
	switch outcome.Status {
	case vote.RejectedUnknownServer:
		code = http.StatusNotFound
	case vote.RejectedCooldownActive:
		code = http.StatusTooManyRequests
		res.RemainingMs = outcome.RemainingMs()
		w.Header().Set("Retry-After", strconv.FormatInt((res.RemainingMs+999)/1000, 10))
	case vote.RejectedInvalidSecret, vote.RejectedRewardsDisabled:
		code = http.StatusForbidden
	}

	s.writeJSON(w, r, code, res)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	logutils.LoggerFromRequest(r).Error("Request failed",
		zap.Error(err),
	)
	s.writeJSON(w, r, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logutils.LoggerFromRequest(r).Error("Failed to encode the response body",
			zap.Error(err),
		)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	s.write(w, r, code, body)
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, code int, body []byte) {
	w.WriteHeader(code)
	if _, err := w.Write(body); err != nil {
		logutils.LoggerFromRequest(r).Error("Failed to write the response body",
			zap.Error(err),
		)
	}
}
