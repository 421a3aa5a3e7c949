package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/internal/leaderboard"
)

// LeaderboardDependencies defines the interface for leaderboard operations
type LeaderboardDependencies interface {
	Top(ctx context.Context, board string, limit int) (types.Board, error)
}

// LeaderboardHandler handles leaderboard requests
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?board=all|weekly|daily&limit=N
// requests. A missing limit means the configured board size.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	q := r.URL.Query()

	board := q.Get("board")
	if board == "" {
		board = leaderboard.BoardAll
	}
	n := 0
	if limitStr := q.Get("limit"); limitStr != "" {
		var err error
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
		return
	}

	out, err := h.deps.Top(r.Context(), board, n)
	switch {
	case errors.Is(err, leaderboard.ErrUnknownBoard):
		writeError(w, http.StatusBadRequest, "unknown_board", WrapKind(op, ErrBadRequest, err))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}
