package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/internal/stats"
)

// StatsDependencies is the stat surface of a loaded entity.
type StatsDependencies interface {
	List(entityID int64) ([]types.Stat, bool)
	Add(entityID int64, name string, delta float64) (float64, error)
	TryUpdate(entityID int64, name string, delta float64) (float64, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	deps StatsDependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps StatsDependencies) *StatsHandler {
	return &StatsHandler{deps: deps}
}

type statsResponse struct {
	EntityID int64        `json:"entity_id"`
	Stats    []types.Stat `json:"stats"`
}

type statUpdateRequest struct {
	Delta  float64 `json:"delta"`
	Strict bool    `json:"strict"`
}

type statUpdateResponse struct {
	EntityID int64   `json:"entity_id"`
	Stat     string  `json:"stat"`
	Value    float64 `json:"value"`
}

type shortfallResponse struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	Stat      string  `json:"stat"`
	Shortfall float64 `json:"shortfall"`
}

// HandleGetStats handles GET /stats/{id} requests.
func (h *StatsHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_stats"
	id, err := entityID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	list, ok := h.deps.List(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", NewKind(op, ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{EntityID: id, Stats: list})
}

// HandleUpdateStat handles POST /stats/{id}/{field} requests.
func (h *StatsHandler) HandleUpdateStat(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_stat"
	id, err := entityID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	field := r.PathValue("field")
	var req statUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	var v float64
	if req.Strict {
		v, err = h.deps.TryUpdate(id, field, req.Delta)
	} else {
		v, err = h.deps.Add(id, field, req.Delta)
	}
	var short *stats.ShortfallError
	switch {
	case errors.As(err, &short):
		writeJSON(w, http.StatusConflict, shortfallResponse{
			Code:      "shortfall",
			Message:   short.Error(),
			Stat:      short.Stat,
			Shortfall: short.Shortfall,
		})
	case errors.Is(err, stats.ErrNonFinite):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case err != nil:
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	default:
		writeJSON(w, http.StatusOK, statUpdateResponse{EntityID: id, Stat: field, Value: v})
	}
}

func entityID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("entity id must be positive")
	}
	return id, nil
}
