package retrieval

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	apperrors "github.com/zsiec/framecast/internal/errors"
	"github.com/zsiec/framecast/internal/framestore"
)

// StatsResponse is served by GET /api/v1/frames.
type StatsResponse struct {
	Cache    framestore.Stats `json:"cache"`
	Pipeline interface{}      `json:"pipeline,omitempty"`
}

// Handlers exposes the retrieval service over HTTP.
type Handlers struct {
	service      *Service
	errorHandler *apperrors.ErrorHandler
	status       func() interface{}
}

// NewHandlers creates HTTP handlers. status, when non-nil, adds the capture
// loop's status to the stats response.
func NewHandlers(service *Service, errorHandler *apperrors.ErrorHandler, status func() interface{}) *Handlers {
	return &Handlers{service: service, errorHandler: errorHandler, status: status}
}

// RegisterRoutes registers the frame routes under /api/v1.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/frames", h.HandleStats).Methods("GET")
	api.HandleFunc("/frames/{seq}", h.HandleFrame).Methods("GET")
}

// HandleFrame serves GET /api/v1/frames/{seq}?width=W as image/jpeg.
func (h *Handlers) HandleFrame(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(mux.Vars(r)["seq"], 10, 64)
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationError("sequence must be a non-negative integer"))
		return
	}

	width := 0
	if v := r.URL.Query().Get("width"); v != "" {
		width, err = strconv.Atoi(v)
		if err != nil || width < 0 {
			h.errorHandler.HandleError(w, r, apperrors.NewValidationError("width must be a non-negative integer"))
			return
		}
	}

	data, err := h.service.Lookup(r.Context(), seq, width)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleStats serves GET /api/v1/frames.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Cache: h.service.Stats()}
	if h.status != nil {
		resp.Pipeline = h.status()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.errorHandler.HandleError(w, r, err)
	}
}
