package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jusunglee/mta-arrivals/internal/models"
	"github.com/jusunglee/mta-arrivals/internal/store"
	"github.com/jusunglee/mta-arrivals/pkg/mta"
	"github.com/jusunglee/mta-arrivals/web/views"
)

// NearbyLimit is the number of stations returned by /api/by-location
const NearbyLimit = 5

// Handler handles HTTP requests
type Handler struct {
	client mta.Client
	logger *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(client mta.Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{client: client, logger: logger}
}

// RegisterRoutes registers all routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.handleIndex).Methods("GET")
	r.HandleFunc("/healthz", h.handleHealth).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", h.handleStatus).Methods("GET")
	api.HandleFunc("/status/{ids}", h.handleStatus).Methods("GET")
	api.HandleFunc("/stations", h.handleStations).Methods("GET")
	api.HandleFunc("/stations/{id}", h.handleStation).Methods("GET")
	api.HandleFunc("/by-location", h.handleByLocation).Methods("GET")
	api.HandleFunc("/by-route/{route}", h.handleByRoute).Methods("GET")
	api.HandleFunc("/routes", h.handleRoutes).Methods("GET")
	api.HandleFunc("/routes/{route}", h.handleRouteInfo).Methods("GET")
}

// Response wraps API responses
type Response struct {
	Data interface{} `json:"data"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("stations")
	result, err := h.client.GetTrainStatus(r.Context(), parseStationIDs(query))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := views.StatusPage(views.StatusPageData{Query: query, Result: result})
	if err := page.Render(r.Context(), w); err != nil {
		h.logger.Error("rendering status page", slog.String("error", err.Error()))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stations, err := h.client.GetStations()
	if err != nil {
		h.writeError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, map[string]interface{}{
		"status":   "ok",
		"stations": len(stations),
	})
}

// handleStatus serves both ?stations=a,b and /status/a,b
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	raw, ok := mux.Vars(r)["ids"]
	if !ok {
		raw = r.URL.Query().Get("stations")
	}

	result, err := h.client.GetTrainStatus(r.Context(), parseStationIDs(raw))
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, result)
}

func (h *Handler) handleStations(w http.ResponseWriter, r *http.Request) {
	var stations []models.Station
	var err error
	if ids := parseStationIDs(r.URL.Query().Get("ids")); len(ids) > 0 {
		stations, err = h.client.GetStationsByIDs(ids)
	} else {
		stations, err = h.client.GetStations()
	}
	if err != nil {
		if errors.Is(err, store.ErrStationNotFound) {
			h.writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeStationsResponse(w, stations)
}

func (h *Handler) handleStation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	station, err := h.client.GetStation(id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrStationNotFound) {
			status = http.StatusNotFound
		}
		h.writeError(w, err.Error(), status)
		return
	}

	h.writeJSON(w, Response{Data: station})
}

func (h *Handler) handleByLocation(w http.ResponseWriter, r *http.Request) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")

	if latStr == "" || lonStr == "" {
		h.writeError(w, "Missing lat/lon parameter", http.StatusBadRequest)
		return
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		h.writeError(w, "Invalid lat parameter", http.StatusBadRequest)
		return
	}

	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		h.writeError(w, "Invalid lon parameter", http.StatusBadRequest)
		return
	}

	stations, err := h.client.GetStationsByLocation(lat, lon, NearbyLimit)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeStationsResponse(w, stations)
}

func (h *Handler) handleByRoute(w http.ResponseWriter, r *http.Request) {
	route := mux.Vars(r)["route"]

	stations, err := h.client.GetStationsByRoute(route)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusNotFound)
		return
	}

	h.writeStationsResponse(w, stations)
}

func (h *Handler) handleRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.client.GetRoutes()
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, Response{Data: routes})
}

func (h *Handler) handleRouteInfo(w http.ResponseWriter, r *http.Request) {
	route := strings.ToUpper(mux.Vars(r)["route"])
	h.writeJSON(w, Response{Data: h.client.GetRouteInfo(route)})
}

func (h *Handler) writeStationsResponse(w http.ResponseWriter, stations []models.Station) {
	if stations == nil {
		stations = []models.Station{}
	}
	h.writeJSON(w, Response{Data: stations})
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encoding response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// parseStationIDs splits a comma separated id list, dropping blanks
func parseStationIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
