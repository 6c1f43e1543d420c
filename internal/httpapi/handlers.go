package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/thetangstr/vehiclesearch/domain"
	"github.com/thetangstr/vehiclesearch/infrastructure/breaker"
)

func newRequestID() string {
	return uuid.New().String()
}

// errorResponse is the JSON body returned for any non-2xx response.
type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, status, errorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		RequestID: requestIDFrom(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "the requested endpoint does not exist")
}

// handleHealth reports the current state of every registered source's
// circuit breaker alongside its own live Health() probe result.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot := s.engine.HealthSnapshot(r.Context())
	statuses := s.breaker.AllStatuses()

	type sourceHealth struct {
		Health  domain.Health   `json:"health"`
		Breaker breaker.Status `json:"breaker,omitempty"`
	}

	out := struct {
		Status  string                   `json:"status"`
		Sources map[string]sourceHealth `json:"sources"`
	}{Status: "ok", Sources: make(map[string]sourceHealth, len(snapshot))}

	byTag := make(map[string]breaker.Status)
	for _, st := range statuses {
		if st.Operation == "search" {
			byTag[st.Source] = st
		}
	}

	for tag, h := range snapshot {
		if h.State == domain.HealthUnhealthy {
			out.Status = "degraded"
		}
		out.Sources[tag] = sourceHealth{Health: h, Breaker: byTag[tag]}
	}

	s.writeJSON(w, http.StatusOK, out)
}

// handleSearch parses query parameters into a domain.SearchRequest and
// delegates to the orchestrator.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	filters := domain.FilterSet{
		Make: q.Get("make"),
	}
	if v := q.Get("year_min"); v != "" {
		filters.YearMin, _ = strconv.Atoi(v)
	}
	if v := q.Get("year_max"); v != "" {
		filters.YearMax, _ = strconv.Atoi(v)
	}
	if v := q.Get("price_max"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			filters.PriceMax = domain.PriceMinorUnits(n)
		}
	}
	if v := q.Get("mileage_max"); v != "" {
		filters.MileageMax, _ = strconv.Atoi(v)
	}

	req := domain.SearchRequest{
		Query:   q.Get("q"),
		Filters: filters,
		Page:    page,
		PerPage: perPage,
	}

	resp, err := s.orch.Search(r.Context(), req)
	if err != nil {
		if domain.KindOf(err) == domain.ErrKindValidation {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleGetDetails resolves a single listing by its (source, source_id) pair.
func (s *Server) handleGetDetails(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	listing, err := s.orch.GetDetails(r.Context(), vars["source"], vars["id"])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || domain.KindOf(err) == domain.ErrKindNotFound {
			s.writeError(w, r, http.StatusNotFound, "listing not found")
			return
		}
		s.writeError(w, r, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}
