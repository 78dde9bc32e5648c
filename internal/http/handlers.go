package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"ledger/internal/auth"
	"ledger/internal/core"
	"ledger/internal/log"
)

type outcomesResponse struct {
	Category string         `json:"category"`
	Outcomes []core.Outcome `json:"outcomes"`
}

type filteredOutcomesResponse struct {
	Category   string          `json:"category"`
	Filter     core.FilterKind `json:"filter"`
	Categories []core.Category `json:"categories"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady pings the store.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if s.store == nil {
		writeError(w, r, "ready", fmt.Errorf("%w: no store configured", core.ErrUnavailable))
		return
	}
	if err := s.store.Ping(ctx); err != nil {
		writeError(w, r, "ready", fmt.Errorf("%w: %v", core.ErrUnavailable, err))
		return
	}
	NewJSONResponse().Message("ready").Write(w)
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_response_time_microseconds Moving average response time\n")
	fmt.Fprintf(w, "# TYPE http_response_time_microseconds gauge\n")
	fmt.Fprintf(w, "http_response_time_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	cats, err := s.ledger.ListCategories(r.Context(), owner)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	NewJSONResponse().Data(cats).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	owner, _ := auth.OwnerFromContext(r.Context())
	c, err := s.ledger.CreateCategory(r.Context(), owner, req.Name)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/categories/"+url.PathEscape(c.Name)).
		Message("category created").
		Data(c).
		Write(w)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	c, err := s.ledger.GetCategory(r.Context(), owner, r.PathValue("name"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Data(c).Write(w)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var req renameCategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpRename, err)
		return
	}
	owner, _ := auth.OwnerFromContext(r.Context())
	c, err := s.ledger.RenameCategory(r.Context(), owner, r.PathValue("name"), req.NewName)
	if err != nil {
		writeError(w, r, log.OpRename, err)
		return
	}
	NewJSONResponse().Message("category name updated").Data(c).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.OwnerFromContext(r.Context())
	result, err := s.ledger.DeleteCategory(r.Context(), owner, r.PathValue("name"))
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	NewJSONResponse().Message("category deleted").Data(result).Write(w)
}

// handleIngestTransactions answers 200 when every item applied and 207
// Multi-Status when at least one failed.
func (s *Server) handleIngestTransactions(w http.ResponseWriter, r *http.Request) {
	var batch []core.BatchItem
	if err := decodeJSON(w, r, &batch); err != nil {
		writeError(w, r, log.OpIngest, err)
		return
	}
	owner, _ := auth.OwnerFromContext(r.Context())
	results, err := s.ledger.IngestTransactions(r.Context(), owner, batch)
	if err != nil {
		writeError(w, r, log.OpIngest, err)
		return
	}

	applied := 0
	for _, res := range results {
		if res.Applied {
			applied++
		}
	}
	status := http.StatusOK
	if applied < len(results) {
		status = http.StatusMultiStatus
	}
	NewJSONResponse().
		Status(status).
		Message(fmt.Sprintf("%d of %d items applied", applied, len(results))).
		Data(results).
		Write(w)
}

func (s *Server) handleGetOutcomes(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}
	owner, _ := auth.OwnerFromContext(r.Context())
	view, err := s.ledger.GetOutcomes(r.Context(), owner, r.PathValue("name"), filter)
	if err != nil {
		writeError(w, r, log.OpQuery, err)
		return
	}

	if filter == nil {
		outcomes := view.Outcomes
		if outcomes == nil {
			outcomes = []core.Outcome{}
		}
		NewJSONResponse().Data(outcomesResponse{Category: view.Category, Outcomes: outcomes}).Write(w)
		return
	}
	cats := view.Categories
	if cats == nil {
		cats = []core.Category{}
	}
	NewJSONResponse().Data(filteredOutcomesResponse{
		Category:   view.Category,
		Filter:     view.Filter,
		Categories: cats,
	}).Write(w)
}
