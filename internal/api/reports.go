package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
	"github.com/JakeFAU/site-signals-crawler/internal/report"
)

const reportTimeout = 5 * time.Second

// ReportHandler exposes read-only report endpoints.
type ReportHandler struct {
	store   report.Store
	timeout time.Duration
	logger  *zap.Logger
}

// NewReportHandler wires the report store and logger.
func NewReportHandler(store report.Store, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{
		store:   store,
		timeout: reportTimeout,
		logger:  logger.Named("reports"),
	}
}

// GetReport handles GET /v1/reports/{report_id}?full=. Without full it
// returns the report row and cached metrics; with full=true the decoded
// seo/tech/security/site/pages sections are included.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r, func(ctx context.Context) (report.Report, error) {
		return h.store.GetReport(ctx, chi.URLParam(r, "report_id"))
	})
	if !ok {
		return
	}
	h.writeReport(w, r, rep)
}

// LatestForDomain handles GET /v1/domains/{domain}/latest?full=. The domain
// is cleaned the same way submissions are.
func (h *ReportHandler) LatestForDomain(w http.ResponseWriter, r *http.Request) {
	domain := crawler.CleanDomain(chi.URLParam(r, "domain"))
	if domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	rep, ok := h.load(w, r, func(ctx context.Context) (report.Report, error) {
		return h.store.LatestReport(ctx, domain)
	})
	if !ok {
		return
	}
	h.writeReport(w, r, rep)
}

// GetResult handles GET /v1/reports/{report_id}/result and returns the report
// in the crawl result shape consumed by the dashboard.
func (h *ReportHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r, func(ctx context.Context) (report.Report, error) {
		return h.store.GetReport(ctx, chi.URLParam(r, "report_id"))
	})
	if !ok {
		return
	}
	res, err := rep.Frontend()
	if err != nil {
		h.logger.Error("decode report failed", zap.String("report_id", rep.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to decode report")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// TrustedContact handles GET /v1/reports/{report_id}/trusted-contact and lists
// the emails and phones a user may pick as the verified contact.
func (h *ReportHandler) TrustedContact(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.load(w, r, func(ctx context.Context) (report.Report, error) {
		return h.store.GetReport(ctx, chi.URLParam(r, "report_id"))
	})
	if !ok {
		return
	}
	opts, err := report.TrustedContactOptions(rep)
	if err != nil {
		h.logger.Error("decode contacts failed", zap.String("report_id", rep.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to decode report")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report_id": rep.ID, "options": opts})
}

func (h *ReportHandler) load(
	w http.ResponseWriter,
	r *http.Request,
	get func(context.Context) (report.Report, error),
) (report.Report, bool) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "report store unavailable")
		return report.Report{}, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	rep, err := get(ctx)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return report.Report{}, false
		}
		h.logger.Error("load report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return report.Report{}, false
	}
	return rep, true
}

func (h *ReportHandler) writeReport(w http.ResponseWriter, r *http.Request, rep report.Report) {
	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))
	if !full {
		writeJSON(w, http.StatusOK, rep)
		return
	}
	out, err := rep.Full()
	if err != nil {
		h.logger.Error("decode report failed", zap.String("report_id", rep.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to decode report")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
