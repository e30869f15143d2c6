package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-signals-crawler/internal/crawler"
)

const (
	maxDomainsPerJob = 50
	maxPagesLimit    = 500
	maxPageTimeoutMS = 120000
	enqueueTimeout   = 5 * time.Second
)

type scanRequest struct {
	Domains       []string `json:"domains"`
	MaxPages      *int     `json:"max_pages"`
	PageTimeoutMS *int     `json:"page_timeout_ms"`
}

type jobResponse struct {
	Job     crawler.Job            `json:"job"`
	Domains []crawler.DomainReport `json:"domains"`
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	params, err := s.toJobParameters(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.enqueueJob(r.Context(), params)
	if err != nil {
		s.logger.Error("submit scan failed", zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, crawler.ErrQueueClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, "failed to enqueue scan")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) toJobParameters(req scanRequest) (crawler.JobParameters, error) {
	domains := cleanDomains(req.Domains)
	if len(domains) == 0 {
		return crawler.JobParameters{}, errors.New("domains required")
	}
	if len(domains) > maxDomainsPerJob {
		return crawler.JobParameters{}, fmt.Errorf("at most %d domains per scan", maxDomainsPerJob)
	}
	params := crawler.JobParameters{
		Domains:       domains,
		MaxPages:      s.cfg.Crawler.MaxPages,
		PageTimeoutMS: s.cfg.Crawler.PageTimeoutMS,
	}
	if req.MaxPages != nil {
		if *req.MaxPages <= 0 || *req.MaxPages > maxPagesLimit {
			return crawler.JobParameters{}, fmt.Errorf("max_pages must be between 1 and %d", maxPagesLimit)
		}
		params.MaxPages = *req.MaxPages
	}
	if req.PageTimeoutMS != nil {
		if *req.PageTimeoutMS <= 0 || *req.PageTimeoutMS > maxPageTimeoutMS {
			return crawler.JobParameters{}, fmt.Errorf("page_timeout_ms must be between 1 and %d", maxPageTimeoutMS)
		}
		params.PageTimeoutMS = *req.PageTimeoutMS
	}
	return params, nil
}

// cleanDomains strips schemes, paths and slashes, dropping blanks and
// duplicates while keeping submission order.
func cleanDomains(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, d := range raw {
		clean := crawler.CleanDomain(d)
		if clean == "" || strings.ContainsAny(clean, " \t") {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

func (s *Server) enqueueJob(ctx context.Context, params crawler.JobParameters) (string, error) {
	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.deps.Clock.Now()
	job := crawler.Job{
		ID:         jobID,
		Status:     crawler.JobStatusQueued,
		Submitted:  now,
		Parameters: params,
	}
	if err := s.deps.JobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := crawler.QueueItem{
		JobID:     jobID,
		Params:    params,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.deps.Queue.Enqueue(queueCtx, item); err != nil {
		// Leave no job stuck in queued when nothing will ever pick it up.
		if updErr := s.deps.JobStore.UpdateJobStatus(context.WithoutCancel(ctx), jobID,
			crawler.JobStatusFailed, "enqueue failed", crawler.JobCounters{}); updErr != nil {
			s.logger.Warn("mark unqueued job failed", zap.String("job_id", jobID), zap.Error(updErr))
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	s.logger.Info("scan accepted", zap.String("job_id", jobID), zap.Strings("domains", params.Domains))
	return jobID, nil
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.JobStore.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, err, "job")
		return
	}
	domains, err := s.deps.JobStore.ListDomains(r.Context(), jobID)
	if err != nil {
		s.logger.Error("list job domains failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch job domains")
		return
	}
	if domains == nil {
		domains = []crawler.DomainReport{}
	}
	writeJSON(w, http.StatusOK, jobResponse{Job: job, Domains: domains})
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.JobStore.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, err, "job")
		return
	}
	if job.Status.Terminal() {
		writeError(w, http.StatusConflict, fmt.Sprintf("job already %s", job.Status))
		return
	}
	if err := s.deps.JobStore.UpdateJobStatus(
		r.Context(),
		jobID,
		crawler.JobStatusCanceled,
		"canceled via API",
		job.Counters,
	); err != nil {
		s.writeStoreError(w, err, "job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": jobID, "status": string(crawler.JobStatusCanceled)})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, crawler.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger.Error("store lookup failed", zap.String("resource", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "failed to load "+what)
}
