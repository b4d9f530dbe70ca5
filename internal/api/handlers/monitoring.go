package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/core/aggregator"
	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	apperrors "github.com/featureops/fsmon-backend-go/pkg/errors"
	"github.com/featureops/fsmon-backend-go/pkg/utils"
	"github.com/gin-gonic/gin"
)

// observationRequest is the wire shape for submitting an observation.
// Field checks live in the metric store so error messages name fields
// consistently across transports.
type observationRequest struct {
	Subject     string            `json:"subject"`
	SubjectKind string            `json:"subject_kind"`
	MetricName  string            `json:"metric_name"`
	Value       float64           `json:"value"`
	Unit        string            `json:"unit,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Tenant      string            `json:"tenant,omitempty"`
	Timestamp   *time.Time        `json:"timestamp,omitempty"`
}

// SubmitObservation records a metric observation
func (h *Handlers) SubmitObservation(c *gin.Context) {
	var req observationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	obs := &models.MetricObservation{
		Subject:     req.Subject,
		SubjectKind: models.SubjectKind(req.SubjectKind),
		MetricName:  req.MetricName,
		Value:       req.Value,
		Tenant:      req.Tenant,
	}
	if req.Timestamp != nil {
		obs.Timestamp = req.Timestamp.UTC()
	}
	if req.Unit != "" {
		obs.Unit.String = req.Unit
		obs.Unit.Valid = true
	}
	if len(req.Labels) > 0 {
		labels, err := json.Marshal(req.Labels)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "Invalid labels")
			return
		}
		obs.Labels = labels
	}

	if err := h.gateway.SubmitObservation(c.Request.Context(), obs); err != nil {
		utils.SendAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.Response{
		Success:   true,
		Data:      obs,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// ListObservations queries stored observations
func (h *Handlers) ListObservations(c *gin.Context) {
	filter, err := parseMetricFilter(c)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	observations, err := h.metrics.Query(c.Request.Context(), filter)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	total, err := h.metrics.Count(c.Request.Context(), filter)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccessWithMeta(c, observations, utils.PageMeta{
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// Dashboard returns the monitoring summary view
func (h *Handlers) Dashboard(c *gin.Context) {
	summary, err := h.aggregator.Dashboard(c.Request.Context(), c.Query("tenant"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccess(c, summary)
}

// TimeSeries returns bucketed rollups for a metric
func (h *Handlers) TimeSeries(c *gin.Context) {
	req := aggregator.TimeSeriesRequest{
		MetricName:  c.Param("metric_name"),
		Subject:     c.Query("subject"),
		SubjectKind: models.SubjectKind(c.Query("subject_kind")),
		Tenant:      c.Query("tenant"),
	}

	var err error
	req.Start, req.End, err = parseTimeRange(c)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	if req.Start.IsZero() || req.End.IsZero() {
		req.End = time.Now().UTC()
		req.Start = req.End.Add(-24 * time.Hour)
	}

	interval := c.DefaultQuery("interval", "1h")
	req.Interval, err = time.ParseDuration(interval)
	if err != nil {
		utils.SendAppError(c, apperrors.NewValidation("interval", "interval is not a valid duration: "+interval))
		return
	}

	buckets, partial, err := h.aggregator.TimeSeries(c.Request.Context(), req)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccess(c, gin.H{
		"metric_name": req.MetricName,
		"interval":    req.Interval.String(),
		"buckets":     buckets,
		"partial":     partial,
	})
}

func parseMetricFilter(c *gin.Context) (repositories.MetricFilter, error) {
	filter := repositories.MetricFilter{
		Subject:     c.Query("subject"),
		SubjectKind: models.SubjectKind(c.Query("subject_kind")),
		MetricName:  c.Query("metric_name"),
		Tenant:      c.Query("tenant"),
	}

	var err error
	filter.Start, filter.End, err = parseTimeRange(c)
	if err != nil {
		return filter, err
	}

	filter.Limit, filter.Offset, err = parsePagination(c, 500)
	return filter, err
}

func parseTimeRange(c *gin.Context) (start, end time.Time, err error) {
	if raw := c.Query("start"); raw != "" {
		start, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return start, end, apperrors.NewValidation("start", "start is not a valid RFC3339 timestamp")
		}
	}
	if raw := c.Query("end"); raw != "" {
		end, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return start, end, apperrors.NewValidation("end", "end is not a valid RFC3339 timestamp")
		}
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return start, end, apperrors.NewValidation("end", "end must be after start")
	}
	return start, end, nil
}

func parsePagination(c *gin.Context, defaultLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, apperrors.NewValidation("limit", "limit must be a positive integer")
		}
	}
	if raw := c.Query("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, apperrors.NewValidation("offset", "offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
