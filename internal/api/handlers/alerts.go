package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/database/models"
	"github.com/featureops/fsmon-backend-go/internal/database/repositories"
	apperrors "github.com/featureops/fsmon-backend-go/pkg/errors"
	"github.com/featureops/fsmon-backend-go/pkg/utils"
	"github.com/gin-gonic/gin"
)

type createAlertRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Severity    string          `json:"severity"`
	Source      string          `json:"source,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Tenant      string          `json:"tenant,omitempty"`
}

type updateAlertStatusRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

type alertRuleRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Condition   json.RawMessage `json:"condition"`
	Severity    string          `json:"severity"`
	IsActive    *bool           `json:"is_active,omitempty"`
	Owner       string          `json:"owner,omitempty"`
	Tenant      string          `json:"tenant,omitempty"`
}

// ListAlerts returns alerts matching the query filters
func (h *Handlers) ListAlerts(c *gin.Context) {
	filter := repositories.AlertFilter{
		Source: c.Query("source"),
		Tenant: c.Query("tenant"),
	}

	if raw := c.Query("severity"); raw != "" {
		severity := models.AlertSeverity(raw)
		if !severity.Valid() {
			utils.SendAppError(c, apperrors.NewValidation("severity", "unknown severity: "+raw))
			return
		}
		filter.Severity = severity
	}
	if raw := c.Query("status"); raw != "" {
		status := models.AlertStatus(raw)
		if !status.Valid() {
			utils.SendAppError(c, apperrors.NewValidation("status", "unknown status: "+raw))
			return
		}
		filter.Status = status
	}

	var err error
	filter.Start, filter.End, err = parseTimeRange(c)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}
	filter.Limit, filter.Offset, err = parsePagination(c, 100)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	alerts, total, err := h.alerts.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccessWithMeta(c, alerts, utils.PageMeta{
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// GetAlert returns a single alert by id
func (h *Handlers) GetAlert(c *gin.Context) {
	alert, err := h.alerts.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccess(c, alert)
}

// CreateAlert raises a manual alert
func (h *Handlers) CreateAlert(c *gin.Context) {
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	alert := &models.Alert{
		Title:       req.Title,
		Description: req.Description,
		Severity:    models.AlertSeverity(req.Severity),
		Source:      req.Source,
		Metadata:    req.Metadata,
		Tenant:      req.Tenant,
	}

	if err := h.alerts.CreateAlert(c.Request.Context(), alert); err != nil {
		utils.SendAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.Response{
		Success:   true,
		Data:      alert,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// UpdateAlertStatus transitions an alert's lifecycle state
func (h *Handlers) UpdateAlertStatus(c *gin.Context) {
	var req updateAlertStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	alert, err := h.alerts.UpdateStatus(c.Request.Context(), c.Param("id"),
		models.AlertStatus(req.Status), req.Actor, req.Notes)
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccess(c, alert)
}

// ListAlertRules returns all alert rules
func (h *Handlers) ListAlertRules(c *gin.Context) {
	rules, err := h.alerts.ListRules(c.Request.Context(), c.Query("tenant"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccess(c, rules)
}

// GetAlertRule returns a single rule by id
func (h *Handlers) GetAlertRule(c *gin.Context) {
	rule, err := h.alerts.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccess(c, rule)
}

// CreateAlertRule defines a new alert rule
func (h *Handlers) CreateAlertRule(c *gin.Context) {
	var req alertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	rule := ruleFromRequest(&req)
	if err := h.gateway.SubmitRule(c.Request.Context(), rule); err != nil {
		utils.SendAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, utils.Response{
		Success:   true,
		Data:      rule,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// UpdateAlertRule rewrites an existing rule
func (h *Handlers) UpdateAlertRule(c *gin.Context) {
	var req alertRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	rule := ruleFromRequest(&req)
	rule.ID = c.Param("id")

	if err := h.alerts.UpdateRule(c.Request.Context(), rule); err != nil {
		utils.SendAppError(c, err)
		return
	}

	utils.SendSuccess(c, rule)
}

func ruleFromRequest(req *alertRuleRequest) *models.AlertRule {
	rule := &models.AlertRule{
		Name:        req.Name,
		Description: req.Description,
		Condition:   req.Condition,
		Severity:    models.AlertSeverity(req.Severity),
		IsActive:    true,
		Tenant:      req.Tenant,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.Owner != "" {
		rule.Owner.String = req.Owner
		rule.Owner.Valid = true
	}
	return rule
}
