package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/andresuchdata/customer-health/backend-go/internal/domain"
	"github.com/andresuchdata/customer-health/backend-go/internal/health"
	"github.com/andresuchdata/customer-health/backend-go/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// CustomerHealthService is what the handler needs from the service layer.
type CustomerHealthService interface {
	AssessSeries(totals []float64, opts health.Options) health.RevenueHealth
	AssessSeriesByTier(totals []float64, monthlyRevenue float64) health.TieredRevenueHealth
	GetCustomerHealth(ctx context.Context, customerID int64) (*domain.CustomerHealthSnapshot, error)
	GetSummary(ctx context.Context, filter domain.HealthFilter) (*domain.HealthSummary, error)
	ListSnapshots(ctx context.Context, filter domain.HealthFilter) (*domain.SnapshotPage, error)
}

type CustomerHealthHandler struct {
	service CustomerHealthService
}

func NewCustomerHealthHandler(service CustomerHealthService) *CustomerHealthHandler {
	return &CustomerHealthHandler{service: service}
}

// assessRequest leaves tuning fields nil to mean "use the default"; an
// explicit value must be usable as given.
type assessRequest struct {
	RecentTotals      []float64 `json:"recent_totals" binding:"required"`
	MinSampleSize     *int      `json:"min_sample_size" binding:"omitempty,min=1"`
	CurrentWindowSize *int      `json:"current_window_size" binding:"omitempty,min=1"`
	Alpha             *float64  `json:"alpha" binding:"omitempty,gt=0,lte=1"`
	KSigma            *float64  `json:"k_sigma" binding:"omitempty,gt=0"`
}

type assessTierRequest struct {
	RecentTotals   []float64 `json:"recent_totals" binding:"required"`
	MonthlyRevenue *float64  `json:"monthly_revenue" binding:"required,gte=0"`
}

type tierResponse struct {
	Tier       health.SpendTier      `json:"tier"`
	Thresholds health.TierThresholds `json:"thresholds"`
}

func (h *CustomerHealthHandler) Assess(c *gin.Context) {
	var req assessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	opts := health.Options{}
	if req.MinSampleSize != nil {
		opts.MinSampleSize = *req.MinSampleSize
	}
	if req.CurrentWindowSize != nil {
		opts.CurrentWindowSize = *req.CurrentWindowSize
	}
	if req.Alpha != nil {
		opts.Alpha = *req.Alpha
	}
	if req.KSigma != nil {
		opts.KSigma = *req.KSigma
	}

	c.JSON(http.StatusOK, h.service.AssessSeries(req.RecentTotals, opts))
}

func (h *CustomerHealthHandler) AssessByTier(c *gin.Context) {
	var req assessTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.service.AssessSeriesByTier(req.RecentTotals, *req.MonthlyRevenue))
}

func (h *CustomerHealthHandler) GetTiers(c *gin.Context) {
	tiers := health.Tiers()
	out := make([]tierResponse, 0, len(tiers))
	for _, tier := range tiers {
		out = append(out, tierResponse{Tier: tier, Thresholds: health.GetTierThresholds(tier)})
	}

	c.JSON(http.StatusOK, gin.H{"tiers": out})
}

func (h *CustomerHealthHandler) GetCustomerHealth(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid customer id", "details": c.Param("id")})
		return
	}

	snapshot, err := h.service.GetCustomerHealth(c.Request.Context(), id)
	if errors.Is(err, service.ErrCustomerNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "customer not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("customer_id", id).Msg("failed to assess customer health")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch customer health", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}

func (h *CustomerHealthHandler) GetSummary(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter", "details": err.Error()})
		return
	}

	summary, err := h.service.GetSummary(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch summary", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *CustomerHealthHandler) ListSnapshots(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter", "details": err.Error()})
		return
	}

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && page > 0 {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "50")); err == nil && size > 0 {
		filter.PageSize = size
	}

	page, err := h.service.ListSnapshots(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch snapshots", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, page)
}

// parseFilter reads tenant_id (required), sales_rep_id, status and tier.
// status and tier accept repeated params or comma-separated lists.
func parseFilter(c *gin.Context) (domain.HealthFilter, error) {
	var filter domain.HealthFilter

	tenantID, err := strconv.ParseInt(strings.TrimSpace(c.Query("tenant_id")), 10, 64)
	if err != nil || tenantID <= 0 {
		return filter, errors.New("tenant_id must be a positive integer")
	}
	filter.TenantID = tenantID

	if raw := strings.TrimSpace(c.Query("sales_rep_id")); raw != "" {
		rep, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, errors.New("sales_rep_id must be an integer")
		}
		filter.SalesRepID = &rep
	}

	for _, v := range splitQueryList(c, "status") {
		status, ok := domain.ParseHealthStatus(v)
		if !ok {
			return filter, errors.New("unknown status: " + v)
		}
		filter.Statuses = appendUnique(filter.Statuses, status)
	}

	for _, v := range splitQueryList(c, "tier") {
		tier, ok := health.ParseSpendTier(v)
		if !ok {
			return filter, errors.New("unknown tier: " + v)
		}
		filter.Tiers = appendUnique(filter.Tiers, string(tier))
	}

	return filter, nil
}

func splitQueryList(c *gin.Context, param string) []string {
	var out []string
	for _, raw := range c.QueryArray(param) {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func appendUnique(values []string, v string) []string {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}
