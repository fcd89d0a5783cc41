package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/models"
)

// DashboardHandler serves operator dashboard analytics endpoints.
type DashboardHandler struct {
	db *gorm.DB
}

// NewDashboardHandler constructs a DashboardHandler.
func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

// statsResponse defines the dashboard stats payload.
type statsResponse struct {
	TotalAccounts     int64 `json:"total_accounts"`     // Registered accounts.
	TotalRepositories int64 `json:"total_repositories"` // Created repositories.
	TotalCommits      int64 `json:"total_commits"`      // Recorded commits.
	TotalQuotas       int64 `json:"total_quotas"`       // Allocated storage quotas.

	BytesAvailable int64 `json:"bytes_available"` // Purchased capacity not yet consumed.
	BytesUsed      int64 `json:"bytes_used"`      // Capacity consumed so far.

	CommitsToday int64   `json:"commits_today"` // Commits recorded today.
	CommitsTrend float64 `json:"commits_trend"` // Trend vs yesterday.

	CreditsInCirculation int64 `json:"credits_in_circulation"` // Sum of account balances.
	LedgerVolumeToday    int64 `json:"ledger_volume_today"`    // Credits moved today.

	CardsRedeemed    int64 `json:"cards_redeemed"`    // Storage cards already redeemed.
	CardsOutstanding int64 `json:"cards_outstanding"` // Enabled cards awaiting redemption.
}

// Stats returns platform-wide counters for the operator dashboard.
func (h *DashboardHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	loc := time.Local
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	yesterday := today.AddDate(0, 0, -1)

	var out statsResponse
	h.db.WithContext(ctx).Model(&models.Account{}).Count(&out.TotalAccounts)
	h.db.WithContext(ctx).Model(&models.Repository{}).Count(&out.TotalRepositories)
	h.db.WithContext(ctx).Model(&models.Commit{}).Count(&out.TotalCommits)
	h.db.WithContext(ctx).Model(&models.StorageQuota{}).Count(&out.TotalQuotas)

	var quotaTotals struct {
		BytesAvailable int64
		BytesUsed      int64
	}
	h.db.WithContext(ctx).Model(&models.StorageQuota{}).
		Select("COALESCE(SUM(bytes_available), 0) AS bytes_available, COALESCE(SUM(bytes_used), 0) AS bytes_used").
		Scan(&quotaTotals)
	out.BytesAvailable = quotaTotals.BytesAvailable
	out.BytesUsed = quotaTotals.BytesUsed

	var commitsToday int64
	h.db.WithContext(ctx).Model(&models.Commit{}).
		Where("created_at >= ?", today).
		Count(&commitsToday)
	var commitsYesterday int64
	h.db.WithContext(ctx).Model(&models.Commit{}).
		Where("created_at >= ? AND created_at < ?", yesterday, today).
		Count(&commitsYesterday)
	out.CommitsToday = commitsToday
	out.CommitsTrend = calcTrend(float64(commitsYesterday), float64(commitsToday))

	h.db.WithContext(ctx).Model(&models.Account{}).
		Select("COALESCE(SUM(credit_balance), 0)").
		Scan(&out.CreditsInCirculation)
	h.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("created_at >= ?", today).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&out.LedgerVolumeToday)

	h.db.WithContext(ctx).Model(&models.StorageCard{}).
		Where("redeemed_at IS NOT NULL").
		Count(&out.CardsRedeemed)
	h.db.WithContext(ctx).Model(&models.StorageCard{}).
		Where("redeemed_at IS NULL AND is_enabled = ?", true).
		Count(&out.CardsOutstanding)

	c.JSON(http.StatusOK, out)
}

// calcTrend returns the percentage change between two values.
func calcTrend(prev, current float64) float64 {
	if prev == 0 {
		if current > 0 {
			return 100.0
		}
		return 0.0
	}
	return (current - prev) / prev * 100
}
