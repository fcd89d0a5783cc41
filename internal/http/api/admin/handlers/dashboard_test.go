package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/models"
)

func setupDashboardDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:admindash_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Account{},
		&models.Repository{},
		&models.Commit{},
		&models.StorageQuota{},
		&models.LedgerEntry{},
		&models.StorageCard{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestDashboardStatsAggregates(t *testing.T) {
	db := setupDashboardDB(t)
	for _, account := range []models.Account{
		{Address: "0xda5b000000000000000000000000000000000001", Username: "alice", Password: "hash", CreditBalance: 7},
		{Address: "0xda5b000000000000000000000000000000000002", Username: "bob", Password: "hash", CreditBalance: 5},
	} {
		if err := db.Create(&account).Error; err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	repo := models.Repository{
		RepoID:       "repo_dash00000000000000000000000",
		Name:         "dash",
		OwnerAddress: "0xda5b000000000000000000000000000000000001",
	}
	if err := db.Create(&repo).Error; err != nil {
		t.Fatalf("seed repository: %v", err)
	}
	for i := 0; i < 2; i++ {
		commit := models.Commit{
			CommitID:       fmt.Sprintf("cmt_dash%027d", i),
			RepositoryID:   repo.ID,
			Message:        "seed",
			AuthorAddress:  repo.OwnerAddress,
			ContentPointer: "sha256:seed",
			SizeBytes:      100,
			TimestampMS:    time.Now().UnixMilli(),
		}
		if err := db.Create(&commit).Error; err != nil {
			t.Fatalf("seed commit: %v", err)
		}
	}
	if err := db.Create(&models.StorageQuota{
		QuotaID:        "quota_dash0000000000000000000000",
		OwnerAddress:   repo.OwnerAddress,
		BytesAvailable: 951424,
		BytesUsed:      1048576,
	}).Error; err != nil {
		t.Fatalf("seed quota: %v", err)
	}
	if err := db.Create(&models.LedgerEntry{
		FromAddress: repo.OwnerAddress,
		ToAddress:   "0x00000000000000000000000000000000000000fe",
		Amount:      2,
		Reason:      models.LedgerReasonStoragePurchase,
	}).Error; err != nil {
		t.Fatalf("seed ledger entry: %v", err)
	}
	redeemedAt := time.Now().UTC()
	redeemedBy := repo.OwnerAddress
	for _, card := range []models.StorageCard{
		{Name: "spent", CardSN: "AAAA0000000000000001", Password: "pw", Units: 5, IsEnabled: true, RedeemedBy: &redeemedBy, RedeemedAt: &redeemedAt},
		{Name: "open", CardSN: "AAAA0000000000000002", Password: "pw", Units: 5, IsEnabled: true},
		{Name: "off", CardSN: "AAAA0000000000000003", Password: "pw", Units: 5, IsEnabled: false},
	} {
		if err := db.Create(&card).Error; err != nil {
			t.Fatalf("seed card: %v", err)
		}
	}

	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(db)
	router := gin.New()
	router.GET("/v0/admin/dashboard/stats", handler.Stats)

	req := httptest.NewRequest(http.MethodGet, "/v0/admin/dashboard/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		TotalAccounts        int64   `json:"total_accounts"`
		TotalRepositories    int64   `json:"total_repositories"`
		TotalCommits         int64   `json:"total_commits"`
		TotalQuotas          int64   `json:"total_quotas"`
		BytesAvailable       int64   `json:"bytes_available"`
		BytesUsed            int64   `json:"bytes_used"`
		CommitsToday         int64   `json:"commits_today"`
		CommitsTrend         float64 `json:"commits_trend"`
		CreditsInCirculation int64   `json:"credits_in_circulation"`
		LedgerVolumeToday    int64   `json:"ledger_volume_today"`
		CardsRedeemed        int64   `json:"cards_redeemed"`
		CardsOutstanding     int64   `json:"cards_outstanding"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalAccounts != 2 || resp.TotalRepositories != 1 || resp.TotalCommits != 2 || resp.TotalQuotas != 1 {
		t.Fatalf("unexpected totals: %+v", resp)
	}
	if resp.BytesAvailable != 951424 || resp.BytesUsed != 1048576 {
		t.Fatalf("bytes = %d/%d, want 951424/1048576", resp.BytesAvailable, resp.BytesUsed)
	}
	if resp.CommitsToday != 2 {
		t.Fatalf("commits_today = %d, want 2", resp.CommitsToday)
	}
	if resp.CommitsTrend != 100.0 {
		t.Fatalf("commits_trend = %f, want 100.0", resp.CommitsTrend)
	}
	if resp.CreditsInCirculation != 12 {
		t.Fatalf("credits_in_circulation = %d, want 12", resp.CreditsInCirculation)
	}
	if resp.LedgerVolumeToday != 2 {
		t.Fatalf("ledger_volume_today = %d, want 2", resp.LedgerVolumeToday)
	}
	if resp.CardsRedeemed != 1 || resp.CardsOutstanding != 1 {
		t.Fatalf("cards = %d redeemed / %d outstanding, want 1/1", resp.CardsRedeemed, resp.CardsOutstanding)
	}
}

func TestDashboardStatsEmptyDatabase(t *testing.T) {
	db := setupDashboardDB(t)
	gin.SetMode(gin.TestMode)
	handler := NewDashboardHandler(db)
	router := gin.New()
	router.GET("/v0/admin/dashboard/stats", handler.Stats)

	req := httptest.NewRequest(http.MethodGet, "/v0/admin/dashboard/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		TotalAccounts int64   `json:"total_accounts"`
		CommitsTrend  float64 `json:"commits_trend"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalAccounts != 0 || resp.CommitsTrend != 0 {
		t.Fatalf("expected zeroed stats, got %+v", resp)
	}
}
