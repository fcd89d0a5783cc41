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

	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/ledger"
	"github.com/gitledger/gitledger/internal/models"
)

const (
	cardTestAlice = "0xca4d000000000000000000000000000000000001"
	cardTestBob   = "0xca4d000000000000000000000000000000000002"
)

func setupCardRedeemDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:frontcard_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.StorageCard{}, &models.LedgerEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newCardTestRouter(db *gorm.DB, address string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	pricing := config.PricingConfig{
		BytesPerUnit:    1048576,
		PricePerUnit:    1,
		TreasuryAddress: config.DefaultTreasuryAddress,
	}
	handler := NewStorageCardFrontHandler(db, ledger.NewService(db, pricing, config.LedgerConfig{}, nil))
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("accountAddress", address)
	})
	router.POST("/v0/front/cards/redeem", handler.Redeem)
	router.GET("/v0/front/cards", handler.List)
	return router
}

func TestRedeemCardCreditsBalance(t *testing.T) {
	db := setupCardRedeemDB(t)
	if err := db.Create(&models.Account{
		Address:       cardTestAlice,
		Username:      "alice",
		Password:      "hash",
		CreditBalance: 3,
	}).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if err := db.Create(&models.StorageCard{
		Name:      "starter pack",
		CardSN:    "AB12CD34EF56AB78CD90",
		Password:  "open-sesame",
		Units:     25,
		IsEnabled: true,
	}).Error; err != nil {
		t.Fatalf("seed card: %v", err)
	}
	router := newCardTestRouter(db, cardTestAlice)

	// The serial is matched case-insensitively.
	w := postJSON(t, router, "/v0/front/cards/redeem", `{"card_sn": "ab12cd34ef56ab78cd90", "password": "open-sesame"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var redeemed struct {
		OK            bool  `json:"ok"`
		CreditBalance int64 `json:"credit_balance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &redeemed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !redeemed.OK {
		t.Fatal("expected ok=true")
	}
	if redeemed.CreditBalance != 28 {
		t.Fatalf("credit_balance = %d, want 28", redeemed.CreditBalance)
	}

	var card models.StorageCard
	if err := db.Where("card_sn = ?", "AB12CD34EF56AB78CD90").First(&card).Error; err != nil {
		t.Fatalf("reload card: %v", err)
	}
	if card.RedeemedBy == nil || *card.RedeemedBy != cardTestAlice {
		t.Fatalf("redeemed_by = %v, want %s", card.RedeemedBy, cardTestAlice)
	}
	if card.RedeemedAt == nil {
		t.Fatal("expected redeemed_at to be set")
	}
	var entry models.LedgerEntry
	if err := db.Where("to_address = ?", cardTestAlice).First(&entry).Error; err != nil {
		t.Fatalf("load ledger entry: %v", err)
	}
	if entry.FromAddress != models.LedgerMintAddress || entry.Amount != 25 || entry.Reason != models.LedgerReasonCardRedeem {
		t.Fatalf("unexpected ledger entry: from=%s amount=%d reason=%s", entry.FromAddress, entry.Amount, entry.Reason)
	}

	req := httptest.NewRequest(http.MethodGet, "/v0/front/cards", nil)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w2.Code)
	}
	var listed struct {
		Cards []struct {
			CardSN string `json:"card_sn"`
			Units  int64  `json:"units"`
		} `json:"cards"`
	}
	if err := json.Unmarshal(w2.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Cards) != 1 || listed.Cards[0].CardSN != "AB12CD34EF56AB78CD90" || listed.Cards[0].Units != 25 {
		t.Fatalf("unexpected card list: %+v", listed.Cards)
	}
}

func TestRedeemCardTwiceConflicts(t *testing.T) {
	db := setupCardRedeemDB(t)
	for _, account := range []models.Account{
		{Address: cardTestAlice, Username: "alice", Password: "hash"},
		{Address: cardTestBob, Username: "bob", Password: "hash"},
	} {
		if err := db.Create(&account).Error; err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	if err := db.Create(&models.StorageCard{
		Name:      "one shot",
		CardSN:    "1122334455667788AABB",
		Password:  "pw123456",
		Units:     10,
		IsEnabled: true,
	}).Error; err != nil {
		t.Fatalf("seed card: %v", err)
	}

	alice := newCardTestRouter(db, cardTestAlice)
	w := postJSON(t, alice, "/v0/front/cards/redeem", `{"card_sn": "1122334455667788AABB", "password": "pw123456"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	bob := newCardTestRouter(db, cardTestBob)
	w = postJSON(t, bob, "/v0/front/cards/redeem", `{"card_sn": "1122334455667788AABB", "password": "pw123456"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", w.Code, w.Body.String())
	}
	var bobAccount models.Account
	if err := db.Where("address = ?", cardTestBob).First(&bobAccount).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if bobAccount.CreditBalance != 0 {
		t.Fatalf("balance = %d, want 0 after rejected redeem", bobAccount.CreditBalance)
	}
}

func TestRedeemCardWrongPassword(t *testing.T) {
	db := setupCardRedeemDB(t)
	if err := db.Create(&models.Account{Address: cardTestAlice, Username: "alice", Password: "hash"}).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if err := db.Create(&models.StorageCard{
		Name:      "guarded",
		CardSN:    "FFEEDDCCBBAA99887766",
		Password:  "correct-pw",
		Units:     10,
		IsEnabled: true,
	}).Error; err != nil {
		t.Fatalf("seed card: %v", err)
	}
	router := newCardTestRouter(db, cardTestAlice)

	w := postJSON(t, router, "/v0/front/cards/redeem", `{"card_sn": "FFEEDDCCBBAA99887766", "password": "wrong-pw"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
	var card models.StorageCard
	if err := db.Where("card_sn = ?", "FFEEDDCCBBAA99887766").First(&card).Error; err != nil {
		t.Fatalf("reload card: %v", err)
	}
	if card.RedeemedBy != nil {
		t.Fatalf("redeemed_by = %v, want unredeemed", *card.RedeemedBy)
	}
}
