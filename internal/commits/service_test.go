package commits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/access"
	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/events"
	"github.com/gitledger/gitledger/internal/ledger"
	"github.com/gitledger/gitledger/internal/models"
)

const (
	testAlice = "0xa11ce00000000000000000000000000000000001"
	testBob   = "0xb0b0000000000000000000000000000000000002"
)

func openCommitsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:commitstest_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	errMigrate := conn.AutoMigrate(
		&models.Account{},
		&models.Repository{},
		&models.Collaborator{},
		&models.Commit{},
		&models.StorageQuota{},
		&models.LedgerEntry{},
		&models.Event{},
	)
	if errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func newCommitsService(t *testing.T, conn *gorm.DB, behavior config.CommitConfig) *Service {
	t.Helper()
	pricing := config.PricingConfig{BytesPerUnit: 1048576, PricePerUnit: 1, TreasuryAddress: "0xfe"}
	ledgerService := ledger.NewService(conn, pricing, config.LedgerConfig{}, nil)
	return NewService(conn, ledgerService, behavior, nil)
}

func seedRepository(t *testing.T, conn *gorm.DB, repoID, owner string) *models.Repository {
	t.Helper()
	repo := models.Repository{RepoID: repoID, Name: "repo", OwnerAddress: owner, DefaultBranch: "main"}
	if errCreate := conn.Create(&repo).Error; errCreate != nil {
		t.Fatalf("seed repository: %v", errCreate)
	}
	return &repo
}

func seedGrant(t *testing.T, conn *gorm.DB, repositoryID uint64, address, level string) {
	t.Helper()
	grant := models.Collaborator{RepositoryID: repositoryID, Address: address, Level: level, GrantedBy: "seed"}
	if errCreate := conn.Create(&grant).Error; errCreate != nil {
		t.Fatalf("seed grant: %v", errCreate)
	}
}

func seedQuota(t *testing.T, conn *gorm.DB, owner string, available int64) {
	t.Helper()
	quota := models.StorageQuota{QuotaID: "quota_" + owner[2:10], OwnerAddress: owner, BytesAvailable: available}
	if errCreate := conn.Create(&quota).Error; errCreate != nil {
		t.Fatalf("seed quota: %v", errCreate)
	}
}

func TestCreateCommitAppendsAndAdvancesHead(t *testing.T) {
	conn := openCommitsTestDB(t)
	service := newCommitsService(t, conn, config.CommitConfig{AutoDebit: true})
	fixed := time.UnixMilli(1723456789000)
	service.clock = func() time.Time { return fixed }
	ctx := context.Background()
	repo := seedRepository(t, conn, "repo_head", testAlice)

	commit, errCreate := service.CreateCommit(ctx, CreateParams{
		RepoID:         repo.RepoID,
		Message:        "initial import",
		ContentPointer: "blob:abc123",
		Caller:         testAlice,
	})
	if errCreate != nil {
		t.Fatalf("create commit: %v", errCreate)
	}
	if !strings.HasPrefix(commit.CommitID, "cmt_") {
		t.Fatalf("commit id %q missing prefix", commit.CommitID)
	}
	if commit.AuthorAddress != testAlice {
		t.Fatalf("author = %s, want caller", commit.AuthorAddress)
	}
	if commit.TimestampMS != 1723456789000 {
		t.Fatalf("timestamp = %d, want clock value", commit.TimestampMS)
	}
	if commit.ParentCommitID != nil {
		t.Fatalf("parent = %v, want nil", commit.ParentCommitID)
	}

	var reloaded models.Repository
	if errFind := conn.First(&reloaded, repo.ID).Error; errFind != nil {
		t.Fatalf("reload repository: %v", errFind)
	}
	if reloaded.HeadPointer != "blob:abc123" {
		t.Fatalf("head = %q, want commit pointer", reloaded.HeadPointer)
	}

	var event models.Event
	if errFind := conn.Where("event_type = ?", models.EventCommitCreated).First(&event).Error; errFind != nil {
		t.Fatalf("load event: %v", errFind)
	}
	var payload events.CommitCreated
	if errDecode := json.Unmarshal(event.Payload, &payload); errDecode != nil {
		t.Fatalf("decode payload: %v", errDecode)
	}
	if payload.CommitID != commit.CommitID || payload.RepoID != repo.RepoID || payload.Author != testAlice || payload.Message != "initial import" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestCreateCommitRequiresWrite(t *testing.T) {
	conn := openCommitsTestDB(t)
	service := newCommitsService(t, conn, config.CommitConfig{AutoDebit: true})
	ctx := context.Background()
	repo := seedRepository(t, conn, "repo_acl", testAlice)
	seedGrant(t, conn, repo.ID, testBob, access.LevelRead)

	params := CreateParams{RepoID: repo.RepoID, Message: "m", ContentPointer: "blob:x", Caller: testBob}
	if _, errCreate := service.CreateCommit(ctx, params); !errors.Is(errCreate, access.ErrNotAuthorized) {
		t.Fatalf("read grant commit error = %v, want ErrNotAuthorized", errCreate)
	}
	params.Caller = "0xstranger"
	if _, errCreate := service.CreateCommit(ctx, params); !errors.Is(errCreate, access.ErrNotAuthorized) {
		t.Fatalf("stranger commit error = %v, want ErrNotAuthorized", errCreate)
	}

	var count int64
	conn.Model(&models.Commit{}).Count(&count)
	if count != 0 {
		t.Fatalf("commit rows = %d, want 0", count)
	}

	// A write grant makes the same request succeed.
	seedGrant(t, conn, repo.ID, "0xwriter", access.LevelWrite)
	params.Caller = "0xwriter"
	if _, errCreate := service.CreateCommit(ctx, params); errCreate != nil {
		t.Fatalf("write grant commit: %v", errCreate)
	}
}

func TestCreateCommitParentValidation(t *testing.T) {
	conn := openCommitsTestDB(t)
	service := newCommitsService(t, conn, config.CommitConfig{AutoDebit: true})
	ctx := context.Background()
	repo := seedRepository(t, conn, "repo_chain", testAlice)
	other := seedRepository(t, conn, "repo_other", testAlice)

	missing := "cmt_does_not_exist"
	if _, errCreate := service.CreateCommit(ctx, CreateParams{
		RepoID: repo.RepoID, Message: "m", ContentPointer: "blob:a", ParentCommitID: &missing, Caller: testAlice,
	}); !errors.Is(errCreate, ErrDanglingParent) {
		t.Fatalf("missing parent error = %v, want ErrDanglingParent", errCreate)
	}

	root, errCreate := service.CreateCommit(ctx, CreateParams{
		RepoID: repo.RepoID, Message: "root", ContentPointer: "blob:root", Caller: testAlice,
	})
	if errCreate != nil {
		t.Fatalf("root commit: %v", errCreate)
	}

	child, errCreate := service.CreateCommit(ctx, CreateParams{
		RepoID: repo.RepoID, Message: "child", ContentPointer: "blob:child", ParentCommitID: &root.CommitID, Caller: testAlice,
	})
	if errCreate != nil {
		t.Fatalf("child commit: %v", errCreate)
	}
	if child.ParentCommitID == nil || *child.ParentCommitID != root.CommitID {
		t.Fatalf("child parent = %v, want %s", child.ParentCommitID, root.CommitID)
	}

	// A parent from another repository does not resolve.
	if _, errCreate := service.CreateCommit(ctx, CreateParams{
		RepoID: other.RepoID, Message: "m", ContentPointer: "blob:b", ParentCommitID: &root.CommitID, Caller: testAlice,
	}); !errors.Is(errCreate, ErrDanglingParent) {
		t.Fatalf("cross-repo parent error = %v, want ErrDanglingParent", errCreate)
	}

	relaxed := newCommitsService(t, conn, config.CommitConfig{AutoDebit: true, AllowCrossRepoParents: true})
	if _, errCreate := relaxed.CreateCommit(ctx, CreateParams{
		RepoID: other.RepoID, Message: "fork", ContentPointer: "blob:fork", ParentCommitID: &root.CommitID, Caller: testAlice,
	}); errCreate != nil {
		t.Fatalf("cross-repo parent with flag: %v", errCreate)
	}
}

func TestCreateCommitAutoDebit(t *testing.T) {
	conn := openCommitsTestDB(t)
	service := newCommitsService(t, conn, config.CommitConfig{AutoDebit: true})
	ctx := context.Background()
	repo := seedRepository(t, conn, "repo_debit", testAlice)
	seedQuota(t, conn, testAlice, 1000)

	commit, errCreate := service.CreateCommit(ctx, CreateParams{
		RepoID: repo.RepoID, Message: "payload", ContentPointer: "blob:p", SizeBytes: 600, Caller: testAlice,
	})
	if errCreate != nil {
		t.Fatalf("create commit: %v", errCreate)
	}
	if commit.SizeBytes != 600 {
		t.Fatalf("size = %d, want 600", commit.SizeBytes)
	}

	var quota models.StorageQuota
	if errFind := conn.Where("owner_address = ?", testAlice).First(&quota).Error; errFind != nil {
		t.Fatalf("reload quota: %v", errFind)
	}
	if quota.BytesAvailable != 400 || quota.BytesUsed != 600 {
		t.Fatalf("quota counters = %d/%d, want 400/600", quota.BytesAvailable, quota.BytesUsed)
	}

	// The next commit exceeds what is left; nothing may apply.
	_, errCreate = service.CreateCommit(ctx, CreateParams{
		RepoID: repo.RepoID, Message: "too big", ContentPointer: "blob:q", SizeBytes: 500, Caller: testAlice,
	})
	if !errors.Is(errCreate, ledger.ErrInsufficientStorage) {
		t.Fatalf("oversized commit error = %v, want ErrInsufficientStorage", errCreate)
	}
	var count int64
	conn.Model(&models.Commit{}).Count(&count)
	if count != 1 {
		t.Fatalf("commit rows = %d, want 1 after rollback", count)
	}
	var reloaded models.Repository
	if errFind := conn.First(&reloaded, repo.ID).Error; errFind != nil {
		t.Fatalf("reload repository: %v", errFind)
	}
	if reloaded.HeadPointer != "blob:p" {
		t.Fatalf("head = %q, want unchanged after rollback", reloaded.HeadPointer)
	}

	// Zero-size commits never touch the quota.
	if _, errCreate := service.CreateCommit(ctx, CreateParams{
		RepoID: repo.RepoID, Message: "metadata only", ContentPointer: "blob:r", Caller: testAlice,
	}); errCreate != nil {
		t.Fatalf("zero-size commit: %v", errCreate)
	}
}

func TestCreateCommitWithoutQuota(t *testing.T) {
	conn := openCommitsTestDB(t)
	ctx := context.Background()
	repo := seedRepository(t, conn, "repo_noquota", testAlice)

	// With auto-debit on, a sized commit needs a quota.
	service := newCommitsService(t, conn, config.CommitConfig{AutoDebit: true})
	_, errCreate := service.CreateCommit(ctx, CreateParams{
		RepoID: repo.RepoID, Message: "m", ContentPointer: "blob:x", SizeBytes: 10, Caller: testAlice,
	})
	if !errors.Is(errCreate, ledger.ErrInsufficientStorage) {
		t.Fatalf("no quota error = %v, want ErrInsufficientStorage", errCreate)
	}

	// With auto-debit off, size is recorded but nothing is consumed.
	relaxed := newCommitsService(t, conn, config.CommitConfig{AutoDebit: false})
	if _, errCreate := relaxed.CreateCommit(ctx, CreateParams{
		RepoID: repo.RepoID, Message: "m", ContentPointer: "blob:x", SizeBytes: 10, Caller: testAlice,
	}); errCreate != nil {
		t.Fatalf("auto-debit off commit: %v", errCreate)
	}
}

func TestCreateCommitValidation(t *testing.T) {
	conn := openCommitsTestDB(t)
	service := newCommitsService(t, conn, config.CommitConfig{AutoDebit: true})
	ctx := context.Background()
	repo := seedRepository(t, conn, "repo_valid", testAlice)

	cases := []struct {
		name   string
		params CreateParams
		want   error
	}{
		{
			name:   "empty message",
			params: CreateParams{RepoID: repo.RepoID, Message: "  ", ContentPointer: "blob:x", Caller: testAlice},
			want:   ErrEmptyMessage,
		},
		{
			name:   "empty pointer",
			params: CreateParams{RepoID: repo.RepoID, Message: "m", ContentPointer: "", Caller: testAlice},
			want:   ErrEmptyPointer,
		},
		{
			name:   "negative size",
			params: CreateParams{RepoID: repo.RepoID, Message: "m", ContentPointer: "blob:x", SizeBytes: -1, Caller: testAlice},
			want:   ErrInvalidSize,
		},
		{
			name:   "empty caller",
			params: CreateParams{RepoID: repo.RepoID, Message: "m", ContentPointer: "blob:x"},
			want:   access.ErrNotAuthorized,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, errCreate := service.CreateCommit(ctx, tc.params); !errors.Is(errCreate, tc.want) {
				t.Fatalf("error = %v, want %v", errCreate, tc.want)
			}
		})
	}
}

func TestListByRepoAndAncestry(t *testing.T) {
	conn := openCommitsTestDB(t)
	service := newCommitsService(t, conn, config.CommitConfig{AutoDebit: true})
	ctx := context.Background()
	repo := seedRepository(t, conn, "repo_list", testAlice)

	var parent *string
	ids := make([]string, 0, 3)
	for _, message := range []string{"one", "two", "three"} {
		commit, errCreate := service.CreateCommit(ctx, CreateParams{
			RepoID: repo.RepoID, Message: message, ContentPointer: "blob:" + message, ParentCommitID: parent, Caller: testAlice,
		})
		if errCreate != nil {
			t.Fatalf("commit %s: %v", message, errCreate)
		}
		ids = append(ids, commit.CommitID)
		parent = &commit.CommitID
	}

	rows, total, errList := service.ListByRepo(ctx, repo.RepoID, 1, 2)
	if errList != nil {
		t.Fatalf("list: %v", errList)
	}
	if total != 3 || len(rows) != 2 {
		t.Fatalf("total = %d rows = %d, want 3/2", total, len(rows))
	}
	if rows[0].Message != "three" || rows[1].Message != "two" {
		t.Fatalf("order = %s, %s, want newest first", rows[0].Message, rows[1].Message)
	}

	chain, errWalk := service.Ancestry(ctx, ids[2], 10)
	if errWalk != nil {
		t.Fatalf("ancestry: %v", errWalk)
	}
	if len(chain) != 3 {
		t.Fatalf("chain length = %d, want 3", len(chain))
	}
	if chain[0].CommitID != ids[2] || chain[2].CommitID != ids[0] {
		t.Fatalf("chain order = %s .. %s", chain[0].CommitID, chain[2].CommitID)
	}
	if chain[2].ParentCommitID != nil {
		t.Fatalf("root parent = %v, want nil", chain[2].ParentCommitID)
	}
}
