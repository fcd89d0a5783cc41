package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/gitledger/gitledger/internal/config"
	"github.com/gitledger/gitledger/internal/models"
	"github.com/gitledger/gitledger/internal/settings"
)

func openEventsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:eventstest_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Event{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestRecordRollsBackWithTransaction(t *testing.T) {
	conn := openEventsTestDB(t)

	boom := errors.New("boom")
	errTx := conn.Transaction(func(tx *gorm.DB) error {
		if err := Record(tx, models.EventRepositoryCreated, RepositoryCreated{RepoID: "repo_1", Owner: "0xa", Name: "core"}); err != nil {
			t.Fatalf("record: %v", err)
		}
		return boom
	})
	if !errors.Is(errTx, boom) {
		t.Fatalf("transaction error = %v", errTx)
	}

	var count int64
	if err := conn.Model(&models.Event{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("rolled-back event persisted, count = %d", count)
	}

	errTx = conn.Transaction(func(tx *gorm.DB) error {
		return Record(tx, models.EventStorageUsed, StorageUsed{User: "0xa", BytesUsed: 10, BytesRemaining: 90})
	})
	if errTx != nil {
		t.Fatalf("commit transaction: %v", errTx)
	}

	var row models.Event
	if err := conn.First(&row).Error; err != nil {
		t.Fatalf("load event: %v", err)
	}
	if row.EventType != models.EventStorageUsed {
		t.Fatalf("event type = %q", row.EventType)
	}
	var payload StorageUsed
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.BytesUsed != 10 || payload.BytesRemaining != 90 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestPublisherDeliversEnvelope(t *testing.T) {
	mini, errRun := miniredis.Run()
	if errRun != nil {
		t.Fatalf("start miniredis: %v", errRun)
	}
	t.Cleanup(mini.Close)

	pub, errNew := NewPublisher(config.RedisConfig{Addr: mini.Addr()})
	if errNew != nil {
		t.Fatalf("new publisher: %v", errNew)
	}
	t.Cleanup(func() { _ = pub.Close() })

	subscriber := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = subscriber.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := subscriber.Subscribe(ctx, ChannelAll)
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub.Publish(ctx, models.EventStoragePurchased, StoragePurchased{Buyer: "0xa", AmountPaid: 2, BytesAdded: 2000000})

	msg, errMsg := sub.ReceiveMessage(ctx)
	if errMsg != nil {
		t.Fatalf("receive: %v", errMsg)
	}

	var envelope struct {
		Type    string           `json:"type"`
		Payload StoragePurchased `json:"payload"`
	}
	if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Type != models.EventStoragePurchased {
		t.Fatalf("type = %q", envelope.Type)
	}
	if envelope.Payload.Buyer != "0xa" || envelope.Payload.AmountPaid != 2 || envelope.Payload.BytesAdded != 2000000 {
		t.Fatalf("payload = %+v", envelope.Payload)
	}
}

func TestNilPublisherIsSafe(t *testing.T) {
	var pub *Publisher
	pub.Publish(context.Background(), models.EventCommitCreated, CommitCreated{CommitID: "cmt_1"})
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	disabled, errNew := NewPublisher(config.RedisConfig{})
	if errNew != nil {
		t.Fatalf("disabled publisher: %v", errNew)
	}
	if disabled != nil {
		t.Fatalf("empty addr should disable the publisher")
	}
}

func TestRetentionCleanerDeletesOldRows(t *testing.T) {
	conn := openEventsTestDB(t)

	settings.StoreDBConfig(time.Now(), map[string]json.RawMessage{
		settings.EventsRetentionDaysKey: json.RawMessage(`30`),
	})
	t.Cleanup(func() { settings.StoreDBConfig(time.Time{}, nil) })

	old := models.Event{EventType: models.EventCommitCreated, Payload: []byte(`{}`)}
	fresh := models.Event{EventType: models.EventCommitCreated, Payload: []byte(`{}`)}
	if err := conn.Create(&old).Error; err != nil {
		t.Fatalf("create old: %v", err)
	}
	if err := conn.Create(&fresh).Error; err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	cutoffBreaker := time.Now().UTC().AddDate(0, 0, -60)
	if err := conn.Model(&models.Event{}).Where("id = ?", old.ID).Update("emitted_at", cutoffBreaker).Error; err != nil {
		t.Fatalf("backdate old event: %v", err)
	}

	cleaner := NewRetentionCleaner(conn)
	cleaner.cleanupOnce(context.Background())

	var remaining []models.Event
	if err := conn.Find(&remaining).Error; err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != fresh.ID {
		t.Fatalf("remaining = %+v", remaining)
	}
}

func TestRetentionCleanerZeroDaysKeepsEverything(t *testing.T) {
	conn := openEventsTestDB(t)

	settings.StoreDBConfig(time.Now(), map[string]json.RawMessage{
		settings.EventsRetentionDaysKey: json.RawMessage(`0`),
	})
	t.Cleanup(func() { settings.StoreDBConfig(time.Time{}, nil) })

	row := models.Event{EventType: models.EventStorageUsed, Payload: []byte(`{}`)}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := conn.Model(&models.Event{}).Where("id = ?", row.ID).Update("emitted_at", time.Now().UTC().AddDate(-1, 0, 0)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	cleaner := NewRetentionCleaner(conn)
	cleaner.cleanupOnce(context.Background())

	var count int64
	if err := conn.Model(&models.Event{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
