package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"adjusterhub/internal/event"
	"adjusterhub/internal/model"
	"adjusterhub/internal/repository"
)

func newTestWorker(t *testing.T) (*EventPersistWorker, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))
	w := NewEventPersistWorker(nil, repository.NewChatMessageRepository(db), repository.NewSecurityEventRepository(db), "events", zap.NewNop())
	return w, db
}

func envelope(t *testing.T, eventType string, payload interface{}) []byte {
	t.Helper()
	env, err := event.NewEnvelope(eventType, payload)
	require.NoError(t, err)
	body, err := json.Marshal(env)
	require.NoError(t, err)
	return body
}

func TestHandle_PersistsByType(t *testing.T) {
	w, db := newTestWorker(t)

	require.NoError(t, w.Handle(envelope(t, event.TypeChatMessage, model.ChatMessage{SessionID: 3, UserID: 1, Role: "user", Content: "hello"})))
	require.NoError(t, w.Handle(envelope(t, event.TypeSecurityEvent, model.SecurityEvent{Type: "login_failed", Severity: model.SeverityWarning, IPAddress: "198.51.100.4"})))

	var messages []model.ChatMessage
	require.NoError(t, db.Find(&messages).Error)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)

	var events []model.SecurityEvent
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, "198.51.100.4", events[0].IPAddress)
}

func TestHandle_UndecodableIsPermanent(t *testing.T) {
	w, _ := newTestWorker(t)

	assert.ErrorIs(t, w.Handle([]byte("{not json")), errUndecodable)
	assert.ErrorIs(t, w.Handle(envelope(t, "mystery", map[string]string{})), errUndecodable)
	assert.ErrorIs(t, w.Handle([]byte(`{"type":"chat_message","payload":"nope"}`)), errUndecodable)
}

func TestSchedulerWrap_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewScheduler(zap.New(core))
	defer s.Stop()

	s.wrap("purge", func(context.Context) error { return errors.New("db down") })()
	s.wrap("sweep", func(context.Context) error { return nil })()

	failed := logs.FilterMessage("scheduled job failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "purge", failed[0].ContextMap()["job"])
	assert.Len(t, logs.FilterMessage("scheduled job done").All(), 1)

	assert.Error(t, s.Add("bad", "not a spec", func(context.Context) error { return nil }))
	assert.NoError(t, s.Add("sweep", "@every 1m", func(context.Context) error { return nil }))
}

func TestSweepAndPurgeJobs(t *testing.T) {
	calls := 0
	job := SweepJob(zap.NewNop(), map[string]func() int{
		"a": func() int { calls++; return 2 },
		"b": func() int { calls++; return 0 },
	})
	require.NoError(t, job(context.Background()))
	assert.Equal(t, 2, calls)

	purge := PurgeJob(zap.NewNop(), "sessions", func() (int64, error) { return 0, errors.New("locked") })
	assert.EqualError(t, purge(context.Background()), "locked")
}
