package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"adjusterhub/internal/ai"
	"adjusterhub/internal/app"
	"adjusterhub/internal/model"
	"adjusterhub/internal/repository"
	"adjusterhub/internal/transport/http/middleware"
)

func newChatRouter(t *testing.T, llm http.HandlerFunc) (*gin.Engine, *model.ChatSession) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))

	srv := httptest.NewServer(llm)
	t.Cleanup(srv.Close)
	svc := app.NewChatService(repository.NewChatSessionRepository(db), repository.NewChatMessageRepository(db), nil, nil,
		ai.NewClient(srv.Client()), ai.Config{BaseURL: srv.URL, APIKey: "k", Model: "chat"}, 20, zap.NewNop())
	session, err := svc.CreateSession(7, "roof")
	require.NoError(t, err)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextPrincipalKey, app.Principal{UserID: 7, Role: model.RoleAdjuster})
	})
	r.POST("/stream", NewChatHandler(svc).StreamMessage)
	return r, session
}

func postStream(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/stream", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStreamMessage_RelaysChunksThenDone(t *testing.T) {
	r, session := newChatRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		for _, part := range []string{"Step one\n", "Step two"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	rec := postStream(r, fmt.Sprintf(`{"session_id":%d,"content":"how do I scope a roof?"}`, session.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "data: Step one\\n\n\ndata: Step two\n\nevent: done\ndata: Step one\\nStep two\n\n", rec.Body.String())
}

func TestStreamMessage_ErrorEvent(t *testing.T) {
	r, session := newChatRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	rec := postStream(r, fmt.Sprintf(`{"session_id":%d,"content":"hello"}`, session.ID))
	assert.Equal(t, "event: error\ndata: assistant stream failed\n\n", rec.Body.String())
}

func TestStreamMessage_BadPayloadIsJSON(t *testing.T) {
	r, _ := newChatRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("model must not be called")
	})

	rec := postStream(r, `{"content":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestSanitizeSSE(t *testing.T) {
	assert.Equal(t, `a\nb\nc`, sanitizeSSE("a\r\nb\nc"))
}
