package app

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"adjusterhub/internal/ai"
	"adjusterhub/internal/apperr"
	"adjusterhub/internal/event"
	"adjusterhub/internal/model"
	"adjusterhub/internal/pkg/textutil"
	"adjusterhub/internal/repository"
)

const assistantSystemPrompt = "You are the AdjusterHub assistant. You help independent insurance adjusters and firms " +
	"with claim workflows, estimates, documentation checklists, state licensing questions and report writing. " +
	"Be concise and practical. Never invent policy terms or claim facts you were not given."

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 200
)

var (
	ErrChatSessionNotFound = apperr.New(apperr.KindNotFound, "chat session not found")
	ErrMessageEmpty        = apperr.WithCode(apperr.KindValidation, 40040, "message content is empty")
)

type ChatService struct {
	sessionRepo  *repository.ChatSessionRepository
	messageRepo  *repository.ChatMessageRepository
	publisher    EventPublisher
	historyCache HistoryCache
	llm          *ai.Client
	chat         ai.Config
	maxContext   int
	log          *zap.Logger
	now          func() time.Time
}

// HistoryCache holds the newest Window messages of a session. Recent misses while a
// write is pending.
type HistoryCache interface {
	Window() int
	Recent(ctx context.Context, sessionID uint) ([]model.ChatMessage, bool, error)
	Fill(ctx context.Context, sessionID uint, messages []model.ChatMessage) error
	Invalidate(ctx context.Context, sessionID uint) error
	Forget(ctx context.Context, sessionID uint) error
}

type SendMessageInput struct {
	UserID    uint
	SessionID uint
	Content   string
}

type SendMessageResult struct {
	Messages []model.ChatMessage `json:"messages"`
}

func NewChatService(
	sessionRepo *repository.ChatSessionRepository,
	messageRepo *repository.ChatMessageRepository,
	publisher EventPublisher,
	historyCache HistoryCache,
	llm *ai.Client,
	chat ai.Config,
	maxContext int,
	log *zap.Logger,
) *ChatService {
	if maxContext <= 0 {
		maxContext = 20
	}
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		publisher:    publisher,
		historyCache: historyCache,
		llm:          llm,
		chat:         chat,
		maxContext:   maxContext,
		log:          log,
		now:          time.Now,
	}
}

func (s *ChatService) CreateSession(userID uint, title string) (*model.ChatSession, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New conversation"
	}
	session := &model.ChatSession{UserID: userID, Title: textutil.Truncate(title, 128)}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID uint) ([]model.ChatSession, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uint) error {
	if _, err := s.ownedSession(userID, sessionID); err != nil {
		return err
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		if err := s.historyCache.Forget(ctx, sessionID); err != nil {
			s.log.Warn("forget chat history failed", zap.Uint("session_id", sessionID), zap.Error(err))
		}
	}
	return nil
}

func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	promptMessages, userMessage, err := s.prepare(ctx, input)
	if err != nil {
		return nil, err
	}

	answer, err := s.llm.Complete(ctx, s.chat, promptMessages)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalService, "assistant request failed", err)
	}
	assistantMessage, err := s.finish(ctx, input, answer)
	if err != nil {
		return nil, err
	}
	return &SendMessageResult{Messages: []model.ChatMessage{*userMessage, *assistantMessage}}, nil
}

// StreamMessage forwards completion deltas to onChunk and persists the full answer
// once the stream ends.
func (s *ChatService) StreamMessage(ctx context.Context, input SendMessageInput, onChunk func(string) error) (string, error) {
	promptMessages, _, err := s.prepare(ctx, input)
	if err != nil {
		return "", err
	}
	full, err := s.llm.StreamComplete(ctx, s.chat, promptMessages, onChunk)
	if err != nil {
		return "", apperr.Wrap(apperr.KindExternalService, "assistant stream failed", err)
	}
	assistantMessage, err := s.finish(ctx, input, full)
	if err != nil {
		return "", err
	}
	return assistantMessage.Content, nil
}

// GetHistory returns the newest limit messages of a session, oldest first.
func (s *ChatService) GetHistory(ctx context.Context, userID, sessionID uint, limit int) ([]model.ChatMessage, error) {
	if _, err := s.ownedSession(userID, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	return s.recentMessages(ctx, sessionID, limit)
}

// recentMessages serves from the cached window when it covers limit: either it holds
// at least limit messages or it holds the whole session.
func (s *ChatService) recentMessages(ctx context.Context, sessionID uint, limit int) ([]model.ChatMessage, error) {
	fetch := limit
	if s.historyCache != nil {
		window := s.historyCache.Window()
		cached, hit, err := s.historyCache.Recent(ctx, sessionID)
		if err != nil {
			s.log.Warn("read chat history cache failed", zap.Uint("session_id", sessionID), zap.Error(err))
		}
		if hit && (len(cached) >= limit || len(cached) < window) {
			return trimMessages(cached, limit), nil
		}
		if fetch < window {
			fetch = window
		}
	}

	messages, err := s.messageRepo.ListRecentBySessionID(sessionID, fetch)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if err := s.historyCache.Fill(ctx, sessionID, messages); err != nil {
			s.log.Warn("fill chat history cache failed", zap.Uint("session_id", sessionID), zap.Error(err))
		}
	}
	return trimMessages(messages, limit), nil
}

func (s *ChatService) prepare(ctx context.Context, input SendMessageInput) ([]ai.ChatMessage, *model.ChatMessage, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, nil, ErrMessageEmpty
	}
	if _, err := s.ownedSession(input.UserID, input.SessionID); err != nil {
		return nil, nil, err
	}
	if !s.chat.Configured() {
		return nil, nil, ErrAssistantDisabled
	}
	promptMessages, err := s.buildPromptMessages(ctx, input.SessionID, content)
	if err != nil {
		return nil, nil, err
	}

	userMessage := &model.ChatMessage{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      "user",
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.persist(ctx, userMessage); err != nil {
		return nil, nil, err
	}
	return promptMessages, userMessage, nil
}

func (s *ChatService) finish(ctx context.Context, input SendMessageInput, answer string) (*model.ChatMessage, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		answer = "The model returned an empty response."
	}
	assistantMessage := &model.ChatMessage{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      "assistant",
		Content:   answer,
		CreatedAt: s.now(),
	}
	if err := s.persist(ctx, assistantMessage); err != nil {
		return nil, err
	}
	return assistantMessage, nil
}

// persist hands the message to the queue, or writes it directly when no broker is wired
// or publishing fails.
// The cached window is invalidated first so readers wait for the write.
func (s *ChatService) persist(ctx context.Context, msg *model.ChatMessage) error {
	if s.historyCache != nil {
		if err := s.historyCache.Invalidate(ctx, msg.SessionID); err != nil {
			s.log.Warn("invalidate chat history failed", zap.Uint("session_id", msg.SessionID), zap.Error(err))
		}
	}
	if s.publisher == nil {
		return s.messageRepo.Create(msg)
	}
	if err := s.publisher.Publish(ctx, event.TypeChatMessage, msg); err != nil {
		s.log.Warn("publish chat message failed, writing directly", zap.Uint("session_id", msg.SessionID), zap.Error(err))
		return s.messageRepo.Create(msg)
	}
	return nil
}

func (s *ChatService) ownedSession(userID, sessionID uint) (*model.ChatSession, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrChatSessionNotFound
	}
	return session, nil
}

func (s *ChatService) buildPromptMessages(ctx context.Context, sessionID uint, currentUserInput string) ([]ai.ChatMessage, error) {
	recent, err := s.recentMessages(ctx, sessionID, s.maxContext)
	if err != nil {
		return nil, err
	}

	messages := make([]ai.ChatMessage, 0, len(recent)+2)
	messages = append(messages, ai.ChatMessage{Role: "system", Content: assistantSystemPrompt})
	for _, item := range recent {
		role := item.Role
		if role == "" {
			role = "user"
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: item.Content})
	}
	messages = append(messages, ai.ChatMessage{Role: "user", Content: currentUserInput})
	return messages, nil
}

func trimMessages(messages []model.ChatMessage, limit int) []model.ChatMessage {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
