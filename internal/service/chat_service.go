package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liliang-cn/chatgalaxy/internal/config"
	"github.com/liliang-cn/chatgalaxy/internal/domain"
	"github.com/liliang-cn/chatgalaxy/internal/repository"
)

// contextWindow is how many recent messages feed the next turn.
const contextWindow = 10

// AIClient produces assistant replies
type AIClient interface {
	Chat(ctx context.Context, messages []domain.ContextMessage, temperature float32, maxTokens int) (string, int, error)
	ChatStream(ctx context.Context, messages []domain.ContextMessage, temperature float32, maxTokens int) (<-chan domain.StreamChunk, error)
}

// ChatService handles chat sessions and turns against the model provider
type ChatService struct {
	cfg         *config.Config
	sessionRepo *repository.SessionRepository
	roleRepo    *repository.RoleRepository
	ai          AIClient
}

// NewChatService creates a new chat service
func NewChatService(
	cfg *config.Config,
	sessionRepo *repository.SessionRepository,
	roleRepo *repository.RoleRepository,
	ai AIClient,
) *ChatService {
	return &ChatService{
		cfg:         cfg,
		sessionRepo: sessionRepo,
		roleRepo:    roleRepo,
		ai:          ai,
	}
}

// CreateSession creates a chat session bound to an AI role
func (s *ChatService) CreateSession(ctx context.Context, req *domain.CreateSessionRequest, userID string) (*domain.Session, error) {
	role, err := s.roleRepo.Get(req.RoleID)
	if err != nil {
		return nil, err
	}
	if role == nil || !role.IsActive {
		return nil, domain.ErrRoleNotFound
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New Chat"
	}
	if len(title) > domain.MaxTitleChars {
		title = title[:domain.MaxTitleChars]
	}

	session := &domain.Session{
		UserID:   userID,
		RoleID:   role.ID,
		Title:    title,
		IsActive: true,
		Status:   domain.SessionActive,
	}
	if userID == "" {
		// Guests get a session token minted on first create; it is their
		// only way back into the session.
		session.GuestToken = req.GuestToken
		if session.GuestToken == "" {
			session.GuestToken = uuid.New().String()
		}
	}

	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}

	if err := s.roleRepo.IncrementUsage(role.ID); err != nil {
		return nil, err
	}

	return session, nil
}

// GetSession retrieves a session the caller is allowed to see
func (s *ChatService) GetSession(ctx context.Context, id, userID, guestToken string) (*domain.Session, error) {
	session, err := s.sessionRepo.Get(id)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Status == domain.SessionDeleted {
		return nil, domain.ErrSessionNotFound
	}

	if session.UserID != "" && session.UserID != userID {
		return nil, domain.ErrSessionAccessDenied
	}
	if session.UserID == "" && session.GuestToken != "" && session.GuestToken != guestToken {
		return nil, domain.ErrSessionAccessDenied
	}

	return session, nil
}

// ListSessions retrieves the caller's sessions
func (s *ChatService) ListSessions(ctx context.Context, userID, guestToken string) ([]*domain.Session, error) {
	if userID != "" {
		return s.sessionRepo.ListByUser(userID)
	}
	if guestToken != "" {
		return s.sessionRepo.ListByGuest(guestToken)
	}
	return nil, nil
}

// UpdateSession applies a partial update to a session
func (s *ChatService) UpdateSession(ctx context.Context, id string, req *domain.UpdateSessionRequest, userID, guestToken string) (*domain.Session, error) {
	session, err := s.GetSession(ctx, id, userID, guestToken)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > domain.MaxTitleChars {
			return nil, domain.ErrValidation
		}
		session.Title = title
	}
	if req.IsActive != nil {
		session.IsActive = *req.IsActive
	}
	if req.Status != nil {
		switch *req.Status {
		case domain.SessionActive, domain.SessionArchived, domain.SessionDeleted:
			session.Status = *req.Status
		default:
			return nil, domain.ErrValidation
		}
		if session.Status == domain.SessionDeleted {
			session.IsActive = false
		}
	}

	if err := s.sessionRepo.Update(session); err != nil {
		return nil, err
	}

	return session, nil
}

// DeleteSession soft-deletes a session
func (s *ChatService) DeleteSession(ctx context.Context, id, userID, guestToken string) error {
	session, err := s.GetSession(ctx, id, userID, guestToken)
	if err != nil {
		return err
	}

	session.Status = domain.SessionDeleted
	session.IsActive = false
	return s.sessionRepo.Update(session)
}

// GetHistory retrieves a session's message log
func (s *ChatService) GetHistory(ctx context.Context, id, userID, guestToken string) (*domain.ChatHistory, error) {
	session, err := s.GetSession(ctx, id, userID, guestToken)
	if err != nil {
		return nil, err
	}

	role, err := s.roleRepo.Get(session.RoleID)
	if err != nil {
		return nil, err
	}

	messages, err := s.sessionRepo.GetMessages(session.ID)
	if err != nil {
		return nil, err
	}

	history := &domain.ChatHistory{
		SessionID:     session.ID,
		TotalMessages: session.MessageCount,
		TotalTokens:   session.TotalTokens,
		SessionTitle:  session.Title,
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
	}
	if role != nil {
		history.RoleName = role.Name
	}
	for _, m := range messages {
		history.Messages = append(history.Messages, *m)
	}

	return history, nil
}

// SendMessage runs one complete chat turn
func (s *ChatService) SendMessage(ctx context.Context, req *domain.ChatRequest, userID string) (*domain.ChatResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	role, session, err := s.prepareTurn(ctx, req, userID)
	if err != nil {
		return nil, err
	}

	// Save user message
	userMsg := &domain.Message{
		SessionID: session.ID,
		Role:      "user",
		Content:   req.Message,
	}
	if err := s.sessionRepo.AppendMessage(userMsg); err != nil {
		return nil, err
	}

	messages, err := s.buildContext(req, role, session)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	content, tokens, err := s.ai.Chat(ctx, messages, derefTemperature(req), derefMaxTokens(req))
	if err != nil {
		return nil, err
	}

	// Save assistant message
	assistantMsg := &domain.Message{
		SessionID:  session.ID,
		Role:       "assistant",
		Content:    content,
		TokensUsed: tokens,
	}
	if err := s.sessionRepo.AppendMessage(assistantMsg); err != nil {
		return nil, err
	}

	return &domain.ChatResponse{
		SessionID:     session.ID,
		MessageID:     assistantMsg.ID,
		UserMessageID: userMsg.ID,
		Content:       content,
		RoleID:        role.ID,
		RoleName:      role.Name,
		TokensUsed:    tokens,
		ResponseTime:  time.Since(start).Seconds(),
		Metadata:      map[string]any{"model": s.cfg.AI.Model, "mode": string(req.Mode)},
		CreatedAt:     assistantMsg.CreatedAt,
	}, nil
}

// StreamMessage runs one chat turn delivered as incremental chunks.
// The final chunk has IsComplete set; a chunk with Err set aborts the turn.
func (s *ChatService) StreamMessage(ctx context.Context, req *domain.ChatRequest, userID string) (<-chan domain.StreamChunk, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	role, session, err := s.prepareTurn(ctx, req, userID)
	if err != nil {
		return nil, err
	}

	// Save user message
	userMsg := &domain.Message{
		SessionID: session.ID,
		Role:      "user",
		Content:   req.Message,
	}
	if err := s.sessionRepo.AppendMessage(userMsg); err != nil {
		return nil, err
	}

	messages, err := s.buildContext(req, role, session)
	if err != nil {
		return nil, err
	}

	aiCh, err := s.ai.ChatStream(ctx, messages, derefTemperature(req), derefMaxTokens(req))
	if err != nil {
		return nil, err
	}

	// The assistant message id is fixed up front so every chunk of the
	// turn carries the same id.
	messageID := uuid.New().String()
	out := make(chan domain.StreamChunk, 100)

	go func() {
		defer close(out)

		var content strings.Builder
		tokens := 0

		for chunk := range aiCh {
			if chunk.Err != nil {
				out <- domain.StreamChunk{MessageID: messageID, Err: chunk.Err}
				return
			}
			if chunk.IsComplete {
				tokens = chunk.TokensUsed
				break
			}
			content.WriteString(chunk.Content)
			out <- domain.StreamChunk{MessageID: messageID, Content: chunk.Content}
		}

		assistantMsg := &domain.Message{
			ID:         messageID,
			SessionID:  session.ID,
			Role:       "assistant",
			Content:    content.String(),
			TokensUsed: tokens,
		}
		if err := s.sessionRepo.AppendMessage(assistantMsg); err != nil {
			out <- domain.StreamChunk{MessageID: messageID, Err: err}
			return
		}

		out <- domain.StreamChunk{MessageID: messageID, IsComplete: true, TokensUsed: tokens}
	}()

	return out, nil
}

// prepareTurn resolves the role and the target session, creating a session
// on the fly for a first message without one.
func (s *ChatService) prepareTurn(ctx context.Context, req *domain.ChatRequest, userID string) (*domain.AIRole, *domain.Session, error) {
	role, err := s.roleRepo.Get(req.RoleID)
	if err != nil {
		return nil, nil, err
	}
	if role == nil || !role.IsActive {
		return nil, nil, domain.ErrRoleNotFound
	}

	if req.SessionID == "" {
		session, err := s.CreateSession(ctx, &domain.CreateSessionRequest{
			RoleID:     role.ID,
			Title:      titleFromMessage(req.Message),
			GuestToken: req.GuestToken,
		}, userID)
		if err != nil {
			return nil, nil, err
		}
		req.SessionID = session.ID
		return role, session, nil
	}

	session, err := s.GetSession(ctx, req.SessionID, userID, req.GuestToken)
	if err != nil {
		return nil, nil, err
	}
	return role, session, nil
}

// buildContext assembles the provider messages: the role's system prompt,
// then either the caller-supplied context or the recent session history
// (which already ends with the just-saved user message).
func (s *ChatService) buildContext(req *domain.ChatRequest, role *domain.AIRole, session *domain.Session) ([]domain.ContextMessage, error) {
	messages := []domain.ContextMessage{{Role: "system", Content: role.SystemPrompt}}

	if req.Mode == domain.ModeContext && len(req.ContextMessages) > 0 {
		messages = append(messages, req.ContextMessages...)
		messages = append(messages, domain.ContextMessage{Role: "user", Content: req.Message})
		return messages, nil
	}

	history, err := s.sessionRepo.RecentMessages(session.ID, contextWindow)
	if err != nil {
		return nil, err
	}
	for _, m := range history {
		messages = append(messages, domain.ContextMessage{Role: m.Role, Content: m.Content})
	}

	return messages, nil
}

func titleFromMessage(message string) string {
	runes := []rune(strings.TrimSpace(message))
	if len(runes) > 30 {
		return string(runes[:30])
	}
	return string(runes)
}

func derefTemperature(req *domain.ChatRequest) float32 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return 0
}

func derefMaxTokens(req *domain.ChatRequest) int {
	if req.MaxTokens != nil {
		return *req.MaxTokens
	}
	return 0
}
