package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository/memory"
	"github.com/spec-kit/support-desk/internal/service"
	apperrors "github.com/spec-kit/support-desk/pkg/util/errorutil"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details map[string]any  `json:"details"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	app     *fiber.App
	store   *memory.Store
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	store := memory.NewStore()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	tokens := auth.NewTokenManager("test-secret", 5)

	assignment := service.NewAssignmentService(service.AssignmentDependencies{
		TxManager:        store,
		UserRepo:         store.Users(),
		TicketRepo:       store.Tickets(),
		ChatRepo:         store.Chats(),
		Evaluator:        service.NewEvaluator(time.UTC, 15*time.Minute),
		Dispatcher:       dispatcher,
		Logger:           logger,
		Metrics:          metrics,
		MaxClaimAttempts: 3,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		TxManager:      store,
		UserRepo:       store.Users(),
		TicketRepo:     store.Tickets(),
		ChatRepo:       store.Chats(),
		AttachmentRepo: store.Attachments(),
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	chats := service.NewChatService(service.ChatDependencies{
		TxManager:   store,
		UserRepo:    store.Users(),
		ChatRepo:    store.Chats(),
		MessageRepo: store.Messages(),
		Dispatcher:  dispatcher,
		Logger:      logger,
		Config:      config.ChatConfig{DefaultPageSize: 20, MaxPageSize: 100},
	})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-desk", "test", nil),
		Tickets:        handlers.NewTicketsHandler(tickets, assignment),
		Chats:          handlers.NewChatsHandler(chats),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, "access_token", assignment, logger),
		Metrics:        metrics,
	})
	return &testServer{app: app, store: store, tokens: tokens, metrics: metrics}
}

func (s *testServer) addUser(t *testing.T, role domain.Role) (string, string) {
	t.Helper()
	id := uuid.NewString()
	user := domain.User{ID: id, Username: string(role) + "-" + id[:8], Email: id + "@example.com", Role: role}
	if role == domain.RoleClient {
		user.ClientProfile = &domain.ClientProfile{Company: "Acme"}
	} else {
		user.AdminProfile = &domain.AdminProfile{Role: role, Status: domain.AdminStatusActive}
	}
	s.store.PutUser(user)

	token, _, err := s.tokens.GenerateToken(id, role)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return id, token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func decodeData(t *testing.T, env envelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestTicketToChatFlow(t *testing.T) {
	srv := newTestServer(t)
	_, clientToken := srv.addUser(t, domain.RoleClient)
	agentID, agentToken := srv.addUser(t, domain.RoleSupport)

	status, env := srv.do(t, fiber.MethodPost, "/api/tickets", clientToken, map[string]any{
		"subject":     "VPN drops every hour",
		"description": "started after the last update",
		"attachments": []map[string]any{{"name": "vpn.log", "path": "tickets/vpn.log", "size": 512}},
	})
	if status != fiber.StatusCreated || !env.Success {
		t.Fatalf("create ticket = %d %+v", status, env)
	}
	var created struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	decodeData(t, env, &created)
	if created.Status != string(domain.TicketStatusOpen) {
		t.Fatalf("new ticket status = %s", created.Status)
	}

	// Any authenticated request by the agent pulls the next ticket.
	status, env = srv.do(t, fiber.MethodGet, "/api/tickets/support", agentToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("support list = %d %+v", status, env)
	}
	var assigned []struct {
		ID         int64   `json:"id"`
		AssigneeID *string `json:"assigneeId"`
		Chat       *struct {
			ID string `json:"id"`
		} `json:"chat"`
	}
	decodeData(t, env, &assigned)
	if len(assigned) != 1 || assigned[0].ID != created.ID || assigned[0].AssigneeID == nil || *assigned[0].AssigneeID != agentID {
		t.Fatalf("support tickets = %+v, want ticket %d assigned to agent", assigned, created.ID)
	}
	if assigned[0].Chat == nil {
		t.Fatal("assigned ticket has no chat")
	}
	chatPath := "/api/chats/" + assigned[0].Chat.ID

	status, env = srv.do(t, fiber.MethodPost, chatPath+"/messages", clientToken, map[string]any{"content": "hello?"})
	if status != fiber.StatusCreated {
		t.Fatalf("send message = %d %+v", status, env)
	}

	status, env = srv.do(t, fiber.MethodGet, chatPath+"/messages?initial=true", agentToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("get messages = %d %+v", status, env)
	}
	var page struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
		NextCursor   *string `json:"nextCursor"`
		Participants []struct {
			ID string `json:"id"`
		} `json:"participants"`
	}
	decodeData(t, env, &page)
	if len(page.Messages) != 1 || page.Messages[0].Content != "hello?" || page.NextCursor != nil {
		t.Errorf("page = %+v", page)
	}
	if len(page.Participants) != 2 {
		t.Errorf("participants = %+v, want requester and agent", page.Participants)
	}

	ticketPath := fmt.Sprintf("/api/tickets/%d", created.ID)
	if status, env = srv.do(t, fiber.MethodPut, ticketPath+"/close", clientToken, nil); status != fiber.StatusForbidden || env.Code != apperrors.CodeForbidden {
		t.Errorf("close by requester = %d %s, want 403", status, env.Code)
	}
	if status, env = srv.do(t, fiber.MethodPut, ticketPath+"/close", agentToken, nil); status != fiber.StatusOK {
		t.Fatalf("close by assignee = %d %+v", status, env)
	}
	if status, env = srv.do(t, fiber.MethodPost, chatPath+"/messages", clientToken, map[string]any{"content": "thanks"}); status != fiber.StatusUnprocessableEntity || env.Code != apperrors.CodePrecondition {
		t.Errorf("message to ended chat = %d %s, want 422", status, env.Code)
	}
	if status, _ = srv.do(t, fiber.MethodPut, ticketPath+"/confirm", clientToken, nil); status != fiber.StatusOK {
		t.Errorf("confirm = %d, want 200", status)
	}

	if got := srv.metrics.AssignmentCount(observability.OutcomeAssigned); got != 1 {
		t.Errorf("assigned metric = %d, want 1", got)
	}
}

func TestErrorResponses(t *testing.T) {
	srv := newTestServer(t)
	_, clientToken := srv.addUser(t, domain.RoleClient)
	_, agentToken := srv.addUser(t, domain.RoleSupport)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"no token", fiber.MethodGet, "/api/chats/me", "", nil, fiber.StatusUnauthorized, apperrors.CodeUnauthorized},
		{"staff creating ticket", fiber.MethodPost, "/api/tickets", agentToken, map[string]any{"subject": "s", "description": "d"}, fiber.StatusForbidden, apperrors.CodeForbidden},
		{"client listing support queue", fiber.MethodGet, "/api/tickets/support", clientToken, nil, fiber.StatusForbidden, apperrors.CodeForbidden},
		{"missing subject", fiber.MethodPost, "/api/tickets", clientToken, map[string]any{"description": "d"}, fiber.StatusBadRequest, apperrors.CodeValidation},
		{"bad priority", fiber.MethodPost, "/api/tickets", clientToken, map[string]any{"subject": "s", "description": "d", "priority": "urgent"}, fiber.StatusBadRequest, apperrors.CodeValidation},
		{"non numeric ticket id", fiber.MethodGet, "/api/tickets/abc", clientToken, nil, fiber.StatusBadRequest, apperrors.CodeValidation},
		{"missing ticket", fiber.MethodGet, "/api/tickets/999", clientToken, nil, fiber.StatusNotFound, apperrors.CodeNotFound},
		{"bad cursor", fiber.MethodGet, "/api/chats/" + uuid.NewString() + "/messages?cursor=yesterday", clientToken, nil, fiber.StatusBadRequest, apperrors.CodeValidation},
		{"unknown route", fiber.MethodGet, "/nowhere", "", nil, fiber.StatusNotFound, apperrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := srv.do(t, tc.method, tc.path, tc.token, tc.body)
			if status != tc.status || env.Code != tc.code {
				t.Fatalf("got %d %s (%s), want %d %s", status, env.Code, env.Message, tc.status, tc.code)
			}
			if env.Success {
				t.Error("error response reported success")
			}
		})
	}

	_, env := srv.do(t, fiber.MethodPost, "/api/tickets", clientToken, map[string]any{"description": "d"})
	if _, ok := env.Details["subject"]; !ok {
		t.Errorf("details = %v, want subject field error", env.Details)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		status, env := srv.do(t, fiber.MethodGet, path, "", nil)
		if status != fiber.StatusOK || !env.Success {
			t.Errorf("%s = %d %+v", path, status, env)
		}
	}

	down := handlers.NewHealthHandler("support-desk", "test", map[string]handlers.Pinger{"redis": failingPinger{}})
	app := fiber.New()
	app.Get("/ready", down.Ready)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ready", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusServiceUnavailable || !strings.Contains(string(body), "connection refused") {
		t.Errorf("ready with failing redis = %d %s", resp.StatusCode, body)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error {
	return errors.New("dial tcp 127.0.0.1:6379: connection refused")
}

func TestFileMessageFlow(t *testing.T) {
	srv := newTestServer(t)
	_, clientToken := srv.addUser(t, domain.RoleClient)
	_, agentToken := srv.addUser(t, domain.RoleSupport)
	_, outsiderToken := srv.addUser(t, domain.RoleClient)

	if status, env := srv.do(t, fiber.MethodPost, "/api/tickets", clientToken, map[string]any{
		"subject":     "Scanner jams",
		"description": "photo attached in chat",
	}); status != fiber.StatusCreated {
		t.Fatalf("create ticket = %d %+v", status, env)
	}
	_, env := srv.do(t, fiber.MethodGet, "/api/tickets/support", agentToken, nil)
	var assigned []struct {
		Chat *struct {
			ID string `json:"id"`
		} `json:"chat"`
	}
	decodeData(t, env, &assigned)
	if len(assigned) != 1 || assigned[0].Chat == nil {
		t.Fatalf("support tickets = %+v, want one with a chat", assigned)
	}
	chatPath := "/api/chats/" + assigned[0].Chat.ID

	status, env := srv.do(t, fiber.MethodPost, chatPath+"/messages", clientToken, map[string]any{
		"type": "image",
		"file": map[string]any{"name": "jam.jpg", "path": "chats/jam.jpg", "bucket": "uploads", "size": 90000, "mimeType": "image/jpeg", "meta": map[string]any{"width": 1024, "height": 768}},
	})
	if status != fiber.StatusCreated {
		t.Fatalf("send image = %d %+v", status, env)
	}
	var sent struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		File *struct {
			Path string `json:"path"`
			Meta *struct {
				Width int `json:"width"`
			} `json:"meta"`
		} `json:"file"`
	}
	decodeData(t, env, &sent)
	if sent.Type != "image" || sent.File == nil || sent.File.Path != "chats/jam.jpg" || sent.File.Meta == nil || sent.File.Meta.Width != 1024 {
		t.Fatalf("sent = %+v", sent)
	}

	_, env = srv.do(t, fiber.MethodGet, chatPath+"/messages", agentToken, nil)
	var page struct {
		Messages []struct {
			File *struct {
				Name string `json:"name"`
			} `json:"file"`
		} `json:"messages"`
	}
	decodeData(t, env, &page)
	if len(page.Messages) != 1 || page.Messages[0].File == nil || page.Messages[0].File.Name != "jam.jpg" {
		t.Errorf("page = %+v, want the image with its file", page)
	}

	filePath := "/api/chats/files/" + sent.ID
	status, env = srv.do(t, fiber.MethodGet, filePath, agentToken, nil)
	if status != fiber.StatusOK {
		t.Fatalf("get file = %d %+v", status, env)
	}
	var file struct {
		MessageID string `json:"messageId"`
		MimeType  string `json:"mimeType"`
	}
	decodeData(t, env, &file)
	if file.MessageID != sent.ID || file.MimeType != "image/jpeg" {
		t.Errorf("file = %+v", file)
	}

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"outsider reads file", fiber.MethodGet, filePath, outsiderToken, nil, fiber.StatusForbidden, apperrors.CodeForbidden},
		{"unknown message", fiber.MethodGet, "/api/chats/files/" + uuid.NewString(), clientToken, nil, fiber.StatusNotFound, apperrors.CodeNotFound},
		{"no content and no file", fiber.MethodPost, chatPath + "/messages", clientToken, map[string]any{"type": "text"}, fiber.StatusBadRequest, apperrors.CodeValidation},
		{"image without file", fiber.MethodPost, chatPath + "/messages", clientToken, map[string]any{"content": "see", "type": "image"}, fiber.StatusBadRequest, apperrors.CodeValidation},
		{"file without path", fiber.MethodPost, chatPath + "/messages", clientToken, map[string]any{"type": "image", "file": map[string]any{"name": "x.png"}}, fiber.StatusBadRequest, apperrors.CodeValidation},
		{"reused path", fiber.MethodPost, chatPath + "/messages", agentToken, map[string]any{"type": "image", "file": map[string]any{"name": "dup.jpg", "path": "chats/jam.jpg"}}, fiber.StatusConflict, apperrors.CodeConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := srv.do(t, tc.method, tc.path, tc.token, tc.body)
			if status != tc.status || env.Code != tc.code {
				t.Fatalf("got %d %s (%s), want %d %s", status, env.Code, env.Message, tc.status, tc.code)
			}
		})
	}
}
