package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bandmate/auth"
	"bandmate/domain"
	"bandmate/moderation"
	"bandmate/repositories"
	"bandmate/runtime/workers"
	"bandmate/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

type nullBroadcaster struct{}

func (nullBroadcaster) Enqueue(domain.Message) {}

type staticStats struct{}

func (staticStats) Latest() workers.ProcessStats { return workers.ProcessStats{} }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	req := require.New(t)
	log := slog.Default()

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	index, err := repositories.NewSearchIndex(t.TempDir(), log)
	req.NoError(err)

	moderator, err := moderation.NewModerator([]string{"scamlink"}, '*')
	req.NoError(err)

	issuer := auth.NewTokenIssuer("handler-test-secret", time.Hour)
	users := repositories.NewUserRepository(db)
	conversations := repositories.NewConversationStore(db, log)
	messages := repositories.NewMessageStore(db, log, 4096)

	authSvc := services.NewAuthService(users, issuer)
	convSvc := services.NewConversationService(log, conversations, index)
	msgSvc := services.NewMessagingService(log, messages, index, moderator, nullBroadcaster{})
	receipts := services.NewReceiptService(messages)

	handler := NewHandler(log, authSvc, convSvc, msgSvc, receipts, staticStats{})
	notWS := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotImplemented) }
	server := httptest.NewServer(handler.Routes(auth.NewMiddleware(issuer), notWS))

	t.Cleanup(func() {
		server.Close()
		_ = index.Close()
		_ = db.Close()
	})
	return server
}

func do(t *testing.T, server *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := server.Client().Do(httpReq)
	require.NoError(t, err)
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, payload
}

func register(t *testing.T, server *httptest.Server, email, role string) (token, userID string) {
	t.Helper()
	req := require.New(t)
	resp, payload := do(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "ComplexPass123!!", "role": role,
	})
	req.Equal(http.StatusCreated, resp.StatusCode, string(payload))

	var out struct {
		Token string `json:"token"`
	}
	req.NoError(json.Unmarshal(payload, &out))

	issuer := auth.NewTokenIssuer("handler-test-secret", time.Hour)
	claims, err := issuer.Validate(out.Token)
	req.NoError(err)
	return out.Token, claims.UserID
}

func Test_Auth_Endpoints(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	token, _ := register(t, server, "alice@band.example", "PERFORMER")
	req.NotEmpty(token)

	// Duplicate email conflicts
	resp, _ := do(t, server, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "alice@band.example", "password": "ComplexPass123!!", "role": "PERFORMER",
	})
	req.Equal(http.StatusConflict, resp.StatusCode)

	// Login works, wrong password is a 401
	resp, _ = do(t, server, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@band.example", "password": "ComplexPass123!!",
	})
	req.Equal(http.StatusOK, resp.StatusCode)

	resp, _ = do(t, server, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@band.example", "password": "WrongPass12345!!",
	})
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_Protected_Routes_Require_A_Token(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	resp, _ := do(t, server, http.MethodGet, "/api/conversations", "", nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = do(t, server, http.MethodGet, "/api/conversations", "not-a-token", nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_Stats_Require_An_Admin_Account(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	resp, _ := do(t, server, http.MethodGet, "/debug/stats", "", nil)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)

	performer, _ := register(t, server, "alice@band.example", "PERFORMER")
	resp, _ = do(t, server, http.MethodGet, "/debug/stats", performer, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	admin, _ := register(t, server, "ops@band.example", "ADMIN")
	resp, _ = do(t, server, http.MethodGet, "/debug/stats", admin, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
}

func Test_Conversation_And_Message_Flow(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	tokenA, _ := register(t, server, "alice@band.example", "PERFORMER")
	tokenB, idB := register(t, server, "venue@band.example", "VENUE_OWNER")

	// Alice opens a conversation with the venue
	resp, payload := do(t, server, http.MethodPost, "/api/conversations", tokenA,
		map[string][]string{"participant_ids": {idB}})
	req.Equal(http.StatusCreated, resp.StatusCode, string(payload))
	var conv domain.Conversation
	req.NoError(json.Unmarshal(payload, &conv))
	req.Len(conv.Participants, 2)

	// Creating it again returns the same conversation
	resp, payload = do(t, server, http.MethodPost, "/api/conversations", tokenB,
		map[string][]string{"participant_ids": {conv.Participants[0], conv.Participants[1]}})
	req.Equal(http.StatusCreated, resp.StatusCode)
	var again domain.Conversation
	req.NoError(json.Unmarshal(payload, &again))
	req.Equal(conv.ID, again.ID)

	// Alice sends a message
	resp, payload = do(t, server, http.MethodPost, "/api/messages", tokenA, map[string]any{
		"conversation_id": conv.ID, "receiver_id": idB, "content": "any dates in october?",
	})
	req.Equal(http.StatusCreated, resp.StatusCode, string(payload))
	var sent domain.Message
	req.NoError(json.Unmarshal(payload, &sent))

	// The venue reads the thread and marks the message read
	resp, payload = do(t, server, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", tokenB, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	var history []domain.Message
	req.NoError(json.Unmarshal(payload, &history))
	req.Len(history, 1)

	resp, payload = do(t, server, http.MethodPost,
		fmt.Sprintf("/api/messages/%d/read", sent.ID), tokenB, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.JSONEq(`{"read": true}`, string(payload))

	// Search finds it, scoped to a participant
	resp, payload = do(t, server, http.MethodGet,
		"/api/conversations/"+conv.ID+"/messages/search?q=october", tokenA, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	var found []domain.Message
	req.NoError(json.Unmarshal(payload, &found))
	req.Len(found, 1)

	// A third account cannot read the thread
	tokenC, _ := register(t, server, "other@band.example", "PERFORMER")
	resp, _ = do(t, server, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", tokenC, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func Test_Message_Edit_And_Delete_Authorization(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	tokenA, _ := register(t, server, "alice@band.example", "PERFORMER")
	tokenB, idB := register(t, server, "venue@band.example", "VENUE_OWNER")

	_, payload := do(t, server, http.MethodPost, "/api/conversations", tokenA,
		map[string][]string{"participant_ids": {idB}})
	var conv domain.Conversation
	req.NoError(json.Unmarshal(payload, &conv))

	_, payload = do(t, server, http.MethodPost, "/api/messages", tokenA, map[string]any{
		"conversation_id": conv.ID, "content": "typo herre",
	})
	var sent domain.Message
	req.NoError(json.Unmarshal(payload, &sent))

	// Only the author may edit
	resp, _ := do(t, server, http.MethodPatch,
		fmt.Sprintf("/api/messages/%d", sent.ID), tokenB, map[string]string{"content": "hijacked"})
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp, payload = do(t, server, http.MethodPatch,
		fmt.Sprintf("/api/messages/%d", sent.ID), tokenA, map[string]string{"content": "typo here"})
	req.Equal(http.StatusOK, resp.StatusCode)
	var edited domain.Message
	req.NoError(json.Unmarshal(payload, &edited))
	req.Equal("typo here", edited.Content)

	// A non-author delete reports false, the author's succeeds
	resp, payload = do(t, server, http.MethodDelete,
		fmt.Sprintf("/api/messages/%d", sent.ID), tokenB, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.JSONEq(`{"deleted": false}`, string(payload))

	resp, payload = do(t, server, http.MethodDelete,
		fmt.Sprintf("/api/messages/%d", sent.ID), tokenA, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.JSONEq(`{"deleted": true}`, string(payload))
}

func Test_Conversation_Delete_Cascades(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	tokenA, _ := register(t, server, "alice@band.example", "PERFORMER")
	_, idB := register(t, server, "venue@band.example", "VENUE_OWNER")

	_, payload := do(t, server, http.MethodPost, "/api/conversations", tokenA,
		map[string][]string{"participant_ids": {idB}})
	var conv domain.Conversation
	req.NoError(json.Unmarshal(payload, &conv))

	_, _ = do(t, server, http.MethodPost, "/api/messages", tokenA, map[string]any{
		"conversation_id": conv.ID, "content": "soon to vanish",
	})

	// An outsider cannot delete the conversation
	tokenC, _ := register(t, server, "other@band.example", "PERFORMER")
	resp, _ := do(t, server, http.MethodDelete, "/api/conversations/"+conv.ID, tokenC, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp, _ = do(t, server, http.MethodDelete, "/api/conversations/"+conv.ID, tokenA, nil)
	req.Equal(http.StatusNoContent, resp.StatusCode)

	// The thread is gone with it
	resp, _ = do(t, server, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", tokenA, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func Test_Send_Rejections(t *testing.T) {
	req := require.New(t)
	server := newTestServer(t)

	tokenA, _ := register(t, server, "alice@band.example", "PERFORMER")
	tokenC, _ := register(t, server, "other@band.example", "PERFORMER")
	_, idB := register(t, server, "venue@band.example", "VENUE_OWNER")

	_, payload := do(t, server, http.MethodPost, "/api/conversations", tokenA,
		map[string][]string{"participant_ids": {idB}})
	var conv domain.Conversation
	req.NoError(json.Unmarshal(payload, &conv))

	// A non-participant cannot post into the thread
	resp, _ := do(t, server, http.MethodPost, "/api/messages", tokenC, map[string]any{
		"conversation_id": conv.ID, "content": "crashing the party",
	})
	req.Equal(http.StatusForbidden, resp.StatusCode)

	// Unknown conversation and empty content are rejected too
	resp, _ = do(t, server, http.MethodPost, "/api/messages", tokenA, map[string]any{
		"conversation_id": "no-such-conversation", "content": "hello",
	})
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, server, http.MethodPost, "/api/messages", tokenA, map[string]any{
		"conversation_id": conv.ID, "content": "",
	})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}
