package triage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/triage/triage/internal/platform/auth"
)

func newTestHandler(gen *mockGen) (*Handler, *mockChatRepo, *mockMessageRepo) {
	chats := newMockChatRepo()
	messages := &mockMessageRepo{}
	svc := NewService(gen, &mockRetriever{result: groundedResult()}, chats, messages, zerolog.Nop())
	return NewHandler(svc, chats, messages), chats, messages
}

func doRequest(h echo.HandlerFunc, req *http.Request, userID string, pathParams map[string]string) *httptest.ResponseRecorder {
	e := echo.New()
	rec := httptest.NewRecorder()
	if userID != "" {
		req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, userID))
	}
	c := e.NewContext(req, rec)
	for k, v := range pathParams {
		c.SetParamNames(k)
		c.SetParamValues(v)
	}
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestTurn_EndToEnd(t *testing.T) {
	gen := &mockGen{responses: []string{diagnosisListJSON}}
	h, _, _ := newTestHandler(gen)

	body := `{"message": "I twisted my ankle while playing basketball yesterday, sharp pain and swelling"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/turn", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := doRequest(h.Turn, req, "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp TurnResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stage != StageDiagnosisList {
		t.Errorf("stage = %s", resp.Stage)
	}
	if resp.ChatID == "" {
		t.Error("chatId missing")
	}
	if resp.CurrentContext.SchemaVersion != ContextSchemaVersion {
		t.Errorf("context version = %d", resp.CurrentContext.SchemaVersion)
	}
}

func TestTurn_BadContextIs400(t *testing.T) {
	h, _, _ := newTestHandler(&mockGen{})

	body := `{"message": "hi", "currentContext": {"schemaVersion": 42}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/turn", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := doRequest(h.Turn, req, "u1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTurn_MalformedBodyIs400(t *testing.T) {
	h, _, _ := newTestHandler(&mockGen{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/turn", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := doRequest(h.Turn, req, "u1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListChats_ScopedToUser(t *testing.T) {
	gen := &mockGen{responses: []string{diagnosisListJSON}}
	h, chats, _ := newTestHandler(gen)

	body := `{"message": "I twisted my ankle yesterday, sharp pain and swelling"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/turn", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	doRequest(h.Turn, req, "u1", nil)

	if len(chats.chats) != 1 {
		t.Fatalf("chats = %d", len(chats.chats))
	}

	rec := doRequest(h.ListChats, httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil), "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var page struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("total = %d", page.Total)
	}

	rec = doRequest(h.ListChats, httptest.NewRequest(http.MethodGet, "/api/v1/chats", nil), "someone-else", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("other user sees %d chats", page.Total)
	}
}

func TestListMessages_OwnershipEnforced(t *testing.T) {
	gen := &mockGen{responses: []string{diagnosisListJSON}}
	h, chats, _ := newTestHandler(gen)

	body := `{"message": "I twisted my ankle yesterday, sharp pain and swelling"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage/turn", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	doRequest(h.Turn, req, "u1", nil)

	var chatID string
	for id := range chats.chats {
		chatID = id.String()
	}

	rec := doRequest(h.ListMessages, httptest.NewRequest(http.MethodGet, "/", nil), "u1", map[string]string{"id": chatID})
	if rec.Code != http.StatusOK {
		t.Fatalf("owner status = %d", rec.Code)
	}

	rec = doRequest(h.ListMessages, httptest.NewRequest(http.MethodGet, "/", nil), "intruder", map[string]string{"id": chatID})
	if rec.Code != http.StatusNotFound {
		t.Errorf("intruder status = %d, want 404", rec.Code)
	}
}

func TestListMessages_InvalidID(t *testing.T) {
	h, _, _ := newTestHandler(&mockGen{})

	rec := doRequest(h.ListMessages, httptest.NewRequest(http.MethodGet, "/", nil), "u1", map[string]string{"id": "not-a-uuid"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListChats_UnavailableWithoutRepos(t *testing.T) {
	svc := NewService(&mockGen{}, &mockRetriever{}, nil, nil, zerolog.Nop())
	h := NewHandler(svc, nil, nil)

	rec := doRequest(h.ListChats, httptest.NewRequest(http.MethodGet, "/", nil), "u1", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
