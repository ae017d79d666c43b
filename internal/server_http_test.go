package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

func postJSON(t *testing.T, handler http.HandlerFunc, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	return recorder
}

func TestSignupLoginLogoutFlow(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.HandleSignup, "/signup", "",
		`{"username":"alice","email":"alice@example.com","password":"secret"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = postJSON(t, server.HandleSignup, "/signup", "",
		`{"username":"alice","email":"alice2@example.com","password":"secret"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d", resp.Code)
	}

	resp = postJSON(t, server.HandleLogin, "/login", "",
		`{"username":"alice","password":"secret"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var login loginResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Token == "" || login.Username != "alice" || login.UserID == 0 {
		t.Fatalf("unexpected login response: %+v", login)
	}

	resp = postJSON(t, server.HandleLogin, "/login", "",
		`{"username":"alice","password":"wrong"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: expected 401, got %d", resp.Code)
	}

	resp = postJSON(t, server.HandleCreateForum, "/forum/create", login.Token,
		`{"name":"general","tag":"talk"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("create forum: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = postJSON(t, server.HandleLogout, "/logout", login.Token, "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("logout: expected 204, got %d", resp.Code)
	}

	// The revoked token must stop working.
	resp = postJSON(t, server.HandleCreateForum, "/forum/create", login.Token,
		`{"name":"second","tag":"talk"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token: expected 401, got %d", resp.Code)
	}
}

func TestForumExistsProbe(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/exists?forum=42", nil)
	recorder := httptest.NewRecorder()
	server.HandleForumExists(recorder, req)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any connection, got %d", recorder.Code)
	}

	room := server.hub.GetOrCreate(42)
	client := newTestClient(room)
	room.Join(client)

	recorder = httptest.NewRecorder()
	server.HandleForumExists(recorder, httptest.NewRequest(http.MethodGet, "/exists?forum=42", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for live room, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	server.HandleForumExists(recorder, httptest.NewRequest(http.MethodGet, "/exists", nil))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing param, got %d", recorder.Code)
	}
}

func TestMembershipEndpoints(t *testing.T) {
	server := newTestServer(t)

	creator := signupAndLogin(t, server, "carol")
	member := signupAndLogin(t, server, "dan")

	resp := postJSON(t, server.HandleCreateForum, "/forum/create", creator,
		`{"name":"books","tag":"reading"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("create forum: %d", resp.Code)
	}
	var forum forumDTO
	if err := json.Unmarshal(resp.Body.Bytes(), &forum); err != nil {
		t.Fatalf("decode forum: %v", err)
	}

	joinPath := "/forum/" + itoa(forum.ID) + "/join"
	resp = postJSON(t, server.HandleForum, joinPath, member, "")
	if resp.Code != http.StatusCreated {
		t.Fatalf("join: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = postJSON(t, server.HandleForum, joinPath, member, "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate join: expected 409, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/forum/"+itoa(forum.ID)+"/members", nil)
	recorder := httptest.NewRecorder()
	server.HandleForum(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("members: expected 200, got %d", recorder.Code)
	}
	var members struct {
		Members []memberDTO `json:"members"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &members); err != nil {
		t.Fatalf("decode members: %v", err)
	}
	if len(members.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members.Members))
	}

	resp = postJSON(t, server.HandleForum, "/forum/"+itoa(forum.ID)+"/leave", member, "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("leave: expected 204, got %d", resp.Code)
	}
	resp = postJSON(t, server.HandleForum, "/forum/"+itoa(forum.ID)+"/leave", member, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("second leave: expected 404, got %d", resp.Code)
	}
}

func TestForumDetailReportsLiveViewers(t *testing.T) {
	server := newTestServer(t)
	creator := signupAndLogin(t, server, "erin")

	resp := postJSON(t, server.HandleCreateForum, "/forum/create", creator,
		`{"name":"live","tag":"now"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("create forum: %d", resp.Code)
	}
	var forum forumDTO
	if err := json.Unmarshal(resp.Body.Bytes(), &forum); err != nil {
		t.Fatalf("decode forum: %v", err)
	}

	server.presence.Connect(1, forum.ID)
	server.presence.Connect(2, forum.ID)

	recorder := httptest.NewRecorder()
	server.HandleForum(recorder, httptest.NewRequest(http.MethodGet, "/forum/"+itoa(forum.ID), nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("get forum: expected 200, got %d", recorder.Code)
	}
	var detail forumDTO
	if err := json.Unmarshal(recorder.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Viewers == nil || *detail.Viewers != 2 {
		t.Fatalf("expected 2 viewers, got %+v", detail.Viewers)
	}

	server.presence.Disconnect(1, forum.ID)
	server.presence.Disconnect(2, forum.ID)
}

func TestMetricsReportOnlineUsers(t *testing.T) {
	server := newTestServer(t)
	server.presence.Connect(7, 1)
	server.presence.Connect(7, 2) // second connection for the same user
	server.presence.Connect(8, 1)

	recorder := httptest.NewRecorder()
	server.MetricsHandler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "forumhub_online_users 2") {
		t.Fatalf("expected forumhub_online_users 2 in scrape output")
	}
}

func signupAndLogin(t *testing.T, server *Server, username string) string {
	t.Helper()
	resp := postJSON(t, server.HandleSignup, "/signup", "",
		`{"username":"`+username+`","email":"`+username+`@example.com","password":"secret"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("signup %s: %d", username, resp.Code)
	}
	resp = postJSON(t, server.HandleLogin, "/login", "",
		`{"username":"`+username+`","password":"secret"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("login %s: %d", username, resp.Code)
	}
	var login loginResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return login.Token
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
