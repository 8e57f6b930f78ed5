package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestServer(t *testing.T) (*Service, *fakeStore, http.Handler) {
	t.Helper()
	fs := newFakeStore()
	seedUsers(fs)
	svc := newTestService(fs)
	return svc, fs, NewHTTPServer(svc, "*").Handler()
}

func bearerFor(t *testing.T, svc *Service, userID string) string {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return "Bearer " + session.Token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	_, _, handler := newTestServer(t)
	recorder := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
}

func TestRequestsRequireSession(t *testing.T) {
	_, _, handler := newTestServer(t)
	recorder := doJSON(t, handler, http.MethodGet, "/api/requests", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("code = %v", payload["code"])
	}
}

func TestViewerCannotCreateRequest(t *testing.T) {
	svc, _, handler := newTestServer(t)
	token := bearerFor(t, svc, "usr_carol")

	recorder := doJSON(t, handler, http.MethodPost, "/api/requests", token, CreateRequestInput{
		Title:  "Equipment purchase",
		Stages: []StageInput{{Approvers: []string{"usr_alice"}}},
	})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", recorder.Code)
	}
}

func TestCreateAndFetchRequestOverHTTP(t *testing.T) {
	svc, _, handler := newTestServer(t)
	token := bearerFor(t, svc, "usr_req")

	created := doJSON(t, handler, http.MethodPost, "/api/requests", token, CreateRequestInput{
		Title:   "Conference travel",
		Kind:    "travel",
		Summary: "Attend GopherCon",
		Stages:  []StageInput{{Approvers: []string{"usr_alice"}}},
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", created.Code, created.Body.String())
	}
	payload := decodeResponse(t, created)
	request, ok := payload["request"].(map[string]any)
	if !ok {
		t.Fatalf("payload = %v", payload)
	}
	requestID, _ := request["id"].(string)
	if !strings.HasPrefix(requestID, "req_") {
		t.Fatalf("request id = %q", requestID)
	}

	fetched := doJSON(t, handler, http.MethodGet, "/api/requests/"+requestID, token, nil)
	if fetched.Code != http.StatusOK {
		t.Fatalf("fetch status = %d", fetched.Code)
	}
	detail := decodeResponse(t, fetched)
	if _, ok := detail["request"]; !ok {
		t.Fatal("detail is missing request")
	}
	if _, ok := detail["verdict"]; !ok {
		t.Fatal("detail is missing verdict")
	}
	content, ok := detail["content"].(map[string]any)
	if !ok || content["summary"] != "Attend GopherCon" {
		t.Fatalf("detail content = %v", detail["content"])
	}
}

func TestApproveEndpointMapsWorkflowErrors(t *testing.T) {
	svc, _, handler := newTestServer(t)
	requester := bearerFor(t, svc, "usr_req")
	alice := bearerFor(t, svc, "usr_alice")
	bob := bearerFor(t, svc, "usr_bob")

	created := doJSON(t, handler, http.MethodPost, "/api/requests", requester, CreateRequestInput{
		Title:  "Laptop upgrade",
		Stages: []StageInput{{Approvers: []string{"usr_alice"}}},
	})
	payload := decodeResponse(t, created)
	requestID := payload["request"].(map[string]any)["id"].(string)

	// Bob is not an approver of this request.
	denied := doJSON(t, handler, http.MethodPost, "/api/requests/"+requestID+"/approve", bob, nil)
	if denied.Code != http.StatusForbidden {
		t.Fatalf("outsider approve status = %d, want 403", denied.Code)
	}
	if decodeResponse(t, denied)["code"] != "NOT_AUTHORIZED" {
		t.Fatalf("outsider approve code = %v", decodeResponse(t, denied)["code"])
	}

	approved := doJSON(t, handler, http.MethodPost, "/api/requests/"+requestID+"/approve", alice, nil)
	if approved.Code != http.StatusOK {
		t.Fatalf("approve status = %d: %s", approved.Code, approved.Body.String())
	}

	again := doJSON(t, handler, http.MethodPost, "/api/requests/"+requestID+"/approve", alice, nil)
	if again.Code != http.StatusConflict {
		t.Fatalf("second approve status = %d, want 409", again.Code)
	}
	if decodeResponse(t, again)["code"] != "REQUEST_NOT_PENDING" {
		t.Fatalf("second approve code = %v", decodeResponse(t, again)["code"])
	}
}

func TestCommentAndTimelineRoutes(t *testing.T) {
	svc, _, handler := newTestServer(t)
	requester := bearerFor(t, svc, "usr_req")

	created := doJSON(t, handler, http.MethodPost, "/api/requests", requester, CreateRequestInput{
		Title:  "Parental leave",
		Stages: []StageInput{{Approvers: []string{"usr_bob"}}},
	})
	requestID := decodeResponse(t, created)["request"].(map[string]any)["id"].(string)

	blank := doJSON(t, handler, http.MethodPost, "/api/requests/"+requestID+"/comments", requester, map[string]string{"content": "  "})
	if blank.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank comment status = %d, want 422", blank.Code)
	}

	posted := doJSON(t, handler, http.MethodPost, "/api/requests/"+requestID+"/comments", requester, map[string]string{"content": "starting May"})
	if posted.Code != http.StatusCreated {
		t.Fatalf("comment status = %d", posted.Code)
	}

	timeline := doJSON(t, handler, http.MethodGet, "/api/requests/"+requestID+"/timeline", requester, nil)
	if timeline.Code != http.StatusOK {
		t.Fatalf("timeline status = %d", timeline.Code)
	}
	items, ok := decodeResponse(t, timeline)["timeline"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("timeline = %v, want 2 items", items)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	svc, _, handler := newTestServer(t)
	token := bearerFor(t, svc, "usr_req")
	recorder := doJSON(t, handler, http.MethodGet, "/api/nope", token, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", recorder.Code)
	}
}

func TestSignupVerifySigninFlow(t *testing.T) {
	_, _, handler := newTestServer(t)

	signup := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":       "new@example.com",
		"password":    "hunter2hunter2",
		"displayName": "Newcomer",
	})
	if signup.Code != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", signup.Code, signup.Body.String())
	}
	devToken, _ := decodeResponse(t, signup)["devVerificationToken"].(string)
	if devToken == "" {
		t.Fatal("expected dev verification token when SMTP is not configured")
	}

	blocked := doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    "new@example.com",
		"password": "hunter2hunter2",
	})
	if blocked.Code != http.StatusForbidden {
		t.Fatalf("unverified signin status = %d, want 403", blocked.Code)
	}

	verify := doJSON(t, handler, http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": devToken})
	if verify.Code != http.StatusOK {
		t.Fatalf("verify status = %d", verify.Code)
	}

	signin := doJSON(t, handler, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email":    "new@example.com",
		"password": "hunter2hunter2",
	})
	if signin.Code != http.StatusOK {
		t.Fatalf("signin status = %d: %s", signin.Code, signin.Body.String())
	}
	payload := decodeResponse(t, signin)
	if payload["accessToken"] == "" || payload["refreshToken"] == "" {
		t.Fatalf("signin payload = %v", payload)
	}

	dup := doJSON(t, handler, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":       "new@example.com",
		"password":    "hunter2hunter2",
		"displayName": "Newcomer",
	})
	if dup.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d, want 409", dup.Code)
	}
}
