package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/sweetshop/internal/middleware"
	"github.com/hitoshi/sweetshop/internal/model"
	"github.com/hitoshi/sweetshop/internal/upstream"
)

// mockSessionService はSessionServiceInterfaceのモック。
type mockSessionService struct {
	restoreFn      func(ctx context.Context, sessionID string) (model.SessionState, error)
	loginFn        func(ctx context.Context, email, password string) (*model.Session, model.SessionState, error)
	registerFn     func(ctx context.Context, username, email, password string) (*model.Session, model.SessionState, error)
	logoutFn       func(ctx context.Context, sessionID string) error
	mergeProfileFn func(ctx context.Context, sessionID string, patch model.User) (*model.User, error)

	loginCalls  int
	logoutCalls int
}

func (m *mockSessionService) Restore(ctx context.Context, sessionID string) (model.SessionState, error) {
	if m.restoreFn != nil {
		return m.restoreFn(ctx, sessionID)
	}
	return model.AnonymousState(), nil
}

func (m *mockSessionService) Login(ctx context.Context, email, password string) (*model.Session, model.SessionState, error) {
	m.loginCalls++
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.AnonymousState(), model.NewInvalidCredentialsError("not configured")
}

func (m *mockSessionService) Register(ctx context.Context, username, email, password string) (*model.Session, model.SessionState, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, username, email, password)
	}
	return nil, model.AnonymousState(), model.NewValidationError("not configured")
}

func (m *mockSessionService) Logout(ctx context.Context, sessionID string) error {
	m.logoutCalls++
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockSessionService) MergeProfile(ctx context.Context, sessionID string, patch model.User) (*model.User, error) {
	if m.mergeProfileFn != nil {
		return m.mergeProfileFn(ctx, sessionID, patch)
	}
	return nil, model.NewSessionExpiredError()
}

// mockInvalidator はSessionInvalidatorのモック。
type mockInvalidator struct {
	calls   int
	lastID  string
	failErr error
}

func (m *mockInvalidator) Invalidate(ctx context.Context, sessionID string) error {
	m.calls++
	m.lastID = sessionID
	return m.failErr
}

// recordingAuthMetrics はSessionMetricsRecorderのモック。
type recordingAuthMetrics struct {
	loginSuccesses int
	loginFailures  int
	invalidated    int
}

func (m *recordingAuthMetrics) RecordLogin(success bool) {
	if success {
		m.loginSuccesses++
	} else {
		m.loginFailures++
	}
}

func (m *recordingAuthMetrics) RecordSessionInvalidated() {
	m.invalidated++
}

func testCookieConfig() CookieConfig {
	return CookieConfig{Secure: false, MaxAge: 86400}
}

func newAuthHandler(service *mockSessionService, metrics *recordingAuthMetrics) (*AuthHandler, *mockInvalidator) {
	inv := &mockInvalidator{}
	responder := NewErrorResponder(inv, metrics, testCookieConfig())
	return NewAuthHandler(service, responder, testCookieConfig(), metrics), inv
}

func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func adminUser() *model.User {
	return &model.User{ID: "u-1", Username: "admin", Email: "admin@example.com", IsAdmin: true}
}

func TestLogin_Success_SetsSessionCookie(t *testing.T) {
	metrics := &recordingAuthMetrics{}
	service := &mockSessionService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, model.SessionState, error) {
			if email != "admin@example.com" || password != "secret" {
				t.Errorf("login args = (%q, %q)", email, password)
			}
			sess := &model.Session{ID: "sess-1", AccessToken: "token-1", User: adminUser()}
			return sess, model.SessionState{Status: model.StatusAuthenticated, User: adminUser()}, nil
		},
	}
	h, _ := newAuthHandler(service, metrics)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@example.com","password":"secret"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	cookie := findCookie(t, rec, middleware.SessionCookieName)
	if cookie == nil {
		t.Fatal("session cookie not set")
	}
	if cookie.Value != "sess-1" {
		t.Errorf("cookie value = %q, want sess-1", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}

	var body sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != string(model.StatusAuthenticated) {
		t.Errorf("status = %q, want authenticated", body.Status)
	}
	if body.User == nil || !body.User.IsAdmin {
		t.Errorf("user = %+v, want admin user", body.User)
	}
	// トークンはレスポンスに一切含めない
	if strings.Contains(rec.Body.String(), "token-1") {
		t.Error("access token leaked in response body")
	}
	if metrics.loginSuccesses != 1 {
		t.Errorf("loginSuccesses = %d, want 1", metrics.loginSuccesses)
	}
}

func TestLogin_MissingFields_RejectedWithoutServiceCall(t *testing.T) {
	service := &mockSessionService{}
	h, _ := newAuthHandler(service, &recordingAuthMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"admin@example.com"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if service.loginCalls != 0 {
		t.Errorf("loginCalls = %d, want 0", service.loginCalls)
	}
}

func TestLogin_InvalidCredentials_RecordsFailure(t *testing.T) {
	metrics := &recordingAuthMetrics{}
	service := &mockSessionService{
		loginFn: func(ctx context.Context, email, password string) (*model.Session, model.SessionState, error) {
			return nil, model.AnonymousState(), model.NewInvalidCredentialsError("wrong password")
		},
	}
	h, _ := newAuthHandler(service, metrics)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"a@b.com","password":"bad"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if metrics.loginFailures != 1 {
		t.Errorf("loginFailures = %d, want 1", metrics.loginFailures)
	}
	if cookie := findCookie(t, rec, middleware.SessionCookieName); cookie != nil {
		t.Error("session cookie must not be set on login failure")
	}
}

func TestRegister_Success_ReturnsCreatedWithCookie(t *testing.T) {
	service := &mockSessionService{
		registerFn: func(ctx context.Context, username, email, password string) (*model.Session, model.SessionState, error) {
			user := &model.User{ID: "u-2", Username: username, Email: email}
			return &model.Session{ID: "sess-2", User: user},
				model.SessionState{Status: model.StatusAuthenticated, User: user}, nil
		},
	}
	h, _ := newAuthHandler(service, &recordingAuthMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"taro","email":"taro@example.com","password":"secret"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if cookie := findCookie(t, rec, middleware.SessionCookieName); cookie == nil || cookie.Value != "sess-2" {
		t.Errorf("session cookie = %+v, want sess-2", cookie)
	}
}

func TestRegister_InvalidEmail_Rejected(t *testing.T) {
	h, _ := newAuthHandler(&mockSessionService{}, &recordingAuthMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"taro","email":"not-an-email","password":"secret"}`))
	rec := httptest.NewRecorder()
	h.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLogout_ClearsCookie(t *testing.T) {
	service := &mockSessionService{}
	h, _ := newAuthHandler(service, &recordingAuthMetrics{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req = req.WithContext(middleware.ContextWithSessionID(req.Context(), "sess-1"))
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
	if service.logoutCalls != 1 {
		t.Errorf("logoutCalls = %d, want 1", service.logoutCalls)
	}
	cookie := findCookie(t, rec, middleware.SessionCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("cookie = %+v, want deletion cookie", cookie)
	}
}

func TestSession_AnonymousIsNot401(t *testing.T) {
	h, _ := newAuthHandler(&mockSessionService{}, &recordingAuthMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()
	h.Session(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != string(model.StatusAnonymous) {
		t.Errorf("status = %q, want anonymous", body.Status)
	}
}

func TestSession_StaleCookieCleared(t *testing.T) {
	service := &mockSessionService{
		restoreFn: func(ctx context.Context, sessionID string) (model.SessionState, error) {
			return model.AnonymousState(), nil
		},
	}
	h, _ := newAuthHandler(service, &recordingAuthMetrics{})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req = req.WithContext(middleware.ContextWithSessionID(req.Context(), "sess-stale"))
	rec := httptest.NewRecorder()
	h.Session(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	cookie := findCookie(t, rec, middleware.SessionCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("cookie = %+v, want deletion cookie", cookie)
	}
}

func TestMe_ReturnsContextStateWithoutServiceCall(t *testing.T) {
	service := &mockSessionService{}
	h, _ := newAuthHandler(service, &recordingAuthMetrics{})

	state := model.SessionState{Status: model.StatusAuthenticated, User: adminUser()}
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req = req.WithContext(middleware.ContextWithState(req.Context(), state))
	rec := httptest.NewRecorder()
	h.Me(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.User == nil || body.User.ID != "u-1" {
		t.Errorf("user = %+v, want u-1", body.User)
	}
}

func TestUpdateProfile_RequiresAtLeastOneField(t *testing.T) {
	h, _ := newAuthHandler(&mockSessionService{}, &recordingAuthMetrics{})

	req := httptest.NewRequest(http.MethodPatch, "/api/session/profile", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateProfile_MergesFields(t *testing.T) {
	service := &mockSessionService{
		mergeProfileFn: func(ctx context.Context, sessionID string, patch model.User) (*model.User, error) {
			if patch.Username != "jiro" || patch.Email != "" {
				t.Errorf("patch = %+v", patch)
			}
			return &model.User{ID: "u-1", Username: "jiro", Email: "admin@example.com", IsAdmin: true}, nil
		},
	}
	h, _ := newAuthHandler(service, &recordingAuthMetrics{})

	req := httptest.NewRequest(http.MethodPatch, "/api/session/profile", strings.NewReader(`{"username":"jiro"}`))
	req = req.WithContext(middleware.ContextWithSessionID(req.Context(), "sess-1"))
	rec := httptest.NewRecorder()
	h.UpdateProfile(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body userResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Username != "jiro" {
		t.Errorf("username = %q, want jiro", body.Username)
	}
}

func TestHandleServiceError_UpstreamUnauthorized_DestroysSession(t *testing.T) {
	metrics := &recordingAuthMetrics{}
	inv := &mockInvalidator{}
	responder := NewErrorResponder(inv, metrics, testCookieConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/sweets", nil)
	req = req.WithContext(middleware.ContextWithSessionID(req.Context(), "sess-1"))
	rec := httptest.NewRecorder()
	responder.HandleServiceError(rec, req, upstream.ErrUnauthorized)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if inv.calls != 1 || inv.lastID != "sess-1" {
		t.Errorf("invalidate calls = %d (last %q), want 1 (sess-1)", inv.calls, inv.lastID)
	}
	if metrics.invalidated != 1 {
		t.Errorf("invalidated = %d, want 1", metrics.invalidated)
	}
	cookie := findCookie(t, rec, middleware.SessionCookieName)
	if cookie == nil || cookie.MaxAge >= 0 {
		t.Errorf("cookie = %+v, want deletion cookie", cookie)
	}

	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.RedirectTo == "" {
		t.Error("redirect_to must be set")
	}
	if body.ReturnTo != "/api/sweets" {
		t.Errorf("return_to = %q, want /api/sweets", body.ReturnTo)
	}
}

func TestHandleServiceError_APIError_PassedThrough(t *testing.T) {
	inv := &mockInvalidator{}
	responder := NewErrorResponder(inv, &recordingAuthMetrics{}, testCookieConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/sweets/s-1", nil)
	rec := httptest.NewRecorder()
	responder.HandleServiceError(rec, req, model.NewSweetNotFoundError("s-1"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if inv.calls != 0 {
		t.Errorf("invalidate calls = %d, want 0", inv.calls)
	}
}
