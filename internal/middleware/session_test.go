package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/sweetshop/internal/model"
)

// mockSessionLoader はSessionLoaderのモック。
type mockSessionLoader struct {
	loadFn func(ctx context.Context, sessionID string) (model.SessionState, string, error)
}

func (m *mockSessionLoader) Load(ctx context.Context, sessionID string) (model.SessionState, string, error) {
	return m.loadFn(ctx, sessionID)
}

func TestSessionMiddleware_InjectsStateAndToken(t *testing.T) {
	loader := &mockSessionLoader{
		loadFn: func(ctx context.Context, sessionID string) (model.SessionState, string, error) {
			if sessionID != "sess-1" {
				t.Errorf("sessionID = %q, want sess-1", sessionID)
			}
			state := model.SessionState{
				Status: model.StatusAuthenticated,
				User:   &model.User{ID: "u-1", Username: "alice"},
			}
			return state, "token-1", nil
		},
	}

	var gotState model.SessionState
	var gotToken, gotSessionID string
	handler := NewSessionMiddleware(loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotState = StateFromContext(r.Context())
		gotToken = AccessTokenFromContext(r.Context())
		gotSessionID = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sweets", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotState.Status != model.StatusAuthenticated {
		t.Errorf("status = %s, want authenticated", gotState.Status)
	}
	if gotToken != "token-1" {
		t.Errorf("token = %q, want token-1", gotToken)
	}
	if gotSessionID != "sess-1" {
		t.Errorf("sessionID = %q, want sess-1", gotSessionID)
	}
}

func TestSessionMiddleware_NoCookiePassesEmptySessionID(t *testing.T) {
	loader := &mockSessionLoader{
		loadFn: func(ctx context.Context, sessionID string) (model.SessionState, string, error) {
			if sessionID != "" {
				t.Errorf("sessionID = %q, want empty", sessionID)
			}
			return model.AnonymousState(), "", nil
		},
	}

	var gotState model.SessionState
	handler := NewSessionMiddleware(loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotState = StateFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/sweets", nil))

	if gotState.Status != model.StatusAnonymous {
		t.Errorf("status = %s, want anonymous", gotState.Status)
	}
}

// 読み込み失敗は拒否ではなく未認証に倒す。可否の判定はガードが行う。
func TestSessionMiddleware_LoadErrorFallsBackToAnonymous(t *testing.T) {
	loader := &mockSessionLoader{
		loadFn: func(ctx context.Context, sessionID string) (model.SessionState, string, error) {
			return model.SessionState{}, "", errors.New("db down")
		},
	}

	var gotState model.SessionState
	rec := httptest.NewRecorder()
	handler := NewSessionMiddleware(loader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotState = StateFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sweets", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 (middleware must not reject)", rec.Code)
	}
	if gotState.Status != model.StatusAnonymous {
		t.Errorf("status = %s, want anonymous", gotState.Status)
	}
}

func TestStateFromContext_MissingDefaultsToAnonymous(t *testing.T) {
	state := StateFromContext(context.Background())
	if state.Status != model.StatusAnonymous {
		t.Errorf("status = %s, want anonymous", state.Status)
	}
}
