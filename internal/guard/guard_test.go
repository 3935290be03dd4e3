package guard

import (
	"testing"

	"github.com/hitoshi/sweetshop/internal/model"
)

func authedState(isAdmin bool) model.SessionState {
	return model.SessionState{
		Status: model.StatusAuthenticated,
		User:   &model.User{ID: "u-1", Username: "alice", IsAdmin: isAdmin},
	}
}

func TestDecide_IndeterminateState_AlwaysRendersPlaceholder(t *testing.T) {
	requirements := []Requirement{
		RequirementPublic,
		RequirementAuthenticated,
		RequirementAdminOnly,
		RequirementAnonymousOnly,
	}
	statuses := []model.SessionStatus{model.StatusUnchecked, model.StatusChecking}

	for _, status := range statuses {
		for _, req := range requirements {
			d := Decide(model.SessionState{Status: status}, req, "/admin")
			if d.Kind != DecisionRender {
				t.Errorf("Decide(%s, %s) = %s, want render", status, req, d.Kind)
			}
			if !d.Placeholder {
				t.Errorf("Decide(%s, %s): placeholder = false, want true", status, req)
			}
		}
	}
}

func TestDecide_AnonymousOnProtected_RedirectsToLoginWithReturnPath(t *testing.T) {
	for _, req := range []Requirement{RequirementAuthenticated, RequirementAdminOnly} {
		d := Decide(model.AnonymousState(), req, "/admin/inventory")
		if d.Kind != DecisionRedirectLogin {
			t.Errorf("Decide(anonymous, %s) = %s, want redirect-login", req, d.Kind)
		}
		if d.RedirectTo != LoginPath {
			t.Errorf("redirect_to = %q, want %q", d.RedirectTo, LoginPath)
		}
		if d.ReturnTo != "/admin/inventory" {
			t.Errorf("return_to = %q, want original path", d.ReturnTo)
		}
	}
}

func TestDecide_NonAdminOnAdminRoute_ForbiddenNotRedirect(t *testing.T) {
	d := Decide(authedState(false), RequirementAdminOnly, "/admin")
	if d.Kind != DecisionForbidden {
		t.Errorf("Decide = %s, want forbidden", d.Kind)
	}
	if d.RedirectTo != "" {
		t.Error("forbidden must not carry a redirect target")
	}
}

func TestDecide_AdminOnAdminRoute_Renders(t *testing.T) {
	d := Decide(authedState(true), RequirementAdminOnly, "/admin")
	if d.Kind != DecisionRender {
		t.Errorf("Decide = %s, want render", d.Kind)
	}
	if d.Placeholder {
		t.Error("settled render must not be a placeholder")
	}
}

func TestDecide_AuthenticatedOnAnonymousOnly_RedirectsHomeByRole(t *testing.T) {
	tests := []struct {
		name    string
		isAdmin bool
		want    string
	}{
		{name: "一般ユーザーは通常ホーム", isAdmin: false, want: UserHomePath},
		{name: "管理者は管理画面ホーム", isAdmin: true, want: AdminHomePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(authedState(tt.isAdmin), RequirementAnonymousOnly, "/login")
			if d.Kind != DecisionRedirectHome {
				t.Fatalf("Decide = %s, want redirect-home", d.Kind)
			}
			if d.RedirectTo != tt.want {
				t.Errorf("redirect_to = %q, want %q", d.RedirectTo, tt.want)
			}
		})
	}
}

func TestDecide_PublicRoute_RendersForAnySettledState(t *testing.T) {
	states := []model.SessionState{
		model.AnonymousState(),
		authedState(false),
		authedState(true),
	}
	for _, state := range states {
		d := Decide(state, RequirementPublic, "/")
		if d.Kind != DecisionRender {
			t.Errorf("Decide(%s, public) = %s, want render", state.Status, d.Kind)
		}
	}
}

func TestDecide_AnonymousOnAnonymousOnly_Renders(t *testing.T) {
	d := Decide(model.AnonymousState(), RequirementAnonymousOnly, "/login")
	if d.Kind != DecisionRender {
		t.Errorf("Decide = %s, want render", d.Kind)
	}
}

// 非管理者の認証済みユーザーが管理者ルートに入った場合、
// redirect-loginではなくforbiddenになることを遷移シナリオとして確認する。
func TestDecide_AuthenticatedNonAdmin_NeverRedirectsToLogin(t *testing.T) {
	d := Decide(authedState(false), RequirementAdminOnly, "/admin/stats")
	if d.Kind == DecisionRedirectLogin {
		t.Error("authenticated user must never be redirected to login")
	}
	if d.Kind != DecisionForbidden {
		t.Errorf("Decide = %s, want forbidden", d.Kind)
	}
}

func TestDecide_Idempotent(t *testing.T) {
	state := authedState(false)
	first := Decide(state, RequirementAdminOnly, "/admin")
	second := Decide(state, RequirementAdminOnly, "/admin")
	if first != second {
		t.Errorf("Decide is not idempotent: %+v != %+v", first, second)
	}
}
