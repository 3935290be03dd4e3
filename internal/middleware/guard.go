package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/sweetshop/internal/guard"
	"github.com/hitoshi/sweetshop/internal/model"
)

// Require はルート要件に基づくアクセス制御ミドルウェアを返す。
// セッションミドルウェアの後に配置し、確定済みのセッション状態に対して
// guard.Decideの判定をHTTPレスポンスに写像する。
//
//   - render → 次のハンドラーへ
//   - redirect-login → 401 + redirect_to/return_to入りのエラーボディ
//   - forbidden → 403。リダイレクトしないことで拒否の理由がユーザーに見える
//   - redirect-home → 303 + Locationヘッダー（ロール別ホーム）
//
// セッションミドルウェアが先に状態を確定させるため、プレースホルダ表示の
// 判定はここには現れない。万一未確定のまま到達した場合は503を返す。
func Require(requirement guard.Requirement) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := StateFromContext(r.Context())

			decision := guard.Decide(state, requirement, r.URL.Path)
			switch decision.Kind {
			case guard.DecisionRender:
				if decision.Placeholder {
					slog.Error("session state not settled before guard",
						slog.String("path", r.URL.Path),
					)
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				next.ServeHTTP(w, r)

			case guard.DecisionRedirectLogin:
				WriteRedirectLogin(w, decision.ReturnTo)

			case guard.DecisionForbidden:
				WriteErrorResponse(w, http.StatusForbidden, model.NewAdminRequiredError())

			case guard.DecisionRedirectHome:
				w.Header().Set("Location", decision.RedirectTo)
				w.WriteHeader(http.StatusSeeOther)
			}
		})
	}
}
