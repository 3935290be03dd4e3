// Package guard はルートの表示可否判定を提供する。
//
// Decideは副作用を持たない純粋な判定関数であり、ナビゲーション等の副作用は
// 戻り値に基づいて呼び出し側（HTTPミドルウェア）が実行する。
// 同一入力に対して常に同一の判定を返す（冪等）。
package guard

import "github.com/hitoshi/sweetshop/internal/model"

// Requirement はルートが宣言するアクセス要件。
type Requirement string

const (
	// RequirementPublic は誰でもアクセス可能なルート。
	RequirementPublic Requirement = "public"
	// RequirementAuthenticated は認証済みユーザーのみのルート。
	RequirementAuthenticated Requirement = "authenticated"
	// RequirementAdminOnly は管理者のみのルート。
	RequirementAdminOnly Requirement = "admin-only"
	// RequirementAnonymousOnly はログイン・登録など未認証ユーザー専用のルート。
	RequirementAnonymousOnly Requirement = "anonymous-only"
)

// DecisionKind は判定結果の種別。
type DecisionKind string

const (
	// DecisionRender はルートの内容を表示する。
	DecisionRender DecisionKind = "render"
	// DecisionRedirectLogin はログインページへのリダイレクトを指示する。
	DecisionRedirectLogin DecisionKind = "redirect-login"
	// DecisionRedirectHome はロール別ホームへのリダイレクトを指示する。
	DecisionRedirectHome DecisionKind = "redirect-home"
	// DecisionForbidden はアクセス拒否ビューの表示を指示する。
	// リダイレクトしないことで、拒否の理由がユーザーに見えるようにする。
	DecisionForbidden DecisionKind = "forbidden"
)

// リダイレクト先のパス。UI側のルーティングと合わせる。
const (
	LoginPath     = "/login"
	AdminHomePath = "/admin"
	UserHomePath  = "/dashboard"
)

// Decision はDecideの判定結果。
type Decision struct {
	Kind DecisionKind

	// Placeholder はKind == DecisionRenderのとき、内容の代わりに
	// ローディングプレースホルダを表示すべきかを示す。
	Placeholder bool

	// RedirectTo はリダイレクト系判定の遷移先パス。
	RedirectTo string

	// ReturnTo はログイン後に戻るべき元のリクエストパス。
	// Kind == DecisionRedirectLoginのときのみ設定される。
	ReturnTo string
}

// Decide はセッション状態とルート要件から表示可否を判定する。
// requestedPathはログイン後の復帰用に元のパスを引き回すために使う。
//
// 判定ルール（順序どおりに評価する）:
//  1. 状態が未確定（Unchecked/Checking）の間は要件にかかわらずプレースホルダを
//     表示する。リダイレクトしないことで、判定のフラッピングを防ぐ。
//  2. 認証必須（または管理者専用）ルートに未認証 → ログインへリダイレクト。
//     元のパスを持ち回り、ログイン後に復帰できるようにする。
//  3. 管理者専用ルートに認証済みの非管理者 → アクセス拒否。リダイレクトに
//     すると理由が見えなくなるため、その場で拒否を表示する。
//  4. 未認証専用ルート（ログイン・登録）に認証済み → ロール別ホームへ
//     リダイレクト（管理者は管理画面、それ以外は通常ホーム）。
//  5. それ以外 → 表示。
func Decide(state model.SessionState, requirement Requirement, requestedPath string) Decision {
	// 1. 未確定状態では決してリダイレクトしない
	if state.Status == model.StatusUnchecked || state.Status == model.StatusChecking {
		return Decision{Kind: DecisionRender, Placeholder: true}
	}

	authenticated := state.Status == model.StatusAuthenticated

	// 2. 保護ルート × 未認証
	if (requirement == RequirementAuthenticated || requirement == RequirementAdminOnly) && !authenticated {
		return Decision{
			Kind:       DecisionRedirectLogin,
			RedirectTo: LoginPath,
			ReturnTo:   requestedPath,
		}
	}

	// 3. 管理者専用ルート × 非管理者
	if requirement == RequirementAdminOnly && !state.IsAdmin() {
		return Decision{Kind: DecisionForbidden}
	}

	// 4. 未認証専用ルート × 認証済み
	if requirement == RequirementAnonymousOnly && authenticated {
		home := UserHomePath
		if state.IsAdmin() {
			home = AdminHomePath
		}
		return Decision{Kind: DecisionRedirectHome, RedirectTo: home}
	}

	// 5. 表示
	return Decision{Kind: DecisionRender}
}
