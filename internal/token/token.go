// Package token はベアラートークンの有効期限検査を提供する。
// トークンはバックエンドが所有する不透明な資格情報であり、
// クライアント側は埋め込まれたexpクレームのみを読み取って失効を判定する。
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IsExpired はトークンのexpクレームが過去かどうかを返す。
// 署名鍵はバックエンドが所有するため検証は行わず、クレームのみを読み取る。
// フェイルクローズド: デコードできないトークン、expクレームの欠落・不正は
// すべて期限切れとして扱う。期限切れトークンはAuthorizationヘッダーに
// 載せてはならず、ログアウトを引き起こす。
func IsExpired(raw string) bool {
	return isExpiredAt(raw, time.Now())
}

// isExpiredAt は基準時刻を指定できる内部実装。テスト用。
func isExpiredAt(raw string, now time.Time) bool {
	if raw == "" {
		return true
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}

	return exp.Time.Before(now)
}
