package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は外部APIから受け取ったテキストをプレーンテキストに整える。
type TextSanitizerService interface {
	// Clean はHTMLタグを除去し、実体参照を展開し、連続する空白を1つにまとめる。
	// 空文字列の入力には空文字列を返す。
	Clean(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyでタグを全て除去する。
// bluemonday.Policyはスレッドセーフなので共有して使う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はrawをプレーンテキストに変換する。
func (s *textSanitizer) Clean(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyは&や<をエスケープして返すため、JSONで返す前に戻す
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
