// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はユーザー投稿や取り込み記事の本文からHTMLを除去し、
// プレーンテキストとして保存できる形に整える。
// bluemondayのStrictPolicyで全タグを除去する。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はHTMLを含む入力をプレーンテキストに変換するインターフェースを定義する。
// コメント投稿時と記事取り込み時に使用される。
type TextSanitizerService interface {
	// PlainText は全てのタグを除去し、HTMLエンティティを復元したテキストを返す。
	// script, styleの中身は出力に含めない。
	// 連続する空白は1つにまとめ、前後の空白を除去する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	PlainText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなため、1つのインスタンスを共有する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	p := bluemonday.StrictPolicy()
	// タグの境界で単語が連結されないように空白を入れる
	p.AddSpaceWhenStrippingTag(true)

	return &textSanitizer{
		policy: p,
	}
}

// PlainText はHTMLを除去したプレーンテキストを返す。
func (s *textSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := html.UnescapeString(s.policy.Sanitize(raw))
	return collapseSpace(stripped)
}

// collapseSpace は連続する空白文字を1つの半角スペースにまとめる。
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
