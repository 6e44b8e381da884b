package ingest

import (
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"golang.org/x/net/html"
)

// extractImage は記事の代表画像URLを決定する。
// 優先順位: itemの画像 → 画像のenclosure → media:content / media:thumbnail → 本文中の最初の<img>。
func extractImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	for _, enc := range item.Enclosures {
		if enc != nil && enc.URL != "" && strings.HasPrefix(enc.Type, "image/") {
			return enc.URL
		}
	}

	if u := mediaImage(item.Extensions["media"]); u != "" {
		return u
	}

	for _, body := range []string{item.Content, item.Description} {
		if u := firstImgSrc(body); u != "" {
			return u
		}
	}
	return ""
}

// mediaImage はMedia RSS拡張からmedia:content、media:thumbnailの順に画像URLを探す。
// media:group内の要素も対象とする。
func mediaImage(media map[string][]ext.Extension) string {
	if media == nil {
		return ""
	}
	for _, c := range media["content"] {
		if isMediaImage(c) {
			return c.Attrs["url"]
		}
	}
	for _, th := range media["thumbnail"] {
		if u := th.Attrs["url"]; u != "" {
			return u
		}
	}
	for _, g := range media["group"] {
		if u := mediaImage(g.Children); u != "" {
			return u
		}
	}
	return ""
}

// isMediaImage はmedia:contentが画像を指しているかを判定する。
// typeもmediumも無い場合は画像とみなす。
func isMediaImage(c ext.Extension) bool {
	if c.Attrs["url"] == "" {
		return false
	}
	typ, medium := c.Attrs["type"], c.Attrs["medium"]
	if typ == "" && medium == "" {
		return true
	}
	return strings.HasPrefix(typ, "image/") || medium == "image"
}

// firstImgSrc はHTML断片中で最初に現れる<img>のsrcを返す。
func firstImgSrc(fragment string) string {
	if !strings.Contains(fragment, "<img") && !strings.Contains(fragment, "<IMG") {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "img" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "src" && len(val) > 0 {
					return string(val)
				}
			}
		}
	}
}
