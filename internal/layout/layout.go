// Package layout はトップ記事（リード）の選定と、ページごとの記事の振り分けを行う。
//
// 入力は公開日時などで順位付けされた記事一覧で、順位と画像プローブの結果が同じであれば
// 常に同じ結果になる。プローブの失敗は低解像度として扱い、エラーにはしない。
package layout

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kelps/epiflipboard/internal/model"
)

// LeadScanLimit はリード選定で画像を確認する先頭記事の最大数。
const LeadScanLimit = 10

// ページ内のセクションの件数。
const (
	homeTopStories   = 2
	homeSidebarTotal = 12
	feedTopStories   = 4
	feedSidebarEnd   = 17
	feedOpinionEnd   = 7
	searchTopStories = 4
	searchRemaining  = 21
	sidebarStart     = 4
	moreNewsCount    = 4
)

// ImageChecker は画像URLがリードに使える解像度かを判定する。
// imageprobe.Proberが満たす。
type ImageChecker interface {
	HighResolution(ctx context.Context, imageURL string) bool
}

// HomePage はトップページの記事配置。
type HomePage struct {
	Lead       *model.Article   `json:"lead"`
	TopStories []*model.Article `json:"topStories"`
	Sidebar    []*model.Article `json:"sidebar"`
	MoreNews   []*model.Article `json:"moreNews"`
}

// FeedPage はフィードページの記事配置。
type FeedPage struct {
	Lead       *model.Article   `json:"lead"`
	TopStories []*model.Article `json:"topStories"`
	Sidebar    []*model.Article `json:"sidebar"`
	Opinion    []*model.Article `json:"opinion"`
	MoreNews   []*model.Article `json:"moreNews"`
}

// SearchPage は検索結果ページの記事配置。
type SearchPage struct {
	Lead       *model.Article   `json:"lead"`
	TopStories []*model.Article `json:"topStories"`
	Remaining  []*model.Article `json:"remaining"`
}

// SelectLead は先頭LeadScanLimit件から高解像度画像を持つ最初の記事をリードに選ぶ。
// 該当がなければ画像を持つ最初の記事、それもなければ先頭の記事を選ぶ。
// 画像の確認は並行して行うが、選ばれるのは常に順位が最も高い記事。
// 記事が空の場合はnilを返す。
func SelectLead(ctx context.Context, articles []*model.Article, checker ImageChecker) *model.Article {
	if len(articles) == 0 {
		return nil
	}

	n := min(len(articles), LeadScanLimit)
	qualified := make([]bool, n)
	if checker != nil {
		var g errgroup.Group
		for i, a := range articles[:n] {
			if !a.HasImage() {
				continue
			}
			g.Go(func() error {
				qualified[i] = checker.HighResolution(ctx, a.ImageURL)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, ok := range qualified {
		if ok {
			return articles[i]
		}
	}
	for _, a := range articles {
		if a.HasImage() {
			return a
		}
	}
	return articles[0]
}

// BuildHome はリードを選定してトップページの配置を返す。
// followedCountはサイドバーに表示するフォロー中フィードの数で、その分記事を減らす。
func BuildHome(ctx context.Context, articles []*model.Article, checker ImageChecker, followedCount int) HomePage {
	return ArrangeHome(articles, SelectLead(ctx, articles, checker), followedCount)
}

// ArrangeHome は選定済みのリードを元にトップページの配置を返す。
func ArrangeHome(articles []*model.Article, lead *model.Article, followedCount int) HomePage {
	others, withImages := split(articles, lead)

	page := HomePage{
		Lead:       lead,
		TopStories: window(withImages, 0, homeTopStories),
		Sidebar:    window(others, sidebarStart, sidebarStart+homeSidebarTotal-followedCount),
	}
	page.MoreNews = unused(withImages, moreNewsCount, lead, page.TopStories, page.Sidebar)
	return page
}

// BuildFeed はリードを選定してフィードページの配置を返す。
func BuildFeed(ctx context.Context, articles []*model.Article, checker ImageChecker) FeedPage {
	return ArrangeFeed(articles, SelectLead(ctx, articles, checker))
}

// ArrangeFeed は選定済みのリードを元にフィードページの配置を返す。
func ArrangeFeed(articles []*model.Article, lead *model.Article) FeedPage {
	others, withImages := split(articles, lead)

	page := FeedPage{
		Lead:       lead,
		TopStories: window(withImages, 0, feedTopStories),
		Sidebar:    window(others, sidebarStart, feedSidebarEnd),
		Opinion:    window(withImages, feedTopStories, feedOpinionEnd),
	}
	page.MoreNews = unused(withImages, moreNewsCount, lead, page.TopStories, page.Sidebar, page.Opinion)
	return page
}

// BuildSearch はリードを選定して検索結果ページの配置を返す。
func BuildSearch(ctx context.Context, articles []*model.Article, checker ImageChecker) SearchPage {
	return ArrangeSearch(articles, SelectLead(ctx, articles, checker))
}

// ArrangeSearch は選定済みのリードを元に検索結果ページの配置を返す。
func ArrangeSearch(articles []*model.Article, lead *model.Article) SearchPage {
	others, withImages := split(articles, lead)

	return SearchPage{
		Lead:       lead,
		TopStories: window(withImages, 0, searchTopStories),
		Remaining:  window(others, sidebarStart, searchRemaining),
	}
}

// split はリード以外の記事と、そのうち画像を持つ記事を順位を保って返す。
func split(articles []*model.Article, lead *model.Article) (others, withImages []*model.Article) {
	others = make([]*model.Article, 0, len(articles))
	withImages = make([]*model.Article, 0, len(articles))
	for _, a := range articles {
		if lead != nil && a.ID == lead.ID {
			continue
		}
		others = append(others, a)
		if a.HasImage() {
			withImages = append(withImages, a)
		}
	}
	return others, withImages
}

// window はs[from:to]を範囲外を切り詰めて返す。範囲が空の場合は空のスライス。
func window(s []*model.Article, from, to int) []*model.Article {
	to = min(to, len(s))
	if from >= to {
		return []*model.Article{}
	}
	return s[from:to]
}

// unused はリードと各セクションで使われていない記事を先頭からn件返す。
func unused(candidates []*model.Article, n int, lead *model.Article, sections ...[]*model.Article) []*model.Article {
	used := make(map[int64]bool)
	if lead != nil {
		used[lead.ID] = true
	}
	for _, section := range sections {
		for _, a := range section {
			used[a.ID] = true
		}
	}

	out := make([]*model.Article, 0, n)
	for _, a := range candidates {
		if len(out) == n {
			break
		}
		if !used[a.ID] {
			out = append(out, a)
		}
	}
	return out
}
