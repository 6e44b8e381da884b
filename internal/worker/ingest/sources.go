package ingest

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Source は取り込み対象の配信元フィード。
// Nameは配信元名として保存される。空の場合はフィードのタイトルを使用する。
type Source struct {
	Name string
	URL  string
}

// opmlDocument はOPMLのうち取り込みに必要な部分。
type opmlDocument struct {
	Body struct {
		Outlines []opmlOutline `xml:"outline"`
	} `xml:"body"`
}

type opmlOutline struct {
	Title    string        `xml:"title,attr"`
	Text     string        `xml:"text,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

// ParseOPML はOPML文書からxmlUrlを持つoutlineを取り込み元として抽出する。
// カテゴリ用のネストしたoutlineも走査する。
func ParseOPML(r io.Reader) ([]Source, error) {
	var doc opmlDocument
	dec := xml.NewDecoder(r)
	// 文字コード宣言がUTF-8以外でもそのまま読む
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}

	var sources []Source
	var walk func([]opmlOutline)
	walk = func(outlines []opmlOutline) {
		for _, o := range outlines {
			if u := strings.TrimSpace(o.XMLURL); u != "" {
				name := strings.TrimSpace(o.Title)
				if name == "" {
					name = strings.TrimSpace(o.Text)
				}
				sources = append(sources, Source{Name: name, URL: u})
			}
			walk(o.Outlines)
		}
	}
	walk(doc.Body.Outlines)
	return sources, nil
}

// SourceLoader はOPMLと静的なURL一覧から取り込み元を組み立てる。
type SourceLoader struct {
	opmlURL     string
	feedURLs    []string
	ssrfGuard   SSRFValidator
	timeout     time.Duration
	maxBodySize int64
}

// NewSourceLoader はSourceLoaderを生成する。opmlURLが空の場合はfeedURLsのみを使用する。
func NewSourceLoader(opmlURL string, feedURLs []string, ssrfGuard SSRFValidator, timeout time.Duration, maxBodySize int64) *SourceLoader {
	return &SourceLoader{
		opmlURL:     opmlURL,
		feedURLs:    feedURLs,
		ssrfGuard:   ssrfGuard,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Load は取り込み元一覧を返す。同じURLは最初に現れたものだけを残す。
// OPMLの取得に失敗した場合でも静的なURL一覧は返し、エラーを併せて返す。
func (l *SourceLoader) Load(ctx context.Context) ([]Source, error) {
	var sources []Source
	var opmlErr error
	if l.opmlURL != "" {
		sources, opmlErr = l.fetchOPML(ctx)
	}
	for _, u := range l.feedURLs {
		sources = append(sources, Source{URL: u})
	}
	return dedupSources(sources), opmlErr
}

func (l *SourceLoader) fetchOPML(ctx context.Context) ([]Source, error) {
	if err := l.ssrfGuard.ValidateURL(l.opmlURL); err != nil {
		return nil, fmt.Errorf("OPML URL rejected: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.opmlURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build OPML request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := l.ssrfGuard.NewSafeClient(l.timeout, l.maxBodySize).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download OPML: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download OPML: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read OPML: %w", err)
	}
	return ParseOPML(bytes.NewReader(body))
}

func dedupSources(sources []Source) []Source {
	seen := make(map[string]struct{}, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s.URL]; ok {
			continue
		}
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}
	return out
}
