package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	html2markdown "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
	"github.com/playwright-community/playwright-go"

	"reelforge/internal/core/video"
	"reelforge/internal/logger"
	rds "reelforge/internal/platform/redis"
)

type Config struct {
	// BaseURL is the video platform queried for footage.
	BaseURL string
	// RenderFallback enables a headless-browser retry when the plain HTTP
	// response carries no parseable results.
	RenderFallback bool
	// CacheTTLSeconds bounds how long search results are reused.
	CacheTTLSeconds int
}

// Service finds footage candidates for scene queries. Results are cached in
// Redis so identical queries across scenes and jobs hit the platform once.
type Service struct {
	cfg   Config
	redis *rds.Service
	log   *logger.Logger
}

func New(cfg Config, redis *rds.Service) *Service {
	if cfg.CacheTTLSeconds <= 0 {
		cfg.CacheTTLSeconds = 900
	}
	return &Service{cfg: cfg, redis: redis, log: logger.New("Search")}
}

// Search returns up to limit candidates for the query, best-ranked first.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]video.Candidate, error) {
	if limit <= 0 {
		limit = 3
	}
	if cached := s.getCached(ctx, query); cached != nil {
		s.log.LogDebugf("cache hit for %q", query)
		return trim(cached, limit), nil
	}

	searchURL := fmt.Sprintf("%s/results?search_query=%s", strings.TrimRight(s.cfg.BaseURL, "/"), url.QueryEscape(query))
	html, err := s.fetchHTML(ctx, searchURL)
	if err != nil {
		return nil, err
	}
	candidates, err := s.parseResults(html, query)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 && s.cfg.RenderFallback {
		s.log.LogInfof("no results in static HTML for %q, rendering", query)
		rendered, rerr := s.renderHTML(searchURL)
		if rerr != nil {
			s.log.LogWarnf("render fallback failed for %q: %v", query, rerr)
		} else if candidates, err = s.parseResults(rendered, query); err != nil {
			return nil, err
		}
	}

	// A thin result page often links more footage from its top hit.
	if len(candidates) > 0 && len(candidates) < limit {
		candidates = append(candidates, s.discoverRelated(candidates[0].URL, query, limit-len(candidates))...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Relevance > candidates[j].Relevance
	})
	s.cache(ctx, query, candidates)
	s.log.LogDebugf("%d candidates for %q", len(candidates), query)
	return trim(candidates, limit), nil
}

// fetchHTML grabs the search page over plain HTTP with a rotated browser
// identity. Upstream status codes are kept in the error text so the fetch
// layer's block-signature matching sees them.
func (s *Service) fetchHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}
	profile := randomProfile()
	req.Header.Set("User-Agent", profile.UserAgent)
	req.Header.Set("Accept", profile.Accept)
	req.Header.Set("Accept-Language", profile.AcceptLanguage)

	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("search returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}
	return string(body), nil
}

// parseResults pulls watch links out of a result page and scores each against
// the query.
func (s *Service) parseResults(html, query string) ([]video.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	seen := map[string]bool{}
	var out []video.Candidate
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		watchURL := s.normalizeWatchURL(href)
		if watchURL == "" || seen[watchURL] {
			return
		}
		title := strings.TrimSpace(sel.AttrOr("title", ""))
		if title == "" {
			title = strings.TrimSpace(sel.Text())
		}
		if title == "" {
			return
		}
		seen[watchURL] = true
		out = append(out, video.Candidate{
			Title:     title,
			URL:       watchURL,
			Relevance: relevance(query, title+" "+snippetText(sel)),
		})
	})
	return out, nil
}

// normalizeWatchURL keeps only video watch links, absolutized against the
// platform base.
func (s *Service) normalizeWatchURL(href string) string {
	if href == "" || !strings.Contains(href, "/watch") {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return strings.TrimRight(s.cfg.BaseURL, "/") + href
	}
	return ""
}

// snippetText renders the result's surrounding block as markdown and strips
// the formatting, leaving description text for relevance scoring.
func snippetText(sel *goquery.Selection) string {
	parent := sel.Parent()
	if parent == nil {
		return ""
	}
	raw, err := parent.Html()
	if err != nil || raw == "" {
		return ""
	}
	conv := html2markdown.NewConverter("", true, nil)
	md, err := conv.ConvertString(raw)
	if err != nil {
		return ""
	}
	md = strings.NewReplacer("#", "", "*", "", "[", " ", "]", " ", "(", " ", ")", " ").Replace(md)
	return strings.Join(strings.Fields(md), " ")
}

// relevance is the fraction of query terms appearing in the candidate text.
func relevance(query, text string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

// discoverRelated crawls one watch page for further footage links. Related
// links carry a reduced relevance so direct hits always outrank them.
func (s *Service) discoverRelated(seedURL, query string, want int) []video.Candidate {
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return nil
	}

	var out []video.Candidate
	seen := map[string]bool{seedURL: true}
	c := colly.NewCollector(
		colly.AllowedDomains(base.Hostname()),
		colly.MaxDepth(1),
		colly.UserAgent(randomProfile().UserAgent),
	)
	c.SetRequestTimeout(15 * time.Second)
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if len(out) >= want {
			return
		}
		watchURL := s.normalizeWatchURL(e.Attr("href"))
		if watchURL == "" || seen[watchURL] {
			return
		}
		title := strings.TrimSpace(e.Attr("title"))
		if title == "" {
			title = strings.TrimSpace(e.Text)
		}
		if title == "" {
			return
		}
		seen[watchURL] = true
		out = append(out, video.Candidate{
			Title:     title,
			URL:       watchURL,
			Relevance: relevance(query, title) * 0.5,
		})
	})
	if err := c.Visit(seedURL); err != nil {
		s.log.LogDebugf("related discovery failed for %s: %v", seedURL, err)
		return nil
	}
	c.Wait()
	return out
}

// renderHTML loads the page in a headless browser for platforms that only
// populate results client-side.
func (s *Service) renderHTML(pageURL string) (string, error) {
	pw, err := playwright.Run()
	if err != nil {
		return "", fmt.Errorf("playwright run: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
		},
	})
	if err != nil {
		return "", fmt.Errorf("launch: %w", err)
	}
	defer browser.Close()

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(randomProfile().UserAgent),
	})
	if err != nil {
		return "", err
	}
	page, err := bctx.NewPage()
	if err != nil {
		return "", err
	}
	if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(10000),
	}); err != nil {
		// Retry waiting for the full load on slow pages.
		if _, err := page.Goto(pageURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateLoad,
			Timeout:   playwright.Float(20000),
		}); err != nil {
			return "", fmt.Errorf("goto failed: %w", err)
		}
	}
	return page.Content()
}

// Cache helpers

func (s *Service) getCached(ctx context.Context, query string) []video.Candidate {
	if s.redis == nil {
		return nil
	}
	var out []video.Candidate
	if err := s.redis.CacheGet(ctx, cacheKey(query), &out); err != nil {
		return nil
	}
	return out
}

func (s *Service) cache(ctx context.Context, query string, candidates []video.Candidate) {
	if s.redis == nil || len(candidates) == 0 {
		return
	}
	_ = s.redis.CacheSet(ctx, cacheKey(query), candidates, s.cfg.CacheTTLSeconds)
}

func cacheKey(query string) string {
	safe := strings.Join(strings.Fields(strings.ToLower(query)), "_")
	return "search:" + safe
}

func trim(c []video.Candidate, limit int) []video.Candidate {
	if len(c) > limit {
		return c[:limit]
	}
	return c
}
