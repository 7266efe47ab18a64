package eastmoney

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/httputil"
	"github.com/wonny/loflimit/pkg/logger"
)

// Client fetches fund announcement listings and bodies from the
// disclosure site. All announcement HTTP traffic goes through here.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	limiter    *rate.Limiter
}

// Announcement is one listed disclosure document.
type Announcement struct {
	Ticker      string
	Title       string
	URL         string
	SourceID    string // stable document identifier from the URL
	PublishedAt time.Time
}

func NewClient(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) *Client {
	rps := cfg.Eastmoney.RequestsPerSec
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Eastmoney.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimSuffix(cfg.Eastmoney.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// FetchAnnouncementList walks the paged listing for one fund until the
// cutoff date passes or the pages run out.
func (c *Client) FetchAnnouncementList(ctx context.Context, ticker string, since time.Time, maxPages int) ([]Announcement, error) {
	if maxPages <= 0 {
		maxPages = 20
	}

	var all []Announcement
	for page := 1; page <= maxPages; page++ {
		html, err := c.fetchHTML(ctx, fmt.Sprintf("/fund/%s/announcements", ticker),
			url.Values{"page": {fmt.Sprint(page)}})
		if err != nil {
			return all, fmt.Errorf("fetch announcement page %d: %w", page, err)
		}

		anns, oldest, hasMore := c.parseListHTML(html, ticker)
		for _, a := range anns {
			if !a.PublishedAt.Before(since) {
				all = append(all, a)
			}
		}

		if !hasMore || (!oldest.IsZero() && oldest.Before(since)) {
			break
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(all),
	}).Debug("fetched announcement list")

	return all, nil
}

// FetchAnnouncementText downloads one announcement page and returns
// its body text for extraction.
func (c *Client) FetchAnnouncementText(ctx context.Context, annURL string) (string, error) {
	html, err := c.fetchRaw(ctx, annURL)
	if err != nil {
		return "", fmt.Errorf("fetch announcement body: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse announcement body: %w", err)
	}

	body := doc.Find("div.detail-body")
	if body.Length() == 0 {
		body = doc.Find("body")
	}

	var sb strings.Builder
	body.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	})
	if sb.Len() == 0 {
		return strings.TrimSpace(body.Text()), nil
	}

	return strings.TrimSpace(sb.String()), nil
}

// parseListHTML extracts announcement rows from one listing page.
// Returns the rows, the oldest date seen, and whether a next page link
// exists.
func (c *Client) parseListHTML(html, ticker string) ([]Announcement, time.Time, bool) {
	var anns []Announcement
	var oldest time.Time

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return anns, oldest, false
	}

	doc.Find("table.announcement-list tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("td.title a")
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(link.Text())

		dateText := strings.TrimSpace(row.Find("td.date").Text())
		published, err := time.Parse("2006-01-02", dateText)
		if err != nil {
			return
		}
		if oldest.IsZero() || published.Before(oldest) {
			oldest = published
		}

		anns = append(anns, Announcement{
			Ticker:      ticker,
			Title:       title,
			URL:         c.absoluteURL(href),
			SourceID:    sourceIDFromURL(href),
			PublishedAt: published,
		})
	})

	hasMore := doc.Find("a.next-page").Length() > 0
	return anns, oldest, hasMore
}

func (c *Client) fetchHTML(ctx context.Context, p string, params url.Values) (string, error) {
	fullURL := c.baseURL + p
	if len(params) > 0 {
		fullURL = fullURL + "?" + params.Encode()
	}
	return c.fetchRaw(ctx, fullURL)
}

func (c *Client) fetchRaw(ctx context.Context, fullURL string) (string, error) {
	// Politeness cap independent of the shared Redis limiter.
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	return string(body), nil
}

func (c *Client) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return c.baseURL + href
}

// sourceIDFromURL derives the stable document ID from the link target,
// typically the PDF or page filename.
func sourceIDFromURL(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	base := path.Base(u.Path)
	return strings.TrimSuffix(base, path.Ext(base))
}
