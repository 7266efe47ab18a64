package eastmoney

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/loflimit/pkg/config"
	"github.com/wonny/loflimit/pkg/logger"
)

const listFixture = `
<html><body>
<table class="announcement-list">
  <tr>
    <td class="title"><a href="/notice/20240115_limit.pdf">暂停大额申购公告</a></td>
    <td class="date">2024-01-15</td>
  </tr>
  <tr>
    <td class="title"><a href="https://example.com/notice/20240110_report.pdf">季度报告</a></td>
    <td class="date">2024-01-10</td>
  </tr>
  <tr>
    <td class="title"><span>no link, skipped</span></td>
    <td class="date">2024-01-09</td>
  </tr>
  <tr>
    <td class="title"><a href="/notice/bad_date.pdf">bad row</a></td>
    <td class="date">not-a-date</td>
  </tr>
</table>
<a class="next-page" href="?page=2">next</a>
</body></html>`

func fixtureClient() *Client {
	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		Env:       "development",
		Eastmoney: config.EastmoneyConfig{BaseURL: "https://fund.example.com", RequestsPerSec: 2, Burst: 1},
	}
	return NewClient(cfg, nil, logger.New(cfg))
}

func TestParseListHTML(t *testing.T) {
	c := fixtureClient()

	anns, oldest, hasMore := c.parseListHTML(listFixture, "161005")

	require.Len(t, anns, 2, "rows without links or dates are skipped")
	assert.True(t, hasMore)
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), oldest)

	first := anns[0]
	assert.Equal(t, "161005", first.Ticker)
	assert.Equal(t, "暂停大额申购公告", first.Title)
	assert.Equal(t, "https://fund.example.com/notice/20240115_limit.pdf", first.URL)
	assert.Equal(t, "20240115_limit", first.SourceID)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), first.PublishedAt)

	assert.Equal(t, "https://example.com/notice/20240110_report.pdf", anns[1].URL, "absolute links kept as-is")
}

func TestParseListHTMLNoNextPage(t *testing.T) {
	c := fixtureClient()

	_, _, hasMore := c.parseListHTML(`<html><body><table class="announcement-list"></table></body></html>`, "161005")
	assert.False(t, hasMore)
}

func TestSourceIDFromURL(t *testing.T) {
	assert.Equal(t, "20240115_limit", sourceIDFromURL("/notice/20240115_limit.pdf"))
	assert.Equal(t, "20240115_limit", sourceIDFromURL("https://x.com/a/b/20240115_limit.html?x=1"))
}
