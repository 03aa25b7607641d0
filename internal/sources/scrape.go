package sources

import (
	"context"
	"strings"

	"go-stockmedia-download/internal/api"

	"github.com/gocolly/colly/v2"
	log "github.com/sirupsen/logrus"
)

const maxScrapeBodySize = 10 << 20

// newCollector returns a synchronous collector that shares the pooled
// transport and drops any request issued after ctx is done.
func newCollector(ctx context.Context, client *api.Client, source string) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(client.UserAgent()),
		colly.MaxBodySize(maxScrapeBodySize),
	)
	c.SetClient(client.ScrapeClient())
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			log.Debugf("[%s] Context done, aborting request to %s", source, r.URL)
			r.Abort()
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		log.WithError(err).Debugf("[%s] Request to %s failed (status %d)", source, requestURL(r), status)
	})
	return c
}

func requestURL(r *colly.Response) string {
	if r == nil || r.Request == nil || r.Request.URL == nil {
		return ""
	}
	return r.Request.URL.String()
}

// absoluteHTTP resolves raw against the element's page and keeps it only when
// the result is an http(s) URL.
func absoluteHTTP(e *colly.HTMLElement, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	abs := e.Request.AbsoluteURL(raw)
	if !isHTTPURL(abs) {
		return ""
	}
	return abs
}

// detailPage is what a catalog detail page yields. Either field may be empty.
type detailPage struct {
	MediaURL   string
	PreviewURL string
}

// scrapeDetail fetches one detail page. A download anchor is tried first when
// preferAnchor is set, then a video source element. Any error or missing
// element leaves the corresponding field empty.
func scrapeDetail(ctx context.Context, client *api.Client, source, link string, preferAnchor bool) detailPage {
	var page detailPage
	var anchorURL, sourceURL string

	c := newCollector(ctx, client, source)
	if preferAnchor {
		c.OnHTML("a[href]", func(e *colly.HTMLElement) {
			if anchorURL != "" {
				return
			}
			if strings.Contains(strings.ToLower(e.Text), "download") {
				anchorURL = absoluteHTTP(e, e.Attr("href"))
			}
		})
	}
	c.OnHTML("video source[src], video[src]", func(e *colly.HTMLElement) {
		if sourceURL == "" {
			sourceURL = absoluteHTTP(e, e.Attr("src"))
		}
	})
	c.OnHTML(`meta[property="og:image"]`, func(e *colly.HTMLElement) {
		if page.PreviewURL == "" {
			page.PreviewURL = absoluteHTTP(e, e.Attr("content"))
		}
	})

	if err := c.Visit(link); err != nil {
		log.WithError(err).Debugf("[%s] Detail page %s unavailable", source, link)
		return detailPage{}
	}
	page.MediaURL = firstNonEmpty(anchorURL, sourceURL)
	return page
}
