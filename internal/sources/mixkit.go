package sources

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"go-stockmedia-download/internal/api"
	"go-stockmedia-download/internal/helpers"
	"go-stockmedia-download/internal/models"

	"github.com/gocolly/colly/v2"
	log "github.com/sirupsen/logrus"
)

// Detail pages look like /free-stock-video/123/ or /free-stock-video/some-slug-123/.
var mixkitDetailPath = regexp.MustCompile(`^/free-stock-video/(?:[A-Za-z0-9-]+-)?\d+/?$`)

// Mixkit scrapes the Mixkit video search and follows each result to its
// detail page for the media URL.
type Mixkit struct {
	client  *api.Client
	baseURL string
}

func NewMixkit(client *api.Client, baseURL string) *Mixkit {
	return &Mixkit{client: client, baseURL: baseURL}
}

func (m *Mixkit) Source() models.Source { return models.SourceMixkit }

func (m *Mixkit) Search(ctx context.Context, query string, count int) []models.Asset {
	if count <= 0 {
		return nil
	}
	searchURL := fmt.Sprintf("%s/search/%s/", m.baseURL, url.PathEscape(query))

	seen := make(map[string]bool)
	var candidates []string

	collector := newCollector(ctx, m.client, "mixkit")
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := absoluteHTTP(e, e.Attr("href"))
		if link == "" {
			return
		}
		u, err := url.Parse(link)
		if err != nil || !mixkitDetailPath.MatchString(u.Path) {
			return
		}
		u.RawQuery, u.Fragment = "", ""
		link = u.String()
		if !seen[link] {
			seen[link] = true
			candidates = append(candidates, link)
		}
	})

	if err := collector.Visit(searchURL); err != nil {
		log.WithError(err).Warn("[mixkit] Search page unavailable")
		return nil
	}
	log.Debugf("[mixkit] %d candidate detail pages", len(candidates))

	var assets []models.Asset
	for _, link := range candidates {
		if len(assets) >= count || ctx.Err() != nil {
			break
		}
		page := scrapeDetail(ctx, m.client, "mixkit", link, true)
		if page.MediaURL == "" {
			log.Debugf("[mixkit] No media URL on %s", link)
			continue
		}
		assets = append(assets, models.Asset{
			Source:      models.SourceMixkit,
			Kind:        models.KindVideo,
			Title:       "mixkit-video",
			PreviewURL:  page.PreviewURL,
			DownloadURL: page.MediaURL,
			Extension:   helpers.ExtensionFromURL(page.MediaURL, ".mp4"),
			LicenseHint: LicenseMixkit,
			PageURL:     link,
		})
	}
	return assets
}
