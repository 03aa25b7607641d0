package sources

import (
	"context"
	"fmt"
	"net/url"

	"go-stockmedia-download/internal/api"
	"go-stockmedia-download/internal/helpers"
	"go-stockmedia-download/internal/models"

	"github.com/gocolly/colly/v2"
	log "github.com/sirupsen/logrus"
)

// Videvo scrapes the Videvo search page and reads each detail page's
// video source element.
type Videvo struct {
	client  *api.Client
	baseURL string
}

func NewVidevo(client *api.Client, baseURL string) *Videvo {
	return &Videvo{client: client, baseURL: baseURL}
}

func (v *Videvo) Source() models.Source { return models.SourceVidevo }

func (v *Videvo) Search(ctx context.Context, query string, count int) []models.Asset {
	if count <= 0 {
		return nil
	}
	searchURL := fmt.Sprintf("%s/search/?q=%s", v.baseURL, url.QueryEscape(query))

	seen := make(map[string]bool)
	var candidates []string

	collector := newCollector(ctx, v.client, "videvo")
	collector.OnHTML(`a[href^="/video/"]`, func(e *colly.HTMLElement) {
		link := absoluteHTTP(e, e.Attr("href"))
		if link != "" && !seen[link] {
			seen[link] = true
			candidates = append(candidates, link)
		}
	})

	if err := collector.Visit(searchURL); err != nil {
		log.WithError(err).Warn("[videvo] Search page unavailable")
		return nil
	}
	log.Debugf("[videvo] %d candidate detail pages", len(candidates))

	var assets []models.Asset
	for _, link := range candidates {
		if len(assets) >= count || ctx.Err() != nil {
			break
		}
		page := scrapeDetail(ctx, v.client, "videvo", link, false)
		if page.MediaURL == "" {
			log.Debugf("[videvo] No video source on %s", link)
			continue
		}
		assets = append(assets, models.Asset{
			Source:      models.SourceVidevo,
			Kind:        models.KindVideo,
			Title:       "videvo-video",
			PreviewURL:  page.PreviewURL,
			DownloadURL: page.MediaURL,
			Extension:   helpers.ExtensionFromURL(page.MediaURL, ".mp4"),
			LicenseHint: LicenseVidevo,
			PageURL:     link,
		})
	}
	return assets
}
