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

// Coverr scrapes video sources straight off the Coverr search page.
type Coverr struct {
	client  *api.Client
	baseURL string
}

func NewCoverr(client *api.Client, baseURL string) *Coverr {
	return &Coverr{client: client, baseURL: baseURL}
}

func (c *Coverr) Source() models.Source { return models.SourceCoverr }

func (c *Coverr) Search(ctx context.Context, query string, count int) []models.Asset {
	if count <= 0 {
		return nil
	}
	searchURL := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(query))

	seen := make(map[string]bool)
	var assets []models.Asset

	collector := newCollector(ctx, c.client, "coverr")
	collector.OnHTML("video, source", func(e *colly.HTMLElement) {
		if len(assets) >= count {
			return
		}
		media := absoluteHTTP(e, firstNonEmpty(e.Attr("src"), e.Attr("data-src")))
		if media == "" || seen[media] {
			return
		}
		seen[media] = true

		poster := firstNonEmpty(e.Attr("poster"), e.Attr("data-poster"))
		if poster == "" {
			parent := e.DOM.Parent()
			p, _ := parent.Attr("poster")
			dp, _ := parent.Attr("data-poster")
			poster = firstNonEmpty(p, dp)
		}

		assets = append(assets, models.Asset{
			Source:      models.SourceCoverr,
			Kind:        models.KindVideo,
			Title:       "coverr-video",
			PreviewURL:  absoluteHTTP(e, poster),
			DownloadURL: media,
			Extension:   helpers.ExtensionFromURL(media, ".mp4"),
			LicenseHint: LicenseCoverr,
			PageURL:     c.baseURL,
		})
	})

	if err := collector.Visit(searchURL); err != nil {
		log.WithError(err).Warn("[coverr] Search page unavailable")
		return nil
	}
	if len(assets) == 0 {
		log.Debugf("[coverr] No video elements found on %s", searchURL)
	}
	return assets
}
