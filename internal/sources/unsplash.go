package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go-stockmedia-download/internal/api"
	"go-stockmedia-download/internal/helpers"
	"go-stockmedia-download/internal/models"

	log "github.com/sirupsen/logrus"
)

type unsplashResponse struct {
	Results []unsplashPhoto `json:"results"`
}

type unsplashPhoto struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	AltDescription string `json:"alt_description"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	URLs           struct {
		Raw     string `json:"raw"`
		Full    string `json:"full"`
		Regular string `json:"regular"`
		Small   string `json:"small"`
		Thumb   string `json:"thumb"`
	} `json:"urls"`
	Links struct {
		HTML string `json:"html"`
	} `json:"links"`
	User struct {
		Name string `json:"name"`
	} `json:"user"`
}

// Unsplash searches the Unsplash photo API.
type Unsplash struct {
	client  *api.Client
	key     string
	baseURL string
}

func NewUnsplash(client *api.Client, key, baseURL string) *Unsplash {
	return &Unsplash{client: client, key: key, baseURL: baseURL}
}

func (u *Unsplash) Source() models.Source { return models.SourceUnsplash }

func (u *Unsplash) Search(ctx context.Context, query string, count int) []models.Asset {
	if u.key == "" {
		log.Infof("[unsplash] No API key configured, skipping source")
		return nil
	}
	if count <= 0 {
		return nil
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(clampPerPage(count, 1, 30)))
	reqURL := fmt.Sprintf("%s/search/photos?%s", u.baseURL, params.Encode())

	var payload unsplashResponse
	headers := map[string]string{"Authorization": "Client-ID " + u.key, "Accept-Version": "v1"}
	if err := u.client.GetJSON(ctx, reqURL, headers, &payload); err != nil {
		log.WithError(err).Warn("[unsplash] Search failed")
		return nil
	}

	assets := make([]models.Asset, 0, len(payload.Results))
	for _, p := range payload.Results {
		if len(assets) >= count {
			break
		}
		downloadURL := firstNonEmpty(p.URLs.Full, p.URLs.Regular, p.URLs.Raw)
		if downloadURL == "" {
			log.Debugf("[unsplash] Skipping %s: no downloadable rendition", p.ID)
			continue
		}
		title := firstNonEmpty(p.AltDescription, p.Description)
		if title == "" {
			title = "unsplash-" + p.ID
		}
		assets = append(assets, models.Asset{
			Source:      models.SourceUnsplash,
			Kind:        models.KindImage,
			Title:       title,
			PreviewURL:  firstNonEmpty(p.URLs.Small, p.URLs.Thumb),
			DownloadURL: downloadURL,
			Extension:   helpers.ExtensionFromURL(downloadURL, ".jpg"),
			LicenseHint: LicenseUnsplash,
			PageURL:     p.Links.HTML,
			Metadata: map[string]any{
				"id":     p.ID,
				"author": p.User.Name,
				"width":  p.Width,
				"height": p.Height,
			},
		})
	}
	return assets
}
