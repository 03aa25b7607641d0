package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go-stockmedia-download/internal/api"
	"go-stockmedia-download/internal/helpers"
	"go-stockmedia-download/internal/models"

	log "github.com/sirupsen/logrus"
)

type pixabayImageResponse struct {
	Hits []struct {
		ID            int64  `json:"id"`
		PageURL       string `json:"pageURL"`
		Tags          string `json:"tags"`
		PreviewURL    string `json:"previewURL"`
		WebformatURL  string `json:"webformatURL"`
		LargeImageURL string `json:"largeImageURL"`
		ImageWidth    int    `json:"imageWidth"`
		ImageHeight   int    `json:"imageHeight"`
		User          string `json:"user"`
	} `json:"hits"`
}

type pixabayVideoResponse struct {
	Hits []struct {
		ID        int64                       `json:"id"`
		PageURL   string                      `json:"pageURL"`
		Tags      string                      `json:"tags"`
		Duration  int                         `json:"duration"`
		PictureID string                      `json:"picture_id"`
		User      string                      `json:"user"`
		Videos    map[string]pixabayRendition `json:"videos"`
	} `json:"hits"`
}

type pixabayRendition struct {
	URL       string `json:"url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Size      int64  `json:"size"`
	Thumbnail string `json:"thumbnail"`
}

// Rendition names in descending preference.
var pixabayRenditionRank = map[string]int{"large": 4, "medium": 3, "small": 2, "tiny": 1}

// Pixabay searches the Pixabay image and video APIs.
type Pixabay struct {
	client  *api.Client
	key     string
	baseURL string
}

func NewPixabay(client *api.Client, key, baseURL string) *Pixabay {
	return &Pixabay{client: client, key: key, baseURL: baseURL}
}

func (p *Pixabay) Source() models.Source { return models.SourcePixabay }

// Search returns up to count images and up to count videos.
func (p *Pixabay) Search(ctx context.Context, query string, count int) []models.Asset {
	if p.key == "" {
		log.Infof("[pixabay] No API key configured, skipping source")
		return nil
	}
	if count <= 0 {
		return nil
	}

	params := url.Values{}
	params.Set("key", p.key)
	params.Set("q", query)
	params.Set("per_page", strconv.Itoa(clampPerPage(count, 3, 200)))
	params.Set("safesearch", "true")

	assets := p.searchImages(ctx, params, count)
	return append(assets, p.searchVideos(ctx, params, count)...)
}

func (p *Pixabay) searchImages(ctx context.Context, params url.Values, count int) []models.Asset {
	var payload pixabayImageResponse
	if err := p.client.GetJSON(ctx, fmt.Sprintf("%s/api/?%s", p.baseURL, params.Encode()), nil, &payload); err != nil {
		log.WithError(redactKey(err, p.key)).Warn("[pixabay] Image search failed")
		return nil
	}

	assets := make([]models.Asset, 0, len(payload.Hits))
	for _, h := range payload.Hits {
		if len(assets) >= count {
			break
		}
		downloadURL := firstNonEmpty(h.LargeImageURL, h.WebformatURL)
		if downloadURL == "" {
			log.Debugf("[pixabay] Skipping image %d: no downloadable rendition", h.ID)
			continue
		}
		assets = append(assets, models.Asset{
			Source:      models.SourcePixabay,
			Kind:        models.KindImage,
			Title:       fmt.Sprintf("pixabay-%d", h.ID),
			PreviewURL:  h.PreviewURL,
			DownloadURL: downloadURL,
			Extension:   helpers.ExtensionFromURL(downloadURL, ".jpg"),
			LicenseHint: LicensePixabay,
			PageURL:     h.PageURL,
			Metadata: map[string]any{
				"id":     h.ID,
				"author": h.User,
				"tags":   h.Tags,
				"width":  h.ImageWidth,
				"height": h.ImageHeight,
			},
		})
	}
	return assets
}

func (p *Pixabay) searchVideos(ctx context.Context, params url.Values, count int) []models.Asset {
	var payload pixabayVideoResponse
	if err := p.client.GetJSON(ctx, fmt.Sprintf("%s/api/videos/?%s", p.baseURL, params.Encode()), nil, &payload); err != nil {
		log.WithError(redactKey(err, p.key)).Warn("[pixabay] Video search failed")
		return nil
	}

	assets := make([]models.Asset, 0, len(payload.Hits))
	for _, h := range payload.Hits {
		if len(assets) >= count {
			break
		}
		name, best, ok := bestPixabayRendition(h.Videos)
		if !ok {
			log.Debugf("[pixabay] Skipping video %d: no downloadable rendition", h.ID)
			continue
		}
		preview := best.Thumbnail
		if preview == "" && h.PictureID != "" {
			preview = fmt.Sprintf("https://i.vimeocdn.com/video/%s_295x166.jpg", h.PictureID)
		}
		assets = append(assets, models.Asset{
			Source:      models.SourcePixabay,
			Kind:        models.KindVideo,
			Title:       fmt.Sprintf("pixabay-%d", h.ID),
			PreviewURL:  preview,
			DownloadURL: best.URL,
			Extension:   helpers.ExtensionFromURL(best.URL, ".mp4"),
			LicenseHint: LicensePixabay,
			PageURL:     h.PageURL,
			Metadata: map[string]any{
				"id":         h.ID,
				"author":     h.User,
				"tags":       h.Tags,
				"duration":   h.Duration,
				"width":      best.Width,
				"height":     best.Height,
				"rendition":  name,
				"size_bytes": best.Size,
			},
		})
	}
	return assets
}

// bestPixabayRendition prefers the named "large" rendition, then by name
// rank, then by width. Unknown names rank below "tiny".
func bestPixabayRendition(videos map[string]pixabayRendition) (string, pixabayRendition, bool) {
	bestName := ""
	var best pixabayRendition
	found := false
	for name, r := range videos {
		if r.URL == "" {
			continue
		}
		if !found || betterRendition(name, r, bestName, best) {
			bestName, best, found = name, r, true
		}
	}
	return bestName, best, found
}

func betterRendition(name string, r pixabayRendition, bestName string, best pixabayRendition) bool {
	if pixabayRenditionRank[name] != pixabayRenditionRank[bestName] {
		return pixabayRenditionRank[name] > pixabayRenditionRank[bestName]
	}
	if r.Width != best.Width {
		return r.Width > best.Width
	}
	// Map iteration order is random; the name breaks remaining ties.
	return name < bestName
}

// redactKey keeps the API key, which travels in the query string, out of logs.
func redactKey(err error, key string) error {
	if err == nil || key == "" {
		return err
	}
	return &redactedError{err: err, key: key}
}

type redactedError struct {
	err error
	key string
}

func (e *redactedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), url.QueryEscape(e.key), "REDACTED")
}

func (e *redactedError) Unwrap() error { return e.err }
