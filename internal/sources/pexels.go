package sources

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"go-stockmedia-download/internal/api"
	"go-stockmedia-download/internal/helpers"
	"go-stockmedia-download/internal/models"

	log "github.com/sirupsen/logrus"
)

type pexelsPhotoResponse struct {
	Photos []struct {
		ID           int64  `json:"id"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		URL          string `json:"url"`
		Photographer string `json:"photographer"`
		Alt          string `json:"alt"`
		Src          struct {
			Original string `json:"original"`
			Large2x  string `json:"large2x"`
			Large    string `json:"large"`
			Medium   string `json:"medium"`
			Small    string `json:"small"`
		} `json:"src"`
	} `json:"photos"`
}

type pexelsVideoResponse struct {
	Videos []struct {
		ID       int64  `json:"id"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		URL      string `json:"url"`
		Image    string `json:"image"`
		Duration int    `json:"duration"`
		User     struct {
			Name string `json:"name"`
		} `json:"user"`
		VideoFiles []pexelsVideoFile `json:"video_files"`
	} `json:"videos"`
}

type pexelsVideoFile struct {
	ID       int64  `json:"id"`
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Link     string `json:"link"`
}

// Pexels searches both the Pexels photo and video APIs.
type Pexels struct {
	client  *api.Client
	key     string
	baseURL string
}

func NewPexels(client *api.Client, key, baseURL string) *Pexels {
	return &Pexels{client: client, key: key, baseURL: baseURL}
}

func (p *Pexels) Source() models.Source { return models.SourcePexels }

// Search returns up to count photos and up to count videos. A failure of
// one half does not discard the other.
func (p *Pexels) Search(ctx context.Context, query string, count int) []models.Asset {
	if p.key == "" {
		log.Infof("[pexels] No API key configured, skipping source")
		return nil
	}
	if count <= 0 {
		return nil
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(clampPerPage(count, 1, 80)))
	headers := map[string]string{"Authorization": p.key}

	assets := p.searchPhotos(ctx, params, headers, count)
	return append(assets, p.searchVideos(ctx, params, headers, count)...)
}

func (p *Pexels) searchPhotos(ctx context.Context, params url.Values, headers map[string]string, count int) []models.Asset {
	var payload pexelsPhotoResponse
	reqURL := fmt.Sprintf("%s/v1/search?%s", p.baseURL, params.Encode())
	if err := p.client.GetJSON(ctx, reqURL, headers, &payload); err != nil {
		log.WithError(err).Warn("[pexels] Photo search failed")
		return nil
	}

	assets := make([]models.Asset, 0, len(payload.Photos))
	for _, ph := range payload.Photos {
		if len(assets) >= count {
			break
		}
		downloadURL := firstNonEmpty(ph.Src.Original, ph.Src.Large2x, ph.Src.Large)
		if downloadURL == "" {
			log.Debugf("[pexels] Skipping photo %d: no downloadable rendition", ph.ID)
			continue
		}
		title := strings.TrimSpace(ph.Alt)
		if title == "" {
			title = fmt.Sprintf("pexels-%d", ph.ID)
		}
		assets = append(assets, models.Asset{
			Source:      models.SourcePexels,
			Kind:        models.KindImage,
			Title:       title,
			PreviewURL:  firstNonEmpty(ph.Src.Medium, ph.Src.Small),
			DownloadURL: downloadURL,
			Extension:   helpers.ExtensionFromURL(downloadURL, ".jpg"),
			LicenseHint: LicensePexels,
			PageURL:     ph.URL,
			Metadata: map[string]any{
				"id":     ph.ID,
				"author": ph.Photographer,
				"width":  ph.Width,
				"height": ph.Height,
			},
		})
	}
	return assets
}

func (p *Pexels) searchVideos(ctx context.Context, params url.Values, headers map[string]string, count int) []models.Asset {
	var payload pexelsVideoResponse
	reqURL := fmt.Sprintf("%s/videos/search?%s", p.baseURL, params.Encode())
	if err := p.client.GetJSON(ctx, reqURL, headers, &payload); err != nil {
		log.WithError(err).Warn("[pexels] Video search failed")
		return nil
	}

	assets := make([]models.Asset, 0, len(payload.Videos))
	for _, v := range payload.Videos {
		if len(assets) >= count {
			break
		}
		best, ok := bestPexelsFile(v.VideoFiles)
		if !ok {
			log.Debugf("[pexels] Skipping video %d: no downloadable file", v.ID)
			continue
		}
		ext, known := helpers.GetExtensionFromMimeType(best.FileType)
		if !known {
			ext = helpers.ExtensionFromURL(best.Link, ".mp4")
		}
		assets = append(assets, models.Asset{
			Source:      models.SourcePexels,
			Kind:        models.KindVideo,
			Title:       fmt.Sprintf("pexels-%d", v.ID),
			PreviewURL:  v.Image,
			DownloadURL: best.Link,
			Extension:   ext,
			LicenseHint: LicensePexels,
			PageURL:     v.URL,
			Metadata: map[string]any{
				"id":       v.ID,
				"author":   v.User.Name,
				"duration": v.Duration,
				"width":    best.Width,
				"height":   best.Height,
				"quality":  best.Quality,
			},
		})
	}
	return assets
}

// bestPexelsFile picks the highest quality rendition: HD-flagged files first,
// then the widest, then the tallest. Files without a link are ignored.
func bestPexelsFile(files []pexelsVideoFile) (pexelsVideoFile, bool) {
	candidates := make([]pexelsVideoFile, 0, len(files))
	for _, f := range files {
		if strings.TrimSpace(f.Link) != "" {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return pexelsVideoFile{}, false
	}
	isHD := func(f pexelsVideoFile) bool {
		q := strings.ToLower(f.Quality)
		return q == "hd" || q == "uhd"
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if isHD(a) != isHD(b) {
			return isHD(a)
		}
		if a.Width != b.Width {
			return a.Width > b.Width
		}
		return a.Height > b.Height
	})
	return candidates[0], true
}
