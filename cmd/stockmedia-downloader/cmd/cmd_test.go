package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-stockmedia-download/internal/database"
	"go-stockmedia-download/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		n       int
		want    []int
		wantErr bool
	}{
		{"empty means all", "", 3, []int{0, 1, 2}, false},
		{"all", " ALL \n", 2, []int{0, 1}, false},
		{"none", "none", 4, []int{}, false},
		{"single", "2", 3, []int{1}, false},
		{"list and range", "1,3,5-7", 8, []int{0, 2, 4, 5, 6}, false},
		{"repeats dropped", "2,2,1-2", 3, []int{1, 0}, false},
		{"spaces", " 1 , 2 - 3 ", 3, []int{0, 1, 2}, false},
		{"out of range", "4", 3, nil, true},
		{"zero", "0", 3, nil, true},
		{"reversed range", "3-1", 3, nil, true},
		{"garbage", "abc", 3, nil, true},
		{"only commas", ",,", 3, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSelection(tt.input, tt.n)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func sampleAssets() []models.Asset {
	return []models.Asset{
		{Source: models.SourcePexels, Kind: models.KindImage, Title: "lake", DownloadURL: "https://x/1.jpg"},
		{Source: models.SourceMixkit, Kind: models.KindVideo, Title: "mixkit-video", DownloadURL: "https://x/2.mp4"},
		{Source: models.SourceVidevo, Kind: models.KindVideo, Title: "videvo-video", DownloadURL: "https://x/3.mp4"},
	}
}

func TestPromptSelection(t *testing.T) {
	t.Run("retries after invalid input", func(t *testing.T) {
		var out bytes.Buffer
		got := promptSelection(strings.NewReader("9\n1,3\n"), &out, sampleAssets())
		require.Len(t, got, 2)
		assert.Equal(t, models.SourcePexels, got[0].Source)
		assert.Equal(t, models.SourceVidevo, got[1].Source)
		assert.Contains(t, out.String(), "out of range")
		assert.Contains(t, out.String(), "mixkit-video")
	})

	t.Run("last line without newline", func(t *testing.T) {
		got := promptSelection(strings.NewReader("2"), &bytes.Buffer{}, sampleAssets())
		require.Len(t, got, 1)
		assert.Equal(t, models.SourceMixkit, got[0].Source)
	})

	t.Run("eof selects nothing", func(t *testing.T) {
		got := promptSelection(strings.NewReader(""), &bytes.Buffer{}, sampleAssets())
		assert.Empty(t, got)
	})

	t.Run("none", func(t *testing.T) {
		got := promptSelection(strings.NewReader("none\n"), &bytes.Buffer{}, sampleAssets())
		assert.Empty(t, got)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ééééééé...", truncate(strings.Repeat("é", 20), 10))
}

func TestSourceRows(t *testing.T) {
	cfg := models.Config{
		Sources:     []string{"pexels", "coverr"},
		Credentials: models.Credentials{Pexels: "secret"},
	}
	rows := sourceRows(cfg)
	require.Len(t, rows, 6)

	byID := make(map[models.Source]sourceRow)
	for _, r := range rows {
		byID[r.ID] = r
	}
	assert.Equal(t, "Unsplash", byID[models.SourceUnsplash].Name)
	assert.Contains(t, byID[models.SourceUnsplash].Status, "UNSPLASH_KEY")
	assert.Equal(t, "key configured", byID[models.SourcePexels].Status)
	assert.True(t, byID[models.SourcePexels].Selected)
	assert.False(t, byID[models.SourcePixabay].Selected)
	assert.Equal(t, "scrape", byID[models.SourceMixkit].Family)

	cfg.NoScrape = true
	for _, r := range sourceRows(cfg) {
		if !r.ID.Structured() {
			assert.Contains(t, r.Status, "disabled")
		}
	}
}

func TestWriteConfig(t *testing.T) {
	cfg := models.Config{
		OutputDir:   "downloads",
		Items:       10,
		Credentials: models.Credentials{Pexels: "abcdef123456"},
	}

	t.Run("json hides credentials", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeConfig(&buf, cfg, "json"))
		assert.NotContains(t, buf.String(), "abcdef123456")
		var parsed models.Config
		require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
		assert.Equal(t, 10, parsed.Items)
	})

	t.Run("toml masks credentials", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeConfig(&buf, cfg, "TOML"))
		assert.NotContains(t, buf.String(), "abcdef123456")
		var parsed models.Config
		_, err := toml.Decode(buf.String(), &parsed)
		require.NoError(t, err)
		assert.Equal(t, "downloads", parsed.OutputDir)
		assert.Equal(t, "ab********56", parsed.Credentials.Pexels)
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, writeConfig(&bytes.Buffer{}, cfg, "yaml"))
	})
}

func TestPrintManifest(t *testing.T) {
	m := models.Manifest{
		GeneratedAt: models.UnixTime(time.Unix(1700000000, 0)),
		RunID:       "run-1",
		Query:       "lake",
		Results: []models.DownloadOutcome{
			{OK: true, Source: models.SourcePexels, Kind: models.KindImage, Title: "lake", Path: "/out/images/a.jpg"},
			{OK: false, Source: models.SourcePexels, Kind: models.KindVideo, Title: "pexels-2", Error: "unexpected HTTP status code: 404"},
			{OK: true, Source: models.SourceCoverr, Kind: models.KindVideo, Title: "coverr-video", Path: "/out/videos/b.mp4"},
		},
	}

	var buf bytes.Buffer
	printManifest(&buf, "/out/_meta/manifest.json", m, false)
	text := buf.String()
	assert.Contains(t, text, "Result:    2/3 ok")
	assert.Regexp(t, `pexels\s+1/2`, text)
	assert.Regexp(t, `coverr\s+1/1`, text)
	assert.Contains(t, text, "/out/images/a.jpg")

	buf.Reset()
	printManifest(&buf, "/out/_meta/manifest.json", m, true)
	assert.NotContains(t, buf.String(), "/out/images/a.jpg")
	assert.Contains(t, buf.String(), "404")
}

func TestInitLogging(t *testing.T) {
	assert.NoError(t, initLogging("debug", "json", ""))
	assert.NoError(t, initLogging("info", "text", ""))
	assert.Error(t, initLogging("loud", "text", ""))
	assert.Error(t, initLogging("info", "xml", ""))
}

func TestBuildCliFlags(t *testing.T) {
	require.NoError(t, fetchCmd.ParseFlags([]string{"-q", "ocean", "-n", "3", "-s", "pexels,mixkit", "--no-index", "-o", "/tmp/x"}))
	t.Cleanup(func() {
		fetchCmd.Flags().VisitAll(func(f *pflag.Flag) {
			f.Changed = false
		})
	})

	flags := buildCliFlags(fetchCmd)
	require.NotNil(t, flags.Fetch.Query)
	assert.Equal(t, "ocean", *flags.Fetch.Query)
	require.NotNil(t, flags.Fetch.Items)
	assert.Equal(t, 3, *flags.Fetch.Items)
	require.NotNil(t, flags.Fetch.Sources)
	assert.Equal(t, []string{"pexels", "mixkit"}, *flags.Fetch.Sources)
	require.NotNil(t, flags.Fetch.NoIndex)
	assert.True(t, *flags.Fetch.NoIndex)
	require.NotNil(t, flags.OutputDir)
	assert.Equal(t, "/tmp/x", *flags.OutputDir)

	assert.Nil(t, flags.Fetch.Workers, "unset flags stay nil")
	assert.Nil(t, flags.Fetch.PexelsKey)
	assert.Nil(t, flags.ConfigFilePath)
}

func TestFindBySHA1(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	digest := strings.Repeat("ab", 20)
	started := time.Unix(1700000000, 0)
	require.NoError(t, db.RecordRun(database.Run{ID: "run-1", Query: "lake", StartedAt: started, FinishedAt: started, Total: 1, OK: 1},
		[]models.DownloadOutcome{{OK: true, SHA1: digest, Path: "/out/images/lake-abababab.jpg", Source: models.SourcePexels, Kind: models.KindImage, Title: "lake"}}))

	var buf bytes.Buffer
	require.NoError(t, findBySHA1(&buf, db, strings.ToUpper(digest)))
	assert.Contains(t, buf.String(), "/out/images/lake-abababab.jpg")
	assert.Contains(t, buf.String(), "pexels")

	buf.Reset()
	require.NoError(t, findBySHA1(&buf, db, strings.Repeat("cd", 20)))
	assert.Contains(t, buf.String(), "No downloads recorded")

	assert.Error(t, findBySHA1(&bytes.Buffer{}, db, "abab"))
}
