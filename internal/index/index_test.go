package index

import (
	"path/filepath"
	"strings"
	"testing"

	"go-stockmedia-download/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOutcomes() []models.DownloadOutcome {
	return []models.DownloadOutcome{
		{OK: true, SHA1: strings.Repeat("a", 40), Path: "/out/images/fox.jpg", Source: models.SourcePexels, Kind: models.KindImage, Title: "red fox in snow", PageURL: "https://pexels.com/1"},
		{OK: true, SHA1: strings.Repeat("b", 40), Path: "/out/videos/surf.mp4", Source: models.SourceMixkit, Kind: models.KindVideo, Title: "mixkit-video"},
		{OK: false, Source: models.SourceVidevo, Kind: models.KindVideo, Title: "videvo-video", Error: "404"},
	}
}

func TestIndexOutcomes_SkipsFailures(t *testing.T) {
	idx, err := OpenMemory()
	require.NoError(t, err)
	defer idx.Close()

	n, err := IndexOutcomes(idx, "run-1", "winter animals", sampleOutcomes())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestIndexOutcomes_SameContentIndexesOnce(t *testing.T) {
	idx, err := OpenMemory()
	require.NoError(t, err)
	defer idx.Close()

	_, err = IndexOutcomes(idx, "run-1", "q", sampleOutcomes())
	require.NoError(t, err)
	_, err = IndexOutcomes(idx, "run-2", "q", sampleOutcomes())
	require.NoError(t, err)

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestIndexOutcomes_NothingToIndex(t *testing.T) {
	idx, err := OpenMemory()
	require.NoError(t, err)
	defer idx.Close()

	n, err := IndexOutcomes(idx, "run-1", "q", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSearch(t *testing.T) {
	idx, err := OpenMemory()
	require.NoError(t, err)
	defer idx.Close()
	_, err = IndexOutcomes(idx, "run-1", "winter animals", sampleOutcomes())
	require.NoError(t, err)

	t.Run("title text", func(t *testing.T) {
		hits, total, err := Search(idx, "fox", 10)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), total)
		require.Len(t, hits, 1)
		assert.Equal(t, strings.Repeat("a", 40), hits[0].ID)
		assert.Equal(t, "/out/images/fox.jpg", hits[0].Path)
		assert.Equal(t, "pexels", hits[0].Source)
	})

	t.Run("keyword field", func(t *testing.T) {
		hits, _, err := Search(idx, "source:mixkit", 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "video", hits[0].Kind)
	})

	t.Run("original query", func(t *testing.T) {
		_, total, err := Search(idx, "query:animals", 10)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), total)
	})

	t.Run("empty matches all", func(t *testing.T) {
		_, total, err := Search(idx, "", 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), total)
	})
}

func TestOpenOrCreateIndex_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "_meta", "index.bleve")

	idx, err := OpenOrCreateIndex(path)
	require.NoError(t, err)
	_, err = IndexOutcomes(idx, "run-1", "q", sampleOutcomes())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := OpenOrCreateIndex(path)
	require.NoError(t, err)
	defer reopened.Close()
	count, err := reopened.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}
