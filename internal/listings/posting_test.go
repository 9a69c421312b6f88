package listings

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePostings() *Postings {
	return &Postings{Items: []*Posting{
		{ID: "1", Company: "Acme", Title: "Go"},
		{ID: "2", Company: "Globex", Title: "Rust"},
		{ID: "3", Company: "acme", Title: "Python"},
		{ID: "4", Company: "Initech", Title: "Java"},
	}}
}

func TestPostingsExcludeKeepsOrder(t *testing.T) {
	postings := samplePostings()

	removed := postings.Exclude(PostingCompanyField, []string{"ACME"})
	assert.Equal(t, []string{"1", "3"}, removed)
	require.Equal(t, 2, postings.Len())
	assert.Equal(t, "2", postings.Items[0].ID)
	assert.Equal(t, "4", postings.Items[1].ID)

	assert.Nil(t, postings.Exclude(PostingIDField, nil))
}

func TestPostingsCloneIsIndependent(t *testing.T) {
	original := samplePostings()
	clone := original.Clone()

	clone.Exclude(PostingIDField, []string{"1"})
	assert.Equal(t, 4, original.Len())
	assert.Equal(t, 3, clone.Len())
}

func TestPostingsHead(t *testing.T) {
	postings := samplePostings()
	assert.Len(t, postings.Head(2), 2)
	assert.Len(t, postings.Head(10), 4)
	assert.Len(t, postings.Head(-1), 4)
}

func TestExcludedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excluded.json")

	missing, err := LoadExcluded(path)
	require.NoError(t, err)
	assert.Empty(t, missing.Items)

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	excluded := samplePostings().ToExcluded(now)
	excluded.Append(&ExcludedPostings{Items: []*ExcludedPosting{{ID: "1"}, {ID: "9"}}})
	require.Len(t, excluded.Items, 5)
	require.NoError(t, excluded.ToFile(path))

	loaded, err := LoadExcluded(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "9"}, loaded.IDs())
	assert.True(t, loaded.Items[0].ExcludedAt.Equal(now))
}
