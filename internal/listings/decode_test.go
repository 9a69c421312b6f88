package listings

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePostingDefaults(t *testing.T) {
	posting, err := decodePosting(map[string]any{"descriptionText": "Something"})
	require.NoError(t, err)

	assert.Equal(t, notAvailable, posting.Title)
	assert.Equal(t, notAvailable, posting.Company)
	assert.Equal(t, notSpecified, posting.Location)
	assert.Equal(t, defaultJobTypeTag, posting.JobType)
	assert.Empty(t, posting.URL)
	assert.Equal(t, PostingID("", notAvailable, notAvailable), posting.ID)
}

func TestDecodePostingFields(t *testing.T) {
	skills := make([]any, 0, 12)
	for i := 0; i < 12; i++ {
		skills = append(skills, "skill"+strings.Repeat("x", i))
	}

	posting, err := decodePosting(map[string]any{
		"title":       "  Platform   Engineer ",
		"company":     "Globex",
		"location":    map[string]any{"city": "Kowloon", "countryName": "Hong Kong"},
		"url":         "https://jobs.example/pe",
		"attributes":  skills,
		"benefits":    []any{"a", "b", map[string]any{"label": "c"}, "d", "e", "f"},
		"jobType":     "contract",
		"isRemote":    "true",
		"age":         "3 days ago",
		"salary":      map[string]any{"salaryMin": "30000", "salaryMax": 45000, "salaryCurrency": "HKD", "salaryType": "monthly"},
		"rating":      map[string]any{"rating": 4.2},
		"description": "<p>Run <b>Kubernetes</b></p><ul><li>Go</li><li>Terraform</li></ul>",
	})
	require.NoError(t, err)

	assert.Equal(t, "Platform Engineer", posting.Title)
	assert.Equal(t, "Globex", posting.Company)
	assert.Equal(t, "Kowloon", posting.Location)
	assert.Len(t, posting.Skills, MaxSkills)
	assert.Equal(t, "skill", posting.Skills[0])
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, posting.Benefits)
	assert.Equal(t, "contract", posting.JobType)
	assert.True(t, posting.Remote)
	assert.Equal(t, "3 days ago", posting.PostedAt)
	assert.Equal(t, Salary{Min: 30000, Max: 45000, Currency: "HKD", Period: "monthly"}, posting.Salary)
	assert.InDelta(t, 4.2, posting.Rating, 1e-9)
	assert.Equal(t, "Run Kubernetes\nGo\nTerraform", posting.Description)
}

func TestDecodePostingCapsDescription(t *testing.T) {
	long := strings.Repeat("é", MaxDescriptionRunes+100)
	posting, err := decodePosting(map[string]any{"title": "t", "descriptionText": long})
	require.NoError(t, err)
	assert.Equal(t, MaxDescriptionRunes, utf8.RuneCountInString(posting.Description))
}

func TestDecodePostingRejects(t *testing.T) {
	for name, record := range map[string]any{
		"not a map":        []any{"x"},
		"empty":            map[string]any{},
		"title wrong type": map[string]any{"title": []any{map[string]any{"x": 1}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodePosting(record)
			assert.ErrorIs(t, err, errMalformedRecord)
		})
	}
}

func TestPostingIDDeterministic(t *testing.T) {
	a := PostingID("https://jobs.example/1", "A", "B")
	assert.Equal(t, a, PostingID(" https://jobs.example/1 ", "other", "other"))
	assert.NotEqual(t, a, PostingID("https://jobs.example/2", "A", "B"))
	assert.Equal(t, PostingID("", "Go Dev", "Acme"), PostingID("", "go dev", "ACME"))
	assert.NotEqual(t, PostingID("", "Go Dev", "Acme"), PostingID("", "Go Dev", "Initech"))
}

func TestHTMLToText(t *testing.T) {
	got := HTMLToText("<div>Hello<br>world</div><script>alert(1)</script><p>  spaced   out </p>")
	assert.Equal(t, "Hello\nworld\nspaced out", got)
}
