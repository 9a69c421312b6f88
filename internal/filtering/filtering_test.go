package filtering

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/careerlens/internal/listings"
)

func postings() *listings.Postings {
	return &listings.Postings{Items: []*listings.Posting{
		{ID: "1", Title: "Senior Golang Developer", Company: "Acme", Remote: true,
			Salary: listings.Salary{Min: 40000, Max: 60000}},
		{ID: "2", Title: "Accountant", Company: "Globex", Description: "Month end close and audit",
			Salary: listings.Salary{Max: 20000}},
		{ID: "3", Title: "Machine Learning Engineer", Company: "Initech", Skills: []string{"PyTorch"}},
		{ID: "4", Title: "HTML email specialist", Company: "Umbrella", Remote: true},
	}}
}

func ids(p *listings.Postings) []string {
	out := make([]string, 0, p.Len())
	for _, item := range p.Items {
		out = append(out, item.ID)
	}
	return out
}

func TestRunAppliesStepsInOrder(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg := &Config{
		Companies:  []string{"globex"},
		Domains:    []string{"Software Engineering", "Data Science"},
		MinSalary:  30000,
		RemoteOnly: false,
	}

	out, err := Run(context.Background(), cfg, Deps{Logger: zap.New(core)}, Default(), postings())
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "3"}, ids(out))
	assert.Equal(t, len(Default()), logs.FilterMessage("filter step").Len())
}

func TestDomainsUseWholeWords(t *testing.T) {
	f := NewDomains()
	require.NoError(t, f.Validate(&Config{Domains: []string{"data science"}}))

	out, step, err := f.Apply(context.Background(), Deps{}, postings())
	require.NoError(t, err)

	// "ml" must not match inside "HTML"
	assert.Equal(t, []string{"3"}, ids(out))
	assert.Equal(t, Step{Initial: 4, Dropped: 3, Left: 1}, step)
}

func TestDomainsUnknownNameMatchesItself(t *testing.T) {
	f := NewDomains()
	require.NoError(t, f.Validate(&Config{Domains: []string{"Email"}}))

	out, _, err := f.Apply(context.Background(), Deps{}, postings())
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, ids(out))
}

func TestSalaryKeepsUnknown(t *testing.T) {
	f := NewSalary()
	require.NoError(t, f.Validate(&Config{MinSalary: 50000}))

	out, step, err := f.Apply(context.Background(), Deps{}, postings())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3", "4"}, ids(out))
	assert.Equal(t, 1, step.Dropped)
}

func TestRemoteOnly(t *testing.T) {
	f := NewRemoteOnly()
	require.NoError(t, f.Validate(&Config{RemoteOnly: true}))

	out, _, err := f.Apply(context.Background(), Deps{}, postings())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4"}, ids(out))
}

func TestExcludeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "excluded.json")
	seen := &listings.Postings{Items: []*listings.Posting{{ID: "2"}, {ID: "4"}}}
	require.NoError(t, seen.ToExcluded(time.Now()).ToFile(path))

	f := NewExcludeFile()
	require.NoError(t, f.Validate(&Config{ExcludeFile: path}))

	out, step, err := f.Apply(context.Background(), Deps{}, postings())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, ids(out))
	assert.Equal(t, 2, step.Dropped)
}

func TestDisabledFilterIsSkipped(t *testing.T) {
	steps := Default()
	DisableByName(steps, "companies", "testing")

	out, err := Run(context.Background(), &Config{Companies: []string{"Acme"}}, Deps{}, steps, postings())
	require.NoError(t, err)
	assert.Equal(t, 4, out.Len())

	for _, status := range Describe(steps) {
		if status.Name == "companies" {
			assert.False(t, status.Enabled)
			assert.Equal(t, "testing", status.Reason)
		}
	}
}

func TestNilConfigIsNoop(t *testing.T) {
	out, err := Run(context.Background(), nil, Deps{}, Default(), postings())
	require.NoError(t, err)
	assert.Equal(t, 4, out.Len())
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, " ci/cd c++ and c# ", normalizeText("CI/CD, C++ and C#!"))
	assert.Equal(t, "", normalizeText("  ...  "))
	assert.Contains(t, Domains(), "devops")
}
