package matching

import (
	"sort"

	"github.com/spigell/careerlens/internal/listings"
)

// Weights of the combined score. They are fixed so rankings stay comparable
// between runs.
const (
	SemanticWeight = 0.6
	SkillWeight    = 0.4
)

// Result is one ranked posting.
type Result struct {
	Job           *listings.Posting `json:"job"`
	Similarity    float64           `json:"similarity"`
	SkillMatch    float64           `json:"skill_match"`
	MissingSkills []string          `json:"missing_skills,omitempty"`
	Combined      float64           `json:"combined"`
}

// Combine returns 0.6*similarity + 0.4*skill.
func Combine(similarity, skill float64) float64 {
	return SemanticWeight*similarity + SkillWeight*skill
}

// Rank orders results by Combined, highest first. Equal scores keep their
// relative order.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Combined > results[j].Combined
	})
}

// Score fills the skill fields and the combined score of every result and
// ranks them in place.
func Score(results []Result, userSkillsCSV string) []Result {
	for i := range results {
		var jobSkills []string
		if results[i].Job != nil {
			jobSkills = results[i].Job.Skills
		}
		results[i].SkillMatch, results[i].MissingSkills = CalculateSkillMatch(userSkillsCSV, jobSkills)
		results[i].Combined = Combine(results[i].Similarity, results[i].SkillMatch)
	}

	Rank(results)
	return results
}

// IndexLimit decides how many postings to embed when the caller wants desired
// matches out of available: twice the wanted count to leave room for re-ranking,
// capped by ceiling (when positive) and by what is available.
func IndexLimit(available, desired, ceiling int) int {
	if available <= 0 || desired <= 0 {
		return 0
	}

	limit := desired * 2
	if ceiling > 0 {
		limit = min(limit, max(ceiling, desired))
	}
	return min(limit, available)
}
