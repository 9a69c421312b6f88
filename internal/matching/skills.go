package matching

import (
	"slices"
	"strings"
)

// MaxMissingSkills bounds the missing skills reported per posting.
const MaxMissingSkills = 5

// SplitSkills splits a comma separated skill list into trimmed lowercase tokens.
func SplitSkills(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CalculateSkillMatch scores how many job skills the user covers. A job skill
// counts as covered when it is a substring of a user skill or the other way
// round, so "js" covers "javascript" and "r" covers "react". The score is
// matched/total in [0,1]; missing holds the first MaxMissingSkills unmatched job
// skills, lowercased, in posting order.
func CalculateSkillMatch(userSkillsCSV string, jobSkills []string) (float64, []string) {
	user := SplitSkills(userSkillsCSV)

	job := make([]string, 0, len(jobSkills))
	for _, s := range jobSkills {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			job = append(job, s)
		}
	}

	if len(user) == 0 || len(job) == 0 {
		return 0, nil
	}

	matched := make([]string, 0, len(job))
	for _, js := range job {
		for _, us := range user {
			if strings.Contains(us, js) || strings.Contains(js, us) {
				matched = append(matched, js)
				break
			}
		}
	}

	var missing []string
	for _, js := range job {
		if slices.Contains(matched, js) {
			continue
		}
		missing = append(missing, js)
		if len(missing) == MaxMissingSkills {
			break
		}
	}

	score := float64(len(matched)) / float64(len(job))
	return min(score, 1), missing
}
