package ai

import (
	"context"

	"github.com/spigell/careerlens/internal/matching"
)

// Profile is what the candidate told us about themselves.
type Profile struct {
	Name       string
	Summary    string
	Experience string
	Skills     string
}

// RecruiterNote is a short pitch for one ranked posting.
type RecruiterNote struct {
	JobID     string
	Note      string
	Strengths []string
	Gaps      []string
	Raw       string
}

// NoteWriter drafts a recruiter note for one ranked posting.
type NoteWriter interface {
	Draft(ctx context.Context, profile Profile, result matching.Result) (*RecruiterNote, error)
}
