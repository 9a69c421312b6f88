package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/ai"
	"github.com/spigell/careerlens/internal/matching"
	"github.com/spigell/careerlens/internal/utils"
)

type contentGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// NoteWriter drafts recruiter notes for ranked postings.
type NoteWriter struct {
	generator contentGenerator
	tone      string
	logger    *zap.Logger
	maxLogLen int
}

//go:embed note.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	DefaultTone         = "Professional"
	// postingDescriptionLimit keeps prompts small; the note only needs the gist.
	postingDescriptionLimit = 4000
	maxListItems            = 3
)

func NewNoteWriter(generator contentGenerator, tone string, maxLogLength int, logger *zap.Logger) *NoteWriter {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if tone = strings.TrimSpace(tone); tone == "" {
		tone = DefaultTone
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NoteWriter{
		generator: generator,
		tone:      tone,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (w *NoteWriter) Draft(ctx context.Context, profile ai.Profile, result matching.Result) (*ai.RecruiterNote, error) {
	if result.Job == nil {
		return nil, fmt.Errorf("posting is required")
	}
	job := result.Job

	profileJSON, err := json.MarshalIndent(map[string]any{
		"name":       profile.Name,
		"summary":    profile.Summary,
		"experience": profile.Experience,
		"skills":     matching.SplitSkills(profile.Skills),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal profile payload: %w", err)
	}

	postingJSON, err := json.MarshalIndent(map[string]any{
		"title":       job.Title,
		"company":     job.Company,
		"location":    job.Location,
		"skills":      job.Skills,
		"description": utils.TruncateRunes(job.Description, postingDescriptionLimit),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal posting payload: %w", err)
	}

	prompt := w.buildPrompt(result, string(profileJSON), string(postingJSON))

	w.logger.Debug("gemini generate content request",
		zap.String("job_id", job.ID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, w.maxLogLen)),
	)

	raw, err := w.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	w.logger.Debug("gemini generate content response",
		zap.String("job_id", job.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, w.maxLogLen)),
	)

	note, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	note.JobID = job.ID
	note.Raw = raw
	return note, nil
}

func (w *NoteWriter) buildPrompt(result matching.Result, profileJSON, postingJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Profile:\n{{PROFILE_JSON}}\n\nPosting:\n{{POSTING_JSON}}\n\nJSON Response:"
	}

	missing := "none"
	if len(result.MissingSkills) > 0 {
		missing = strings.Join(result.MissingSkills, ", ")
	}

	replacer := strings.NewReplacer(
		"{{TONE}}", w.tone,
		"{{SIMILARITY}}", formatScore(result.Similarity),
		"{{SKILL_MATCH}}", formatScore(result.SkillMatch),
		"{{COMBINED}}", formatScore(result.Combined),
		"{{MISSING}}", missing,
		"{{PROFILE_JSON}}", profileJSON,
		"{{POSTING_JSON}}", postingJSON,
	)
	return replacer.Replace(template)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func parseResponse(raw string) (*ai.RecruiterNote, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	note := coerceString(data["note"])
	if note == "" {
		return nil, fmt.Errorf("parse gemini response: note is empty")
	}

	return &ai.RecruiterNote{
		Note:      note,
		Strengths: coerceStrings(data["strengths"], maxListItems),
		Gaps:      coerceStrings(data["gaps"], maxListItems),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	// Models sometimes wrap the object in prose.
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start > 0 && end > start {
		raw = raw[start : end+1]
	}
	return raw
}

func coerceStrings(v any, limit int) []string {
	var out []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(val, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
