package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"go.uber.org/zap"

	"github.com/spigell/careerlens/internal/listings"
	"github.com/spigell/careerlens/internal/matching"
	"github.com/spigell/careerlens/internal/utils"
)

const (
	PromptExit                = "Exit"
	PromptBack                = "back"
	PromptDraftNote           = "Draft a recruiter note"
	PromptExcludePosting      = "Append this posting to exclude file"
	PromptAppendToExcludeFile = "Append all postings to exclude file"
	PromptPostingsToFile      = "Dump postings to file"

	inspectDescriptionLimit = 600
)

var errExit = errors.New("exit requested")

// browse lets the user walk the ranked matches until they exit.
func (p *pipeline) browse(ctx context.Context, results []matching.Result) error {
	for {
		if len(results) == 0 {
			p.logger.Info("exiting", zap.String("reason", "no matches left"))
			return errExit
		}

		items := make([]string, 0, len(results)+3)
		for _, r := range results {
			items = append(items, fmt.Sprintf("%s %s / %s / %s", r.Job.ID, r.Job.Title, r.Job.Company, percent(r.Combined)))
		}

		excludeFile := p.config.Filters.ExcludeFile
		if excludeFile != "" {
			items = append(items, PromptAppendToExcludeFile)
		}
		items = append(items, PromptPostingsToFile, PromptExit)

		matchPrompt := promptui.Select{
			Label: "Choose a match and press ENTER",
			Items: items,
			Size:  10,
		}

		_, selected, err := matchPrompt.Run()
		if err != nil {
			return err
		}

		switch selected {
		case PromptExit:
			return errExit
		case PromptPostingsToFile:
			filename, err := postingsOf(results).DumpToTmpFile()
			if err != nil {
				return fmt.Errorf("dump results to file: %w", err)
			}
			p.logger.Info("dumping result to file", zap.String("filename", filename))
		case PromptAppendToExcludeFile:
			if err := appendToExcludeFile(excludeFile, postingsOf(results)); err != nil {
				return err
			}
			p.logger.Info("appended to exclude file", zap.String("filename", excludeFile), zap.Int("count", len(results)))
			return errExit
		default:
			id := strings.Split(selected, " ")[0]
			idx := indexOf(results, id)
			if idx < 0 {
				return fmt.Errorf("there is no such posting id %s", id)
			}

			excluded, err := p.inspect(ctx, results[idx])
			if err != nil {
				return err
			}
			if excluded {
				results = append(results[:idx:idx], results[idx+1:]...)
			}
		}
	}
}

// inspect shows one match and its follow up actions. It reports whether the
// posting was excluded.
func (p *pipeline) inspect(ctx context.Context, result matching.Result) (bool, error) {
	job := result.Job
	p.logger.Info(fmt.Sprintf("%s / %s", job.Title, job.Company),
		zap.String("job_id", job.ID),
		zap.String("location", job.Location),
		zap.String("url", job.URL),
		zap.String("salary", job.Salary.Text),
		zap.Strings("skills", job.Skills),
		zap.String("combined", percent(result.Combined)),
		zap.String("similarity", percent(result.Similarity)),
		zap.String("skill_match", percent(result.SkillMatch)),
		zap.Strings("missing_skills", result.MissingSkills),
		zap.String("description", utils.TruncateRunes(job.Description, inspectDescriptionLimit)),
	)

	actions := []string{}
	if p.notes != nil {
		actions = append(actions, PromptDraftNote)
	}
	if p.config.Filters.ExcludeFile != "" {
		actions = append(actions, PromptExcludePosting)
	}
	if len(actions) == 0 {
		return false, nil
	}

	actionPrompt := promptui.Select{
		Label: "What next?",
		Items: append(actions, PromptBack),
	}

	_, action, err := actionPrompt.Run()
	if err != nil {
		return false, err
	}

	switch action {
	case PromptDraftNote:
		note, err := p.notes.Draft(ctx, p.profile(), result)
		if err != nil {
			p.logger.Warn("drafting recruiter note", zap.String("job_id", job.ID), zap.Error(err))
			return false, nil
		}
		reportNote(p.logger, result, note)
	case PromptExcludePosting:
		if err := appendToExcludeFile(p.config.Filters.ExcludeFile, &listings.Postings{Items: []*listings.Posting{job}}); err != nil {
			return false, err
		}
		p.logger.Info("appended to exclude file", zap.String("filename", p.config.Filters.ExcludeFile), zap.String("job_id", job.ID))
		return true, nil
	}

	return false, nil
}

func appendToExcludeFile(path string, postings *listings.Postings) error {
	excluded, err := listings.LoadExcluded(path)
	if err != nil {
		return err
	}

	excluded.Append(postings.ToExcluded(time.Now()))

	return excluded.ToFile(path)
}

func postingsOf(results []matching.Result) *listings.Postings {
	items := make([]*listings.Posting, 0, len(results))
	for _, r := range results {
		items = append(items, r.Job)
	}
	return &listings.Postings{Items: items}
}

func indexOf(results []matching.Result, id string) int {
	for i, r := range results {
		if r.Job.ID == id {
			return i
		}
	}
	return -1
}
