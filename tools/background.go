package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/applymate/agent-go/retriever"
)

// BackgroundAPI is the boundary to the profile/job subsystem. The agent
// reads work-history entries through it and writes extracted job
// listings back; everything behind it is out of the runtime's scope.
type BackgroundAPI interface {
	// GetExperience fetches one work-history entry by id.
	GetExperience(ctx context.Context, id string) (*Experience, error)

	// SaveJobListing persists an extracted listing and returns its id.
	SaveJobListing(ctx context.Context, listing *JobListing) (string, error)
}

// Experience is one work-history entry from the user's profile.
type Experience struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Description string   `json:"description"`
	Highlights  []string `json:"highlights,omitempty"`
}

// JobListing is a job posting the agent extracted from conversation.
type JobListing struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	URL         string `json:"url"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
}

// AssistantTools returns the fixed job-assistant toolset.
func AssistantTools(api BackgroundAPI, ret retriever.Retriever) []*Tool {
	return []*Tool{
		searchBackgroundTool(ret),
		getExperienceTool(api),
		saveJobListingTool(api),
	}
}

func searchBackgroundTool(ret retriever.Retriever) *Tool {
	return New(
		"search_background",
		"Search the user's professional background (profile, work history, saved jobs, past conversations) for snippets relevant to a query.",
		ObjectSchema(map[string]interface{}{
			"query": StringProperty("What to look for in the user's background"),
			"k":     IntegerProperty("Maximum number of snippets to return (default: 4)"),
		}, "query"),
	).Handler(func(ctx context.Context, p *Params) (string, error) {
		var args struct {
			Query string `json:"query"`
			K     int    `json:"k"`
		}
		if err := json.Unmarshal(p.Arguments, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(args.Query) == "" {
			return "", fmt.Errorf("missing required field %q", "query")
		}

		docs, err := ret.Search(ctx, p.Namespace, args.Query, args.K)
		if err != nil {
			return "", fmt.Errorf("background search failed: %w", err)
		}
		if len(docs) == 0 {
			return "No matching background found.", nil
		}

		var b strings.Builder
		for i, doc := range docs {
			fmt.Fprintf(&b, "%d. [%s/%s] %s\n", i+1, doc.SourceType, doc.SourceID, doc.Text)
		}
		return b.String(), nil
	})
}

func getExperienceTool(api BackgroundAPI) *Tool {
	return New(
		"get_experience",
		"Fetch the full details of one work-history entry by its id (ids appear in search_background results).",
		ObjectSchema(map[string]interface{}{
			"experience_id": StringProperty("The id of the work-history entry"),
		}, "experience_id"),
	).Handler(func(ctx context.Context, p *Params) (string, error) {
		var args struct {
			ExperienceID string `json:"experience_id"`
		}
		if err := json.Unmarshal(p.Arguments, &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(args.ExperienceID) == "" {
			return "", fmt.Errorf("missing required field %q", "experience_id")
		}

		exp, err := api.GetExperience(ctx, args.ExperienceID)
		if err != nil {
			return "", fmt.Errorf("fetch experience %s: %w", args.ExperienceID, err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%s at %s (%s - %s)\n%s\n", exp.Title, exp.Company, exp.Start, exp.End, exp.Description)
		for _, h := range exp.Highlights {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		return b.String(), nil
	})
}

func saveJobListingTool(api BackgroundAPI) *Tool {
	return New(
		"save_job_listing",
		"Save a job listing extracted from the conversation to the user's tracked jobs. Title, company, and url are required.",
		ObjectSchema(map[string]interface{}{
			"title":       StringProperty("Job title"),
			"company":     StringProperty("Hiring company name"),
			"url":         StringProperty("Canonical posting URL"),
			"location":    StringProperty("Job location, if known"),
			"description": StringProperty("Short description of the role"),
			"source":      StringProperty("Where the listing was found"),
		}, "title", "company", "url"),
	).Handler(func(ctx context.Context, p *Params) (string, error) {
		var listing JobListing
		if err := json.Unmarshal(p.Arguments, &listing); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		for field, value := range map[string]string{
			"title":   listing.Title,
			"company": listing.Company,
			"url":     listing.URL,
		} {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("missing required field %q", field)
			}
		}

		id, err := api.SaveJobListing(ctx, &listing)
		if err != nil {
			return "", fmt.Errorf("save job listing: %w", err)
		}
		return fmt.Sprintf("Saved job listing %s: %s at %s", id, listing.Title, listing.Company), nil
	})
}
