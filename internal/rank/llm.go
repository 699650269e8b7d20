package rank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"jobapply-engine/internal/config"
	"jobapply-engine/internal/domain"
)

var ErrNoAPIKey = errors.New("no LLM API key configured")

// NewModel builds the LLM client for the configured provider.
func NewModel(ctx context.Context, provider, model, baseURL, apiKey string) (llms.Model, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	switch provider {
	case "", "openai":
		opts := []openai.Option{openai.WithToken(apiKey)}
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		return openai.New(opts...)
	case "googleai":
		opts := []googleai.Option{googleai.WithAPIKey(apiKey)}
		if model != "" {
			opts = append(opts, googleai.WithDefaultModel(model))
		}
		return googleai.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

// LLMScorer asks a language model for a SCORE/ANALYSIS reply.
type LLMScorer struct {
	Model       llms.Model
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

const promptDescriptionChars = 2000

const scorePrompt = `You are a career matching expert analyzing job postings for an experienced teacher.

CANDIDATE PROFILE:
%s

CANDIDATE PREFERENCES:
%s

JOB POSTING TO ANALYZE:
Title: %s
Employer: %s
Location: %s
Source: %s
Salary: %s
Description: %s

SCORING CRITERIA:
1. Location Match (0-30 points): Is this in New Zealand?
2. Role Match (0-30 points): Does the role fit the profile?
3. Experience Level (0-20 points): Is it suitable for the candidate's experience?
4. Specialization Match (0-20 points): Does it use the candidate's specialisations?

If the posting is clearly outside New Zealand the maximum score is 30.
If it requires visa sponsorship the score is 0.

Format your response as:
SCORE: [number 0-100]
ANALYSIS: [2-3 sentence analysis]`

func (s LLMScorer) Score(ctx context.Context, p domain.Posting, profile config.Profile) Outcome {
	if s.Model == nil {
		return unavailable(ErrNoAPIKey)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	salary := p.SalaryInfo
	if salary == "" {
		salary = "Not specified"
	}
	prompt := fmt.Sprintf(scorePrompt,
		profile.Summary, profile.Preferences,
		p.Title, p.Employer, p.Location, p.SourcePlatform, salary,
		domain.Clip(p.Description, promptDescriptionChars),
	)

	opts := []llms.CallOption{llms.WithTemperature(s.Temperature)}
	if s.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(s.MaxTokens))
	}
	resp, err := llms.GenerateFromSinglePrompt(ctx, s.Model, prompt, opts...)
	if err != nil {
		return unavailable(err)
	}
	return ParseResponse(resp)
}
