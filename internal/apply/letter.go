package apply

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"jobapply-engine/internal/config"
	"jobapply-engine/internal/domain"
)

// Writer produces cover-letter text for a posting.
type Writer interface {
	Write(ctx context.Context, p domain.Posting, profile config.Profile) (string, error)
}

type LLMWriter struct {
	Model     llms.Model
	MaxTokens int
}

const letterPrompt = `You are writing a professional cover letter for a teaching job application in New Zealand.

Applicant:
Name: %s
Email: %s
Profile: %s

Job:
Position: %s
School/Employer: %s
Location: %s
Description: %s

Requirements:
1. 250-350 words, professional but warm.
2. Highlight the experience in the profile that is relevant to this role.
3. Show enthusiasm for this specific role and school.
4. Start directly with the greeting; no placeholder addresses.
5. Sign off with "Kind regards" and the applicant's name.

Write the complete cover letter now:`

func (w LLMWriter) Write(ctx context.Context, p domain.Posting, profile config.Profile) (string, error) {
	if w.Model == nil {
		return "", fmt.Errorf("letter writer: no model")
	}
	maxTokens := w.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	prompt := fmt.Sprintf(letterPrompt,
		profile.Name, profile.Email, profile.Summary,
		p.Title, p.Employer, p.Location, domain.Clip(p.Description, 1500))

	text, err := llms.GenerateFromSinglePrompt(ctx, w.Model, prompt, llms.WithMaxTokens(maxTokens))
	if err != nil {
		return "", fmt.Errorf("letter writer: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("letter writer: empty response")
	}
	return text, nil
}

// TemplateLetter is used when the writer fails or none is configured.
func TemplateLetter(p domain.Posting, profile config.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear Hiring Manager,\n\n")
	fmt.Fprintf(&b, "I am writing to apply for the %s position at %s.\n\n", p.Title, p.Employer)
	if s := strings.TrimSpace(profile.Summary); s != "" {
		fmt.Fprintf(&b, "%s\n\n", firstParagraph(s))
	}
	fmt.Fprintf(&b, "I would welcome the opportunity to discuss how my experience can support your %s community.\n\n",
		strings.TrimSpace(p.Location))
	fmt.Fprintf(&b, "Kind regards,\n%s", profile.Name)
	if profile.Email != "" {
		fmt.Fprintf(&b, "\n%s", profile.Email)
	}
	if profile.Phone != "" {
		fmt.Fprintf(&b, "\n%s", profile.Phone)
	}
	return b.String()
}

func firstParagraph(s string) string {
	if i := strings.Index(s, "\n\n"); i > 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// Subject is the email subject line for an application.
func Subject(p domain.Posting, profile config.Profile) string {
	if profile.Name == "" {
		return "Application for " + p.Title
	}
	return fmt.Sprintf("Application for %s - %s", p.Title, profile.Name)
}
