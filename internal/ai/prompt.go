package ai

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
)

// PromptData is what a prompt template can reference
type PromptData struct {
	Company     string
	Title       string
	Description string
	Profile     string
}

const defaultPrompt = `You are an expert cover letter writer. Write a professional, enthusiastic cover letter for the following job application.

**Job Details:**
- Company: {{.Company}}
- Position: {{.Title}}

**Job Description:**
{{.Description}}

**Candidate Profile:**
{{.Profile}}

**Instructions:**
1. Write a compelling cover letter that highlights relevant skills and experience
2. Keep it between 200-400 words
3. Be specific about why the candidate is a good fit
4. Show enthusiasm for the role and company
5. Use a professional but friendly tone
6. Do NOT include a header/address/date (just the body text)
7. Do NOT include a signature (that will be added separately)
8. Start with "Dear Hiring Manager,"

Write only the cover letter body text, nothing else.`

// PromptBuilder renders cover letter prompts from a template
type PromptBuilder struct {
	tmpl    *template.Template
	profile string
}

// NewPromptBuilder parses the template at path, or the built-in prompt when
// path is empty. resume and extra make up the candidate profile.
func NewPromptBuilder(path, resume, extra string) (*PromptBuilder, error) {
	text := defaultPrompt
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read prompt template: %w", err)
		}
		text = string(raw)
	}

	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template: %w", err)
	}

	profile := strings.TrimSpace(strings.TrimSpace(resume) + "\n\n" + strings.TrimSpace(extra))
	return &PromptBuilder{tmpl: tmpl, profile: profile}, nil
}

// Build renders the prompt for one job
func (b *PromptBuilder) Build(company, title, description string) (string, error) {
	var buf bytes.Buffer
	err := b.tmpl.Execute(&buf, PromptData{
		Company:     company,
		Title:       title,
		Description: description,
		Profile:     b.profile,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}
