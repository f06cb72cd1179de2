// Package suggest asks an LLM which labels fit a document. Suggestions are
// shown to the reviewer next to the buttons and are never written to the
// label store.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"gopkg.in/yaml.v3"

	"labeler/internal/domain"
)

const maxContentChars = 24000

// Guide describes each label for the prompt.
type Guide struct {
	Labels []GuideLabel `yaml:"labels"`
}

type GuideLabel struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

func LoadGuide(path string) (*Guide, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read label guide: %w", err)
	}
	var g Guide
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse label guide yaml: %w", err)
	}
	return &g, nil
}

func (g *Guide) description(label string) string {
	if g == nil {
		return ""
	}
	for _, l := range g.Labels {
		if strings.EqualFold(strings.TrimSpace(l.Name), label) {
			return strings.TrimSpace(l.Description)
		}
	}
	return ""
}

type Suggestion struct {
	CallID string   `json:"call_id"`
	Labels []string `json:"labels"`
	Reason string   `json:"reason"`
}

type Suggester struct {
	client anthropic.Client
	model  string
	guide  *Guide
}

// New builds a Suggester. extra options are appended after the API key, so
// tests can point the client at a fake server.
func New(apiKey, model string, guide *Guide, httpClient *http.Client, extra ...option.RequestOption) *Suggester {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	opts = append(opts, extra...)
	return &Suggester{
		client: anthropic.NewClient(opts...),
		model:  model,
		guide:  guide,
	}
}

func (s *Suggester) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You help a reviewer label funding-call documents. ")
	b.WriteString("Pick every category that applies. Use \"none\" only when no other category applies.\n\n")
	b.WriteString("Categories:\n")
	for _, label := range domain.LabelColumns {
		if desc := s.guide.description(label); desc != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, desc)
		} else {
			fmt.Fprintf(&b, "- %s\n", label)
		}
	}
	b.WriteString("\nReturn ONLY a JSON object: {\"labels\": [\"...\"], \"reason\": \"one sentence\"}")
	return b.String()
}

// Suggest returns the labels the model proposes for one document.
func (s *Suggester) Suggest(ctx context.Context, callID, content string) (Suggestion, error) {
	content = truncateUTF8(content, maxContentChars)
	userPrompt := fmt.Sprintf("Document %s:\n\n%s", callID, content)

	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: s.systemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		log.Printf("suggest anthropic error call=%s: %v", callID, err)
		return Suggestion{}, fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("suggest anthropic call=%s response size=%d tokens_in=%d tokens_out=%d",
				callID, len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			sug, err := parseResponse(block.Text)
			if err != nil {
				return Suggestion{}, err
			}
			sug.CallID = callID
			return sug, nil
		}
	}
	return Suggestion{}, fmt.Errorf("no text content in Anthropic response")
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// parseResponse reads the model's JSON, drops unknown labels and resolves a
// none-plus-category answer in favour of the categories.
func parseResponse(resp string) (Suggestion, error) {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	var raw struct {
		Labels []string `json:"labels"`
		Reason string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(resp), &raw); err != nil {
		return Suggestion{}, fmt.Errorf("parse suggestion json: %w (response: %s)", err, resp)
	}

	rec := domain.NewLabelRecord()
	for _, name := range raw.Labels {
		for _, col := range domain.LabelColumns {
			if strings.EqualFold(strings.TrimSpace(name), col) {
				rec[col] = domain.Marked
			}
		}
	}
	if rec.HasSubstantive() {
		rec[domain.LabelNone] = ""
	}
	return Suggestion{Labels: rec.Active(), Reason: strings.TrimSpace(raw.Reason)}, nil
}
