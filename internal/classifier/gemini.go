package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"plantguard/internal/logging"
	"plantguard/internal/types"
)

// =============================================================================
// GOOGLE GENAI CLASSIFIER
// =============================================================================

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini classifies images with a hosted Gemini model.
type Gemini struct {
	models contentGenerator
	model  string
	labels []string
}

// NewGemini creates a Gemini classifier.
func NewGemini(ctx context.Context, apiKey, model string, labels []string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if len(labels) == 0 {
		labels = types.Vocabulary
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Gemini{models: client.Models, model: model, labels: labels}, nil
}

func (g *Gemini) prompt() string {
	return fmt.Sprintf(`Identify the plant in this photo.
Answer with JSON only: {"label": <one of %s, or a short snake_case name if none match>, "confidence": <number between 0 and 1>}.`,
		strings.Join(g.labels, ", "))
}

// Classify sends the image to the model and parses its JSON answer.
func (g *Gemini) Classify(ctx context.Context, img Image) (types.ClassificationResult, error) {
	if len(img.Data) == 0 {
		return types.ClassificationResult{}, fmt.Errorf("classifier: gemini backend needs image bytes")
	}

	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, mime),
			genai.NewPartFromText(g.prompt()),
		}, genai.RoleUser),
	}

	temperature := float32(0)
	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temperature,
	})
	if err != nil {
		return types.ClassificationResult{}, fmt.Errorf("GenAI classify failed: %w", err)
	}

	text := responseText(resp)
	logging.ClassifierDebug("gemini %s answered: %s", g.model, text)
	return parseModelAnswer(text, g.labels)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// parseModelAnswer extracts {"label","confidence"} from a model reply,
// tolerating markdown fences, and canonicalizes the label.
func parseModelAnswer(text string, labels []string) (types.ClassificationResult, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return types.ClassificationResult{}, ErrEmptyOutput
	}

	var answer struct {
		Label      string   `json:"label"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &answer); err != nil {
		return types.ClassificationResult{}, fmt.Errorf("failed to parse model answer: %w", err)
	}
	if answer.Label == "" || answer.Confidence == nil {
		return types.ClassificationResult{}, ErrEmptyOutput
	}

	return normalize(types.NewClassificationResult(canonicalLabel(answer.Label, labels), *answer.Confidence))
}

// canonicalLabel maps free-form model labels ("Non invasive", "LANTANA")
// onto the vocabulary. Labels outside it are returned snake_cased.
func canonicalLabel(label string, labels []string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	l = strings.NewReplacer(" ", "_", "-", "_").Replace(l)
	for _, known := range labels {
		if l == known {
			return known
		}
	}
	return l
}
