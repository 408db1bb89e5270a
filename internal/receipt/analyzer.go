package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.5-flash"

// Analyzer is the OCR collaborator: it reads a receipt image into an Analysis.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (*Analysis, error)
}

// AnalyzerFunc adapts a function to the Analyzer interface.
type AnalyzerFunc func(ctx context.Context, image []byte, mimeType string) (*Analysis, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, image []byte, mimeType string) (*Analysis, error) {
	return f(ctx, image, mimeType)
}

// contentGenerator is the part of genai.Models the analyzer uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAnalyzer reads receipts with a Gemini multimodal model.
type GeminiAnalyzer struct {
	models contentGenerator
	model  string
}

// NewGeminiAnalyzer creates a Gemini client using the ambient credentials
// (GOOGLE_API_KEY, or Vertex AI settings from the environment).
func NewGeminiAnalyzer(ctx context.Context, model string) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiAnalyzer: create genai client: %w", err)
	}
	return newGeminiAnalyzer(client.Models, model), nil
}

func newGeminiAnalyzer(models contentGenerator, model string) *GeminiAnalyzer {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiAnalyzer{models: models, model: model}
}

const receiptPrompt = "You are a receipt parser.\n\n" +
	"Task:\n" +
	"- Read the attached photo of a printed store receipt.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n\n" +
	"The JSON object must have this shape:\n" +
	"{\n" +
	"  \"summary\": {\"total\": number, \"subtotal\": number or null, \"tax\": number or null, \"date\": string or null, \"receiptId\": string or null},\n" +
	"  \"vendorInfo\": {\"name\": string or null, \"address\": string or null, \"phone\": string or null},\n" +
	"  \"lineItems\": [{\"description\": string, \"quantity\": number or null, \"unitPrice\": number or null, \"totalPrice\": number}]\n" +
	"}\n\n" +
	"Rules:\n" +
	"- Amounts are positive numbers without currency symbols.\n" +
	"- \"date\" is the purchase date as printed, preferably MM/DD/YYYY.\n" +
	"- If a field cannot be read, set it to null.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// Analyze implements the Analyzer interface.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, image []byte, mimeType string) (*Analysis, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("Analyze: empty image")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: receiptPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
			},
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Analyze: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("Analyze: empty response from model")
	}

	var a Analysis
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &a); err != nil {
		return nil, fmt.Errorf("Analyze: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}
	return &a, nil
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}

var _ Analyzer = (*GeminiAnalyzer)(nil)
