// Package strategy calls the text-reasoning backend once per session
// and validates the structured batch of cover strategies it returns.
package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/coverspark/coverspark/internal/gemini"
	"github.com/coverspark/coverspark/pkg/models"
)

// ErrMalformedResponse marks a strategy response that did not parse
// into the expected structured shape. The whole step is atomic: no
// partial strategy list is ever returned.
var ErrMalformedResponse = errors.New("malformed strategy response")

type Config struct {
	Model string
	// Count is the exact number of strategies a response must carry.
	Count int
}

type Generator struct {
	client *gemini.Client
	model  string
	count  int
	system string
	log    *zap.SugaredLogger
}

func New(client *gemini.Client, cfg *Config, log *zap.SugaredLogger) *Generator {
	count := cfg.Count
	if count < 1 {
		count = 2
	}
	return &Generator{
		client: client,
		model:  cfg.Model,
		count:  count,
		system: BuildSystemPrompt(),
		log:    log,
	}
}

// Count returns the fixed batch size N.
func (g *Generator) Count() int {
	return g.count
}

// strategyPayload is the backend wire shape, distinct from the
// persisted record shape in pkg/models.
type strategyPayload struct {
	StyleRecommendation string `json:"style_recommendation"`
	Reasoning           string `json:"reasoning"`
	GeminiImagePrompt   string `json:"gemini_image_prompt"`
	TextLayoutGuide     struct {
		MainText   string `json:"main_text"`
		SubText    string `json:"sub_text"`
		DesignNote string `json:"design_note"`
		Tags       string `json:"tags"`
	} `json:"text_layout_guide"`
}

// Generate issues one structured-output call for the topic and returns
// exactly Count strategies in backend order.
func (g *Generator) Generate(ctx context.Context, topic string) ([]models.StrategyRecommendation, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, models.ErrEmptyTopic
	}

	req := &gemini.Request{
		Contents: []gemini.Content{{
			Role:  "user",
			Parts: []gemini.Part{{Text: "Topic: " + topic}},
		}},
		SystemInstruction: &gemini.Content{
			Parts: []gemini.Part{{Text: g.system}},
		},
		GenerationConfig: &gemini.GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema(g.count),
		},
	}

	resp, err := g.client.GenerateContent(ctx, g.model, req)
	if err != nil {
		return nil, fmt.Errorf("strategy call failed: %w", err)
	}

	text, err := gemini.ExtractText(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return g.parse(text)
}

func (g *Generator) parse(text string) ([]models.StrategyRecommendation, error) {
	text = stripCodeFences(text)

	var payloads []strategyPayload
	if err := json.Unmarshal([]byte(text), &payloads); err != nil {
		g.log.Warnw("strategy response is not valid JSON", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(payloads) != g.count {
		return nil, fmt.Errorf("%w: got %d strategies, want %d", ErrMalformedResponse, len(payloads), g.count)
	}

	out := make([]models.StrategyRecommendation, 0, len(payloads))
	for i, p := range payloads {
		rec := models.StrategyRecommendation{
			StyleName:   p.StyleRecommendation,
			Reasoning:   p.Reasoning,
			ImagePrompt: p.GeminiImagePrompt,
			Layout: models.TextLayout{
				MainText:   p.TextLayoutGuide.MainText,
				SubText:    p.TextLayoutGuide.SubText,
				DesignNote: p.TextLayoutGuide.DesignNote,
				Tags:       p.TextLayoutGuide.Tags,
			},
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("%w: strategy %d: %v", ErrMalformedResponse, i, err)
		}
		out = append(out, rec)
	}

	return out, nil
}

// stripCodeFences removes a ```json ... ``` wrapper the model
// sometimes adds despite the JSON response mime type.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// responseSchema is the structured-output contract sent to the backend.
func responseSchema(count int) map[string]any {
	layout := map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"main_text":   map[string]any{"type": "STRING"},
			"sub_text":    map[string]any{"type": "STRING"},
			"design_note": map[string]any{"type": "STRING"},
			"tags":        map[string]any{"type": "STRING"},
		},
		"required": []string{"main_text", "sub_text", "design_note", "tags"},
	}

	return map[string]any{
		"type":     "ARRAY",
		"minItems": count,
		"maxItems": count,
		"items": map[string]any{
			"type": "OBJECT",
			"properties": map[string]any{
				"style_recommendation": map[string]any{"type": "STRING"},
				"reasoning":            map[string]any{"type": "STRING"},
				"gemini_image_prompt":  map[string]any{"type": "STRING"},
				"text_layout_guide":    layout,
			},
			"required": []string{"style_recommendation", "reasoning", "gemini_image_prompt", "text_layout_guide"},
		},
	}
}
