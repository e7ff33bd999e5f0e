package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coverspark/coverspark/internal/gemini"
	"github.com/coverspark/coverspark/internal/logging"
	"github.com/coverspark/coverspark/pkg/models"
)

const validBatch = `[
	{
		"style_recommendation": "大字报 / 证据流",
		"reasoning": "涉及录取通知，证据流点击率高",
		"gemini_image_prompt": "一张录取通知书的照片，重点被红圈圈出",
		"text_layout_guide": {
			"main_text": "上岸了！",
			"sub_text": "三个月逆袭",
			"design_note": "主标题加红圈",
			"tags": "#上岸#考研"
		}
	},
	{
		"style_recommendation": "聊天记录 / 通知",
		"reasoning": "通知类截图有真实感",
		"gemini_image_prompt": "手机屏幕显示着录取通知短信，红色手绘箭头指向最后一条",
		"text_layout_guide": {
			"main_text": "查分那一刻",
			"sub_text": "手都在抖",
			"design_note": "箭头指向分数",
			"tags": "#查分#录取"
		}
	}
]`

func textResponse(text string) string {
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func testGenerator(t *testing.T, handler http.HandlerFunc) *Generator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := gemini.NewClient(&gemini.Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return New(client, &Config{Model: "strategy-model", Count: 2}, logging.Nop())
}

func TestGenerator_Generate(t *testing.T) {
	var gotBody gemini.Request
	g := testGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		fmt.Fprint(w, textResponse(validBatch))
	})

	recs, err := g.Generate(context.Background(), "  考研上岸  ")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("Generate() returned %d strategies, want 2", len(recs))
	}
	if recs[0].StyleName != "大字报 / 证据流" {
		t.Errorf("strategy 0 style = %q", recs[0].StyleName)
	}
	if recs[1].Layout.MainText != "查分那一刻" {
		t.Errorf("strategy 1 main text = %q", recs[1].Layout.MainText)
	}

	// Request carries the trimmed topic, system prompt, and schema.
	if len(gotBody.Contents) != 1 || gotBody.Contents[0].Parts[0].Text != "Topic: 考研上岸" {
		t.Errorf("request contents = %+v", gotBody.Contents)
	}
	if gotBody.SystemInstruction == nil {
		t.Error("request is missing system instruction")
	}
	if gotBody.GenerationConfig == nil || gotBody.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("generation config = %+v", gotBody.GenerationConfig)
	}
}

func TestGenerator_Generate_EmptyTopic(t *testing.T) {
	g := testGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend should not be called for an empty topic")
	})

	if _, err := g.Generate(context.Background(), "   "); !errors.Is(err, models.ErrEmptyTopic) {
		t.Errorf("Generate() error = %v, want %v", err, models.ErrEmptyTopic)
	}
}

func TestGenerator_Generate_FencedJSON(t *testing.T) {
	g := testGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, textResponse("```json\n"+validBatch+"\n```"))
	})

	recs, err := g.Generate(context.Background(), "topic")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("Generate() returned %d strategies, want 2", len(recs))
	}
}

func TestGenerator_Generate_Malformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not json", "sorry, I cannot help with that"},
		{"wrong count", `[{"style_recommendation":"s","reasoning":"r","gemini_image_prompt":"p","text_layout_guide":{"main_text":"m","sub_text":"","design_note":"","tags":""}}]`},
		{"missing fields", `[{"reasoning":"r"},{"reasoning":"r2"}]`},
		{"object not array", `{"style_recommendation":"s"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := testGenerator(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, textResponse(tt.text))
			})

			_, err := g.Generate(context.Background(), "topic")
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("Generate() error = %v, want %v", err, ErrMalformedResponse)
			}
		})
	}
}

func TestGenerator_Generate_BackendError(t *testing.T) {
	g := testGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"code":500,"status":"INTERNAL","message":"model overloaded"}}`)
	})

	_, err := g.Generate(context.Background(), "topic")
	if err == nil {
		t.Fatal("Generate() error = nil, want backend error")
	}
	if errors.Is(err, ErrMalformedResponse) {
		t.Error("backend failure should not classify as malformed response")
	}
	if got := gemini.ExtractMessage(err); got != "model overloaded" {
		t.Errorf("ExtractMessage() = %q", got)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[]", "[]"},
		{"```json\n[]\n```", "[]"},
		{"```\n[]\n```", "[]"},
		{"  [1]  ", "[1]"},
	}
	for _, tt := range tests {
		if got := stripCodeFences(tt.in); got != tt.want {
			t.Errorf("stripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
