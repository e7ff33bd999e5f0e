package models

import (
	"encoding/json"
	"testing"
	"time"
)

func testStrategy() StrategyRecommendation {
	return StrategyRecommendation{
		StyleName:   "大字报 / 证据流",
		Reasoning:   "涉及成绩与录取，优先证据流",
		ImagePrompt: "一张手写的笔记纸，重点文字被醒目的红圈圈出",
		Layout: TextLayout{
			MainText:   "30天上岸",
			SubText:    "普通人也能做到",
			DesignNote: "主标题加红圈",
			Tags:       "#上岸#经验分享",
		},
	}
}

func TestStrategyRecommendation_SeedPrompt(t *testing.T) {
	s := testStrategy()
	got := s.SeedPrompt()
	want := "一张手写的笔记纸，重点文字被醒目的红圈圈出 (重点展示：主标题加红圈)"
	if got != want {
		t.Errorf("SeedPrompt() = %q, want %q", got, want)
	}

	s.Layout.DesignNote = ""
	if got := s.SeedPrompt(); got != s.ImagePrompt {
		t.Errorf("SeedPrompt() without design note = %q, want %q", got, s.ImagePrompt)
	}
}

func TestStrategyRecommendation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*StrategyRecommendation)
		wantErr bool
	}{
		{"valid", func(s *StrategyRecommendation) {}, false},
		{"missing style", func(s *StrategyRecommendation) { s.StyleName = "" }, true},
		{"missing prompt", func(s *StrategyRecommendation) { s.ImagePrompt = "" }, true},
		{"missing main text", func(s *StrategyRecommendation) { s.Layout.MainText = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStrategy()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResultCard_StatusTransitions(t *testing.T) {
	card := NewResultCard(testStrategy())
	if card.Status != StatusPending {
		t.Errorf("new card status = %v, want %v", card.Status, StatusPending)
	}
	if card.ActivePrompt == "" {
		t.Error("new card has empty active prompt")
	}

	card.MarkInFlight("edited prompt")
	if card.Status != StatusInFlight {
		t.Errorf("status = %v, want %v", card.Status, StatusInFlight)
	}
	if card.ActivePrompt != "edited prompt" {
		t.Errorf("ActivePrompt = %q, want %q", card.ActivePrompt, "edited prompt")
	}

	card.MarkReady("aW1hZ2U=")
	if card.Status != StatusReady || card.GeneratedImage != "aW1hZ2U=" || card.ErrorMessage != "" {
		t.Errorf("after MarkReady: status=%v image=%q err=%q", card.Status, card.GeneratedImage, card.ErrorMessage)
	}

	// A failed regeneration keeps the last successful image visible.
	card.MarkInFlight("")
	card.MarkFailed("quota exceeded")
	if card.Status != StatusFailed {
		t.Errorf("status = %v, want %v", card.Status, StatusFailed)
	}
	if card.ErrorMessage != "quota exceeded" {
		t.Errorf("ErrorMessage = %q, want %q", card.ErrorMessage, "quota exceeded")
	}
	if card.GeneratedImage != "aW1hZ2U=" {
		t.Errorf("GeneratedImage = %q, prior image should be retained", card.GeneratedImage)
	}
}

func TestSession_RoundTrip(t *testing.T) {
	sess := &Session{
		ID:        "1724800000000",
		Topic:     "东京咖啡馆",
		CreatedAt: time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC),
		Cards: []ResultCard{
			func() ResultCard {
				c := NewResultCard(testStrategy())
				c.MarkReady("aW1hZ2U=")
				return c
			}(),
			func() ResultCard {
				c := NewResultCard(testStrategy())
				c.MarkInFlight("")
				c.MarkFailed("quota exceeded")
				return c
			}(),
		},
		ReferenceImages: []ReferenceImage{
			{Preview: "data:image/png;base64,cmVm", Data: "cmVm", MediaType: "image/png"},
		},
	}

	data, err := json.Marshal(sess)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got Session
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got.ID != sess.ID || got.Topic != sess.Topic || !got.CreatedAt.Equal(sess.CreatedAt) {
		t.Errorf("round trip header mismatch: got %+v", got)
	}
	if len(got.Cards) != 2 {
		t.Fatalf("round trip cards = %d, want 2", len(got.Cards))
	}
	if got.Cards[0].Status != StatusReady || got.Cards[0].GeneratedImage != "aW1hZ2U=" {
		t.Errorf("card 0 = %+v, want ready with image", got.Cards[0])
	}
	if got.Cards[1].Status != StatusFailed || got.Cards[1].ErrorMessage != "quota exceeded" {
		t.Errorf("card 1 = %+v, want failed with message", got.Cards[1])
	}
	if got.PrimaryReference() == nil || got.PrimaryReference().MediaType != "image/png" {
		t.Errorf("primary reference = %+v", got.PrimaryReference())
	}
}

func TestSession_UnmarshalLegacySingularReference(t *testing.T) {
	raw := `{
		"id": "1",
		"topic": "t",
		"created_at": "2026-08-27T10:00:00Z",
		"cards": [],
		"reference_image": {"preview": "p", "bytes": "cmVm", "media_type": "image/jpeg"}
	}`

	var got Session
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	ref := got.PrimaryReference()
	if ref == nil {
		t.Fatal("PrimaryReference() = nil, want migrated legacy image")
	}
	if ref.MediaType != "image/jpeg" || ref.Data != "cmVm" {
		t.Errorf("migrated reference = %+v", ref)
	}
}

func TestSession_Clone(t *testing.T) {
	sess := &Session{
		ID:    "1",
		Cards: []ResultCard{NewResultCard(testStrategy())},
	}
	clone := sess.Clone()
	clone.Cards[0].MarkReady("aW1hZ2U=")

	if sess.Cards[0].Status != StatusPending {
		t.Errorf("mutating clone changed original: status = %v", sess.Cards[0].Status)
	}
}

func TestSession_NormalizeStatuses(t *testing.T) {
	sess := &Session{
		Cards: []ResultCard{
			{Status: StatusInFlight},
			{Status: StatusReady, GeneratedImage: "aW1hZ2U="},
			{Status: StatusPending},
		},
	}
	sess.NormalizeStatuses()

	if sess.Cards[0].Status != StatusFailed || sess.Cards[2].Status != StatusFailed {
		t.Errorf("in-flight statuses not normalized: %v, %v", sess.Cards[0].Status, sess.Cards[2].Status)
	}
	if sess.Cards[1].Status != StatusReady {
		t.Errorf("terminal status changed: %v", sess.Cards[1].Status)
	}
}
