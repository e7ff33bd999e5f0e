package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrEmptyTopic = errors.New("topic cannot be empty")
	ErrCardIndex  = errors.New("card index out of range")
)

// GenerationStatus tracks the lifecycle of a single card's image.
type GenerationStatus string

const (
	StatusPending  GenerationStatus = "pending"
	StatusInFlight GenerationStatus = "in_flight"
	StatusReady    GenerationStatus = "ready"
	StatusFailed   GenerationStatus = "failed"
)

func (s GenerationStatus) IsValid() bool {
	return slices.Contains([]GenerationStatus{StatusPending, StatusInFlight, StatusReady, StatusFailed}, s)
}

// Terminal reports whether the status can no longer change without a
// new generation being triggered.
func (s GenerationStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// TextLayout is the copywriting portion of a strategy: the text the
// cover should carry and where decoration belongs.
type TextLayout struct {
	MainText   string `json:"main_text"`
	SubText    string `json:"sub_text"`
	DesignNote string `json:"design_note"`
	Tags       string `json:"tags"`
}

// StrategyRecommendation is one recommended cover style. Produced as
// part of a fixed-size ordered batch and never mutated afterwards.
type StrategyRecommendation struct {
	StyleName   string     `json:"style_name"`
	Reasoning   string     `json:"reasoning"`
	ImagePrompt string     `json:"image_prompt"`
	Layout      TextLayout `json:"layout"`
}

// Validate checks the fields a structured strategy response must carry.
func (s *StrategyRecommendation) Validate() error {
	if s.StyleName == "" {
		return errors.New("missing style name")
	}
	if s.ImagePrompt == "" {
		return errors.New("missing image prompt")
	}
	if s.Layout.MainText == "" {
		return errors.New("missing layout main text")
	}
	return nil
}

// SeedPrompt builds the initial editable prompt for a card: the
// strategy's image prompt with a one-line emphasis taken from the
// layout design note.
func (s *StrategyRecommendation) SeedPrompt() string {
	if s.Layout.DesignNote == "" {
		return s.ImagePrompt
	}
	return fmt.Sprintf("%s (重点展示：%s)", s.ImagePrompt, s.Layout.DesignNote)
}

// ResultCard is the mutable per-strategy unit. The embedded strategy
// is fixed at creation; image, status, error and prompt change as
// generation progresses.
type ResultCard struct {
	StrategyRecommendation

	// GeneratedImage holds the raw base64 payload, empty until the
	// first successful generation.
	GeneratedImage string           `json:"generated_image,omitempty"`
	Status         GenerationStatus `json:"generation_status"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	ActivePrompt   string           `json:"active_prompt,omitempty"`
}

// NewResultCard wraps a strategy into a card with the seeded prompt.
func NewResultCard(s StrategyRecommendation) ResultCard {
	return ResultCard{
		StrategyRecommendation: s,
		Status:                 StatusPending,
		ActivePrompt:           s.SeedPrompt(),
	}
}

// MarkInFlight records the start of a generation attempt. The prior
// image is kept so a failed regeneration can fall back to it.
func (c *ResultCard) MarkInFlight(prompt string) {
	c.Status = StatusInFlight
	c.ErrorMessage = ""
	if prompt != "" {
		c.ActivePrompt = prompt
	}
}

// MarkReady records a successful generation, replacing any prior image.
func (c *ResultCard) MarkReady(imageBase64 string) {
	c.GeneratedImage = imageBase64
	c.Status = StatusReady
	c.ErrorMessage = ""
}

// MarkFailed records a failed attempt. A previously generated image is
// retained; only the status and message change.
func (c *ResultCard) MarkFailed(message string) {
	c.Status = StatusFailed
	c.ErrorMessage = message
}

// ReferenceImage is an optional user-supplied conditioning image.
// Immutable once attached to a generation call.
type ReferenceImage struct {
	// Preview is a renderable data URL for the front end.
	Preview string `json:"preview"`
	// Data is the raw base64 payload sent to the image backend.
	Data      string `json:"bytes"`
	MediaType string `json:"media_type"`
}

// Session is the unit of history and persistence: one topic submission
// and its resulting cards. The cards slice length is fixed after the
// initial strategy batch; only per-card fields mutate.
type Session struct {
	ID              string           `json:"id"`
	Topic           string           `json:"topic"`
	CreatedAt       time.Time        `json:"created_at"`
	Cards           []ResultCard     `json:"cards"`
	ReferenceImages []ReferenceImage `json:"reference_images,omitempty"`
}

// sessionJSON carries the legacy singular reference_image field so
// records written before the list form remain loadable.
type sessionJSON struct {
	ID              string           `json:"id"`
	Topic           string           `json:"topic"`
	CreatedAt       time.Time        `json:"created_at"`
	Cards           []ResultCard     `json:"cards"`
	ReferenceImages []ReferenceImage `json:"reference_images,omitempty"`
	ReferenceImage  *ReferenceImage  `json:"reference_image,omitempty"`
}

func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.ID = raw.ID
	s.Topic = raw.Topic
	s.CreatedAt = raw.CreatedAt
	s.Cards = raw.Cards
	s.ReferenceImages = raw.ReferenceImages
	if len(s.ReferenceImages) == 0 && raw.ReferenceImage != nil {
		s.ReferenceImages = []ReferenceImage{*raw.ReferenceImage}
	}
	return nil
}

// PrimaryReference returns the first attached reference image, for
// call sites that only support one. Nil when none is attached.
func (s *Session) PrimaryReference() *ReferenceImage {
	if len(s.ReferenceImages) == 0 {
		return nil
	}
	return &s.ReferenceImages[0]
}

// Clone returns a deep copy safe to hand out as a snapshot while the
// original keeps mutating under the orchestrator's lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Cards = slices.Clone(s.Cards)
	out.ReferenceImages = slices.Clone(s.ReferenceImages)
	return &out
}

// NormalizeStatuses resolves statuses left over from an interrupted
// generation cycle: anything not terminal becomes Failed. Applied when
// a session is loaded back from history.
func (s *Session) NormalizeStatuses() {
	for i := range s.Cards {
		if !s.Cards[i].Status.Terminal() {
			s.Cards[i].MarkFailed("generation interrupted")
		}
	}
}

// SessionSummary is the listing form of a session: enough for a
// history sidebar without decoding card payloads.
type SessionSummary struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	CreatedAt time.Time `json:"created_at"`
	CardCount int       `json:"card_count"`
}
