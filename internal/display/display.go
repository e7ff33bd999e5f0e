// Package display renders session state for the interactive console.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/coverspark/coverspark/internal/export"
	"github.com/coverspark/coverspark/pkg/models"
)

type Displayer struct {
	out io.Writer
}

func New(out io.Writer) *Displayer {
	return &Displayer{out: out}
}

// Cards prints one block per result card: style, status, layout copy,
// and the active prompt.
func (d *Displayer) Cards(cards []models.ResultCard) {
	for i, card := range cards {
		fmt.Fprintf(d.out, "[%d] %s %s\n", i, statusGlyph(card.Status), card.StyleName)
		fmt.Fprintf(d.out, "    标题: %s / %s\n", card.Layout.MainText, card.Layout.SubText)
		fmt.Fprintf(d.out, "    构图: %s\n", card.Layout.DesignNote)
		fmt.Fprintf(d.out, "    提示词: %s\n", truncate(card.ActivePrompt, 100))
		switch card.Status {
		case models.StatusReady:
			fmt.Fprintf(d.out, "    图片: %s\n", imageSize(card.GeneratedImage))
		case models.StatusFailed:
			fmt.Fprintf(d.out, "    失败: %s\n", card.ErrorMessage)
		}
		fmt.Fprintln(d.out)
	}
}

// History prints stored sessions, one line each.
func (d *Displayer) History(summaries []models.SessionSummary) {
	if len(summaries) == 0 {
		fmt.Fprintln(d.out, "no stored sessions")
		return
	}
	for i, s := range summaries {
		fmt.Fprintf(d.out, "[%d] %s  %s (%d cards, %s)\n",
			i, s.ID, truncate(s.Topic, 40), s.CardCount, humanize.Time(s.CreatedAt))
	}
}

// ShowCard renders a card's generated image inline using the kitty
// graphics protocol. Callers should gate on IsTerminalSupported.
func (d *Displayer) ShowCard(card *models.ResultCard) error {
	img, err := export.Decode(card.GeneratedImage)
	if err != nil {
		return err
	}

	enc := NewKittyEncoder(d.out)
	if err := enc.Encode(img.Data); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	fmt.Fprintln(d.out)
	return nil
}

func statusGlyph(status models.GenerationStatus) string {
	switch status {
	case models.StatusReady:
		return "✓"
	case models.StatusFailed:
		return "✗"
	case models.StatusInFlight:
		return "…"
	default:
		return "·"
	}
}

func imageSize(payload string) string {
	// base64 expands by 4/3; report the decoded size.
	return humanize.IBytes(uint64(len(payload)) * 3 / 4)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// IsTerminalSupported reports whether the terminal understands the
// kitty graphics protocol.
func IsTerminalSupported() bool {
	termProgram := strings.ToLower(os.Getenv("TERM_PROGRAM"))
	for _, prog := range []string{"kitty", "ghostty", "iterm.app", "wezterm"} {
		if termProgram == prog {
			return true
		}
	}

	if os.Getenv("KITTY_WINDOW_ID") != "" {
		return true
	}
	if os.Getenv("ITERM_SESSION_ID") != "" {
		return true
	}

	term := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(term, "kitty") || strings.Contains(term, "ghostty")
}
