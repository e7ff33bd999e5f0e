package repl

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/coverspark/coverspark/internal/display"
	"github.com/coverspark/coverspark/internal/export"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func (r *REPL) registerCommands() {
	commands := []Command{
		&GenerateCommand{},
		&RegenCommand{},
		&PromptCommand{},
		&ShowCommand{},
		&SaveCommand{},
		&RefCommand{},
		&ClearRefCommand{},
		&HistoryCommand{},
		&SelectCommand{},
		&DeleteCommand{},
		&NewCommand{},
		&StatusCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}

	for _, cmd := range commands {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// settleAndShow waits for background generation to finish and prints
// the resulting cards.
func (r *REPL) settleAndShow() error {
	r.orch.Wait()
	snap := r.orch.Snapshot()
	if snap.Error != "" {
		return fmt.Errorf("%s", snap.Error)
	}
	if snap.Warning != "" {
		fmt.Fprintf(r.err, "Warning: %s\n", snap.Warning)
	}
	r.displayer.Cards(snap.Cards)
	return nil
}

// resolveSessionID maps a short index from the last `history` listing
// onto a session id; anything else is taken as a raw id.
func (r *REPL) resolveSessionID(arg string) string {
	if n, err := strconv.Atoi(arg); err == nil && n >= 0 && n < len(r.lastListing) {
		return r.lastListing[n].ID
	}
	return arg
}

type GenerateCommand struct{}

func (c *GenerateCommand) Name() string        { return "generate" }
func (c *GenerateCommand) Aliases() []string   { return []string{"g", "topic"} }
func (c *GenerateCommand) Description() string { return "Generate cover strategies for a topic" }
func (c *GenerateCommand) Usage() string       { return "generate <topic>" }

func (c *GenerateCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	topic := strings.Join(args, " ")
	if _, err := r.orch.Submit(ctx, topic); err != nil {
		return err
	}

	fmt.Fprintln(r.out, "Generating strategies and covers...")
	return r.settleAndShow()
}

type RegenCommand struct{}

func (c *RegenCommand) Name() string      { return "regen" }
func (c *RegenCommand) Aliases() []string { return []string{"r"} }
func (c *RegenCommand) Description() string {
	return "Regenerate one card, optionally with a new prompt"
}
func (c *RegenCommand) Usage() string { return "regen <index> [prompt]" }

func (c *RegenCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid card index %q", args[0])
	}
	prompt := strings.Join(args[1:], " ")

	if err := r.orch.RegenerateCard(ctx, index, prompt); err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Regenerating card %d...\n", index)
	return r.settleAndShow()
}

type PromptCommand struct{}

func (c *PromptCommand) Name() string        { return "prompt" }
func (c *PromptCommand) Aliases() []string   { return []string{"p"} }
func (c *PromptCommand) Description() string { return "Edit a card's prompt without regenerating" }
func (c *PromptCommand) Usage() string       { return "prompt <index> <text>" }

func (c *PromptCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid card index %q", args[0])
	}

	if err := r.orch.UpdatePrompt(index, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Prompt updated; run 'regen %d' to apply it\n", index)
	return nil
}

type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"s"} }
func (c *ShowCommand) Description() string { return "Display a card's image in the terminal" }
func (c *ShowCommand) Usage() string       { return "show <index>" }

func (c *ShowCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid card index %q", args[0])
	}

	snap := r.orch.Snapshot()
	if index < 0 || index >= len(snap.Cards) {
		return fmt.Errorf("no card at index %d", index)
	}

	if !display.IsTerminalSupported() {
		return fmt.Errorf("terminal does not support inline images; use 'save %d' instead", index)
	}
	return r.displayer.ShowCard(&snap.Cards[index])
}

type SaveCommand struct{}

func (c *SaveCommand) Name() string        { return "save" }
func (c *SaveCommand) Aliases() []string   { return nil }
func (c *SaveCommand) Description() string { return "Save a card's image to disk" }
func (c *SaveCommand) Usage() string       { return "save <index> [path]" }

func (c *SaveCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid card index %q", args[0])
	}

	snap := r.orch.Snapshot()
	if snap.SessionID == "" {
		return fmt.Errorf("no active session")
	}

	payload, err := r.orch.CardImage(ctx, snap.SessionID, index)
	if err != nil {
		return err
	}
	img, err := export.Decode(payload)
	if err != nil {
		return err
	}

	path := export.Filename(snap.SessionID, index, img)
	if len(args) > 1 {
		path = args[1]
	}
	if err := img.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Saved: %s\n", path)
	return nil
}

type RefCommand struct{}

func (c *RefCommand) Name() string        { return "ref" }
func (c *RefCommand) Aliases() []string   { return nil }
func (c *RefCommand) Description() string { return "Attach a reference image from a file" }
func (c *RefCommand) Usage() string       { return "ref <path>" }

func (c *RefCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	mediaType := http.DetectContentType(data)
	if err := r.orch.AttachReference(data, mediaType); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Attached %s (%s)\n", args[0], mediaType)
	return nil
}

type ClearRefCommand struct{}

func (c *ClearRefCommand) Name() string        { return "clearref" }
func (c *ClearRefCommand) Aliases() []string   { return nil }
func (c *ClearRefCommand) Description() string { return "Remove the attached reference image" }
func (c *ClearRefCommand) Usage() string       { return "clearref" }

func (c *ClearRefCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if err := r.orch.ClearReference(); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Reference image cleared")
	return nil
}

type HistoryCommand struct{}

func (c *HistoryCommand) Name() string        { return "history" }
func (c *HistoryCommand) Aliases() []string   { return []string{"h", "ls"} }
func (c *HistoryCommand) Description() string { return "List stored sessions" }
func (c *HistoryCommand) Usage() string       { return "history" }

func (c *HistoryCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	summaries, err := r.orch.History(ctx)
	if err != nil {
		return err
	}
	r.lastListing = summaries
	r.displayer.History(summaries)
	return nil
}

type SelectCommand struct{}

func (c *SelectCommand) Name() string        { return "select" }
func (c *SelectCommand) Aliases() []string   { return []string{"sel"} }
func (c *SelectCommand) Description() string { return "Switch to a stored session" }
func (c *SelectCommand) Usage() string       { return "select <history index or session id>" }

func (c *SelectCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	if err := r.orch.SelectSession(ctx, r.resolveSessionID(args[0])); err != nil {
		return err
	}

	snap := r.orch.Snapshot()
	fmt.Fprintf(r.out, "Session %s: %s\n", snap.SessionID, snap.Topic)
	r.displayer.Cards(snap.Cards)
	return nil
}

type DeleteCommand struct{}

func (c *DeleteCommand) Name() string        { return "delete" }
func (c *DeleteCommand) Aliases() []string   { return []string{"rm"} }
func (c *DeleteCommand) Description() string { return "Delete a stored session" }
func (c *DeleteCommand) Usage() string       { return "delete <history index or session id>" }

func (c *DeleteCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	id := r.resolveSessionID(args[0])
	if err := r.orch.DeleteSession(ctx, id); err != nil {
		return err
	}
	r.lastListing = nil
	fmt.Fprintf(r.out, "Deleted session %s\n", id)
	return nil
}

type NewCommand struct{}

func (c *NewCommand) Name() string        { return "new" }
func (c *NewCommand) Aliases() []string   { return nil }
func (c *NewCommand) Description() string { return "Start a fresh draft" }
func (c *NewCommand) Usage() string       { return "new" }

func (c *NewCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.orch.NewDraft()
	fmt.Fprintln(r.out, "Started a new draft")
	return nil
}

type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Aliases() []string   { return []string{"st"} }
func (c *StatusCommand) Description() string { return "Show the current session state" }
func (c *StatusCommand) Usage() string       { return "status" }

func (c *StatusCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	snap := r.orch.Snapshot()
	fmt.Fprintf(r.out, "Phase: %s\n", snap.Phase)
	if snap.Topic != "" {
		fmt.Fprintf(r.out, "Topic: %s\n", snap.Topic)
	}
	if len(snap.ReferenceImages) > 0 {
		fmt.Fprintf(r.out, "Reference: %s\n", snap.ReferenceImages[0].MediaType)
	}
	if snap.Warning != "" {
		fmt.Fprintf(r.out, "Warning: %s\n", snap.Warning)
	}
	if snap.Error != "" {
		fmt.Fprintf(r.out, "Error: %s\n", snap.Error)
	}
	r.displayer.Cards(snap.Cards)
	return nil
}

type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	seen := make(map[string]Command)
	for _, cmd := range r.commands {
		seen[cmd.Name()] = cmd
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(r.out, "Available commands:")
	for _, name := range names {
		cmd := seen[name]
		fmt.Fprintf(r.out, "  %-40s %s\n", cmd.Usage(), cmd.Description())
	}
	return nil
}

type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	r.Stop()
	return nil
}
