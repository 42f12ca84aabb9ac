package ui

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
)

// ErrNotInteractive is returned when confirmation is needed but stdin is not
// a terminal and confirmation was not given up front.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal (use --yes)")

// ErrDeclined is returned when the operator answers no or aborts.
var ErrDeclined = errors.New("cancelled")

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(title, prompt string) error
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(title, prompt string) error

// Confirm calls f(title, prompt).
func (f ConfirmerFunc) Confirm(title, prompt string) error { return f(title, prompt) }

// PromptConfirmer confirms through an interactive huh form.
type PromptConfirmer struct {
	// AssumeYes skips the prompt and confirms (--yes).
	AssumeYes bool
}

// Confirm returns nil when the operator confirmed, ErrDeclined when they
// declined, and ErrNotInteractive when there is no terminal to ask on.
func (c PromptConfirmer) Confirm(title, prompt string) error {
	if c.AssumeYes {
		return nil
	}
	if !IsTerminal(os.Stdin) {
		return ErrNotInteractive
	}

	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(prompt).
				Affirmative("Continue").
				Negative("Cancel").
				Value(&ok),
		),
	).WithTheme(huh.ThemeDracula())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrDeclined
		}
		return fmt.Errorf("confirmation prompt: %w", err)
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}
