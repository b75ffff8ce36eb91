package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// RunSearch starts the interactive search program and blocks until the user
// quits or ctx is cancelled.
func RunSearch(ctx context.Context, searcher Searcher, excerpt ExcerptFunc, top int, source string) error {
	model := NewSearchModel(ctx, searcher, excerpt, top, source)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
