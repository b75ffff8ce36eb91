// Package tui is the interactive terminal front end for searching an index.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/efebarandurmaz/docindex/internal/search"
)

// Searcher answers queries. *search.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]search.Result, error)
}

// ExcerptFunc returns the text shown for a result.
type ExcerptFunc func(r search.Result) (string, error)

// resultsMsg carries the outcome of one query back into Update.
type resultsMsg struct {
	query   string
	results []search.Result
	err     error
}

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Search key.Binding
	Clear  key.Binding
	Quit   key.Binding
}

func (km keyMap) ShortHelp() []key.Binding {
	return []key.Binding{km.Search, km.Up, km.Down, km.Clear, km.Quit}
}

func (km keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{km.Search, km.Clear}, {km.Up, km.Down}, {km.Quit}}
}

func newKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "ctrl+p"),
			key.WithHelp("↑", "prev result"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "ctrl+n"),
			key.WithHelp("↓", "next result"),
		),
		Search: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "search"),
		),
		Clear: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+d"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// SearchModel is the Bubble Tea model for the search screen.
type SearchModel struct {
	ctx      context.Context
	searcher Searcher
	excerpt  ExcerptFunc
	top      int
	source   string

	styles   *Styles
	keys     keyMap
	help     help.Model
	input    textinput.Model
	viewport viewport.Model

	results   []search.Result
	cursor    int
	lastQuery string
	searching bool
	status    string
	err       error
	width     int
	height    int
	ready     bool
}

// NewSearchModel creates the search screen. source names the index shown
// in the header.
func NewSearchModel(ctx context.Context, searcher Searcher, excerpt ExcerptFunc, top int, source string) SearchModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.CharLimit = 0
	ti.Focus()

	return SearchModel{
		ctx:      ctx,
		searcher: searcher,
		excerpt:  excerpt,
		top:      top,
		source:   source,
		styles:   DefaultStyles(),
		keys:     newKeyMap(),
		help:     help.New(),
		input:    ti,
		viewport: viewport.New(0, 0),
		status:   "Type a query to search.",
		width:    80,
		height:   24,
	}
}

func (m SearchModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m SearchModel) runSearch(query string) tea.Cmd {
	ctx, searcher, top := m.ctx, m.searcher, m.top
	return func() tea.Msg {
		results, err := searcher.Search(ctx, query, top)
		return resultsMsg{query: query, results: results, err: err}
	}
}

func (m SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resize()
		m.viewport.SetContent(m.renderExcerpt())
		return m, nil

	case resultsMsg:
		m.searching = false
		m.lastQuery = msg.query
		m.cursor = 0
		if msg.err != nil {
			m.err = msg.err
			m.results = nil
			m.status = ""
		} else {
			m.err = nil
			m.results = msg.results
			m.status = fmt.Sprintf("%d documents for %q", len(msg.results), msg.query)
		}
		m.viewport.SetContent(m.renderExcerpt())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Search):
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.searching {
				return m, nil
			}
			m.searching = true
			m.status = fmt.Sprintf("Searching for %q...", q)
			return m, m.runSearch(q)

		case key.Matches(msg, m.keys.Clear):
			m.input.SetValue("")
			return m, nil

		case key.Matches(msg, m.keys.Down):
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderExcerpt())
				m.viewport.GotoTop()
			}
			return m, nil

		case key.Matches(msg, m.keys.Up):
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderExcerpt())
				m.viewport.GotoTop()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// resize gives the excerpt pane whatever height the header, list, input and
// footer leave over.
func (m *SearchModel) resize() {
	listHeight := len(m.results)
	if listHeight == 0 {
		listHeight = 1
	}
	_, bh := m.styles.Border.GetFrameSize()
	_, ih := m.styles.Input.GetFrameSize()
	reserved := 2 + listHeight + bh + ih + 1 + 2 + bh
	m.viewport.Width = max(20, m.width-4)
	m.viewport.Height = max(3, m.height-reserved)
}

func (m SearchModel) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.Title.Render("docindex search"),
		"  ",
		m.styles.Subtitle.Render(m.source),
	)

	var footer string
	if m.err != nil {
		footer = m.styles.Error.Render("Error: " + m.err.Error())
	} else {
		footer = m.styles.Status.Render(m.status)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		m.styles.Border.Render(m.renderResults()),
		m.styles.ActiveBorder.Render(m.viewport.View()),
		m.styles.Input.Render(m.input.View()),
		footer,
		m.styles.Help.Render(m.help.ShortHelpView(m.keys.ShortHelp())),
	)
}

func (m SearchModel) renderResults() string {
	if len(m.results) == 0 {
		return m.styles.Subtitle.Render("No results yet.")
	}
	best := m.results[0].Distance
	lines := make([]string, 0, len(m.results))
	for i, r := range m.results {
		style := m.styles.Item
		marker := "  "
		if i == m.cursor {
			style = m.styles.Selected
			marker = "> "
		}
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			marker,
			m.styles.Rank.Render(fmt.Sprintf("%d.", r.Rank)),
			style.Render(r.Title),
			DistanceColor(r.Distance, best).Render(fmt.Sprintf("%.4f", r.Distance)),
			m.styles.Path.Render(r.Path),
		)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m SearchModel) renderExcerpt() string {
	if len(m.results) == 0 || m.excerpt == nil {
		return ""
	}
	r := m.results[m.cursor]
	text, err := m.excerpt(r)
	if err != nil {
		return m.styles.Error.Render(err.Error())
	}
	title := m.styles.Title.Render(fmt.Sprintf("%s @ %d", r.Path, r.Offset))
	body := lipgloss.NewStyle().Width(max(20, m.viewport.Width-2)).Render(text)
	return title + "\n\n" + m.styles.Excerpt.Render(body)
}

// Results returns the results currently shown.
func (m SearchModel) Results() []search.Result { return m.results }

// Cursor returns the index of the selected result.
func (m SearchModel) Cursor() int { return m.cursor }
