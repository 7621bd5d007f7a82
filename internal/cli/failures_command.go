package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"yt-auto-saver/internal/catalog"
	"yt-auto-saver/internal/config"
)

type failuresMode int

const (
	failuresModeBrowse failuresMode = iota
	failuresModeFilter
	failuresModeView
	failuresModeDeleteConfirm
)

type failuresModel struct {
	cat     *catalog.Catalog
	all     []catalog.Marker
	visible []catalog.Marker
	cursor  int
	width   int
	height  int
	mode    failuresMode
	filter  textinput.Model

	body          string
	bodyOffset    int
	statusMessage string
	fatalErr      error
}

type markersLoadedMsg struct {
	markers []catalog.Marker
	err     error
}

type markerBodyMsg struct {
	name string
	body string
	err  error
}

type markerDeletedMsg struct {
	name string
	err  error
}

func runFailures(args []string) error {
	defaults, err := config.FromEnv()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("failures", flag.ContinueOnError)
	dest := fs.String("dest", defaults.DestDir, "download directory")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*dest) == "" {
		fs.Usage()
		return errors.New("--dest is required")
	}
	if !stdinIsTTY() || !stdoutIsTTY() {
		return errors.New("failures requires an interactive terminal (TTY); use `status` for a summary")
	}

	m := newFailuresModel(catalog.New(strings.TrimSpace(*dest), nil))
	finalModel, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if fm, ok := finalModel.(failuresModel); ok {
		return fm.fatalErr
	}
	return nil
}

func newFailuresModel(cat *catalog.Catalog) failuresModel {
	in := textinput.New()
	in.Prompt = "/ "
	in.Placeholder = "filter by title, id or tag"
	in.CharLimit = 128
	return failuresModel{cat: cat, filter: in, mode: failuresModeBrowse}
}

func loadMarkersCmd(cat *catalog.Catalog) tea.Cmd {
	return func() tea.Msg {
		markers, err := cat.Markers()
		return markersLoadedMsg{markers: markers, err: err}
	}
}

func readMarkerCmd(cat *catalog.Catalog, name string) tea.Cmd {
	return func() tea.Msg {
		body, err := cat.ReadMarker(name)
		return markerBodyMsg{name: name, body: body, err: err}
	}
}

func deleteMarkerCmd(cat *catalog.Catalog, name string) tea.Cmd {
	return func() tea.Msg {
		return markerDeletedMsg{name: name, err: cat.RemoveMarker(name)}
	}
}

func (m failuresModel) Init() tea.Cmd {
	return loadMarkersCmd(m.cat)
}

func (m failuresModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.filter.Width = max(msg.Width-6, 10)
		return m, nil
	case markersLoadedMsg:
		if msg.err != nil {
			m.fatalErr = msg.err
			return m, tea.Quit
		}
		m.all = msg.markers
		m.applyFilter()
		return m, nil
	case markerBodyMsg:
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.body = msg.body
		m.bodyOffset = 0
		m.mode = failuresModeView
		return m, nil
	case markerDeletedMsg:
		m.mode = failuresModeBrowse
		if msg.err != nil {
			m.statusMessage = "error: " + msg.err.Error()
			return m, nil
		}
		m.statusMessage = "deleted " + msg.name + " (will be retried on the next run)"
		return m, loadMarkersCmd(m.cat)
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch m.mode {
	case failuresModeFilter:
		return m.updateFilter(keyMsg)
	case failuresModeView:
		return m.updateView(keyMsg)
	case failuresModeDeleteConfirm:
		return m.updateDeleteConfirm(keyMsg)
	default:
		return m.updateBrowse(keyMsg)
	}
}

func (m failuresModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
	case "/":
		m.mode = failuresModeFilter
		m.statusMessage = ""
		cmd := m.filter.Focus()
		return m, cmd
	case "r":
		return m, loadMarkersCmd(m.cat)
	case "enter", "v":
		if sel, ok := m.selected(); ok {
			return m, readMarkerCmd(m.cat, sel.Name)
		}
	case "d":
		if _, ok := m.selected(); ok {
			m.mode = failuresModeDeleteConfirm
		} else {
			m.statusMessage = "select a marker to delete"
		}
	}
	return m, nil
}

func (m failuresModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.filter.SetValue("")
		m.filter.Blur()
		m.mode = failuresModeBrowse
		m.applyFilter()
		return m, nil
	case "enter":
		m.filter.Blur()
		m.mode = failuresModeBrowse
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m failuresModel) updateView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q", "enter", "backspace":
		m.mode = failuresModeBrowse
		m.body = ""
	case "down", "j":
		if m.bodyOffset < len(strings.Split(m.body, "\n"))-1 {
			m.bodyOffset++
		}
	case "up", "k":
		if m.bodyOffset > 0 {
			m.bodyOffset--
		}
	}
	return m, nil
}

func (m failuresModel) updateDeleteConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc", "n":
		m.mode = failuresModeBrowse
		m.statusMessage = "delete cancelled"
		return m, nil
	case "y", "enter":
		sel, ok := m.selected()
		if !ok {
			m.mode = failuresModeBrowse
			return m, nil
		}
		return m, deleteMarkerCmd(m.cat, sel.Name)
	}
	return m, nil
}

func (m *failuresModel) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	m.visible = make([]catalog.Marker, 0, len(m.all))
	for _, mk := range m.all {
		if q == "" || strings.Contains(strings.ToLower(mk.Name), q) {
			m.visible = append(m.visible, mk)
		}
	}
	if m.cursor > len(m.visible)-1 {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

func (m failuresModel) selected() (catalog.Marker, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return catalog.Marker{}, false
	}
	return m.visible[m.cursor], true
}

func (m failuresModel) View() string {
	if m.fatalErr != nil {
		return errorStyle.Render("fatal: " + m.fatalErr.Error())
	}
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}
	if m.mode == failuresModeView {
		return m.viewBody()
	}

	header := titleStyle.Render("yt-auto-saver failures") + "  " + mutedStyle.Render(m.cat.Dir()) + "\n" +
		mutedStyle.Render("up/down: move | enter/v: view | d: delete (retry next run) | /: filter | r: reload | q: quit")
	parts := []string{header}
	if m.mode == failuresModeFilter || m.filter.Value() != "" {
		parts = append(parts, m.filter.View())
	}
	parts = append(parts, m.renderList(m.width))
	parts = append(parts, m.renderStatusLine())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m failuresModel) renderList(width int) string {
	maxRows := clampInt(m.height-8, 4, 40)
	lines := make([]string, 0, maxRows+2)
	if len(m.visible) == 0 {
		if len(m.all) == 0 {
			lines = append(lines, okStyle.Render("No failure markers."))
		} else {
			lines = append(lines, mutedStyle.Render("No markers match the filter."))
		}
	}
	start, end := listWindow(len(m.visible), m.cursor, maxRows)
	if start > 0 {
		lines = append(lines, mutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		mk := m.visible[i]
		line := fmt.Sprintf("%-18s %s", "["+mk.Tag+"]", firstNonEmpty(mk.Title, mk.Name))
		if mk.ID != "" {
			line += "  " + mk.ID
		}
		line = truncateRunes(line, max(width-6, 10))
		if i == m.cursor {
			line = selStyle.Width(max(width-4, 6)).Render(line)
		}
		lines = append(lines, line)
	}
	if end < len(m.visible) {
		lines = append(lines, mutedStyle.Render("..."))
	}
	return panelStyle.Width(width - 2).Render(strings.Join(lines, "\n"))
}

func (m failuresModel) renderStatusLine() string {
	if m.mode == failuresModeDeleteConfirm {
		sel, _ := m.selected()
		return errorStyle.Render(fmt.Sprintf("delete %s? (y/n)", sel.Name))
	}
	counts := kv("markers", fmt.Sprintf("%d/%d", len(m.visible), len(m.all)))
	if strings.HasPrefix(m.statusMessage, "error:") {
		return counts + "  " + errorStyle.Render(m.statusMessage)
	}
	if m.statusMessage != "" {
		return counts + "  " + okStyle.Render(m.statusMessage)
	}
	return counts
}

func (m failuresModel) viewBody() string {
	sel, _ := m.selected()
	header := titleStyle.Render(truncateRunes(sel.Name, max(m.width-2, 10))) + "\n" +
		mutedStyle.Render("up/down: scroll | esc/q: back")
	lines := strings.Split(m.body, "\n")
	rows := clampInt(m.height-6, 4, 200)
	start := min(m.bodyOffset, len(lines))
	end := min(start+rows, len(lines))
	visible := make([]string, 0, end-start)
	for _, l := range lines[start:end] {
		visible = append(visible, truncateRunes(l, max(m.width-6, 10)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, panelStyle.Width(m.width-2).Render(strings.Join(visible, "\n")))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
