package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	tuiHeaderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tuiSelectedStyle = lipgloss.NewStyle().Reverse(true)
	tuiBlockedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("0"))
	tuiClueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("252"))
	tuiMergedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	tuiErrorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	tuiStatusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	tuiHelpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// typeKeys maps the digit keys to the cell type they apply.
var typeKeys = map[string]Kind{
	"0": KindUnset,
	"1": KindBlocked,
	"2": KindClue,
	"3": KindSolution,
	"4": KindArrow,
	"5": KindImage,
}

type promptKind int

const (
	promptNone promptKind = iota
	promptEdit
	promptResize
)

// tuiModel is the terminal editor of one grid document.
type tuiModel struct {
	path   string
	editor *Editor
	input  textinput.Model
	prompt promptKind
	status string
	err    string
	dirty  bool

	copyText  func(string) error
	writeFile func(path string, data []byte) error
}

func newTUIModel(path string, g *Grid) *tuiModel {
	in := textinput.New()
	in.CharLimit = 4096
	in.Width = 60
	return &tuiModel{
		path:     path,
		editor:   NewEditor(g),
		input:    in,
		copyText: clipboard.WriteAll,
		writeFile: func(path string, data []byte) error {
			return os.WriteFile(path, data, 0o644)
		},
	}
}

// runTUI edits the grid stored at path until the user quits.
func runTUI(path string, g *Grid) error {
	_, err := tea.NewProgram(newTUIModel(path, g), tea.WithAltScreen()).Run()
	return err
}

func (m *tuiModel) Init() tea.Cmd { return nil }

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.prompt != promptNone {
		return m.updatePrompt(key)
	}
	return m.updateGrid(key)
}

func (m *tuiModel) updateGrid(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = ""
	k := key.String()

	switch k {
	case "ctrl+c", "ctrl+q":
		return m, tea.Quit
	case "up", "down", "left", "right":
		m.apply(m.editor.Move(MoveDirection(k), false), false)
		return m, nil
	case "shift+up", "shift+down", "shift+left", "shift+right":
		m.apply(m.editor.Move(MoveDirection(strings.TrimPrefix(k, "shift+")), true), false)
		return m, nil
	case "ctrl+e":
		m.openEditPrompt()
		return m, nil
	case "ctrl+r":
		g := m.editor.Grid()
		m.openPrompt(promptResize, "rows cols: ", fmt.Sprintf("%d %d", g.Rows, g.Cols))
		return m, nil
	case "ctrl+s":
		m.save()
		return m, nil
	case "ctrl+y":
		m.copySelected()
		return m, nil
	case "backspace", "delete":
		if m.editor.Selected().Kind() == KindSolution {
			m.apply(m.editor.SetLetter(""), true)
		}
		return m, nil
	case "esc":
		m.status = ""
		return m, nil
	}

	if kind, ok := typeKeys[k]; ok {
		m.apply(m.editor.ApplyType(kind), true)
		return m, nil
	}
	if key.Type == tea.KeyRunes && len(key.Runes) == 1 && unicode.IsLetter(key.Runes[0]) {
		if m.editor.Selected().Kind() == KindSolution && !m.editor.Selection().Multi() {
			m.apply(m.editor.SetLetter(string(key.Runes)), true)
		}
	}
	return m, nil
}

func (m *tuiModel) updatePrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		m.closePrompt()
		return m, nil
	case "enter":
		value := m.input.Value()
		kind := m.prompt
		m.closePrompt()
		if kind == promptResize {
			m.apply(m.submitResize(value), true)
		} else {
			m.apply(m.submitEdit(value), true)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	return m, cmd
}

// apply records the outcome of an editor operation.
func (m *tuiModel) apply(err error, edit bool) {
	if err != nil {
		m.err = err.Error()
		return
	}
	if edit {
		m.dirty = true
		m.status = ""
	}
}

func (m *tuiModel) openPrompt(kind promptKind, label, value string) {
	m.prompt = kind
	m.input.Prompt = label
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

func (m *tuiModel) closePrompt() {
	m.prompt = promptNone
	m.input.Blur()
	m.input.Reset()
}

func (m *tuiModel) openEditPrompt() {
	if m.editor.Selection().Multi() {
		m.err = ErrMultiSelected.Error()
		return
	}
	switch c := m.editor.Selected().(type) {
	case Clue:
		m.openPrompt(promptEdit, "text/dir/SOLUTION; ...: ", formatClueInput(c))
	case Solution:
		m.openPrompt(promptEdit, "letter: ", c.Letter)
	case Arrow:
		m.openPrompt(promptEdit, "look style rows cols: ", fmt.Sprintf("%s %s %d %d", c.Look, c.Style, c.SpanRows, c.SpanCols))
	case Image:
		m.openPrompt(promptEdit, "file|-|none rows cols: ", fmt.Sprintf("- %d %d", c.SpanRows, c.SpanCols))
	default:
		m.err = "Nothing to edit on this cell."
	}
}

func (m *tuiModel) submitEdit(value string) error {
	switch c := m.editor.Selected().(type) {
	case Clue:
		subclues, err := parseClueInput(value)
		if err != nil {
			return err
		}
		return m.editor.SaveClue(subclues)
	case Solution:
		return m.editor.SetLetter(strings.TrimSpace(value))
	case Arrow:
		f := strings.Fields(value)
		if len(f) != 4 {
			return fmt.Errorf("expected: look style rows cols")
		}
		rows, cols, err := parseSpan(f[2], f[3])
		if err != nil {
			return err
		}
		return m.editor.SaveArrow(Look(f[0]), ArrowStyle(f[1]), rows, cols)
	case Image:
		f := strings.Fields(value)
		if len(f) != 3 {
			return fmt.Errorf("expected: file|-|none rows cols")
		}
		rows, cols, err := parseSpan(f[1], f[2])
		if err != nil {
			return err
		}
		url, err := imageInput(f[0], c.URL)
		if err != nil {
			return err
		}
		return m.editor.SaveImage(url, rows, cols)
	}
	return nil
}

func (m *tuiModel) submitResize(value string) error {
	f := strings.Fields(value)
	if len(f) != 2 {
		return fmt.Errorf("expected: rows cols")
	}
	rows, cols, err := parseSpan(f[0], f[1])
	if err != nil {
		return err
	}
	return m.editor.Resize(rows, cols)
}

func (m *tuiModel) save() {
	data, err := json.MarshalIndent(m.editor.Grid(), "", "  ")
	if err == nil {
		err = m.writeFile(m.path, data)
	}
	if err != nil {
		m.err = "Save failed: " + err.Error()
		return
	}
	m.dirty = false
	m.status = "Saved " + m.path
}

func (m *tuiModel) copySelected() {
	text := CellText(m.editor.Selected())
	if err := m.copyText(text); err != nil {
		m.err = "Copy failed: " + err.Error()
		return
	}
	m.status = "Copied cell text"
}

// formatClueInput renders a clue as "text/dir/SOLUTION; ..." for editing.
func formatClueInput(c Clue) string {
	parts := make([]string, len(c.Subclues))
	for i, sc := range c.Subclues {
		parts[i] = fmt.Sprintf("%s/%s/%s", sc.Text, sc.Direction, sc.Solution)
	}
	return strings.Join(parts, "; ")
}

// parseClueInput reads "text/dir/SOLUTION" entries separated by ";". The
// direction may be abbreviated to a or d.
func parseClueInput(value string) ([]Subclue, error) {
	var subclues []Subclue
	for _, entry := range strings.Split(value, ";") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		f := strings.Split(entry, "/")
		if len(f) != 3 {
			return nil, fmt.Errorf("expected text/dir/SOLUTION, got %q", strings.TrimSpace(entry))
		}
		var dir Direction
		switch strings.ToLower(strings.TrimSpace(f[1])) {
		case "a", "across":
			dir = Across
		case "d", "down":
			dir = Down
		default:
			return nil, ErrInvalidDirection
		}
		subclues = append(subclues, Subclue{
			Text:      strings.TrimSpace(f[0]),
			Direction: dir,
			Solution:  strings.TrimSpace(f[2]),
		})
	}
	return subclues, nil
}

func parseSpan(rows, cols string) (int, int, error) {
	r, err := strconv.Atoi(rows)
	if err != nil {
		return 0, 0, fmt.Errorf("rows: %w", err)
	}
	c, err := strconv.Atoi(cols)
	if err != nil {
		return 0, 0, fmt.Errorf("cols: %w", err)
	}
	return r, c, nil
}

// imageInput resolves the picture of an image prompt: "-" keeps the current
// one, "none" clears it, anything else is a file to embed.
func imageInput(arg, current string) (string, error) {
	switch arg {
	case "-":
		return current, nil
	case "none":
		return "", nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", err
	}
	mimeType := http.DetectContentType(data)
	if !allowedMIME[mimeType] {
		return "", fmt.Errorf("%s: accepted formats are JPEG or PNG", arg)
	}
	return DataURI(mimeType, data), nil
}

func (m *tuiModel) View() string {
	var b strings.Builder
	g := m.editor.Grid()

	title := m.path
	if m.dirty {
		title += " [modified]"
	}
	b.WriteString(tuiHeaderStyle.Render(title) + "\n\n")

	b.WriteString("    ")
	for c := range g.Cols {
		b.WriteString(tuiHeaderStyle.Render(fmt.Sprintf("%-3s", ColumnLabel(c))))
	}
	b.WriteString("\n")
	for r := range g.Rows {
		b.WriteString(tuiHeaderStyle.Render(fmt.Sprintf("%3d ", r+1)))
		for c := range g.Cols {
			b.WriteString(m.renderCell(r, c))
		}
		b.WriteString("\n")
	}

	sel := m.editor.Selection()
	cell := m.editor.Selected()
	b.WriteString("\n")
	status := fmt.Sprintf("%s  %s", sel.Active, cell.Kind())
	if sel.Multi() {
		status = fmt.Sprintf("%s:%s  %d cells", sel.Anchor, sel.Active, len(sel.Members))
	}
	b.WriteString(tuiStatusStyle.Render(status))
	if text := CellText(cell); text != "" && !sel.Multi() {
		b.WriteString("  " + strings.ReplaceAll(text, "\n", " / "))
	}
	b.WriteString("\n")

	switch {
	case m.prompt != promptNone:
		b.WriteString(m.input.View() + "\n")
	case m.err != "":
		b.WriteString(tuiErrorStyle.Render(m.err) + "\n")
	case m.status != "":
		b.WriteString(m.status + "\n")
	default:
		b.WriteString("\n")
	}
	b.WriteString(tuiHelpStyle.Render("arrows: move  shift+arrows: extend  0-5: unset/blocked/clue/solution/arrow/image\n" +
		"letters: fill solution  ctrl+e: edit  ctrl+r: resize  ctrl+s: save  ctrl+y: copy  ctrl+q: quit"))
	return b.String()
}

func (m *tuiModel) renderCell(r, c int) string {
	text, style := "", lipgloss.NewStyle()
	switch v := m.editor.Grid().At(r, c).(type) {
	case Blocked:
		text, style = "   ", tuiBlockedStyle
	case Clue:
		text, style = " ? ", tuiClueStyle
		if len(v.Subclues) > 1 {
			text = fmt.Sprintf("?%d ", len(v.Subclues))
		}
	case Solution:
		letter := v.Letter
		if letter == "" {
			letter = "·"
		}
		text = " " + letter + " "
	case Arrow:
		text = " " + v.Symbol() + " "
	case Image:
		text = "IMG"
	case Merged:
		text, style = " ░ ", tuiMergedStyle
	default:
		text = "   "
	}
	if m.isSelected(r, c) {
		style = tuiSelectedStyle
	}
	return style.Render(text)
}

func (m *tuiModel) isSelected(r, c int) bool {
	sel := m.editor.Selection()
	if !sel.Multi() {
		return sel.Active.Row == r && sel.Active.Col == c
	}
	for _, p := range sel.Members {
		if p.Row == r && p.Col == c {
			return true
		}
	}
	return false
}
