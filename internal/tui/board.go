package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ldi/tempo/internal/engine"
	"github.com/ldi/tempo/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252")).
				Padding(0, 1)

	focusedColumnHeaderStyle = columnHeaderStyle.Copy().
					Foreground(lipgloss.Color("39")).
					Underline(true)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedColumnStyle = columnStyle.Copy().
				BorderForeground(lipgloss.Color("39"))

	taskStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedTaskStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("229")).
				Background(lipgloss.Color("57")).
				Bold(true)

	activeTaskStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	timerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("208")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	inputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229"))
)

// tickMsg drives the live session timer once per second.
type tickMsg time.Time

// snapshotMsg carries an externally published board update into the model.
type snapshotMsg *models.Snapshot

// Model is the interactive kanban board. It reads through the shared board
// engine, so every mutation goes through the same single-active and history
// rules as the other surfaces.
type Model struct {
	board   *engine.Board
	monitor *engine.ActivityMonitor
	updates <-chan *models.Snapshot

	columns       []models.TaskStatus
	focusedColumn int
	selected      map[models.TaskStatus]int

	inputting bool
	input     string

	showDone bool
	width    int
	height   int
	quitting bool
	err      error
}

func NewModel(board *engine.Board, monitor *engine.ActivityMonitor, updates <-chan *models.Snapshot) *Model {
	return &Model{
		board:    board,
		monitor:  monitor,
		updates:  updates,
		columns:  append([]models.TaskStatus(nil), models.StatusOrder...),
		selected: make(map[models.TaskStatus]int),
		showDone: true,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.pollUpdates())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) pollUpdates() tea.Cmd {
	if m.updates == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-m.updates
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.monitor.Record(time.Now())
		if m.inputting {
			return m.updateInput(msg)
		}
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tick()

	case snapshotMsg:
		// The engine already holds the new state; a redraw plus the next
		// poll is all the view needs.
		m.clampSelection()
		return m, m.pollUpdates()

	case error:
		m.err = msg
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		title := strings.TrimSpace(m.input)
		m.inputting = false
		m.input = ""
		if title != "" {
			if _, err := m.board.CreateTask(context.Background(), title, m.columns[m.focusedColumn], ""); err != nil {
				m.err = err
				return m, tea.Quit
			}
		}
	case tea.KeyEsc:
		m.inputting = false
		m.input = ""
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	case tea.KeySpace:
		m.input += " "
	}
	return m, nil
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "h", "left":
		if m.focusedColumn > 0 {
			m.focusedColumn--
		}
	case "l", "right":
		if m.focusedColumn < len(m.columns)-1 {
			m.focusedColumn++
		}
	case "j", "down":
		m.moveSelection(1)
	case "k", "up":
		m.moveSelection(-1)
	case "H":
		m.moveTask(engine.MoveLeft)
	case "L":
		m.moveTask(engine.MoveRight)
	case "s", " ":
		m.toggleWork()
	case "D":
		if t := m.selectedTask(); t != nil {
			m.run(func() error { return m.board.MarkDone(context.Background(), t.ID) })
		}
	case "x":
		if t := m.selectedTask(); t != nil {
			m.run(func() error { return m.board.DeleteTask(context.Background(), t.ID) })
		}
	case "n":
		m.inputting = true
		m.input = ""
	case "w":
		m.cycleWorkspace()
	case "c":
		m.showDone = !m.showDone
	}
	if m.err != nil {
		return m, tea.Quit
	}
	m.clampSelection()
	return m, nil
}

// run executes a board mutation and keeps the first error for display.
func (m *Model) run(fn func() error) {
	if err := fn(); err != nil && m.err == nil {
		m.err = err
	}
}

func (m *Model) moveSelection(delta int) {
	col := m.columns[m.focusedColumn]
	tasks := m.columnTasks(col)
	if len(tasks) == 0 {
		return
	}
	idx := m.selected[col] + delta
	if idx < 0 {
		idx = 0
	}
	if idx >= len(tasks) {
		idx = len(tasks) - 1
	}
	m.selected[col] = idx
}

func (m *Model) clampSelection() {
	for _, col := range m.columns {
		n := len(m.columnTasks(col))
		if n == 0 {
			m.selected[col] = 0
			continue
		}
		if m.selected[col] >= n {
			m.selected[col] = n - 1
		}
	}
}

func (m *Model) selectedTask() *models.Task {
	col := m.columns[m.focusedColumn]
	tasks := m.columnTasks(col)
	if len(tasks) == 0 {
		return nil
	}
	idx := m.selected[col]
	if idx >= len(tasks) {
		idx = len(tasks) - 1
	}
	return tasks[idx]
}

func (m *Model) moveTask(dir engine.Direction) {
	t := m.selectedTask()
	if t == nil {
		return
	}
	m.run(func() error { return m.board.MoveTask(context.Background(), t.ID, dir) })
}

// toggleWork starts the selected task, or pauses it if it is already the
// active one.
func (m *Model) toggleWork() {
	t := m.selectedTask()
	if t == nil {
		return
	}
	if t.Status == models.TaskStatusWorking {
		m.run(func() error { return m.board.Pause(context.Background(), t.ID) })
		return
	}
	m.run(func() error { return m.board.StartWorking(context.Background(), t.ID) })
}

func (m *Model) cycleWorkspace() {
	workspaces := m.board.Workspaces()
	if len(workspaces) < 2 {
		return
	}
	current := m.board.CurrentWorkspaceID()
	next := workspaces[0].ID
	for i, ws := range workspaces {
		if ws.ID == current {
			next = workspaces[(i+1)%len(workspaces)].ID
			break
		}
	}
	m.run(func() error { return m.board.SetCurrentWorkspace(context.Background(), next) })
}

func (m *Model) columnTasks(status models.TaskStatus) []*models.Task {
	if status == models.TaskStatusDone && !m.showDone {
		return nil
	}
	wsID := m.board.CurrentWorkspaceID()
	var out []*models.Task
	for _, t := range m.board.TasksByStatus(status) {
		if wsID == "" || t.WorkspaceID == wsID {
			out = append(out, t)
		}
	}
	return out
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n", m.err)
	}

	header := m.renderHeader()
	columns := make([]string, 0, len(m.columns))
	for i, status := range m.columns {
		columns = append(columns, m.renderColumn(status, i == m.focusedColumn))
	}
	boardView := lipgloss.JoinHorizontal(lipgloss.Top, columns...)

	sections := []string{header, boardView}
	if m.inputting {
		sections = append(sections, inputStyle.Render("New task: "+m.input+"▌"))
	}
	sections = append(sections, m.renderHelp())
	return strings.Join(sections, "\n")
}

func (m *Model) renderHeader() string {
	var workspace string
	if ws := m.board.Workspace(m.board.CurrentWorkspaceID()); ws != nil {
		workspace = ws.Name
	}
	header := "Tempo"
	if workspace != "" {
		header += " | " + workspace
	}

	if active := m.board.ActiveTask(); active != nil {
		worked := m.board.WorkedTime(active.ID, time.Now())
		header += " | " + timerStyle.Render(fmt.Sprintf("▶ %s %s", active.Title, formatDuration(worked)))
	}
	return titleStyle.Render(header)
}

func (m *Model) renderColumn(status models.TaskStatus, focused bool) string {
	headerStyle := columnHeaderStyle
	style := columnStyle
	if focused {
		headerStyle = focusedColumnHeaderStyle
		style = focusedColumnStyle
	}

	tasks := m.columnTasks(status)
	var body strings.Builder
	body.WriteString(headerStyle.Render(columnLabel(status)))
	body.WriteString("\n")
	for i, t := range tasks {
		line := t.Title
		if t.Status == models.TaskStatusWorking {
			line = "▶ " + line + " " + formatDuration(m.board.WorkedTime(t.ID, time.Now()))
		}
		switch {
		case focused && i == m.selected[status]:
			line = selectedTaskStyle.Render(line)
		case t.Status == models.TaskStatusWorking:
			line = activeTaskStyle.Render(line)
		default:
			line = taskStyle.Render(line)
		}
		body.WriteString(line)
		body.WriteString("\n")
	}
	if len(tasks) == 0 {
		body.WriteString(helpStyle.Render("(empty)"))
		body.WriteString("\n")
	}

	width := 18
	if m.width > 0 {
		if w := m.width/len(m.columns) - 3; w > width {
			width = w
		}
	}
	return style.Width(width).Render(body.String())
}

func (m *Model) renderHelp() string {
	return helpStyle.Render("h/l columns • j/k tasks • H/L move • s start/pause • D done • n new • x delete • w workspace • c toggle done • q quit")
}

func columnLabel(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusNew:
		return "New"
	case models.TaskStatusUpNext:
		return "Up Next"
	case models.TaskStatusWorking:
		return "Working"
	case models.TaskStatusInProgress:
		return "In Progress"
	case models.TaskStatusBlocked:
		return "Blocked"
	case models.TaskStatusDone:
		return "Done"
	default:
		return string(status)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Run starts the interactive board and blocks until the user quits or ctx is
// cancelled.
func Run(ctx context.Context, board *engine.Board, monitor *engine.ActivityMonitor, updates <-chan *models.Snapshot) error {
	m := NewModel(board, monitor, updates)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	return err
}
