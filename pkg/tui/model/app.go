package model

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/logstore"
	"github.com/modoterra/gamehost/pkg/transport/uds"
)

// Pane identifies which TUI pane is focused.
type Pane int

const (
	PaneList Pane = iota
	PaneDetail
	PaneLogs
)

// Mode identifies the current interaction mode.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeEditor
	ModeSend
	ModeConfirmDelete
)

// maxLogRows bounds the rows kept for the selected process.
const maxLogRows = 2000

// levelSteps are the minimum levels cycled by the filter key.
var levelSteps = []core.Level{core.LevelUnknown, core.LevelInfo, core.LevelWarning, core.LevelError}

// App is the root Bubble Tea model.
type App struct {
	// Connection
	client     *uds.Client
	socketPath string
	connected  bool
	events     chan uds.Message

	// State
	procs       []core.ProcessInfo
	selectedIdx int
	logPID      int
	logRows     []core.LogRow
	logPaused   bool
	minLevel    int // index into levelSteps

	// UI
	activePane Pane
	mode       Mode
	search     textinput.Model
	input      textinput.Model
	width      int
	height     int

	// Editor
	editor *EditorModel

	// Delete confirmation
	deleteTarget int

	// Error display
	statusMsg string
}

// New creates a new TUI app model.
func New(socketPath string) App {
	si := textinput.New()
	si.Placeholder = "search..."
	si.CharLimit = 64

	in := textinput.New()
	in.Placeholder = "stdin line"
	in.CharLimit = 1024

	return App{
		socketPath: socketPath,
		events:     make(chan uds.Message, 256),
		search:     si,
		input:      in,
		activePane: PaneList,
		mode:       ModeNormal,
	}
}

// Init connects to the daemon.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		connectCmd(a.socketPath),
		tea.SetWindowTitle("gamehost"),
	)
}

// tickMsg triggers periodic refresh.
type tickMsg time.Time

// connectedMsg indicates successful daemon connection.
type connectedMsg struct{ client *uds.Client }

// disconnectedMsg reports that the daemon connection was lost.
type disconnectedMsg struct{}

// procsMsg carries the process list from the daemon.
type procsMsg struct{ procs []core.ProcessInfo }

// logMsg carries the stored rows of one process.
type logMsg struct {
	pid  int
	rows []core.LogRow
}

// eventMsg wraps a server-pushed message.
type eventMsg uds.Message

// errorMsg carries an error to display.
type errorMsg struct{ err error }

// actionResultMsg carries the result of an action.
type actionResultMsg struct{ msg string }

func connectCmd(socketPath string) tea.Cmd {
	return func() tea.Msg {
		client, err := uds.Dial(socketPath)
		if err != nil {
			return errorMsg{err}
		}
		return connectedMsg{client}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitEventCmd delivers the next pushed event, or a disconnect.
func waitEventCmd(client *uds.Client, events <-chan uds.Message) tea.Cmd {
	return func() tea.Msg {
		select {
		case m := <-events:
			return eventMsg(m)
		case <-client.Done():
			return disconnectedMsg{}
		}
	}
}

func fetchProcsCmd(client *uds.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		var procs []core.ProcessInfo
		if err := client.Call(ctx, uds.MethodListProcesses, nil, &procs); err != nil {
			return errorMsg{err}
		}
		return procsMsg{procs}
	}
}

func fetchLogCmd(client *uds.Client, pid int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var rows []core.LogRow
		err := client.Call(ctx, uds.MethodGetLog, uds.GetLogRequest{PID: pid, Query: logstore.Query{}}, &rows)
		if err != nil {
			return errorMsg{err}
		}
		return logMsg{pid: pid, rows: rows}
	}
}

func requestCmd(client *uds.Client, method string, data any, done string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Call(ctx, method, data, nil); err != nil {
			return errorMsg{err}
		}
		return actionResultMsg{msg: done}
	}
}

func spawnCmd(client *uds.Client, req uds.SpawnRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var res uds.SpawnResponse
		if err := client.Call(ctx, uds.MethodSpawn, req, &res); err != nil {
			return errorMsg{err}
		}
		return actionResultMsg{msg: fmt.Sprintf("spawned pid %d", res.PID)}
	}
}

// Update handles messages.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case connectedMsg:
		a.client = msg.client
		a.connected = true
		a.statusMsg = "connected"

		events := a.events
		a.client.OnEvent(func(m uds.Message) {
			select {
			case events <- m:
			default:
				// the UI is behind; the next tick resyncs
			}
		})

		return a, tea.Batch(tickCmd(), fetchProcsCmd(a.client), waitEventCmd(a.client, a.events))

	case disconnectedMsg:
		a.connected = false
		a.client = nil
		a.statusMsg = "daemon connection lost"
		return a, nil

	case tickMsg:
		if a.client != nil {
			return a, tea.Batch(tickCmd(), fetchProcsCmd(a.client))
		}
		return a, tickCmd()

	case procsMsg:
		a.procs = msg.procs
		return a.clampSelection()

	case logMsg:
		if msg.pid == a.logPID {
			a.logRows = trimRows(msg.rows)
		}
		return a, nil

	case eventMsg:
		a = a.applyEvent(uds.Message(msg))
		if a.client == nil {
			return a, nil
		}
		model, cmd := a.clampSelection()
		return model, tea.Batch(cmd, waitEventCmd(a.client, a.events))

	case actionResultMsg:
		a.statusMsg = msg.msg
		return a, nil

	case errorMsg:
		a.statusMsg = "error: " + msg.err.Error()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

// applyEvent folds a pushed event into the model.
func (a App) applyEvent(m uds.Message) App {
	switch m.Method {
	case uds.EventProcessesDelta:
		var delta uds.ProcessesDelta
		if err := json.Unmarshal(m.Data, &delta); err == nil {
			a.procs = applyDelta(a.procs, delta)
		}
	case uds.EventProcess:
		var ev core.Event
		if err := json.Unmarshal(m.Data, &ev); err != nil || ev.PID != a.logPID {
			return a
		}
		switch ev.Kind {
		case core.EventLog:
			if ev.Row != nil && !a.logPaused {
				a.logRows = trimRows(append(a.logRows, *ev.Row))
			}
		case core.EventGameExit:
			if ev.Status != nil {
				a.statusMsg = fmt.Sprintf("pid %d exited with status %d", ev.PID, *ev.Status)
			}
		case core.EventIOError:
			a.statusMsg = fmt.Sprintf("pid %d: %s", ev.PID, ev.Err)
		}
	}
	return a
}

// applyDelta returns procs with delta applied, ordered by pid.
func applyDelta(procs []core.ProcessInfo, delta uds.ProcessesDelta) []core.ProcessInfo {
	byPID := make(map[int]core.ProcessInfo, len(procs))
	for _, p := range procs {
		byPID[p.PID] = p
	}
	for _, p := range delta.Added {
		byPID[p.PID] = p
	}
	for _, p := range delta.Updated {
		byPID[p.PID] = p
	}
	for _, pid := range delta.Removed {
		delete(byPID, pid)
	}

	out := make([]core.ProcessInfo, 0, len(byPID))
	for _, p := range byPID {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b core.ProcessInfo) int { return a.PID - b.PID })
	return out
}

func trimRows(rows []core.LogRow) []core.LogRow {
	if len(rows) > maxLogRows {
		return rows[len(rows)-maxLogRows:]
	}
	return rows
}

// clampSelection keeps the cursor in range and loads the log of a newly
// selected process.
func (a App) clampSelection() (App, tea.Cmd) {
	procs := a.filteredProcs()
	if a.selectedIdx >= len(procs) {
		a.selectedIdx = max(0, len(procs)-1)
	}
	return a.followSelection()
}

func (a App) followSelection() (App, tea.Cmd) {
	p := a.selectedProc()
	if p == nil {
		a.logPID = 0
		a.logRows = nil
		return a, nil
	}
	if p.PID == a.logPID || a.client == nil {
		return a, nil
	}
	a.logPID = p.PID
	a.logRows = nil
	return a, fetchLogCmd(a.client, p.PID)
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Search mode
	if a.mode == ModeSearch {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.search.SetValue("")
			a.search.Blur()
			return a.clampSelection()
		case "enter":
			a.mode = ModeNormal
			a.search.Blur()
			return a.clampSelection()
		default:
			var cmd tea.Cmd
			a.search, cmd = a.search.Update(msg)
			return a, cmd
		}
	}

	// Send prompt
	if a.mode == ModeSend {
		switch msg.String() {
		case "esc":
			a.mode = ModeNormal
			a.input.Blur()
			return a, nil
		case "enter":
			text := a.input.Value()
			a.mode = ModeNormal
			a.input.SetValue("")
			a.input.Blur()
			p := a.selectedProc()
			if a.client == nil || p == nil {
				a.statusMsg = "not connected"
				return a, nil
			}
			return a, requestCmd(a.client, uds.MethodSend, uds.SendRequest{PID: p.PID, Text: text},
				fmt.Sprintf("sent to %d", p.PID))
		default:
			var cmd tea.Cmd
			a.input, cmd = a.input.Update(msg)
			return a, cmd
		}
	}

	// Editor mode
	if a.mode == ModeEditor && a.editor != nil {
		return a.editor.HandleKey(a, msg)
	}

	// Delete confirmation mode
	if a.mode == ModeConfirmDelete {
		switch msg.String() {
		case "y", "Y":
			pid := a.deleteTarget
			a.mode = ModeNormal
			a.deleteTarget = 0
			if a.client == nil {
				a.statusMsg = "not connected"
				return a, nil
			}
			a.statusMsg = fmt.Sprintf("deleting %d...", pid)
			return a, tea.Batch(
				requestCmd(a.client, uds.MethodDelete, uds.PIDRequest{PID: pid}, fmt.Sprintf("deleted %d", pid)),
				fetchProcsCmd(a.client),
			)
		default:
			a.mode = ModeNormal
			a.deleteTarget = 0
			a.statusMsg = "delete cancelled"
			return a, nil
		}
	}

	// Normal mode
	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "j", "down":
		if a.activePane == PaneList && len(a.procs) > 0 {
			a.selectedIdx = min(a.selectedIdx+1, len(a.filteredProcs())-1)
			return a.followSelection()
		}
	case "k", "up":
		if a.activePane == PaneList && a.selectedIdx > 0 {
			a.selectedIdx--
			return a.followSelection()
		}

	case "tab":
		a.activePane = (a.activePane + 1) % 3

	case "/":
		a.mode = ModeSearch
		a.search.Focus()
		return a, textinput.Blink

	case "l":
		a.activePane = PaneLogs

	case " ":
		if a.activePane == PaneLogs {
			a.logPaused = !a.logPaused
			if !a.logPaused && a.client != nil && a.logPID != 0 {
				return a, fetchLogCmd(a.client, a.logPID)
			}
		}

	case "v":
		a.minLevel = (a.minLevel + 1) % len(levelSteps)
		a.statusMsg = "showing " + levelSteps[a.minLevel].String() + " and above"

	case "x":
		if p := a.selectedProc(); p != nil && a.client != nil {
			return a, requestCmd(a.client, uds.MethodKill, uds.PIDRequest{PID: p.PID}, fmt.Sprintf("kill → %d", p.PID))
		}

	case "i":
		if p := a.selectedProc(); p != nil && p.Status == core.StatusRunning {
			a.mode = ModeSend
			a.input.Focus()
			return a, textinput.Blink
		}

	case "a":
		a.editor = NewEditorForNew()
		a.mode = ModeEditor

	case "e":
		if p := a.selectedProc(); p != nil {
			a.editor = NewEditorForProcess(*p)
			a.mode = ModeEditor
		}

	case "d":
		if p := a.selectedProc(); p != nil {
			if p.Status == core.StatusRunning {
				a.statusMsg = "kill the process before deleting it"
				return a, nil
			}
			a.deleteTarget = p.PID
			a.mode = ModeConfirmDelete
			a.statusMsg = fmt.Sprintf("Delete %d? (y/n)", p.PID)
		}
	}

	return a, nil
}

func (a App) filteredProcs() []core.ProcessInfo {
	q := strings.ToLower(a.search.Value())
	if q == "" {
		return a.procs
	}
	var filtered []core.ProcessInfo
	for _, p := range a.procs {
		if strings.Contains(strings.ToLower(p.Exe), q) ||
			strings.Contains(strings.ToLower(strings.Join(p.Args, " ")), q) ||
			strings.Contains(fmt.Sprint(p.PID), q) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

func (a App) selectedProc() *core.ProcessInfo {
	procs := a.filteredProcs()
	if a.selectedIdx < len(procs) {
		return &procs[a.selectedIdx]
	}
	return nil
}

// visibleRows applies the level filter to the loaded rows.
func (a App) visibleRows() []core.LogRow {
	floor := levelSteps[a.minLevel]
	if floor == core.LevelUnknown {
		return a.logRows
	}
	var out []core.LogRow
	for _, r := range a.logRows {
		if r.Level >= floor {
			out = append(out, r)
		}
	}
	return out
}
