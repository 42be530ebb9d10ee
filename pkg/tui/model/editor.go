package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/modoterra/gamehost/pkg/core"
	"github.com/modoterra/gamehost/pkg/transport/uds"
)

// EditorField is a named text input in the editor form.
type EditorField struct {
	Label string
	Input textinput.Model
}

// EditorModel is the spawn form.
type EditorModel struct {
	fields    []EditorField
	activeIdx int
	isNew     bool
}

// NewEditorForProcess creates a form that relaunches p and carries its log
// over to the new process.
func NewEditorForProcess(p core.ProcessInfo) *EditorModel {
	fields := []EditorField{
		newField("game", ""),
		newField("exe", p.Exe),
		newField("dir", p.Dir),
		newField("args", strings.Join(p.Args, " ")),
		newField("env", ""),
		newField("copy from", strconv.Itoa(p.PID)),
	}
	fields[0].Input.Focus()
	return &EditorModel{fields: fields}
}

// NewEditorForNew creates a blank spawn form.
func NewEditorForNew() *EditorModel {
	fields := []EditorField{
		newField("game", ""),
		newField("exe", ""),
		newField("dir", ""),
		newField("args", ""),
		newField("env", ""),
		newField("copy from", ""),
	}
	fields[0].Input.Focus()
	return &EditorModel{fields: fields, isNew: true}
}

func newField(label, value string) EditorField {
	ti := textinput.New()
	ti.Placeholder = label
	ti.SetValue(value)
	ti.CharLimit = 256
	return EditorField{Label: label, Input: ti}
}

func (e *EditorModel) value(label string) string {
	for _, f := range e.fields {
		if f.Label == label {
			return strings.TrimSpace(f.Input.Value())
		}
	}
	return ""
}

// Request builds the spawn request from the form. Args are split on
// whitespace and env is a list of KEY=VALUE pairs.
func (e *EditorModel) Request() (uds.SpawnRequest, error) {
	req := uds.SpawnRequest{
		Game: e.value("game"),
		Exe:  e.value("exe"),
		Dir:  e.value("dir"),
		Args: strings.Fields(e.value("args")),
	}
	if req.Game == "" && req.Exe == "" {
		return req, errors.New("game or exe is required")
	}
	for _, kv := range strings.Fields(e.value("env")) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return req, fmt.Errorf("env entry %q is not KEY=VALUE", kv)
		}
		if req.Env == nil {
			req.Env = map[string]string{}
		}
		req.Env[k] = v
	}
	if s := e.value("copy from"); s != "" {
		pid, err := strconv.Atoi(s)
		if err != nil {
			return req, fmt.Errorf("copy from: %q is not a pid", s)
		}
		req.CopyFrom = pid
	}
	return req, nil
}

// HandleKey processes key events in editor mode.
func (e *EditorModel) HandleKey(a App, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.mode = ModeNormal
		a.editor = nil
		return a, nil

	case "enter":
		req, err := e.Request()
		if err != nil {
			a.statusMsg = "error: " + err.Error()
			return a, nil
		}
		a.mode = ModeNormal
		a.editor = nil
		if a.client == nil {
			a.statusMsg = "not connected"
			return a, nil
		}
		a.statusMsg = "spawning..."
		return a, spawnCmd(a.client, req)

	case "tab":
		e.fields[e.activeIdx].Input.Blur()
		e.activeIdx = (e.activeIdx + 1) % len(e.fields)
		e.fields[e.activeIdx].Input.Focus()
		return a, textinput.Blink

	case "shift+tab":
		e.fields[e.activeIdx].Input.Blur()
		e.activeIdx = (e.activeIdx - 1 + len(e.fields)) % len(e.fields)
		e.fields[e.activeIdx].Input.Focus()
		return a, textinput.Blink

	default:
		var cmd tea.Cmd
		e.fields[e.activeIdx].Input, cmd = e.fields[e.activeIdx].Input.Update(msg)
		return a, cmd
	}
}

// View renders the editor form.
func (e *EditorModel) View(width int) string {
	title := "Relaunch"
	if e.isNew {
		title = "Spawn"
	}

	s := titleStyle.Render(" "+title+" ") + "\n\n"
	for i, f := range e.fields {
		prefix := "  "
		if i == e.activeIdx {
			prefix = "▸ "
		}
		s += prefix + dimStyle.Render(f.Label+": ") + f.Input.View() + "\n"
	}
	s += "\n" + helpStyle.Render("  tab:next  shift+tab:prev  enter:spawn  esc:cancel")
	return s
}
