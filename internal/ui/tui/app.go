package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cigrirepo/Floww/internal/domain"
)

type screen int

const (
	screenHome screen = iota
	screenPipelines
	screenEnvs
	screenPreview
	screenRunning
	screenResult
	screenSettings
)

type menuItem struct {
	title string
	desc  string
}

func (m menuItem) Title() string       { return m.title }
func (m menuItem) Description() string { return m.desc }
func (m menuItem) FilterValue() string { return m.title }

type pipelineItem struct {
	ref domain.PipelineRef
}

func (p pipelineItem) Title() string       { return p.ref.Name }
func (p pipelineItem) Description() string { return p.ref.Path }
func (p pipelineItem) FilterValue() string { return p.ref.Name }

type envItem struct {
	ref domain.EnvironmentRef
}

func (e envItem) Title() string       { return e.ref.Name }
func (e envItem) Description() string { return e.ref.Path }
func (e envItem) FilterValue() string { return e.ref.Name }

type model struct {
	theme Theme
	deps  Deps

	scr   screen
	menu  list.Model
	pipes list.Model
	envs  list.Model

	workspaceFound bool
	workspaceRoot  string

	running     bool
	runPipeline string
	runCh       chan runnerDoneMsg

	lastRun   domain.RunResult
	lastRunID string
	lastErr   error

	preview string
	toast   string
}

func Run(deps Deps) error {
	m := newModel(deps)
	p := tea.NewProgram(wrapSafe(m, deps.Logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func newModel(deps Deps) model {
	t := DefaultTheme()

	items := []list.Item{
		menuItem{"Pipelines", "Browse and run CI pipelines"},
		menuItem{"Environments", "Variables and secrets per environment"},
		menuItem{"Settings", "Workspace setup and defaults"},
		menuItem{"Quit", "Exit Floww"},
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Floww"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	pipes := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	pipes.Title = "Pipelines"
	pipes.SetShowStatusBar(false)
	pipes.SetFilteringEnabled(true)
	pipes.SetShowHelp(false)

	envs := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	envs.Title = "Environments"
	envs.SetShowStatusBar(false)
	envs.SetFilteringEnabled(true)
	envs.SetShowHelp(false)

	return model{
		theme: t,
		deps:  deps,
		scr:   screenHome,
		menu:  l,
		pipes: pipes,
		envs:  envs,
	}
}

func (m model) Init() tea.Cmd {
	return cmdRefreshWorkspace(m.deps)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w, h := msg.Width, msg.Height
		m.menu.SetSize(w-4, h-10)
		m.pipes.SetSize(w-4, h-10)
		m.envs.SetSize(w-4, h-10)
		return m, nil

	case workspaceRefreshedMsg:
		m.workspaceFound = msg.found
		m.workspaceRoot = msg.root
		if msg.found {
			return m, tea.Batch(cmdLoadPipelines(msg.root), cmdLoadEnvironments(msg.root))
		}
		return m, nil

	case initWorkspaceDoneMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		m.toast = "Workspace initialized"
		return m, cmdRefreshWorkspace(m.deps)

	case pipelinesLoadedMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.refs))
		for _, r := range msg.refs {
			items = append(items, pipelineItem{ref: r})
		}
		m.pipes.SetItems(items)
		return m, nil

	case envsLoadedMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.refs))
		for _, r := range msg.refs {
			items = append(items, envItem{ref: r})
		}
		m.envs.SetItems(items)
		return m, nil

	case pipelinePreviewMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		m.preview = msg.preview
		m.scr = screenPreview
		return m, nil

	case runnerDoneMsg:
		m.running = false
		m.runCh = nil
		m.lastRun = msg.run
		m.lastRunID = msg.id
		m.lastErr = msg.err
		m.scr = screenResult
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateLists(msg)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case "ctrl+c":
		return m, tea.Quit

	case "q":
		if m.scr == screenHome {
			return m, tea.Quit
		}
		if m.scr != screenRunning {
			m.scr = screenHome
			m.toast = ""
			return m, nil
		}
		return m, nil

	case "esc", "b":
		switch m.scr {
		case screenPreview, screenResult:
			m.scr = screenPipelines
			return m, nil
		case screenRunning:
			return m, nil
		default:
			if m.scr != screenHome {
				m.scr = screenHome
				m.toast = ""
				return m, nil
			}
		}
	}

	switch m.scr {
	case screenHome:
		if key == "enter" {
			it, ok := m.menu.SelectedItem().(menuItem)
			if !ok {
				return m, nil
			}
			switch {
			case strings.EqualFold(it.title, "Quit"):
				return m, tea.Quit
			case strings.EqualFold(it.title, "Pipelines"):
				m.scr = screenPipelines
				return m, nil
			case strings.EqualFold(it.title, "Environments"):
				m.scr = screenEnvs
				return m, nil
			case strings.EqualFold(it.title, "Settings"):
				m.scr = screenSettings
				return m, nil
			}
			return m, nil
		}

	case screenPipelines:
		switch key {
		case "enter":
			it, ok := m.pipes.SelectedItem().(pipelineItem)
			if !ok || m.running {
				return m, nil
			}
			m.running = true
			m.runPipeline = it.ref.Name
			m.scr = screenRunning

			ch, cmd := startRunAsync(m.workspaceRoot, it.ref.Path, "", m.deps.Logger, m.deps.Debug)
			m.runCh = ch
			return m, cmd

		case "v":
			it, ok := m.pipes.SelectedItem().(pipelineItem)
			if !ok {
				return m, nil
			}
			return m, cmdPreviewPipeline(it.ref.Path)

		case "r":
			if m.workspaceFound {
				return m, cmdLoadPipelines(m.workspaceRoot)
			}
			return m, nil
		}

	case screenEnvs:
		if key == "r" && m.workspaceFound {
			return m, cmdLoadEnvironments(m.workspaceRoot)
		}

	case screenSettings:
		if key == "i" && !m.workspaceFound {
			root := m.workspaceRoot
			if root == "" {
				root = "."
			}
			return m, cmdInitWorkspaceHere(m.deps, root)
		}
	}

	return m.updateLists(msg)
}

func (m model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.scr {
	case screenHome:
		m.menu, cmd = m.menu.Update(msg)
	case screenPipelines:
		m.pipes, cmd = m.pipes.Update(msg)
	case screenEnvs:
		m.envs, cmd = m.envs.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	wrap := lipgloss.NewStyle().Padding(1, 2)
	header := m.theme.Title.Render("Floww") + "\n" +
		m.theme.Subtitle.Render("Pipeline smoke-test runner — install, lint, launch, probe") + "\n"

	var workspaceBanner string
	if m.workspaceFound {
		workspaceBanner = m.theme.Help.Render(fmt.Sprintf("Workspace: %s", m.workspaceRoot))
	} else {
		workspaceBanner = m.theme.Card.Render(
			"⚠ No workspace found.\n\nCreate one in Settings → Init Workspace.",
		)
	}

	toast := ""
	if m.toast != "" {
		toast = "\n" + m.theme.Help.Render(m.toast)
	}

	switch m.scr {
	case screenHome:
		help := m.theme.Help.Render("↑/↓ navigate • enter open • / search • q quit")
		return wrap.Render(header + "\n" + workspaceBanner + toast + "\n\n" + m.theme.Card.Render(m.menu.View()) + "\n" + help)

	case screenPipelines:
		help := m.theme.Help.Render("enter run • v preview • r reload • esc back")
		return wrap.Render(header + "\n" + workspaceBanner + toast + "\n\n" + m.theme.Card.Render(m.pipes.View()) + "\n" + help)

	case screenEnvs:
		help := m.theme.Help.Render("r reload • esc back")
		return wrap.Render(header + "\n" + workspaceBanner + toast + "\n\n" + m.theme.Card.Render(m.envs.View()) + "\n" + help)

	case screenPreview:
		card := m.theme.Card.Render(m.preview + "\n" + m.theme.Help.Render("esc back"))
		return wrap.Render(header + "\n" + workspaceBanner + "\n\n" + card)

	case screenRunning:
		card := m.theme.Card.Render(
			fmt.Sprintf("%s\n\nRunning… smoke steps wait for app readiness,\nthis can take a while.",
				m.theme.Title.Render(m.runPipeline),
			),
		)
		return wrap.Render(header + "\n" + workspaceBanner + "\n\n" + card)

	case screenResult:
		card := m.theme.Card.Render(renderRunSummary(m.lastRun, m.lastRunID, m.lastErr) +
			"\n" + m.theme.Help.Render("esc back • q home"))
		return wrap.Render(header + "\n" + workspaceBanner + "\n\n" + card)

	case screenSettings:
		body := fmt.Sprintf("Workspace found: %v\nRoot: %s", m.workspaceFound, m.workspaceRoot)
		if !m.workspaceFound {
			body += "\n\nPress i to initialize a workspace here."
		}
		card := m.theme.Card.Render(body + "\n\n" + m.theme.Help.Render("esc back"))
		return wrap.Render(header + "\n" + workspaceBanner + toast + "\n\n" + card)

	default:
		return wrap.Render(header + "\n" + "unknown state")
	}
}
