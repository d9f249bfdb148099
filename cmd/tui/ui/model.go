package ui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/lumicore/sandrun/cmd/tui/client"
	"github.com/lumicore/sandrun/pkg/models"
)

// ViewState represents the current view.
type ViewState int

const (
	ViewEditor ViewState = iota
	ViewHistory
	ViewJobDetail
	ViewFilePicker
	ViewHelp
)

// filePickerTarget tracks what the open file picker is selecting for.
type filePickerTarget int

const (
	targetScript filePickerTarget = iota
	targetImage
)

// JobInfo combines submission metadata with its harvested result.
type JobInfo struct {
	ID        string
	Status    models.JobStatus
	Result    *models.RunResult
	CreatedAt time.Time
}

// Model is the main TUI model.
type Model struct {
	client *client.Client
	apiURL string

	// Current state
	state  ViewState
	width  int
	height int

	// Components
	editor     textarea.Model
	spinner    spinner.Model
	filePicker filepicker.Model
	pickTarget filePickerTarget

	// Attached input image
	attachedImagePath string
	attachedImageData []byte

	// sessionID groups the attempts submitted in one TUI run so the
	// diagnostic instrumentation's consecutive-failure count carries
	// across retries.
	sessionID string

	// Job management
	currentJob   *JobInfo
	jobHistory   []JobInfo
	historyIndex int
	isRunning    bool

	// Status
	statusMsg string
	errorMsg  string
}

// NewModel creates a new TUI model.
func NewModel(apiURL string) Model {
	ta := textarea.New()
	ta.Placeholder = "Enter your guest program here or press 'f' to load from file..."
	ta.Focus()
	ta.CharLimit = 1024 * 1024 // 1MB
	ta.SetWidth(80)
	ta.SetHeight(20)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	fp := filepicker.New()
	fp.AllowedTypes = []string{".py"}
	fp.Height = 15

	return Model{
		client:       client.NewClient(apiURL),
		apiURL:       apiURL,
		state:        ViewEditor,
		editor:       ta,
		spinner:      sp,
		filePicker:   fp,
		sessionID:    uuid.New().String(),
		jobHistory:   []JobInfo{},
		historyIndex: 0,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.checkHealth(),
	)
}

// Messages.
type (
	healthCheckMsg struct {
		err error
	}

	runStartMsg struct{}

	runResultMsg struct {
		result *models.RunResult
		err    error
	}

	fileSelectedMsg struct {
		path    string
		content []byte
		err     error
		target  filePickerTarget
	}
)

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == ViewEditor || m.state == ViewHistory {
				return m, tea.Quit
			}
			// For other views, go back to editor
			m.state = ViewEditor
			m.errorMsg = ""
			return m, nil

		case "esc":
			if m.state != ViewEditor {
				m.state = ViewEditor
				m.errorMsg = ""
			}
			return m, nil

		case "?":
			if m.state == ViewHelp {
				m.state = ViewEditor
			} else {
				m.state = ViewHelp
			}
			return m, nil

		case "tab":
			// Toggle between editor and history
			switch m.state {
			case ViewEditor:
				m.state = ViewHistory
			case ViewHistory:
				m.state = ViewEditor
			}
			return m, nil
		}

		// View-specific keys
		switch m.state {
		case ViewEditor:
			return m.handleEditorKeys(msg)
		case ViewHistory:
			return m.handleHistoryKeys(msg)
		case ViewJobDetail:
			return m.handleJobDetailKeys(msg)
		case ViewFilePicker:
			return m.handleFilePickerKeys(msg)
		case ViewHelp:
			return m.handleHelpKeys(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.editor.SetWidth(min(msg.Width-10, 100))
		m.editor.SetHeight(min(msg.Height-15, 25))

	case healthCheckMsg:
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("API server unreachable: %v", msg.err)
		} else {
			m.statusMsg = "Connected to API server"
		}

	case runStartMsg:
		m.isRunning = true
		m.statusMsg = "Running..."
		m.errorMsg = ""

	case runResultMsg:
		m.isRunning = false
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("Run failed: %v", msg.err)
		} else {
			jobInfo := &JobInfo{
				ID:        msg.result.JobID,
				Status:    msg.result.Status,
				Result:    msg.result,
				CreatedAt: time.Now(),
			}
			m.currentJob = jobInfo
			m.jobHistory = append([]JobInfo{*jobInfo}, m.jobHistory...)
			m.state = ViewJobDetail
		}

	case fileSelectedMsg:
		if msg.err != nil {
			m.errorMsg = fmt.Sprintf("Failed to load file: %v", msg.err)
		} else if msg.target == targetImage {
			m.attachedImagePath = msg.path
			m.attachedImageData = msg.content
			m.statusMsg = "Attached image: " + msg.path
		} else {
			m.editor.SetValue(string(msg.content))
			m.statusMsg = "Loaded file: " + msg.path
		}
		m.state = ViewEditor

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Update components based on current state
	switch m.state {
	case ViewEditor:
		m.editor, cmd = m.editor.Update(msg)
		cmds = append(cmds, cmd)
	case ViewFilePicker:
		m.filePicker, cmd = m.filePicker.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the UI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var content string

	switch m.state {
	case ViewEditor:
		content = m.viewEditor()
	case ViewHistory:
		content = m.viewHistory()
	case ViewJobDetail:
		content = m.viewJobDetail()
	case ViewFilePicker:
		content = m.viewFilePicker()
	case ViewHelp:
		content = m.viewHelp()
	}

	// Status bar
	statusBar := m.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, content, statusBar)
}

// Helper commands

func (m Model) checkHealth() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := m.client.HealthCheck(ctx)
		return healthCheckMsg{err: err}
	}
}

func (m Model) runCode() tea.Cmd {
	return func() tea.Msg {
		return runStartMsg{}
	}
}

func (m Model) submitRun() tea.Cmd {
	params := client.RunParams{
		Code:      m.editor.Value(),
		Image:     m.attachedImageData,
		ImageName: m.attachedImagePath,
		SessionID: m.sessionID,
	}
	if m.currentJob != nil {
		params.PreviousAttemptID = m.currentJob.ID
	}

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		result, err := m.client.SubmitRun(ctx, params)
		return runResultMsg{result: result, err: err}
	}
}

func (m Model) loadFile(path string, target filePickerTarget) tea.Cmd {
	return func() tea.Msg {
		content, err := os.ReadFile(path)
		if err != nil {
			return fileSelectedMsg{path: path, err: err, target: target}
		}
		return fileSelectedMsg{path: path, content: content, target: target}
	}
}

func (m Model) renderStatusBar() string {
	left := fmt.Sprintf(" API: %s  session: %s ", m.apiURL, truncate(m.sessionID, 8))

	var right string
	if m.errorMsg != "" {
		right = fmt.Sprintf(" ERROR: %s ", m.errorMsg)
		bar := statusBarErrorStyle.Render(left) + statusBarErrorStyle.Render(right)
		return statusBarErrorStyle.Width(m.width).Render(bar)
	} else if m.isRunning {
		right = fmt.Sprintf(" %s Running... ", m.spinner.View())
		bar := statusBarStyle.Render(left) + statusBarStyle.Render(right)
		return statusBarStyle.Width(m.width).Render(bar)
	} else if m.statusMsg != "" {
		right = fmt.Sprintf(" %s ", m.statusMsg)
		bar := statusBarSuccessStyle.Render(left) + statusBarSuccessStyle.Render(right)
		return statusBarSuccessStyle.Width(m.width).Render(bar)
	}

	right = " Ready "
	bar := statusBarStyle.Render(left) + statusBarStyle.Render(right)
	return statusBarStyle.Width(m.width).Render(bar)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
