package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
)

// handleEditorKeys handles keyboard input in the editor view.
func (m Model) handleEditorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg.String() {
	case "enter":
		if !m.isRunning {
			return m, tea.Batch(
				m.runCode(),
				m.submitRun(),
			)
		}

	case "f":
		// Open file picker for a script file
		m.state = ViewFilePicker
		m.pickTarget = targetScript
		m.filePicker.AllowedTypes = []string{".py"}
		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(nil)
		return m, cmd

	case "i":
		// Open file picker for an input image
		m.state = ViewFilePicker
		m.pickTarget = targetImage
		m.filePicker.AllowedTypes = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff"}
		var cmd tea.Cmd
		m.filePicker, cmd = m.filePicker.Update(nil)
		return m, cmd

	case "n":
		// Start a fresh session, disconnecting subsequent runs from the
		// diagnostic instrumentation's failure streak for this one.
		m.sessionID = newSessionID()
		m.currentJob = nil
		m.statusMsg = "Started new session"
		return m, nil

	case "ctrl+l":
		// Clear editor and detach any input image
		m.editor.Reset()
		m.attachedImagePath = ""
		m.attachedImageData = nil
		m.statusMsg = "Editor cleared"
		return m, nil
	}

	return m, tea.Batch(cmds...)
}

// handleHistoryKeys handles keyboard input in the history view.
func (m Model) handleHistoryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.historyIndex > 0 {
			m.historyIndex--
		}

	case "down", "j":
		if m.historyIndex < len(m.jobHistory)-1 {
			m.historyIndex++
		}

	case "enter":
		if len(m.jobHistory) > 0 {
			m.currentJob = &m.jobHistory[m.historyIndex]
			m.state = ViewJobDetail
		}

	case "d":
		// Delete job from history
		if len(m.jobHistory) > 0 {
			m.jobHistory = append(m.jobHistory[:m.historyIndex], m.jobHistory[m.historyIndex+1:]...)
			if m.historyIndex >= len(m.jobHistory) && m.historyIndex > 0 {
				m.historyIndex--
			}
			m.statusMsg = "Job removed from history"
		}

	case "c":
		// Clear history
		m.jobHistory = []JobInfo{}
		m.historyIndex = 0
		m.statusMsg = "History cleared"
	}

	return m, nil
}

// handleJobDetailKeys handles keyboard input in the job detail view.
func (m Model) handleJobDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "backspace":
		// Go back to history
		m.state = ViewHistory
	}

	return m, nil
}

// handleFilePickerKeys handles keyboard input in the file picker view.
func (m Model) handleFilePickerKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if didSelect, path := m.filePicker.DidSelectFile(msg); didSelect {
		return m, m.loadFile(path, m.pickTarget)
	}

	if didSelect, _ := m.filePicker.DidSelectDisabledFile(msg); didSelect {
		m.errorMsg = "File type not supported"
		m.state = ViewEditor
		return m, nil
	}

	return m, nil
}

// handleHelpKeys handles keyboard input in the help view.
func (m Model) handleHelpKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Any key exits help
	m.state = ViewEditor
	return m, nil
}

func newSessionID() string {
	return uuid.New().String()
}
