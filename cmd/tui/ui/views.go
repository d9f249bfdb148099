package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lumicore/sandrun/pkg/models"
)

// viewEditor renders the code editor view.
func (m Model) viewEditor() string {
	var b strings.Builder

	title := titleStyle.Render("sandrun - Guest Program Editor")
	b.WriteString(title + "\n\n")

	attach := "no input image attached (press 'i' to attach)"
	if m.attachedImagePath != "" {
		attach = fmt.Sprintf("input image: %s", m.attachedImagePath)
	}
	b.WriteString(mutedStyle.Render(attach) + "\n\n")

	editorBox := activeEditorStyle.Render(m.editor.View())
	b.WriteString(editorBox + "\n\n")

	runBtn := activeButtonStyle.Render(" Run (Enter) ")
	fileBtn := inactiveButtonStyle.Render(" Load File (f) ")
	historyBtn := inactiveButtonStyle.Render(" History (Tab) ")
	helpBtn := inactiveButtonStyle.Render(" Help (?) ")

	buttons := lipgloss.JoinHorizontal(lipgloss.Left, runBtn, " ", fileBtn, " ", historyBtn, " ", helpBtn)
	b.WriteString(buttons + "\n")

	return b.String()
}

// viewHistory renders the job history view.
func (m Model) viewHistory() string {
	var b strings.Builder

	title := titleStyle.Render("Run History")
	b.WriteString(title + "\n\n")

	if len(m.jobHistory) == 0 {
		b.WriteString(mutedStyle.Render("No jobs yet. Press Tab to go back to editor.\n"))
		return b.String()
	}

	for i, job := range m.jobHistory {
		var itemStyle lipgloss.Style
		var prefix string

		if i == m.historyIndex {
			itemStyle = selectedItemStyle
			prefix = "▶ "
		} else {
			itemStyle = normalItemStyle
			prefix = "  "
		}

		var statusIcon string
		var statusColor lipgloss.Style
		switch job.Status {
		case models.StatusSucceeded:
			statusIcon = "✓"
			statusColor = successStyle
		case models.StatusRunning:
			statusIcon = "●"
			statusColor = warningStyle
		case models.StatusPending:
			statusIcon = "○"
			statusColor = mutedStyle
		case models.StatusFailed, models.StatusTimedOut, models.StatusCancelled:
			statusIcon = "✗"
			statusColor = errorStyle
		}

		timestamp := job.CreatedAt.Format("15:04:05")
		category := ""
		if job.Result != nil && job.Result.Category != "" {
			category = string(job.Result.Category)
		}
		jobInfo := fmt.Sprintf("%s%s %s | %-8s | %s",
			prefix,
			statusColor.Render(statusIcon),
			timestamp,
			category,
			truncate(job.ID, 8),
		)

		b.WriteString(itemStyle.Render(jobInfo) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓: navigate  Enter: view details  d: delete  c: clear  Tab: back to editor  q: quit\n"))

	return b.String()
}

// viewJobDetail renders the job detail view.
func (m Model) viewJobDetail() string {
	if m.currentJob == nil {
		return mutedStyle.Render("No job selected")
	}

	var b strings.Builder

	job := m.currentJob

	title := titleStyle.Render(fmt.Sprintf("Job Details: %s", truncate(job.ID, 12)))
	b.WriteString(title + "\n\n")

	infoBox := boxStyle.Render(fmt.Sprintf(
		"Status: %s\nCreated: %s",
		colorizeStatus(job.Status),
		job.CreatedAt.Format("2006-01-02 15:04:05"),
	))
	b.WriteString(infoBox + "\n\n")

	if job.Result != nil {
		result := job.Result

		var resultSummary string
		switch result.Status {
		case models.StatusSucceeded:
			resultSummary = successStyle.Render("✓ Run Succeeded")
		default:
			resultSummary = errorStyle.Render(fmt.Sprintf("✗ %s", result.Status))
		}
		b.WriteString(resultSummary + "\n\n")

		details := fmt.Sprintf(
			"Return Code: %d\nDuration: %s",
			result.ReturnCode,
			formatDuration(result.Duration),
		)
		if result.Category != "" {
			details += fmt.Sprintf("\nCategory: %s", result.Category)
		}
		if result.ErrorMessage != "" {
			details += fmt.Sprintf("\nError: %s", result.ErrorMessage)
		}
		b.WriteString(boxStyle.Render(details) + "\n\n")

		if result.Stdout != "" {
			stdoutBox := boxStyle.Width(min(m.width-10, 100)).Render(
				fmt.Sprintf("STDOUT:\n%s", truncate(result.Stdout, 500)),
			)
			b.WriteString(stdoutBox + "\n\n")
		}

		if result.Stderr != "" {
			stderrBox := boxStyle.Width(min(m.width-10, 100)).Render(
				fmt.Sprintf("STDERR:\n%s", truncate(result.Stderr, 500)),
			)
			b.WriteString(stderrBox + "\n\n")
		}

		if len(result.OutputFiles) > 0 {
			var files strings.Builder
			files.WriteString("OUTPUT FILES:\n")
			for _, f := range result.OutputFiles {
				fmt.Fprintf(&files, "  %s (%s, %d bytes)\n", f.Name, f.Type, f.Size)
			}
			b.WriteString(boxStyle.Render(strings.TrimRight(files.String(), "\n")) + "\n\n")
		}
	} else {
		processing := warningStyle.Render(fmt.Sprintf("%s Running...", m.spinner.View()))
		b.WriteString(processing + "\n\n")
	}

	b.WriteString(helpStyle.Render("Esc: back to editor  q: quit\n"))

	return b.String()
}

// viewFilePicker renders the file picker view.
func (m Model) viewFilePicker() string {
	var b strings.Builder

	title := "Select a Guest Program"
	if m.pickTarget == targetImage {
		title = "Select an Input Image"
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")

	b.WriteString(m.filePicker.View() + "\n\n")

	b.WriteString(helpStyle.Render("↑/↓: navigate  Enter: select  Esc: cancel\n"))

	return b.String()
}

// viewHelp renders the help screen.
func (m Model) viewHelp() string {
	var b strings.Builder

	title := titleStyle.Render("Help - Keyboard Shortcuts")
	b.WriteString(title + "\n\n")

	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Enter", "Submit the guest program for execution (in editor)"},
		{"f", "Open file picker to load a guest program from file"},
		{"i", "Open file picker to attach an input image"},
		{"n", "Start a new session (resets diagnostic failure streak)"},
		{"Tab", "Toggle between editor and history"},
		{"↑/↓", "Navigate in history or file picker"},
		{"Enter", "View job details (in history)"},
		{"?", "Show this help screen"},
		{"Esc", "Go back to editor"},
		{"q / Ctrl+C", "Quit the application"},
	}

	for _, sc := range shortcuts {
		line := fmt.Sprintf("%s  %s",
			helpKeyStyle.Render(fmt.Sprintf("%-12s", sc.key)),
			sc.desc,
		)
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")

	features := titleStyle.Render("Features")
	b.WriteString(features + "\n\n")

	featureList := []string{
		"• Write or paste a guest program directly in the editor",
		"• Load a program from a local .py file",
		"• Attach a microscopy image as sandbox input",
		"• Submit to the admission front-end and wait for the result",
		"• Browse run history and view harvested output files",
		"• See stdout, stderr, and the derived failure category",
	}

	for _, feat := range featureList {
		b.WriteString(mutedStyle.Render(feat) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Press Esc or ? to close help\n"))

	return b.String()
}

// Helper functions

func colorizeStatus(status models.JobStatus) string {
	switch status {
	case models.StatusSucceeded:
		return successStyle.Render(string(status))
	case models.StatusRunning:
		return warningStyle.Render(string(status))
	case models.StatusPending:
		return mutedStyle.Render(string(status))
	case models.StatusFailed, models.StatusTimedOut, models.StatusCancelled:
		return errorStyle.Render(string(status))
	default:
		return string(status)
	}
}
