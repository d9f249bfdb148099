package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lumicore/sandrun/cmd/tui/ui"
)

func main() {
	// Get API URL from environment or use default
	apiURL := os.Getenv("SANDRUN_SERVER")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	// Create model
	m := ui.NewModel(apiURL)

	// Create program
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),       // Use alternate screen buffer
		tea.WithMouseCellMotion(), // Enable mouse support
	)

	// Run program
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
