package internal

import tea "github.com/charmbracelet/bubbletea"

// RunClient starts the terminal client against the given server.
func RunClient(serverURL, username string) error {
	program := tea.NewProgram(NewTUIModel(serverURL, username))
	_, err := program.Run()
	return err
}
