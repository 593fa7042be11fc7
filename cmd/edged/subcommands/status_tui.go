package subcommands

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/edgecore/edged/ipc"
)

var headerStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)

// snapshotMsg carries one ipc.Snapshot into the bubbletea event loop.
type snapshotMsg ipc.Snapshot

// streamClosedMsg signals the status socket connection ended.
type streamClosedMsg struct{}

type statusModel struct {
	table  table.Model
	snap   ipc.Snapshot
	stream <-chan ipc.Snapshot
	closed bool
}

func newStatusModel(stream <-chan ipc.Snapshot) statusModel {
	cols := []table.Column{
		{Title: "Component", Width: 24},
		{Title: "State", Width: 18},
		{Title: "Status", Width: 40},
	}
	t := table.New(table.WithColumns(cols), table.WithFocused(false), table.WithHeight(15))
	return statusModel{table: t, stream: stream}
}

func (m statusModel) Init() tea.Cmd {
	return waitForSnapshot(m.stream)
}

func waitForSnapshot(stream <-chan ipc.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-stream
		if !ok {
			return streamClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case snapshotMsg:
		m.snap = ipc.Snapshot(msg)
		m.table.SetRows(rowsOf(m.snap))
		return m, waitForSnapshot(m.stream)
	case streamClosedMsg:
		m.closed = true
		return m, tea.Quit
	}
	return m, nil
}

func (m statusModel) View() string {
	header := headerStyle.Render(fmt.Sprintf("edged  generation=%s  overall=%s", m.snap.Generation, m.snap.Overall))
	if m.closed {
		return header + "\n\nstatus socket disconnected\n"
	}
	return header + "\n" + m.table.View() + "\npress q to quit\n"
}

func rowsOf(snap ipc.Snapshot) []table.Row {
	rows := make([]table.Row, 0, len(snap.Components))
	for _, c := range snap.Components {
		rows = append(rows, table.Row{c.Name, c.State, c.StatusMessage})
	}
	return rows
}

func runStatusWatch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := ipc.Stream(ctx, SocketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w (is the daemon running?)", SocketPath, err)
	}

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return watchPlain(ctx, stream)
	}

	p := tea.NewProgram(newStatusModel(stream), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// watchPlain prints each snapshot as a plain-text block followed by a "---"
// line instead of the alt-screen table,
// for piped output or redirected stdout where the table would be useless.
func watchPlain(ctx context.Context, stream <-chan ipc.Snapshot) error {
	for {
		select {
		case snap, ok := <-stream:
			if !ok {
				return nil
			}
			printSnapshot(snap)
			fmt.Println("---")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
