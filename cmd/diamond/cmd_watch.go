// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/diamondcore/engine/driver"
)

var watchPollInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <base-url> <search-id>",
	Short: "open a live dashboard of a running search's stats (diamond's HTTP API)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newWatchModel(args[0], args[1], watchPollInterval)
		p := tea.NewProgram(m)
		_, err := p.Run()
		return err
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchPollInterval, "interval", 2*time.Second, "stats poll interval")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

type statsMsg struct {
	stats driver.Stats
	err   error
}

type watchModel struct {
	baseURL  string
	searchID string
	interval time.Duration
	client   *http.Client

	table    table.Model
	lastErr  error
	polls    int
	quitting bool
}

func newWatchModel(baseURL, searchID string, interval time.Duration) watchModel {
	columns := []table.Column{
		{Title: "Filter", Width: 24},
		{Title: "Seen", Width: 10},
		{Title: "Pass", Width: 10},
		{Title: "Selectivity", Width: 12},
		{Title: "Cost (ns)", Width: 12},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(false), table.WithHeight(12))
	return watchModel{baseURL: baseURL, searchID: searchID, interval: interval, client: &http.Client{Timeout: 5 * time.Second}, table: t}
}

func (m watchModel) Init() tea.Cmd {
	return m.poll()
}

func (m watchModel) poll() tea.Cmd {
	return func() tea.Msg {
		url := fmt.Sprintf("%s/v1/search/%s", m.baseURL, m.searchID)
		resp, err := m.client.Get(url)
		if err != nil {
			return statsMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return statsMsg{err: fmt.Errorf("stats request: HTTP %d", resp.StatusCode)}
		}
		var st driver.Stats
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return statsMsg{err: err}
		}
		return statsMsg{stats: st}
	}
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg { return tickMsg{} })
}

type tickMsg struct{}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, m.poll()
	case statsMsg:
		m.polls++
		if msg.err != nil {
			m.lastErr = msg.err
		} else {
			m.lastErr = nil
			rows := make([]table.Row, 0, len(msg.stats.PerFilter))
			for _, s := range msg.stats.PerFilter {
				rows = append(rows, table.Row{
					s.Name,
					fmt.Sprintf("%d", s.ObjectsSeen),
					fmt.Sprintf("%d", s.ObjectsPass),
					fmt.Sprintf("%.3f", s.Selectivity),
					fmt.Sprintf("%.0f", s.Cost),
				})
			}
			m.table.SetRows(rows)
		}
		return m, tick(m.interval)
	}
	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return ""
	}
	header := headerStyle.Render(fmt.Sprintf("diamond watch — search %s (poll #%d)", m.searchID, m.polls))
	body := m.table.View()
	footer := dimStyle.Render("q to quit")
	if m.lastErr != nil {
		footer = errStyle.Render(m.lastErr.Error())
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", footer)
}
