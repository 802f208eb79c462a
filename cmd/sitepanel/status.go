package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/llamawrapper/sitepanel/internal/panel"
	"github.com/llamawrapper/sitepanel/internal/site"
	"github.com/llamawrapper/sitepanel/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the upstream services once and print the panels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStack(appConfig, logger, false)
		if err != nil {
			return err
		}
		defer st.Close()

		snap := st.site.Bootstrap(context.Background())
		fmt.Fprintln(cmd.OutOrStdout(), renderStatus(snap))
		return nil
	},
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00bcd4")).MarginTop(1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff00"))
	downStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4d4d"))
	unknownStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffcc00"))
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func statusStyle(s string) lipgloss.Style {
	switch s {
	case status.RowOK:
		return okStyle
	case status.RowDown:
		return downStyle
	default:
		return unknownStyle
	}
}

// renderStatus lays a snapshot out for a terminal. Skipped panels are left out.
func renderStatus(snap *site.Snapshot) string {
	var b strings.Builder

	for _, line := range snap.Boot {
		b.WriteString(dimStyle.Render(line))
		b.WriteByte('\n')
	}

	if snap.Posts != nil {
		src := "snapshot"
		if !snap.Posts.FromSnapshot {
			src = "fallback"
		}
		b.WriteString(headingStyle.Render(fmt.Sprintf("posts (%s, generated %s)", src, snap.Posts.GeneratedAt)))
		b.WriteByte('\n')
		b.WriteString(postsTable(snap.Posts.Posts))
		b.WriteByte('\n')
	}

	if len(snap.System) > 0 {
		b.WriteString(headingStyle.Render("system"))
		b.WriteByte('\n')
		b.WriteString(systemTable(snap.System))
		b.WriteByte('\n')
	}

	if snap.Runtime != nil {
		b.WriteString(headingStyle.Render("runtime"))
		b.WriteByte('\n')
		b.WriteString(runtimeBlock(*snap.Runtime))
		b.WriteByte('\n')
	}

	if snap.Chat != "" {
		b.WriteString(dimStyle.Render(snap.Chat))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func postsTable(posts []panel.PostView) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
		Headers("id", "title", "tags", "published")
	for _, p := range posts {
		t.Row(p.ID, p.Title, p.Tags, p.Published)
	}
	return t.String()
}

func systemTable(rows []status.SystemRow) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
		Headers("resource", "type", "status", "docs", "updated", "endpoint")
	for _, r := range rows {
		t.Row(r.Resource, r.Type, statusStyle(r.Status).Render(r.Status), r.Docs, r.Updated, r.Endpoint)
	}
	return t.String()
}

func runtimeBlock(v panel.RuntimeView) string {
	if !v.Available {
		return downStyle.Render(v.Status) + " " + dimStyle.Render(v.Source)
	}
	fields := [][2]string{
		{"source", v.Source},
		{"status", v.Status},
		{"model", v.Model},
		{"path", v.Path},
		{"type", v.Type},
		{"loaded", v.Loaded},
		{"active requests", v.ActiveRequests},
		{"queue size", v.QueueSize},
		{"active streams", v.ActiveStreams},
		{"config", v.Config},
	}
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, "%s %s\n", dimStyle.Render(fmt.Sprintf("%-16s", f[0])), f[1])
	}
	if v.Message != "" {
		b.WriteString(unknownStyle.Render(v.Message))
	}
	return strings.TrimRight(b.String(), "\n")
}
