package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"litman/models"

	"github.com/charmbracelet/lipgloss"
)

var styles = struct {
	heading lipgloss.Style
	label   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	muted   lipgloss.Style
}{
	heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
	label:   lipgloss.NewStyle().Width(16).Foreground(lipgloss.Color("8")),
	ok:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
	warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
}

func formatCounts(c models.DiffCounts) string {
	return fmt.Sprintf("%d inserted, %d updated, %d deleted, %d links added, %d links removed",
		c.Inserted, c.Updated, c.Deleted, c.LinksInserted, c.LinksDeleted)
}

func printCounts(out io.Writer, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %s %d\n", styles.label.Render(name), counts[name])
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
