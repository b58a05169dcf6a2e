package sink

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/plog/internal/levels"
)

// levelColors maps the lower bound of a level band to its color.
var levelColors = []struct {
	floor int
	color lipgloss.Color
	bold  bool
}{
	{levels.Critical, lipgloss.Color("196"), true},
	{levels.Error, lipgloss.Color("160"), false},
	{levels.Warning, lipgloss.Color("214"), false},
	{levels.Info, lipgloss.Color("33"), false},
	{0, lipgloss.Color("240"), false},
}

// NewConsole creates a stream sink for a terminal. Level names are colored
// by band when w supports colors; otherwise the output equals the plain
// format.
func NewConsole(w io.Writer, lv *levels.Registry, opts ...FileOption) (*File, error) {
	renderer := lipgloss.NewRenderer(w)
	styles := make([]lipgloss.Style, len(levelColors))
	for i, c := range levelColors {
		styles[i] = renderer.NewStyle().Foreground(c.color).Bold(c.bold)
	}

	f := NewFormatter(lv)
	f.LevelStyle = func(level int, padded string) string {
		for i, c := range levelColors {
			if level >= c.floor {
				return styles[i].Render(padded)
			}
		}
		return padded
	}

	return NewStream(w, append([]FileOption{WithFormatter(f.Format)}, opts...)...)
}
