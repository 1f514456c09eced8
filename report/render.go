package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
)

// Markdown is the report text followed by a numbered list of its sources.
func Markdown(r *Report) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimRight(r.Text, "\n"))
	sb.WriteString("\n")
	if len(r.Sources) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for i, s := range r.Sources {
			title := s.Title
			if title == "" {
				title = s.URI
			}
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, title, s.URI)
		}
	}
	fmt.Fprintf(&sb, "\n_Generated at %s_\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	return sb.String()
}

// Render prints the report for a terminal, style is a glamour style name
// such as dark, light or notty.
func Render(w io.Writer, r *Report, style string) error {
	out, err := glamour.Render(Markdown(r), style)
	if err != nil {
		return errors.Wrapf(err, "render report with style %s", style)
	}
	_, err = io.WriteString(w, out)
	return err
}

// Save writes the report as markdown, sources included, to path.
func Save(path string, r *Report) error {
	if err := os.WriteFile(path, []byte(Markdown(r)), 0o644); err != nil {
		return errors.Wrapf(err, "save report to %s", path)
	}
	return nil
}
