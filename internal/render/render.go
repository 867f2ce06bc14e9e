package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// ReportFile is the name of the run report written into the niche directory.
const ReportFile = "report.md"

// SkippedTask is a task dropped by a skip policy.
type SkippedTask struct {
	Slug   string
	Stage  string
	Reason string
}

// RunSummary combines everything needed to report on one generation run.
type RunSummary struct {
	RunID          string
	Niche          string
	Backend        string
	ImageBackend   string
	OutputDir      string
	StartedAt      time.Time
	Duration       time.Duration
	FallbackPlan   bool // Planner substituted the fallback plan
	Clusters       int
	Planned        int // Tasks after truncation to max posts
	Resumed        int // Tasks already done in an earlier run
	Posts          int // Posts written in this run
	Skipped        []SkippedTask
	Images         int
	FallbackImages int
	SkippedImages  int
	Linked         int
	Unchanged      int
	LinkSkipped    int
	PublishURL     string
}

// RenderMarkdownReport builds the markdown run report.
func RenderMarkdownReport(s RunSummary) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("# Generation Report - %s\n\n", s.Niche))
	b.WriteString(fmt.Sprintf("- **Run:** `%s`\n", s.RunID))
	b.WriteString(fmt.Sprintf("- **Started:** %s\n", s.StartedAt.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("- **Duration:** %s\n", s.Duration.Round(time.Millisecond)))
	b.WriteString(fmt.Sprintf("- **Backends:** text=%s, images=%s\n", s.Backend, s.ImageBackend))
	if s.PublishURL != "" {
		b.WriteString(fmt.Sprintf("- **Published:** %s\n", s.PublishURL))
	}
	b.WriteString("\n")

	b.WriteString("## Plan\n\n")
	plan := fmt.Sprintf("%d clusters, %d tasks", s.Clusters, s.Planned)
	if s.FallbackPlan {
		plan += " (fallback plan)"
	}
	b.WriteString(plan + "\n\n")

	b.WriteString("## Posts\n\n")
	b.WriteString("| Written | Resumed | Skipped | Images | Placeholder images | Dropped images |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	b.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d | %d |\n\n",
		s.Posts, s.Resumed, len(s.Skipped), s.Images, s.FallbackImages, s.SkippedImages))

	if len(s.Skipped) > 0 {
		b.WriteString("### Skipped tasks\n\n")
		for _, t := range s.Skipped {
			b.WriteString(fmt.Sprintf("- `%s` (%s): %s\n", t.Slug, t.Stage, oneLine(t.Reason)))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Links\n\n")
	b.WriteString(fmt.Sprintf("%d linked, %d unchanged, %d skipped\n", s.Linked, s.Unchanged, s.LinkSkipped))

	return b.String()
}

// WriteReport writes the markdown report into dir and returns its path.
func WriteReport(s RunSummary, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	filePath := filepath.Join(dir, ReportFile)
	if err := os.WriteFile(filePath, []byte(RenderMarkdownReport(s)), 0644); err != nil {
		return "", fmt.Errorf("failed to write report file %s: %w", filePath, err)
	}
	return filePath, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(12)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// TerminalSummary renders a compact boxed summary for the terminal.
func TerminalSummary(s RunSummary) string {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}

	posts := okStyle.Render(fmt.Sprintf("%d written", s.Posts))
	if s.Resumed > 0 {
		posts += fmt.Sprintf(", %d resumed", s.Resumed)
	}
	if len(s.Skipped) > 0 {
		posts += ", " + warnStyle.Render(fmt.Sprintf("%d skipped", len(s.Skipped)))
	}

	images := fmt.Sprintf("%d", s.Images)
	if s.FallbackImages > 0 {
		images += ", " + warnStyle.Render(fmt.Sprintf("%d placeholders", s.FallbackImages))
	}

	plan := fmt.Sprintf("%d clusters, %d tasks", s.Clusters, s.Planned)
	if s.FallbackPlan {
		plan += ", " + warnStyle.Render("fallback")
	}

	rows := []string{
		titleStyle.Render(s.Niche),
		row("Plan", plan),
		row("Posts", posts),
		row("Images", images),
		row("Links", fmt.Sprintf("%d linked, %d unchanged", s.Linked, s.Unchanged)),
		row("Output", s.OutputDir),
		row("Duration", s.Duration.Round(time.Millisecond).String()),
	}
	if s.PublishURL != "" {
		rows = append(rows, row("Published", s.PublishURL))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
