package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleSummary() RunSummary {
	return RunSummary{
		RunID:          "run-1",
		Niche:          "running",
		Backend:        "placeholder",
		ImageBackend:   "placeholder",
		OutputDir:      "/tmp/sites/running",
		StartedAt:      time.Date(2024, 5, 17, 9, 0, 0, 0, time.UTC),
		Duration:       1500 * time.Millisecond,
		Clusters:       2,
		Planned:        5,
		Resumed:        1,
		Posts:          3,
		Skipped:        []SkippedTask{{Slug: "road-shoes", Stage: "outline", Reason: "bad\njson"}},
		Images:         12,
		FallbackImages: 2,
		Linked:         4,
	}
}

func TestRenderMarkdownReport(t *testing.T) {
	report := RenderMarkdownReport(sampleSummary())

	expected := []string{
		"# Generation Report - running",
		"`run-1`",
		"2024-05-17T09:00:00Z",
		"text=placeholder, images=placeholder",
		"2 clusters, 5 tasks",
		"| 3 | 1 | 1 | 12 | 2 | 0 |",
		"- `road-shoes` (outline): bad json",
		"4 linked, 0 unchanged, 0 skipped",
	}
	for _, want := range expected {
		if !strings.Contains(report, want) {
			t.Errorf("Report missing %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "fallback plan") {
		t.Error("Report should not mention fallback plan")
	}
	if strings.Contains(report, "Published") {
		t.Error("Report should not mention publishing without a URL")
	}
}

func TestRenderMarkdownReport_FallbackAndPublish(t *testing.T) {
	s := sampleSummary()
	s.FallbackPlan = true
	s.Skipped = nil
	s.PublishURL = "file:///tmp/sites/running"

	report := RenderMarkdownReport(s)
	if !strings.Contains(report, "(fallback plan)") {
		t.Error("Expected fallback plan note")
	}
	if !strings.Contains(report, "file:///tmp/sites/running") {
		t.Error("Expected publish URL")
	}
	if strings.Contains(report, "Skipped tasks") {
		t.Error("Skipped section should be omitted when nothing was skipped")
	}
}

func TestWriteReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "running")

	path, err := WriteReport(sampleSummary(), dir)
	if err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	if path != filepath.Join(dir, ReportFile) {
		t.Errorf("Unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Generation Report - running") {
		t.Errorf("Unexpected report content: %s", data)
	}
}

func TestTerminalSummary(t *testing.T) {
	out := TerminalSummary(sampleSummary())
	for _, want := range []string{"running", "3 written", "1 resumed", "1 skipped", "2 placeholders", "/tmp/sites/running"} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary missing %q:\n%s", want, out)
		}
	}
}
