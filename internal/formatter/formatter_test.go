package formatter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/podkeep/podkeep/internal/records"
)

func sampleChannel() records.Channel {
	return records.NewChannel(records.ChannelVal{
		ID:          "c1",
		FeedID:      "f1",
		Title:       "Night Shift Radio",
		Description: "Late tapes",
		ImageURL:    "https://example.com/cover.jpg",
		UpdateTS:    time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC).Unix(),
	})
}

func sampleItems() []records.Item {
	one := records.NewItem(records.ItemVal{
		ID:        "i1",
		ChannelID: "c1",
		Title:     "Episode 1",
		PubTS:     time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC).Unix(),
		UpdateTS:  100,
	})
	one.Meta.Position = 42.5
	one.Meta.PlayCount = 2
	one.Meta.Download = records.DownloadStatus{State: records.DownloadOk, Size: 2048}

	two := records.NewItem(records.ItemVal{
		ID:        "i2",
		ChannelID: "c1",
		Title:     "Episode 2",
		PubTS:     time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC).Unix(),
		UpdateTS:  100,
	})

	return []records.Item{one, two}
}

func TestItemsToCSV(t *testing.T) {
	data, err := ItemsToCSV(sampleItems())
	if err != nil {
		t.Fatalf("failed to generate CSV: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("generated CSV does not parse: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[0][6] != "PlayCount" {
		t.Errorf("unexpected headers: %v", rows[0])
	}

	first := rows[1]
	if first[0] != "i1" || first[2] != "2024-01-15" || first[3] != "2024-01" {
		t.Errorf("unexpected first row: %v", first)
	}
	if first[4] != "ok (2048 bytes)" {
		t.Errorf("unexpected download column: %q", first[4])
	}
	if first[5] != "42.5" || first[6] != "2" {
		t.Errorf("unexpected meta columns: %v", first)
	}
}

func TestFeedsToCSV(t *testing.T) {
	feed := records.NewFeed(records.FeedVal{
		ID:       "f1",
		Title:    "Night Shift Radio",
		URL:      "https://example.com/rss",
		UpdateTS: time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC).Unix(),
	})

	data, err := FeedsToCSV([]records.Feed{feed})
	if err != nil {
		t.Fatalf("failed to generate CSV: %v", err)
	}

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("generated CSV does not parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus 1 row, got %d", len(rows))
	}
	if rows[1][2] != "https://example.com/rss" || rows[1][3] != "true" {
		t.Errorf("unexpected feed row: %v", rows[1])
	}
}

func TestChannelToMarkdown(t *testing.T) {
	data, err := ChannelToMarkdown(sampleChannel(), sampleItems())
	if err != nil {
		t.Fatalf("failed to generate Markdown: %v", err)
	}
	md := string(data)

	for _, want := range []string{
		"# Night Shift Radio",
		"![Cover](https://example.com/cover.jpg)",
		"**Description**: Late tapes",
		"**Items**: 2",
		"1. 2024-01-15 - Episode 1 (ok (2048 bytes))",
		"2. 2024-03-15 - Episode 2\n",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestItemsToText(t *testing.T) {
	data, err := ItemsToText(sampleChannel(), sampleItems())
	if err != nil {
		t.Fatalf("failed to generate text: %v", err)
	}
	text := string(data)

	if !strings.Contains(text, "Channel: Night Shift Radio") {
		t.Errorf("text missing channel line:\n%s", text)
	}
	if !strings.Contains(text, "1. 2024-01-15 - Episode 1") {
		t.Errorf("text missing item line:\n%s", text)
	}
}

func TestWriteExports(t *testing.T) {
	t.Run("CSV export", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "c1_items.csv")
		got, err := WriteCSVExport(sampleChannel(), sampleItems(), path)
		if err != nil {
			t.Fatalf("failed to write CSV export: %v", err)
		}
		if got != path {
			t.Errorf("expected returned path %q, got %q", path, got)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("export file missing: %v", err)
		}
	})

	t.Run("Markdown export", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.md")
		got, err := WriteMarkdownExport(sampleChannel(), sampleItems(), path)
		if err != nil {
			t.Fatalf("failed to write Markdown export: %v", err)
		}
		if got != path {
			t.Errorf("expected returned path %q, got %q", path, got)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read export: %v", err)
		}
		if !strings.Contains(string(data), "# Night Shift Radio") {
			t.Error("export missing channel heading")
		}
	})
}
