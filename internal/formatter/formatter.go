// package formatter provides functions to export channel and item listings
// to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/podkeep/podkeep/internal/records"
)

// ItemsToCSV converts an item listing to CSV format with columns: ID, Title,
// Published, Bucket, Download, Position, PlayCount
func ItemsToCSV(items []records.Item) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Published", "Bucket", "Download", "Position", "PlayCount"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range items {
		record := []string{
			item.Val.ID,
			item.Val.Title,
			formatTS(item.Val.PubTS),
			records.Bucket(item.Val.PubTS),
			downloadString(item.Meta.Download),
			strconv.FormatFloat(item.Meta.Position, 'f', 1, 64),
			strconv.Itoa(item.Meta.PlayCount),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ChannelToMarkdown converts a channel and its items to Markdown format
func ChannelToMarkdown(channel records.Channel, items []records.Item) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", channel.Val.Title))

	if channel.Val.ImageURL != "" {
		buf.WriteString(fmt.Sprintf("![Cover](%s)\n\n", channel.Val.ImageURL))
	}

	if channel.Val.Description != "" {
		buf.WriteString(fmt.Sprintf("**Description**: %s\n\n", channel.Val.Description))
	}

	buf.WriteString(fmt.Sprintf("**Items**: %d\n", len(items)))
	buf.WriteString(fmt.Sprintf("**Active**: %t\n\n", channel.Meta.Active))

	buf.WriteString("## Items\n\n")
	for i, item := range items {
		downloadPart := ""
		if item.Meta.Download.State != records.DownloadNotRequested {
			downloadPart = fmt.Sprintf(" (%s)", downloadString(item.Meta.Download))
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s\n", i+1, formatTS(item.Val.PubTS), item.Val.Title, downloadPart))
	}

	return buf.Bytes(), nil
}

// ItemsToText converts an item listing to plain text format
func ItemsToText(channel records.Channel, items []records.Item) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Channel: %s\n", channel.Val.Title))
	if channel.Val.Description != "" {
		buf.WriteString(fmt.Sprintf("Description: %s\n", channel.Val.Description))
	}
	buf.WriteString(fmt.Sprintf("Items: %d\n\n", len(items)))

	for i, item := range items {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, formatTS(item.Val.PubTS), item.Val.Title))
	}

	return buf.Bytes(), nil
}

// FeedsToCSV converts a feed listing to CSV format with columns: ID, Title,
// URL, Active, Updated
func FeedsToCSV(feeds []records.Feed) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "URL", "Active", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, feed := range feeds {
		record := []string{
			feed.Val.ID,
			feed.Val.Title,
			feed.Val.URL,
			strconv.FormatBool(feed.Meta.Active),
			formatTS(feed.Val.UpdateTS),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteCSVExport exports an item listing to a CSV file.
//
// Defaults to {channel.ID}_items.csv as the filename.
func WriteCSVExport(channel records.Channel, items []records.Item, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("%s_items.csv", channel.Val.ID)
	}

	csvData, err := ItemsToCSV(items)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(filepath, csvData, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return filepath, nil
}

// WriteMarkdownExport exports a channel listing to a Markdown file.
//
// Defaults to {channel.ID}.md as the filename.
func WriteMarkdownExport(channel records.Channel, items []records.Item, filepath string) (string, error) {
	if filepath == "" {
		filepath = fmt.Sprintf("%s.md", channel.Val.ID)
	}

	mdData, err := ChannelToMarkdown(channel, items)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	if err := os.WriteFile(filepath, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}

	return filepath, nil
}

func formatTS(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02")
}

func downloadString(s records.DownloadStatus) string {
	switch s.State {
	case records.DownloadOk:
		return fmt.Sprintf("ok (%d bytes)", s.Size)
	case records.DownloadError:
		return fmt.Sprintf("error: %s", s.Error)
	default:
		return string(s.State)
	}
}
