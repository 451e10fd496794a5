package slack

import (
	"fmt"
	"strings"

	"news_scanner/internal/domain"
)

// FormatNews renders one item for the webhook feed.
func FormatNews(item domain.SearchResult) string {
	return fmt.Sprintf("📰 *%s*\n<%s|Open>", item.Title, item.URL)
}

// FormatSummary renders every result of a search for the reporting channel.
func FormatSummary(query string, results []domain.SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s* (%d results)\n", query, len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. <%s|%s>", i+1, r.URL, r.Title)
		if r.Date != "" {
			fmt.Fprintf(&sb, " (%s)", r.Date)
		}
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}
