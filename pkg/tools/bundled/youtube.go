package bundled

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/pepperkit/go-pepper/pkg/tools"
)

const maxVideoResults = 3

type youtubeArgs struct {
	Query string `json:"query" jsonschema:"description=What to search for on YouTube"`
}

// YouTubeSearch finds videos matching a query using the YouTube Data
// API. Requires an API key with the Data API enabled.
func YouTubeSearch(apiKey string) tools.Tool {
	return tools.Tool{
		Name:        "search_youtube_video",
		Description: "Search YouTube and return the top matching videos with their links.",
		Parameters:  tools.Reflect[youtubeArgs](),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			return searchVideos(ctx, apiKey, query)
		},
	}
}

func searchVideos(ctx context.Context, apiKey, query string) (string, error) {
	svc, err := youtube.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}

	resp, err := svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(maxVideoResults).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("youtube search: %w", err)
	}
	if len(resp.Items) == 0 {
		return "no videos found for " + query, nil
	}

	var b strings.Builder
	for i, item := range resp.Items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s - https://www.youtube.com/watch?v=%s",
			item.Snippet.Title, item.Id.VideoId)
	}
	return b.String(), nil
}
