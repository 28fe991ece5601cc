package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"Sideline/internal/config"
	"Sideline/internal/core/feed"
)

// FeedOptions holds flags for the feed command.
type FeedOptions struct {
	*RootOptions
	Pages int
}

// NewFeedCommand creates the feed command.
func NewFeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Fetch and print the feed",
		Long: `Mount the engine once, load the requested number of pages and print
the merged list. Authenticated when FEED_ACCESS_TOKEN holds a valid token.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeed(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Pages, "pages", "n", 1, "number of pages to load")

	return cmd
}

func runFeed(opts *FeedOptions, cmd *cobra.Command) error {
	if opts.Pages < 1 {
		return fmt.Errorf("--pages must be at least 1, got %d", opts.Pages)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format, opts.Verbose)
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.engine.Mount(ctx); err != nil {
		return err
	}
	for i := 1; i < opts.Pages; i++ {
		if !a.engine.State().HasNext {
			break
		}
		if err := a.engine.LoadMore(ctx); err != nil {
			return err
		}
	}

	return printState(cmd.OutOrStdout(), opts.Format, a.engine.State())
}

// feedOutput is the JSON shape of the feed command
type feedOutput struct {
	Cursor *string     `json:"cursor,omitempty"`
	Mode   string      `json:"mode"`
	Filter []string    `json:"filter"`
	Posts  []feed.Post `json:"posts"`
	Page   int         `json:"page"`
	More   bool        `json:"hasNext"`
}

func printState(w io.Writer, format string, s feed.State) error {
	if format == "json" {
		out := feedOutput{
			Cursor: s.Cursor,
			Mode:   s.Mode.String(),
			Filter: s.SelectedFilter.TeamIDs(),
			Posts:  s.Posts,
			Page:   s.Page,
			More:   s.HasNext,
		}
		if out.Posts == nil {
			out.Posts = []feed.Post{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	filter := "all teams"
	if !s.SelectedFilter.IsAll() {
		filter = strings.Join(s.SelectedFilter.TeamIDs(), ",")
	}
	fmt.Fprintf(w, "%s feed, %s, %d posts, page %d\n", s.Mode, filter, len(s.Posts), s.Page)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, p := range s.Posts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			p.CreatedAt.UTC().Format(time.DateTime), p.TeamID, authorLabel(p), preview(p.Content, 60))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if s.HasNext {
		fmt.Fprintln(w, "more posts available")
	}
	return nil
}

func authorLabel(p feed.Post) string {
	if p.AuthorName != "" {
		return p.AuthorName
	}
	return p.AuthorID
}

func preview(content string, limit int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit-3]) + "..."
}
