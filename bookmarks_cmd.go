package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
	"github.com/synfinner/auraspeech-tts/internal/bookmark"
	"github.com/synfinner/auraspeech-tts/internal/narration"
	"github.com/synfinner/auraspeech-tts/internal/source"
	"github.com/synfinner/auraspeech-tts/utils"
)

var (
	bookmarksCmd = &cobra.Command{
		Use:     "bookmarks",
		Aliases: []string{"bm"},
		Short:   "List saved bookmarks",
		Args:    cobra.NoArgs,
		RunE:    listBookmarks,
	}

	bookmarksListCmd = &cobra.Command{
		Use:   "list",
		Short: "List saved bookmarks",
		Args:  cobra.NoArgs,
		RunE:  listBookmarks,
	}

	bookmarksRmCmd = &cobra.Command{
		Use:     "rm FILE|URL|KEY",
		Short:   "Delete a bookmark",
		Example: paragraph("auraspeech bookmarks rm essay.md\nauraspeech bookmarks rm https://example.com/post"),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			key, err := bookmarkKey(args[0])
			if err != nil {
				return err
			}
			if err := st.DeleteBookmark(cmd.Context(), key); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Deleted bookmark for", keyword(key))
			return nil
		},
	}
)

func init() {
	bookmarksCmd.AddCommand(bookmarksListCmd, bookmarksRmCmd)
}

func listBookmarks(cmd *cobra.Command, _ []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	bookmarks, err := st.ListBookmarks(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(bookmarks) == 0 {
		fmt.Fprintln(w, "No bookmarks yet. Press m while listening to save one.")
		return nil
	}
	for _, b := range bookmarks {
		title := b.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(w, "%s  chunk %d at %s, %.2fx, %s\n  %s\n",
			keyword(truncate.StringWithTail(title, 60, "…")),
			b.ChunkIndex+1,
			narration.FormatClock(b.Position()),
			b.Speed,
			humanize.Time(b.SavedAt),
			b.Key)
	}
	return nil
}

// bookmarkKey turns a document path, URL or stored key into the key
// bookmarks are saved under.
func bookmarkKey(arg string) (string, error) {
	if !utils.IsURL(arg) {
		if _, err := os.Stat(utils.ExpandPath(arg)); err == nil {
			u, err := source.PageURL(arg)
			if err != nil {
				return "", err
			}
			arg = u
		}
	}
	if key, err := bookmark.NormalizePageURL(arg); err == nil {
		return key, nil
	}
	return arg, nil
}
