package main

import (
	"strings"

	"github.com/hyperjump/ticktie/internal/cli"
	"github.com/hyperjump/ticktie/internal/models"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://localhost:8080"

func newStatusCommand() *cobra.Command {
	var serverURL, output string
	var showDocuments bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(output)
			if err != nil {
				return err
			}
			client := cli.NewClient(serverURL)
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if err := cli.WriteStatus(cmd.OutOrStdout(), status, format); err != nil {
				return err
			}
			if !showDocuments {
				return nil
			}
			docs, fields, err := client.Documents(cmd.Context())
			if err != nil {
				return err
			}
			return cli.WriteDocuments(cmd.OutOrStdout(), docs, fields, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "Server URL")
	cmd.Flags().StringVar(&output, "output", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&showDocuments, "documents", true, "Also list documents and extracted values")
	return cmd
}

func newSearchCommand() *cobra.Command {
	var serverURL, output string
	var limit int
	var fuzzy bool
	cmd := &cobra.Command{
		Use:   "search [flags] <query>",
		Short: "Search document names, text and extracted values on a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseFormat(output)
			if err != nil {
				return err
			}
			q := models.SearchQuery{Query: buildSearchQuery(args), Limit: limit, Fuzzy: fuzzy}
			client := cli.NewClient(serverURL)
			resp, err := client.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			// Retry once with typo tolerance when an exact search finds nothing.
			if !q.Fuzzy && resp.Total == 0 {
				q.Fuzzy = true
				if fuzzyResp, err := client.Search(cmd.Context(), q); err == nil && fuzzyResp.Total > 0 {
					resp = fuzzyResp
				}
			}
			return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "Server URL")
	cmd.Flags().StringVar(&output, "output", "text", "Output format: text or json")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (server default when 0)")
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", false, "Enable typo-tolerant matching")
	return cmd
}

// buildSearchQuery joins all positional args so multi-word queries work with or without quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
