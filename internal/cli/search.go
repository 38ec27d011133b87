package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flatdoc/internal/entry"
)

// SearchCommandOptions holds flags for the search command.
type SearchCommandOptions struct {
	*RootOptions
	Query  string
	Size   int
	Offset int
}

// NewSearchCommand creates the search command.
func NewSearchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SearchCommandOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find documents matching a query",
		Long: `Print the documents matching a query, most recently updated first.

A query is a partial document: every leaf must match for a document to
be returned. A list of values matches any of them, and an object with a
single $-operator key compares instead of testing equality.

Operators: $eq $ne $gt $gte $lt $lte $in $range $between $prefix
$contains $not

Examples:
  flatdoc search --query '{"color": "blue"}'
  flatdoc search --query '{"size": {"$gt": 3}, "tags": ["a", "b"]}'
  flatdoc search --query '{"owner": {"name": "ann"}}' --size 10 --offset 20`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Query, "query", "", "query document as JSON or YAML (default: match all)")
	cmd.Flags().IntVar(&opts.Size, "size", 0, "page size (default from config, 0 for all)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "number of matches to skip")

	return cmd
}

func runSearch(opts *SearchCommandOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Size < 0 || opts.Offset < 0 {
		return fail(formatter, fmt.Errorf("%w: --size and --offset must not be negative", errInvalidInput))
	}

	q, err := parseQuery(opts.Query)
	if err != nil {
		return fail(formatter, err)
	}

	m, cfg, err := openManager(opts.RootOptions, cmd)
	if err != nil {
		return fail(formatter, err)
	}
	defer m.Close()

	size := opts.Size
	if !cmd.Flags().Changed("size") {
		size = cfg.PageSize
	}

	formatter.VerboseLog("search size=%d offset=%d", size, opts.Offset)

	docs, err := m.Search(cmd.Context(), q, entry.SearchOptions{Size: size, Offset: opts.Offset})
	if err != nil {
		return fail(formatter, err)
	}
	return formatter.Documents(docs...)
}

// CountOptions holds flags for the count command.
type CountOptions struct {
	*RootOptions
	Query string
}

// CountResult is the output of the count command.
type CountResult struct {
	Count int `json:"count"`
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count documents matching a query",
		Long: `Print how many documents match a query. Takes the same queries as search.

Example:
  flatdoc count --query '{"status": "open"}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Query, "query", "", "query document as JSON or YAML (default: match all)")

	return cmd
}

func runCount(opts *CountOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	q, err := parseQuery(opts.Query)
	if err != nil {
		return fail(formatter, err)
	}

	m, _, err := openManager(opts.RootOptions, cmd)
	if err != nil {
		return fail(formatter, err)
	}
	defer m.Close()

	n, err := m.Count(cmd.Context(), q)
	if err != nil {
		return fail(formatter, err)
	}

	if opts.Format == "json" {
		return formatter.Success(CountResult{Count: n})
	}
	fmt.Fprintln(formatter.Writer, n)
	return nil
}
