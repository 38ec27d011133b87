package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	File string
}

// ImportResult is the output of the import command.
type ImportResult struct {
	Created int      `json:"created"`
	Failed  int      `json:"failed"`
	IDs     []string `json:"ids"`
	Errors  []string `json:"errors,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Create many documents from a file",
		Long: `Create every document in a file, several at a time.

.jsonl and .ndjson files hold one JSON document per line. Any other file
is read as YAML or JSON: a mapping, a list of mappings, or a stream of
"---" separated YAML documents.

Each document is created on its own. A failed document does not stop
the others; the command reports every failure and exits with code 1.

Examples:
  flatdoc import --file docs.jsonl
  flatdoc import --file fixtures.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", `file to import ("-" for stdin)`)
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(opts *ImportOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	b, err := readInput("", opts.File, cmd.InOrStdin())
	if err != nil {
		return fail(formatter, err)
	}
	docs, err := parseDocuments(opts.File, b)
	if err != nil {
		return fail(formatter, err)
	}

	m, _, err := openManager(opts.RootOptions, cmd)
	if err != nil {
		return fail(formatter, err)
	}
	defer m.Close()

	formatter.VerboseLog("importing %d document(s) from %s", len(docs), opts.File)

	created, createErr := m.CreateMany(cmd.Context(), docs)

	result := ImportResult{IDs: []string{}}
	for _, d := range created {
		if d != nil {
			result.Created++
			result.IDs = append(result.IDs, d.ID())
		}
	}
	result.Failed = len(docs) - result.Created
	if createErr != nil {
		result.Errors = joinedMessages(createErr)
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "Created %d document(s), %d failed\n", result.Created, result.Failed)
		for _, msg := range result.Errors {
			fmt.Fprintf(formatter.Writer, "  %s\n", msg)
		}
	}

	if result.Failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d document(s) failed to import", result.Failed), createErr)
	}
	return nil
}

// joinedMessages splits an errors.Join result into its messages.
func joinedMessages(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		msgs := make([]string, 0)
		for _, e := range joined.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}
