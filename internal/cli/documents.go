package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flatdoc/internal/doc"
	"github.com/roach88/flatdoc/internal/entry"
)

// InputOptions holds the flags of commands that read one document.
type InputOptions struct {
	*RootOptions
	Data string
	File string
}

func (o *InputOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Data, "data", "", "document as JSON or YAML")
	cmd.Flags().StringVar(&o.File, "file", "", `file holding the document ("-" for stdin)`)
}

func (o *InputOptions) document(cmd *cobra.Command) (map[string]any, error) {
	b, err := readInput(o.Data, o.File, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	return parseDocument(b)
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InputOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a new document",
		Long: `Store a new document and print it with its id and updated fields.

A missing id is generated. Creating an id that already exists fails
with a conflict and changes nothing.

Examples:
  flatdoc create --data '{"name": "widget", "tags": ["a", "b"]}'
  flatdoc create --file doc.yaml
  cat doc.json | flatdoc create --file -`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

func runCreate(opts *InputOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	d, err := opts.document(cmd)
	if err != nil {
		return fail(formatter, err)
	}

	m, _, err := openManager(opts.RootOptions, cmd)
	if err != nil {
		return fail(formatter, err)
	}
	defer m.Close()

	created, err := m.Create(cmd.Context(), d)
	if err != nil {
		return fail(formatter, err)
	}
	return formatter.Documents(created)
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>...",
		Short: "Print stored documents by id",
		Long: `Print the stored documents with the given ids.

Example:
  flatdoc get 3f2c9a1e-3b3d-4c55-9d42-8d0f4c2b7a10`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runGet(opts *RootOptions, ids []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	m, _, err := openManager(opts, cmd)
	if err != nil {
		return fail(formatter, err)
	}
	defer m.Close()

	docs, err := getAll(cmd.Context(), m, ids)
	if err != nil {
		return fail(formatter, err)
	}
	return formatter.Documents(docs...)
}

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	InputOptions
	IfUpdated string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{InputOptions: InputOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace a stored document",
		Long: `Replace the stored document with the id of the given document.

The whole document is replaced and gets a new updated timestamp.
With --if-updated the replacement only happens while the stored
document still carries that timestamp; otherwise it fails with a
conflict.

Examples:
  flatdoc update --data '{"id": "doc-1", "color": "blue"}'
  flatdoc update --file doc.json --if-updated 2024-01-01T00:00:00.000000000Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, cmd)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&opts.IfUpdated, "if-updated", "", "only update if the stored updated field equals this value")

	return cmd
}

func runUpdate(opts *UpdateOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	d, err := opts.document(cmd)
	if err != nil {
		return fail(formatter, err)
	}

	m, _, err := openManager(opts.RootOptions, cmd)
	if err != nil {
		return fail(formatter, err)
	}
	defer m.Close()

	var cond entry.Condition
	if opts.IfUpdated != "" {
		cond = entry.IfUpdated(opts.IfUpdated)
	}

	updated, err := m.Update(cmd.Context(), d, cond)
	if err != nil {
		return fail(formatter, err)
	}
	return formatter.Documents(updated)
}

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	Query string
}

// DeleteResult is the output of the delete command.
type DeleteResult struct {
	Deleted int `json:"deleted"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete [<id>...]",
		Short: "Delete documents by id or by query",
		Long: `Delete documents by id, or every document matching --query.

Deleting an id that does not exist is not an error; the output
reports how many documents were actually deleted.

Examples:
  flatdoc delete doc-1 doc-2
  flatdoc delete --query '{"status": "archived"}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Query, "query", "", "delete every document matching this query")

	return cmd
}

func runDelete(opts *DeleteOptions, ids []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if (len(ids) == 0) == (opts.Query == "") {
		return fail(formatter, fmt.Errorf("%w: give either ids or --query", errInvalidInput))
	}

	var q map[string]any
	if opts.Query != "" {
		var err error
		if q, err = parseQuery(opts.Query); err != nil {
			return fail(formatter, err)
		}
	}

	m, _, err := openManager(opts.RootOptions, cmd)
	if err != nil {
		return fail(formatter, err)
	}
	defer m.Close()

	var n int
	if opts.Query != "" {
		n, err = m.DeleteMatching(cmd.Context(), q)
	} else {
		n, err = deleteAll(cmd.Context(), m, ids)
	}
	if err != nil {
		return fail(formatter, err)
	}

	if opts.Format == "json" {
		return formatter.Success(DeleteResult{Deleted: n})
	}
	fmt.Fprintf(formatter.Writer, "Deleted %d document(s)\n", n)
	return nil
}

// getAll loads every id in order, failing on the first missing one.
func getAll(ctx context.Context, m *entry.Manager, ids []string) ([]doc.Document, error) {
	docs := make([]doc.Document, 0, len(ids))
	for _, id := range ids {
		d, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// deleteAll deletes ids and returns how many were stored.
func deleteAll(ctx context.Context, m *entry.Manager, ids []string) (int, error) {
	n := 0
	for _, id := range ids {
		removed, err := m.Delete(ctx, id)
		if err != nil {
			return n, err
		}
		if removed {
			n++
		}
	}
	return n, nil
}
