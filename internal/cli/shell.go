package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/roach88/flatdoc/internal/entry"
)

const shellPrompt = "flatdoc> "

var shellCommands = []string{"get", "search", "count", "create", "update", "delete", "help", "exit", "quit"}

const shellHelp = `Commands:
  get <id>...           print documents by id
  search [query]        print documents matching a query
  count [query]         count documents matching a query
  create <document>     store a new document
  update <document>     replace a stored document
  delete <id>...        delete documents by id
  help                  show this help
  exit, quit            leave the shell

Documents and queries are JSON or YAML flow mappings, e.g.
  search {"color": "blue", "size": {"$gt": 3}}`

// lineReader reads one line of input per prompt.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// scanReader reads lines from a non-terminal input such as a pipe.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) AppendHistory(string) {}

// NewShellCommand creates the interactive shell command.
func NewShellCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell on a database",
		Long: `Open the database once and run commands against it interactively.

Type "help" in the shell for the list of commands. Errors are printed
and the shell keeps running; Ctrl-D or "exit" leaves it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(rootOpts, cmd)
		},
	}

	return cmd
}

func runShell(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	m, cfg, err := openManager(opts, cmd)
	if err != nil {
		return fail(formatter, err)
	}
	defer m.Close()

	var in lineReader
	if f, ok := cmd.InOrStdin().(*os.File); ok && f == os.Stdin {
		line := liner.NewLiner()
		defer line.Close()
		line.SetCtrlCAborts(true)
		line.SetCompleter(completeCommand)
		in = line
	} else {
		in = &scanReader{sc: bufio.NewScanner(cmd.InOrStdin())}
	}

	sh := &shell{manager: m, formatter: formatter, pageSize: cfg.PageSize}
	return sh.run(cmd.Context(), in)
}

func completeCommand(line string) []string {
	var out []string
	for _, c := range shellCommands {
		if strings.HasPrefix(c, strings.ToLower(line)) {
			out = append(out, c+" ")
		}
	}
	return out
}

// shell runs commands read from a lineReader against one manager.
type shell struct {
	manager   *entry.Manager
	formatter *OutputFormatter
	pageSize  int
}

func (s *shell) run(ctx context.Context, in lineReader) error {
	for {
		line, err := in.Prompt(shellPrompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		in.AppendHistory(line)

		done, err := s.exec(ctx, line)
		if err != nil {
			code, _ := classify(err)
			_ = s.formatter.Error(code, err.Error(), nil)
		}
		if done {
			return nil
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	name, rest, _ := strings.Cut(line, " ")
	name = strings.ToLower(name)
	rest = strings.TrimSpace(rest)

	switch name {
	case "exit", "quit":
		return true, nil
	case "help":
		fmt.Fprintln(s.formatter.Writer, shellHelp)
		return false, nil
	case "get":
		ids := strings.Fields(rest)
		if len(ids) == 0 {
			return false, fmt.Errorf("%w: usage: get <id>...", errInvalidInput)
		}
		docs, err := getAll(ctx, s.manager, ids)
		if err != nil {
			return false, err
		}
		return false, s.formatter.Documents(docs...)
	case "search":
		q, err := parseQuery(rest)
		if err != nil {
			return false, err
		}
		docs, err := s.manager.Search(ctx, q, entry.SearchOptions{Size: s.pageSize})
		if err != nil {
			return false, err
		}
		return false, s.formatter.Documents(docs...)
	case "count":
		q, err := parseQuery(rest)
		if err != nil {
			return false, err
		}
		n, err := s.manager.Count(ctx, q)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(s.formatter.Writer, n)
		return false, nil
	case "create", "update":
		d, err := parseDocument([]byte(rest))
		if err != nil {
			return false, err
		}
		if name == "create" {
			created, err := s.manager.Create(ctx, d)
			if err != nil {
				return false, err
			}
			return false, s.formatter.Documents(created)
		}
		updated, err := s.manager.Update(ctx, d, nil)
		if err != nil {
			return false, err
		}
		return false, s.formatter.Documents(updated)
	case "delete":
		ids := strings.Fields(rest)
		if len(ids) == 0 {
			return false, fmt.Errorf("%w: usage: delete <id>...", errInvalidInput)
		}
		n, err := deleteAll(ctx, s.manager, ids)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.formatter.Writer, "Deleted %d document(s)\n", n)
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown command %q (try help)", errInvalidInput, name)
	}
}
