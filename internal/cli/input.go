package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/flatdoc/internal/query"
)

// readInput returns data if set, else the contents of file ("-" reads
// stdin). Exactly one of them must be given.
func readInput(data, file string, stdin io.Reader) ([]byte, error) {
	switch {
	case data != "" && file != "":
		return nil, fmt.Errorf("%w: --data and --file are mutually exclusive", errInvalidInput)
	case data != "":
		return []byte(data), nil
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidInput, err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: one of --data or --file is required", errInvalidInput)
	}
}

// parseDocument decodes one JSON or YAML mapping.
func parseDocument(b []byte) (map[string]any, error) {
	var d map[string]any
	if err := unmarshalYAML(b, &d); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidInput, err)
	}
	if d == nil {
		return nil, fmt.Errorf("%w: document must be a non-empty mapping", errInvalidInput)
	}
	return d, nil
}

// parseQuery decodes a query document and converts operator objects
// ({"$gt": 3}, ...) into predicates. An empty string is the empty query.
func parseQuery(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var q map[string]any
	if err := unmarshalYAML([]byte(s), &q); err != nil {
		return nil, fmt.Errorf("%w: query: %w", errInvalidInput, err)
	}
	return query.Parse(q)
}

// parseDocuments decodes an import file. JSON Lines files (.jsonl,
// .ndjson) hold one document per line; anything else is a YAML stream
// whose documents are mappings or lists of mappings (a JSON array works).
func parseDocuments(name string, b []byte) ([]map[string]any, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jsonl", ".ndjson":
		return parseLines(b)
	default:
		return parseStream(b)
	}
}

func parseLines(b []byte) ([]map[string]any, error) {
	var docs []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		d, err := parseDocument([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidInput, err)
	}
	return docs, nil
}

func parseStream(b []byte) ([]map[string]any, error) {
	var docs []map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(b))
	for i := 0; ; i++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		var v any
		if err == nil {
			err = decodeNode(&node, &v)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: %w", errInvalidInput, i, err)
		}

		switch val := v.(type) {
		case nil:
		case map[string]any:
			docs = append(docs, val)
		case []any:
			for j, elem := range val {
				m, ok := elem.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%w: document %d[%d]: not a mapping", errInvalidInput, i, j)
				}
				docs = append(docs, m)
			}
		default:
			return nil, fmt.Errorf("%w: document %d: not a mapping", errInvalidInput, i)
		}
	}
	return docs, nil
}

// unmarshalYAML is yaml.Unmarshal with timestamps kept as written.
func unmarshalYAML(b []byte, v any) error {
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return err
	}
	if node.Kind == 0 {
		return nil
	}
	return decodeNode(&node, v)
}

// decodeNode decodes node into v. Plain scalars that YAML resolves to
// !!timestamp (2001-12-14, an updated value) decode as their source text
// rather than time.Time, which is not a document value.
func decodeNode(node *yaml.Node, v any) error {
	retagTimestamps(node)
	return node.Decode(v)
}

func retagTimestamps(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!timestamp" {
		n.Tag = "!!str"
	}
	for _, c := range n.Content {
		retagTimestamps(c)
	}
}
