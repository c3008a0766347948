package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lodestone-kb/lodestone/internal/datasource"
	"github.com/lodestone-kb/lodestone/internal/embed"
	"github.com/lodestone-kb/lodestone/internal/node"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	datasource string
	batchSize  int
}

// ingestRecord is one JSONL input line.
type ingestRecord struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func newIngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file.jsonl>",
		Short: "Ingest documents into a datasource",
		Long: `Ingest documents from a JSONL file into a writable datasource.

Each line is a JSON object with "id", "text", and optional "metadata"
(string keyed and string valued). Existing nodes with the same id are
replaced. The lexical index is rebuilt afterwards.

Examples:
  lodestone ingest docs.jsonl
  lodestone ingest runbooks.jsonl --datasource runbooks --batch-size 64`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.datasource, "datasource", "d", "", "Target datasource name (default: first configured)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", embed.DefaultBatchSize, "Embedding batch size")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, path string, opts ingestOptions) error {
	nodes, err := readRecords(path)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No records to ingest")
		return nil
	}

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := resolveWriter(a.registry, opts.datasource)
	if err != nil {
		return err
	}

	start := time.Now()
	batchSize := opts.batchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}

	for offset := 0; offset < len(nodes); offset += batchSize {
		end := offset + batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		batch := nodes[offset:end]

		texts := make([]string, len(batch))
		for i, n := range batch {
			texts[i] = n.Text
		}

		vectors, err := a.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at record %d: %w", offset, err)
		}
		if err := target.AddNodes(ctx, batch, vectors); err != nil {
			return fmt.Errorf("add nodes at record %d: %w", offset, err)
		}

		slog.Debug("ingest_batch",
			slog.Int("offset", offset),
			slog.Int("count", len(batch)))
	}

	// The lexical index is stale after a write.
	if err := a.engine.RefreshLexical(ctx, nil, true); err != nil {
		slog.Warn("lexical index rebuild failed",
			slog.String("error", err.Error()))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d nodes in %s\n",
		len(nodes), time.Since(start).Round(time.Millisecond))
	return nil
}

// readRecords parses the JSONL input file into nodes.
func readRecords(path string) ([]*node.TextNode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var nodes []*node.TextNode
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec ingestRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("%s:%d: missing id", path, lineNo)
		}

		nodes = append(nodes, &node.TextNode{
			ID:       rec.ID,
			Text:     rec.Text,
			Metadata: rec.Metadata,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return nodes, nil
}

// resolveWriter picks the target datasource and asserts write capability.
func resolveWriter(registry *datasource.Registry, name string) (datasource.Writer, error) {
	var (
		ds  datasource.Datasource
		err error
	)
	if name != "" {
		ds, err = registry.Get(name)
		if err != nil {
			return nil, err
		}
	} else {
		all, _, err := registry.Resolve(nil)
		if err != nil {
			return nil, err
		}
		ds = all[0]
	}

	writer, ok := ds.(datasource.Writer)
	if !ok {
		return nil, fmt.Errorf("datasource %q is read-only", ds.Name())
	}
	return writer, nil
}
