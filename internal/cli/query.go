package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrydb/quarry/internal/executor"
	"github.com/quarrydb/quarry/internal/query"
)

var (
	queryFile    string
	queryWhere   []string
	queryOrderBy string
	queryLimit   int
	queryOffset  int
	queryNoCache bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a query against a JSON file",
	Long: `Run a filtered, ordered, paginated query against a JSON file holding
a top-level array. Filters take the form field=value, field!=value,
field>value, field<value or field~substring.`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryFile, "file", "f", "", "JSON file to query (required)")
	queryCmd.Flags().StringArrayVarP(&queryWhere, "where", "w", nil, "filter, e.g. status=open (repeatable)")
	queryCmd.Flags().StringVar(&queryOrderBy, "order-by", "", "sort key, e.g. name or name:desc")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "maximum rows to return")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "rows to skip")
	queryCmd.Flags().BoolVar(&queryNoCache, "no-cache", false, "bypass the parsed-file cache")
	queryCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	builder := query.NewBuilder()
	for _, filter := range queryWhere {
		var err error
		builder, err = applyFilter(builder, filter)
		if err != nil {
			return err
		}
	}
	if queryOrderBy != "" {
		field, direction := queryOrderBy, query.Asc
		if name, dir, ok := strings.Cut(queryOrderBy, ":"); ok {
			field = name
			switch dir {
			case "asc":
			case "desc":
				direction = query.Desc
			default:
				return fmt.Errorf("order direction must be asc or desc, got %q", dir)
			}
		}
		builder = builder.OrderBy(field, direction)
	}
	if queryLimit > 0 {
		builder = builder.Limit(queryLimit)
	}
	if queryOffset > 0 {
		builder = builder.Offset(queryOffset)
	}
	q, err := builder.Build()
	if err != nil {
		return err
	}

	opts := executor.DefaultJSONOptions(queryFile)
	if queryNoCache {
		opts.CacheData = false
	}
	exec, err := executor.NewJSONExecutor(opts)
	if err != nil {
		return err
	}
	defer exec.Close()

	res := exec.Execute(cmd.Context(), q)
	if res.Failed() {
		for _, e := range res.Errors {
			fmt.Fprintf(os.Stderr, "%s: %s\n", e.Code, e.Message)
		}
		return fmt.Errorf("query failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d of %d rows in %dms\n",
		len(res.Data), res.Metadata.TotalCount, res.Metadata.ExecutionTimeMs)
	return nil
}

// applyFilter parses one --where flag into a builder predicate.
func applyFilter(b *query.Builder, filter string) (*query.Builder, error) {
	for _, op := range []struct {
		token string
		apply func(field, value string) *query.Builder
	}{
		{"!=", func(f, v string) *query.Builder { return b.WhereNotEqual(f, coerce(v)) }},
		{">=", func(f, v string) *query.Builder { return b.WhereComparison(f, query.OpGte, coerce(v)) }},
		{"<=", func(f, v string) *query.Builder { return b.WhereComparison(f, query.OpLte, coerce(v)) }},
		{">", func(f, v string) *query.Builder { return b.WhereComparison(f, query.OpGt, coerce(v)) }},
		{"<", func(f, v string) *query.Builder { return b.WhereComparison(f, query.OpLt, coerce(v)) }},
		{"~", func(f, v string) *query.Builder { return b.WhereContains(f, v) }},
		{"=", func(f, v string) *query.Builder { return b.WhereEqual(f, coerce(v)) }},
	} {
		if field, value, ok := strings.Cut(filter, op.token); ok && field != "" {
			return op.apply(field, value), nil
		}
	}
	return nil, fmt.Errorf("cannot parse filter %q (expected field=value)", filter)
}

// coerce turns flag text into a typed value: bool, number, or string.
func coerce(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	var n float64
	if _, err := fmt.Sscanf(s, "%g", &n); err == nil && fmt.Sprintf("%g", n) == s {
		return n
	}
	return s
}
