package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/coregx/airbase/internal/config"
	"github.com/coregx/airbase/internal/core"
	"github.com/coregx/airbase/internal/schema"
	"github.com/coregx/airbase/internal/wire"
)

func remoteFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "url",
			Value:   "http://localhost:8080",
			Usage:   "data endpoint",
			Sources: cli.EnvVars("AIRBASE_URL"),
		},
		&cli.StringFlag{
			Name:    "dialect",
			Value:   "postgres",
			Usage:   "dialect of the endpoint's database",
			Sources: cli.EnvVars("AIRBASE_DIALECT"),
		},
		&cli.BoolFlag{
			Name:  "msgpack",
			Usage: "talk MessagePack instead of JSON",
		},
		&cli.StringSliceFlag{
			Name:  "header",
			Usage: "extra request header, 'Name: value'",
		},
	}
}

// schemaFlag names the file whose schema section resolves relations.
func schemaFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "file with a schema section; the aviation schema when unset",
		Sources: cli.EnvVars("AIRBASE_CONFIG"),
	}
}

func clientSchema(cmd *cli.Command) (*schema.Schema, error) {
	if path := cmd.String("config"); path != "" {
		return config.LoadSchema(path)
	}
	return config.Schema{}.Build()
}

func newClient(cmd *cli.Command, exec core.Executor) (*core.Client, error) {
	sc, err := clientSchema(cmd)
	if err != nil {
		return nil, err
	}
	return core.NewClient(exec, core.WithSchema(sc)), nil
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "eq", Usage: "column=value"},
		&cli.StringSliceFlag{Name: "neq", Usage: "column=value"},
		&cli.StringSliceFlag{Name: "gt", Usage: "column=value"},
		&cli.StringSliceFlag{Name: "lt", Usage: "column=value"},
		&cli.StringSliceFlag{Name: "like", Usage: "column=pattern"},
	}
}

func remoteExecutor(cmd *cli.Command) (*core.RemoteExecutor, error) {
	var opts []core.Option
	if cmd.Bool("msgpack") {
		opts = append(opts, core.WithCodec(wire.MessagePack))
	}
	for _, h := range cmd.StringSlice("header") {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("header %q: want 'Name: value'", h)
		}
		opts = append(opts, core.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value)))
	}
	return core.NewRemoteExecutor(cmd.String("url"), cmd.String("dialect"), opts...)
}

// filterable is the filter surface shared by select and update queries.
type filterable[Q any] interface {
	Eq(field string, value any) Q
	Neq(field string, value any) Q
	Gt(field string, value any) Q
	Lt(field string, value any) Q
	Like(field, pattern string) Q
}

func applyFilters[Q filterable[Q]](cmd *cli.Command, q Q) (Q, error) {
	ops := []struct {
		flag  string
		apply func(Q, string, string) Q
	}{
		{"eq", func(q Q, f, v string) Q { return q.Eq(f, parseValue(v)) }},
		{"neq", func(q Q, f, v string) Q { return q.Neq(f, parseValue(v)) }},
		{"gt", func(q Q, f, v string) Q { return q.Gt(f, parseValue(v)) }},
		{"lt", func(q Q, f, v string) Q { return q.Lt(f, parseValue(v)) }},
		{"like", func(q Q, f, v string) Q { return q.Like(f, v) }},
	}
	for _, op := range ops {
		assignments, err := parseAssignments(cmd.StringSlice(op.flag))
		if err != nil {
			return q, fmt.Errorf("--%s: %w", op.flag, err)
		}
		for _, a := range assignments {
			q = op.apply(q, a.column, a.value)
		}
	}
	return q, nil
}

func queryCommand() *cli.Command {
	flags := append(remoteFlags(), filterFlags()...)
	flags = append(flags,
		schemaFlag(),
		&cli.StringFlag{Name: "select", Value: "*", Usage: "columns and relations"},
		&cli.StringFlag{Name: "order", Usage: "order column"},
		&cli.BoolFlag{Name: "desc", Usage: "order descending"},
		&cli.IntFlag{Name: "limit", Value: -1, Usage: "row limit"},
		&cli.IntFlag{Name: "offset", Usage: "rows to skip"},
		&cli.BoolFlag{Name: "single", Usage: "require exactly one row"},
		&cli.BoolFlag{Name: "maybe-single", Usage: "allow zero or one row"},
	)
	return &cli.Command{
		Name:      "query",
		Usage:     "read rows through a data endpoint",
		ArgsUsage: "TABLE",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			table := cmd.Args().First()
			if table == "" {
				return cli.Exit("query: table required", 2)
			}
			exec, err := remoteExecutor(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, exec)
			if err != nil {
				return err
			}

			q := client.From(table).Select(cmd.String("select")).WithContext(ctx)
			if q, err = applyFilters(cmd, q); err != nil {
				return err
			}
			if order := cmd.String("order"); order != "" {
				q = q.Order(order, !cmd.Bool("desc"))
			}
			if limit := int(cmd.Int("limit")); limit >= 0 {
				q = q.Limit(limit)
			}
			if offset := int(cmd.Int("offset")); offset > 0 {
				q = q.Offset(offset)
			}

			var res core.Result
			switch {
			case cmd.Bool("single"):
				res = q.Single()
			case cmd.Bool("maybe-single"):
				res = q.MaybeSingle()
			default:
				res = q.Execute()
			}
			return printResult(os.Stdout, res)
		},
	}
}

func insertCommand() *cli.Command {
	flags := append(remoteFlags(),
		&cli.StringFlag{Name: "data", Value: "-", Usage: "JSON object or array of objects, '-' reads stdin"},
		&cli.StringFlag{Name: "returning", Usage: "columns to return"},
	)
	return &cli.Command{
		Name:      "insert",
		Usage:     "insert rows through a data endpoint",
		ArgsUsage: "TABLE",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			table := cmd.Args().First()
			if table == "" {
				return cli.Exit("insert: table required", 2)
			}
			rows, err := readRows(cmd.String("data"), os.Stdin)
			if err != nil {
				return err
			}
			exec, err := remoteExecutor(cmd)
			if err != nil {
				return err
			}
			return printResult(os.Stdout, exec.Insert(ctx, table, rows, cmd.String("returning")))
		},
	}
}

func updateCommand() *cli.Command {
	flags := append(remoteFlags(), filterFlags()...)
	flags = append(flags,
		schemaFlag(),
		&cli.StringSliceFlag{Name: "set", Usage: "column=value"},
		&cli.StringFlag{Name: "returning", Usage: "columns to return"},
	)
	return &cli.Command{
		Name:      "update",
		Usage:     "update filtered rows through a data endpoint",
		ArgsUsage: "TABLE",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			table := cmd.Args().First()
			if table == "" {
				return cli.Exit("update: table required", 2)
			}
			set, err := parseAssignments(cmd.StringSlice("set"))
			if err != nil {
				return fmt.Errorf("--set: %w", err)
			}
			values := make(core.Row, len(set))
			for _, a := range set {
				values[a.column] = parseValue(a.value)
			}
			exec, err := remoteExecutor(cmd)
			if err != nil {
				return err
			}
			client, err := newClient(cmd, exec)
			if err != nil {
				return err
			}

			q := client.From(table).Update(values).WithContext(ctx)
			if q, err = applyFilters(cmd, q); err != nil {
				return err
			}
			if returning := cmd.String("returning"); returning != "" {
				q = q.Select(returning)
			}
			return printResult(os.Stdout, q.Execute())
		},
	}
}

type assignment struct {
	column string
	value  string
}

func parseAssignments(raw []string) ([]assignment, error) {
	out := make([]assignment, 0, len(raw))
	for _, s := range raw {
		column, value, ok := strings.Cut(s, "=")
		if !ok || column == "" {
			return nil, fmt.Errorf("%q: want column=value", s)
		}
		out = append(out, assignment{column: column, value: value})
	}
	return out, nil
}

// parseValue reads a flag value as a JSON scalar when it is one, so 42,
// true and null keep their types. Anything else is a string.
func parseValue(s string) any {
	var v any
	if err := wire.JSON.Decode(strings.NewReader(s), &v); err != nil {
		return s
	}
	switch v.(type) {
	case map[string]any, []any:
		return s
	}
	return wire.Normalize(v)
}

// readRows decodes a JSON object or an array of objects. "-" reads stdin.
func readRows(data string, stdin io.Reader) ([]core.Row, error) {
	var r io.Reader = strings.NewReader(data)
	if data == "-" {
		r = stdin
	}
	var v any
	if err := wire.JSON.Decode(r, &v); err != nil {
		return nil, fmt.Errorf("--data: %w", err)
	}

	var items []any
	switch t := wire.Normalize(v).(type) {
	case map[string]any:
		items = []any{t}
	case []any:
		items = t
	default:
		return nil, fmt.Errorf("--data: want an object or an array of objects")
	}

	rows := make([]core.Row, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("--data: element %d is not an object", i)
		}
		rows[i] = m
	}
	return rows, nil
}

// printResult writes the envelope as indented JSON and turns an envelope
// error into a non-zero exit.
func printResult(w io.Writer, res core.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if res.Error != nil {
		return cli.Exit("", 1)
	}
	return nil
}
