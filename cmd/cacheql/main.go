package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cacheql/cacheql"
	"github.com/cacheql/cacheql/internal/otel"
	"github.com/cacheql/cacheql/internal/transport"
)

const rootUsage = `cacheql — normalized GraphQL result cache, demo CLI

USAGE:
  cacheql <command> [flags]

COMMANDS:
  query    Run a query document against a fixture-backed cache
  mutate   Run a mutation document against a fixture-backed cache
  help     Show help for any command
`

const queryUsage = `query FLAGS:
  -doc <file>            GraphQL query document file (required)
  -op <name>             Operation name, if doc declares more than one
  -vars <json>           JSON-encoded variables object
  -fetch-policy <p>      local-only|local-first|local-then-remote|remote-only (default local-only)
  -fixture <file>        JSON file: {"<operationName>": <data object>}, used as the network response
  -id-attrs <list>       Comma-separated Typename/field identifying fields, e.g. User/id,Post/id
  -otel.endpoint <addr>  OTLP collector endpoint
  -otel.service <name>   OpenTelemetry service name (default: cacheql)
`

const mutateUsage = `mutate FLAGS:
  -doc <file>            GraphQL mutation document file (required)
  -op <name>             Operation name, if doc declares more than one
  -vars <json>           JSON-encoded variables object
  -fixture <file>        JSON file: {"<operationName>": <data object>}, used as the network response
  -optimistic <file>     JSON file holding a bare <data object> (not keyed by operation name), applied as an optimistic write before the fetch
  -id-attrs <list>       Comma-separated Typename/field identifying fields
  -otel.endpoint <addr>  OTLP collector endpoint
  -otel.service <name>   OpenTelemetry service name (default: cacheql)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("cacheql", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer))
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "query":
		return cmdQuery(cmdArgs)
	case "mutate":
		return cmdMutate(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "query":
		fmt.Print(queryUsage)
	case "mutate":
		fmt.Print(mutateUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }
func (s *stringListFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

func cmdQuery(args []string) error {
	var doc, opName, vars, fetchPolicy, fixture, otelEndpoint, otelService string
	var idAttrs stringListFlag
	fetchPolicy = "local-only"
	otelService = "cacheql"

	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&doc, "doc", doc, "GraphQL query document file")
	fs.StringVar(&opName, "op", opName, "Operation name")
	fs.StringVar(&vars, "vars", vars, "JSON-encoded variables object")
	fs.StringVar(&fetchPolicy, "fetch-policy", fetchPolicy, "Fetch policy")
	fs.StringVar(&fixture, "fixture", fixture, "JSON fixture file keyed by operation name")
	fs.Var(&idAttrs, "id-attrs", "Identifying fields")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, queryUsage)
		return err
	}
	if doc == "" {
		fmt.Fprint(os.Stderr, queryUsage)
		return fmt.Errorf("-doc is required")
	}

	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	queryText, err := os.ReadFile(doc)
	if err != nil {
		return fmt.Errorf("read doc: %w", err)
	}
	variables, err := parseJSONObject(vars)
	if err != nil {
		return fmt.Errorf("parse vars: %w", err)
	}
	responses, err := loadFixture(fixture)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}

	var storeOpts []cacheql.Option
	if len(idAttrs) > 0 {
		storeOpts = append(storeOpts, cacheql.WithIDAttrs(idAttrs...))
	}
	store := cacheql.New(&fixtureTransport{responses: responses}, storeOpts...)

	stream, err := store.Query(context.Background(), string(queryText), variables,
		cacheql.WithOperationName(opName),
		cacheql.WithFetchPolicy(fetchPolicy),
	)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return printMessages(stream)
}

func cmdMutate(args []string) error {
	var doc, opName, vars, fixture, optimistic, otelEndpoint, otelService string
	var idAttrs stringListFlag
	otelService = "cacheql"

	fs := flag.NewFlagSet("mutate", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&doc, "doc", doc, "GraphQL mutation document file")
	fs.StringVar(&opName, "op", opName, "Operation name")
	fs.StringVar(&vars, "vars", vars, "JSON-encoded variables object")
	fs.StringVar(&fixture, "fixture", fixture, "JSON fixture file keyed by operation name")
	fs.StringVar(&optimistic, "optimistic", optimistic, "JSON fixture file for the optimistic result")
	fs.Var(&idAttrs, "id-attrs", "Identifying fields")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, mutateUsage)
		return err
	}
	if doc == "" {
		fmt.Fprint(os.Stderr, mutateUsage)
		return fmt.Errorf("-doc is required")
	}

	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	mutationText, err := os.ReadFile(doc)
	if err != nil {
		return fmt.Errorf("read doc: %w", err)
	}
	variables, err := parseJSONObject(vars)
	if err != nil {
		return fmt.Errorf("parse vars: %w", err)
	}
	responses, err := loadFixture(fixture)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}

	var mutateOpts []cacheql.MutateOption
	mutateOpts = append(mutateOpts, cacheql.WithMutationOperationName(opName))
	if optimistic != "" {
		optimisticData, err := loadSingleFixture(optimistic)
		if err != nil {
			return fmt.Errorf("load optimistic fixture: %w", err)
		}
		mutateOpts = append(mutateOpts, cacheql.WithOptimisticResult(optimisticData))
	}

	var storeOpts []cacheql.Option
	if len(idAttrs) > 0 {
		storeOpts = append(storeOpts, cacheql.WithIDAttrs(idAttrs...))
	}
	store := cacheql.New(&fixtureTransport{responses: responses}, storeOpts...)

	stream, err := store.Mutate(context.Background(), string(mutationText), variables, mutateOpts...)
	if err != nil {
		return fmt.Errorf("mutate: %w", err)
	}
	return printMessages(stream)
}

func printMessages(stream <-chan cacheql.Message) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for msg := range stream {
		if err := enc.Encode(map[string]any{
			"data":          msg.Data,
			"inFlight":      msg.InFlight,
			"networkStatus": msg.NetworkStatus,
			"error":         errString(msg.Err),
		}); err != nil {
			return err
		}
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func parseJSONObject(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func loadFixture(path string) (map[string]map[string]any, error) {
	if path == "" {
		return map[string]map[string]any{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v map[string]map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func loadSingleFixture(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// fixtureTransport is a stand-in Transport for the demo CLI: it never
// touches the network, it just replays a canned response keyed by
// operation name, the same role a recorded-response fake would play in
// a test double.
type fixtureTransport struct {
	responses map[string]map[string]any
}

func (f *fixtureTransport) Execute(ctx context.Context, req transport.Request) (<-chan transport.Message, error) {
	out := make(chan transport.Message, 1)
	data, ok := f.responses[req.Operation.Name]
	if !ok {
		out <- transport.Message{Errors: []error{fmt.Errorf("no fixture response for operation %q", req.Operation.Name)}}
	} else {
		out <- transport.Message{Data: data}
	}
	close(out)
	return out, nil
}
