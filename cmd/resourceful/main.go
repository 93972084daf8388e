package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/hanpama/resourceful/internal/config"
	"github.com/hanpama/resourceful/internal/eventbus"
	"github.com/hanpama/resourceful/internal/future"
	"github.com/hanpama/resourceful/internal/otel"
	"github.com/hanpama/resourceful/internal/resource"
	"github.com/hanpama/resourceful/internal/server"
)

const rootUsage = `resourceful — serve HTTP resources described in YAML

USAGE:
  resourceful <command> [flags]

COMMANDS:
  serve            Run the HTTP server for a resource file
  describe         Print what every operation resolves to for each resource
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -resources <file>            Resource definitions (default: $RESOURCEFUL_RESOURCES_FILE or resources.yaml)
  -server.addr <addr>          HTTP listen address (default: $RESOURCEFUL_ADDR or :8080)
  -server.pretty               Pretty-print JSON responses
  -server.timeout <duration>   Per-request timeout, e.g. 10s (default: $RESOURCEFUL_TIMEOUT or 10s)
  -server.max-body-bytes <n>   Largest accepted request body, 0 for unlimited
  -otel.endpoint <addr>        OTLP collector endpoint
  -otel.service <name>         OpenTelemetry service name (default: resourceful)
`

const describeUsage = `describe FLAGS:
  -resources <file>        Resource definitions (default: $RESOURCEFUL_RESOURCES_FILE or resources.yaml)
  -method <name>           Request method to resolve with (default: get)
  -content-type <type>     Response content type for body lookups
  -timeout <duration>      Longest wait for an async result (default: 5s)
  -pretty                  Indent output (default: when stdout is a terminal)
`

// stdout is where help and describe write.
var stdout io.Writer = os.Stdout

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("resourceful", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
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
	case "serve":
		return cmdServe(cmdArgs)
	case "describe":
		return cmdDescribe(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "describe":
		fmt.Fprint(stdout, describeUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

func cmdServe(args []string) error {
	// Defaults come from the environment; flags override them.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&cfg.ResourcesFile, "resources", cfg.ResourcesFile, "Resource definitions")
	fs.StringVar(&cfg.Addr, "server.addr", cfg.Addr, "HTTP listen address")
	fs.BoolVar(&cfg.Pretty, "server.pretty", cfg.Pretty, "Pretty-print JSON responses")
	fs.DurationVar(&cfg.Timeout, "server.timeout", cfg.Timeout, "Per-request timeout")
	fs.Int64Var(&cfg.MaxBodyBytes, "server.max-body-bytes", cfg.MaxBodyBytes, "Largest accepted request body")
	fs.StringVar(&cfg.OTelEndpoint, "otel.endpoint", cfg.OTelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&cfg.OTelService, "otel.service", cfg.OTelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	reg, err := config.LoadResources(cfg.ResourcesFile)
	if err != nil {
		return fmt.Errorf("load resources: %w", err)
	}

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(cfg.OTelEndpoint, cfg.OTelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	var sopts []server.Option
	if cfg.Pretty {
		sopts = append(sopts, server.WithPretty())
	}
	sopts = append(sopts, server.WithTimeout(cfg.Timeout), server.WithMaxBodyBytes(cfg.MaxBodyBytes))
	h, err := server.New(reg, sopts...)
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", h)

	log.Printf("serving %d resources from %s on %s", len(reg.Paths()), cfg.ResourcesFile, cfg.Addr)
	return http.ListenAndServe(cfg.Addr, mux)
}

func cmdDescribe(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	method := "get"
	contentType := ""
	timeout := 5 * time.Second
	pretty := isTerminal(stdout)

	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&cfg.ResourcesFile, "resources", cfg.ResourcesFile, "Resource definitions")
	fs.StringVar(&method, "method", method, "Request method")
	fs.StringVar(&contentType, "content-type", contentType, "Response content type")
	fs.DurationVar(&timeout, "timeout", timeout, "Longest wait for an async result")
	fs.BoolVar(&pretty, "pretty", pretty, "Indent output")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, describeUsage)
		return err
	}

	reg, err := config.LoadResources(cfg.ResourcesFile)
	if err != nil {
		return fmt.Errorf("load resources: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	out := make([]description, 0, len(reg.Paths()))
	for _, r := range reg.Resources() {
		out = append(out, describe(ctx, r, method, contentType))
	}

	enc := json.NewEncoder(stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

type description struct {
	Path       string         `json:"path"`
	Operations map[string]any `json:"operations"`
}

// describe resolves every operation of r against a request for its own path.
func describe(ctx context.Context, r *resource.Resource, method, contentType string) description {
	c := &resource.Context{
		Method:   method,
		URI:      r.Path(),
		Response: resource.Response{ContentType: contentType},
		Values:   map[string]any{},
	}
	ops := map[string]any{}
	record := func(op resource.Operation, f future.Awaitable) (any, bool) {
		select {
		case <-f.Done():
		case <-ctx.Done():
			ops[op.String()] = map[string]string{"error": ctx.Err().Error()}
			return nil, false
		}
		v, err := f.Result()
		if err != nil {
			ops[op.String()] = map[string]string{"error": err.Error()}
			return nil, false
		}
		ops[op.String()] = plain(v)
		return v, true
	}

	record(resource.OpServiceAvailable, r.ServiceAvailable(ctx))
	record(resource.OpKnownMethod, r.KnownMethod(ctx, method))
	record(resource.OpRequestURITooLong, r.RequestURITooLong(ctx, c.URI))
	record(resource.OpAllowedMethods, r.AllowedMethods(ctx))
	record(resource.OpState, r.State(ctx, c))
	body, _ := record(resource.OpBody, r.Body(ctx, c))
	record(resource.OpProduces, r.Produces(ctx))
	record(resource.OpProducesFromBody, r.ProducesFromBody(ctx))
	record(resource.OpStatus, r.Status(ctx))
	record(resource.OpHeaders, r.Headers(ctx))
	if result, ok := record(resource.OpPost, r.Post(ctx, c)); ok {
		d, _ := result.(resource.Descriptor)
		record(resource.OpInterpretPostResult, r.InterpretPostResult(ctx, d, c))
	}
	record(resource.OpAuthorize, r.Authenticate(ctx, c))
	if src, streamed := body.(*resource.Source); streamed {
		_ = src.Close()
	} else {
		record(resource.OpFormatEvent, r.FormatEvent(ctx, body))
	}
	record(resource.OpAllowOrigin, r.AllowOrigin(ctx, c))
	record(resource.OpLastModified, r.LastModified(ctx, c))
	return description{Path: r.Path(), Operations: ops}
}

// plain turns resolver results into values that encode as readable JSON.
func plain(v any) any {
	switch v := v.(type) {
	case resource.Func:
		return "<callback>"
	case resource.Set:
		if v == nil {
			return nil
		}
		return v.Members()
	case resource.Descriptor:
		return plain(v.Raw())
	case resource.Verdict:
		out := map[string]any{"value": v.Value}
		if len(v.Overrides.Headers) > 0 {
			out["headers"] = v.Overrides.Headers
		}
		return out
	case resource.Authentication:
		out := map[string]any{"granted": v.Granted}
		if v.Granted && v.Context != nil {
			out["authorization"] = plain(v.Context.Authorization)
		}
		return out
	case *resource.Context:
		return map[string]any{
			"status":       v.Response.Status,
			"headers":      v.Response.Headers,
			"body":         plain(v.Response.Body),
			"content-type": v.Response.ContentType,
		}
	case *resource.Source:
		return "<stream>"
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return v.UTC().Format(time.RFC3339)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = plain(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = plain(e)
		}
		return out
	case func(any) (any, error):
		return "<callback>"
	case future.Awaitable:
		return "<async>"
	}
	return v
}
