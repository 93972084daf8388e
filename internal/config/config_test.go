package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	resource "github.com/hanpama/resourceful/internal/resource"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)
	want := &Server{
		Addr:          ":8080",
		Timeout:       10 * time.Second,
		MaxBodyBytes:  1 << 20,
		OTelService:   "resourceful",
		ResourcesFile: "resources.yaml",
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, c.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RESOURCEFUL_ADDR", "127.0.0.1:9000")
	t.Setenv("RESOURCEFUL_TIMEOUT", "3s")
	t.Setenv("RESOURCEFUL_PRETTY", "true")
	t.Setenv("RESOURCEFUL_OTEL_ENDPOINT", "collector:4317")
	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", c.Addr)
	require.Equal(t, 3*time.Second, c.Timeout)
	require.True(t, c.Pretty)
	require.Equal(t, "collector:4317", c.OTelEndpoint)
}

func TestLoadRejectsBadValue(t *testing.T) {
	t.Setenv("RESOURCEFUL_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := &Server{Addr: ":1", ResourcesFile: "r.yaml", Timeout: -1}
	require.Error(t, c.Validate())
	c.Timeout = 0
	c.MaxBodyBytes = -1
	require.Error(t, c.Validate())
	c.MaxBodyBytes = 0
	require.NoError(t, c.Validate())
}

const sample = `
resources:
  - path: /hello
    service-available: true
    known-method: !!set {GET, post}
    allowed-methods: [get, post]
    produces: [text/html, application/json]
    body:
      text/html: "<p>hi</p>"
      application/json: {greeting: hi}
    status: 200
    headers: {X-Served-By: resourceful}
    post: created
    allow-origin: "*"
    last-modified: 2024-05-01T12:00:00Z
  - path: /down
    service-available?: 120
    known-method: delete
`

func TestParseResources(t *testing.T) {
	reg, err := ParseResources([]byte(sample))
	require.NoError(t, err)
	require.Equal(t, []string{"/hello", "/down"}, reg.Paths())

	hello, ok := reg.Lookup("/hello")
	require.True(t, ok)
	shapes := map[string]string{}
	for _, op := range resource.Operations() {
		if hello.Has(op) {
			shapes[op.String()] = hello.Descriptor(op).Shape().String()
		}
	}
	want := map[string]string{
		"service-available?": "boolean",
		"known-method?":      "set",
		"allowed-methods":    "set",
		"produces":           "sequence",
		"body":               "mapping",
		"status":             "number",
		"headers":            "mapping",
		"post":               "string",
		"allow-origin":       "string",
		"last-modified":      "opaque-object",
	}
	if diff := cmp.Diff(want, shapes); diff != "" {
		t.Fatalf("shapes mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, resource.NewSet("get", "post"), hello.Descriptor(resource.OpKnownMethod))

	ctx := context.Background()
	lm, err := hello.LastModified(ctx, &resource.Context{}).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), lm)

	down, ok := reg.Lookup("/down")
	require.True(t, ok)
	require.Equal(t, resource.Descriptor(resource.Symbol("delete")), down.Descriptor(resource.OpKnownMethod))
	v, err := down.ServiceAvailable(ctx).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, "120", v.Overrides.Headers["retry-after"])
}

func TestParseResourcesErrors(t *testing.T) {
	cases := map[string]string{
		"unknown top-level key": "things: []",
		"not a sequence":        "resources: {a: b}",
		"missing path":          "resources: [{body: x}]",
		"unknown operation":     "resources: [{path: /a, colour: red}]",
		"derived operation":     "resources: [{path: /a, format-event: x}]",
		"duplicate path":        "resources: [{path: /a}, {path: /a}]",
		"non-string path":       "resources: [{path: 3}]",
		"bad yaml":              "resources: [",
		"file outside body":     "resources: [{path: /a, status: !file x}]",
		"file without type":     "resources: [{path: /a, body: !file x}]",
		"empty file path":       `resources: [{path: /a, body: {text/plain: !file ""}}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResources([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestParseResourcesEmpty(t *testing.T) {
	reg, err := ParseResources(nil)
	require.NoError(t, err)
	require.Empty(t, reg.Paths())

	reg, err = ParseResources([]byte("resources:\n"))
	require.NoError(t, err)
	require.Empty(t, reg.Paths())
}

func TestLoadResourcesFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "resources.yaml")
	require.NoError(t, os.WriteFile(p, []byte(sample), 0o644))
	reg, err := LoadResources(p)
	require.NoError(t, err)
	require.Len(t, reg.Resources(), 2)

	_, err = LoadResources(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestFileBody(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "motd.txt"), []byte("hello there"), 0o644))
	p := filepath.Join(dir, "resources.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
resources:
  - path: /motd
    body: {text/plain: !file motd.txt, text/html: "<p>hi</p>"}
  - path: /gone
    body: {text/plain: !file missing.txt}
`), 0o644))
	reg, err := LoadResources(p)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, ok := reg.Lookup("/motd")
	require.True(t, ok)
	c := &resource.Context{Response: resource.Response{ContentType: "text/plain"}}
	for i := 0; i < 2; i++ {
		v, err := r.Body(ctx, c).Get(ctx)
		require.NoError(t, err)
		src, ok := v.(*resource.Source)
		require.True(t, ok, "body is %T", v)
		var got []byte
		require.NoError(t, src.Drain(ctx, func(item any) error {
			got = append(got, item.([]byte)...)
			return nil
		}))
		require.Equal(t, "hello there", string(got))
		require.NoError(t, src.Close())
	}

	produced, err := r.ProducesFromBody(ctx).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"text/html", "text/plain"}, produced.Members())

	gone, ok := reg.Lookup("/gone")
	require.True(t, ok)
	_, err = gone.Body(ctx, c).Get(ctx)
	require.ErrorIs(t, err, os.ErrNotExist)
}
