package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	resource "github.com/hanpama/resourceful/internal/resource"
	stream "github.com/hanpama/resourceful/internal/stream"
)

// fileChunk is the read size of a !file body.
const fileChunk = 32 * 1024

// LoadResources reads a resource file and registers every resource in it.
func LoadResources(path string) (*resource.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources: %w", err)
	}
	reg, err := parseResources(data, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// ParseResources decodes a resource document of the form
//
//	resources:
//	  - path: /hello
//	    body: {text/html: "<p>hi</p>"}
//
// Each key besides path names an operation, with or without its trailing "?".
// A !!set mapping becomes a set; method names under known-method and
// allowed-methods become symbols. A body representation tagged !file is read
// from that file on every request and streamed:
//
//	body: {text/plain: !file motd.txt}
//
// Relative file paths are resolved against the working directory here and
// against the resource file's directory in LoadResources.
func ParseResources(data []byte) (*resource.Registry, error) {
	return parseResources(data, "")
}

func parseResources(data []byte, dir string) (*resource.Registry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse resources: %w", err)
	}
	reg := resource.NewRegistry()
	if doc.Kind == 0 {
		return reg, nil
	}
	root := deref(&doc)
	if root.Kind != yaml.MappingNode {
		return nil, nodeErr(root, "document must be a mapping")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], deref(root.Content[i+1])
		if key.Value != "resources" {
			return nil, nodeErr(key, "unknown key %q", key.Value)
		}
		if val.Kind == yaml.ScalarNode && val.ShortTag() == "!!null" {
			continue
		}
		if val.Kind != yaml.SequenceNode {
			return nil, nodeErr(val, "resources must be a sequence")
		}
		for _, item := range val.Content {
			r, err := parseResource(deref(item), dir)
			if err != nil {
				return nil, err
			}
			if err := reg.Register(r); err != nil {
				return nil, nodeErr(item, "%v", err)
			}
		}
	}
	return reg, nil
}

func parseResource(n *yaml.Node, dir string) (*resource.Resource, error) {
	if n.Kind != yaml.MappingNode {
		return nil, nodeErr(n, "resource must be a mapping")
	}
	path := ""
	descriptors := map[resource.Operation]any{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], deref(n.Content[i+1])
		if key.Value == "path" {
			if val.Kind != yaml.ScalarNode || val.ShortTag() != "!!str" {
				return nil, nodeErr(val, "path must be a string")
			}
			path = val.Value
			continue
		}
		op, ok := resource.ParseOperation(key.Value)
		if !ok {
			return nil, nodeErr(key, "unknown key %q", key.Value)
		}
		if !op.Registrable() {
			return nil, nodeErr(key, "%s is derived and cannot be set", op)
		}
		if _, dup := descriptors[op]; dup {
			return nil, nodeErr(key, "duplicate key %q", key.Value)
		}
		v, err := value(val)
		if err != nil {
			return nil, err
		}
		switch op {
		case resource.OpKnownMethod, resource.OpAllowedMethods:
			v = methods(v)
		case resource.OpBody:
			v = representations(v, dir)
		}
		if hasFile(v) {
			return nil, nodeErr(val, "!file is only allowed as a body representation")
		}
		descriptors[op] = v
	}
	if path == "" {
		return nil, nodeErr(n, "resource without path")
	}
	return resource.New(path, descriptors)
}

// value converts a node to the plain Go value resource.Of classifies.
func value(n *yaml.Node) (any, error) {
	n = deref(n)
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!file" {
			if n.Value == "" {
				return nil, nodeErr(n, "!file needs a path")
			}
			return fileRef(n.Value), nil
		}
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!str":
			return n.Value, nil
		case "!!timestamp":
			var t time.Time
			if err := n.Decode(&t); err != nil {
				return nil, nodeErr(n, "%v", err)
			}
			return t, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, nodeErr(n, "%v", err)
		}
		return v, nil
	case yaml.SequenceNode:
		out := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := value(c)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case yaml.MappingNode:
		if n.ShortTag() == "!!set" {
			members := make([]string, 0, len(n.Content)/2)
			for i := 0; i < len(n.Content); i += 2 {
				members = append(members, n.Content[i].Value)
			}
			return resource.NewSet(members...), nil
		}
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return nil, nodeErr(k, "mapping keys must be scalars")
			}
			v, err := value(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[k.Value] = v
		}
		return out, nil
	}
	return nil, nodeErr(n, "unsupported node")
}

// methods turns method names into symbols and a list of them into a set.
func methods(v any) any {
	switch v := v.(type) {
	case string:
		return resource.Symbol(strings.ToLower(v))
	case []any:
		s := resource.Set{}
		for _, e := range v {
			if str, ok := e.(string); ok {
				s[strings.ToLower(str)] = struct{}{}
			}
		}
		return s
	case resource.Set:
		s := make(resource.Set, len(v))
		for m := range v {
			s[strings.ToLower(m)] = struct{}{}
		}
		return s
	}
	return v
}

// fileRef is the path of a !file scalar.
type fileRef string

// representations keeps a mapping nested under a content type whole, so it
// is sent as a document instead of being looked up by content type again.
// File references become callbacks streaming the file.
func representations(v any, dir string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for ct, e := range m {
		switch e := e.(type) {
		case map[string]any:
			m[ct] = resource.Opaque{Value: e}
		case fileRef:
			p := string(e)
			if !filepath.IsAbs(p) && dir != "" {
				p = filepath.Join(dir, p)
			}
			m[ct] = fileBody(p)
		}
	}
	return m
}

// fileBody opens path for each request. The server closes the stream, and
// with it the file, once the response is written.
func fileBody(path string) resource.Func {
	return func(any) (any, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return stream.FromReader(context.Background(), f, fileChunk), nil
	}
}

// hasFile reports whether a file reference is left anywhere in v.
func hasFile(v any) bool {
	switch v := v.(type) {
	case fileRef:
		return true
	case resource.Opaque:
		return hasFile(v.Value)
	case []any:
		for _, e := range v {
			if hasFile(e) {
				return true
			}
		}
	case map[string]any:
		for _, e := range v {
			if hasFile(e) {
				return true
			}
		}
	}
	return false
}

func deref(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.DocumentNode || n.Kind == yaml.AliasNode {
		if n.Kind == yaml.AliasNode {
			n = n.Alias
			continue
		}
		if len(n.Content) == 0 {
			return n
		}
		n = n.Content[0]
	}
	return n
}

func nodeErr(n *yaml.Node, format string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.Line, fmt.Sprintf(format, args...))
}
