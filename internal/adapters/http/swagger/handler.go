// Package swagger serves the API reference.
package swagger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Error constants.
var (
	ErrServe = errors.New("api reference render failed")
)

// Register attaches the API reference routes to mux.
// Routes:
//
//	GET /api-docs      -> HTML reference rendered from the embedded spec
//	GET /openapi.yaml  -> embedded OpenAPI spec
//
// The reference page is rendered once, without external scripts, so it
// works offline and never changes under a running binary.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	page, renderErr := renderIndex(OpenAPI)

	mux.HandleFunc("/api-docs", func(w http.ResponseWriter, r *http.Request) {
		if renderErr != nil {
			http.Error(w, renderErr.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		_, _ = w.Write(OpenAPI)
	})
}

type document struct {
	Info struct {
		Title       string `yaml:"title"`
		Version     string `yaml:"version"`
		Description string `yaml:"description"`
	} `yaml:"info"`
	Paths map[string]map[string]yaml.Node `yaml:"paths"`
}

type operationDoc struct {
	Summary   string                 `yaml:"summary"`
	Responses map[string]responseDoc `yaml:"responses"`
}

type responseDoc struct {
	Description string `yaml:"description"`
	Ref         string `yaml:"$ref"`
}

type operation struct {
	Method    string
	Path      string
	Summary   string
	Responses []response
}

type response struct {
	Status      string
	Description string
}

var methodOrder = []string{"get", "post", "put", "patch", "delete"}

// renderIndex turns the OpenAPI document into a static HTML reference.
func renderIndex(spec []byte) ([]byte, error) {
	var doc document
	if err := yaml.Unmarshal(spec, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServe, err)
	}

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var ops []operation
	for _, p := range paths {
		for _, m := range methodOrder {
			node, ok := doc.Paths[p][m]
			if !ok {
				continue
			}
			var od operationDoc
			if err := node.Decode(&od); err != nil {
				return nil, fmt.Errorf("%w: %s %s: %v", ErrServe, m, p, err)
			}
			op := operation{Method: m, Path: p, Summary: od.Summary}
			codes := make([]string, 0, len(od.Responses))
			for c := range od.Responses {
				codes = append(codes, c)
			}
			sort.Strings(codes)
			for _, c := range codes {
				desc := od.Responses[c].Description
				if desc == "" {
					n, _ := strconv.Atoi(c)
					desc = http.StatusText(n)
				}
				op.Responses = append(op.Responses, response{Status: c, Description: desc})
			}
			ops = append(ops, op)
		}
	}

	var buf bytes.Buffer
	err := indexTemplate.Execute(&buf, struct {
		Title       string
		Version     string
		Description string
		Operations  []operation
	}{doc.Info.Title, doc.Info.Version, doc.Info.Description, ops})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServe, err)
	}
	return buf.Bytes(), nil
}

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <style>
      body{font-family:sans-serif;margin:2em;max-width:60em}
      .op{border-top:1px solid #ddd;padding:.5em 0}
      .method{display:inline-block;min-width:4em;font-weight:bold;text-transform:uppercase}
      code{font-size:1.05em}
      ul{margin:.3em 0}
    </style>
  </head>
  <body>
    <h1>{{.Title}} <small>{{.Version}}</small></h1>
    <p>{{.Description}}</p>
    <p>Machine readable spec: <a href="/openapi.yaml">/openapi.yaml</a></p>
    {{range .Operations}}
    <div class="op" id="{{.Method}}-{{.Path}}">
      <span class="method">{{.Method}}</span> <code>{{.Path}}</code>
      <div>{{.Summary}}</div>
      <ul>{{range .Responses}}<li><code>{{.Status}}</code> {{.Description}}</li>{{end}}</ul>
    </div>
    {{end}}
  </body>
</html>
`))
