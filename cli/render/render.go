// Package render prints command results (backfill summaries, version) as
// JSON, YAML or an aligned table.
//
// Without --format, a terminal gets a table and anything else gets JSON.
// --no-color is accepted for symmetry with watch; plain output has no color.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Format is an output format name.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates s case-insensitively. Empty means "pick for me".
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(s))
	switch f {
	case "", FormatJSON, FormatTable, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
}

// Renderer writes values in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer reads --format and --no-color from c and writes to the
// app's writer, falling back to stdout.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	var out io.Writer = os.Stdout
	if c.App != nil && c.App.Writer != nil {
		out = c.App.Writer
	}
	if format == "" {
		format = defaultFormat(out)
	}
	return NewRendererWithWriter(format, c.Bool("no-color"), out), nil
}

// NewRendererWithWriter builds a renderer for tests and embedding.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Format returns the selected format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render writes data in the renderer's format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	}
	return fmt.Errorf("unknown format: %s", r.format)
}

// defaultFormat picks table for terminals and JSON for pipes and files.
func defaultFormat(out io.Writer) Format {
	f, ok := out.(*os.File)
	if !ok {
		return FormatJSON
	}
	info, err := f.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice == 0 {
		return FormatJSON
	}
	return FormatTable
}
