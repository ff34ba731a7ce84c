// Package output renders command results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects how a Printer renders values.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts table, json, yaml (or yml). Empty means table.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("invalid output format %q (valid: table, json, yaml)", s)
}

// Printer writes values in one format.
type Printer struct {
	w      io.Writer
	format Format
	color  bool
}

// NewPrinter creates a Printer. color enables ANSI colors for notices.
func NewPrinter(w io.Writer, format Format, color bool) *Printer {
	return &Printer{w: w, format: format, color: color}
}

func (p *Printer) Format() Format { return p.format }

// Print renders v. In table format v must implement TableRenderer,
// otherwise it is printed as JSON.
func (p *Printer) Print(v any) error {
	switch p.format {
	case FormatJSON:
		return JSON(p.w, v)
	case FormatYAML:
		return YAML(p.w, v)
	case FormatTable:
		if t, ok := v.(TableRenderer); ok {
			return Table(p.w, t)
		}
		return JSON(p.w, v)
	}
	return fmt.Errorf("unknown format %q", p.format)
}

const (
	ansiGreen  = "32"
	ansiYellow = "33"
	ansiRed    = "31"
)

func (p *Printer) notice(code, msg string) {
	if p.color {
		_, _ = fmt.Fprintf(p.w, "\033[%sm%s\033[0m\n", code, msg)
		return
	}
	_, _ = fmt.Fprintln(p.w, msg)
}

func (p *Printer) Success(msg string) { p.notice(ansiGreen, msg) }
func (p *Printer) Warning(msg string) { p.notice(ansiYellow, msg) }
func (p *Printer) Error(msg string)   { p.notice(ansiRed, msg) }

// JSON writes v as indented JSON.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// YAML writes v as YAML with two-space indentation.
func YAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
