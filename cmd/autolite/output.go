package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// format is how records are printed.
type format struct {
	json bool
	yaml bool

	// flat prints a list instead of a map keyed by name.
	flat bool
}

func addFormatFlags(cmd *cobra.Command, f *format, list bool) {
	cmd.Flags().BoolVar(&f.json, "json", false, "print as json")
	cmd.Flags().BoolVar(&f.yaml, "yaml", false, "print as yaml")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
	if list {
		cmd.Flags().BoolVar(&f.flat, "flat", false, "print json or yaml as a list, not keyed by name")
	}
}

func (f format) structured() bool {
	return f.json || f.yaml
}

// dump prints v as json or yaml.
func (f format) dump(w io.Writer, v interface{}) error {
	if f.yaml {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// dumpList prints items as json or yaml, keyed by names unless flat.
func (f format) dumpList(w io.Writer, names []string, items []interface{}) error {
	if f.flat {
		return f.dump(w, items)
	}
	m := make(map[string]interface{}, len(items))
	for i, name := range names {
		m[name] = items[i]
	}
	return f.dump(w, m)
}

// printTable prints rows with upper cased headers.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	titles := make([]string, len(headers))
	for i, h := range headers {
		titles[i] = strings.ToUpper(h)
	}
	data := pterm.TableData{titles}
	data = append(data, rows...)
	err := pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(false).
		WithWriter(w).
		WithData(data).
		Render()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}

// fieldRows picks fields out of each record.
func fieldRows(records []map[string]string, fields []string) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = r[f]
		}
		rows = append(rows, row)
	}
	return rows
}

// checkFields checks every field is one of known.
func checkFields(fields, known []string) error {
	for _, f := range fields {
		ok := false
		for _, k := range known {
			if f == k {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("unknown field: %s", f)
		}
	}
	return nil
}
