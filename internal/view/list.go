// Package view renders the call store for terminals and scripts.
package view

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"firestige.xyz/sipflow/internal/core"
	"firestige.xyz/sipflow/internal/sip"
)

// Settings is the part of the option store the renderers read.
type Settings interface {
	Value(key string) string
	IntValue(key string) int
	Decode(prefix string, out any) error
}

// ListSettings are the "cl." options.
type ListSettings struct {
	Columns    int  `mapstructure:"columns"`
	Autoscroll bool `mapstructure:"autoscroll"`
	Scrollstep int  `mapstructure:"scrollstep"`
}

// Column is one call list column.
type Column struct {
	Attr  sip.AttrID
	Title string
	Width int
}

// Row is one visible call.
type Row struct {
	Index  int // 1-based position among visible calls
	CallID string
	Values []string // one per column
}

// CallList is a snapshot of the visible calls.
type CallList struct {
	Settings ListSettings
	Columns  []Column
	Rows     []Row
	Total    int
}

// LoadColumns reads cl.columnN and cl.columnN.width for every configured
// column. A width of zero or less sizes the column to its title.
func LoadColumns(s Settings) ([]Column, ListSettings, error) {
	var ls ListSettings
	if err := s.Decode("cl.", &ls); err != nil {
		return nil, ls, err
	}

	cols := make([]Column, 0, ls.Columns)
	for i := 0; i < ls.Columns; i++ {
		name := s.Value("cl.column" + strconv.Itoa(i))
		id, ok := sip.AttrFromName(name)
		if !ok {
			return nil, ls, fmt.Errorf("%w: cl.column%d = %q", core.ErrUnknownAttribute, i, name)
		}
		title := sip.AttrDescription(id)
		width := s.IntValue("cl.column" + strconv.Itoa(i) + ".width")
		if width <= 0 {
			width = utf8.RuneCountInString(title)
		}
		cols = append(cols, Column{Attr: id, Title: title, Width: width})
	}
	return cols, ls, nil
}

// BuildCallList snapshots the visible calls of store.
func BuildCallList(store *sip.Store, s Settings) (*CallList, error) {
	cols, ls, err := LoadColumns(s)
	if err != nil {
		return nil, err
	}

	l := &CallList{Settings: ls, Columns: cols, Total: store.Count()}
	for c := store.NextVisible(nil); c != nil; c = store.NextVisible(c) {
		l.Rows = append(l.Rows, NewRow(len(l.Rows)+1, c, cols))
	}
	return l, nil
}

// NewRow renders the columns of call c.
func NewRow(index int, c *sip.Call, cols []Column) Row {
	r := Row{Index: index, CallID: c.ID(), Values: make([]string, len(cols))}
	for i, col := range cols {
		r.Values[i], _ = c.Attribute(col.Attr)
	}
	return r
}

// WriteHeader prints the column titles.
func (l *CallList) WriteHeader(w io.Writer) error {
	cells := make([]string, len(l.Columns))
	for i, col := range l.Columns {
		cells[i] = fit(col.Title, col.Width)
	}
	_, err := fmt.Fprintf(w, "%-5s %s\n", "Idx", strings.TrimRight(strings.Join(cells, " "), " "))
	return err
}

// WriteRow prints one row aligned to the columns.
func (l *CallList) WriteRow(w io.Writer, r Row) error {
	cells := make([]string, len(l.Columns))
	for i, col := range l.Columns {
		cells[i] = fit(r.Values[i], col.Width)
	}
	_, err := fmt.Fprintf(w, "%-5d %s\n", r.Index, strings.TrimRight(strings.Join(cells, " "), " "))
	return err
}

// WriteText prints the header, every row and a summary line.
func (l *CallList) WriteText(w io.Writer) error {
	if err := l.WriteHeader(w); err != nil {
		return err
	}
	for _, r := range l.Rows {
		if err := l.WriteRow(w, r); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s\n", l.Summary())
	return err
}

// Summary returns the call counters line.
func (l *CallList) Summary() Summary {
	return Summary{Total: l.Total, Visible: len(l.Rows)}
}

type listDoc struct {
	Total   int       `yaml:"total"`
	Visible int       `yaml:"visible"`
	Calls   []callDoc `yaml:"calls"`
}

type callDoc struct {
	Index      int       `yaml:"index"`
	CallID     string    `yaml:"callid"`
	Attributes yaml.Node `yaml:"attributes"`
}

// WriteYAML prints the list as a YAML document. Attributes keep column order.
func (l *CallList) WriteYAML(w io.Writer) error {
	doc := listDoc{Total: l.Total, Visible: len(l.Rows), Calls: make([]callDoc, 0, len(l.Rows))}
	for _, r := range l.Rows {
		attrs := yaml.Node{Kind: yaml.MappingNode}
		for i, col := range l.Columns {
			attrs.Content = append(attrs.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: sip.AttrName(col.Attr)},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: r.Values[i]},
			)
		}
		doc.Calls = append(doc.Calls, callDoc{Index: r.Index, CallID: r.CallID, Attributes: attrs})
	}
	return encodeYAML(w, doc)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("view: encode yaml: %w", err)
	}
	return enc.Close()
}

// fit pads or truncates s to width runes.
func fit(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		r := []rune(s)
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-n)
}
