package render

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// column is one exported, JSON-visible struct field.
type column struct {
	name  string
	index int
}

// renderTable prints a slice as one row per element under a header row,
// and a single struct or map as "key: value" lines.
func (r *Renderer) renderTable(data any) error {
	v := indirect(reflect.ValueOf(data))
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			fmt.Fprintln(r.out, "(no results)")
			return nil
		}
		r.writeRows(w, v)
	case reflect.Struct:
		for _, col := range columnsOf(v.Type()) {
			fmt.Fprintf(w, "%s:\t%s\n", col.name, cell(v.Field(col.index)))
		}
	case reflect.Map:
		for _, e := range sortedEntries(v) {
			fmt.Fprintf(w, "%s:\t%s\n", e.key, cell(e.val))
		}
	default:
		fmt.Fprintf(w, "%v\n", data)
	}
	return w.Flush()
}

func (r *Renderer) writeRows(w *tabwriter.Writer, v reflect.Value) {
	first := indirect(v.Index(0))
	if first.Kind() != reflect.Struct {
		for i := 0; i < v.Len(); i++ {
			fmt.Fprintln(w, cell(v.Index(i)))
		}
		return
	}

	cols := columnsOf(first.Type())
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.name
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	row := make([]string, len(cols))
	for i := 0; i < v.Len(); i++ {
		elem := indirect(v.Index(i))
		for j, col := range cols {
			if elem.IsValid() {
				row[j] = cell(elem.Field(col.index))
			} else {
				row[j] = ""
			}
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}

func columnsOf(t reflect.Type) []column {
	cols := make([]column, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.ToLower(f.Name)
		if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols
}

type entry struct {
	key string
	val reflect.Value
}

func sortedEntries(m reflect.Value) []entry {
	entries := make([]entry, 0, m.Len())
	iter := m.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: fmt.Sprint(iter.Key().Interface()), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return entries
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// cell formats one value for a table cell. Times print as RFC3339 in UTC
// with the zero time left blank; nested collections print their size.
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() || !v.CanInterface() {
		return ""
	}

	switch x := v.Interface().(type) {
	case time.Time:
		if x.IsZero() {
			return ""
		}
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}
