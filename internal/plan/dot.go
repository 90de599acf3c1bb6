package plan

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNilWriter indicates that a nil writer was provided to ExportDOT.
var ErrNilWriter = errors.New("plan: nil writer")

// ExportDOT renders p in Graphviz DOT format, one node per step, edges from
// dependency to dependent, and one rank per wave.
func ExportDOT(w io.Writer, p Plan, name string) error {
	if w == nil {
		return ErrNilWriter
	}
	waves, err := Waves(p)
	if err != nil {
		return err
	}
	if name == "" {
		name = "plan"
	}

	if _, err := fmt.Fprintf(w, "digraph %s {\n    rankdir=LR;\n", dotQuote(name)); err != nil {
		return err
	}
	for _, s := range p.Steps {
		label := fmt.Sprintf("%d: %s\n%s", s.Index, s.HandlerID, s.Task)
		if _, err := fmt.Fprintf(w, "    s%d [label=%s];\n", s.Index, dotQuote(label)); err != nil {
			return err
		}
	}
	for _, s := range p.Steps {
		for _, d := range s.Dependencies {
			if _, err := fmt.Fprintf(w, "    s%d -> s%d;\n", d, s.Index); err != nil {
				return err
			}
		}
	}
	for _, wave := range waves {
		ids := make([]string, len(wave))
		for i, idx := range wave {
			ids[i] = fmt.Sprintf("s%d", idx)
		}
		if _, err := fmt.Fprintf(w, "    { rank=same; %s; }\n", strings.Join(ids, "; ")); err != nil {
			return err
		}
	}
	_, err = io.WriteString(w, "}\n")
	return err
}

func dotQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
