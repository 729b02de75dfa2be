package sparql

import (
	"encoding/json"
	"fmt"
)

// Binding is one result row: variable name to lexical value.
type Binding map[string]string

// Value returns the value bound to name, or "" when unbound.
func (b Binding) Value(name string) string { return b[name] }

// Result is a tabular SPARQL SELECT result.
type Result struct {
	Vars []string  `json:"vars"`
	Rows []Binding `json:"rows"`
}

// Empty reports whether the result carries no rows.
func (r *Result) Empty() bool { return r == nil || len(r.Rows) == 0 }

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

type wireTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

type wireResponse struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]wireTerm `json:"bindings"`
	} `json:"results"`
}

// DecodeResult parses an application/sparql-results+json document. A body
// without a results.bindings member is rejected as unparseable.
func DecodeResult(body []byte) (*Result, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decode sparql json: %w", err)
	}
	if wire.Results == nil || wire.Results.Bindings == nil {
		return nil, fmt.Errorf("decode sparql json: missing results.bindings")
	}
	res := &Result{
		Vars: wire.Head.Vars,
		Rows: make([]Binding, 0, len(wire.Results.Bindings)),
	}
	for _, raw := range wire.Results.Bindings {
		row := make(Binding, len(raw))
		for name, term := range raw {
			row[name] = term.Value
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}
