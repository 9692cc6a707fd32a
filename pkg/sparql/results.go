// Package sparql provides the wire-level pieces shared by the SPARQL stores:
// parsing of SPARQL 1.1 Query Results JSON and escaping of terms that are
// interpolated into query text.
package sparql

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMalformedResults is returned when a response body is not valid JSON.
var ErrMalformedResults = errors.New("malformed SPARQL results document")

// Term is a single RDF term inside a binding.
type Term struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Binding maps variable names to the terms bound in one result row.
type Binding map[string]Term

// Value returns the lexical value bound to name, or "" when unbound.
func (b Binding) Value(name string) string {
	return b[name].Value
}

// Results is a parsed SPARQL query response. Boolean is only set for ASK.
type Results struct {
	Vars     []string  `json:"vars"`
	Bindings []Binding `json:"bindings"`
	Boolean  *bool     `json:"boolean,omitempty"`
}

// Len returns the number of result rows.
func (r *Results) Len() int {
	if r == nil {
		return 0
	}

	return len(r.Bindings)
}

// ParseResults decodes a SPARQL 1.1 Query Results JSON document. An empty
// body yields empty results, which is what update endpoints usually return.
func ParseResults(body []byte) (*Results, error) {
	results := &Results{}

	if len(body) == 0 {
		return results, nil
	}

	if !gjson.ValidBytes(body) {
		return nil, ErrMalformedResults
	}

	doc := gjson.ParseBytes(body)

	for _, v := range doc.Get("head.vars").Array() {
		results.Vars = append(results.Vars, v.String())
	}

	if b := doc.Get("boolean"); b.Exists() {
		value := b.Bool()
		results.Boolean = &value
	}

	// A null bindings member is what encoding/json writes for a nil slice.
	rows := doc.Get("results.bindings")
	if rows.Exists() && rows.Type != gjson.Null && !rows.IsArray() {
		return nil, fmt.Errorf("%w: results.bindings is not an array", ErrMalformedResults)
	}

	rows.ForEach(func(_, row gjson.Result) bool {
		binding := make(Binding)

		row.ForEach(func(name, term gjson.Result) bool {
			binding[name.String()] = Term{
				Type:     term.Get("type").String(),
				Value:    term.Get("value").String(),
				Datatype: term.Get("datatype").String(),
				Lang:     term.Get(`xml\:lang`).String(),
			}
			return true
		})

		results.Bindings = append(results.Bindings, binding)
		return true
	})

	return results, nil
}
