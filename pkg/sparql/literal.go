package sparql

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// XSD datatype IRIs used for typed literals.
const (
	XSDInteger = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDouble  = "http://www.w3.org/2001/XMLSchema#double"
)

// EscapeLiteral escapes s for use between double quotes in a SPARQL string
// literal. Control characters without a short escape become \uXXXX.
func EscapeLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}

	return b.String()
}

// Literal renders s as a quoted plain string literal.
func Literal(s string) string {
	return `"` + EscapeLiteral(s) + `"`
}

// IntegerLiteral renders n as an xsd:integer literal.
func IntegerLiteral(n int64) string {
	return fmt.Sprintf(`"%d"^^<%s>`, n, XSDInteger)
}

// DoubleLiteral renders f as an xsd:double literal in its shortest form.
func DoubleLiteral(f float64) string {
	return fmt.Sprintf(`"%s"^^<%s>`, strconv.FormatFloat(f, 'g', -1, 64), XSDDouble)
}

// IRI wraps iri in angle brackets. Characters that may not appear inside an
// IRIREF are percent-encoded.
func IRI(iri string) string {
	var b strings.Builder
	b.Grow(len(iri) + 2)
	b.WriteByte('<')

	for _, r := range iri {
		if r <= 0x20 || strings.ContainsRune("<>\"{}|^`\\", r) {
			b.WriteString(url.PathEscape(string(r)))
			continue
		}
		b.WriteRune(r)
	}

	b.WriteByte('>')
	return b.String()
}

var readForm = regexp.MustCompile(`(?is)^\s*(?:(?:#[^\n]*|PREFIX\s+[^\s:]*:\s*<[^>]*>|BASE\s*<[^>]*>)\s*)*(?:SELECT|ASK|CONSTRUCT|DESCRIBE)\b`)

// IsReadQuery reports whether statement is a query form (SELECT, ASK,
// CONSTRUCT, DESCRIBE) rather than an update, looking past the prologue.
func IsReadQuery(statement string) bool {
	return readForm.MatchString(statement)
}
