package storage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tobert/perfdash/internal/discover"
)

// condition is one whitespace-separated term of a filter predicate.
//
//	key:value     field equals value ('*' matches any run of characters)
//	!key:value    negation
//	key:>100      numeric comparison (>, >=, <, <=)
//	key:"a b"     quoted value
//	word          title contains word, case-insensitive
//
// A backslash makes the next character literal: \* is a star, \" a quote
// and \\ a backslash.
type condition struct {
	key    string
	op     string
	value  string
	negate bool
	glob   *regexp.Regexp
	number float64
}

// parseConditions splits a predicate into terms. Unbalanced quotes are an
// error.
func parseConditions(filter string) ([]condition, error) {
	tokens, err := tokenize(filter)
	if err != nil {
		return nil, err
	}

	conds := make([]condition, 0, len(tokens))
	for _, tok := range tokens {
		var c condition
		if rest, ok := strings.CutPrefix(tok, "!"); ok && rest != "" {
			c.negate, tok = true, rest
		}

		key, value, hasKey := strings.Cut(tok, ":")
		if !hasKey || key == "" {
			c.op = "contains"
			c.value, _ = literal(unquote(tok))
			c.value = strings.ToLower(c.value)
			conds = append(conds, c)
			continue
		}

		c.key, c.op = key, "="
		for _, op := range []string{">=", "<=", ">", "<"} {
			if rest, ok := strings.CutPrefix(value, op); ok {
				n, err := strconv.ParseFloat(rest, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid numeric condition %q: %w", tok, err)
				}
				c.op, c.value, c.number = op, rest, n
				break
			}
		}
		if c.op == "=" {
			var pattern string
			c.value, pattern = literal(unquote(value))
			if pattern != "" {
				c.glob = regexp.MustCompile(pattern)
			}
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// literal resolves escapes in a value. pattern is the anchored regular
// expression when the value has an unescaped '*', and empty otherwise.
func literal(raw string) (value, pattern string) {
	var (
		lit, re strings.Builder
		glob    bool
		escaped bool
	)
	for _, r := range raw {
		switch {
		case escaped:
			escaped = false
			lit.WriteRune(r)
			re.WriteString(regexp.QuoteMeta(string(r)))
		case r == '\\':
			escaped = true
		case r == '*':
			glob = true
			lit.WriteRune(r)
			re.WriteString(".*")
		default:
			lit.WriteRune(r)
			re.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		lit.WriteRune('\\')
		re.WriteString(`\\`)
	}
	if !glob {
		return lit.String(), ""
	}
	return lit.String(), "^" + re.String() + "$"
}

// QuoteValue makes s match itself exactly as the value of a key:value term.
func QuoteValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '"', '*':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" || strings.ContainsAny(out, " \t\n") || strings.ContainsAny(out[:1], "<>") {
		return `"` + out + `"`
	}
	return out
}

// tokenize splits on whitespace outside double quotes. Escaped characters
// stay in the token with their backslash.
func tokenize(s string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
		escaped bool
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
			cur.WriteRune(r)
		case r == '\\':
			escaped = true
			cur.WriteRune(r)
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && (r == ' ' || r == '\t' || r == '\n'):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in %q", s)
	}
	flush()
	return tokens, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func (c condition) matches(r discover.Record) bool {
	return c.eval(r) != c.negate
}

func (c condition) eval(r discover.Record) bool {
	if c.op == "contains" {
		return strings.Contains(strings.ToLower(r.Title), c.value)
	}

	v, ok := r.Field(c.key)
	switch c.op {
	case "=":
		if !ok {
			return c.value == ""
		}
		if c.glob != nil {
			return c.glob.MatchString(v.String())
		}
		return v.String() == c.value || (c.key == discover.FieldTimestamp && sameInstant(v.String(), c.value))
	default:
		if !ok {
			return false
		}
		n, isNum := v.Number()
		if !isNum {
			return false
		}
		switch c.op {
		case ">":
			return n > c.number
		case ">=":
			return n >= c.number
		case "<":
			return n < c.number
		case "<=":
			return n <= c.number
		}
	}
	return false
}

func sameInstant(a, b string) bool {
	ta, err := time.Parse(time.RFC3339Nano, a)
	if err != nil {
		return false
	}
	tb, err := time.Parse(time.RFC3339Nano, b)
	return err == nil && ta.Equal(tb)
}

func matchesAll(r discover.Record, conds []condition) bool {
	for _, c := range conds {
		if !c.matches(r) {
			return false
		}
	}
	return true
}
