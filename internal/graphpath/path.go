// Package graphpath evaluates path expressions against a normalized JSON
// object store, the flat key->object cache that client-rendered sites embed
// in their pages (Apollo state inside __NEXT_DATA__ being the usual case).
//
// Objects in the store refer to each other through a reference marker
// ({"__ref": "Person:9"}) instead of nesting. The store is never turned into
// a pointer graph; every dereference is a key lookup, so cycles are harmless.
//
// Path grammar, left to right:
//
//	name    field access (segments separated by '.')
//	[*]     array expansion
//	->      reference resolution
//	{var}   substituted from URL variables before tokenizing
//
// "->" followed by a field name reads that field on the resolved object, in
// one step. A trailing "->", or one followed by "->" or "[*]", yields the
// resolved objects themselves.
package graphpath

import (
	"regexp"
	"strings"
)

// RefField is the reference marker field of a normalized object.
const RefField = "__ref"

// Store is a normalized object store: top-level key -> JSON value, as
// produced by a JSON decoder (map[string]any, []any, string, json.Number,
// bool, nil).
type Store map[string]any

// TokenKind identifies a path token.
type TokenKind int

const (
	TokenField TokenKind = iota
	TokenExpand
	TokenDeref
)

// Token is one step of a tokenized path.
type Token struct {
	Kind TokenKind
	Name string
}

func (t Token) String() string {
	switch t.Kind {
	case TokenExpand:
		return "[*]"
	case TokenDeref:
		return "->"
	default:
		return t.Name
	}
}

var rePlaceholder = regexp.MustCompile(`\{(\w+)\}`)

// ExpandVars replaces {name} placeholders with vars[name]. Placeholders with
// no (or an empty) value are left as they are.
func ExpandVars(template string, vars map[string]string) string {
	return rePlaceholder.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		if v := vars[name]; v != "" {
			return v
		}
		return m
	})
}

// Tokenize splits an already expanded path into tokens. A literal runs until
// '.', "[*]" or "->"; empty literals are dropped.
func Tokenize(path string) []Token {
	var (
		toks []Token
		lit  strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(lit.String()); s != "" {
			toks = append(toks, Token{Kind: TokenField, Name: s})
		}
		lit.Reset()
	}

	for i := 0; i < len(path); {
		switch {
		case strings.HasPrefix(path[i:], "->"):
			flush()
			toks = append(toks, Token{Kind: TokenDeref})
			i += 2
		case strings.HasPrefix(path[i:], "[*]"):
			flush()
			toks = append(toks, Token{Kind: TokenExpand})
			i += 3
		case path[i] == '.':
			flush()
			i++
		default:
			lit.WriteByte(path[i])
			i++
		}
	}
	flush()
	return toks
}

// Eval evaluates path against store after substituting vars. It returns
// ok=false when no node survives. One surviving node is returned as is;
// several are returned as []any in evaluation order, duplicates included.
//
// Eval never fails: missing fields, non-object nodes and dangling references
// simply drop out of the working set.
func Eval(store Store, path string, vars map[string]string) (any, bool) {
	toks := Tokenize(ExpandVars(path, vars))
	nodes := []any{map[string]any(store)}

	for i := 0; i < len(toks) && len(nodes) > 0; i++ {
		switch toks[i].Kind {
		case TokenField:
			nodes = readField(nodes, toks[i].Name)

		case TokenExpand:
			var next []any
			for _, n := range nodes {
				if arr, ok := n.([]any); ok {
					next = append(next, arr...)
				}
			}
			nodes = next

		case TokenDeref:
			resolved := store.resolveAll(nodes)
			if i+1 < len(toks) && toks[i+1].Kind == TokenField {
				nodes = readField(resolved, toks[i+1].Name)
				i++
				continue
			}
			nodes = resolved
		}
	}

	switch len(nodes) {
	case 0:
		return nil, false
	case 1:
		return nodes[0], true
	default:
		return nodes, true
	}
}

// Resolve dereferences a single reference record.
func (s Store) Resolve(node any) (any, bool) {
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	ref, ok := obj[RefField].(string)
	if !ok {
		return nil, false
	}
	v, ok := s[ref]
	return v, ok
}

func (s Store) resolveAll(nodes []any) []any {
	var out []any
	for _, n := range nodes {
		if v, ok := s.Resolve(n); ok {
			out = append(out, v)
		}
	}
	return out
}

func readField(nodes []any, name string) []any {
	var out []any
	for _, n := range nodes {
		obj, ok := n.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := obj[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// DotPath follows a plain dotted path (no expansion, no references). An
// empty path returns v itself.
func DotPath(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
