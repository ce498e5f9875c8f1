// Package fields holds the serialization rules shared by every entity block:
// the NULL sentinel, fixed-decimal number formatting, defaults, timestamps
// and the parameterized statements built from them.
package fields

import (
	"database/sql"
	"strconv"
	"strings"
)

type kind uint8

const (
	kindNull kind = iota
	kindText
	kindNumber
	kindInteger
)

// Value is a single field value on its way to a target table. The zero
// Value is NULL, which is distinct from 0 and from "".
type Value struct {
	kind kind
	text string
	i    int64
}

// Null is the NULL sentinel.
var Null Value

// Str returns a text value.
func Str(s string) Value {
	return Value{kind: kindText, text: s}
}

// NullStr returns a text value, or NULL when ns is not valid.
func NullStr(ns sql.NullString) Value {
	if !ns.Valid {
		return Null
	}
	return Str(ns.String)
}

// Fixed returns f formatted with dp decimals. A negative dp keeps the
// shortest representation.
func Fixed(f float64, dp int) Value {
	return Value{kind: kindNumber, text: strconv.FormatFloat(f, 'f', dp, 64)}
}

func NullFixed(nf sql.NullFloat64, dp int) Value {
	if !nf.Valid {
		return Null
	}
	return Fixed(nf.Float64, dp)
}

func Float(f float64) Value { return Fixed(f, -1) }

func NullFloat(nf sql.NullFloat64) Value { return NullFixed(nf, -1) }

func Int(i int64) Value {
	return Value{kind: kindInteger, text: strconv.FormatInt(i, 10), i: i}
}

func NullInt(ni sql.NullInt64) Value {
	if !ni.Valid {
		return Null
	}
	return Int(ni.Int64)
}

func (v Value) IsNull() bool { return v.kind == kindNull }

// Or returns def when v is NULL.
func (v Value) Or(def Value) Value {
	if v.IsNull() {
		return def
	}
	return v
}

// Text returns the formatted value without quoting. NULL gives "".
func (v Value) Text() string { return v.text }

// Literal renders v as it appears in SQL text: NULL unquoted, numbers
// unquoted, text single-quoted with embedded quotes doubled.
func (v Value) Literal() string {
	switch v.kind {
	case kindNull:
		return "NULL"
	case kindText:
		return "'" + strings.ReplaceAll(v.text, "'", "''") + "'"
	}
	return v.text
}

// Arg returns the value to bind for a placeholder. Numbers are parsed back
// from their formatted text so the stored value equals the rendered one.
func (v Value) Arg() interface{} {
	switch v.kind {
	case kindText:
		return v.text
	case kindNumber:
		f, _ := strconv.ParseFloat(v.text, 64)
		return f
	case kindInteger:
		return v.i
	}
	return nil
}

// Truncate shortens a text value to at most n runes.
func (v Value) Truncate(n int) Value {
	if v.kind != kindText {
		return v
	}
	r := []rune(v.text)
	if len(r) <= n {
		return v
	}
	return Str(string(r[:n]))
}
