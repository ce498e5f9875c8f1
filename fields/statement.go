package fields

import (
	"strings"
)

// SQL types used in CAST expressions. Firebird cannot infer the type of a
// parameter in a select list, so every placeholder is cast.
const (
	TypeDouble  = "DOUBLE PRECISION"
	TypeInteger = "INTEGER"
	TypeText    = "VARCHAR(255)"
)

// NameColumn is the natural key of every HE table.
const NameColumn = "NAME"

type Column struct {
	Name  string
	Type  string
	Value Value
}

func Double(name string, v Value) Column  { return Column{Name: name, Type: TypeDouble, Value: v} }
func Integer(name string, v Value) Column { return Column{Name: name, Type: TypeInteger, Value: v} }
func Text(name string, v Value) Column    { return Column{Name: name, Type: TypeText, Value: v} }

// Statement is parameterized SQL together with the values bound to its
// placeholders, in order.
type Statement struct {
	SQL    string
	values []Value
}

func NewStatement(query string, values ...Value) Statement {
	return Statement{SQL: query, values: values}
}

// Args returns the driver arguments of the statement.
func (s Statement) Args() []interface{} {
	args := make([]interface{}, len(s.values))
	for i, v := range s.values {
		args[i] = v.Arg()
	}
	return args
}

// Render returns the statement with every placeholder replaced by the
// literal of its value. It is used for logs and error reports only.
func (s Statement) Render() string {
	var b strings.Builder
	b.Grow(len(s.SQL) + 16*len(s.values))

	n := 0
	var quote byte
	for i := 0; i < len(s.SQL); i++ {
		c := s.SQL[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '?' && n < len(s.values):
			b.WriteString(s.values[n].Literal())
			n++
			continue
		}
		b.WriteByte(c)
	}

	return b.String()
}

// Row is one record for a target table.
type Row struct {
	Table   string
	Columns []Column
}

// Get returns the value of the named column, or NULL.
func (r Row) Get(column string) Value {
	for _, c := range r.Columns {
		if c.Name == column {
			return c.Value
		}
	}
	return Null
}

// Name returns the value of the NAME column, or NULL.
func (r Row) Name() Value { return r.Get(NameColumn) }

func placeholder(c Column) string {
	return "CAST(? AS " + c.Type + ")"
}

// Update builds UPDATE <table> SET c = CAST(? AS t), ... WHERE NAME = ?.
func (r Row) Update() Statement {
	var set []string
	var values []Value
	for _, c := range r.Columns {
		if c.Name == NameColumn {
			continue
		}
		set = append(set, c.Name+" = "+placeholder(c))
		values = append(values, c.Value)
	}
	values = append(values, r.Name())

	query := "UPDATE " + r.Table + " SET " + strings.Join(set, ", ") + " WHERE " + NameColumn + " = ?"
	return NewStatement(query, values...)
}

// InsertIfMissing builds an insert of the row with the given ID that only
// writes when no row with the same NAME exists. A NULL name never inserts.
func (r Row) InsertIfMissing(id int64) Statement {
	names := make([]string, 0, len(r.Columns)+1)
	exprs := make([]string, 0, len(r.Columns)+1)
	values := make([]Value, 0, len(r.Columns)+2)
	for _, c := range r.Columns {
		names = append(names, c.Name)
		exprs = append(exprs, placeholder(c))
		values = append(values, c.Value)
	}
	names = append(names, "ID")
	exprs = append(exprs, "CAST(? AS "+TypeInteger+")")
	values = append(values, Int(id), r.Name())

	query := "INSERT INTO " + r.Table + " (" + strings.Join(names, ", ") + ")" +
		" SELECT " + strings.Join(exprs, ", ") + ` FROM "RDB$DATABASE"` +
		" WHERE CAST(? AS " + TypeText + ") NOT IN (SELECT " + NameColumn + " FROM " + r.Table + ")"
	return NewStatement(query, values...)
}

// Insert builds a plain INSERT ... VALUES statement.
func (r Row) Insert() Statement {
	names := make([]string, len(r.Columns))
	exprs := make([]string, len(r.Columns))
	values := make([]Value, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
		exprs[i] = placeholder(c)
		values[i] = c.Value
	}

	query := "INSERT INTO " + r.Table + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(exprs, ", ") + ")"
	return NewStatement(query, values...)
}

// InsertNew builds an insert of the row that only writes when no row of the
// table has the same value in key. Unlike InsertIfMissing it needs no ID and
// no one-row table, so it suits the QKan side.
func (r Row) InsertNew(key string) Statement {
	names := make([]string, 0, len(r.Columns))
	exprs := make([]string, 0, len(r.Columns))
	values := make([]Value, 0, len(r.Columns)+1)
	for _, c := range r.Columns {
		names = append(names, c.Name)
		exprs = append(exprs, placeholder(c))
		values = append(values, c.Value)
	}
	values = append(values, r.Get(key))

	query := "INSERT INTO " + r.Table + " (" + strings.Join(names, ", ") + ")" +
		" SELECT " + strings.Join(exprs, ", ") +
		" WHERE NOT EXISTS (SELECT 1 FROM " + r.Table + " WHERE " + key + " = CAST(? AS " + TypeText + "))"
	return NewStatement(query, values...)
}
