package pushdown

import (
	"fmt"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/gridframe/pkg/errors"
)

func TestTranslate(t *testing.T) {
	age := Col("age")
	name := Col("name")

	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"comparison", Cmp(OpGt, age, Lit(30)), `{"age":{"$gt":30}}`},
		{"literal on the left", Cmp(OpLt, Lit(30), age), `{"age":{"$gt":30}}`},
		{"not equal", Cmp(OpNe, name, Lit("bob")), `{"name":{"$ne":"bob"}}`},
		{"negated comparison", Not{Cmp(OpGt, age, Lit(30))}, `{"age":{"$lte":30}}`},
		{"negated flipped comparison", Not{Cmp(OpLt, Lit(30), age)}, `{"age":{"$lte":30}}`},
		{"double negation", Not{Not{Cmp(OpEq, age, Lit(1))}}, `{"age":{"$eq":1}}`},
		{
			"and",
			And(Cmp(OpGe, age, Lit(18)), Cmp(OpEq, name, Lit("x"))),
			`{"$and":[{"age":{"$gte":18}},{"name":{"$eq":"x"}}]}`,
		},
		{
			"or",
			Or(Cmp(OpLt, age, Lit(18)), Cmp(OpGt, age, Lit(65))),
			`{"$or":[{"age":{"$lt":18}},{"age":{"$gt":65}}]}`,
		},
		{
			"negated and",
			Not{And(Cmp(OpGe, age, Lit(18)), Cmp(OpEq, name, Lit("x")))},
			`{"$or":[{"age":{"$lt":18}},{"name":{"$ne":"x"}}]}`,
		},
		{
			"negated or",
			Not{Or(Cmp(OpLt, age, Lit(18)), Cmp(OpGt, age, Lit(65)))},
			`{"$and":[{"age":{"$gte":18}},{"age":{"$lte":65}}]}`,
		},
		{"in", InList{Expr: name, Values: []Expr{Lit("a"), Lit("b")}}, `{"name":{"$in":["a","b"]}}`},
		{"not in", InList{Expr: name, Values: []Expr{Lit("a")}, Negated: true}, `{"name":{"$nin":["a"]}}`},
		{"negated not in", Not{InList{Expr: name, Values: []Expr{Lit("a")}, Negated: true}}, `{"name":{"$in":["a"]}}`},
		{"cast literal", Cmp(OpEq, age, Cast{Expr: Lit("3"), Type: "int"}), `{"age":{"$eq":3}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := Translate(tt.expr)
			require.True(t, ok)
			b, err := json.Marshal(f)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
			assert.JSONEq(t, tt.want, f.String())
		})
	}
}

func TestTranslateFallsBack(t *testing.T) {
	like := Cmp(OpLike, Col("name"), Lit("A%"))

	tests := []struct {
		name string
		expr Expr
	}{
		{"like", like},
		{"and with like", And(Cmp(OpGt, Col("age"), Lit(1)), like)},
		{"or with like", Or(like, Cmp(OpGt, Col("age"), Lit(1)))},
		{"negated like", Not{like}},
		{"column to column", Cmp(OpEq, Col("a"), Col("b"))},
		{"literal to literal", Cmp(OpEq, Lit(1), Lit(1))},
		{"null literal", Cmp(OpEq, Col("a"), Lit(nil))},
		{"in with column", InList{Expr: Col("a"), Values: []Expr{Col("b")}}},
		{"in over literal", InList{Expr: Lit(1), Values: []Expr{Lit(1)}}},
		{"bare column", Col("active")},
		{"is null", IsNull{Expr: Col("a")}},
		{"bad cast", Cmp(OpEq, Col("a"), Cast{Expr: Lit("x"), Type: "int"})},
		{"cast column to text", Cmp(OpEq, Cast{Expr: Col("age"), Type: "text"}, Lit("30"))},
		{"cast column to int", Cmp(OpGt, Cast{Expr: Col("name"), Type: "int"}, Lit(5))},
		{"cast column in list", InList{Expr: Cast{Expr: Col("age"), Type: "text"}, Values: []Expr{Lit("30")}}},
		{"non-boolean cast", Cast{Expr: Cmp(OpEq, Col("a"), Lit(1)), Type: "text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := Translate(tt.expr)
			assert.False(t, ok)
			assert.Nil(t, f)
		})
	}

	f, ok := Translate(nil)
	assert.True(t, ok)
	assert.Nil(t, f)
}

func TestEvaluate(t *testing.T) {
	row := MapGetter(map[string]interface{}{
		"age":  int64(42),
		"name": "Alice",
		"note": nil,
		"ok":   true,
	})

	tests := []struct {
		name string
		expr Expr
		want bool
	}{
		{"gt", Cmp(OpGt, Col("age"), Lit(30)), true},
		{"mixed numeric", Cmp(OpEq, Col("age"), Lit(42.0)), true},
		{"like prefix", Cmp(OpLike, Col("name"), Lit("Al%")), true},
		{"like single char", Cmp(OpLike, Col("name"), Lit("_lice")), true},
		{"like is anchored", Cmp(OpLike, Col("name"), Lit("lice")), false},
		{"like escapes regexp", Cmp(OpLike, Col("name"), Lit("A.ice")), false},
		{"null comparison", Cmp(OpEq, Col("note"), Lit("x")), false},
		{"not null comparison", Not{Cmp(OpEq, Col("note"), Lit("x"))}, false},
		{"null or true", Or(Cmp(OpEq, Col("note"), Lit("x")), Cmp(OpGt, Col("age"), Lit(1))), true},
		{"null and false", And(Cmp(OpEq, Col("note"), Lit("x")), Cmp(OpLt, Col("age"), Lit(1))), false},
		{"in", InList{Expr: Col("name"), Values: []Expr{Lit("Bob"), Lit("Alice")}}, true},
		{"not in", InList{Expr: Col("name"), Values: []Expr{Lit("Bob")}, Negated: true}, true},
		{"not in with null", InList{Expr: Col("name"), Values: []Expr{Lit("Bob"), Lit(nil)}, Negated: true}, false},
		{"cast text", Cmp(OpEq, Cast{Expr: Col("age"), Type: "varchar(10)"}, Lit("42")), true},
		{"cast int", Cmp(OpGt, Cast{Expr: Lit("50"), Type: "INTEGER"}, Col("age")), true},
		{"bool column", Col("ok"), true},
		{"missing column", Cmp(OpEq, Col("missing"), Lit(1)), false},
		{"unrelated types are unequal", Cmp(OpEq, Col("name"), Lit(1)), false},
		{"unrelated types differ", Cmp(OpNe, Col("name"), Col("ok")), true},
		{"unrelated types have no order", Cmp(OpLt, Col("name"), Col("ok")), false},
		{"not of unordered comparison", Not{Cmp(OpLt, Col("name"), Col("ok"))}, false},
		{"is null", IsNull{Expr: Col("note")}, true},
		{"is not null", IsNull{Expr: Col("name"), Negated: true}, true},
		{"not is null", Not{IsNull{Expr: Col("note")}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, row)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Evaluate(Col("age"), row)
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

// A fully translated filter must select exactly the rows the expression
// selects.
func TestTranslatedFilterMatchesEvaluate(t *testing.T) {
	exprs := []Expr{
		Cmp(OpGt, Col("age"), Lit(40)),
		Not{Cmp(OpGt, Col("age"), Lit(40))},
		Cmp(OpNe, Col("name"), Lit("Name3")),
		And(Cmp(OpGe, Col("age"), Lit(25)), Cmp(OpLt, Lit(50), Col("age"))),
		Not{And(Cmp(OpGe, Col("age"), Lit(25)), Cmp(OpLe, Col("score"), Lit(10.5)))},
		Not{Or(Cmp(OpLt, Col("age"), Lit(30)), Cmp(OpEq, Col("name"), Lit("Name7")))},
		InList{Expr: Col("age"), Values: []Expr{Lit(21), Lit(22), Lit(60)}},
		Not{InList{Expr: Col("name"), Values: []Expr{Lit("Name1"), Lit("Name2")}}},
	}

	rows := make([]map[string]interface{}, 0, 40)
	for i := 0; i < 40; i++ {
		row := map[string]interface{}{
			"age":   int64(20 + i*2),
			"name":  fmt.Sprintf("Name%d", i%10),
			"score": float64(i) / 2,
		}
		if i%7 == 0 {
			row["age"] = nil
		}
		if i%5 == 0 {
			row["name"] = nil
		}
		rows = append(rows, row)
	}

	for _, expr := range exprs {
		f, ok := Translate(expr)
		require.True(t, ok, "%s", expr)
		for i, row := range rows {
			want, err := Evaluate(expr, MapGetter(row))
			require.NoError(t, err)
			got := f.Match(func(c string) interface{} { return row[c] })
			assert.Equal(t, want, got, "%s on row %d (filter %s)", expr, i, f)
		}
	}
}

func TestTranslatedFilterMatchesEvaluateOnMixedRows(t *testing.T) {
	rows := []map[string]interface{}{
		{"age": 30, "name": "10"},
		{"age": int64(30), "name": "Ann"},
		{"age": 30.0, "name": nil},
		{"age": "30", "name": 10},
		{"age": nil, "name": "10"},
		{"age": true, "name": []byte("10")},
		{"age": int32(7), "name": 5.5},
		{"name": "30"},
		{},
	}

	tests := []struct {
		name     string
		expr     Expr
		pushable bool
	}{
		{"eq", Cmp(OpEq, Col("age"), Lit(30)), true},
		{"ne", Cmp(OpNe, Col("age"), Lit(30)), true},
		{"gt string number", Cmp(OpGt, Col("name"), Lit(5)), true},
		{"lte text", Cmp(OpLe, Col("name"), Lit("5")), true},
		{"not eq", Not{Cmp(OpEq, Col("age"), Lit(30))}, true},
		{"not ne", Not{Cmp(OpNe, Col("name"), Lit("10"))}, true},
		{"not lt", Not{Cmp(OpLt, Col("age"), Lit(30))}, true},
		{"in", InList{Expr: Col("name"), Values: []Expr{Lit("10"), Lit(10)}}, true},
		{"not in", InList{Expr: Col("age"), Values: []Expr{Lit(30), Lit("x")}, Negated: true}, true},
		{"cast literal", Cmp(OpEq, Col("age"), Cast{Expr: Lit("30"), Type: "int"}), true},
		{"negated and", Not{And(Cmp(OpGe, Col("age"), Lit(10)), Cmp(OpEq, Col("name"), Lit("10")))}, true},
		{"negated or", Not{Or(Cmp(OpGt, Col("age"), Lit(100)), Cmp(OpNe, Col("name"), Lit("Ann")))}, true},
		{"boolean cast", Cast{Expr: Cmp(OpEq, Col("age"), Lit(30)), Type: "boolean"}, true},
		{"cast column to text", Cmp(OpEq, Cast{Expr: Col("age"), Type: "text"}, Lit("30")), false},
		{"cast column to int", Cmp(OpGt, Cast{Expr: Col("name"), Type: "int"}, Lit(5)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := Translate(tt.expr)
			require.Equal(t, tt.pushable, ok)
			if !ok {
				return
			}
			for i, row := range rows {
				want, err := Evaluate(tt.expr, MapGetter(row))
				require.NoError(t, err, "row %d", i)
				got := f.Match(func(c string) interface{} { return row[c] })
				assert.Equal(t, want, got, "row %d %v (filter %s)", i, row, f)
			}
		})
	}
}

func TestFilterMayMatch(t *testing.T) {
	stats := map[string]ColumnStats{
		"age":  {Min: int64(20), Max: int64(40), HasMinMax: true, NumValues: 100},
		"name": {Min: "Ann", Max: "Ann", HasMinMax: true, NumValues: 100},
		"note": {NullCount: 100, NumValues: 100},
	}

	tests := []struct {
		name string
		expr Expr
		want bool
	}{
		{"above max", Cmp(OpGt, Col("age"), Lit(40)), false},
		{"at max", Cmp(OpGe, Col("age"), Lit(40)), true},
		{"below min", Cmp(OpLt, Col("age"), Lit(20)), false},
		{"at min", Cmp(OpLe, Col("age"), Lit(20)), true},
		{"eq inside", Cmp(OpEq, Col("age"), Lit(30)), true},
		{"eq outside", Cmp(OpEq, Col("age"), Lit(41)), false},
		{"ne constant column", Cmp(OpNe, Col("name"), Lit("Ann")), false},
		{"in outside", InList{Expr: Col("age"), Values: []Expr{Lit(1), Lit(99)}}, false},
		{"in inside", InList{Expr: Col("age"), Values: []Expr{Lit(1), Lit(25)}}, true},
		{"nin constant column", InList{Expr: Col("name"), Values: []Expr{Lit("Ann")}, Negated: true}, false},
		{"all null column", Cmp(OpEq, Col("note"), Lit("x")), false},
		{"no stats", Cmp(OpEq, Col("other"), Lit(1)), true},
		{"and prunes", And(Cmp(OpGt, Col("age"), Lit(10)), Cmp(OpGt, Col("age"), Lit(50))), false},
		{"or keeps", Or(Cmp(OpGt, Col("age"), Lit(50)), Cmp(OpLt, Col("age"), Lit(25))), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := Translate(tt.expr)
			require.True(t, ok)
			assert.Equal(t, tt.want, f.MayMatch(stats))
		})
	}
}

func TestColumns(t *testing.T) {
	expr := And(Cmp(OpGt, Col("age"), Lit(1)), Or(Cmp(OpLike, Col("name"), Lit("a%")), Cmp(OpEq, Col("age"), Lit(3))))
	assert.Equal(t, []string{"age", "name"}, Columns(expr))

	f, ok := Translate(And(Cmp(OpGt, Col("b"), Lit(1)), Cmp(OpEq, Col("a"), Lit(2))))
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, f.Columns())
}

func TestExprString(t *testing.T) {
	expr := And(Cmp(OpGt, Col("age"), Lit(30)), Not{InList{Expr: Col("name"), Values: []Expr{Lit("O'Neil")}, Negated: true}})
	assert.Equal(t, "((age > 30) AND NOT name NOT IN ('O''Neil'))", expr.String())
}
