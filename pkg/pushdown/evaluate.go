package pushdown

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/value"
)

// Getter returns a column value of the row being evaluated
type Getter func(column string) (interface{}, error)

// MapGetter reads columns from a map. Missing columns are NULL.
func MapGetter(row map[string]interface{}) Getter {
	return func(column string) (interface{}, error) { return row[column], nil }
}

// Evaluate applies expr to one row with SQL semantics: a NULL operand makes
// a comparison unknown, and an unknown result does not select the row.
// Values of unrelated types, such as a string and a number, are unequal and
// unordered, so only = and <> give a known result for them.
func Evaluate(expr Expr, get Getter) (bool, error) {
	if expr == nil {
		return true, nil
	}
	v, err := eval(expr, get)
	if err != nil {
		return false, err
	}
	b, known, err := truth(v)
	return known && b, err
}

func eval(e Expr, get Getter) (interface{}, error) {
	switch n := e.(type) {
	case Column:
		return get(n.Name)
	case Literal:
		return n.Value, nil
	case Cast:
		v, err := eval(n.Expr, get)
		if err != nil {
			return nil, err
		}
		return castValue(v, n.Type)
	case Not:
		v, err := eval(n.Expr, get)
		if err != nil {
			return nil, err
		}
		b, known, err := truth(v)
		if err != nil || !known {
			return nil, err
		}
		return !b, nil
	case InList:
		return evalIn(n, get)
	case IsNull:
		v, err := eval(n.Expr, get)
		if err != nil {
			return nil, err
		}
		return (v == nil) != n.Negated, nil
	case Binary:
		return evalBinary(n, get)
	}
	return nil, errors.Newf(errors.ErrorTypeQuery, "unsupported expression %T", e)
}

func evalBinary(b Binary, get Getter) (interface{}, error) {
	if b.Op == OpAnd || b.Op == OpOr {
		return evalLogical(b, get)
	}

	l, err := eval(b.Left, get)
	if err != nil {
		return nil, err
	}
	r, err := eval(b.Right, get)
	if err != nil {
		return nil, err
	}
	if l == nil || r == nil {
		return nil, nil
	}

	if b.Op == OpLike {
		s, ok := value.ToString(l)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeQuery, "LIKE needs text, got %T", l)
		}
		pattern, ok := value.ToString(r)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeQuery, "LIKE pattern must be text, got %T", r)
		}
		return likeRegexp(pattern).MatchString(s), nil
	}

	c, ok := value.Compare(l, r)
	if !ok {
		// values of unrelated types are never equal and have no order
		switch b.Op {
		case OpEq:
			return false, nil
		case OpNe:
			return true, nil
		}
		return nil, nil
	}
	switch b.Op {
	case OpEq:
		return c == 0, nil
	case OpNe:
		return c != 0, nil
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	}
	return nil, errors.Newf(errors.ErrorTypeQuery, "unsupported operator %s", b.Op)
}

func evalLogical(b Binary, get Getter) (interface{}, error) {
	l, err := eval(b.Left, get)
	if err != nil {
		return nil, err
	}
	lb, lknown, err := truth(l)
	if err != nil {
		return nil, err
	}
	// short circuit
	if lknown && lb == (b.Op == OpOr) {
		return lb, nil
	}

	r, err := eval(b.Right, get)
	if err != nil {
		return nil, err
	}
	rb, rknown, err := truth(r)
	if err != nil {
		return nil, err
	}
	if rknown && rb == (b.Op == OpOr) {
		return rb, nil
	}
	if !lknown || !rknown {
		return nil, nil
	}
	return rb, nil
}

func evalIn(in InList, get Getter) (interface{}, error) {
	x, err := eval(in.Expr, get)
	if err != nil || x == nil {
		return nil, err
	}
	sawNull := false
	for _, e := range in.Values {
		v, err := eval(e, get)
		if err != nil {
			return nil, err
		}
		if v == nil {
			sawNull = true
			continue
		}
		if value.Equal(x, v) {
			return !in.Negated, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return in.Negated, nil
}

// truth interprets v as a SQL boolean. known is false for NULL.
func truth(v interface{}) (b, known bool, err error) {
	switch t := v.(type) {
	case nil:
		return false, false, nil
	case bool:
		return t, true, nil
	}
	return false, false, errors.Newf(errors.ErrorTypeQuery, "expected boolean, got %T", v)
}

var likeCache sync.Map // pattern -> *regexp.Regexp

// likeRegexp compiles a LIKE pattern: % matches any run, _ one character.
func likeRegexp(pattern string) *regexp.Regexp {
	if re, ok := likeCache.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}
	var sb strings.Builder
	sb.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	re := regexp.MustCompile(sb.String())
	likeCache.Store(pattern, re)
	return re
}

// castValue converts v to a SQL type. NULL casts to NULL.
func castValue(v interface{}, typ string) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	t := strings.ToLower(strings.TrimSpace(typ))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}

	switch t {
	case "int", "integer", "bigint", "smallint", "tinyint", "int2", "int4", "int8":
		if s, ok := value.ToString(v); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeQuery, "cast to "+typ)
			}
			return n, nil
		}
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
		if f, ok := value.ToFloat64(v); ok {
			return int64(math.Trunc(f)), nil
		}
	case "float", "double", "double precision", "real", "float4", "float8", "numeric", "decimal":
		if s, ok := value.ToString(v); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeQuery, "cast to "+typ)
			}
			return f, nil
		}
		if f, ok := value.ToFloat64(v); ok {
			return f, nil
		}
	case "text", "varchar", "char", "string", "character varying":
		return value.Format(v), nil
	case "bool", "boolean":
		if b, ok := v.(bool); ok {
			return b, nil
		}
		if s, ok := value.ToString(v); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(s))
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeQuery, "cast to "+typ)
			}
			return b, nil
		}
		if f, ok := value.ToFloat64(v); ok {
			return f != 0, nil
		}
	default:
		return nil, errors.Newf(errors.ErrorTypeQuery, "unsupported cast to %s", typ)
	}
	return nil, errors.Newf(errors.ErrorTypeQuery, "cannot cast %T to %s", v, typ)
}
