package mongosource

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/pushdown"
)

// FilterDocument converts a pushdown filter to a MongoDB query document.
// A nil filter matches every document.
//
// $ne and $nin also exclude null and missing fields, which MongoDB would
// otherwise match; a null cell never satisfies a comparison.
func FilterDocument(f *pushdown.Filter) (bson.D, error) {
	if f == nil {
		return bson.D{}, nil
	}

	switch f.Op {
	case pushdown.FilterAnd, pushdown.FilterOr, pushdown.FilterNor:
		if len(f.Children) == 0 {
			if f.Op == pushdown.FilterOr {
				return bson.D{{Key: "$expr", Value: false}}, nil
			}
			return bson.D{}, nil
		}
		children := make(bson.A, 0, len(f.Children))
		for _, c := range f.Children {
			doc, err := FilterDocument(c)
			if err != nil {
				return nil, err
			}
			children = append(children, doc)
		}
		return bson.D{{Key: string(f.Op), Value: children}}, nil
	case pushdown.FilterNe:
		return field(f.Column, "$nin", bson.A{f.Value, nil}), nil
	case pushdown.FilterIn:
		return field(f.Column, "$in", append(bson.A{}, f.Values...)), nil
	case pushdown.FilterNin:
		return field(f.Column, "$nin", append(append(bson.A{}, f.Values...), nil)), nil
	case pushdown.FilterEq, pushdown.FilterLt, pushdown.FilterLte, pushdown.FilterGt, pushdown.FilterGte:
		return field(f.Column, string(f.Op), f.Value), nil
	}
	return nil, errors.Newf(errors.ErrorTypeQuery, "unsupported filter operator %q", f.Op)
}

func field(column, op string, v interface{}) bson.D {
	return bson.D{{Key: column, Value: bson.D{{Key: op, Value: v}}}}
}

// Projection returns a projection document selecting columns. _id is
// excluded unless requested.
func Projection(columns []string) bson.D {
	doc := make(bson.D, 0, len(columns)+1)
	hasID := false
	for _, c := range columns {
		if c == "_id" {
			hasID = true
		}
		doc = append(doc, bson.E{Key: c, Value: 1})
	}
	if !hasID {
		doc = append(doc, bson.E{Key: "_id", Value: 0})
	}
	return doc
}
