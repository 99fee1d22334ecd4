package mongosource

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/pushdown"
	"github.com/ajitpratap0/gridframe/pkg/query"
	"github.com/ajitpratap0/gridframe/pkg/testutil"
)

func translate(t *testing.T, where string) *pushdown.Filter {
	t.Helper()
	expr, err := query.ParseWhere(where)
	require.NoError(t, err)
	f, ok := pushdown.Translate(expr)
	require.True(t, ok)
	return f
}

func TestFilterDocument(t *testing.T) {
	tests := []struct {
		where string
		want  bson.D
	}{
		{
			where: "age > 30",
			want:  bson.D{{Key: "age", Value: bson.D{{Key: "$gt", Value: int64(30)}}}},
		},
		{
			where: "name <> 'bob'",
			want:  bson.D{{Key: "name", Value: bson.D{{Key: "$nin", Value: bson.A{"bob", nil}}}}},
		},
		{
			where: "id IN (1, 2)",
			want:  bson.D{{Key: "id", Value: bson.D{{Key: "$in", Value: bson.A{int64(1), int64(2)}}}}},
		},
		{
			where: "age >= 18 AND active = true",
			want: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "age", Value: bson.D{{Key: "$gte", Value: int64(18)}}}},
				bson.D{{Key: "active", Value: bson.D{{Key: "$eq", Value: true}}}},
			}}},
		},
		{
			where: "NOT (a = 1 OR b = 2)",
			want: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "a", Value: bson.D{{Key: "$nin", Value: bson.A{int64(1), nil}}}}},
				bson.D{{Key: "b", Value: bson.D{{Key: "$nin", Value: bson.A{int64(2), nil}}}}},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.where, func(t *testing.T) {
			got, err := FilterDocument(translate(t, tt.where))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterDocumentEdgeCases(t *testing.T) {
	doc, err := FilterDocument(nil)
	require.NoError(t, err)
	assert.Equal(t, bson.D{}, doc)

	doc, err = FilterDocument(&pushdown.Filter{Op: pushdown.FilterOr})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "$expr", Value: false}}, doc)

	doc, err = FilterDocument(&pushdown.Filter{Op: pushdown.FilterNin, Column: "x", Values: []interface{}{"a"}})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "x", Value: bson.D{{Key: "$nin", Value: bson.A{"a", nil}}}}}, doc)

	_, err = FilterDocument(&pushdown.Filter{Op: "$regex", Column: "x"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeQuery))
}

func TestProjection(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 0}}, Projection([]string{"name"}))
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}, {Key: "age", Value: 1}}, Projection([]string{"_id", "age"}))
}

func TestParseURI(t *testing.T) {
	client, db, coll, err := ParseURI("mongodb://u:p@localhost:27017/shop?collection=orders&authSource=admin")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://u:p@localhost:27017/shop?authSource=admin", client)
	assert.Equal(t, "shop", db)
	assert.Equal(t, "orders", coll)

	_, _, _, err = ParseURI("mongodb://localhost/shop")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	_, _, _, err = ParseURI("redis://localhost/0?collection=x")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestNormalize(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	oid := primitive.NewObjectIDFromTimestamp(now)

	assert.Equal(t, int64(5), normalize(int32(5)))
	assert.Equal(t, now, normalize(primitive.NewDateTimeFromTime(now)))
	assert.Equal(t, oid.Hex(), normalize(oid))
	assert.Nil(t, normalize(primitive.Null{}))
	assert.Equal(t,
		map[string]interface{}{"a": int64(1), "b": []interface{}{"x", int64(2)}},
		normalize(bson.D{{Key: "a", Value: int32(1)}, {Key: "b", Value: bson.A{"x", int32(2)}}}))

	d, err := primitive.ParseDecimal128("12.5")
	require.NoError(t, err)
	assert.Equal(t, 12.5, normalize(d))
}

func TestColumnType(t *testing.T) {
	assert.Equal(t, dataframe.ColumnTypeInt, columnType(int32(1)))
	assert.Equal(t, dataframe.ColumnTypeFloat, columnType(1.5))
	assert.Equal(t, dataframe.ColumnTypeString, columnType(primitive.NewObjectID()))
	assert.Equal(t, dataframe.ColumnTypeTimestamp, columnType(primitive.DateTime(0)))
	assert.Equal(t, dataframe.ColumnTypeJSON, columnType(bson.D{}))
	assert.Equal(t, dataframe.ColumnTypeUnknown, columnType(nil))
}

// TestMongoCollection runs against GRIDFRAME_TEST_MONGO_URI.
func TestMongoCollection(t *testing.T) {
	testutil.IntegrationTest(t)
	uri := os.Getenv("GRIDFRAME_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GRIDFRAME_TEST_MONGO_URI not set")
	}
	ctx := testutil.TestContext(t)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(context.Background()) //nolint:errcheck

	coll := client.Database("gridframe_test").Collection("people")
	_ = coll.Drop(ctx)
	docs := make([]interface{}, 0, 100)
	for i := 0; i < 100; i++ {
		doc := bson.D{{Key: "_id", Value: i}, {Key: "name", Value: "Name" + string(rune('A'+i%26))}, {Key: "age", Value: 20 + i%80}}
		docs = append(docs, doc)
	}
	_, err = coll.InsertMany(ctx, docs)
	require.NoError(t, err)
	defer coll.Drop(context.Background()) //nolint:errcheck

	src, err := Open(ctx, coll, WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	assert.Equal(t, 100, src.NumRows())
	assert.Equal(t, []string{"_id", "name", "age"}, dataframe.ColumnNames(src.Columns()))

	rows, err := src.ReadRows(ctx, dataframe.RowRange{Start: 30, End: 32}, []string{"age"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(51), rows[1].Cells["age"])

	p, err := src.Scan(ctx, query.ScanHints{Columns: []string{"_id"}, Filter: translate(t, "age = 25")})
	require.NoError(t, err)
	row, err := p.Next(ctx)
	require.NoError(t, err)
	v, err := row.Cells["_id"](ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}
