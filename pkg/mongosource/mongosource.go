// Package mongosource reads a MongoDB collection as a frame. Documents are
// addressed by their position in a sort on a key field, and query filters
// are sent to the server as query documents.
package mongosource

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/logger"
)

// Source is one collection
type Source struct {
	coll    *mongo.Collection
	client  *mongo.Client // set when Connect created it
	key     string
	name    string
	logger  *zap.Logger
	columns []dataframe.ColumnDescriptor
	numRows int
}

type settings struct {
	key     string
	columns []string
	logger  *zap.Logger
}

// Option configures Open
type Option func(*settings)

// WithKey sets the field that defines document order. Defaults to _id.
func WithKey(field string) Option {
	return func(o *settings) { o.key = field }
}

// WithColumns fixes the column set instead of sampling the first document
func WithColumns(fields ...string) Option {
	return func(o *settings) { o.columns = fields }
}

// WithLogger replaces the component logger
func WithLogger(l *zap.Logger) Option {
	return func(o *settings) { o.logger = l }
}

// Open counts the collection and discovers its columns from the first
// document in key order.
func Open(ctx context.Context, coll *mongo.Collection, opts ...Option) (*Source, error) {
	o := settings{key: "_id"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Component("mongosource")
	}

	s := &Source{
		coll:   coll,
		key:    o.key,
		name:   coll.Name(),
		logger: o.logger.With(zap.String("collection", coll.Name())),
	}

	n, err := coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeQuery, "failed to count documents")
	}
	s.numRows = int(n)

	if len(o.columns) > 0 {
		for _, c := range o.columns {
			s.columns = append(s.columns, dataframe.ColumnDescriptor{Name: c, Type: dataframe.ColumnTypeUnknown, Nullable: true})
		}
	} else if err := s.sampleColumns(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("collection opened",
		zap.Int("rows", s.numRows),
		zap.Int("columns", len(s.columns)),
		zap.String("key", s.key))
	return s, nil
}

func (s *Source) sampleColumns(ctx context.Context) error {
	var first bson.D
	err := s.coll.FindOne(ctx, bson.D{}, options.FindOne().SetSort(bson.D{{Key: s.key, Value: 1}})).Decode(&first)
	if err == mongo.ErrNoDocuments {
		return errors.New(errors.ErrorTypeValidation, "collection is empty; columns must be given")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to sample document")
	}
	for _, e := range first {
		s.columns = append(s.columns, dataframe.ColumnDescriptor{
			Name:     e.Key,
			Type:     columnType(e.Value),
			Nullable: true,
		})
	}
	return nil
}

// Connect opens a collection from a URI of the form
// mongodb://host:27017/db?collection=events. The returned Source owns the
// client.
func Connect(ctx context.Context, uri string, opts ...Option) (*Source, error) {
	clientURI, db, coll, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(clientURI))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "MongoDB ping failed")
	}

	s, err := Open(ctx, client.Database(db).Collection(coll), opts...)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s.client = client
	return s, nil
}

// ParseURI separates the collection parameter from a MongoDB URI.
func ParseURI(uri string) (clientURI, database, collection string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", "", errors.Wrap(err, errors.ErrorTypeValidation, "invalid MongoDB URI")
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return "", "", "", errors.Newf(errors.ErrorTypeValidation, "unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	collection = q.Get("collection")
	database = strings.TrimPrefix(u.Path, "/")
	if collection == "" || database == "" {
		return "", "", "", errors.New(errors.ErrorTypeValidation, "MongoDB URI needs a database path and a collection parameter")
	}
	q.Del("collection")
	u.RawQuery = q.Encode()
	return u.String(), database, collection, nil
}

// Name returns the collection name
func (s *Source) Name() string { return s.name }

// Columns implements query.Table.
func (s *Source) Columns() []dataframe.ColumnDescriptor { return s.columns }

// NumRows returns the document count observed at Open
func (s *Source) NumRows() int { return s.numRows }

// NewFrame wraps the collection in a windowed frame
func (s *Source) NewFrame(opts ...dataframe.Option) *dataframe.Windowed {
	opts = append([]dataframe.Option{dataframe.WithName(s.name)}, opts...)
	return dataframe.NewWindowed(s, s.columns, s.numRows, opts...)
}

// Close disconnects the client when Connect created it.
func (s *Source) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func columnType(v interface{}) dataframe.ColumnType {
	switch v.(type) {
	case int32, int64:
		return dataframe.ColumnTypeInt
	case float64, primitive.Decimal128:
		return dataframe.ColumnTypeFloat
	case bool:
		return dataframe.ColumnTypeBool
	case string, primitive.ObjectID:
		return dataframe.ColumnTypeString
	case primitive.DateTime, primitive.Timestamp:
		return dataframe.ColumnTypeTimestamp
	case primitive.Binary:
		return dataframe.ColumnTypeBinary
	case bson.D, bson.M, bson.A:
		return dataframe.ColumnTypeJSON
	}
	return dataframe.ColumnTypeUnknown
}

// normalize converts BSON values to the frame's value types.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case int32:
		return int64(x)
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0).UTC()
	case primitive.ObjectID:
		return x.Hex()
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(x.String(), 64); err == nil {
			return f
		}
		return x.String()
	case primitive.Binary:
		return x.Data
	case primitive.Null, primitive.Undefined:
		return nil
	case bson.D:
		m := make(map[string]interface{}, len(x))
		for _, e := range x {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]interface{}, len(x))
		for k, e := range x {
			m[k] = normalize(e)
		}
		return m
	case bson.A:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}
	return v
}
