package main

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/gridframe/pkg/config"
	"github.com/ajitpratap0/gridframe/pkg/dataframe"
	"github.com/ajitpratap0/gridframe/pkg/errors"
	"github.com/ajitpratap0/gridframe/pkg/icebergsource"
	"github.com/ajitpratap0/gridframe/pkg/mockdata"
	"github.com/ajitpratap0/gridframe/pkg/mongosource"
	"github.com/ajitpratap0/gridframe/pkg/parquetsource"
	"github.com/ajitpratap0/gridframe/pkg/query"
	"github.com/ajitpratap0/gridframe/pkg/sqlsource"
)

// source is a table that can back both windowed frames and queries.
type source interface {
	query.Table
	dataframe.RowReader
	NumRows() int
	Close() error
}

type mockSource struct{ *mockdata.Table }

func (mockSource) Close() error { return nil }

// openSource picks a reader by URI scheme:
//
//	mock://?rows=N&delay=50ms&limit=N  generated demo table
//	postgres://…?table=t, mysql://…?table=t
//	mongodb://…/db?collection=c
//	iceberg+<location>?snapshot=N&version=vN, or a *.metadata.json location
//	anything else is a parquet location (path, file://, http(s)://, s3://, gs://)
func openSource(ctx context.Context, uri string, cfg *config.Config) (source, error) {
	scheme, _, _ := strings.Cut(uri, "://")
	var (
		src source
		err error
	)
	switch strings.ToLower(scheme) {
	case "mock":
		return openMock(uri)
	case "postgres", "postgresql", "mysql":
		src, err = sqlsource.Connect(ctx, uri)
	case "mongodb", "mongodb+srv":
		src, err = mongosource.Connect(ctx, uri)
	default:
		switch {
		case strings.HasPrefix(strings.ToLower(uri), icebergPrefix):
			src, err = openIceberg(ctx, uri[len(icebergPrefix):], cfg)
		case strings.HasSuffix(uri, ".metadata.json"):
			src, err = openIceberg(ctx, uri, cfg)
		default:
			src, err = parquetsource.OpenURI(ctx, uri, cfg.Storage)
		}
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

const icebergPrefix = "iceberg+"

// redactURI hides the password of a database URI before it is logged.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	return u.Redacted()
}

// openIceberg opens a table root or metadata file. snapshot and version
// query parameters select an earlier state of the table.
func openIceberg(ctx context.Context, uri string, cfg *config.Config) (source, error) {
	opts := []icebergsource.Option{icebergsource.WithStorageConfig(cfg.Storage)}
	if base, rawQuery, found := strings.Cut(uri, "?"); found {
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid iceberg options")
		}
		if s := q.Get("snapshot"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid snapshot")
			}
			opts = append(opts, icebergsource.WithSnapshotID(id))
		}
		if v := q.Get("version"); v != "" {
			opts = append(opts, icebergsource.WithVersion(v))
		}
		uri = base
	}
	src, err := icebergsource.Open(ctx, uri, opts...)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func openMock(uri string) (source, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid mock URI")
	}
	q := u.Query()
	var opts []mockdata.Option
	if s := q.Get("rows"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid rows")
		}
		opts = append(opts, mockdata.WithRows(n))
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid limit")
		}
		opts = append(opts, mockdata.WithLimit(n))
	}
	if s := q.Get("delay"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid delay")
		}
		opts = append(opts, mockdata.WithDelay(d, d))
	}
	return mockSource{mockdata.New(opts...)}, nil
}

// frameOptions applies the fetch configuration
func frameOptions(cfg *config.Config, name string) []dataframe.Option {
	return []dataframe.Option{dataframe.WithName(name), dataframe.WithFetchConfig(cfg.Fetch)}
}

// parseColumns splits a comma list; empty means every column of src.
func parseColumns(list string, cols []dataframe.ColumnDescriptor) ([]string, error) {
	if list == "" {
		return dataframe.ColumnNames(cols), nil
	}
	known := make(map[string]bool, len(cols))
	for _, c := range cols {
		known[c.Name] = true
	}
	var out []string
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if !known[name] {
			return nil, errors.UnknownColumn(name)
		}
		out = append(out, name)
	}
	return out, nil
}
