package loader

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	lperrors "github.com/logflow/logprune/pkg/errors"
	"github.com/logflow/logprune/pkg/eventlog"
	"github.com/logflow/logprune/pkg/parser"
)

// DuckDBEngine reads Parquet and CSV files through an in-memory DuckDB.
type DuckDBEngine struct {
	db      *sql.DB
	threads int
}

// NewDuckDBEngine opens an in-memory DuckDB database.
func NewDuckDBEngine() (*DuckDBEngine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, lperrors.Wrap(err, lperrors.CodeDuckDBInit, "failed to open DuckDB")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, lperrors.Wrap(err, lperrors.CodeDuckDBInit, "failed to open DuckDB")
	}
	return &DuckDBEngine{db: db, threads: runtime.NumCPU()}, nil
}

// Close releases the database.
func (e *DuckDBEngine) Close() error {
	return e.db.Close()
}

// Columns returns the column names of the file at path.
func (e *DuckDBEngine) Columns(ctx context.Context, path string, format parser.Format, cfg parser.Config) ([]string, error) {
	source, err := sourceExpr(path, format, cfg)
	if err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("DESCRIBE SELECT * FROM %s", source))
	if err != nil {
		return nil, queryError(err, path)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, queryError(err, path)
	}

	var names []string
	for rows.Next() {
		// DESCRIBE's first column is the column name; the rest are ignored.
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, queryError(err, path)
		}
		names = append(names, values[0].String)
	}
	return names, rows.Err()
}

// Load reads the file at path into a log. Rows keep file order; rows
// without a case ID are skipped.
func (e *DuckDBEngine) Load(ctx context.Context, path string, format parser.Format, opts Options) (*eventlog.Log, *Stats, error) {
	start := time.Now()
	e.db.ExecContext(ctx, fmt.Sprintf("SET threads=%d", e.threads))

	header, err := e.Columns(ctx, path, format, opts.Parser)
	if err != nil {
		return nil, nil, err
	}
	cols, err := parser.ResolveColumns(header, opts.Parser)
	if err != nil {
		return nil, nil, err
	}
	source, err := sourceExpr(path, format, opts.Parser)
	if err != nil {
		return nil, nil, err
	}

	ts := "NULL"
	if cols.Timestamp >= 0 {
		ts = quoteIdent(header[cols.Timestamp])
	}
	resource := "NULL"
	if cols.Resource >= 0 {
		resource = quoteIdent(header[cols.Resource])
	}
	query := fmt.Sprintf(`
		SELECT CAST(%s AS VARCHAR), CAST(%s AS VARCHAR),
		       epoch_ms(TRY_CAST(%s AS TIMESTAMP)), CAST(%s AS VARCHAR), CAST(%s AS VARCHAR)
		FROM %s`,
		quoteIdent(header[cols.CaseID]), quoteIdent(header[cols.Activity]), ts, ts, resource, source)

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, queryError(err, path)
	}
	defer rows.Close()

	builder := eventlog.NewBuilder(LogName(path)).SortByTimestamp(opts.SortByTimestamp)
	var count int64
	for rows.Next() {
		var (
			caseID, activity, rawTS, res sql.NullString
			millis                       sql.NullInt64
		)
		if err := rows.Scan(&caseID, &activity, &millis, &rawTS, &res); err != nil {
			return nil, nil, queryError(err, path)
		}
		if !caseID.Valid || caseID.String == "" {
			continue
		}

		ev := eventlog.Event{Activity: eventlog.Activity(activity.String), Resource: res.String}
		switch {
		case millis.Valid:
			ev.Timestamp = time.UnixMilli(millis.Int64).UTC()
		case rawTS.Valid:
			if nanos, err := parser.ParseTimestamp(rawTS.String, opts.Parser.TimestampFormat); err == nil {
				ev.Timestamp = time.Unix(0, nanos).UTC()
			}
		}
		builder.Add(caseID.String, ev)

		count++
		if opts.Progress != nil && opts.ProgressEvery > 0 && count%opts.ProgressEvery == 0 {
			opts.Progress(count)
		}
	}
	if err := rows.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, nil, lperrors.ContextCanceled("load", ctx.Err())
		}
		return nil, nil, queryError(err, path)
	}
	if opts.Progress != nil {
		opts.Progress(count)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	log := builder.Build()
	return log, &Stats{
		Format:    format,
		Events:    count,
		Traces:    log.Len(),
		BytesRead: size,
		Duration:  time.Since(start),
	}, nil
}

// sourceExpr returns the DuckDB table function reading path.
func sourceExpr(path string, format parser.Format, cfg parser.Config) (string, error) {
	switch format {
	case parser.FormatParquet:
		return fmt.Sprintf("read_parquet('%s')", escapePath(path)), nil
	case parser.FormatCSV:
		delim := string(cfg.Delimiter)
		switch cfg.Delimiter {
		case 0:
			delim = ","
		case '\t':
			delim = `\t`
		}
		return fmt.Sprintf("read_csv_auto('%s', header=true, delim='%s', all_varchar=true)",
			escapePath(path), escapePath(delim)), nil
	default:
		return "", lperrors.Wrap(parser.ErrUnsupportedFormat, lperrors.CodeUnsupportedFormat,
			"format not readable by DuckDB").WithContext("format", format.String())
	}
}

func queryError(err error, path string) error {
	return lperrors.Wrap(err, lperrors.CodeDuckDBQuery, "DuckDB query failed").WithContext("path", path)
}

// escapePath escapes single quotes for SQL string literals.
func escapePath(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
