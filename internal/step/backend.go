package step

import (
	"context"

	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
)

// Backend resolves the named connection and the SQL dialect it speaks.
func Backend(ctx context.Context, resolver database.DBConnectionResolver, ref string) (database.DBConnection, query.Dialect, error) {
	conn, err := resolver.ResolveDBConnection(ctx, ref)
	if err != nil {
		return nil, nil, exception.NewFatalf("step", "failed to resolve database '%s'", ref, err)
	}
	d, err := query.DialectFor(conn.Type())
	if err != nil {
		return nil, nil, exception.NewFatalf("step", "database '%s' cannot run the pipeline", ref, err)
	}
	return conn, d, nil
}

// Exec runs stmts in order and stops at the first failure.
func Exec(ctx context.Context, backend database.QueryBackend, stmts ...database.Statement) error {
	for _, stmt := range stmts {
		if _, err := backend.Execute(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// FailAll fails every unit with err.
func FailAll(units []*Unit, err error) {
	for _, u := range units {
		u.Fail(err)
	}
}
