package archive

import (
	"database/sql"
	"errors"
	"io"
)

// closeWithError closes c, storing the close error in err unless err is
// already set.
func closeWithError(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// rollbackWithError rolls the transaction back, storing the rollback error
// in err unless err is already set. A transaction that already committed
// reports sql.ErrTxDone, which is not an error here.
func rollbackWithError(tx *sql.Tx, err *error) {
	if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) && *err == nil {
		*err = rerr
	}
}

func nullUint(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func ptr[T any](v T) *T {
	return &v
}
