package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrorDump is a log-friendly breakdown of an error chain, including driver
// detail from Postgres (pgx or lib/pq) and SQLite.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	DB         *DBError `json:"db,omitempty"`
}

// DBError is the driver-reported part of a database failure.
type DBError struct {
	Driver     string `json:"driver"`
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error(), Code: As(err).codeOr("")}
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.DB = dbError(err)
	return d
}

func dbError(err error) *DBError {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return &DBError{Driver: "pgx", Code: pgxErr.Code, Constraint: pgxErr.ConstraintName, Table: pgxErr.TableName, Detail: pgxErr.Detail}
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return &DBError{Driver: "pq", Code: string(pqErr.Code), Constraint: pqErr.Constraint, Table: pqErr.Table, Detail: pqErr.Detail}
	}
	var liteErr sqlite3.Error
	if stdErrors.As(err, &liteErr) {
		return &DBError{Driver: "sqlite", Code: fmt.Sprintf("%d/%d", liteErr.Code, liteErr.ExtendedCode), Detail: liteErr.Error()}
	}
	return nil
}

// Fields flattens the dump into logger fields, skipping empty values.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error_chain": d.Chain}
	if d.Code != "" {
		fields["error_code"] = string(d.Code)
	}
	if db := d.DB; db != nil {
		fields["db_driver"] = db.Driver
		fields["db_code"] = db.Code
		if db.Constraint != "" {
			fields["db_constraint"] = db.Constraint
		}
		if db.Table != "" {
			fields["db_table"] = db.Table
		}
		if db.Detail != "" {
			fields["db_detail"] = db.Detail
		}
	}
	return fields
}
