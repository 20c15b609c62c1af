/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// BatchResult summarises a BatchInsert call.
type BatchResult struct {
	// Inserted is the number of rows actually committed.
	Inserted int
	// Dropped is the number of rows silently discarded as duplicates
	// during per-row fallback.
	Dropped int
	// FellBackToPerRow reports whether the batch path failed and the
	// per-row fallback ran.
	FellBackToPerRow bool
}

// BatchInsert inserts rows into table's columns as a single multi-row
// INSERT inside a transaction. If the batch fails with a duplicate-key
// violation, the transaction is rolled back and rows are retried one at a
// time: successes are committed, duplicate-key failures are silently
// dropped, and any other error aborts the remaining rows.
//
// This gives the destination at-least-once, idempotent-on-retry semantics:
// a crash between a prior partial commit and this cycle simply re-presents
// already-persisted rows, which the per-row fallback discards.
func BatchInsert(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) (BatchResult, error) {
	if len(rows) == 0 {
		return BatchResult{}, nil
	}

	if err := batchInsertTx(ctx, db, table, columns, rows); err == nil {
		return BatchResult{Inserted: len(rows)}, nil
	} else if !IsDuplicateKeyError(err) {
		return BatchResult{}, fmt.Errorf("mssql: batch insert %s: %w", table, err)
	}

	// Batch failed on a duplicate key: fall back to per-row inserts.
	return insertRowByRow(ctx, db, table, columns, rows)
}

func batchInsertTx(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	query, args := buildBatchInsert(table, columns, rows)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func buildBatchInsert(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	args := make([]any, 0, len(rows)*len(columns))
	valueGroups := make([]string, 0, len(rows))
	n := len(columns)
	for i, row := range rows {
		placeholders := make([]string, n)
		base := i * n
		for j := 0; j < n; j++ {
			placeholders[j] = "@p" + strconv.Itoa(base+j+1)
		}
		valueGroups = append(valueGroups, "("+strings.Join(placeholders, ", ")+")")
		args = append(args, row...)
	}
	b.WriteString(strings.Join(valueGroups, ", "))
	return b.String(), args
}

func insertRowByRow(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) (BatchResult, error) {
	result := BatchResult{FellBackToPerRow: true}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = "@p" + strconv.Itoa(i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	for _, row := range rows {
		_, err := db.ExecContext(ctx, query, row...)
		switch {
		case err == nil:
			result.Inserted++
		case IsDuplicateKeyError(err):
			result.Dropped++
		default:
			return result, fmt.Errorf("mssql: per-row insert %s: %w", table, err)
		}
	}
	return result, nil
}
