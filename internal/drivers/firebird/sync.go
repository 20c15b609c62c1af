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

package firebird

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Source reads delta rows from a Firebird foreign table, restricted to a
// single object filter id. It implements worker.ForeignSource; the result
// rows keep the foreign table's own column set rather than a fixed schema,
// since the foreign branch's columns are discovered dynamically and mapped
// onto Record downstream by Row.ToRecord.
type Source struct {
	DB    *sql.DB
	Table string
}

// FetchSince returns every row in Table whose OBJECT_ID matches
// objectFilter and whose RECTIME is strictly after since, ordered by
// RECTIME.
func (s *Source) FetchSince(ctx context.Context, since time.Time, objectFilter string) ([]Row, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE OBJECT_ID = ? AND RECTIME > ? ORDER BY RECTIME", s.Table)
	rows, err := QueryRows(ctx, s.DB, query, objectFilter, since)
	if err != nil {
		return nil, fmt.Errorf("firebird: fetch delta %s: %w", s.Table, err)
	}
	return rows, nil
}
