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

// Package mssql holds the SQL Server specifics of the collector: DSN
// construction, duplicate-key classification, and the shared batch-insert
// strategy used by every worker that writes to the destination.
package mssql

import (
	"errors"
	"fmt"

	mssqldriver "github.com/microsoft/go-mssqldb"

	"github.com/maerty1/scada/internal/syncmodel"
)

// DriverName is the database/sql driver name registered by go-mssqldb.
const DriverName = "sqlserver"

// DSN builds a SQL Server connection string for e.
func DSN(e syncmodel.Endpoint) string {
	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		e.User, e.Password, e.Host, defaultPort(e), e.Database)
}

func defaultPort(e syncmodel.Endpoint) int {
	if e.Port != 0 {
		return e.Port
	}
	return 1433
}

// duplicateKeyErrorNumbers are the SQL Server error numbers for unique
// constraint and unique index violations (the 23000-class SQLSTATE).
var duplicateKeyErrorNumbers = map[int32]bool{
	2627: true, // Violation of PRIMARY KEY or UNIQUE constraint
	2601: true, // Cannot insert duplicate key row (unique index)
}

// IsDuplicateKeyError reports whether err represents a unique-constraint
// violation from the SQL Server driver.
func IsDuplicateKeyError(err error) bool {
	var sqlErr mssqldriver.Error
	if errors.As(err, &sqlErr) {
		return duplicateKeyErrorNumbers[sqlErr.Number]
	}
	return false
}
