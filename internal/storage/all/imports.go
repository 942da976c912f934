// Package all registers every storage backend. Blank-import it from main so
// storage.New can resolve any configured kind without main knowing the
// drivers.
package all

import (
	_ "zipload/internal/storage/mssql"
	_ "zipload/internal/storage/mysql"
	_ "zipload/internal/storage/postgres"
	_ "zipload/internal/storage/sqlite"
)
