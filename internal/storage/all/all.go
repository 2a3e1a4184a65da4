// Package all registers every storage backend.
package all

import (
	_ "webnovel/internal/storage/mssql"
	_ "webnovel/internal/storage/postgres"
	_ "webnovel/internal/storage/sqlite"
)
