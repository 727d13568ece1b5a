// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories with the storage package. Importing it makes the following
// storage kinds available at runtime:
//
//   - "mysql"    (shuffle/internal/storage/mysql)
//   - "postgres" (shuffle/internal/storage/postgres)
//   - "mssql"    (shuffle/internal/storage/mssql)
//   - "sqlite"   (shuffle/internal/storage/sqlite)
//
// A binary that only needs a subset of backends can blank-import the
// individual backend packages instead.
package all

import (
	_ "shuffle/internal/storage/mssql"
	_ "shuffle/internal/storage/mysql"
	_ "shuffle/internal/storage/postgres"
	_ "shuffle/internal/storage/sqlite"
)
