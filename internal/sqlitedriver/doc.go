// Copyright 2026 TableTalk Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package sqlitedriver registers a SQLite database/sql driver under the name
// "sqlite3". When built with CGO it uses go-sqlcipher, which supports SQLCipher
// encryption (PRAGMA key) for the local metadata store. Without CGO it falls
// back to the pure-Go modernc.org/sqlite driver, which is functional but
// lacks encryption support.
//
// Import this package for its side effects only:
//
//	import _ "github.com/tabletalk-labs/tabletalk/internal/sqlitedriver"
package sqlitedriver
