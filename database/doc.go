package database

// Package database runs SQL statements against the local SQLite file. A
// statement is classified as a read or a write from its leading keyword,
// executed on a handle that is opened for that one call and closed when it
// returns, and its driver-level outcome (rows, change summary or error) is
// handed back in a form the HTTP layer can put into the D1 envelope.
