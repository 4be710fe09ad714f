package database

import "strings"

// Classification is the read/write decision made for a statement before it
// is executed.
type Classification int

const (
	// Write statements are run with Exec and report a change summary.
	Write Classification = iota
	// Read statements are run with Query and report their rows.
	Read
)

func (c Classification) String() string {
	if c == Read {
		return "read"
	}
	return "write"
}

// Classify decides whether a statement is a read by looking only at its
// leading characters: after trimming and lower-casing, the statement must
// start with "select". No parsing is done, so
//
//   - "WITH x AS (...) SELECT ..." is a write,
//   - "-- comment\nSELECT 1" and "/* c */ SELECT 1" are writes,
//   - "SELECTED ..." or "selectfoo" are reads.
//
// Clients of the D1 API depend on this exact rule.
func Classify(sql string) Classification {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(sql)), "select") {
		return Read
	}
	return Write
}

// IsRead reports whether sql is classified as a read.
func IsRead(sql string) bool {
	return Classify(sql) == Read
}
