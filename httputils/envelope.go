package httputils

import (
	"github.com/tomyedwab/d1lite/database"
)

const (
	CodeUnauthorized   = 401
	CodeExecutionError = 500

	invalidAuthorizationMessage = "Invalid Authorization Header"
)

// Message is one entry of the envelope's errors and messages lists.
type Message struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Meta describes the operation. Only ChangedDB is computed; the other fields
// exist so D1 clients find the keys they expect and are always zero.
type Meta struct {
	ChangedDB   bool `json:"changed_db"`
	Changes     int  `json:"changes"`
	Duration    int  `json:"duration"`
	LastRowID   int  `json:"last_row_id"`
	RowsRead    int  `json:"rows_read"`
	RowsWritten int  `json:"rows_written"`
	SizeAfter   int  `json:"size_after"`
}

// OperationResult is the single element of a successful envelope's result
// list.
type OperationResult struct {
	Meta    Meta `json:"meta"`
	Results any  `json:"results"`
	Success bool `json:"success"`
}

// Envelope is the top-level response document of the D1 query API.
type Envelope struct {
	Errors   []Message         `json:"errors"`
	Messages []Message         `json:"messages"`
	Result   []OperationResult `json:"result"`
	Success  bool              `json:"success"`
}

// Unauthorized is the envelope sent when the bearer token does not match.
func Unauthorized() Envelope {
	return failureEnvelope(Message{Code: CodeUnauthorized, Message: invalidAuthorizationMessage})
}

// Success wraps an execution result.
func Success(res *database.Result) Envelope {
	return Envelope{
		Errors:   []Message{},
		Messages: []Message{},
		Result: []OperationResult{{
			Meta:    Meta{ChangedDB: res.ChangedDB()},
			Results: res.Payload(),
			Success: true,
		}},
		Success: true,
	}
}

// Failure wraps a normalized execution error. The message carries the JSON
// text of the error, unredacted.
func Failure(nerr *database.NormalizedError) Envelope {
	return failureEnvelope(Message{Code: CodeExecutionError, Message: nerr.String()})
}

func failureEnvelope(msg Message) Envelope {
	return Envelope{
		Errors:   []Message{msg},
		Messages: []Message{msg},
		Result:   nil,
		Success:  false,
	}
}
