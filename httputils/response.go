package httputils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tomyedwab/d1lite/database"
)

// fallbackFailureBody is sent if an envelope cannot be encoded, so a client
// always receives a well formed failure document.
var fallbackFailureBody = []byte(`{"errors":[{"code":500,"message":"{\"message\":\"failed to encode response\"}"}],"messages":[{"code":500,"message":"{\"message\":\"failed to encode response\"}"}],"result":null,"success":false}`)

// WriteEnvelope encodes env as JSON with the given status.
func WriteEnvelope(w http.ResponseWriter, env Envelope, status int) {
	body, err := json.Marshal(env)
	if err != nil {
		slog.Error("failed to encode envelope", "error", err)
		body = fallbackFailureBody
		status = http.StatusUnauthorized
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// WriteUnauthorized sends the 401 invalid-authorization envelope.
func WriteUnauthorized(w http.ResponseWriter) {
	WriteEnvelope(w, Unauthorized(), http.StatusUnauthorized)
}

// WriteSuccess sends a result with status 200.
func WriteSuccess(w http.ResponseWriter, res *database.Result) {
	WriteEnvelope(w, Success(res), http.StatusOK)
}

// WriteFailure sends an execution failure. D1 compatible clients expect
// status 401 here, not 500.
func WriteFailure(w http.ResponseWriter, nerr *database.NormalizedError) {
	WriteEnvelope(w, Failure(nerr), http.StatusUnauthorized)
}

// WriteText sends a plain text body, used for the health check and the
// unknown-route fallback.
func WriteText(w http.ResponseWriter, text string, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, text)
}
