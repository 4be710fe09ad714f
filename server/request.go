package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomyedwab/d1lite/database"
)

// QueryRequest is the body accepted by the query routes.
type QueryRequest struct {
	SQL    string          `json:"sql" validate:"required"`
	Params json.RawMessage `json:"params"`
}

var (
	validatorInstance *validator.Validate
	validatorOnce     sync.Once
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInstance = validator.New()

		// Report fields by their JSON names
		validatorInstance.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validatorInstance
}

// validateRequest turns validator failures into one readable error.
func validateRequest(req *QueryRequest) error {
	err := getValidator().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("the %s field is required", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("the %s field failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// decodeQueryRequest reads a JSON or form encoded body and validates it.
func decodeQueryRequest(r *http.Request) (*QueryRequest, database.Params, error) {
	req := &QueryRequest{}

	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, _ = mime.ParseMediaType(ct)
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, database.Params{}, fmt.Errorf("invalid form body: %w", err)
		}
		req.SQL = r.PostForm.Get("sql")
		if p := r.PostForm.Get("params"); p != "" {
			req.Params = json.RawMessage(p)
		}
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, database.Params{}, fmt.Errorf("failed to read body: %w", err)
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			if err := json.Unmarshal(body, req); err != nil {
				return nil, database.Params{}, fmt.Errorf("invalid request body: %w", err)
			}
		}
	}

	if err := validateRequest(req); err != nil {
		return nil, database.Params{}, err
	}

	params, err := database.ParseParams(req.Params)
	if err != nil {
		return nil, database.Params{}, err
	}
	return req, params, nil
}
