package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// validate is shared across handlers; go-playground/validator/v10 caches
// struct reflection internally so one instance per process is the
// recommended usage.
var validate = validator.New()

// fieldError is the wire shape for one request validation failure.
type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// decodeAndValidate parses the request body into dst and runs struct tag
// validation over it, returning a populated fieldError slice on failure.
func decodeAndValidate(r *http.Request, dst interface{}) []fieldError {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return []fieldError{{Field: "body", Message: err.Error(), Code: "malformed_json"}}
	}

	if err := validate.Struct(dst); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return []fieldError{{Field: "body", Message: err.Error(), Code: "invalid"}}
		}
		out := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, fieldError{
				Field:   fe.Field(),
				Message: fe.ActualTag() + " constraint failed",
				Code:    fe.ActualTag(),
			})
		}
		return out
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func writeValidationErrors(w http.ResponseWriter, errs []fieldError) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": errs})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"errors": []fieldError{{Field: "", Message: message, Code: "error"}},
	})
}
