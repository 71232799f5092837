package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type routeRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=65535"`
}

type assignRequest struct {
	ClientID int64 `json:"clientId" validate:"required,gt=0"`
}

// decode reads a JSON body into dst and runs struct validation. It writes the
// problem response itself and reports whether the handler may continue.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		p := Problem{Type: "about:blank", Title: "Validation failed", Status: http.StatusBadRequest, Instance: r.URL.Path}
		p.Fields = validationFields(err)
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(p)
		return false
	}
	return true
}

// validationFields maps json field names to the failing tag.
func validationFields(err error) map[string]string {
	out := map[string]string{}
	ves, ok := err.(validator.ValidationErrors)
	if !ok {
		out["_"] = err.Error()
		return out
	}
	for _, ve := range ves {
		out[lowerFirst(ve.Field())] = ve.Tag()
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
