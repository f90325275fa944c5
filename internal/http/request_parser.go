package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"finease/internal/query"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// decodeJSON reads a single JSON object into v. Unknown fields are
// ignored, so clients sending email or createdAt on update have them
// dropped rather than rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON object", errBadRequest)
	}
	return nil
}

// ownerParam is the requested owner scope, taken from ?email=.
func ownerParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("email"))
}

func listParams(r *http.Request) query.Params {
	q := r.URL.Query()
	return query.Params{
		Owner: ownerParam(r),
		Sort:  strings.TrimSpace(q.Get("sort")),
		Order: strings.TrimSpace(q.Get("order")),
	}
}
