package http

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// ListParams holds the pagination parameters of a list request.
type ListParams struct {
	Cursor string
	Limit  int
}

// ParseListParams reads cursor and limit from the query string. A missing,
// malformed or non-positive limit becomes 0, which the service replaces with
// its default page size.
func ParseListParams(query url.Values) ListParams {
	params := ListParams{Cursor: strings.TrimSpace(query.Get("cursor"))}
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			params.Limit = n
		}
	}
	return params
}

// readBody buffers the request body, failing with *http.MaxBytesError past
// maxBodyBytes.
func readBody(w http.ResponseWriter, r *http.Request) (io.Reader, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
