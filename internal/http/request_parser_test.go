package http

import (
	"net/url"
	"testing"
)

func TestParseListParams(t *testing.T) {
	tests := []struct {
		query string
		want  ListParams
	}{
		{"", ListParams{}},
		{"limit=25", ListParams{Limit: 25}},
		{"limit=abc", ListParams{}},
		{"limit=-4", ListParams{}},
		{"limit=0&cursor=%20MC5h%20", ListParams{Cursor: "MC5h"}},
		{"cursor=xyz&limit=3", ListParams{Cursor: "xyz", Limit: 3}},
	}
	for _, tt := range tests {
		q, err := url.ParseQuery(tt.query)
		if err != nil {
			t.Fatal(err)
		}
		if got := ParseListParams(q); got != tt.want {
			t.Errorf("ParseListParams(%q) = %+v, want %+v", tt.query, got, tt.want)
		}
	}
}
