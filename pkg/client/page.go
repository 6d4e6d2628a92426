package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
)

// Record is one raw result object as returned by the API.
// Numbers are kept as json.Number so identifiers and amounts stay exact.
type Record map[string]any

// String returns the string value of field, or "" when it is absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// PageRequest identifies one page of one query. It is a value type;
// WithPage returns an independent copy.
type PageRequest struct {
	// Endpoint is the resource path relative to the base URL (e.g. "/candidates/").
	Endpoint string

	// Params are the query parameters, excluding api_key and page.
	Params url.Values

	// Page is the 1-based page number.
	Page int
}

// NewPageRequest returns a request for the first page of endpoint.
func NewPageRequest(endpoint string, params url.Values) PageRequest {
	return PageRequest{
		Endpoint: endpoint,
		Params:   cloneValues(params),
		Page:     1,
	}
}

// WithPage returns a copy of the request addressing another page.
func (r PageRequest) WithPage(page int) PageRequest {
	r.Params = cloneValues(r.Params)
	r.Page = page
	return r
}

// Pagination is the paging metadata of an envelope.
type Pagination struct {
	Page    int  `json:"page"`
	Pages   *int `json:"pages"`
	PerPage int  `json:"per_page"`
	Count   int  `json:"count"`
}

// PageEnvelope is one decoded page response.
type PageEnvelope struct {
	Results    []Record   `json:"results"`
	Pagination Pagination `json:"pagination"`
}

// TotalPages returns the reported page count. ok is false when the API did
// not report one, which means "fetch until an empty page".
func (e *PageEnvelope) TotalPages() (pages int, ok bool) {
	if e.Pagination.Pages == nil {
		return 0, false
	}
	return *e.Pagination.Pages, true
}

var errMissingResults = errors.New("envelope has no results array")

// DecodeEnvelope parses a page response body.
func DecodeEnvelope(data []byte) (*PageEnvelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var envelope PageEnvelope
	if err := dec.Decode(&envelope); err != nil {
		return nil, &ProtocolError{Err: err}
	}
	if envelope.Results == nil {
		return nil, &ProtocolError{Err: errMissingResults}
	}
	return &envelope, nil
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return url.Values{}
	}
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
