package handler

import (
	"bytes"
	"io"
	"net/url"
)

// Request is the read side of a single Service call.
type Request interface {
	// ID uniquely identifies the call.
	ID() string
	Method() string
	// Param returns the first value of the named request parameter.
	Param(key string) string
	// Body returns the request payload. It may be read once.
	Body() io.Reader
}

// Response is the write side of a single Service call.
type Response interface {
	io.Writer
	// SetStatus sets the outcome of the call using HTTP status numbering.
	SetStatus(code int)
	// Status returns the current outcome, or 0 if none was set.
	Status() int
	SetContentType(ct string)
}

// MemoryRequest is a Request held entirely in memory.
type MemoryRequest struct {
	id     string
	method string
	params url.Values
	body   io.Reader
}

// NewRequest creates an in-memory request.
func NewRequest(id, method string, params url.Values, body []byte) *MemoryRequest {
	return &MemoryRequest{
		id:     id,
		method: method,
		params: params,
		body:   bytes.NewReader(body),
	}
}

func (r *MemoryRequest) ID() string              { return r.id }
func (r *MemoryRequest) Method() string          { return r.method }
func (r *MemoryRequest) Param(key string) string { return r.params.Get(key) }
func (r *MemoryRequest) Body() io.Reader         { return r.body }

// MemoryResponse is a Response that buffers everything written to it.
type MemoryResponse struct {
	status      int
	contentType string
	buf         bytes.Buffer
}

// NewResponse creates an empty in-memory response.
func NewResponse() *MemoryResponse {
	return &MemoryResponse{}
}

func (r *MemoryResponse) Write(p []byte) (int, error) { return r.buf.Write(p) }
func (r *MemoryResponse) SetStatus(code int)          { r.status = code }
func (r *MemoryResponse) Status() int                 { return r.status }
func (r *MemoryResponse) SetContentType(ct string)    { r.contentType = ct }

// ContentType returns the content type set by the handler.
func (r *MemoryResponse) ContentType() string { return r.contentType }

// Bytes returns the buffered body.
func (r *MemoryResponse) Bytes() []byte { return r.buf.Bytes() }

func (r *MemoryResponse) String() string { return r.buf.String() }

// requestWithID overrides the id of a wrapped request.
type requestWithID struct {
	Request
	id string
}

func (r requestWithID) ID() string { return r.id }

// WithID returns req with its ID replaced by id.
func WithID(req Request, id string) Request {
	return requestWithID{Request: req, id: id}
}
