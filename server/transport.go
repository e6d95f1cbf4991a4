package server

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// httpRequest adapts an *http.Request to handler.Request.
type httpRequest struct {
	r     *http.Request
	query url.Values
}

func newHTTPRequest(r *http.Request) *httpRequest {
	return &httpRequest{r: r, query: r.URL.Query()}
}

func (r *httpRequest) ID() string              { return r.r.Header.Get(RequestIDHeader) }
func (r *httpRequest) Method() string          { return r.r.Method }
func (r *httpRequest) Param(key string) string { return r.query.Get(key) }
func (r *httpRequest) Body() io.Reader         { return r.r.Body }

// httpResponse buffers a handler's output so the status it settles on is the
// one sent, even when it changes after the body was written.
type httpResponse struct {
	status      int
	contentType string
	body        bytes.Buffer
}

func (r *httpResponse) Write(p []byte) (int, error) { return r.body.Write(p) }
func (r *httpResponse) SetStatus(code int)          { r.status = code }
func (r *httpResponse) Status() int                 { return r.status }
func (r *httpResponse) SetContentType(ct string)    { r.contentType = ct }

// flush sends the buffered response. When the call failed without a body the
// error message is sent instead.
func (r *httpResponse) flush(w http.ResponseWriter, requestID string, callErr error) error {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	if callErr != nil && r.body.Len() == 0 {
		r.contentType = "text/plain; charset=utf-8"
		r.body.WriteString(callErr.Error() + "\n")
	}

	if r.contentType != "" {
		w.Header().Set("Content-Type", r.contentType)
	}
	if requestID != "" {
		w.Header().Set(RequestIDHeader, requestID)
	}
	w.WriteHeader(status)
	_, err := w.Write(r.body.Bytes())
	return err
}
