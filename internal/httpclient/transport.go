package httpclient

import (
	"net/http"
)

// BasicAuthTransport implements http.RoundTripper and adds Basic Auth
// credentials to outgoing requests.
type BasicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// NewBasicAuthTransport creates a BasicAuthTransport over transport, or
// http.DefaultTransport when transport is nil.
func NewBasicAuthTransport(username, password string, transport http.RoundTripper) *BasicAuthTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &BasicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: transport,
	}
}

// RoundTrip adds the credentials and delegates to the underlying transport.
func (t *BasicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Username != "" || t.Password != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}
	return t.Transport.RoundTrip(req)
}
