package security

import (
	"net/http"
	"strings"
)

// Violation is a rejected request header set.
type Violation struct {
	Reason string
	Status int
}

func (v *Violation) Error() string { return v.Reason }

type HeaderValidator struct {
	MaxHeaderCount     int
	MaxUserAgentLength int
	MaxBodyBytes       int64
}

func (v HeaderValidator) Validate(r *http.Request) *Violation {
	if strings.TrimSpace(r.Host) == "" {
		return &Violation{Reason: "missing host header", Status: http.StatusBadRequest}
	}
	if v.MaxHeaderCount > 0 && len(r.Header) > v.MaxHeaderCount {
		return &Violation{Reason: "too many headers", Status: http.StatusBadRequest}
	}
	if v.MaxUserAgentLength > 0 && len(r.UserAgent()) > v.MaxUserAgentLength {
		return &Violation{Reason: "user agent too long", Status: http.StatusBadRequest}
	}
	if v.MaxBodyBytes > 0 && r.ContentLength > v.MaxBodyBytes {
		return &Violation{Reason: "request body too large", Status: http.StatusRequestEntityTooLarge}
	}
	for name, values := range r.Header {
		if strings.ContainsAny(name, "\r\n\x00") {
			return &Violation{Reason: "malformed header name", Status: http.StatusBadRequest}
		}
		for _, value := range values {
			if strings.ContainsAny(value, "\r\n\x00") {
				return &Violation{Reason: "malformed header value", Status: http.StatusBadRequest}
			}
		}
	}
	return nil
}
