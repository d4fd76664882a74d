package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// HeaderUserID carries the trusted caller uid between the edge proxy
// and this service.
const HeaderUserID = "X-User-Id"

var ErrUnauthenticated = errors.New("caller identity could not be resolved")

// Resolver turns an inbound request into the caller's uid or fails the
// request. Implementations may verify real credentials; the service
// only depends on this contract.
type Resolver interface {
	ResolveCaller(r *http.Request) (int64, error)
}

// HeaderResolver trusts the X-User-Id header as-is. Suitable only
// behind an authenticating proxy.
type HeaderResolver struct{}

func (HeaderResolver) ResolveCaller(r *http.Request) (int64, error) {
	raw := r.Header.Get(HeaderUserID)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, HeaderUserID)
	}

	uid, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrUnauthenticated, HeaderUserID)
	}
	return uid, nil
}
