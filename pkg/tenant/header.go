package tenant

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Header carries the tenant id on development requests.
const Header = "X-Tenant-ID"

// ErrNoHeader is returned by FromHeader when the request has no tenant id.
var ErrNoHeader = errors.New("missing " + Header + " header")

// FromHeader reads the tenant id from the X-Tenant-ID header. Only the dev
// mode fallback in the auth middleware trusts it.
func FromHeader(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(Header)
	if raw == "" {
		return uuid.Nil, ErrNoHeader
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s header %q: %w", Header, raw, err)
	}
	return id, nil
}
