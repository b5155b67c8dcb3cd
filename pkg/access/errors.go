package access

import (
	"errors"
	"net/http"

	"github.com/nbulygin/teamgate/pkg/httputil"
	"github.com/nbulygin/teamgate/pkg/observability"
)

// Gate failure taxonomy. Every gate rejection wraps exactly one of these
// so callers can map it to an HTTP status with errors.Is.
var (
	// ErrUnauthenticated covers a missing header or missing identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidSignature covers an initData hash mismatch.
	ErrInvalidSignature = errors.New("invalid init data signature")
	// ErrStaleAuth covers initData older than the freshness window.
	ErrStaleAuth = errors.New("init data is stale")
	// ErrInvalidID covers a missing or non-numeric path identifier.
	ErrInvalidID = errors.New("invalid identifier")
	// ErrNotFound covers an absent project or stage.
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound marks a username that Telegram does not know.
	ErrUserNotFound = errors.New("user not found")
	// ErrForbidden covers an insufficient role or a missing assignment.
	ErrForbidden = errors.New("forbidden")
)

// HTTPStatus maps a gate failure to its response status. Unknown errors
// are infrastructure failures and map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrStaleAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Reject terminates the request with the status mapped from err. Internal
// failures are logged and masked with a generic message.
func Reject(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).Error("gate failed")
		httputil.WriteErrorMessage(w, status, "internal server error")
		return
	}
	observability.FromContext(r.Context()).WithError(err).Debug("request rejected")
	httputil.WriteErrorMessage(w, status, err.Error())
}
