package jellyfin

type kindError struct {
	kind string
	msg  string
}

func (e *kindError) Error() string     { return e.msg }
func (e *kindError) ErrorKind() string { return e.kind }

var (
	// ErrUnauthorized means Jellyfin rejected the supplied token (HTTP 401 or 403).
	ErrUnauthorized = &kindError{kind: "unauthorized", msg: "jellyfin rejected credentials"}
	// ErrUnavailable covers transport failures, non-2xx statuses other than
	// 401/403, and undecodable responses.
	ErrUnavailable = &kindError{kind: "unavailable", msg: "jellyfin unavailable"}
)
