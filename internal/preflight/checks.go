package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"reqtrack/internal/credentials"
	"reqtrack/internal/services/jellyfin"
)

const checkTimeout = 5 * time.Second

// Pinger is satisfied by requests.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InfoSource is satisfied by jellyfin.Client.
type InfoSource interface {
	PublicInfo(ctx context.Context) (jellyfin.ServerInfo, error)
	BaseURL() string
}

// CredentialSource is satisfied by credentials.Selector.
type CredentialSource interface {
	Select(ctx context.Context) (credentials.Credential, bool, error)
}

// CheckJellyfin verifies the Jellyfin server answers its public info endpoint.
func CheckJellyfin(ctx context.Context, lib InfoSource) Result {
	const name = "Jellyfin"

	if lib.BaseURL() == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	info, err := lib.PublicInfo(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", lib.BaseURL(), summarizeError(err))}
	}
	detail := lib.BaseURL()
	if info.ServerName != "" || info.Version != "" {
		detail = fmt.Sprintf("%s (%s %s)", lib.BaseURL(), info.ServerName, info.Version)
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDatabase verifies the request database answers queries.
func CheckDatabase(ctx context.Context, db Pinger) Result {
	const name = "Database"

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := db.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "ok"}
}

// CheckAdminCredential verifies some admin holds a library token, which
// reconciliation needs to search the library.
func CheckAdminCredential(ctx context.Context, selector CredentialSource) Result {
	const name = "Admin credential"

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	cred, ok, err := selector.Select(checkCtx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if !ok {
		return Result{Name: name, Detail: "no admin has a library token; auto-fulfillment is paused"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("using %s", cred.Username)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out"
	case errors.Is(err, jellyfin.ErrUnauthorized):
		return "rejected request"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
