package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const endpointTimeout = 5 * time.Second

var endpointClient = &http.Client{Timeout: endpointTimeout}

// CheckEndpoint passes when url answers a GET with a 2xx status.
func CheckEndpoint(ctx context.Context, name, url string) Result {
	fail := func(format string, args ...any) Result {
		return Result{Name: name, Detail: fmt.Sprintf(format, args...)}
	}
	url = strings.TrimSpace(url)
	if url == "" || url == "/health" {
		return fail("no url configured")
	}
	ctx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fail("bad url %q: %v", url, err)
	}
	resp, err := endpointClient.Do(req)
	if err != nil {
		return fail("%s", describeDialError(err))
	}
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fail("%s answered %d", url, resp.StatusCode)
	}
	return Result{Name: name, Passed: true, Detail: url + " reachable"}
}

// CheckDirectoryAccess passes when path is a directory the daemon can list
// and write.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Result{Name: name, Detail: path + " does not exist"}
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s: %v", path, err)}
	case !info.IsDir():
		return Result{Name: name, Detail: path + " is not a directory"}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s: no read/write access (%v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

func describeDialError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "timed out after " + endpointTimeout.String()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("unreachable (%v)", opErr.Err)
	}
	return err.Error()
}
