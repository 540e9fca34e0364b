package testutils

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/nimeshabuddhika/slot-payment-queue/pkg"
)

// GetFreePort asks the kernel for an unused local TCP port.
func GetFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// Do sends a bodiless request and closes the response body when the test ends.
func Do(t *testing.T, method, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	t.Logf("Request %s %s", method, url)
	resp, err := http.DefaultClient.Do(req)
	if resp != nil {
		t.Logf("Response %s %s: Status %d", method, url, resp.StatusCode)
		t.Cleanup(func() {
			_ = resp.Body.Close()
		})
	}
	return resp, err
}

func GetTraceId(resp *http.Response) string {
	return resp.Header.Get(pkg.HeaderTraceId)
}

func DecodeSuccess(r io.Reader) (pkg.APIResponse, error) {
	var out pkg.APIResponse
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func DecodeError(r io.Reader) (pkg.ErrorResponse, error) {
	var out pkg.ErrorResponse
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
