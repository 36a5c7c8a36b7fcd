package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func captureRemoteAddr(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = r.RemoteAddr
	})
}

func TestTrustedRealIP_HonorsHeaderFromTrustedProxy(t *testing.T) {
	var got string
	h := TrustedRealIP([]string{"10.0.0.0/8"})(captureRemoteAddr(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	req.Header.Set("X-Real-IP", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "203.0.113.7" {
		t.Errorf("RemoteAddr = %q, want 203.0.113.7", got)
	}
}

func TestTrustedRealIP_IgnoresHeaderFromUntrustedClient(t *testing.T) {
	var got string
	h := TrustedRealIP([]string{"10.0.0.0/8"})(captureRemoteAddr(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:4321"
	req.Header.Set("X-Real-IP", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "198.51.100.9:4321" {
		t.Errorf("RemoteAddr = %q, want untouched 198.51.100.9:4321", got)
	}
}

func TestTrustedRealIP_UsesFirstForwardedForHop(t *testing.T) {
	var got string
	h := TrustedRealIP([]string{"10.0.0.1"})(captureRemoteAddr(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "203.0.113.7" {
		t.Errorf("RemoteAddr = %q, want 203.0.113.7", got)
	}
}

func TestTrustedRealIP_GarbageHeaderLeavesAddrAlone(t *testing.T) {
	var got string
	h := TrustedRealIP([]string{"10.0.0.0/8"})(captureRemoteAddr(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	req.Header.Set("X-Real-IP", "not-an-ip")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "10.0.0.5:4321" {
		t.Errorf("RemoteAddr = %q, want untouched 10.0.0.5:4321", got)
	}
}
