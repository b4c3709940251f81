package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		Validation:  http.StatusBadRequest,
		Crypto:      http.StatusBadRequest,
		Unsupported: http.StatusBadRequest,
		Authz:       http.StatusForbidden,
		NotFound:    http.StatusNotFound,
		Connection:  http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(New(kind, "x")); got != want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", kind, got, want)
		}
	}
	if HTTPStatus(errors.New("plain")) != http.StatusInternalServerError {
		t.Error("plain errors map to 500")
	}
}

func TestAuthzMessageStaysGeneric(t *testing.T) {
	err := Newf(Authz, "user %s lacks grant on %s", "alice", "key1")
	if PublicMessage(err) != "access denied" {
		t.Errorf("authz errors must not leak details, got %q", PublicMessage(err))
	}
	if PublicMessage(New(Validation, "missing host")) != "missing host" {
		t.Error("non-authz errors keep their message")
	}
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	inner := New(Crypto, "wrong password")
	wrapped := fmt.Errorf("import failed: %w", inner)
	if !Is(wrapped, Crypto) {
		t.Error("Is should match through fmt.Errorf wrapping")
	}
	if Is(wrapped, Validation) {
		t.Error("Is must not match a different kind")
	}
	if Is(errors.New("plain"), Crypto) {
		t.Error("Is must not match plain errors")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("driver: bad handshake")
	err := Wrap(Connection, "probe failed", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}
