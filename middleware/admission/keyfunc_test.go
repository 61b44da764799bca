package admission

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP_RemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7:52123"

	assert.Equal(t, "203.0.113.7", ClientIP(r, false))
}

func TestClientIP_XFFIgnoredWithoutTrust(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:52123"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")

	assert.Equal(t, "10.0.0.1", ClientIP(r, false), "spoofable header must be ignored by default")
}

func TestClientIP_XFFFirstHopWithTrust(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:52123"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 198.51.100.2, 10.0.0.1")

	assert.Equal(t, "203.0.113.7", ClientIP(r, true))
}

func TestClientIP_EmptyXFFFallsBack(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:52123"
	r.Header.Set("X-Forwarded-For", "")

	assert.Equal(t, "10.0.0.1", ClientIP(r, true))
}

func TestClientIP_RemoteAddrWithoutPort(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "203.0.113.7"

	assert.Equal(t, "203.0.113.7", ClientIP(r, false))
}

func TestClientIP_Unknown(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = ""

	assert.Equal(t, "unknown", ClientIP(r, false))
}

func TestHeaderIdentity(t *testing.T) {
	fn := HeaderIdentity("X-User-Id", "X-User-Role")

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-User-Id", "  alice  ")
	r.Header.Set("X-User-Role", "premium")

	id, role := fn(r)
	assert.Equal(t, "alice", id)
	assert.Equal(t, "premium", role)

	id, role = fn(httptest.NewRequest("GET", "/", nil))
	assert.Empty(t, id)
	assert.Empty(t, role)
}
