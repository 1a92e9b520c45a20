package logx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.57:5555":    "203.0.113.0",
		"198.51.100.9":         "198.51.100.0",
		"[::1]:8080":           "127.0.0.1",
		"2001:db8:1:2:3:4:5:6": "2001:db8:1:2::",
		"not-an-ip":            "unknown_ip",
	}

	for in, want := range cases {
		assert.Equal(t, want, anonymizeIP(in), in)
	}
}

func TestCheckFieldsDropsOddFieldLists(t *testing.T) {
	assert.Nil(t, checkFields("Info", []any{"only_key"}))
	assert.Equal(t, []any{"k", "v"}, checkFields("Info", []any{"k", "v"}))
}

func TestRedactURI(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=secret.jwt&x=1", nil)
	assert.Equal(t, "/ws?token=REDACTED&x=1", redactURI(r))

	r = httptest.NewRequest(http.MethodGet, "/api/presence/bob?full=1", nil)
	assert.Equal(t, "/api/presence/bob?full=1", redactURI(r))
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	assert.Same(t, Logger(), FromContext(context.Background()))

	l := Component("test")
	ctx := l.WithContext(context.Background())
	assert.NotSame(t, Logger(), FromContext(ctx))
}
