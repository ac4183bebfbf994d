package greylist

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func do(h http.Handler, method, ip string) int {
	r := httptest.NewRequest(method, "/contact", nil)
	r.RemoteAddr = ip + ":4000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w.Code
}

func writeList(t *testing.T, name string, lines string) string {
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(lines), 0600))
	return p
}

func TestLists(t *testing.T) {
	white := writeList(t, "white.txt", "192.0.2.10\n")
	black := writeList(t, "black.txt", "# spammers\n192.0.2.66\n\n")
	l := New(white, black, 0, zaptest.NewLogger(t).Sugar())
	h := l.Protect(ok)

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "192.0.2.1"))
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "192.0.2.66"))
	// GET is not protected unless asked
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "192.0.2.66"))
	l.SetAllMethods(true)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodGet, "192.0.2.66"))
}

func TestMissingFiles(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "nope"), "", 0, nil)
	assert.Equal(t, http.StatusOK, do(l.Protect(ok), http.MethodPost, "192.0.2.1"))
}

func TestStrikesBan(t *testing.T) {
	white := writeList(t, "white.txt", "192.0.2.10\n")
	l := New(white, "", 0, zaptest.NewLogger(t).Sugar())
	now := time.Now()
	l.now = func() time.Time { return now }
	h := l.Protect(ok)

	r := httptest.NewRequest(http.MethodPost, "/admin/login", nil)
	r.RemoteAddr = "192.0.2.5:1234"
	assert.False(t, l.Strike(r))
	assert.False(t, l.Strike(r))
	assert.False(t, l.Banned(r))
	assert.True(t, l.Strike(r))
	assert.True(t, l.Banned(r))
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "192.0.2.5"))

	// other clients are unaffected
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "192.0.2.6"))

	// ban expires and strikes start over
	now = now.Add(DefaultTemporaryBlacklistTime + time.Second)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "192.0.2.5"))
	assert.False(t, l.Strike(r))

	// whitelisted clients are never banned
	r.RemoteAddr = "192.0.2.10:1"
	l.Blacklist(r)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "192.0.2.10"))
}

func TestForgive(t *testing.T) {
	l := New("", "", 0, nil)
	l.SetTemporaryBlacklistTime(time.Minute)
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "192.0.2.7:80"
	l.Blacklist(r)
	assert.True(t, l.Banned(r))
	l.Forgive("192.0.2.7")
	assert.False(t, l.Banned(r))
}

func TestRefreshLists(t *testing.T) {
	black := writeList(t, "black.txt", "192.0.2.66\n")
	l := New("", black, 0, nil)
	h := l.Protect(ok)
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "192.0.2.66"))

	require.NoError(t, os.WriteFile(black, []byte("192.0.2.77\n"), 0600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(black, future, future))
	l.RefreshLists()

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "192.0.2.66"))
	assert.Equal(t, http.StatusForbidden, do(h, http.MethodPost, "192.0.2.77"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ClientIP(r))
	r.RemoteAddr = "203.0.113.9"
	assert.Equal(t, "203.0.113.9", ClientIP(r))
}
