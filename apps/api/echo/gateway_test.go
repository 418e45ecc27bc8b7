package echoapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	emailsvc "github.com/trezcool/hifadhi/services/email"
)

func decodeErr(t *testing.T, body string) httpErr {
	t.Helper()
	var e httpErr
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		t.Fatalf("decoding error body %q: %v", body, err)
	}
	return e
}

func TestGateway_preflight(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	app := newTestServer(t, newTestConfig(u))

	req, rec := newRequest(http.MethodOptions, "/?path=notes/a.pdf")
	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "OPTIONS")

	// terminal: nothing else was contacted
	assert.EqualValues(t, 0, u.AuthCalls)
	assert.EqualValues(t, 0, u.RPCCalls)
	assert.EqualValues(t, 0, u.StorageCalls)
}

func TestGateway_notConfigured(t *testing.T) {
	u := newUpstreams()
	defer u.close()

	conf := newTestConfig(u)
	conf.Storage.AccountID = "" // missing secret
	app := newTestServer(t, conf)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPost} {
		req, rec := newAuthRequest(method, "/?path=notes/a.pdf", adminToken)
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code, method)
		assert.Equal(t, "gateway not configured", decodeErr(t, rec.Body.String()).Error, method)
	}
	// config is checked before any auth work
	assert.EqualValues(t, 0, u.AuthCalls)
	assert.EqualValues(t, 0, u.StorageCalls)
}

func TestGateway_authentication(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	app := newTestServer(t, newTestConfig(u))

	t.Run("missing token", func(t *testing.T) {
		u.reset()
		req, rec := newRequest(http.MethodPut, "/?path=notes/a.pdf", []byte("x"))
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "missing bearer token", decodeErr(t, rec.Body.String()).Error)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

		// denied before any upstream call
		assert.EqualValues(t, 0, u.AuthCalls)
		assert.EqualValues(t, 0, u.RPCCalls)
		assert.EqualValues(t, 0, u.StorageCalls)
	})

	t.Run("invalid token", func(t *testing.T) {
		u.reset()
		req, rec := newAuthRequest(http.MethodPut, "/?path=notes/a.pdf", "expired-token", []byte("x"))
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "invalid or expired token", decodeErr(t, rec.Body.String()).Error)
		assert.EqualValues(t, 1, u.AuthCalls)
		assert.EqualValues(t, 0, u.StorageCalls)
	})
}

func TestGateway_put(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	app := newTestServer(t, newTestConfig(u))

	t.Run("admin upload", func(t *testing.T) { // Scenario: entitlement skipped for admins
		u.reset()
		req, rec := newAuthRequest(http.MethodPut, "/?path=notes/math/lesson1.pdf", adminToken, []byte("0123456789"))
		req.Header.Set("Content-Type", "application/pdf")
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"success":true,"path":"notes/math/lesson1.pdf"}`, rec.Body.String())

		assert.EqualValues(t, 0, u.RPCCalls) // admins bypass the subscription check
		assert.EqualValues(t, 1, u.StorageCalls)
		assert.Equal(t, http.MethodPut, u.LastStorage.Method)
		assert.Equal(t, "/study-files/notes/math/lesson1.pdf", u.LastStorage.Path)
		assert.Equal(t, "application/pdf", u.LastStorage.ContentType)
		assert.Equal(t, "0123456789", string(u.LastStorage.Body))
		assert.True(t, strings.HasPrefix(u.LastStorage.Auth, "AWS4-HMAC-SHA256 "))
	})

	t.Run("subscribed user", func(t *testing.T) {
		u.reset()
		req, rec := newAuthRequest(http.MethodPut, "/?path=photos/u-sub/pic.jpg", subToken, []byte("jpeg"))
		req.Header.Set("Content-Type", "image/jpeg")
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.EqualValues(t, 1, u.RPCCalls)
		assert.EqualValues(t, 1, u.StorageCalls)
	})

	t.Run("unsubscribed user", func(t *testing.T) {
		u.reset()
		req, rec := newAuthRequest(http.MethodPut, "/?path=photos/u1/pic.jpg", userToken, []byte("jpeg"))
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "active subscription required", decodeErr(t, rec.Body.String()).Error)
		assert.EqualValues(t, 1, u.RPCCalls)
		assert.EqualValues(t, 0, u.StorageCalls) // never signed, never sent
	})

	t.Run("unsubscribed user, transfer-proof namespace", func(t *testing.T) {
		u.reset()
		req, rec := newAuthRequest(http.MethodPut, "/?path=transfer-proofs/u1/1.png", userToken, []byte("png"))
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.EqualValues(t, 0, u.RPCCalls) // carve-out skips the check entirely
		assert.EqualValues(t, 1, u.StorageCalls)
	})

	t.Run("missing path", func(t *testing.T) {
		u.reset()
		req, rec := newAuthRequest(http.MethodPut, "/", adminToken, []byte("x"))
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "path query parameter is required", decodeErr(t, rec.Body.String()).Error)
		assert.EqualValues(t, 0, u.StorageCalls)
	})

	t.Run("traversal path", func(t *testing.T) {
		u.reset()
		req, rec := newAuthRequest(http.MethodPut, "/?path=notes/../secrets.txt", adminToken, []byte("x"))
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.EqualValues(t, 0, u.StorageCalls)
	})

	t.Run("backend failure relayed", func(t *testing.T) {
		u.reset()
		u.StorageStatus = http.StatusServiceUnavailable
		u.StorageBody = "backend exploded"

		req, rec := newAuthRequest(http.MethodPut, "/?path=notes/a.pdf", adminToken, []byte("x"))
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		e := decodeErr(t, rec.Body.String())
		assert.Equal(t, "storage upload failed", e.Error)
		assert.Equal(t, "503: backend exploded", e.Details)
	})
}

func TestGateway_delete(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	app := newTestServer(t, newTestConfig(u))

	t.Run("existing object", func(t *testing.T) {
		u.reset()
		u.StorageStatus = http.StatusNoContent

		req, rec := newAuthRequest(http.MethodDelete, "/?path=photos/u-sub/pic.jpg", subToken)
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
		assert.Equal(t, http.MethodDelete, u.LastStorage.Method)
	})

	t.Run("missing object is still a success", func(t *testing.T) { // Scenario B
		u.reset()
		u.StorageStatus = http.StatusNotFound
		u.StorageBody = "NoSuchKey"

		req, rec := newAuthRequest(http.MethodDelete, "/?path=photos/u-sub/pic.jpg", subToken)
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	})

	t.Run("unsubscribed user", func(t *testing.T) {
		u.reset()
		req, rec := newAuthRequest(http.MethodDelete, "/?path=photos/u1/pic.jpg", userToken)
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.EqualValues(t, 0, u.StorageCalls)
	})
}

func TestGateway_view(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	app := newTestServer(t, newTestConfig(u))

	t.Run("admin", func(t *testing.T) {
		u.reset()
		req, rec := newAuthRequest(http.MethodGet, "/view?path=transfer-proofs/u1/1.png", adminToken)
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, "png-bytes", rec.Body.String())
		assert.Equal(t, "/study-files/transfer-proofs/u1/1.png", u.LastStorage.Path)
	})

	t.Run("non-admin", func(t *testing.T) { // Scenario C
		u.reset()
		req, rec := newAuthRequest(http.MethodGet, "/view?path=transfer-proofs/u1/1.png", userToken)
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Admin access required", decodeErr(t, rec.Body.String()).Error)
		assert.EqualValues(t, 0, u.StorageCalls)
	})

	t.Run("missing object", func(t *testing.T) {
		u.reset()
		u.StorageStatus = http.StatusNotFound
		u.StorageBody = "NoSuchKey"

		req, rec := newAuthRequest(http.MethodGet, "/view?path=transfer-proofs/u1/none.png", adminToken)
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		e := decodeErr(t, rec.Body.String())
		assert.Equal(t, "storage fetch failed", e.Error)
		assert.Equal(t, "404: NoSuchKey", e.Details)
	})
}

func TestGateway_upload(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	app := newTestServer(t, newTestConfig(u))

	t.Run("pre-subscription proof upload", func(t *testing.T) {
		u.reset()
		emailsvc.ClearSentMessages()

		req, rec := newUploadRequest(t, userToken, "transfer-proofs/u1/proof 1.png", "proof 1.png", []byte("png-data"))
		app.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t,
			`{"success":true,"path":"transfer-proofs/u1/proof 1.png","url":"https://files.test/transfer-proofs/u1/proof%201.png"}`,
			rec.Body.String(),
		)

		assert.EqualValues(t, 0, u.RPCCalls) // entitlement bypassed for this flow
		assert.EqualValues(t, 1, u.StorageCalls)
		assert.Equal(t, http.MethodPut, u.LastStorage.Method)
		assert.Equal(t, "/study-files/transfer-proofs/u1/proof%201.png", u.LastStorage.Path)
		assert.Equal(t, "png-data", string(u.LastStorage.Body))

		// admins got their best-effort heads-up
		if assert.Len(t, emailsvc.SentMessages, 1) {
			msg := emailsvc.SentMessages[0]
			assert.Equal(t, "admin@test.cd", msg.To[0].Address)
			assert.Contains(t, msg.BodyStr, "transfer-proofs/u1/proof 1.png")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		u.reset()
		req, rec := newUploadRequest(t, userToken, "transfer-proofs/u1/2.png", "", nil)
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.EqualValues(t, 0, u.StorageCalls)
	})

	t.Run("missing path", func(t *testing.T) {
		u.reset()
		req, rec := newUploadRequest(t, userToken, "", "proof.png", []byte("png"))
		app.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.EqualValues(t, 0, u.StorageCalls)
	})
}

func TestGateway_methodNotAllowed(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	app := newTestServer(t, newTestConfig(u))

	req, rec := newAuthRequest(http.MethodPatch, "/?path=notes/a.pdf", adminToken, []byte("x"))
	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method not allowed", decodeErr(t, rec.Body.String()).Error)
	assert.EqualValues(t, 0, u.StorageCalls)
}

func TestGateway_corsOnErrors(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	app := newTestServer(t, newTestConfig(u))

	// errors still carry CORS headers so the browser can read them
	req, rec := newRequest(http.MethodDelete, "/?path=photos/u1/pic.jpg")
	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
