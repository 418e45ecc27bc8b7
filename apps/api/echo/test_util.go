package echoapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/hifadhi/core"
	"github.com/trezcool/hifadhi/core/entitlement"
	"github.com/trezcool/hifadhi/core/identity"
	emailsvc "github.com/trezcool/hifadhi/services/email"
	"github.com/trezcool/hifadhi/storage/bucket"
)

// well-known test tokens served by the fake identity provider
const (
	adminToken = "admin-token" // u-admin, role admin
	subToken   = "sub-token"   // u-sub, active subscription
	userToken  = "user-token"  // u1, no subscription
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type httpErr struct {
	Error   interface{} `json:"error"`
	Details string      `json:"details,omitempty"`
}

// storageCall records the last signed request the fake backend saw.
type storageCall struct {
	Method      string
	Path        string
	ContentType string
	Auth        string
	Body        []byte
}

// upstreams fakes the identity provider, the entitlement RPC and the storage
// backend, counting calls so tests can assert what never got called.
type upstreams struct {
	AuthCalls    int32
	RPCCalls     int32
	StorageCalls int32

	StorageStatus int // response status for the next storage call
	StorageBody   string

	LastStorage storageCall

	auth    *httptest.Server
	storage *httptest.Server
}

func (u *upstreams) reset() {
	atomic.StoreInt32(&u.AuthCalls, 0)
	atomic.StoreInt32(&u.RPCCalls, 0)
	atomic.StoreInt32(&u.StorageCalls, 0)
	u.StorageStatus = http.StatusOK
	u.StorageBody = ""
	u.LastStorage = storageCall{}
}

func (u *upstreams) close() {
	u.auth.Close()
	u.storage.Close()
}

func newUpstreams() *upstreams {
	u := &upstreams{StorageStatus: http.StatusOK}

	u.auth = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/user":
			atomic.AddInt32(&u.AuthCalls, 1)
			w.Header().Set("Content-Type", "application/json")
			switch r.Header.Get("Authorization") {
			case "Bearer " + adminToken:
				_, _ = w.Write([]byte(`{"id":"u-admin","email":"admin@test.cd","role":"authenticated","app_metadata":{"role":"admin"}}`))
			case "Bearer " + subToken:
				_, _ = w.Write([]byte(`{"id":"u-sub","email":"sub@test.cd","role":"authenticated"}`))
			case "Bearer " + userToken:
				_, _ = w.Write([]byte(`{"id":"u1","email":"user@test.cd","role":"authenticated"}`))
			default:
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid token"}`))
			}
		case "/rest/v1/rpc/has_active_subscription":
			atomic.AddInt32(&u.RPCCalls, 1)
			var params map[string]string
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &params)
			w.Header().Set("Content-Type", "application/json")
			if params["uid"] == "u-sub" {
				_, _ = w.Write([]byte("true"))
			} else {
				_, _ = w.Write([]byte("false"))
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	u.storage = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.StorageCalls, 1)
		body, _ := io.ReadAll(r.Body)
		u.LastStorage = storageCall{
			Method:      r.Method,
			Path:        r.URL.EscapedPath(),
			ContentType: r.Header.Get("Content-Type"),
			Auth:        r.Header.Get("Authorization"),
			Body:        body,
		}
		if u.StorageStatus >= 300 {
			w.WriteHeader(u.StorageStatus)
			_, _ = w.Write([]byte(u.StorageBody))
			return
		}
		if r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
			return
		}
		w.WriteHeader(u.StorageStatus)
	}))

	return u
}

func newTestConfig(u *upstreams) *core.Config {
	return &core.Config{
		AppName:     "Hifadhi",
		Env:         "TEST",
		TestMode:    true,
		AdminEmail:  "admin@test.cd",
		DefaultFrom: "noreply@test.cd",
		Server: core.ServerConfig{
			UpstreamTimeout: 2 * time.Second,
			MaxUploadSize:   "25M",
		},
		Storage: core.StorageConfig{
			AccountID:       "test-account",
			AccessKeyID:     "AKIDEXAMPLE",
			SecretAccessKey: "secret",
			Bucket:          "study-files",
			Endpoint:        u.storage.URL,
			PublicBaseURL:   "https://files.test",
		},
		Auth: core.AuthConfig{
			BaseURL:    u.auth.URL,
			APIKey:     "anon-key",
			ServiceKey: "service-key",
		},
	}
}

func newTestServer(t *testing.T, conf *core.Config) Server {
	t.Helper()

	logger := nopLogger{}

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)

	var bkt *bucket.Client
	if conf.Ready() {
		var err error
		if bkt, err = bucket.NewClient(conf, logger); err != nil {
			t.Fatalf("bucket.NewClient() failed: %v", err)
		}
	}

	return NewServer("", &Deps{
		Conf:           conf,
		Logger:         logger,
		Verifier:       identity.NewService(conf, logger),
		Entitlement:    entitlement.NewService(conf, logger),
		Bucket:         bkt,
		MailSvc:        emailsvc.NewConsoleServiceMock(conf),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest builds a multipart POST /upload request.
func newUploadRequest(t *testing.T, token, key, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if key != "" {
		if err := w.WriteField("path", key); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		if _, err = fw.Write(content); err != nil {
			t.Fatalf("writing form file failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}
