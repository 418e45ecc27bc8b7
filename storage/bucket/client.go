// Package bucket is the signed client for the S3-compatible storage backend.
// Every outbound request carries a fresh SigV4 signature computed from the
// static key pair; the credentials themselves never leave this package.
package bucket

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/hifadhi/core"
	"github.com/trezcool/hifadhi/core/object"
)

const (
	signingService = "s3"
	// the storage vendor's regionless signing mode
	signingRegion = "auto"

	// bodies are streamed, so payloads stay unsigned; integrity is TLS's job
	unsignedPayload = "UNSIGNED-PAYLOAD"
)

type (
	// Object is an opaque passthrough of a backend GET response. Callers own
	// Body and must close it.
	Object struct {
		ContentType   string
		ContentLength int64
		Body          io.ReadCloser
	}

	// UpstreamError carries a backend failure verbatim so the gateway can
	// relay the status and text to the caller.
	UpstreamError struct {
		Op         string
		StatusCode int
		Detail     string
	}

	Client struct {
		origin  *url.URL
		bucket  string
		pubBase string
		creds   aws.Credentials
		signer  *v4.Signer
		client  *http.Client
		logger  core.Logger
	}
)

func (err *UpstreamError) Error() string {
	return fmt.Sprintf("storage %s failed: %d: %s", err.Op, err.StatusCode, err.Detail)
}

// NewClient builds the signed storage client. It refuses to construct without
// the full credential set: a half-configured signer must fail at start-up, not
// on the first request.
func NewClient(conf *core.Config, logger core.Logger) (*Client, error) {
	sc := conf.Storage
	if sc.AccessKeyID == "" || sc.SecretAccessKey == "" || sc.Bucket == "" {
		return nil, errors.New("bucket: storage credentials not configured")
	}

	endpoint := sc.Endpoint
	if endpoint == "" {
		if sc.AccountID == "" {
			return nil, errors.New("bucket: storage account not configured")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", sc.AccountID)
	}
	origin, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "bucket: parsing endpoint")
	}

	return &Client{
		origin:  origin,
		bucket:  sc.Bucket,
		pubBase: strings.TrimRight(sc.PublicBaseURL, "/"),
		creds: aws.Credentials{
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
			Source:          "static",
		},
		signer: v4.NewSigner(),
		client: &http.Client{},
		logger: logger,
	}, nil
}

// objectURL returns the backend URL for a key, with each segment of the key
// percent-encoded in RawPath while slashes stay hierarchy separators.
func (c *Client) objectURL(key string) *url.URL {
	u := *c.origin
	u.Path = "/" + c.bucket + "/" + key
	u.RawPath = "/" + url.PathEscape(c.bucket) + "/" + object.EncodePath(key)
	return &u
}

// PublicURL is the client-facing URL of an uploaded object.
func (c *Client) PublicURL(key string) string {
	return c.pubBase + "/" + object.EncodePath(key)
}

func (c *Client) signAndDo(ctx context.Context, req *http.Request) (*http.Response, error) {
	req.Host = c.origin.Host
	req.Header.Set("x-amz-content-sha256", unsignedPayload)
	if err := c.signer.SignHTTP(
		ctx, c.creds, req, unsignedPayload, signingService, signingRegion, time.Now().UTC(),
		func(o *v4.SignerOptions) { o.DisableURIPathEscaping = true }, // key is pre-encoded
	); err != nil {
		return nil, errors.Wrap(err, "signing request")
	}
	return c.client.Do(req)
}

// upstreamError drains the response body into an UpstreamError.
func upstreamError(op string, res *http.Response) error {
	detail, _ := ioutil.ReadAll(io.LimitReader(res.Body, 4<<10))
	return &UpstreamError{
		Op:         op,
		StatusCode: res.StatusCode,
		Detail:     strings.TrimSpace(string(detail)),
	}
}

// Put streams body to the backend under key. size < 0 means unknown length.
func (c *Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.objectURL(key).String(), body)
	if err != nil {
		return errors.Wrap(err, "building PUT request")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if size >= 0 {
		req.ContentLength = size
		req.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	}

	res, err := c.signAndDo(ctx, req)
	if err != nil {
		return errors.Wrap(err, "storage PUT")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return upstreamError("upload", res)
	}
	_, _ = io.Copy(ioutil.Discard, res.Body)
	return nil
}

// Get fetches an object; the caller streams and closes Object.Body.
func (c *Client) Get(ctx context.Context, key string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL(key).String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building GET request")
	}

	res, err := c.signAndDo(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "storage GET")
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()
		return nil, upstreamError("fetch", res)
	}
	return &Object{
		ContentType:   res.Header.Get("Content-Type"),
		ContentLength: res.ContentLength,
		Body:          res.Body,
	}, nil
}

// Delete removes an object. A backend 404 is success: the object is gone
// either way, and callers rely on delete being idempotent.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.objectURL(key).String(), nil)
	if err != nil {
		return errors.Wrap(err, "building DELETE request")
	}

	res, err := c.signAndDo(ctx, req)
	if err != nil {
		return errors.Wrap(err, "storage DELETE")
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(ioutil.Discard, res.Body)
		return nil
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return upstreamError("delete", res)
	}
	_, _ = io.Copy(ioutil.Discard, res.Body)
	return nil
}
