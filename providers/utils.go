package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BaSui01/studioflow/internal/tlsutil"
	"github.com/BaSui01/studioflow/types"
)

// maxErrBody bounds how much of an error body is read into a message.
const maxErrBody = 64 << 10

var dataURLPrefix = regexp.MustCompile(`^data:image/\w+;base64,`)

// StripDataURL removes a leading data:image/<x>;base64, prefix.
func StripDataURL(s string) string {
	return dataURLPrefix.ReplaceAllString(s, "")
}

// NewHTTPClient builds the shared TLS-hardened client used by one provider.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return tlsutil.SecureHTTPClient(timeout)
}

// JSONCall describes one JSON request to a provider.
type JSONCall struct {
	Provider string
	Method   string
	URL      string
	Headers  map[string]string
	Body     any
}

// DoJSON sends call and decodes a successful body into out. It returns the
// raw body for diagnostics. Failures are classified as transport (the call
// did not complete), rejected (the provider answered with an error) or
// malformed (the success body was empty or undecodable).
func DoJSON(ctx context.Context, client *http.Client, call JSONCall, out any) ([]byte, error) {
	var body io.Reader
	if call.Body != nil {
		payload, err := json.Marshal(call.Body)
		if err != nil {
			return nil, types.NewError(types.ErrInternalError, "encoding provider request").WithCause(err).WithHTTPStatus(500)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "building provider request").WithCause(err).WithHTTPStatus(500)
	}
	if call.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, types.NewProviderError(types.ProviderTransport, call.Provider,
			fmt.Sprintf("%s request failed", call.Provider)).WithCause(RedactURL(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewProviderError(types.ProviderTransport, call.Provider,
			fmt.Sprintf("reading %s response", call.Provider)).WithCause(err)
	}

	if resp.StatusCode >= 400 {
		return raw, MapHTTPError(call.Provider, resp.StatusCode, ReadErrMsg(raw))
	}
	if msg, ok := bodyError(raw); ok {
		return raw, types.NewProviderError(types.ProviderRejected, call.Provider, msg)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw, types.NewProviderError(types.ProviderMalformed, call.Provider,
			fmt.Sprintf("%s returned an empty body", call.Provider))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			e := types.NewProviderError(types.ProviderMalformed, call.Provider,
				fmt.Sprintf("decoding %s response", call.Provider)).WithCause(err)
			e.Excerpt = types.Excerpt(raw, types.MaxExcerptLen)
			return raw, e
		}
	}
	return raw, nil
}

// RedactURL drops the query string from the URL a *url.Error repeats in its
// message, so credentials passed as query parameters never reach logs.
func RedactURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	if u, perr := url.Parse(ue.URL); perr == nil && u.RawQuery != "" {
		u.RawQuery = ""
		ue.URL = u.String()
	}
	return err
}

// MapHTTPError converts a non-2xx provider answer into a rejected provider
// error. Rate limiting and 5xx are marked retryable for callers that choose
// to resubmit; the core itself never retries.
func MapHTTPError(provider string, status int, msg string) *types.Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := types.NewProviderError(types.ProviderRejected, provider,
		fmt.Sprintf("%s error (status %d): %s", provider, status, msg))
	if status == http.StatusTooManyRequests || status >= 500 {
		e.Retryable = true
	}
	return e
}

// ReadErrMsg pulls a human readable message out of a provider error body.
// It understands Google ({"error":{"message"}}) and Replicate
// ({"detail"} / {"title"}) shapes and falls back to the trimmed text.
func ReadErrMsg(raw []byte) string {
	if msg, ok := bodyError(raw); ok {
		return msg
	}
	var r struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(raw, &r); err == nil {
		if r.Detail != "" {
			return r.Detail
		}
		if r.Title != "" {
			return r.Title
		}
	}
	return strings.TrimSpace(types.Excerpt(raw, maxErrBody))
}

// bodyError reports the message of a top-level "error" field, if present.
func bodyError(raw []byte) (string, bool) {
	var r struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &r); err != nil || len(r.Error) == 0 || string(r.Error) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(r.Error, &s); err == nil {
		return s, s != ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(r.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}
	return string(r.Error), true
}
