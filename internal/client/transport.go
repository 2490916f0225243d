package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/canopy-project/canopy/internal/canopyerr"
)

// httpTransport wraps the HTTP calls a Client makes against a canopyd's
// service API. The daemon itself is built on chi (see internal/service);
// nothing in the example pack offers a richer HTTP client than net/http,
// so this stays on the standard library, with canopyerr doing the
// error-envelope translation the teacher's daemon client does for its own
// Unix-socket JSON-RPC replies.
type httpTransport struct {
	baseURL string
	client  *http.Client
}

func newHTTPTransport(baseURL string, client *http.Client) *httpTransport {
	return &httpTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// do sends a JSON request and decodes a JSON response into out. A non-2xx
// response is decoded as a canopyerr.Envelope and returned as a
// *canopyerr.Error so callers can switch on its Code the same way they
// would for an in-process error.
func (t *httpTransport) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return canopyerr.Wrap(canopyerr.CodeConnectionError, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return canopyerr.Wrap(canopyerr.CodeConnectionError, err)
	}

	if resp.StatusCode >= 400 {
		var env canopyerr.Envelope
		if jsonErr := json.Unmarshal(data, &env); jsonErr != nil || env.Code == "" {
			return canopyerr.New(canopyerr.HTTPCode(resp.StatusCode), string(data))
		}
		return &canopyerr.Error{Code: env.Code, Message: env.Message, Hint: env.Hint}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
