// Package bridge is the HTTP transport to the archiving bridge service,
// the intermediary that forwards ingest requests to a Digital Archiving
// Repository (DAR) back end. The transport maps every expected failure
// into data (a status code or a sentinel error); it never retries —
// retry policy belongs to the progress poller.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

// Sentinel errors for transport-level failures. A connection that the
// peer refuses outright is reported distinctly from every other I/O
// failure so the classifier can tell "bridge down" from the rest.
var (
	ErrBridgeUnreachable = errors.New("bridge unreachable")
	ErrRequestTimeout    = errors.New("bridge request timeout")
)

// Client is the interface for talking to the bridge service.
type Client interface {
	Submit(ctx context.Context, req IngestRequest) (*Result, error)
	State(ctx context.Context, q StateQuery) (*Result, error)
}

// IngestRequest is the composed outbound ingest payload.
type IngestRequest struct {
	SrcData SrcData `json:"srcData"`
	DarData DarData `json:"darData"`
}

type SrcData struct {
	SrcMetadataURL     string `json:"srcMetadataUrl"`
	SrcMetadataVersion string `json:"srcMetadataVersion"`
	SrcName            string `json:"srcName"`
	SrcAPIToken        string `json:"srcApiToken"`
}

type DarData struct {
	DarName            string `json:"darName"`
	DarUsername        string `json:"darUsername"`
	DarPassword        string `json:"darPassword"`
	DarUserAffiliation string `json:"darUserAffiliation"`
}

// StateQuery identifies the job whose state is being polled.
type StateQuery struct {
	SrcMetadataURL     string
	SrcMetadataVersion string
	TargetDarName      string
}

// StatusPayload is the bridge's JSON body on 2xx responses.
type StatusPayload struct {
	State       string `json:"state"`
	LandingPage string `json:"landingPage"`
	PID         string `json:"pid"`
}

// Result is the normalized outcome of one bridge call. Payload is non-nil
// only when the response was 2xx and carried a parseable JSON body.
type Result struct {
	StatusCode int
	Payload    *StatusPayload
}

// HTTPClient implements Client against the bridge's HTTP API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new bridge HTTP client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Submit POSTs the ingest payload to {baseURL}/archiving.
func (c *HTTPClient) Submit(ctx context.Context, req IngestRequest) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding ingest payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/archiving", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	return readResult(resp), nil
}

// State GETs {baseURL}/archiving/state for the given job key.
func (c *HTTPClient) State(ctx context.Context, q StateQuery) (*Result, error) {
	params := url.Values{
		"srcMetadataUrl":     {q.SrcMetadataURL},
		"srcMetadataVersion": {q.SrcMetadataVersion},
		"targetDarName":      {q.TargetDarName},
	}
	u := fmt.Sprintf("%s/archiving/state?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	return readResult(resp), nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api_key", c.apiKey)
	}
}

// readResult maps the HTTP response into a Result. Non-2xx codes pass
// through as-is; a 2xx body that fails to decode leaves Payload nil so
// the classifier can report it instead of this layer panicking or lying.
func readResult(resp *http.Response) *Result {
	res := &Result{StatusCode: resp.StatusCode}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return res
	}

	var payload StatusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return res
	}
	res.Payload = &payload
	return res
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("%w: %v", ErrBridgeUnreachable, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrRequestTimeout, err)
	}

	// Anything else stays unclassified for the caller to report.
	return err
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
