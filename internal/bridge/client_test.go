package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// --- helpers ---

func bridgeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(handler)
}

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	return NewHTTPClient(baseURL, "test-key", 5*time.Second)
}

func testIngest() IngestRequest {
	return IngestRequest{
		SrcData: SrcData{
			SrcMetadataURL:     "https://dataverse.example.org/api/datasets/export?persistentId=doi:10.5072/FK2/ABC123",
			SrcMetadataVersion: "1.0",
			SrcName:            "DATAVERSE",
			SrcAPIToken:        "src-token",
		},
		DarData: DarData{
			DarName:            "EASY",
			DarUsername:        "archivist",
			DarPassword:        "secret",
			DarUserAffiliation: "Example University",
		},
	}
}

// --- Submit tests ---

func TestSubmit_Created(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/archiving" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("api_key") != "test-key" {
			t.Errorf("unexpected api_key header: %q", r.Header.Get("api_key"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type: %q", r.Header.Get("Content-Type"))
		}

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if req.SrcData.SrcName != "DATAVERSE" {
			t.Errorf("unexpected srcName: %q", req.SrcData.SrcName)
		}
		if req.DarData.DarName != "EASY" {
			t.Errorf("unexpected darName: %q", req.DarData.DarName)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(StatusPayload{State: "IN-PROGRESS"})
	})
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	res, err := c.Submit(context.Background(), testIngest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", res.StatusCode)
	}
	if res.Payload == nil {
		t.Fatal("expected payload")
	}
	if res.Payload.State != "IN-PROGRESS" {
		t.Errorf("unexpected state: %q", res.Payload.State)
	}
}

func TestSubmit_Forbidden(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	res, err := c.Submit(context.Background(), testIngest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", res.StatusCode)
	}
	if res.Payload != nil {
		t.Errorf("expected nil payload on 403, got %+v", res.Payload)
	}
}

func TestSubmit_MalformedBody(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("not json"))
	})
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	res, err := c.Submit(context.Background(), testIngest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", res.StatusCode)
	}
	if res.Payload != nil {
		t.Errorf("expected nil payload for malformed body, got %+v", res.Payload)
	}
}

func TestSubmit_ConnectionRefused(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.Submit(context.Background(), testIngest())
	if err == nil {
		t.Fatal("expected error for connection refused")
	}
	if !errors.Is(err, ErrBridgeUnreachable) {
		t.Errorf("expected ErrBridgeUnreachable, got: %v", err)
	}
}

func TestSubmit_Timeout(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusCreated)
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL, "test-key", 100*time.Millisecond)
	_, err := c.Submit(context.Background(), testIngest())
	if err == nil {
		t.Fatal("expected error for timeout")
	}
	if !errors.Is(err, ErrRequestTimeout) {
		t.Errorf("expected ErrRequestTimeout, got: %v", err)
	}
}

// --- State tests ---

func TestState_Archived(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/archiving/state" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method: %s", r.Method)
		}

		q := r.URL.Query()
		if q.Get("srcMetadataUrl") != "https://dataverse.example.org/export/doi:10.5072/FK2/ABC123" {
			t.Errorf("unexpected srcMetadataUrl: %q", q.Get("srcMetadataUrl"))
		}
		if q.Get("srcMetadataVersion") != "1.0" {
			t.Errorf("unexpected srcMetadataVersion: %q", q.Get("srcMetadataVersion"))
		}
		if q.Get("targetDarName") != "EASY" {
			t.Errorf("unexpected targetDarName: %q", q.Get("targetDarName"))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StatusPayload{
			State:       "ARCHIVED",
			LandingPage: "https://easy.example.org/datasets/id/easy-dataset:123",
			PID:         "urn:nbn:nl:ui:13-abc-def",
		})
	})
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	res, err := c.State(context.Background(), StateQuery{
		SrcMetadataURL:     "https://dataverse.example.org/export/doi:10.5072/FK2/ABC123",
		SrcMetadataVersion: "1.0",
		TargetDarName:      "EASY",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", res.StatusCode)
	}
	if res.Payload == nil {
		t.Fatal("expected payload")
	}
	if res.Payload.State != "ARCHIVED" {
		t.Errorf("unexpected state: %q", res.Payload.State)
	}
	if res.Payload.PID != "urn:nbn:nl:ui:13-abc-def" {
		t.Errorf("unexpected pid: %q", res.Payload.PID)
	}
}

func TestState_RequestTimeoutStatus(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestTimeout)
	})
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	res, err := c.State(context.Background(), StateQuery{TargetDarName: "EASY"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusRequestTimeout {
		t.Errorf("expected 408, got %d", res.StatusCode)
	}
}

func TestState_ServerError(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	res, err := c.State(context.Background(), StateQuery{TargetDarName: "EASY"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", res.StatusCode)
	}
	if res.Payload != nil {
		t.Errorf("expected nil payload on 500, got %+v", res.Payload)
	}
}

func TestState_ConnectionRefused(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.State(context.Background(), StateQuery{TargetDarName: "EASY"})
	if err == nil {
		t.Fatal("expected error for connection refused")
	}
	if !errors.Is(err, ErrBridgeUnreachable) {
		t.Errorf("expected ErrBridgeUnreachable, got: %v", err)
	}
}

func TestState_ContextCancelled(t *testing.T) {
	ts := bridgeServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := newTestClient(t, ts.URL)
	_, err := c.State(ctx, StateQuery{TargetDarName: "EASY"})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if !errors.Is(err, ErrRequestTimeout) {
		t.Errorf("expected ErrRequestTimeout, got: %v", err)
	}
}
