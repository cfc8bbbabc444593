package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/sanctum-labs/sanctum/config"
	"github.com/sanctum-labs/sanctum/store"
)

func newTestAPI(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st := store.New()
	api := NewAPIServer(&config.Config{Port: 0, APIPort: 0}, st, nil)
	ts := httptest.NewServer(api.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(data)
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

func TestClientEndpoints(t *testing.T) {
	t.Parallel()

	ts, _ := newTestAPI(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/clients", map[string]string{
		"name":  "Ada",
		"email": "ada@example.com",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", resp.StatusCode, body)
	}
	var created store.Client
	if err := sonic.Unmarshal(body, &created); err != nil || created.ID == "" {
		t.Fatalf("create payload = %s (%v)", body, err)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/clients/"+created.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}

	created.Notes = "evening sessions"
	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/api/clients/"+created.ID, created)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/clients", nil)
	var list []store.Client
	if err := sonic.Unmarshal(body, &list); err != nil || len(list) != 1 || list[0].Notes != "evening sessions" {
		t.Fatalf("list payload = %s (%v)", body, err)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/clients/"+created.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/clients/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", resp.StatusCode)
	}
}

func TestClientValidation(t *testing.T) {
	t.Parallel()

	ts, _ := newTestAPI(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/clients", map[string]string{"email": "x@y.z"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("nameless client status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPatch, ts.URL+"/api/clients", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("PATCH status = %d", resp.StatusCode)
	}
}

func TestScriptEndpoints(t *testing.T) {
	t.Parallel()

	ts, st := newTestAPI(t)
	c := st.CreateClient(store.Client{Name: "Ada"})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/scripts", store.Script{
		ClientID: c.ID,
		Title:    "Confidence",
		Content:  "You are calm and certain.",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", resp.StatusCode, body)
	}
	var sc store.Script
	if err := sonic.Unmarshal(body, &sc); err != nil || sc.ID == "" {
		t.Fatalf("create payload = %s", body)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/scripts?clientId="+c.ID, nil)
	var list []store.Script
	if err := sonic.Unmarshal(body, &list); err != nil || len(list) != 1 {
		t.Fatalf("filtered list = %s", body)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/scripts/"+sc.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
}

func TestTrackEndpoints(t *testing.T) {
	t.Parallel()

	ts, _ := newTestAPI(t)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/tracks", store.AudioTrack{
		Title: "Deep Induction",
		Type:  "induction",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var tr store.AudioTrack
	if err := sonic.Unmarshal(body, &tr); err != nil || tr.ID == "" {
		t.Fatalf("create payload = %s", body)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/tracks/"+tr.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/tracks/"+tr.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("double delete status = %d", resp.StatusCode)
	}
}

func TestReadingTypeValidation(t *testing.T) {
	t.Parallel()

	ts, _ := newTestAPI(t)
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/readings", map[string]string{
		"type": "palmistry", "context": "anything",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown reading type status = %d", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ts, _ := newTestAPI(t)
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	var health map[string]string
	if err := sonic.Unmarshal(body, &health); err != nil || health["status"] != "ok" {
		t.Errorf("health payload = %s", body)
	}
}
