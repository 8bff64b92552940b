package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}
}

func TestAPIClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/backends", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"backends":[]}}`))
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).Get("/v1/backends")
	require.NoError(t, err)
	assert.JSONEq(t, `{"backends":[]}`, string(resp.Data))
}

func TestAPIClient_Post_SendsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "who discovered radium", body["query"])

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"data":{"results":[]}}`))
	}))
	defer srv.Close()

	resp, err := testClient(srv.URL).Post("/v1/discover", map[string]string{"query": "who discovered radium"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Data)
}

func TestAPIClient_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"no vector backend available","kind":"unavailable"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Post("/v1/discover", map[string]string{"query": "q"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "unavailable", apiErr.Kind)
	assert.Contains(t, apiErr.Error(), "no vector backend available")
}

func TestAPIClient_ErrorWithoutKind(t *testing.T) {
	apiErr := &APIError{StatusCode: 400, Message: "query is required"}
	assert.Equal(t, "API error (400): query is required", apiErr.Error())
}

func TestAPIClient_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Get("/health")
	assert.Error(t, err)
}

func TestNewAPIClient_DefaultBaseURL(t *testing.T) {
	t.Setenv(envAPIURL, "")

	c := NewAPIClient(nil)
	assert.Equal(t, defaultAPIURL, c.baseURL)
}

func TestNewAPIClient_EnvOverride(t *testing.T) {
	t.Setenv(envAPIURL, "http://cognidex.internal:9090")

	c := NewAPIClient(nil)
	assert.Equal(t, "http://cognidex.internal:9090", c.baseURL)
}
