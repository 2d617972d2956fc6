package cortical

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognicore/kodar/pkg/kodar/label"
)

func keywordServer(t *testing.T, answers map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/rest/text/keywords" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("retina_name") != "en_associative" {
			http.Error(w, `{"message":"unknown retina"}`, http.StatusBadRequest)
			return
		}
		if r.Header.Get("api-key") != "secret" {
			http.Error(w, `{"message":"bad key"}`, http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		answer, ok := answers[string(body)]
		if !ok {
			answer = "[]"
		}
		_, _ = io.WriteString(w, answer)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func client(srv *httptest.Server) *Client {
	return &Client{BaseURL: srv.URL + "/rest", Retina: "en_associative", APIKey: "secret", HTTPClient: srv.Client()}
}

func TestKeywords(t *testing.T) {
	srv := keywordServer(t, map[string]string{"graph mining": `["graph","mining"]`})
	got, err := client(srv).Keywords(context.Background(), "graph mining")
	require.NoError(t, err)
	require.Equal(t, []string{"graph", "mining"}, got)
}

func TestKeywordsReportsAPIError(t *testing.T) {
	srv := keywordServer(t, nil)
	c := client(srv)
	c.APIKey = "wrong"
	_, err := c.Keywords(context.Background(), "x")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "bad key"), err.Error())
}

func TestKeywordsRequiresConfiguration(t *testing.T) {
	_, err := (&Client{}).Keywords(context.Background(), "x")
	require.Error(t, err)
}

func TestSessionLabelsByFrequency(t *testing.T) {
	srv := keywordServer(t, map[string]string{
		"doc one":   `["Graph","mining","web"]`,
		"doc two":   `["graph","clustering"]`,
		"doc three": `["clustering","graph"]`,
	})
	c := client(srv)
	c.TopN = 2

	s := c.NewSession()
	ctx := context.Background()
	for _, d := range []string{"doc one", "doc two", "doc three", "  "} {
		require.NoError(t, s.AddLabels(ctx, d))
	}
	got, err := s.GetLabel(ctx)
	require.NoError(t, err)
	require.Equal(t, "graph clustering", got)

	empty, err := c.NewSession().GetLabel(ctx)
	require.NoError(t, err)
	require.Equal(t, label.Unlabeled, empty)
}

func TestSessionPropagatesFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Retina: "en_associative", HTTPClient: srv.Client()}
	err := c.NewSession().AddLabels(context.Background(), "doc")
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}
