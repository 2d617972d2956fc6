// Package cortical is a client for a semantic-fingerprint keyword service
// (the Cortical.io REST API shape) used as a label.Fingerprint.
package cortical

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cognicore/kodar/pkg/kodar/label"
)

// Client calls the keyword extraction endpoint.
type Client struct {
	BaseURL string
	Retina  string
	APIKey  string
	// TopN is the number of keywords in a label; 0 means 3.
	TopN int

	HTTPClient *http.Client
}

var _ label.Fingerprint = (*Client)(nil)

type apiError struct {
	Message string `json:"message"`
}

// Keywords returns the keywords the service extracts from text.
func (c *Client) Keywords(ctx context.Context, text string) ([]string, error) {
	if c.BaseURL == "" || c.Retina == "" {
		return nil, fmt.Errorf("cortical: base URL and retina required")
	}
	endpoint := strings.TrimSuffix(c.BaseURL, "/") + "/text/keywords?retina_name=" + url.QueryEscape(c.Retina)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(text)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("api-key", c.APIKey)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Message != "" {
			return nil, fmt.Errorf("cortical: %s: %s", resp.Status, e.Message)
		}
		return nil, fmt.Errorf("cortical: %s", resp.Status)
	}
	var keywords []string
	if err := json.Unmarshal(body, &keywords); err != nil {
		return nil, fmt.Errorf("cortical: decode keywords: %w", err)
	}
	return keywords, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// NewSession starts labeling one group.
func (c *Client) NewSession() label.Session {
	return &session{client: c, counts: make(map[string]int), first: make(map[string]int)}
}

type session struct {
	client *Client
	counts map[string]int
	first  map[string]int
}

// AddLabels adds the keywords of one document to the session tally.
func (s *session) AddLabels(ctx context.Context, doc string) error {
	if strings.TrimSpace(doc) == "" {
		return nil
	}
	keywords, err := s.client.Keywords(ctx, doc)
	if err != nil {
		return err
	}
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := s.first[k]; !ok {
			s.first[k] = len(s.first)
		}
		s.counts[k]++
	}
	return nil
}

// GetLabel returns the most frequent keywords, earliest seen first on ties.
func (s *session) GetLabel(ctx context.Context) (string, error) {
	if len(s.counts) == 0 {
		return label.Unlabeled, nil
	}
	keys := make([]string, 0, len(s.counts))
	for k := range s.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if s.counts[keys[i]] != s.counts[keys[j]] {
			return s.counts[keys[i]] > s.counts[keys[j]]
		}
		return s.first[keys[i]] < s.first[keys[j]]
	})
	n := s.client.TopN
	if n < 1 {
		n = 3
	}
	return strings.Join(keys[:min(n, len(keys))], " "), nil
}
