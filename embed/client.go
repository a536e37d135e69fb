// Package embed encodes text corpora through an HTTP embedding service.
package embed

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/patrikhermansson/annprep/core"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// DefaultBatchSize is the number of texts sent per request.
const DefaultBatchSize = 32

// Request is the body posted to <base>/embed.
type Request struct {
	Texts     []string `json:"texts"`
	Normalize bool     `json:"normalize"`
}

// Response is the embedding service reply.
type Response struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
	Model      string      `json:"model"`
}

// Client talks to the embedding service.
type Client struct {
	BaseURL   string
	BatchSize int
	Progress  bool

	http *retryablehttp.Client
}

// NewClient creates a client from the shared configuration.
func NewClient(cfg core.Config) *Client {
	return &Client{
		BaseURL:   cfg.EmbedURL,
		BatchSize: DefaultBatchSize,
		Progress:  true,
		http:      core.NewHTTPClient(cfg.RetryMax),
	}
}

// Encode embeds texts batch by batch and returns one F32 row per text.
func (c *Client) Encode(ctx context.Context, texts []string, normalize bool) (*core.Matrix, error) {
	batch := c.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	var bar *progressbar.ProgressBar
	if c.Progress {
		bar = progressbar.Default(int64(len(texts)), "encoding")
	}

	rows := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batch {
		end := min(start+batch, len(texts))
		resp, err := c.post(ctx, Request{Texts: texts[start:end], Normalize: normalize})
		if err != nil {
			return nil, errors.Wrapf(err, "texts %d..%d", start, end)
		}
		if len(resp.Embeddings) != end-start {
			return nil, errors.Newf("service returned %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		rows = append(rows, resp.Embeddings...)
		if bar != nil {
			_ = bar.Add(end - start)
		}
	}
	m, err := core.FromRows(rows)
	if err != nil {
		return nil, errors.Wrap(err, "embeddings differ in dimension")
	}
	log.Debug().Msgf("Encoded %d texts into (%d, %d)", len(texts), m.Rows, m.Cols)
	return m, nil
}

func (c *Client) post(ctx context.Context, body Request) (*Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embed", b)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.http
	if client == nil {
		client = core.NewHTTPClient(0)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "call embedding service")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("embedding service returned status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &out, nil
}
