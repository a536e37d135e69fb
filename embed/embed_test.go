package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/tensorfile"
	"github.com/stretchr/testify/require"
)

// fakeService embeds each text as [len(text), normalize?1:0].
func fakeService(t *testing.T, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Path != "/embed" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := Response{Dimension: 2, Model: "fake"}
		for _, text := range req.Texts {
			flag := float32(0)
			if req.Normalize {
				flag = 1
			}
			resp.Embeddings = append(resp.Embeddings, []float32{float32(len(text)), flag})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newClient(url string) *Client {
	c := NewClient(core.Config{EmbedURL: url})
	c.Progress = false
	return c
}

func TestEncodeBatches(t *testing.T) {
	var calls int32
	srv := fakeService(t, &calls)
	defer srv.Close()

	c := newClient(srv.URL)
	c.BatchSize = 2
	m, err := c.Encode(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"}, false)
	require.NoError(t, err)
	require.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Equal(t, [2]int{5, 2}, m.Shape())
	require.Equal(t, []float32{3, 0}, m.Row(2))
	require.Equal(t, []float32{5, 0}, m.Row(4))
}

func TestEncodeServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Encode(context.Background(), []string{"x"}, true)
	require.ErrorContains(t, err, "status 503")
}

func TestEncodeFile(t *testing.T) {
	var calls int32
	srv := fakeService(t, &calls)
	defer srv.Close()

	dir := t.TempDir()
	in := filepath.Join(dir, "movies.json")
	out := filepath.Join(dir, "movies-encoded.json")
	tensors := filepath.Join(dir, "movies.safetensors")
	require.NoError(t, os.WriteFile(in, []byte(`["Alien", "Heat"]`), 0644))

	m, err := EncodeFile(context.Background(), newClient(srv.URL), in, out, tensors)
	require.NoError(t, err)
	require.Equal(t, 2, m.Rows)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var vectors [][]float32
	require.NoError(t, json.Unmarshal(raw, &vectors))
	require.Equal(t, [][]float32{{5, 1}, {4, 1}}, vectors)

	f, err := tensorfile.Load(tensors)
	require.NoError(t, err)
	e, err := f.Matrix("embeddings")
	require.NoError(t, err)
	require.Equal(t, []float32{5, 1, 4, 1}, e.F32)
}

func TestEncodeFileRejectsNonStrings(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(in, []byte(`[1, 2]`), 0644))
	_, err := EncodeFile(context.Background(), newClient("http://127.0.0.1:0"), in, filepath.Join(dir, "out.json"), "")
	require.Error(t, err)
}
