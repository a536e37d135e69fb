package embed

import (
	"context"
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/patrikhermansson/annprep/core"
	"github.com/patrikhermansson/annprep/tensorfile"
	"github.com/rs/zerolog/log"
)

// EncodeFile reads a JSON array of strings from in, encodes it with
// normalization and writes the vectors to out as a JSON array of arrays.
// A non-empty tensorOut also receives the matrix under the key "embeddings".
func EncodeFile(ctx context.Context, c *Client, in, out, tensorOut string) (*core.Matrix, error) {
	raw, err := os.ReadFile(in)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", in)
	}
	var texts []string
	if err := json.Unmarshal(raw, &texts); err != nil {
		return nil, errors.Wrapf(err, "%s is not a JSON array of strings", in)
	}

	m, err := c.Encode(ctx, texts, true)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(out)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", out)
	}
	if err := json.NewEncoder(f).Encode(m.RowSlices()); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "write %s", out)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	log.Info().Msgf("Wrote %d embeddings of dimension %d to %s", m.Rows, m.Cols, out)

	if tensorOut != "" {
		meta := map[string]string{"source": in}
		if err := tensorfile.Save(tensorOut, map[string]*core.Matrix{"embeddings": m}, meta); err != nil {
			return nil, errors.Wrapf(err, "write %s", tensorOut)
		}
		log.Info().Msgf("Wrote %s", tensorOut)
	}
	return m, nil
}
