package core

import (
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewHTTPClient returns a retrying HTTP client that logs through zerolog.
// retryMax 0 means a single attempt.
func NewHTTPClient(retryMax int) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.Logger = zeroLeveled{}
	return client
}

// zeroLeveled routes go-retryablehttp's log calls to zerolog.
type zeroLeveled struct{}

func (zeroLeveled) Error(msg string, kv ...interface{}) { fields(log.Error(), kv).Msg(msg) }
func (zeroLeveled) Info(msg string, kv ...interface{})  { fields(log.Debug(), kv).Msg(msg) }
func (zeroLeveled) Debug(msg string, kv ...interface{}) { fields(log.Debug(), kv).Msg(msg) }
func (zeroLeveled) Warn(msg string, kv ...interface{})  { fields(log.Warn(), kv).Msg(msg) }

func fields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			e = e.Interface(key, kv[i+1])
		}
	}
	return e
}
