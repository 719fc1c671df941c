// Package generator talks to the recipe-generation backend: it uploads the
// fridge photo and listens on the server-sent events stream for the result.
package generator

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/brokechef/fridgechef/internal/auth"
)

// Timeouts configures the two independent connections. ReadTimeout bounds the
// wait for each line of the event stream, not the stream as a whole.
type Timeouts struct {
	Upload  time.Duration
	Connect time.Duration
	Read    time.Duration
}

// DefaultTimeouts are the timeouts used when a field is zero.
var DefaultTimeouts = Timeouts{
	Upload:  60 * time.Second,
	Connect: 15 * time.Second,
	Read:    120 * time.Second,
}

type Client struct {
	baseURL     string
	tokens      auth.TokenSource
	upload      *http.Client
	stream      *http.Client
	readTimeout time.Duration
	logger      *slog.Logger
}

func NewClient(baseURL string, tokens auth.TokenSource, timeouts Timeouts, logger *slog.Logger) *Client {
	if timeouts.Upload == 0 {
		timeouts.Upload = DefaultTimeouts.Upload
	}
	if timeouts.Connect == 0 {
		timeouts.Connect = DefaultTimeouts.Connect
	}
	if timeouts.Read == 0 {
		timeouts.Read = DefaultTimeouts.Read
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: timeouts.Connect, KeepAlive: 30 * time.Second}).DialContext
	transport.ResponseHeaderTimeout = timeouts.Read

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		upload:  &http.Client{Timeout: timeouts.Upload},
		// No client-wide timeout: the stream stays open until a result
		// arrives. Idle reads are bounded by readTimeout instead.
		stream:      &http.Client{Transport: transport},
		readTimeout: timeouts.Read,
		logger:      logger,
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Debug("failed to close resource", "label", label, "error", err)
	}
}
