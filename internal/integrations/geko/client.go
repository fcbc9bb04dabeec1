// internal/integrations/geko/client.go
package geko

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Klasy błędów fetchu — każda fatalna dla przebiegu, klient nie ponawia sam.
var (
	// ErrThrottled: API odcięło nas (403). Odczekaj dużo dłużej niż
	// min_request_interval zanim spróbujesz ponownie.
	ErrThrottled = errors.New("geko: throttled by supplier api")
	// ErrTimeout: brak odpowiedzi w limicie — bezpieczne do ponowienia później.
	ErrTimeout = errors.New("geko: request timeout")
	// ErrNetwork: błąd połączenia — bezpieczne do ponowienia.
	ErrNetwork = errors.New("geko: network error")
	// ErrMalformed: puste body albo brak prologu XML — nie ponawiaj bez
	// sprawdzenia, co dostawca odesłał.
	ErrMalformed = errors.New("geko: malformed response")
)

type FetchOptions struct {
	Stream  bool     // skrócona odpowiedź (testy, health-check)
	Filters []string // ?filters=... (wybór cech)
	Exclude []string // ?exclude=... (wykluczenia)
}

type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger

	mu            sync.Mutex
	nextAllowedAt time.Time
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if key := os.Getenv("GEKO_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.requestTimeout()},
		log:  log,
	}
}

// waitTurn serializuje wszystkie żądania klienta: dwa kolejne nigdy nie wyjdą
// szybciej niż min_request_interval od siebie, niezależnie od liczby wołających.
// Dostawca banuje za częstsze odpytywanie.
func (c *Client) waitTurn() {
	c.mu.Lock()
	now := time.Now()
	scheduled := now
	if c.nextAllowedAt.After(now) {
		scheduled = c.nextAllowedAt
	}
	c.nextAllowedAt = scheduled.Add(c.cfg.minRequestInterval())
	c.mu.Unlock()

	if sleep := time.Until(scheduled); sleep > 0 {
		time.Sleep(sleep)
	}
}

// FetchFeed pobiera feed jako surowe body. Sukces = 2xx i body z prologiem XML.
func (c *Client) FetchFeed(ctx context.Context, opts FetchOptions) ([]byte, error) {
	u, err := c.feedURL(opts)
	if err != nil {
		return nil, err
	}

	c.waitTurn()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "gekosync/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: http 403", ErrThrottled)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("geko api: http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransportErr(err)
	}

	if !looksLikeFeed(body) {
		return nil, fmt.Errorf("%w: body bez prologu XML (len=%d)", ErrMalformed, len(body))
	}
	return body, nil
}

// TestConnectivity — jedno minimalne żądanie, wynik bez błędu (pod health-check).
func (c *Client) TestConnectivity(ctx context.Context) bool {
	if _, err := c.FetchFeed(ctx, FetchOptions{Stream: true}); err != nil {
		c.log.Warn().Err(err).Msg("geko: connectivity check failed")
		return false
	}
	return true
}

func (c *Client) feedURL(opts FetchOptions) (string, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", errors.New("geko: brak api_key (config.json lub GEKO_API_KEY)")
	}
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	u, err := url.Parse(base + "/" + url.PathEscape(c.cfg.APIKey))
	if err != nil {
		return "", err
	}
	q := u.Query()
	if opts.Stream {
		q.Set("stream", "true")
	}
	if len(opts.Filters) > 0 {
		q.Set("filters", strings.Join(opts.Filters, ","))
	}
	if len(opts.Exclude) > 0 {
		q.Set("exclude", strings.Join(opts.Exclude, ","))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func classifyTransportErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func looksLikeFeed(body []byte) bool {
	b := bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")) // BOM
	b = bytes.TrimLeft(b, " \t\r\n")
	return bytes.HasPrefix(b, []byte("<?xml"))
}
