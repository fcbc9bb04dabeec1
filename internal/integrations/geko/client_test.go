package geko

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

const feedOK = `<?xml version="1.0" encoding="utf-8"?><geko><products/></geko>`

func testClientConfig() Config {
	cfg := DefaultConfig()
	cfg.APIKey = "testkey"
	cfg.MinRequestIntervalMs = 1
	return cfg
}

func newFakeClient(t *testing.T, cfg Config, rt roundTripFunc) *Client {
	t.Helper()
	// klucz ze środowiska nadpisałby ten z configa i psuł asercje na URL
	t.Setenv("GEKO_API_KEY", "")
	c := NewClient(cfg, zerolog.Nop())
	c.http = &http.Client{Transport: rt}
	return c
}

func xmlResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestFetchFeedOK(t *testing.T) {
	var gotURL string
	c := newFakeClient(t, testClientConfig(), func(r *http.Request) (*http.Response, error) {
		gotURL = r.URL.String()
		return xmlResponse(200, feedOK), nil
	})

	body, err := c.FetchFeed(context.Background(), FetchOptions{Stream: true, Filters: []string{"tools"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != feedOK {
		t.Fatalf("body=%q", body)
	}
	if !strings.Contains(gotURL, "/testkey") {
		t.Fatalf("api key path segment missing: %s", gotURL)
	}
	if !strings.Contains(gotURL, "stream=true") || !strings.Contains(gotURL, "filters=tools") {
		t.Fatalf("query params missing: %s", gotURL)
	}
}

func TestFetchFeedThrottled(t *testing.T) {
	c := newFakeClient(t, testClientConfig(), func(*http.Request) (*http.Response, error) {
		return xmlResponse(http.StatusForbidden, "banned"), nil
	})
	if _, err := c.FetchFeed(context.Background(), FetchOptions{}); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
}

func TestFetchFeedMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"html error page", "<html><body>503</body></html>"},
		{"plain text", "service temporarily unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newFakeClient(t, testClientConfig(), func(*http.Request) (*http.Response, error) {
				return xmlResponse(200, tc.body), nil
			})
			if _, err := c.FetchFeed(context.Background(), FetchOptions{}); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestFetchFeedAcceptsBOM(t *testing.T) {
	c := newFakeClient(t, testClientConfig(), func(*http.Request) (*http.Response, error) {
		return xmlResponse(200, "\xef\xbb\xbf"+feedOK), nil
	})
	if _, err := c.FetchFeed(context.Background(), FetchOptions{}); err != nil {
		t.Fatal(err)
	}
}

func TestFetchFeedGenericHTTPError(t *testing.T) {
	c := newFakeClient(t, testClientConfig(), func(*http.Request) (*http.Response, error) {
		return xmlResponse(500, "boom"), nil
	})
	_, err := c.FetchFeed(context.Background(), FetchOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	for _, sentinel := range []error{ErrThrottled, ErrTimeout, ErrNetwork, ErrMalformed} {
		if errors.Is(err, sentinel) {
			t.Fatalf("500 classified as %v", sentinel)
		}
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "deadline exceeded" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestFetchFeedTimeout(t *testing.T) {
	c := newFakeClient(t, testClientConfig(), func(*http.Request) (*http.Response, error) {
		return nil, timeoutError{}
	})
	if _, err := c.FetchFeed(context.Background(), FetchOptions{}); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestFetchFeedNetworkError(t *testing.T) {
	c := newFakeClient(t, testClientConfig(), func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	if _, err := c.FetchFeed(context.Background(), FetchOptions{}); !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestFetchFeedMissingAPIKey(t *testing.T) {
	cfg := testClientConfig()
	cfg.APIKey = ""
	c := newFakeClient(t, cfg, func(*http.Request) (*http.Response, error) {
		t.Fatal("request should not be issued")
		return nil, nil
	})
	if _, err := c.FetchFeed(context.Background(), FetchOptions{}); err == nil {
		t.Fatal("expected error")
	}
}

// Dwa kolejne żądania nigdy nie wychodzą szybciej niż min_request_interval
// od siebie, mierząc na transporcie.
func TestRateGateSpacing(t *testing.T) {
	cfg := testClientConfig()
	cfg.MinRequestIntervalMs = 60

	var stamps []time.Time
	c := newFakeClient(t, cfg, func(*http.Request) (*http.Response, error) {
		stamps = append(stamps, time.Now())
		return xmlResponse(200, feedOK), nil
	})

	for i := 0; i < 3; i++ {
		if _, err := c.FetchFeed(context.Background(), FetchOptions{}); err != nil {
			t.Fatal(err)
		}
	}

	if len(stamps) != 3 {
		t.Fatalf("requests=%d", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 55*time.Millisecond {
			t.Fatalf("requests %d and %d only %s apart", i-1, i, gap)
		}
	}
}

func TestTestConnectivity(t *testing.T) {
	var sawStream bool
	ok := newFakeClient(t, testClientConfig(), func(r *http.Request) (*http.Response, error) {
		sawStream = r.URL.Query().Get("stream") == "true"
		return xmlResponse(200, feedOK), nil
	})
	if !ok.TestConnectivity(context.Background()) {
		t.Fatal("expected true")
	}
	if !sawStream {
		t.Fatal("connectivity probe should use stream mode")
	}

	bad := newFakeClient(t, testClientConfig(), func(*http.Request) (*http.Response, error) {
		return xmlResponse(500, "boom"), nil
	})
	if bad.TestConnectivity(context.Background()) {
		t.Fatal("expected false")
	}
}
