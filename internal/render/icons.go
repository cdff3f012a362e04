package render

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yanivvds/portfolio-assistant/pkg/logger"
)

const prefetchLimit = 8

var errPrivateDestination = errors.New("icon host resolves to a private address")

// IconResolver decides whether an icon URL can be shown as an image. When it
// reports false the renderer draws a text glyph instead.
type IconResolver interface {
	Usable(rawURL string) bool
}

// prefetcher is implemented by resolvers that can check several URLs at once.
type prefetcher interface {
	Prefetch(urls []string)
}

// StaticIcons accepts every well-formed http(s) URL without probing.
type StaticIcons struct{}

// Usable implements IconResolver.
func (StaticIcons) Usable(rawURL string) bool {
	return validIconURL(rawURL)
}

func validIconURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// HTTPIconResolver probes each icon URL once with a HEAD request and remembers
// the answer. A URL that failed is never requested again. Loopback, private
// and link-local destinations are refused before and during dialing.
type HTTPIconResolver struct {
	client  *http.Client
	timeout time.Duration
	logger  *logger.Logger

	// allowPrivate lets tests probe httptest servers on 127.0.0.1.
	allowPrivate bool

	group   singleflight.Group
	mu      sync.RWMutex
	results map[string]bool
}

// NewHTTPIconResolver creates a resolver whose probes time out after timeout.
// A nil client gets a transport that will not connect to internal addresses.
func NewHTTPIconResolver(client *http.Client, timeout time.Duration, log *logger.Logger) *HTTPIconResolver {
	if client == nil {
		client = newGuardedClient()
	}
	return &HTTPIconResolver{
		client:  client,
		timeout: timeout,
		logger:  log,
		results: make(map[string]bool),
	}
}

func newGuardedClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   refusePrivate,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Transport: transport}
}

// refusePrivate runs after name resolution, so it also catches hostnames and
// redirects that point inside the network.
func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if internalAddr(addr) {
		return errPrivateDestination
	}
	return nil
}

func internalAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified()
}

// internalHost reports hosts that can be rejected without touching the network.
func internalHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return internalAddr(addr)
	}
	return false
}

// Usable implements IconResolver.
func (r *HTTPIconResolver) Usable(rawURL string) bool {
	if !validIconURL(rawURL) {
		return false
	}
	if !r.allowPrivate && internalHost(rawURL) {
		return false
	}

	r.mu.RLock()
	ok, seen := r.results[rawURL]
	r.mu.RUnlock()
	if seen {
		return ok
	}

	v, _, _ := r.group.Do(rawURL, func() (any, error) {
		r.mu.RLock()
		ok, seen := r.results[rawURL]
		r.mu.RUnlock()
		if seen {
			return ok, nil
		}

		ok = r.probe(rawURL)
		r.mu.Lock()
		r.results[rawURL] = ok
		r.mu.Unlock()
		return ok, nil
	})
	return v.(bool)
}

// Prefetch probes urls concurrently so a fragment with many icons waits for
// roughly one timeout instead of one per icon.
func (r *HTTPIconResolver) Prefetch(urls []string) {
	var g errgroup.Group
	g.SetLimit(prefetchLimit)
	for _, u := range urls {
		u := u
		g.Go(func() error {
			r.Usable(u)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *HTTPIconResolver) probe(rawURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("icon probe failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Debug("icon unavailable", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return false
	}
	return true
}
