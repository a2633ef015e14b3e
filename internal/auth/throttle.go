package auth

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultThrottleClients = 4096

// Throttle keeps a token bucket per client key. Clients are tracked in a
// bounded LRU so idle addresses are eventually forgotten.
type Throttle struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	proxies Proxies
	clients *lru.Cache[string, *rate.Limiter]
}

// ThrottleOption customises a Throttle.
type ThrottleOption func(*Throttle)

// TrustProxies makes the throttle key requests forwarded by proxies on the
// client named in X-Forwarded-For.
func TrustProxies(proxies Proxies) ThrottleOption {
	return func(t *Throttle) { t.proxies = proxies }
}

// NewThrottle allows perMinute events per client with the given burst.
func NewThrottle(perMinute float64, burst int, opts ...ThrottleOption) *Throttle {
	if burst <= 0 {
		burst = 1
	}
	clients, _ := lru.New[string, *rate.Limiter](defaultThrottleClients)
	t := &Throttle{
		limit:   rate.Limit(perMinute / 60),
		burst:   burst,
		clients: clients,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow consumes one token for key and reports whether the event may proceed.
// A nil Throttle allows everything.
func (t *Throttle) Allow(key string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	limiter, ok := t.clients.Get(key)
	if !ok {
		limiter = rate.NewLimiter(t.limit, t.burst)
		t.clients.Add(key, limiter)
	}
	t.mu.Unlock()
	return limiter.Allow()
}

// Middleware answers requests over the limit with reject, or a plain 429 when
// reject is nil. Only state-changing methods are counted.
func (t *Throttle) Middleware(next http.Handler, reject http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || t == nil || t.Allow(t.proxies.ClientKey(r)) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Retry-After", "60")
		if reject == nil {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		reject.ServeHTTP(w, r)
	})
}

// Proxies lists the networks allowed to report the client address through
// X-Forwarded-For.
type Proxies []netip.Prefix

// ParseProxies accepts CIDR ranges and bare addresses.
func ParseProxies(entries []string) (Proxies, error) {
	var out Proxies
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (p Proxies) trusts(raw string) bool {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientKey identifies the caller by the remote address host. When the peer
// is a trusted proxy, X-Forwarded-For is walked from the right and the first
// hop that is not a trusted proxy is used.
func (p Proxies) ClientKey(r *http.Request) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}
	if len(p) == 0 || !p.trusts(remote) {
		return remote
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	client := remote
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		client = hop
		if !p.trusts(hop) {
			break
		}
	}
	return client
}
