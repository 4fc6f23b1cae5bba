package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hamed0406/uptimeworker/internal/domain"
)

// Runner issues one outbound request per check and turns whatever happens
// first (response, transport error, timeout) into an Outcome. It never
// retries; the next scheduled tick is the next attempt.
type Runner struct {
	clients  map[domain.Protocol]*http.Client
	resolver Resolver // nil disables DNS classification
}

type Option func(*Runner)

// WithClient overrides the client used for one protocol.
func WithClient(p domain.Protocol, c *http.Client) Option {
	return func(r *Runner) { r.clients[p] = c }
}

// WithResolver sets the resolver used to classify transport failures; nil
// turns classification off.
func WithResolver(res Resolver) Option {
	return func(r *Runner) { r.resolver = res }
}

func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		clients: map[domain.Protocol]*http.Client{
			domain.ProtocolHTTP:  newClient(nil),
			domain.ProtocolHTTPS: newClient(&tls.Config{MinVersion: tls.VersionTLS12}),
		},
		resolver: net.DefaultResolver,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// newClient reports redirects as responses instead of following them, and
// leaves the deadline to the Runner's own timer.
func newClient(tlsCfg *tls.Config) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			TLSClientConfig:   tlsCfg,
			DisableKeepAlives: true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// completion holds the first outcome delivered to it; later ones are dropped.
type completion struct {
	once sync.Once
	done chan struct{}
	out  domain.Outcome
}

func newCompletion() *completion {
	return &completion{done: make(chan struct{})}
}

func (c *completion) finish(o domain.Outcome) bool {
	won := false
	c.once.Do(func() {
		c.out = o
		won = true
		close(c.done)
	})
	return won
}

func (c *completion) result() domain.Outcome {
	<-c.done
	return c.out
}

func (r *Runner) Run(ctx context.Context, c domain.Check) domain.Outcome {
	client, ok := r.clients[c.Protocol]
	if !ok {
		return domain.ErrorOutcome(domain.ErrorTransport, fmt.Sprintf("unsupported protocol %q", c.Protocol))
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, c.HTTPMethod(), c.Target(), nil)
	if err != nil {
		return domain.ErrorOutcome(domain.ErrorTransport, err.Error())
	}

	comp := newCompletion()
	go func() {
		resp, err := client.Do(req)
		if err != nil {
			comp.finish(transportOutcome(err))
			return
		}
		resp.Body.Close()
		comp.finish(domain.ResponseOutcome(resp.StatusCode))
	}()

	timer := time.NewTimer(c.Timeout())
	defer timer.Stop()
	select {
	case <-comp.done:
	case <-timer.C:
		comp.finish(domain.ErrorOutcome(domain.ErrorTimeout, fmt.Sprintf("timeout after %s", c.Timeout())))
	}
	out := comp.result()

	if out.Error != nil && out.Error.Kind == domain.ErrorTransport && r.resolver != nil {
		out.Error.DNS = ClassifyDNS(ctx, r.resolver, hostOf(c.Target())).Class
	}
	return out
}

func transportOutcome(err error) domain.Outcome {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return domain.ErrorOutcome(domain.ErrorTimeout, err.Error())
	}
	return domain.ErrorOutcome(domain.ErrorTransport, err.Error())
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return target
	}
	return u.Hostname()
}
