package politeness

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/casaval/casaval/internal/common"
	"github.com/casaval/casaval/internal/interfaces"
)

var (
	// ErrRobotsDisallowed means robots.txt forbids this URL for our agent.
	// Terminal: the job must not be retried.
	ErrRobotsDisallowed = errors.New("robots.txt disallows url")

	// ErrDomainBusy means the domain is at its concurrency cap or its
	// minimum delay has not elapsed. Transient: requeue without penalty.
	ErrDomainBusy = errors.New("domain busy or rate limited")

	// ErrSourceDisabled means an operator switched the source off.
	ErrSourceDisabled = errors.New("source disabled")
)

// Gate is the single admission point in front of the fetcher. Every
// outbound request acquires a slot here first; the gate checks robots.txt,
// applies the effective per-domain delay and caps in-flight requests per
// domain.
type Gate struct {
	sources      interfaces.FetchStorage
	robots       *RobotsChecker
	defaultDelay time.Duration
	maxInFlight  int
	mu           sync.Mutex
	domains      map[string]*domainState
	logger       arbor.ILogger
}

type domainState struct {
	limiter  *rate.Limiter
	delay    time.Duration
	inFlight int
}

// NewGate creates a Gate. defaultDelay is the floor between requests to
// the same domain; maxInFlight caps concurrent requests per domain.
func NewGate(sources interfaces.FetchStorage, robots *RobotsChecker, defaultDelay time.Duration, maxInFlight int, logger arbor.ILogger) *Gate {
	if maxInFlight <= 0 {
		maxInFlight = 2
	}
	return &Gate{
		sources:      sources,
		robots:       robots,
		defaultDelay: defaultDelay,
		maxInFlight:  maxInFlight,
		domains:      make(map[string]*domainState),
		logger:       logger,
	}
}

// TryAcquire attempts to reserve a fetch slot for the URL's domain.
// A nil return means the caller owns a slot and must call Release with
// the same domain when the fetch finishes, whatever its outcome.
func (g *Gate) TryAcquire(ctx context.Context, rawURL string) error {
	domain := common.DomainOf(rawURL)
	if domain == "" {
		return fmt.Errorf("politeness: cannot determine domain of %q", rawURL)
	}

	source, err := g.sources.GetSource(ctx, domain)
	if err != nil {
		return fmt.Errorf("politeness: load source %s: %w", domain, err)
	}
	if source != nil && !source.Enabled {
		return fmt.Errorf("%w: %s", ErrSourceDisabled, domain)
	}

	allowed, err := g.robots.IsAllowed(ctx, rawURL)
	if err != nil {
		return fmt.Errorf("politeness: robots check: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrRobotsDisallowed, rawURL)
	}

	delay := g.defaultDelay
	if source != nil && source.MinDelay() > delay {
		delay = source.MinDelay()
	}
	// robots.txt crawl-delay wins when it is stricter than configuration
	if parsed, perr := url.Parse(rawURL); perr == nil {
		if crawlDelay := g.robots.CrawlDelay(parsed.Host); crawlDelay > delay {
			delay = crawlDelay
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.domains[domain]
	if state == nil {
		state = &domainState{
			limiter: rate.NewLimiter(limitFor(delay), 1),
			delay:   delay,
		}
		g.domains[domain] = state
	} else if state.delay != delay {
		state.limiter.SetLimit(limitFor(delay))
		state.delay = delay
	}

	if state.inFlight >= g.maxInFlight {
		return fmt.Errorf("%w: %s at concurrency cap", ErrDomainBusy, domain)
	}
	if !state.limiter.Allow() {
		return fmt.Errorf("%w: %s within min delay", ErrDomainBusy, domain)
	}

	state.inFlight++
	return nil
}

// Release returns the slot acquired by TryAcquire.
func (g *Gate) Release(domain string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.domains[domain]
	if state != nil && state.inFlight > 0 {
		state.inFlight--
	}
}

func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}
