package adapter

import (
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/orbit-yield/internal/config"
	"github.com/orbit-yield/internal/errors"
	"github.com/orbit-yield/internal/logging"
)

// RPCPool manages the RPC endpoints of one chain with failover on rate
// limiting. It sticks to the current endpoint until a 429, then switches to
// the next endpoint whose cooldown has expired.
type RPCPool struct {
	chain        string
	endpoints    []string
	clients      []*ethclient.Client
	currentIndex int
	cooldowns    map[int]time.Time
	cooldownTime time.Duration
	mu           sync.RWMutex
}

const defaultCooldown = 60 * time.Second

// NewRPCPool connects to the primary endpoint of a chain and holds the
// secondary for lazy failover. The chain name is only used for logging.
func NewRPCPool(chain string, cfg config.ChainConfig) (*RPCPool, error) {
	var endpoints []string
	for _, url := range []string{cfg.RPCPrimary, cfg.RPCSecondary} {
		if strings.TrimSpace(url) != "" {
			endpoints = append(endpoints, strings.TrimSpace(url))
		}
	}
	if len(endpoints) == 0 {
		return nil, errors.NewInvalidArgumentError("rpc", "chain "+chain+" has no RPC endpoint configured")
	}

	pool := &RPCPool{
		chain:        chain,
		endpoints:    endpoints,
		clients:      make([]*ethclient.Client, len(endpoints)),
		cooldowns:    make(map[int]time.Time),
		cooldownTime: defaultCooldown,
	}

	client, err := ethclient.Dial(endpoints[0])
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("rpc:"+chain, err)
	}
	pool.clients[0] = client

	return pool, nil
}

// Client returns the currently active client.
func (p *RPCPool) Client() *ethclient.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clients[p.currentIndex]
}

// CurrentURL returns the currently active endpoint URL.
func (p *RPCPool) CurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.endpoints[p.currentIndex]
}

// OnRateLimited marks the current endpoint as rate limited and switches to
// the next endpoint not in cooldown. It returns an error when every endpoint
// is cooling down.
func (p *RPCPool) OnRateLimited() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := logging.GetGlobalLogger().WithField("chain", p.chain)
	p.cooldowns[p.currentIndex] = time.Now()

	for i := 0; i < len(p.endpoints); i++ {
		next := (p.currentIndex + 1 + i) % len(p.endpoints)

		if limitedAt, exists := p.cooldowns[next]; exists {
			if time.Since(limitedAt) < p.cooldownTime {
				continue
			}
			delete(p.cooldowns, next)
		}

		if err := p.switchTo(next); err != nil {
			log.WithError(err).Warnf("failed to switch to RPC endpoint %d", next)
			continue
		}
		log.Infof("switched to RPC endpoint %d after rate limit", next)
		return nil
	}

	return errors.NewUpstreamUnavailableError("rpc:"+p.chain, nil)
}

// TryResetToPrimary switches back to the primary endpoint if its cooldown has
// expired. Reports whether the pool is on the primary afterwards.
func (p *RPCPool) TryResetToPrimary() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.currentIndex == 0 {
		return true
	}
	if limitedAt, exists := p.cooldowns[0]; exists {
		if time.Since(limitedAt) < p.cooldownTime {
			return false
		}
		delete(p.cooldowns, 0)
	}
	return p.switchTo(0) == nil
}

// switchTo connects lazily and activates an endpoint. Caller holds the lock.
func (p *RPCPool) switchTo(index int) error {
	if p.clients[index] == nil {
		client, err := ethclient.Dial(p.endpoints[index])
		if err != nil {
			return errors.NewUpstreamUnavailableError("rpc:"+p.chain, err)
		}
		p.clients[index] = client
	}
	p.currentIndex = index
	return nil
}

// Close closes all open client connections.
func (p *RPCPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, client := range p.clients {
		if client != nil {
			client.Close()
			p.clients[i] = nil
		}
	}
}

// IsRateLimitError reports whether an RPC error indicates rate limiting.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "throttl")
}
