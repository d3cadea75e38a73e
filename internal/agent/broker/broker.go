// Package broker owns the agent's credential pair and coordinates
// token refresh.
package broker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

const (
	// accessMargin is how much validity an access token must have left
	// to be handed out without a refresh.
	accessMargin = 60 * time.Second

	// refreshTimeout bounds one refresh attempt so a hung connection
	// cannot wedge every caller waiting on the shared outcome.
	refreshTimeout = 15 * time.Second
)

// RefreshClient exchanges a refresh token for a new credential pair.
type RefreshClient interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.Credential, error)
}

// refreshCall is one in-flight refresh shared by every concurrent
// caller. Whoever finds it waits on done and observes its one outcome.
type refreshCall struct {
	done chan struct{}
	cred *domain.Credential
	err  error
}

// Broker hands out valid access tokens, refreshing at most once at a
// time no matter how many goroutines ask.
type Broker struct {
	client RefreshClient

	mu       sync.Mutex
	cred     *domain.Credential
	inflight *refreshCall
}

// New creates a broker. The credential may be nil until SetCredential.
func New(client RefreshClient, cred *domain.Credential) *Broker {
	return &Broker{client: client, cred: cred}
}

// SetCredential replaces the stored credential, e.g. after initial
// token issue or loading persisted state.
func (b *Broker) SetCredential(cred *domain.Credential) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cred = cred
}

// Credential returns the current credential, which may be nil.
func (b *Broker) Credential() *domain.Credential {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cred
}

// Clear drops the stored credential. Called when a refresh chain is
// dead and the worker must authenticate from scratch.
func (b *Broker) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cred = nil
	log.Printf("WARN: credentials cleared, re-authentication required")
}

// EnsureValid returns an access token with at least the safety margin
// of validity left, refreshing if needed. Concurrent callers share one
// refresh and observe the same outcome.
func (b *Broker) EnsureValid(ctx context.Context) (string, error) {
	b.mu.Lock()
	if b.cred.AccessValidFor(accessMargin, time.Now()) {
		token := b.cred.AccessToken
		b.mu.Unlock()
		return token, nil
	}
	call := b.startRefreshLocked()
	b.mu.Unlock()

	return b.wait(ctx, call)
}

// ForceRefresh discards the current access token and fetches a new
// pair. Used after the server rejects a token that looked valid
// locally. Joins an in-flight refresh rather than starting a second.
func (b *Broker) ForceRefresh(ctx context.Context) (string, error) {
	b.mu.Lock()
	call := b.startRefreshLocked()
	b.mu.Unlock()

	return b.wait(ctx, call)
}

// startRefreshLocked returns the in-flight call, starting one if none
// is running. Caller holds b.mu.
func (b *Broker) startRefreshLocked() *refreshCall {
	if b.inflight != nil {
		return b.inflight
	}

	call := &refreshCall{done: make(chan struct{})}
	b.inflight = call

	var refreshToken string
	if b.cred != nil {
		refreshToken = b.cred.RefreshToken
	}

	go b.refresh(call, refreshToken)
	return call
}

// refresh runs one refresh attempt and publishes its outcome. Uses its
// own context so a canceled waiter does not abort the shared call.
func (b *Broker) refresh(call *refreshCall, refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if refreshToken == "" {
		call.err = domain.NewError(domain.CodeAuth, "no refresh token available")
	} else {
		call.cred, call.err = b.client.Refresh(ctx, refreshToken)
	}

	b.mu.Lock()
	if call.err == nil {
		b.cred = call.cred
	}
	b.inflight = nil
	b.mu.Unlock()

	close(call.done)
}

func (b *Broker) wait(ctx context.Context, call *refreshCall) (string, error) {
	select {
	case <-ctx.Done():
		return "", domain.WrapError(domain.CodeNetwork, ctx.Err(), "refresh wait canceled")
	case <-call.done:
	}
	if call.err != nil {
		return "", call.err
	}
	return call.cred.AccessToken, nil
}
