package broker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vt-ctyhp/attendance-system-sub002/internal/domain"
)

// fakeRefresher counts refresh calls and can delay to widen race
// windows.
type fakeRefresher struct {
	calls int32
	delay time.Duration
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*domain.Credential, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Credential{
		AccessToken:           "at_refreshed",
		AccessTokenExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshToken:          "rt_next",
		RefreshTokenExpiresAt: time.Now().Add(720 * time.Hour),
	}, nil
}

func (f *fakeRefresher) count() int32 {
	return atomic.LoadInt32(&f.calls)
}

func expiredCredential() *domain.Credential {
	return &domain.Credential{
		AccessToken:           "at_stale",
		AccessTokenExpiresAt:  time.Now().Add(10 * time.Second), // inside the margin
		RefreshToken:          "rt_current",
		RefreshTokenExpiresAt: time.Now().Add(720 * time.Hour),
	}
}

func TestEnsureValidReturnsFreshTokenWithoutRefresh(t *testing.T) {
	refresher := &fakeRefresher{}
	b := New(refresher, &domain.Credential{
		AccessToken:          "at_fresh",
		AccessTokenExpiresAt: time.Now().Add(15 * time.Minute),
		RefreshToken:         "rt_current",
	})

	token, err := b.EnsureValid(context.Background())
	if err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if token != "at_fresh" {
		t.Fatalf("expected the stored token, got %q", token)
	}
	if refresher.count() != 0 {
		t.Fatalf("fresh token must not trigger a refresh, got %d calls", refresher.count())
	}
}

func TestConcurrentEnsureValidSharesOneRefresh(t *testing.T) {
	refresher := &fakeRefresher{delay: 50 * time.Millisecond}
	b := New(refresher, expiredCredential())

	const callers = 10
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = b.EnsureValid(context.Background())
		}(i)
	}
	wg.Wait()

	if got := refresher.count(); got != 1 {
		t.Fatalf("expected exactly one refresh call, got %d", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if tokens[i] != "at_refreshed" {
			t.Fatalf("caller %d got %q, want the refreshed token", i, tokens[i])
		}
	}
}

func TestRefreshFailurePropagatesToAllWaiters(t *testing.T) {
	refresher := &fakeRefresher{
		delay: 20 * time.Millisecond,
		err:   domain.NewError(domain.CodeAuth, "refresh token is unknown or already rotated"),
	}
	b := New(refresher, expiredCredential())

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.EnsureValid(context.Background())
		}(i)
	}
	wg.Wait()

	if got := refresher.count(); got != 1 {
		t.Fatalf("expected one shared failure, got %d calls", got)
	}
	for i, err := range errs {
		if domain.CodeOf(err) != domain.CodeAuth {
			t.Fatalf("caller %d: expected auth error, got %v", i, err)
		}
	}

	// The stale credential survives a failed refresh; a later attempt
	// can still use the refresh token.
	if b.Credential() == nil {
		t.Fatalf("failed refresh must not clear the credential")
	}
}

func TestForceRefreshSkipsValidityCheck(t *testing.T) {
	refresher := &fakeRefresher{}
	b := New(refresher, &domain.Credential{
		AccessToken:          "at_fresh",
		AccessTokenExpiresAt: time.Now().Add(15 * time.Minute),
		RefreshToken:         "rt_current",
	})

	token, err := b.ForceRefresh(context.Background())
	if err != nil {
		t.Fatalf("ForceRefresh failed: %v", err)
	}
	if token != "at_refreshed" || refresher.count() != 1 {
		t.Fatalf("expected a forced refresh, got token %q after %d calls", token, refresher.count())
	}

	// The rotated pair is now the stored credential.
	if cred := b.Credential(); cred == nil || cred.RefreshToken != "rt_next" {
		t.Fatalf("expected rotated credential, got %+v", cred)
	}
}

func TestEnsureValidWithoutCredential(t *testing.T) {
	b := New(&fakeRefresher{}, nil)

	_, err := b.EnsureValid(context.Background())
	if domain.CodeOf(err) != domain.CodeAuth {
		t.Fatalf("expected auth error without a credential, got %v", err)
	}
}

func TestClearDropsCredential(t *testing.T) {
	b := New(&fakeRefresher{}, expiredCredential())
	b.Clear()
	if b.Credential() != nil {
		t.Fatalf("Clear left a credential behind")
	}
}
