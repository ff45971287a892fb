package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/core/credential"
)

func testPool(names ...string) *credential.Pool {
	p := credential.NewPool(credential.Config{
		MinDelayBetweenUses: time.Millisecond,
		MaxFailsBeforeBlock: 3,
		BlockDuration:       50 * time.Millisecond,
		PollInterval:        10 * time.Millisecond,
	})
	for _, n := range names {
		p.Add(n)
	}
	return p
}

func fastFetcher(p *credential.Pool) *Fetcher {
	return New(p, Config{MaxRetries: 3, BaseDelay: time.Millisecond, AcquireTimeout: time.Second})
}

func TestFetchSucceedsFirstAttempt(t *testing.T) {
	p := testPool("a.txt")
	f := fastFetcher(p)

	attempts := 0
	out, err := f.Fetch(context.Background(), "video-1", func(ctx context.Context, cred *credential.Credential) (string, error) {
		attempts++
		return "/tmp/clip.mp4", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/clip.mp4", out)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1.0, p.Stats().SuccessRate)
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	p := testPool("a.txt", "b.txt")
	f := fastFetcher(p)

	attempts := 0
	out, err := f.Fetch(context.Background(), "video-2", func(ctx context.Context, cred *credential.Credential) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("HTTP 403: blocked")
		}
		return "/tmp/clip.mp4", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/clip.mp4", out)
	assert.Equal(t, 2, attempts)
}

func TestFetchRotatesCredentialsBetweenAttempts(t *testing.T) {
	p := testPool("a.txt", "b.txt")
	f := fastFetcher(p)

	used := map[string]bool{}
	_, _ = f.Fetch(context.Background(), "video-3", func(ctx context.Context, cred *credential.Credential) (string, error) {
		used[cred.Name] = true
		return "", errors.New("sign in to confirm you are not a bot")
	})
	assert.Len(t, used, 2, "failing attempts should rotate to a different credential")
}

func TestFetchExhaustsRetries(t *testing.T) {
	p := testPool("a.txt")
	f := fastFetcher(p)

	attempts := 0
	_, err := f.Fetch(context.Background(), "video-4", func(ctx context.Context, cred *credential.Credential) (string, error) {
		attempts++
		return "", fmt.Errorf("captcha required")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var ferr *Error
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, 3, ferr.Attempts)
	assert.Contains(t, ferr.Error(), "captcha required")
}

func TestFetchEmptyPoolIsPermanent(t *testing.T) {
	f := fastFetcher(testPool())

	attempts := 0
	_, err := f.Fetch(context.Background(), "video-5", func(ctx context.Context, cred *credential.Credential) (string, error) {
		attempts++
		return "", nil
	})
	assert.ErrorIs(t, err, credential.ErrNoCredentials)
	assert.Zero(t, attempts)
}

func TestFetchHonorsContextDuringBackoff(t *testing.T) {
	p := testPool("a.txt")
	f := New(p, Config{MaxRetries: 3, BaseDelay: 200 * time.Millisecond, AcquireTimeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Fetch(ctx, "video-6", func(ctx context.Context, cred *credential.Credential) (string, error) {
		return "", errors.New("transient")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMatchBlockSignature(t *testing.T) {
	assert.Equal(t, "sign in", matchBlockSignature(errors.New("Sign in to continue")))
	assert.Equal(t, "403", matchBlockSignature(errors.New("server said 403 forbidden")))
	assert.Equal(t, "", matchBlockSignature(errors.New("connection reset")))
}
