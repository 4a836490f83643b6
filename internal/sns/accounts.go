// Package sns talks to the social-network surface under simulation: a pool
// of seeded accounts and a direct HTTP client for its write endpoints.
package sns

import (
	"context"
	"fmt"
	"strings"
)

// Account is one seeded login on the social surface.
type Account struct {
	Email    string
	Username string
	Password string
}

// AgentAccounts returns the first n seeded agent accounts (agent1..agent10).
// n is clamped to the seeded range.
func AgentAccounts(n int, password string) []Account {
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}
	accounts := make([]Account, 0, n)
	for i := 1; i <= n; i++ {
		email := fmt.Sprintf("agent%d@local.dev", i)
		accounts = append(accounts, Account{
			Email:    email,
			Username: strings.SplitN(email, "@", 2)[0],
			Password: password,
		})
	}
	return accounts
}

// Pool is a bounded checkout/return pool of accounts. Checkout blocks when
// every account is in use; Return must always be called, including on agent
// crash, which callers guarantee with defer.
type Pool struct {
	accounts chan Account
}

// NewPool builds a pool over the given accounts.
func NewPool(accounts []Account) *Pool {
	ch := make(chan Account, len(accounts))
	for _, a := range accounts {
		ch <- a
	}
	return &Pool{accounts: ch}
}

// Checkout blocks until an account is free or the context is cancelled.
func (p *Pool) Checkout(ctx context.Context) (Account, error) {
	select {
	case a := <-p.accounts:
		return a, nil
	case <-ctx.Done():
		return Account{}, ctx.Err()
	}
}

// Return puts an account back into the pool.
func (p *Pool) Return(a Account) {
	select {
	case p.accounts <- a:
	default:
		// Returning an account that was never checked out would overflow;
		// dropping it is safer than blocking a crashing agent.
	}
}

// Available reports the number of accounts currently checked in.
func (p *Pool) Available() int {
	return len(p.accounts)
}
