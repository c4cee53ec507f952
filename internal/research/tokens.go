package research

import (
	"sync"

	"github.com/researchd/orchestrator/internal/runner"
)

// tokens holds the cancel token of every admitted job whose run has not
// returned.
type tokens struct {
	mu sync.Mutex
	m  map[string]*runner.Token
}

func newTokens() *tokens {
	return &tokens{m: make(map[string]*runner.Token)}
}

func (t *tokens) add(id string) *runner.Token {
	tok := runner.NewToken()
	t.mu.Lock()
	t.m[id] = tok
	t.mu.Unlock()
	return tok
}

func (t *tokens) get(id string) (*runner.Token, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tok, ok := t.m[id]
	return tok, ok
}

func (t *tokens) release(id string) {
	t.mu.Lock()
	delete(t.m, id)
	t.mu.Unlock()
}
