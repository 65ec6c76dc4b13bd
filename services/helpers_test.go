package services

import (
	"context"
	"path/filepath"
	"testing"

	"mission-ledger/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

type memArchiver struct {
	objects map[string][]byte
	err     error
}

func (a *memArchiver) Archive(_ context.Context, key string, body []byte) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	if a.objects == nil {
		a.objects = make(map[string][]byte)
	}
	a.objects[key] = body
	return "mem://" + key, nil
}

func newMemoryLedger(t *testing.T) (*Ledger, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	l, err := NewLedger(s, nil, &memArchiver{}, zap.NewNop())
	require.NoError(t, err)
	return l, s
}

func newSQLiteLedger(t *testing.T) *Ledger {
	t.Helper()
	s, err := store.Open("sqlite", filepath.Join(t.TempDir(), "ledger.db"), logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	l, err := NewLedger(s, nil, &memArchiver{}, zap.NewNop())
	require.NoError(t, err)
	return l
}

// forEachLedger runs fn against a memory-backed and a sqlite-backed ledger.
func forEachLedger(t *testing.T, fn func(t *testing.T, l *Ledger)) {
	t.Run("memory", func(t *testing.T) {
		l, _ := newMemoryLedger(t)
		fn(t, l)
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newSQLiteLedger(t))
	})
}

func register(t *testing.T, l *Ledger, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		_, _, err := l.Users.RegisterUserIfAbsent(context.Background(), id, "")
		require.NoError(t, err)
	}
}
