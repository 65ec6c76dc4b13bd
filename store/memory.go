package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"mission-ledger/models"
)

// MemoryStore is the reference Store. A single mutex serializes every
// transaction, so it is trivially linearizable within one process.
type MemoryStore struct {
	mu sync.Mutex

	users        map[int64]*models.User
	missions     []*models.Mission // index = id - 1
	rewards      map[uint]*models.Reward
	rewardByName map[string]uint
	nextRewardID uint
	redemptions  []models.Redemption

	unavailable atomic.Bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[int64]*models.User),
		rewards:      make(map[uint]*models.Reward),
		rewardByName: make(map[string]uint),
	}
}

// SetUnavailable makes every following call fail with ErrUnavailable until
// it is cleared. It simulates an outage of the backing database.
func (s *MemoryStore) SetUnavailable(down bool) {
	s.unavailable.Store(down)
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.unavailable.Load() {
		return fmt.Errorf("%w: memory store marked down", ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		s:        s,
		users:    make(map[int64]*models.User),
		missions: make(map[uint]*models.Mission),
		rewards:  make(map[uint]*models.Reward),
	}
	if err := fn(tx); err != nil {
		return err
	}
	// Commit can fail like a real database would; nothing is applied then.
	if s.unavailable.Load() {
		return fmt.Errorf("%w: commit failed", ErrUnavailable)
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ExternalUserID]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ExternalUserID] = u.Clone()
	return nil
}

func (s *MemoryStore) FindUser(ctx context.Context, externalUserID int64) (*models.User, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[externalUserID]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedUsers(nil), nil
}

func (s *MemoryStore) TopUsers(ctx context.Context, limit int) ([]models.User, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	users := s.sortedUsers(nil)
	sort.SliceStable(users, func(i, j int) bool {
		return users[i].Points > users[j].Points
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// sortedUsers returns clones ordered by external id, with staged overrides.
func (s *MemoryStore) sortedUsers(staged map[int64]*models.User) []models.User {
	out := make([]models.User, 0, len(s.users))
	for id, u := range s.users {
		if st, ok := staged[id]; ok {
			u = st
		}
		out = append(out, *u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalUserID < out[j].ExternalUserID })
	return out
}

func (s *MemoryStore) CreateMission(ctx context.Context, m *models.Mission) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.missions {
		if m.Code != nil && existing.Code != nil && *existing.Code == *m.Code {
			return ErrDuplicate
		}
		if m.PollID != nil && existing.PollID != nil && *existing.PollID == *m.PollID {
			return ErrDuplicate
		}
	}
	now := time.Now()
	m.ID = uint(len(s.missions) + 1)
	m.CreatedAt, m.UpdatedAt = now, now
	s.missions = append(s.missions, m.Clone())
	return nil
}

func (s *MemoryStore) FindMission(ctx context.Context, id uint) (*models.Mission, error) {
	return s.findMission(ctx, func(m *models.Mission) bool { return m.ID == id })
}

func (s *MemoryStore) FindMissionByCode(ctx context.Context, code string) (*models.Mission, error) {
	return s.findMission(ctx, func(m *models.Mission) bool { return m.Code != nil && *m.Code == code })
}

func (s *MemoryStore) FindMissionByPost(ctx context.Context, postID int64) (*models.Mission, error) {
	return s.findMission(ctx, func(m *models.Mission) bool { return m.PostID != nil && *m.PostID == postID })
}

func (s *MemoryStore) FindMissionByPoll(ctx context.Context, pollID string) (*models.Mission, error) {
	return s.findMission(ctx, func(m *models.Mission) bool { return m.PollID != nil && *m.PollID == pollID })
}

func (s *MemoryStore) findMission(ctx context.Context, match func(*models.Mission) bool) (*models.Mission, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.missions {
		if match(m) {
			return m.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListActiveMissions(ctx context.Context) ([]models.Mission, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Mission
	for _, m := range s.missions {
		if m.Active {
			out = append(out, *m.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) UpsertReward(ctx context.Context, r *models.Reward) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if id, ok := s.rewardByName[r.Name]; ok {
		existing := s.rewards[id]
		existing.Description = r.Description
		existing.Cost = r.Cost
		existing.UpdatedAt = now
		*r = *existing.Clone()
		return false, nil
	}
	s.nextRewardID++
	r.ID = s.nextRewardID
	r.CreatedAt, r.UpdatedAt = now, now
	s.rewards[r.ID] = r.Clone()
	s.rewardByName[r.Name] = r.ID
	return true, nil
}

func (s *MemoryStore) FindReward(ctx context.Context, id uint) (*models.Reward, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rewards[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) ListRewards(ctx context.Context, inStockOnly bool) ([]models.Reward, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Reward, 0, len(s.rewards))
	for _, r := range s.rewards {
		if inStockOnly && r.Stock <= 0 {
			continue
		}
		out = append(out, *r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListRedemptions(ctx context.Context, externalUserID int64) ([]models.Redemption, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Redemption
	for _, r := range s.redemptions {
		if externalUserID == 0 || r.ExternalUserID == externalUserID {
			out = append(out, r)
		}
	}
	return out, nil
}

// memoryTx stages writes and applies them on commit. The store mutex is held
// for its whole lifetime.
type memoryTx struct {
	s *MemoryStore

	users       map[int64]*models.User
	missions    map[uint]*models.Mission
	rewards     map[uint]*models.Reward
	redemptions []models.Redemption
}

func (tx *memoryTx) LockUser(externalUserID int64) (*models.User, error) {
	if u, ok := tx.users[externalUserID]; ok {
		return u.Clone(), nil
	}
	u, ok := tx.s.users[externalUserID]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (tx *memoryTx) SaveUser(u *models.User) error {
	if _, ok := tx.s.users[u.ExternalUserID]; !ok {
		return ErrNotFound
	}
	if u.Points < 0 {
		return fmt.Errorf("%w: points check constraint violated", ErrUnavailable)
	}
	cp := u.Clone()
	cp.UpdatedAt = time.Now()
	tx.users[u.ExternalUserID] = cp
	return nil
}

func (tx *memoryTx) LockAllUsers() ([]models.User, error) {
	return tx.s.sortedUsers(tx.users), nil
}

func (tx *memoryTx) ResetUsers() (int64, error) {
	for id, u := range tx.s.users {
		cp := u.Clone()
		if st, ok := tx.users[id]; ok {
			cp = st.Clone()
		}
		cp.ResetProgress()
		cp.UpdatedAt = time.Now()
		tx.users[id] = cp
	}
	return int64(len(tx.s.users)), nil
}

func (tx *memoryTx) LockMission(id uint) (*models.Mission, error) {
	if m, ok := tx.missions[id]; ok {
		return m.Clone(), nil
	}
	if id == 0 || int(id) > len(tx.s.missions) {
		return nil, ErrNotFound
	}
	return tx.s.missions[id-1].Clone(), nil
}

func (tx *memoryTx) SaveMission(m *models.Mission) error {
	if m.ID == 0 || int(m.ID) > len(tx.s.missions) {
		return ErrNotFound
	}
	if m.PollID != nil {
		for _, other := range tx.s.missions {
			if other.ID != m.ID && other.PollID != nil && *other.PollID == *m.PollID {
				return ErrDuplicate
			}
		}
	}
	cp := m.Clone()
	cp.UpdatedAt = time.Now()
	tx.missions[m.ID] = cp
	return nil
}

func (tx *memoryTx) LockReward(id uint) (*models.Reward, error) {
	if r, ok := tx.rewards[id]; ok {
		return r.Clone(), nil
	}
	r, ok := tx.s.rewards[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (tx *memoryTx) SaveReward(r *models.Reward) error {
	if _, ok := tx.s.rewards[r.ID]; !ok {
		return ErrNotFound
	}
	if r.Stock < 0 {
		return fmt.Errorf("%w: stock check constraint violated", ErrUnavailable)
	}
	cp := r.Clone()
	cp.UpdatedAt = time.Now()
	tx.rewards[r.ID] = cp
	return nil
}

func (tx *memoryTx) CreateRedemption(r *models.Redemption) error {
	r.CreatedAt = time.Now()
	tx.redemptions = append(tx.redemptions, *r)
	return nil
}

func (tx *memoryTx) commit() {
	for id, u := range tx.users {
		tx.s.users[id] = u
	}
	for id, m := range tx.missions {
		tx.s.missions[id-1] = m
	}
	for id, r := range tx.rewards {
		tx.s.rewards[id] = r
	}
	tx.s.redemptions = append(tx.s.redemptions, tx.redemptions...)
}
