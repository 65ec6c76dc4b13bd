package store

import (
	"context"
	"errors"
	"fmt"

	"mission-ledger/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore keeps the ledger in postgres or sqlite. Row locks come from
// SELECT ... FOR UPDATE on postgres; sqlite runs on a single connection, so
// its transactions are serialized outright.
type GormStore struct {
	DB *gorm.DB
}

// Open connects with the named driver ("postgres" or "sqlite") and migrates
// the ledger tables.
func Open(driver, dsn string, logLevel logger.LogLevel) (*GormStore, error) {
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite only supports one writer at a time
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
			}
		}
	}

	s := &GormStore{DB: db}
	if err := s.Migrate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the ledger tables.
func (s *GormStore) Migrate() error {
	if err := s.DB.AutoMigrate(
		&models.User{},
		&models.Mission{},
		&models.Reward{},
		&models.Redemption{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps GORM errors onto the store's error kinds.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	var fnErr error
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(&gormTx{db: tx})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return translate(err)
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}},
			DoNothing: true,
		}).
		Create(u)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *GormStore) FindUser(ctx context.Context, externalUserID int64) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).Where("external_user_id = ?", externalUserID).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.DB.WithContext(ctx).Order("external_user_id ASC").Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

func (s *GormStore) TopUsers(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	q := s.DB.WithContext(ctx).Order("points DESC").Order("external_user_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

func (s *GormStore) CreateMission(ctx context.Context, m *models.Mission) error {
	return translate(s.DB.WithContext(ctx).Create(m).Error)
}

func (s *GormStore) FindMission(ctx context.Context, id uint) (*models.Mission, error) {
	return s.findMission(ctx, "id = ?", id)
}

func (s *GormStore) FindMissionByCode(ctx context.Context, code string) (*models.Mission, error) {
	return s.findMission(ctx, "code = ?", code)
}

func (s *GormStore) FindMissionByPost(ctx context.Context, postID int64) (*models.Mission, error) {
	return s.findMission(ctx, "post_id = ?", postID)
}

func (s *GormStore) FindMissionByPoll(ctx context.Context, pollID string) (*models.Mission, error) {
	return s.findMission(ctx, "poll_id = ?", pollID)
}

func (s *GormStore) findMission(ctx context.Context, query string, arg interface{}) (*models.Mission, error) {
	var m models.Mission
	if err := s.DB.WithContext(ctx).Where(query, arg).Order("id ASC").First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (s *GormStore) ListActiveMissions(ctx context.Context) ([]models.Mission, error) {
	var missions []models.Mission
	if err := s.DB.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&missions).Error; err != nil {
		return nil, translate(err)
	}
	return missions, nil
}

func (s *GormStore) UpsertReward(ctx context.Context, r *models.Reward) (bool, error) {
	var created bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(r)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		if created {
			return nil
		}

		// Existing row: refresh the catalog fields, keep the live stock.
		var existing models.Reward
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", r.Name).
			First(&existing).Error; err != nil {
			return err
		}
		if err := tx.Model(&existing).Updates(map[string]interface{}{
			"description": r.Description,
			"cost":        r.Cost,
		}).Error; err != nil {
			return err
		}
		*r = existing
		return nil
	})
	return created, translate(err)
}

func (s *GormStore) FindReward(ctx context.Context, id uint) (*models.Reward, error) {
	var r models.Reward
	if err := s.DB.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *GormStore) ListRewards(ctx context.Context, inStockOnly bool) ([]models.Reward, error) {
	var rewards []models.Reward
	q := s.DB.WithContext(ctx).Order("id ASC")
	if inStockOnly {
		q = q.Where("stock > 0")
	}
	if err := q.Find(&rewards).Error; err != nil {
		return nil, translate(err)
	}
	return rewards, nil
}

func (s *GormStore) ListRedemptions(ctx context.Context, externalUserID int64) ([]models.Redemption, error) {
	var out []models.Redemption
	q := s.DB.WithContext(ctx).Order("created_at ASC").Order("id ASC")
	if externalUserID != 0 {
		q = q.Where("external_user_id = ?", externalUserID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

type gormTx struct {
	db *gorm.DB
}

func (tx *gormTx) locked() *gorm.DB {
	return tx.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (tx *gormTx) LockUser(externalUserID int64) (*models.User, error) {
	var u models.User
	if err := tx.locked().Where("external_user_id = ?", externalUserID).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (tx *gormTx) SaveUser(u *models.User) error {
	res := tx.db.Model(u).Select("display_name", "points", "level", "achievements", "completed_missions", "updated_at").Updates(u)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (tx *gormTx) LockAllUsers() ([]models.User, error) {
	var users []models.User
	if err := tx.locked().Order("external_user_id ASC").Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

func (tx *gormTx) ResetUsers() (int64, error) {
	res := tx.db.Session(&gorm.Session{AllowGlobalUpdate: true}).
		Model(&models.User{}).
		Updates(map[string]interface{}{
			"points":             0,
			"level":              1,
			"achievements":       models.Set[string]{},
			"completed_missions": models.Set[models.CompletionToken]{},
		})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

func (tx *gormTx) LockMission(id uint) (*models.Mission, error) {
	var m models.Mission
	if err := tx.locked().First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

func (tx *gormTx) SaveMission(m *models.Mission) error {
	res := tx.db.Model(m).Select("active", "post_id", "poll_id", "updated_at").Updates(m)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (tx *gormTx) LockReward(id uint) (*models.Reward, error) {
	var r models.Reward
	if err := tx.locked().First(&r, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (tx *gormTx) SaveReward(r *models.Reward) error {
	res := tx.db.Model(r).Select("stock", "updated_at").Updates(r)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (tx *gormTx) CreateRedemption(r *models.Redemption) error {
	return translate(tx.db.Create(r).Error)
}
