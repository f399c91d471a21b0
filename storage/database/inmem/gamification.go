package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
)

type ledgerRepository struct {
	db *DB
}

var _ gamification.LedgerRepository = (*ledgerRepository)(nil)

func NewLedgerRepository(db *DB) gamification.LedgerRepository {
	return &ledgerRepository{db: db}
}

// LockUser relies on the transaction's exclusive lock: it only reads the cached XP.
func (repo *ledgerRepository) LockUser(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error) {
	defer repo.db.rlock(exec)()

	usr, ok := repo.db.users[userID]
	if !ok {
		return 0, user.ErrNotFound
	}
	return usr.XP, nil
}

func (repo *ledgerRepository) CachedXP(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error) {
	return repo.LockUser(ctx, userID, exec...)
}

func (repo *ledgerRepository) Credit(ctx context.Context, entry gamification.PointTransaction, exec ...core.DBExecutor) (int, error) {
	defer repo.db.lock(exec)()

	usr, ok := repo.db.users[entry.UserID]
	if !ok {
		return 0, user.ErrNotFound
	}
	if entry.Kind != gamification.KindAdjustment {
		key := ledgerKey{userID: entry.UserID, chapterID: entry.ChapterID, kind: entry.Kind}
		if _, exists := repo.db.ledgerKeys[key]; exists {
			return 0, gamification.ErrAlreadyAwarded
		}
		repo.db.ledgerKeys[key] = struct{}{}
	}

	entry.ID = uuid.New().String()
	repo.db.ledger = append(repo.db.ledger, entry)
	usr.XP += entry.Quantity
	repo.db.users[usr.ID] = usr
	return usr.XP, nil
}

func (repo *ledgerRepository) HasEntry(ctx context.Context, userID, chapterID string, kind gamification.Kind, exec ...core.DBExecutor) (bool, error) {
	defer repo.db.rlock(exec)()

	_, exists := repo.db.ledgerKeys[ledgerKey{userID: userID, chapterID: chapterID, kind: kind}]
	return exists, nil
}

func (repo *ledgerRepository) ListEntries(ctx context.Context, userID string, exec ...core.DBExecutor) ([]gamification.PointTransaction, error) {
	defer repo.db.rlock(exec)()

	entries := make([]gamification.PointTransaction, 0)
	for i := len(repo.db.ledger) - 1; i >= 0; i-- { // newest first
		if e := repo.db.ledger[i]; e.UserID == userID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (repo *ledgerRepository) Balances(ctx context.Context, userID string, exec ...core.DBExecutor) ([]gamification.Balance, error) {
	defer repo.db.rlock(exec)()

	byUser := make(map[string]*gamification.Balance, len(repo.db.users))
	for _, usr := range repo.db.users {
		if userID == "" || usr.ID == userID {
			byUser[usr.ID] = &gamification.Balance{UserID: usr.ID, Username: usr.Username, CachedXP: usr.XP}
		}
	}
	for _, e := range repo.db.ledger {
		if b, ok := byUser[e.UserID]; ok {
			b.LedgerXP += e.Quantity
			b.EntryCount++
		}
	}

	balances := make([]gamification.Balance, 0, len(byUser))
	for _, b := range byUser {
		balances = append(balances, *b)
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].Username < balances[j].Username })
	return balances, nil
}

func (repo *ledgerRepository) Leaderboard(ctx context.Context, limit int, exec ...core.DBExecutor) ([]gamification.LeaderboardEntry, error) {
	defer repo.db.rlock(exec)()

	entries := make([]gamification.LeaderboardEntry, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if !usr.IsActive {
			continue
		}
		entries = append(entries, gamification.LeaderboardEntry{
			UserID:   usr.ID,
			Name:     usr.Name,
			Username: usr.Username,
			XP:       usr.XP,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].XP != entries[j].XP {
			return entries[i].XP > entries[j].XP
		}
		return entries[i].Username < entries[j].Username
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

type progressRepository struct {
	db *DB
}

var _ gamification.ProgressRepository = (*progressRepository)(nil)

func NewProgressRepository(db *DB) gamification.ProgressRepository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) GetRecord(ctx context.Context, userID, chapterID string, exec ...core.DBExecutor) (gamification.ProgressRecord, error) {
	defer repo.db.rlock(exec)()

	if rec, ok := repo.db.progress[progressKey{userID, chapterID}]; ok {
		return rec, nil
	}
	return gamification.ProgressRecord{}, gamification.ErrNoProgress
}

func (repo *progressRepository) EnsureRecord(ctx context.Context, userID, chapterID string, at time.Time, exec ...core.DBExecutor) (gamification.ProgressRecord, error) {
	defer repo.db.lock(exec)()

	key := progressKey{userID, chapterID}
	if rec, ok := repo.db.progress[key]; ok {
		return rec, nil
	}
	rec := gamification.ProgressRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		ChapterID: chapterID,
		StartedAt: at,
	}
	repo.db.progress[key] = rec
	return rec, nil
}

func (repo *progressRepository) MarkCompleted(ctx context.Context, userID, chapterID string, at time.Time, exec ...core.DBExecutor) (gamification.ProgressRecord, error) {
	defer repo.db.lock(exec)()

	key := progressKey{userID, chapterID}
	rec, ok := repo.db.progress[key]
	if !ok {
		return gamification.ProgressRecord{}, gamification.ErrNoProgress
	}
	if rec.CompletedAt == nil {
		completedAt := at
		rec.CompletedAt = &completedAt
		repo.db.progress[key] = rec
	}
	return rec, nil
}

func (repo *progressRepository) ListRecords(ctx context.Context, userID string, exec ...core.DBExecutor) ([]gamification.ProgressRecord, error) {
	defer repo.db.rlock(exec)()

	records := make([]gamification.ProgressRecord, 0)
	for key, rec := range repo.db.progress {
		if key.userID == userID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StartedAt.Before(records[j].StartedAt) })
	return records, nil
}

type medalRepository struct {
	db *DB
}

var _ gamification.MedalRepository = (*medalRepository)(nil)

func NewMedalRepository(db *DB) gamification.MedalRepository {
	return &medalRepository{db: db}
}

func (repo *medalRepository) CreateMedal(ctx context.Context, medal gamification.Medal, exec ...core.DBExecutor) (gamification.Medal, error) {
	defer repo.db.lock(exec)()

	medal.ID = uuid.New().String()
	repo.db.medals[medal.ID] = medal
	return medal, nil
}

func (repo *medalRepository) sorted(keep func(gamification.Medal) bool) []gamification.Medal {
	medals := make([]gamification.Medal, 0, len(repo.db.medals))
	for _, m := range repo.db.medals {
		if keep(m) {
			medals = append(medals, m)
		}
	}
	sort.Slice(medals, func(i, j int) bool {
		if medals[i].MinPoints != medals[j].MinPoints {
			return medals[i].MinPoints < medals[j].MinPoints
		}
		return medals[i].Name < medals[j].Name
	})
	return medals
}

func (repo *medalRepository) ListMedals(ctx context.Context, exec ...core.DBExecutor) ([]gamification.Medal, error) {
	defer repo.db.rlock(exec)()
	return repo.sorted(func(gamification.Medal) bool { return true }), nil
}

func (repo *medalRepository) PendingMedals(ctx context.Context, userID string, xp int, exec ...core.DBExecutor) ([]gamification.Medal, error) {
	defer repo.db.rlock(exec)()

	return repo.sorted(func(m gamification.Medal) bool {
		_, held := repo.db.userMedals[userMedalKey{userID, m.ID}]
		return m.MinPoints <= xp && !held
	}), nil
}

func (repo *medalRepository) GrantMedal(ctx context.Context, userID, medalID string, at time.Time, exec ...core.DBExecutor) (bool, error) {
	defer repo.db.lock(exec)()

	if _, ok := repo.db.medals[medalID]; !ok {
		return false, gamification.ErrMedalNotFound
	}
	key := userMedalKey{userID, medalID}
	if _, held := repo.db.userMedals[key]; held {
		return false, nil
	}
	repo.db.userMedals[key] = at
	return true, nil
}

func (repo *medalRepository) ListUserMedals(ctx context.Context, userID string, exec ...core.DBExecutor) ([]gamification.EarnedMedal, error) {
	defer repo.db.rlock(exec)()

	earned := make([]gamification.EarnedMedal, 0)
	for key, at := range repo.db.userMedals {
		if key.userID == userID {
			earned = append(earned, gamification.EarnedMedal{Medal: repo.db.medals[key.medalID], GrantedAt: at})
		}
	}
	sort.Slice(earned, func(i, j int) bool {
		if !earned[i].GrantedAt.Equal(earned[j].GrantedAt) {
			return earned[i].GrantedAt.After(earned[j].GrantedAt)
		}
		return earned[i].MinPoints > earned[j].MinPoints
	})
	return earned, nil
}
