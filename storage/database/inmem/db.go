package inmemdb

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
)

type (
	progressKey struct {
		userID, chapterID string
	}

	userMedalKey struct {
		userID, medalID string
	}

	ledgerKey struct {
		userID, chapterID string
		kind              gamification.Kind
	}

	tables struct {
		users      map[string]user.User
		trails     map[string]course.Trail
		chapters   map[string]course.Chapter
		questions  map[string]course.Question
		progress   map[progressKey]gamification.ProgressRecord
		ledger     []gamification.PointTransaction
		ledgerKeys map[ledgerKey]struct{}
		medals     map[string]gamification.Medal
		userMedals map[userMedalKey]time.Time

		// insertion order of questions
		questionSeq map[string]int
		seq         int
	}

	// DB is an in-memory store. One lock guards every table so that a transaction sees
	// and writes a consistent state, like a serializable database would.
	DB struct {
		mu sync.RWMutex
		tables
	}

	// txExec marks repository calls made from inside DB.InTx, which already holds the lock.
	txExec struct {
		core.DBExecutor
	}
)

var _ core.Transactor = (*DB)(nil)

func Open() *DB {
	return &DB{tables: newTables()}
}

func newTables() tables {
	return tables{
		users:      make(map[string]user.User),
		trails:     make(map[string]course.Trail),
		chapters:   make(map[string]course.Chapter),
		questions:  make(map[string]course.Question),
		progress:   make(map[progressKey]gamification.ProgressRecord),
		ledgerKeys: make(map[ledgerKey]struct{}),
		medals:     make(map[string]gamification.Medal),
		userMedals: make(map[userMedalKey]time.Time),

		questionSeq: make(map[string]int),
	}
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.trails {
		c.trails[k] = v
	}
	for k, v := range t.chapters {
		c.chapters[k] = v
	}
	for k, v := range t.questions {
		c.questions[k] = v
	}
	for k, v := range t.progress {
		c.progress[k] = v
	}
	c.ledger = make([]gamification.PointTransaction, len(t.ledger))
	copy(c.ledger, t.ledger)
	for k, v := range t.ledgerKeys {
		c.ledgerKeys[k] = v
	}
	for k, v := range t.medals {
		c.medals[k] = v
	}
	for k, v := range t.userMedals {
		c.userMedals[k] = v
	}
	for k, v := range t.questionSeq {
		c.questionSeq[k] = v
	}
	c.seq = t.seq
	return c
}

// InTx runs fn holding the write lock. Every write fn made is undone when it returns an error.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	if err = ctx.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snapshot := db.tables.clone()
	defer func() {
		if r := recover(); r != nil {
			db.tables = snapshot
			panic(r)
		}
		if err != nil {
			db.tables = snapshot
		}
	}()
	return fn(txExec{})
}

// Reset drops every row.
func (db *DB) Reset() {
	db.mu.Lock()
	db.tables = newTables()
	db.mu.Unlock()
}

func inTx(exec []core.DBExecutor) bool {
	if len(exec) == 0 || exec[0] == nil {
		return false
	}
	_, ok := exec[0].(txExec)
	return ok
}

func (db *DB) rlock(exec []core.DBExecutor) func() {
	if inTx(exec) {
		return func() {}
	}
	db.mu.RLock()
	return db.mu.RUnlock
}

func (db *DB) lock(exec []core.DBExecutor) func() {
	if inTx(exec) {
		return func() {}
	}
	db.mu.Lock()
	return db.mu.Unlock
}
