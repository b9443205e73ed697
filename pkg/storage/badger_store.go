package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"webcrawl/pkg/log"
	"webcrawl/pkg/utils"
)

const (
	taskKeyPrefix = "task:"     // Prefix for task URL keys in DB
	resultsDBDir  = "result_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the ResultStore interface using BadgerDB.
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	keyCount atomic.Int64 // Cached key count for O(1) Count
}

// NewBadgerStore initializes and returns a new BadgerStore. With resume
// false, any existing state directory for the crawl key is removed first.
func NewBadgerStore(stateDir, crawlKey string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger}

	dbDirName := utils.SanitizeFilename(crawlKey) + "_" + resultsDBDir
	dbPath := filepath.Join(stateDir, dbDirName)

	if !resume {
		logger.Warnf("Resume flag is false. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing crawl result database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	badgerLogger := log.NewBadgerAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1) // Only the latest terminal result matters

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dbPath, err)
	}

	if resume {
		count, countErr := store.countKeys()
		if countErr != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", countErr)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded existing result count on resume: %d", count)
		}
	}

	logger.Info("Crawl result database initialized successfully.")
	return store, nil
}

// countKeys performs a one-time full key scan (used only during initialization on resume).
func (s *BadgerStore) countKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := 0; i < maxConflictRetries; i++ {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// Record implements the ResultStore interface.
func (s *BadgerStore) Record(url string, result *TaskResult) error {
	if s.db == nil {
		return errors.New("result store not initialized")
	}
	key := []byte(taskKeyPrefix + url)

	value, errJSON := json.Marshal(result)
	if errJSON != nil {
		return fmt.Errorf("%w: failed to marshal TaskResult for key '%s': %w", utils.ErrDatabase, string(key), errJSON)
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		return txn.SetEntry(badger.NewEntry(key, value))
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in Record: %v", err)
		return fmt.Errorf("%w: failed recording result for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Recorded result for key '%s': %s", string(key), result.State)
	return nil
}

// Get implements the ResultStore interface.
func (s *BadgerStore) Get(url string) (*TaskResult, bool, error) {
	key := []byte(taskKeyPrefix + url)
	var result *TaskResult

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil // not found is not an error here
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting task key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}
		return item.Value(func(val []byte) error {
			var decoded TaskResult
			if errDecode := json.Unmarshal(val, &decoded); errDecode != nil {
				s.log.Warnf("Failed to unmarshal TaskResult for key '%s': %v. Treating as absent.", string(key), errDecode)
				return nil
			}
			result = &decoded
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in Get for key '%s': %v", string(key), errView)
		return nil, false, errView
	}
	return result, result != nil, nil
}

// Count implements the ResultStore interface.
func (s *BadgerStore) Count() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC implements the ResultStore interface. Should be run in a goroutine.
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Badger recommends re-running GC until it reports nothing to collect
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		case <-ctx.Done():
			s.log.Infof("Stopping result store GC: %v", ctx.Err())
			return
		}
	}
}

// Close implements the ResultStore interface.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	s.log.Info("Closing crawl result database...")
	return s.db.Close()
}
