package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/starford/capes/internal/apperr"
	"github.com/starford/capes/internal/models"
)

var badgerPrefix = []byte("superhero/")

// maxTxnRetries bounds retries of read-modify-write transactions that lose a
// conflict against a concurrent writer.
const maxTxnRetries = 5

// BadgerOptions configures the Badger store.
type BadgerOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string
	// InMemory runs BadgerDB without disk persistence.
	InMemory bool
	Logger   *slog.Logger
}

// Badger is a Store backed by BadgerDB v4. Each record is one JSON document
// under the key "superhero/<id>".
type Badger struct {
	db *badger.DB
}

// OpenBadger opens the Badger database described by opts.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("records: badger dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: logger})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("records: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close closes the Badger database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func badgerKey(id string) []byte {
	return append(append([]byte{}, badgerPrefix...), id...)
}

func loadHero(txn *badger.Txn, id string) (*models.Superhero, error) {
	item, err := txn.Get(badgerKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	var h models.Superhero
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &h)
	}); err != nil {
		return nil, err
	}
	h.Normalize()
	return &h, nil
}

func storeHero(txn *badger.Txn, h *models.Superhero) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	return txn.Set(badgerKey(h.ID), data)
}

// mutate runs fn in a read-write transaction, retrying on conflicts.
func (b *Badger) mutate(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnRetries {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Create stores a new record with a fresh UUID.
func (b *Badger) Create(ctx context.Context, h models.Superhero) (*models.Superhero, error) {
	now := time.Now().UTC()
	h.ID = uuid.NewString()
	h.CreatedAt = now
	h.UpdatedAt = now
	h.Normalize()
	if err := b.mutate(ctx, func(txn *badger.Txn) error {
		return storeHero(txn, &h)
	}); err != nil {
		return nil, fmt.Errorf("records: insert: %w", err)
	}
	return &h, nil
}

// Get returns the record with the given id.
func (b *Badger) Get(ctx context.Context, id string) (*models.Superhero, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var h *models.Superhero
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		h, err = loadHero(txn, id)
		return err
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("records: get: %w", err)
	}
	return h, nil
}

// Update replaces the descriptive fields and appends images in one transaction.
func (b *Badger) Update(ctx context.Context, id string, f models.Fields, images []string) (*models.Superhero, error) {
	var out *models.Superhero
	err := b.mutate(ctx, func(txn *badger.Txn) error {
		h, err := loadHero(txn, id)
		if err != nil {
			return err
		}
		h.Apply(f)
		h.Images = append(h.Images, images...)
		h.UpdatedAt = time.Now().UTC()
		h.Normalize()
		out = h
		return storeHero(txn, h)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("records: update: %w", err)
	}
	return out, nil
}

// RemoveImage filters url out of the record's images in one transaction.
func (b *Badger) RemoveImage(ctx context.Context, id, url string) ([]string, error) {
	var out []string
	err := b.mutate(ctx, func(txn *badger.Txn) error {
		h, err := loadHero(txn, id)
		if err != nil {
			return err
		}
		h.Images = models.WithoutImage(h.Images, url)
		h.UpdatedAt = time.Now().UTC()
		out = h.Images
		return storeHero(txn, h)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("records: update images: %w", err)
	}
	return out, nil
}

// Delete removes a record by id.
func (b *Badger) Delete(ctx context.Context, id string) error {
	err := b.mutate(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(badgerKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return apperr.ErrNotFound
			}
			return err
		}
		return txn.Delete(badgerKey(id))
	})
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return fmt.Errorf("records: delete: %w", err)
	}
	return nil
}

// List decodes every record, sorts newest first and returns one window.
// Badger keys are ordered by id, not creation time, so the sort happens here.
func (b *Badger) List(ctx context.Context, skip, limit int) ([]models.Superhero, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var all []models.Superhero
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			var h models.Superhero
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &h)
			}); err != nil {
				return err
			}
			h.Normalize()
			all = append(all, h)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("records: list: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	out := []models.Superhero{}
	if skip >= len(all) {
		return out, nil
	}
	end := min(skip+limit, len(all))
	return append(out, all[skip:end]...), nil
}

// Count returns the number of stored records without reading values.
func (b *Badger) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(badgerPrefix); it.ValidForPrefix(badgerPrefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("records: count: %w", err)
	}
	return n, nil
}

// badgerLogger routes badger output to slog, dropping debug and info chatter.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error("badger", slog.String("msg", fmt.Sprintf(f, v...)))
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn("badger", slog.String("msg", fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
