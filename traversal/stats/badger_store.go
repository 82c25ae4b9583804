package stats

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/wbrown/janus-traversal/traversal"
)

var (
	labelPrefix = []byte("card/label/")
	totalKey    = []byte("card/total")
)

// BadgerOptions configures a BadgerStore
type BadgerOptions struct {
	InMemory bool // Keep everything in memory; Path is ignored
	Strict   bool // Fail on unknown labels instead of falling back to the total count
}

// BadgerStore persists per-label instance counts in BadgerDB and answers
// estimates from them. Reads use their own read-only transactions, so one
// store can serve many concurrent planning calls.
type BadgerStore struct {
	db     *badger.DB
	strict bool
}

// NewBadgerStore opens (or creates) a statistics store at path
func NewBadgerStore(path string, options BadgerOptions) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if options.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // Disable BadgerDB logs

	// Statistics are tiny; keep the footprint small
	opts.MemTableSize = 16 << 20
	opts.NumCompactors = 2
	opts.ValueThreshold = 1 << 10

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &BadgerStore{db: db, strict: options.Strict}, nil
}

// Record sets the instance count of a label. The total moves by the
// difference from the previous count.
func (s *BadgerStore) Record(label string, count int64) error {
	if count < 0 {
		return fmt.Errorf("record %q: negative count %d", label, count)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := setLabelCount(txn, label, func(int64) int64 { return count })
		return err
	})
}

// RecordAll sets several label counts in one transaction
func (s *BadgerStore) RecordAll(counts map[string]int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for label, count := range counts {
			if count < 0 {
				return fmt.Errorf("record %q: negative count %d", label, count)
			}
			count := count
			if _, err := setLabelCount(txn, label, func(int64) int64 { return count }); err != nil {
				return fmt.Errorf("failed to write %q: %w", label, err)
			}
		}
		return nil
	})
}

// Increment adds delta to a label count and to the total, returning the new
// label count. Counts saturate at zero and at the largest int64.
func (s *BadgerStore) Increment(label string, delta int64) (int64, error) {
	var updated int64
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		updated, err = setLabelCount(txn, label, func(current int64) int64 {
			return addCount(current, delta)
		})
		return err
	})
	return updated, err
}

// SetTotal sets the element count used for unlabelled nodes
func (s *BadgerStore) SetTotal(count int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(totalKey, encodeCount(clampCount(count)))
	})
}

// Count returns the stored count of a label and whether it exists
func (s *BadgerStore) Count(label string) (int64, bool, error) {
	var (
		count int64
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		count, found, err = readCount(txn, labelKey(label))
		return err
	})
	return count, found, err
}

// Total returns the element count used for unlabelled nodes. A store that
// has never recorded anything reports DefaultElementCount.
func (s *BadgerStore) Total() (int64, error) {
	var total int64
	err := s.db.View(func(txn *badger.Txn) error {
		count, found, err := readCount(txn, totalKey)
		if err != nil {
			return err
		}
		total = count
		if !found {
			total = DefaultElementCount
		}
		return nil
	})
	return total, err
}

// Labels returns every label with a recorded count, in key order
func (s *BadgerStore) Labels() ([]string, error) {
	var labels []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // Keys only
		opts.Prefix = labelPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(labelPrefix); it.ValidForPrefix(labelPrefix); it.Next() {
			key := string(it.Item().Key())
			labels = append(labels, strings.TrimPrefix(key, string(labelPrefix)))
		}
		return nil
	})
	return labels, err
}

// Estimate implements Oracle
func (s *BadgerStore) Estimate(ctx context.Context, node *traversal.Node) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if node.Label == "" {
		total, err := s.Total()
		if err != nil {
			return 0, fmt.Errorf("estimate %s: %w", node, err)
		}
		return float64(total), nil
	}

	count, found, err := s.Count(node.Label)
	if err != nil {
		return 0, fmt.Errorf("estimate %s: %w", node, err)
	}
	if found {
		return float64(count), nil
	}
	if s.strict {
		return 0, fmt.Errorf("estimate %s: %w %q", node, ErrUnknownLabel, node.Label)
	}

	total, err := s.Total()
	if err != nil {
		return 0, fmt.Errorf("estimate %s: %w", node, err)
	}
	return float64(total), nil
}

// Close closes the store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func labelKey(label string) []byte {
	key := make([]byte, 0, len(labelPrefix)+len(label))
	key = append(key, labelPrefix...)
	return append(key, label...)
}

func encodeCount(count int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(count))
	return buf
}

// readCount returns the count stored under key, or 0 and false if absent
func readCount(txn *badger.Txn, key []byte) (int64, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	var count int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt count under %q: %d bytes", key, len(val))
		}
		count = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return count, err == nil, err
}

// setLabelCount replaces a label count with update(current) and moves the
// stored total by the same difference
func setLabelCount(txn *badger.Txn, label string, update func(current int64) int64) (int64, error) {
	current, _, err := readCount(txn, labelKey(label))
	if err != nil {
		return 0, err
	}
	updated := clampCount(update(current))
	if err := txn.Set(labelKey(label), encodeCount(updated)); err != nil {
		return 0, err
	}

	total, _, err := readCount(txn, totalKey)
	if err != nil {
		return 0, err
	}
	// updated and current are both non-negative, so the difference cannot overflow
	if err := txn.Set(totalKey, encodeCount(addCount(total, updated-current))); err != nil {
		return 0, err
	}
	return updated, nil
}

func clampCount(c int64) int64 {
	if c < 0 {
		return 0
	}
	return c
}

// addCount adds two counts, saturating at math.MaxInt64 and clamping at zero
func addCount(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return 0
	}
	return clampCount(a + b)
}
