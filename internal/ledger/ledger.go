// Package ledger models T+1 cash-account settlement: each bucket holds
// settled cash plus a queue of unsettled lots that mature at a fixed clock
// hour the next business day. Selling never frees cash for an immediate
// re-buy; that constraint is what gates cash-mode sizing upstream.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"limitless/internal/pkg/timeutil"
)

var (
	ErrInsufficientSettledCash = errors.New("insufficient settled cash")
	ErrUnknownBucket           = errors.New("unknown bucket")
)

// Lot is sale proceeds waiting out the settlement clock.
type Lot struct {
	Amount    float64   `json:"amount"`
	SettlesAt time.Time `json:"settles_at"`
}

// Bucket is one independently-tracked slice of trading capital.
type Bucket struct {
	Name        string  `json:"name"`
	SettledCash float64 `json:"settled_cash"`
	Unsettled   []Lot   `json:"unsettled"`
}

// Total is settled plus in-flight value.
func (b Bucket) Total() float64 {
	total := b.SettledCash
	for _, lot := range b.Unsettled {
		total += lot.Amount
	}
	return total
}

// Ledger owns the bucket file. Every mutation rewrites the file wholesale
// via an atomic replace. The engine is the single writer; the mutex exists
// for read access from the HTTP surface.
type Ledger struct {
	mu         sync.Mutex
	path       string
	settleHour int
	buckets    []Bucket
}

// Open loads the ledger at path, seeding two buckets from an even split of
// initTotal when the file does not exist yet.
func Open(path string, initTotal float64, settleHour int) (*Ledger, error) {
	l := &Ledger{path: path, settleHour: settleHour}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &l.buckets); err != nil {
			return nil, fmt.Errorf("parsing ledger file failed (%s): %w", path, err)
		}
	case os.IsNotExist(err):
		half := initTotal / 2
		l.buckets = []Bucket{
			{Name: "A", SettledCash: half, Unsettled: []Lot{}},
			{Name: "B", SettledCash: half, Unsettled: []Lot{}},
		}
		if err := l.persistLocked(); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	return l, nil
}

func (l *Ledger) persistLocked() error {
	data, err := json.MarshalIndent(l.buckets, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(l.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return writeFileAtomic(l.path, data, 0o600)
}

// Buckets returns a deep copy for inspection.
func (l *Ledger) Buckets() []Bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Bucket, len(l.buckets))
	for i, b := range l.buckets {
		out[i] = b
		out[i].Unsettled = append([]Lot(nil), b.Unsettled...)
	}
	return out
}

// ReleaseSettled moves any lot whose maturity has passed into settled cash.
func (l *Ledger) ReleaseSettled(now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := false
	for i := range l.buckets {
		b := &l.buckets[i]
		remaining := b.Unsettled[:0]
		for _, lot := range b.Unsettled {
			if !now.Before(lot.SettlesAt) {
				b.SettledCash += lot.Amount
				changed = true
			} else {
				remaining = append(remaining, lot)
			}
		}
		b.Unsettled = remaining
	}
	if !changed {
		return nil
	}
	return l.persistLocked()
}

// PickBucket returns the name of the first bucket, in stable order, whose
// settled cash covers need.
func (l *Ledger) PickBucket(need float64) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.buckets {
		if b.SettledCash >= need {
			return b.Name, true
		}
	}
	return "", false
}

// SettledCash reports the settled balance of one bucket.
func (l *Ledger) SettledCash(bucket string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.find(bucket)
	if b == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	return b.SettledCash, nil
}

// ConsumeOnBuy debits settled cash for an entry.
func (l *Ledger) ConsumeOnBuy(bucket string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.find(bucket)
	if b == nil {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	if b.SettledCash < amount {
		return fmt.Errorf("%w: bucket %s has %.2f, need %.2f", ErrInsufficientSettledCash, bucket, b.SettledCash, amount)
	}
	b.SettledCash -= amount
	return l.persistLocked()
}

// AddUnsettledOnSell queues sale proceeds to mature at the settle hour of
// the next business day. The cash is not usable until then.
func (l *Ledger) AddUnsettledOnSell(bucket string, amount float64, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.find(bucket)
	if b == nil {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	b.Unsettled = append(b.Unsettled, Lot{
		Amount:    amount,
		SettlesAt: timeutil.NextBusinessDayAt(now, l.settleHour),
	})
	return l.persistLocked()
}

// RefundOnCancel returns a consumed debit straight to settled cash. No sale
// occurred, so nothing waits for settlement.
func (l *Ledger) RefundOnCancel(bucket string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.find(bucket)
	if b == nil {
		return fmt.Errorf("%w: %s", ErrUnknownBucket, bucket)
	}
	b.SettledCash += amount
	return l.persistLocked()
}

func (l *Ledger) find(name string) *Bucket {
	for i := range l.buckets {
		if l.buckets[i].Name == name {
			return &l.buckets[i]
		}
	}
	return nil
}
