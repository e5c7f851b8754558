// Package inventory derives remaining ticket capacity per show.
//
// Remaining capacity is never stored; it is always show capacity minus the
// tickets of committed bookings. Booking decisions must use RemainingIn
// inside the show's exclusive scope. The cached readers serve display
// paths only and may lag a commit by up to one TTL.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/showbook/internal/cache"
	"github.com/iliyamo/showbook/internal/repository"
)

// DefaultTTL bounds how stale a cached snapshot may be.
const DefaultTTL = time.Second

const catalogKey = "inventory:all"

// loadTimeout bounds a shared cache fill.
const loadTimeout = 5 * time.Second

// detach keeps a shared load running after the caller that started it
// is gone.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
}

func showKey(id uint64) string { return "inventory:show:" + strconv.FormatUint(id, 10) }

// Ledger answers remaining-capacity questions.
type Ledger struct {
	locker   repository.ShowLocker
	bookings repository.BookingRepository
	cache    cache.Cache
	ttl      time.Duration
	log      *zap.Logger
	group    singleflight.Group
}

// New builds a ledger. A nil cache disables the cached paths; they then
// read straight from the store.
func New(store *repository.Store, c cache.Cache, ttl time.Duration, log *zap.Logger) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		locker:   store.Locker,
		bookings: store.Bookings,
		cache:    c,
		ttl:      ttl,
		log:      log.With(zap.String("component", "inventory")),
	}
}

// RemainingIn is the authoritative derivation inside an open show scope.
func (l *Ledger) RemainingIn(ctx context.Context, tx repository.ShowTx) (int, error) {
	booked, err := tx.BookedTickets(ctx)
	if err != nil {
		return 0, err
	}
	return tx.Show().Tickets - booked, nil
}

// Remaining opens the show's scope and derives remaining capacity. It
// observes every booking committed before it acquired the scope.
func (l *Ledger) Remaining(ctx context.Context, showID uint64) (int, error) {
	var n int
	err := l.locker.InShowTx(ctx, showID, func(tx repository.ShowTx) error {
		var err error
		n, err = l.RemainingIn(ctx, tx)
		return err
	})
	return n, err
}

// RemainingCached returns a possibly stale remaining count for display.
func (l *Ledger) RemainingCached(ctx context.Context, showID uint64) (int, error) {
	key := showKey(showID)
	if n, ok := l.cachedInt(ctx, key); ok {
		return n, nil
	}
	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		ctx, cancel := detach(ctx)
		defer cancel()
		n, err := l.Remaining(ctx, showID)
		if err != nil {
			return 0, err
		}
		l.store(ctx, key, n)
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// AvailabilityCached returns remaining capacity for every show, keyed by
// show id. The map is read without show locks and cached for one TTL.
func (l *Ledger) AvailabilityCached(ctx context.Context) (map[uint64]int, error) {
	if l.cache != nil {
		bs, err := l.cache.Get(ctx, catalogKey)
		if err == nil {
			var m map[uint64]int
			if err := json.Unmarshal(bs, &m); err == nil {
				return m, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			l.log.Warn("cache read failed", zap.String("key", catalogKey), zap.Error(err))
		}
	}
	v, err, _ := l.group.Do(catalogKey, func() (interface{}, error) {
		ctx, cancel := detach(ctx)
		defer cancel()
		m, err := l.bookings.Availability(ctx)
		if err != nil {
			return nil, err
		}
		l.store(ctx, catalogKey, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[uint64]int), nil
}

// Invalidate drops cached snapshots that include showID.
func (l *Ledger) Invalidate(ctx context.Context, showID uint64) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, showKey(showID), catalogKey); err != nil {
		l.log.Warn("cache invalidate failed", zap.Uint64("show_id", showID), zap.Error(err))
	}
}

func (l *Ledger) cachedInt(ctx context.Context, key string) (int, bool) {
	if l.cache == nil {
		return 0, false
	}
	bs, err := l.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			l.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return 0, false
	}
	n, err := strconv.Atoi(string(bs))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (l *Ledger) store(ctx context.Context, key string, v interface{}) {
	if l.cache == nil {
		return
	}
	var bs []byte
	switch t := v.(type) {
	case int:
		bs = []byte(strconv.Itoa(t))
	default:
		var err error
		if bs, err = json.Marshal(t); err != nil {
			return
		}
	}
	if err := l.cache.Put(ctx, key, bs, l.ttl); err != nil {
		l.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
