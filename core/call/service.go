package call

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/marquesl99/chamada-visual/core"
	"github.com/marquesl99/chamada-visual/core/student"
)

// Service enforces the call-list policy on top of a Store: at most MaxVisible
// records, none older than the inactivity window. The store-side sweep is the
// authoritative enforcement point; panels only hide stale entries cosmetically.
type Service struct {
	store  Store
	logger core.Logger

	maxVisible int
	window     time.Duration
	sweepEvery time.Duration

	now func() time.Time // injectable for tests
}

func NewService(store Store, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		store:      store,
		logger:     logger,
		maxVisible: conf.Call.MaxVisible,
		window:     conf.Call.InactivityWindow,
		sweepEvery: conf.Call.SweepInterval,
		now:        time.Now,
	}
}

// Call appends a new record for the student and trims the oldest records
// beyond the visible cap.
func (svc *Service) Call(ctx context.Context, st student.Student) (Call, error) {
	c := Call{
		ID:          uuid.NewString(),
		StudentID:   st.ID,
		StudentName: st.FullName,
		Class:       st.Class,
		Segment:     st.Segment(),
		Photo:       st.Photo,
		CalledAt:    svc.now().UTC(),
	}
	created, err := svc.store.CreateCall(ctx, c)
	if err != nil {
		return Call{}, errors.Wrap(err, "creating call")
	}
	if err = svc.trim(ctx); err != nil {
		// the record was created; trimming failures only delay the cap.
		svc.logger.Warn(fmt.Sprintf("trimming call list: %v", err), err)
	}
	return created, nil
}

// Dismiss removes a call before it expires (staff action on the terminal).
func (svc *Service) Dismiss(ctx context.Context, id string) error {
	if err := svc.store.DeleteCall(ctx, id); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrNotFound
		}
		return errors.Wrap(err, "deleting call")
	}
	return nil
}

// Active returns the currently visible list: unexpired records, newest first,
// capped at the visible maximum.
func (svc *Service) Active(ctx context.Context) ([]Call, error) {
	calls, err := svc.store.QueryCalls(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying calls")
	}
	return svc.visible(calls, All), nil
}

// Subscribe attaches a panel to the store's change feed. The returned channel
// receives the filtered visible list on attach and after every change; it is
// closed when ctx is done.
func (svc *Service) Subscribe(ctx context.Context, filter Filter) (<-chan []Call, error) {
	if filter == nil {
		filter = All
	}
	src, err := svc.store.Subscribe(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to call store")
	}

	out := make(chan []Call, 1)
	go func() {
		defer close(out)
		for calls := range src {
			list := svc.visible(calls, filter)
			// keep only the latest list when the panel is slow to read.
			select {
			case out <- list:
			default:
				select {
				case <-out:
				default:
				}
				out <- list
			}
		}
	}()
	return out, nil
}

// StartSweep runs the expiry sweep until ctx is cancelled.
func (svc *Service) StartSweep(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(svc.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.sweep(ctx); err != nil {
					svc.logger.Warn(fmt.Sprintf("sweeping expired calls: %v", err), err)
				}
			}
		}
	}()
}

// sweep deletes records older than the inactivity window.
func (svc *Service) sweep(ctx context.Context) error {
	calls, err := svc.store.QueryCalls(ctx)
	if err != nil {
		return errors.Wrap(err, "querying calls")
	}
	cutoff := svc.now().UTC().Add(-svc.window)
	for _, c := range calls {
		if c.CalledAt.Before(cutoff) {
			if err = svc.store.DeleteCall(ctx, c.ID); err != nil && errors.Cause(err) != ErrNotFound {
				return errors.Wrapf(err, "deleting expired call %s", c.ID)
			}
		}
	}
	return nil
}

// trim drops the oldest records beyond the visible cap.
func (svc *Service) trim(ctx context.Context) error {
	calls, err := svc.store.QueryCalls(ctx)
	if err != nil {
		return errors.Wrap(err, "querying calls")
	}
	sortNewestFirst(calls)
	for _, c := range calls[min(len(calls), svc.maxVisible):] {
		if err = svc.store.DeleteCall(ctx, c.ID); err != nil && errors.Cause(err) != ErrNotFound {
			return errors.Wrapf(err, "deleting excess call %s", c.ID)
		}
	}
	return nil
}

// visible filters out expired records, applies the panel filter and caps the
// list, newest first.
func (svc *Service) visible(calls []Call, filter Filter) []Call {
	cutoff := svc.now().UTC().Add(-svc.window)
	list := make([]Call, 0, len(calls))
	for _, c := range calls {
		if c.CalledAt.Before(cutoff) {
			continue
		}
		if !filter(c) {
			continue
		}
		list = append(list, c)
	}
	sortNewestFirst(list)
	if len(list) > svc.maxVisible {
		list = list[:svc.maxVisible]
	}
	return list
}

func sortNewestFirst(calls []Call) {
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].CalledAt.After(calls[j].CalledAt) })
}
