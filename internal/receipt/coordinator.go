package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zombor/hisab/internal/capture"
	"github.com/zombor/hisab/internal/scanning"
)

// ErrNotInitialized is returned when an operation needs a user before Initialize has created one
var ErrNotInitialized = errors.New("user not initialized")

const (
	msgInitFailed   = "Failed to initialize app"
	msgLoadFailed   = "Failed to load receipts"
	msgLogoutFailed = "Failed to log out"
)

// AcquireFunc obtains an image from the user; ok is false when they cancelled
type AcquireFunc func(ctx context.Context) (ref capture.ImageRef, ok bool, err error)

// Coordinator owns the application state and runs the ingestion pipeline.
//
// It is the only writer of State. Operations that change the receipt list run
// one at a time, each building on the most recently published list.
// Subscribers are called in publish order and must not call back into the
// Coordinator's mutating operations.
type Coordinator struct {
	store     Store
	encoder   scanning.Encoder
	extractor scanning.Extractor
	history   scanning.HistorySource
	identity  IdentityProvider
	metrics   *Metrics

	pipeline sync.Mutex

	mu           sync.RWMutex
	state        State
	listeners    map[int]func(State)
	nextListener int

	notifyMu sync.Mutex
}

// NewCoordinator creates a new Coordinator with a generated identity and no metrics
func NewCoordinator(store Store, encoder scanning.Encoder, extractor scanning.Extractor, history scanning.HistorySource) *Coordinator {
	return NewCoordinatorWithDeps(store, encoder, extractor, history, NewGeneratedIdentity(), nil)
}

// NewCoordinatorWithDeps creates a new Coordinator with custom dependencies
func NewCoordinatorWithDeps(store Store, encoder scanning.Encoder, extractor scanning.Extractor, history scanning.HistorySource, identity IdentityProvider, metrics *Metrics) *Coordinator {
	if history == nil {
		history = scanning.NoHistory{}
	}
	return &Coordinator{
		store:     store,
		encoder:   encoder,
		extractor: extractor,
		history:   history,
		identity:  identity,
		metrics:   metrics,
		state:     State{Receipts: []*Receipt{}},
		listeners: make(map[int]func(State)),
	}
}

// State returns a snapshot of the current state
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

// Subscribe registers fn to be called with every published state.
// The returned function removes the subscription.
func (c *Coordinator) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// update applies fn to the state and publishes the result
func (c *Coordinator) update(fn func(*State)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	fn(&c.state)
	snapshot := c.state.clone()
	listeners := make([]func(State), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(snapshot.clone())
	}
}

func (c *Coordinator) currentUser() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.User == nil {
		return nil
	}
	u := *c.state.User
	return &u
}

func (c *Coordinator) currentReceipts() []*Receipt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	receipts := make([]*Receipt, len(c.state.Receipts))
	copy(receipts, c.state.Receipts)
	return receipts
}

// Initialize loads or creates the user and loads the stored receipts.
// Call it once at process start.
func (c *Coordinator) Initialize(ctx context.Context) error {
	start := time.Now()
	defer c.metrics.observeOperation("initialize", start)

	c.pipeline.Lock()
	defer c.pipeline.Unlock()

	c.update(func(s *State) { s.IsLoading = true })

	user, err := c.store.LoadUser(ctx)
	if err != nil {
		return c.failInitialize(fmt.Errorf("loading user: %w", err))
	}
	if user == nil {
		user, err = c.identity.NewUser(ctx)
		if err != nil {
			return c.failInitialize(fmt.Errorf("creating user: %w", err))
		}
		if err := c.store.SaveUser(ctx, user); err != nil {
			return c.failInitialize(fmt.Errorf("saving user: %w", err))
		}
		slog.Info("Created new user", "user_id", user.ID)
	}

	receipts, err := c.store.LoadReceipts(ctx)
	if err != nil {
		slog.Warn("Failed to load stored receipts, starting empty", "error", err)
		receipts = []*Receipt{}
	}

	c.update(func(s *State) {
		s.User = user
		s.Receipts = receipts
		s.IsLoading = false
	})
	c.metrics.setStored(len(receipts))

	slog.Info("App initialized", "user_id", user.ID, "receipts", len(receipts))
	return nil
}

func (c *Coordinator) failInitialize(err error) error {
	slog.Error("Failed to initialize app", "error", err)
	c.update(func(s *State) {
		s.Error = msgInitFailed
		s.IsLoading = false
	})
	return fmt.Errorf("initializing app: %w", err)
}

// ProcessReceiptImage encodes the image, submits it for extraction and
// prepends the result to the persisted receipt list.
// On failure the list is left untouched and the error is recorded in State.
func (c *Coordinator) ProcessReceiptImage(ctx context.Context, ref capture.ImageRef) (*Receipt, error) {
	start := time.Now()

	c.pipeline.Lock()
	defer c.pipeline.Unlock()

	user := c.currentUser()
	if user == nil {
		return nil, ErrNotInitialized
	}

	c.update(func(s *State) {
		s.IsLoading = true
		s.Error = ""
	})

	slog.Info("Processing receipt", "user_id", user.ID, "ref", ref)

	payload, err := c.encoder.Encode(ctx, string(ref))
	if err != nil {
		return nil, c.failProcess("encode_error", start, err)
	}

	result, err := c.extractor.Extract(ctx, payload, user.ID)
	if err != nil {
		return nil, c.failProcess(extractOutcome(err), start, err)
	}

	current := c.currentReceipts()
	updated := make([]*Receipt, 0, len(current)+1)
	updated = append(updated, result)
	updated = append(updated, current...)

	if err := c.store.SaveReceipts(ctx, updated); err != nil {
		return nil, c.failProcess("storage_error", start, fmt.Errorf("saving receipts: %w", err))
	}

	c.update(func(s *State) {
		s.Receipts = updated
		s.IsLoading = false
	})
	c.metrics.observeProcess("success", start)
	c.metrics.setStored(len(updated))

	slog.Info("Receipt processed",
		"user_id", user.ID,
		"status", result.Status,
		"items", len(result.Items),
		"receipts", len(updated),
	)
	return copyReceipt(result), nil
}

func (c *Coordinator) failProcess(outcome string, start time.Time, err error) error {
	slog.Error("Failed to process receipt", "outcome", outcome, "error", err)
	c.update(func(s *State) {
		s.Error = err.Error()
		s.IsLoading = false
	})
	c.metrics.observeProcess(outcome, start)
	return err
}

func extractOutcome(err error) string {
	var apiErr *scanning.APIError
	switch {
	case errors.As(err, &apiErr):
		return "api_error"
	case errors.Is(err, scanning.ErrInvalidResponseFormat):
		return "invalid_response"
	default:
		return "extract_error"
	}
}

// AcquireAndProcess runs a picker and processes the image it returns.
// A cancelled picker returns ok=false and leaves the state untouched, as does
// a picker error such as capture.ErrPermissionDenied.
func (c *Coordinator) AcquireAndProcess(ctx context.Context, acquire AcquireFunc) (*Receipt, bool, error) {
	ref, ok, err := acquire(ctx)
	if err != nil {
		slog.Warn("Failed to acquire image", "error", err)
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	result, err := c.ProcessReceiptImage(ctx, ref)
	return result, true, err
}

// LoadUserReceipts refreshes the receipt list. Server history, when it has
// receipts, replaces the local list; otherwise the locally stored list is
// published. The two are never merged.
func (c *Coordinator) LoadUserReceipts(ctx context.Context) error {
	start := time.Now()
	defer c.metrics.observeOperation("load", start)

	c.pipeline.Lock()
	defer c.pipeline.Unlock()

	user := c.currentUser()
	if user == nil {
		return nil
	}

	c.update(func(s *State) {
		s.IsLoading = true
		s.Error = ""
	})

	history := c.history.History(ctx, user.ID)
	c.metrics.observeHistory(history.Kind.String())

	if history.Kind == scanning.HistoryFound {
		if err := c.store.SaveReceipts(ctx, history.Receipts); err != nil {
			return c.failLoad(fmt.Errorf("saving remote receipts: %w", err))
		}
		c.update(func(s *State) {
			s.Receipts = history.Receipts
			s.IsLoading = false
		})
		c.metrics.setStored(len(history.Receipts))
		slog.Info("Loaded receipts from server", "user_id", user.ID, "receipts", len(history.Receipts))
		return nil
	}

	if history.Err != nil {
		slog.Warn("Receipt history unavailable, using local receipts", "user_id", user.ID, "error", history.Err)
	}

	receipts, err := c.store.LoadReceipts(ctx)
	if err != nil {
		return c.failLoad(fmt.Errorf("loading local receipts: %w", err))
	}

	c.update(func(s *State) {
		s.Receipts = receipts
		s.IsLoading = false
	})
	c.metrics.setStored(len(receipts))
	slog.Info("Loaded local receipts", "user_id", user.ID, "remote", history.Kind.String(), "receipts", len(receipts))
	return nil
}

func (c *Coordinator) failLoad(err error) error {
	slog.Error("Failed to load receipts", "error", err)
	c.update(func(s *State) {
		s.Error = msgLoadFailed
		s.IsLoading = false
	})
	return err
}

// Logout removes the stored user and receipts and resets the state
func (c *Coordinator) Logout(ctx context.Context) error {
	c.pipeline.Lock()
	defer c.pipeline.Unlock()

	if err := c.store.ClearAll(ctx); err != nil {
		slog.Error("Failed to log out", "error", err)
		c.update(func(s *State) { s.Error = msgLogoutFailed })
		return fmt.Errorf("clearing session: %w", err)
	}

	c.update(func(s *State) {
		*s = State{Receipts: []*Receipt{}}
	})
	c.metrics.setStored(0)
	slog.Info("Logged out")
	return nil
}

// UpdateProfile sets the optional profile fields of the current user
func (c *Coordinator) UpdateProfile(ctx context.Context, name, email string) (*User, error) {
	c.pipeline.Lock()
	defer c.pipeline.Unlock()

	user := c.currentUser()
	if user == nil {
		return nil, ErrNotInitialized
	}
	user.Name = name
	user.Email = email

	if err := c.store.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}

	c.update(func(s *State) { s.User = user })
	u := *user
	return &u, nil
}

// ClearError clears the recorded error
func (c *Coordinator) ClearError() {
	c.update(func(s *State) { s.Error = "" })
}

// SetLoading overrides the loading flag for work driven outside the Coordinator
func (c *Coordinator) SetLoading(loading bool) {
	c.update(func(s *State) { s.IsLoading = loading })
}
