// Package fridge coordinates a fridge-mode generation session: it validates
// the photo, uploads it while listening on the event stream, and publishes
// the resulting state. It can then promote a generated candidate to a saved
// recipe.
package fridge

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brokechef/fridgechef/internal/domain"
	"github.com/brokechef/fridgechef/internal/imagesource"
)

var ErrClosed = errors.New("coordinator closed")

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls behind loses its oldest pending states, never the latest one.
const subscriberBuffer = 16

// Generator uploads fridge photos and streams generation results.
type Generator interface {
	Submit(ctx context.Context, imageBytes []byte) error
	Events(ctx context.Context) <-chan domain.GenerationEvent
}

// RecipeCreator persists a recipe promoted from a generated candidate.
type RecipeCreator interface {
	UploadImage(ctx context.Context, data []byte) (string, error)
	Create(ctx context.Context, input domain.RecipeInput) (int64, error)
}

type Option func(*Coordinator)

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

type Coordinator struct {
	gen      Generator
	creator  RecipeCreator
	notifier Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	seq      uint64
	session  string
	cancel   context.CancelFunc
	selected []byte
	subs     []chan State
	closed   bool

	wg sync.WaitGroup
}

func NewCoordinator(gen Generator, creator RecipeCreator, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		gen:      gen,
		creator:  creator,
		notifier: nopNotifier{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the most recently published state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe returns a channel that receives the current state followed by
// every subsequent one. It is closed by Close.
func (c *Coordinator) Subscribe() <-chan State {
	ch := make(chan State, subscriberBuffer)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch
	}
	ch <- c.state
	c.subs = append(c.subs, ch)
	return ch
}

// SelectImage records the photo chosen by the user. Choosing a photo after a
// failure clears the error.
func (c *Coordinator) SelectImage(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = data
	if c.state.Phase == PhaseError {
		c.session = ""
		c.publishLocked(State{Phase: PhaseIdle})
	}
}

func (c *Coordinator) SelectedImage() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// StartFromProvider reads the photo from p, selects it and starts a session.
func (c *Coordinator) StartFromProvider(ctx context.Context, p imagesource.Provider) (string, error) {
	data, err := p.ReadImage(ctx)
	if err != nil {
		if domain.Classify(err) == nil {
			err = domain.NewUserError(domain.ErrValidation, domain.ErrUnreadable.Message, err)
		}
		c.reject(err)
		return "", err
	}
	c.SelectImage(data)
	return c.Start(ctx, data)
}

// Start begins a generation session for imageBytes and returns its id. The
// session runs in the background until it reaches a terminal state, ctx is
// done, or it is superseded by another call. Invalid images are rejected
// before any network call.
func (c *Coordinator) Start(ctx context.Context, imageBytes []byte) (string, error) {
	if err := imagesource.Validate(imageBytes); err != nil {
		c.reject(err)
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	c.cancelLocked()
	id := uuid.NewString()
	sctx, cancel := context.WithCancel(ctx)
	c.session = id
	c.cancel = cancel
	c.publishLocked(State{Phase: PhaseGenerating, SessionID: id})
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("generation started", "session_id", id, "bytes", len(imageBytes))
	go c.run(sctx, cancel, id, imageBytes)
	return id, nil
}

// run races the upload against the event stream for one session.
func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, id string, image []byte) {
	defer c.wg.Done()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	streamCtx, stopStream := context.WithCancel(gctx)
	defer stopStream()

	events := c.gen.Events(streamCtx)

	g.Go(func() error {
		defer stopStream()
		c.consume(streamCtx, id, events)
		return nil
	})

	g.Go(func() error {
		err := c.gen.Submit(gctx, image)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled by the caller, who owns the resulting state.
				c.logger.Debug("upload abandoned", "session_id", id, "error", err)
				return err
			}
			msg := domain.Message(err, "Failed to upload fridge image.")
			settled := c.transition(id, PhaseGenerating, errorState(msg, err))
			// The stream must not outlive a failed upload. It is stopped
			// after the failure is recorded so a buffered result cannot
			// overtake it.
			stopStream()
			if settled {
				c.logger.Warn("fridge image upload failed", "session_id", id, "error", err)
				c.notifier.Notify(ToastError, msg)
			} else {
				c.logger.Debug("upload failure ignored", "session_id", id, "error", err)
			}
			return err
		}
		c.logger.Info("fridge image uploaded", "session_id", id)
		if c.current(id, PhaseGenerating) {
			c.notifier.Notify(ToastSuccess, "Image uploaded! Generating recipes...")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		c.logger.Debug("generation session ended", "session_id", id, "error", err)
	}
}

func (c *Coordinator) consume(ctx context.Context, id string, events <-chan domain.GenerationEvent) {
	ev, ok := <-events
	if !ok {
		if ctx.Err() != nil {
			return
		}
		ev = domain.ErrorEvent(domain.NewUserError(domain.ErrNetwork, "Connection lost. Please try again.", nil), "Connection lost. Please try again.")
	}

	switch ev.Kind {
	case domain.EventSuccess:
		if c.transition(id, PhaseGenerating, State{Phase: PhaseSuccess, Recipes: ev.Recipes}) {
			c.logger.Info("recipes generated", "session_id", id, "count", len(ev.Recipes))
			c.notifier.Notify(ToastSuccess, "Recipes generated!")
			return
		}
		c.logger.Debug("late generation result ignored", "session_id", id)
	default:
		msg := ev.Message
		if msg == "" {
			msg = domain.Message(ev.Err, "Connection lost. Please try again.")
		}
		if c.transition(id, PhaseGenerating, errorState(msg, ev.Err)) {
			c.logger.Warn("generation failed", "session_id", id, "message", msg, "error", ev.Err)
			c.notifier.Notify(ToastError, msg)
			return
		}
		c.logger.Debug("stream failure swallowed", "session_id", id, "message", msg, "error", ev.Err)
	}
}

// CreateFromCandidate uploads the candidate's image and saves it as a recipe,
// returning the new recipe id. On success the coordinator returns to idle and
// the selected image is cleared.
func (c *Coordinator) CreateFromCandidate(ctx context.Context, recipe domain.GeneratedRecipe) (int64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	c.cancelLocked()
	id := uuid.NewString()
	c.session = id
	c.publishLocked(State{Phase: PhaseCreatingRecipe, SessionID: id})
	c.mu.Unlock()

	c.notifier.Notify(ToastLoading, "Creating recipe...")

	recipeID, err := c.create(ctx, recipe)
	if err != nil {
		msg := domain.Message(err, "Failed to create recipe.")
		c.transition(id, PhaseCreatingRecipe, errorState(msg, err))
		c.logger.Warn("recipe creation failed", "session_id", id, "error", err)
		c.notifier.Notify(ToastError, msg)
		return 0, err
	}

	c.mu.Lock()
	if c.session == id && c.state.Phase == PhaseCreatingRecipe {
		c.selected = nil
		c.session = ""
		c.publishLocked(State{Phase: PhaseIdle})
	}
	c.mu.Unlock()

	c.logger.Info("recipe created", "session_id", id, "recipe_id", recipeID)
	c.notifier.Notify(ToastSuccess, "Recipe created!")
	return recipeID, nil
}

func (c *Coordinator) create(ctx context.Context, recipe domain.GeneratedRecipe) (int64, error) {
	imageURL, err := c.resolveImage(ctx, recipe.ImageURL)
	if err != nil {
		return 0, err
	}
	return c.creator.Create(ctx, domain.RecipeInput{
		Title:       recipe.Title,
		Duration:    recipe.Duration,
		Ingredients: recipe.Ingredients,
		Tools:       recipe.Tools,
		Steps:       recipe.Steps,
		ImageURL:    imageURL,
	})
}

// resolveImage returns a persistent URL for a candidate image. Remote URLs
// are kept; inline images are decoded and uploaded.
func (c *Coordinator) resolveImage(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	data, err := decodeInlineImage(ref)
	if err != nil {
		return "", domain.NewUserError(domain.ErrValidation, "Failed to read generated image.", err)
	}
	return c.creator.UploadImage(ctx, data)
}

// decodeInlineImage decodes a data URL or a bare base64 string.
func decodeInlineImage(ref string) ([]byte, error) {
	if _, after, ok := strings.Cut(ref, ","); ok {
		ref = after
	}
	ref = strings.Join(strings.Fields(ref), "")
	data, err := base64.StdEncoding.DecodeString(ref)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(ref, "="))
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	return data, nil
}

// Cancel stops any in-flight session and returns to idle, clearing the
// selected image.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.cancelLocked()
	c.session = ""
	c.selected = nil
	c.publishLocked(State{Phase: PhaseIdle})
}

// Close cancels any in-flight session, waits for it to finish and closes all
// subscriber channels.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelLocked()
	c.mu.Unlock()

	c.wg.Wait()

	c.mu.Lock()
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
	c.mu.Unlock()
}

// reject publishes a validation failure without starting a session.
func (c *Coordinator) reject(err error) {
	msg := domain.Message(err, "Failed to read image.")
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.cancelLocked()
	c.session = ""
	c.publishLocked(errorState(msg, err))
	c.mu.Unlock()

	c.logger.Warn("fridge image rejected", "error", err)
	c.notifier.Notify(ToastError, msg)
}

// transition publishes next if session id is still current and in phase from.
func (c *Coordinator) transition(id string, from Phase, next State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.session != id || c.state.Phase != from {
		return false
	}
	next.SessionID = id
	c.publishLocked(next)
	return true
}

func (c *Coordinator) current(id string, phase Phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.session == id && c.state.Phase == phase
}

func (c *Coordinator) cancelLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Coordinator) publishLocked(s State) {
	c.seq++
	s.Seq = c.seq
	c.state = s
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}
