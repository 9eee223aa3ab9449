package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/question"
	"github.com/gokatarajesh/quest-engine/internal/reward"
	"github.com/gokatarajesh/quest-engine/internal/submission"
)

// Fetcher loads the set a session runs on.
type Fetcher interface {
	GetQuestions(ctx context.Context, scope question.Scope) (question.Pack, error)
}

// Submitter records the authoritative result of a finished session.
type Submitter interface {
	Submit(ctx context.Context, userID uuid.UUID, scope question.Scope, answers []quest.Answer, submissionID string) (submission.Receipt, error)
}

// ErrNotSubmitted is returned by RetrySubmit when there is nothing to retry.
var ErrNotSubmitted = errors.New("no failed submission to retry")

// Offer tells the player whether an interrupted run can be resumed.
type Offer struct {
	SetID      string `json:"set_id"`
	Total      int    `json:"total"`
	ResumeFrom int    `json:"resume_from"`
	CanResume  bool   `json:"can_resume"`
}

// ControllerOptions wires a Controller.
type ControllerOptions struct {
	UserID           uuid.UUID
	Scope            question.Scope
	Fetcher          Fetcher
	Submitter        Submitter
	Progress         ProgressStore // optional
	Audio            AudioSink     // optional
	AutoAdvanceDelay time.Duration // zero disables auto-advance
	OnChange         func(Snapshot)
	Now              func() time.Time
}

// Controller runs one player's session: it feeds events to Reduce and
// executes the returned effects. All methods are safe for concurrent use;
// events are applied one at a time.
type Controller struct {
	mu sync.Mutex

	userID    uuid.UUID
	scope     question.Scope
	fetcher   Fetcher
	submitter Submitter
	progress  ProgressStore
	audio     *AudioGuard
	delay     time.Duration
	onChange  func(Snapshot)
	now       func() time.Time
	logger    zerolog.Logger

	state   State
	pending *question.Pack

	timer    *time.Timer
	timerGen uint64

	submissionID string
	receipt      *submission.Receipt
	submitErr    error
	closed       bool
}

// NewController builds an idle controller. Daily scopes are pinned to the
// current day so the set cannot change under a running session.
func NewController(opts ControllerOptions, logger zerolog.Logger) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	scope := opts.Scope
	if scope.Kind == quest.KindDaily && scope.Day.IsZero() {
		scope.Day = now()
	}
	return &Controller{
		userID:    opts.UserID,
		scope:     scope,
		fetcher:   opts.Fetcher,
		submitter: opts.Submitter,
		progress:  opts.Progress,
		audio:     NewAudioGuard(opts.Audio),
		delay:     opts.AutoAdvanceDelay,
		onChange:  opts.OnChange,
		now:       now,
		logger: logger.With().
			Str("component", "session").
			Str("user_id", opts.UserID.String()).
			Str("quest_id", scope.QuestID).
			Logger(),
		state: NewState(),
	}
}

// Offer loads the set and reports stored progress for it. Progress only
// counts when it was saved for a set of the same size.
func (c *Controller) Offer(ctx context.Context) (Offer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pack, err := c.fetcher.GetQuestions(ctx, c.scope)
	if err != nil {
		return Offer{}, err
	}
	c.pending = &pack

	offer := Offer{SetID: pack.Set.ID, Total: len(pack.Set.Questions)}
	if c.progress == nil {
		return offer, nil
	}
	p, err := c.progress.Load(ctx, c.userID, pack.Set.ID)
	if err != nil {
		c.logger.Warn().Err(err).Msg("progress unavailable; starting from the top")
		return offer, nil
	}
	if p != nil && p.Total == offer.Total && p.CurrentIndex > 0 && p.CurrentIndex < offer.Total {
		offer.ResumeFrom = p.CurrentIndex
		offer.CanResume = true
	}
	return offer, nil
}

// Start begins the session, from the offered position when resume is set.
func (c *Controller) Start(ctx context.Context, resume bool) (Snapshot, error) {
	offer := Offer{}
	if c.pendingPack() == nil || resume {
		var err error
		if offer, err = c.Offer(ctx); err != nil {
			return c.Snapshot(), err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ev := Event{Type: EventStartSession, Set: &c.pending.Set}
	if resume && offer.CanResume {
		ev.ResumeAt = offer.ResumeFrom
	}
	err := c.apply(ctx, ev)
	return c.snapshotLocked(), err
}

// Dispatch applies a player event. Any manual event cancels a pending
// auto-advance. On error the state is unchanged, except that a failed
// submission leaves the session in result with a retryable error.
func (c *Controller) Dispatch(ctx context.Context, ev Event) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.snapshotLocked(), fmt.Errorf("%w: session closed", ErrInvalidTransition)
	}
	c.stopTimer()
	err := c.apply(ctx, ev)
	return c.snapshotLocked(), err
}

// RetrySubmit repeats a failed submission with the same submission id, so
// a request that did reach the store is answered from it.
func (c *Controller) RetrySubmit(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != PhaseResult || c.receipt != nil || c.submissionID == "" {
		return c.snapshotLocked(), ErrNotSubmitted
	}
	err := c.submit(ctx)
	return c.snapshotLocked(), err
}

// Close abandons the session. Nothing is recorded for an unfinished run.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.stopTimer()
	c.audio.Stop("")
}

// Snapshot returns the current render model.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Receipt returns the submission receipt once the result is recorded.
func (c *Controller) Receipt() *submission.Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receipt
}

func (c *Controller) pendingPack() *question.Pack {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := snapshotOf(c.state)
	if c.state.Phase == PhaseResult {
		snap.Receipt = c.receipt
		if c.submitErr != nil {
			snap.SubmitError = c.submitErr.Error()
			snap.CanRetry = retryable(c.submitErr)
		} else if c.receipt == nil {
			snap.Submitting = true
		}
	}
	return snap
}

// apply must be called with c.mu held.
func (c *Controller) apply(ctx context.Context, ev Event) error {
	next, effects, err := Reduce(c.state, ev)
	if err != nil {
		return err
	}
	c.state = next
	if ev.Type == EventRestart {
		c.submissionID = ""
		c.receipt = nil
		c.submitErr = nil
		c.pending = nil
	}

	for _, eff := range effects {
		if err := c.execute(ctx, eff); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) execute(ctx context.Context, eff Effect) error {
	switch eff.Type {
	case EffectFetchQuestions:
		pack, err := c.fetcher.GetQuestions(ctx, c.scope)
		if err != nil {
			c.state.Loading = false
			return err
		}
		c.pending = &pack
		return c.apply(ctx, Event{Type: EventQuestionsLoaded, Set: &pack.Set})

	case EffectPlayAudio:
		c.audio.Play(eff.QuestionID, eff.AudioURL)

	case EffectStopAudio:
		c.audio.Stop(eff.QuestionID)

	case EffectSaveProgress:
		c.saveProgress(ctx)

	case EffectClearProgress:
		if c.progress != nil {
			if err := c.progress.Clear(ctx, c.userID, c.state.Set.ID); err != nil {
				c.logger.Warn().Err(err).Msg("failed to clear progress")
			}
		}

	case EffectSubmit:
		c.submissionID = uuid.NewString()
		c.receipt = nil
		c.submitErr = nil
		return c.submit(ctx)

	case EffectScheduleAutoAdvance:
		c.scheduleAutoAdvance()

	case EffectCancelAutoAdvance:
		c.stopTimer()
	}
	return nil
}

func (c *Controller) saveProgress(ctx context.Context) {
	if c.progress == nil {
		return
	}
	p := Progress{
		CurrentIndex: c.state.Index,
		Total:        len(c.state.Set.Questions),
		UpdatedAt:    c.now().UTC(),
	}
	if err := c.progress.Save(ctx, c.userID, c.state.Set.ID, p); err != nil {
		c.logger.Warn().Err(err).Int("index", p.CurrentIndex).Msg("failed to save progress")
	}
}

func (c *Controller) submit(ctx context.Context) error {
	receipt, err := c.submitter.Submit(ctx, c.userID, c.scope, c.state.AnswerList(), c.submissionID)
	if err != nil {
		c.submitErr = err
		c.logger.Error().Err(err).Str("submission_id", c.submissionID).Msg("submission failed")
		return err
	}
	c.submitErr = nil
	c.receipt = &receipt
	c.logger.Info().
		Str("submission_id", c.submissionID).
		Int("percentage", receipt.Percentage).
		Bool("first_clear", receipt.IsFirstClear).
		Int("awarded", receipt.RewardPointsAwarded).
		Msg("session submitted")
	return nil
}

func (c *Controller) scheduleAutoAdvance() {
	if c.delay <= 0 {
		return
	}
	c.stopTimer()
	gen := c.timerGen
	c.timer = time.AfterFunc(c.delay, func() { c.autoAdvance(gen) })
}

// stopTimer invalidates any scheduled auto-advance, including one whose
// timer already fired and is waiting for the lock.
func (c *Controller) stopTimer() {
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) autoAdvance(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	err := c.apply(context.Background(), Event{Type: EventAdvance})
	snap := c.snapshotLocked()
	notify := c.onChange
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Msg("auto-advance failed")
	}
	if notify != nil {
		notify(snap)
	}
}

// retryable reports whether resubmitting could succeed. Rejections of the
// request itself cannot.
func retryable(err error) bool {
	if errors.Is(err, reward.ErrStoreUnavailable) {
		return true
	}
	var verr *quest.ValidationError
	return !errors.As(err, &verr) &&
		!errors.Is(err, quest.ErrUnknownQuestion) &&
		!errors.Is(err, quest.ErrQuestNotFound) &&
		!errors.Is(err, quest.ErrQuestUnpublished) &&
		!errors.Is(err, quest.ErrQuestExpired)
}
