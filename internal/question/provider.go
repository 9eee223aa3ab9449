package question

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/gokatarajesh/quest-engine/internal/quest"
)

const (
	defaultDailyCount = 5
	dayLayout         = "2006-01-02"
)

// ProviderOptions configures set selection.
type ProviderOptions struct {
	DailyCount int
	Location   *time.Location
	Now        func() time.Time
}

// Provider builds immutable question sets for sessions. Loads are cached in
// Redis and concurrent loads of the same set are collapsed into one.
type Provider struct {
	store      QuestStore
	cache      SetCache
	group      singleflight.Group
	dailyCount int
	loc        *time.Location
	now        func() time.Time
	logger     zerolog.Logger
}

// NewProvider constructs a provider. cache may be nil.
func NewProvider(store QuestStore, cache SetCache, opts ProviderOptions, logger zerolog.Logger) *Provider {
	count := opts.DailyCount
	if count <= 0 {
		count = defaultDailyCount
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		store:      store,
		cache:      cache,
		dailyCount: count,
		loc:        loc,
		now:        now,
		logger:     logger.With().Str("component", "question_provider").Logger(),
	}
}

// GetQuestions returns the pack for scope. The quest must be published and
// inside its availability window. Callers get their own copy of the set.
func (p *Provider) GetQuestions(ctx context.Context, scope Scope) (Pack, error) {
	if scope.QuestID == "" {
		return Pack{}, &quest.ValidationError{Field: "quest_id", Message: "quest id is required"}
	}
	if scope.Kind == quest.KindDaily && scope.Day.IsZero() {
		scope.Day = p.now()
	}
	key := p.cacheKey(scope)

	pack, err := p.cached(ctx, key)
	if err != nil {
		return Pack{}, err
	}
	if pack == nil {
		v, err, _ := p.group.Do(key, func() (any, error) {
			return p.build(ctx, scope, key)
		})
		if err != nil {
			return Pack{}, err
		}
		built := v.(Pack)
		pack = &built
	}

	if err := pack.Quest.Available(p.now()); err != nil {
		return Pack{}, err
	}
	out := *pack
	out.Set = pack.Set.Clone()
	return out, nil
}

func (p *Provider) cached(ctx context.Context, key string) (*Pack, error) {
	if p.cache == nil {
		return nil, nil
	}
	pack, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.Warn().Err(err).Str("key", key).Msg("question cache read failed")
		return nil, nil
	}
	return pack, nil
}

func (p *Provider) build(ctx context.Context, scope Scope, key string) (Pack, error) {
	q, err := p.store.GetQuest(ctx, scope.QuestID)
	if err != nil {
		return Pack{}, err
	}
	if q.Kind != scope.Kind {
		return Pack{}, fmt.Errorf("%s is a %s, not a %s: %w", q.ID, q.Kind, scope.Kind, quest.ErrQuestNotFound)
	}

	questions, err := p.store.QuestionsFor(ctx, q.ID)
	if err != nil {
		return Pack{}, fmt.Errorf("load questions of %s: %w", q.ID, err)
	}

	set := quest.QuestionSet{ID: q.ID, Kind: q.Kind, Questions: questions}
	set.Normalize()
	if err := set.Validate(); err != nil {
		p.logger.Error().Err(err).Str("quest_id", q.ID).Msg("refusing to serve invalid question set")
		return Pack{}, err
	}

	pack := Pack{Quest: q}
	switch scope.Kind {
	case quest.KindDaily:
		pack.Date = scope.Day.In(p.loc).Format(dayLayout)
		set.ID = q.ID + ":" + pack.Date
		set.Questions = pickDaily(set.Questions, q.ID, pack.Date, p.dailyCount)
	case quest.KindDeck:
		if scope.Seed != "" {
			set.Questions = shuffled(set.Questions, "deck", q.ID, scope.Seed)
		}
	}
	pack.Set = set

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, pack); err != nil {
			p.logger.Warn().Err(err).Str("key", key).Msg("question cache write failed")
		}
	}
	return pack, nil
}

func (p *Provider) cacheKey(scope Scope) string {
	switch scope.Kind {
	case quest.KindDaily:
		return "daily:" + scope.QuestID + ":" + scope.Day.In(p.loc).Format(dayLayout)
	case quest.KindDeck:
		return "deck:" + scope.QuestID + ":" + scope.Seed
	default:
		return scope.Kind + ":" + scope.QuestID
	}
}

// pickDaily draws n questions from the bank. The draw depends only on the
// kind and the date, so every caller on the same day sees the same set.
func pickDaily(bank []quest.Question, kind, date string, n int) []quest.Question {
	out := shuffled(bank, "daily", kind, date)
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// shuffled returns a Fisher-Yates permutation of qs seeded by parts.
func shuffled(qs []quest.Question, parts ...string) []quest.Question {
	out := append([]quest.Question(nil), qs...)
	r := seeded(parts...)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func seeded(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	sum := h.Sum64()
	return rand.New(rand.NewPCG(sum, sum^0x9e3779b97f4a7c15))
}
