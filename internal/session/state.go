// Package session drives a user through one question set.
//
// Reduce is a pure state machine over the phases start, playing, answered
// and result. It returns the side effects a transition needs as values; the
// Controller executes them (fetching, audio, progress, submission) so the
// reducer itself never performs I/O.
package session

import (
	"errors"
	"fmt"

	"github.com/gokatarajesh/quest-engine/internal/quest"
	"github.com/gokatarajesh/quest-engine/internal/quest/grading"
)

// Phase of a session.
type Phase string

const (
	PhaseStart    Phase = "start"
	PhasePlaying  Phase = "playing"
	PhaseAnswered Phase = "answered"
	PhaseResult   Phase = "result"
)

// EventType names an input to Reduce.
type EventType string

const (
	EventStartSession    EventType = "start_session"
	EventQuestionsLoaded EventType = "questions_loaded"
	EventSelectAnswer    EventType = "select_answer"
	EventAdvance         EventType = "advance"
	EventPrevious        EventType = "previous"
	EventForceSubmit     EventType = "force_submit"
	EventRestart         EventType = "restart"
)

// Event is one user action or loader callback.
type Event struct {
	Type          EventType
	Set           *quest.QuestionSet // start_session (optional), questions_loaded
	ResumeAt      int                // start_session, questions_loaded
	SelectedIndex int                // select_answer
}

// EffectType names a side effect requested by a transition.
type EffectType string

const (
	EffectFetchQuestions      EffectType = "fetch_questions"
	EffectPlayAudio           EffectType = "play_audio"
	EffectStopAudio           EffectType = "stop_audio"
	EffectSaveProgress        EffectType = "save_progress"
	EffectClearProgress       EffectType = "clear_progress"
	EffectSubmit              EffectType = "submit"
	EffectScheduleAutoAdvance EffectType = "schedule_auto_advance"
	EffectCancelAutoAdvance   EffectType = "cancel_auto_advance"
)

// Effect is executed by the Controller in order.
type Effect struct {
	Type       EffectType
	QuestionID string
	AudioURL   string
}

// ErrInvalidTransition is returned when an event is not accepted in the
// current phase. The state is left unchanged.
var ErrInvalidTransition = errors.New("invalid session transition")

// State is the full session state. Reduce never mutates its input.
type State struct {
	Phase    Phase
	Set      quest.QuestionSet
	Index    int
	Answers  map[string]int
	Feedback map[string]grading.QuestionResult
	Loading  bool
	Result   *grading.GradedResult
}

// NewState is the idle state.
func NewState() State {
	return State{Phase: PhaseStart}
}

// Current returns the question at Index.
func (s State) Current() (quest.Question, bool) {
	if s.Index < 0 || s.Index >= len(s.Set.Questions) {
		return quest.Question{}, false
	}
	return s.Set.Questions[s.Index], true
}

// AnswerList returns the locked answers in set order. Unanswered questions
// are absent.
func (s State) AnswerList() []quest.Answer {
	out := make([]quest.Answer, 0, len(s.Answers))
	for _, q := range s.Set.Questions {
		if idx, ok := s.Answers[q.ID]; ok {
			out = append(out, quest.Answer{QuestionID: q.ID, SelectedIndex: idx})
		}
	}
	return out
}

// Reduce applies ev to s.
func Reduce(s State, ev Event) (State, []Effect, error) {
	switch ev.Type {
	case EventStartSession:
		if s.Phase != PhaseStart {
			return s, nil, invalid(s, ev)
		}
		if ev.Set == nil {
			next := s
			next.Loading = true
			return next, []Effect{{Type: EffectFetchQuestions}}, nil
		}
		return load(s, ev)

	case EventQuestionsLoaded:
		if s.Phase != PhaseStart || ev.Set == nil {
			return s, nil, invalid(s, ev)
		}
		return load(s, ev)

	case EventSelectAnswer:
		if s.Phase != PhasePlaying {
			return s, nil, invalid(s, ev)
		}
		if ev.SelectedIndex < 0 {
			return s, nil, &quest.ValidationError{Field: "selected_index", Message: "must not be negative"}
		}
		q, _ := s.Current()
		next := s.clone()
		next.Answers[q.ID] = ev.SelectedIndex
		next.Feedback[q.ID] = grading.GradeOne(q, ev.SelectedIndex)
		next.Phase = PhaseAnswered
		return next, []Effect{
			{Type: EffectStopAudio, QuestionID: q.ID},
			{Type: EffectScheduleAutoAdvance, QuestionID: q.ID},
		}, nil

	case EventAdvance:
		if s.Phase != PhaseAnswered {
			return s, nil, invalid(s, ev)
		}
		if s.Index+1 >= len(s.Set.Questions) {
			return finish(s)
		}
		return move(s, s.Index+1)

	case EventPrevious:
		if s.Phase != PhasePlaying && s.Phase != PhaseAnswered {
			return s, nil, invalid(s, ev)
		}
		target := s.Index - 1
		if target < 0 {
			target = 0
		}
		return move(s, target)

	case EventForceSubmit:
		if s.Phase != PhasePlaying && s.Phase != PhaseAnswered {
			return s, nil, invalid(s, ev)
		}
		return finish(s)

	case EventRestart:
		if s.Phase != PhaseResult {
			return s, nil, invalid(s, ev)
		}
		next := NewState()
		next.Loading = true
		return next, []Effect{{Type: EffectFetchQuestions}}, nil
	}
	return s, nil, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Type)
}

func load(s State, ev Event) (State, []Effect, error) {
	set := ev.Set.Clone()
	set.Normalize()
	if err := set.Validate(); err != nil {
		return s, nil, err
	}
	next := State{
		Phase:    PhasePlaying,
		Set:      set,
		Answers:  make(map[string]int, len(set.Questions)),
		Feedback: make(map[string]grading.QuestionResult, len(set.Questions)),
	}
	next.Index = clamp(ev.ResumeAt, len(set.Questions))
	return next, enter(next), nil
}

// move navigates to target; locked questions come back as answered.
func move(s State, target int) (State, []Effect, error) {
	next := s.clone()
	effects := []Effect{{Type: EffectCancelAutoAdvance}}
	if q, ok := s.Current(); ok {
		effects = append(effects, Effect{Type: EffectStopAudio, QuestionID: q.ID})
	}
	next.Index = target
	q, _ := next.Current()
	if _, locked := next.Answers[q.ID]; locked {
		next.Phase = PhaseAnswered
	} else {
		next.Phase = PhasePlaying
	}
	return next, append(effects, enter(next)...), nil
}

func finish(s State) (State, []Effect, error) {
	next := s.clone()
	result, err := grading.Grade(next.Set, next.AnswerList())
	if err != nil {
		return s, nil, err
	}
	next.Phase = PhaseResult
	next.Result = &result
	return next, []Effect{
		{Type: EffectCancelAutoAdvance},
		{Type: EffectStopAudio},
		{Type: EffectClearProgress},
		{Type: EffectSubmit},
	}, nil
}

// enter lists the effects of showing the current question.
func enter(s State) []Effect {
	q, ok := s.Current()
	if !ok {
		return nil
	}
	effects := []Effect{{Type: EffectSaveProgress, QuestionID: q.ID}}
	if s.Phase == PhasePlaying && q.AudioURL != "" {
		effects = append(effects, Effect{Type: EffectPlayAudio, QuestionID: q.ID, AudioURL: q.AudioURL})
	}
	return effects
}

func (s State) clone() State {
	next := s
	next.Answers = make(map[string]int, len(s.Answers))
	for k, v := range s.Answers {
		next.Answers[k] = v
	}
	next.Feedback = make(map[string]grading.QuestionResult, len(s.Feedback))
	for k, v := range s.Feedback {
		next.Feedback[k] = v
	}
	return next
}

func clamp(idx, n int) int {
	if idx < 0 || n == 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

func invalid(s State, ev Event) error {
	return fmt.Errorf("%w: %s in %s", ErrInvalidTransition, ev.Type, s.Phase)
}
