package session

import "sync"

// AudioSink carries playback commands to wherever audio actually plays.
type AudioSink interface {
	Play(questionID, url string)
	Stop(questionID string)
}

// AudioGuard allows at most one active playback. Starting a clip stops the
// previous one first.
type AudioGuard struct {
	mu     sync.Mutex
	sink   AudioSink
	active string
}

func NewAudioGuard(sink AudioSink) *AudioGuard {
	return &AudioGuard{sink: sink}
}

// Play starts the clip of questionID.
func (g *AudioGuard) Play(questionID, url string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sink == nil {
		return
	}
	if g.active != "" {
		g.sink.Stop(g.active)
	}
	g.active = questionID
	g.sink.Play(questionID, url)
}

// Stop stops the clip of questionID, or whatever is playing when
// questionID is empty. Stopping an inactive clip is a no-op.
func (g *AudioGuard) Stop(questionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sink == nil || g.active == "" {
		return
	}
	if questionID != "" && questionID != g.active {
		return
	}
	g.sink.Stop(g.active)
	g.active = ""
}

// Active returns the question whose clip is playing.
func (g *AudioGuard) Active() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
