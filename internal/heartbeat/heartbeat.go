// Package heartbeat emits a periodic status line for a running hub on a cron
// schedule. It only observes the hub and never drives it.
package heartbeat

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Tyrowin/relayhub/internal/logx"
)

// Source reports the live state sampled on each tick.
type Source interface {
	PeerCount() int
}

// Heartbeat owns the cron runner for the status tick.
type Heartbeat struct {
	src     Source
	log     logx.Logger
	c       *cron.Cron
	started time.Time
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New schedules the tick. An empty spec returns (nil, nil): heartbeat disabled.
func New(spec string, src Source, log logx.Logger) (*Heartbeat, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	h := &Heartbeat{
		src: src,
		log: log,
		c:   cron.New(cron.WithParser(parser)),
	}
	if _, err := h.c.AddFunc(spec, h.tick); err != nil {
		return nil, fmt.Errorf("heartbeat schedule %q: %w", spec, err)
	}
	return h, nil
}

// Start begins ticking in the background.
func (h *Heartbeat) Start() {
	h.started = time.Now()
	h.c.Start()
}

// Stop halts the schedule and waits for a running tick to finish.
func (h *Heartbeat) Stop() {
	<-h.c.Stop().Done()
}

func (h *Heartbeat) tick() {
	h.log.Info("hub heartbeat",
		logx.Int("peers", h.src.PeerCount()),
		logx.Duration("uptime", time.Since(h.started).Round(time.Second)),
	)
}
