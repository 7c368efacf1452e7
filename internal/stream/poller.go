package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"algodesk/internal/models"
)

// ChildrenFetcher loads the member accounts of a group.
type ChildrenFetcher interface {
	Children(ctx context.Context, groupID string) ([]models.Account, error)
}

// Poller is the pull-mode counterpart of the demat channel: on a cron
// schedule it fetches a group's children over REST and publishes the result
// as a demat_accounts message.
type Poller struct {
	cron     *cron.Cron
	fetcher  ChildrenFetcher
	hub      *Hub
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewPoller creates a poller that fetches every interval.
func NewPoller(fetcher ChildrenFetcher, hub *Hub, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		fetcher:  fetcher,
		hub:      hub,
		interval: interval,
		timeout:  interval,
		logger:   logger.With().Str("component", "poller").Logger(),
		entries:  make(map[string]cron.EntryID),
	}
}

// Start starts the schedule.
func (p *Poller) Start() {
	p.cron.Start()
	p.logger.Info().Dur("interval", p.interval).Msg("Poller started")
}

// Stop stops the schedule and waits for a running poll to finish.
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.logger.Info().Msg("Poller stopped")
}

// Watch schedules polling for groupID.
func (p *Poller) Watch(groupID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[groupID]; ok {
		return nil
	}
	id, err := p.cron.AddFunc(fmt.Sprintf("@every %s", p.interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.PollNow(ctx, groupID); err != nil {
			p.logger.Warn().Err(err).Str("group", groupID).Msg("Poll failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling poll for group %s: %w", groupID, err)
	}
	p.entries[groupID] = id
	return nil
}

// Unwatch stops polling groupID.
func (p *Poller) Unwatch(groupID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.entries[groupID]; ok {
		p.cron.Remove(id)
		delete(p.entries, groupID)
	}
}

// Switch replaces every watched group with groupID.
func (p *Poller) Switch(groupID string) error {
	p.mu.Lock()
	for g, id := range p.entries {
		p.cron.Remove(id)
		delete(p.entries, g)
	}
	p.mu.Unlock()
	return p.Watch(groupID)
}

// PollNow fetches groupID once and publishes the snapshot.
func (p *Poller) PollNow(ctx context.Context, groupID string) error {
	accounts, err := p.fetcher.Children(ctx, groupID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(struct {
		DematAccounts []models.Account `json:"dematAccounts"`
	}{accounts})
	if err != nil {
		return fmt.Errorf("encoding children of %s: %w", groupID, err)
	}
	p.hub.Publish(ctx, Message{
		Scope: GroupScope(groupID),
		Type:  TypeDematAccounts,
		Data:  data,
	})
	return nil
}
