package directory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/md-rashed-zaman/schedcore/services/scheduling-service/internal/model"
)

type ConfirmationPolicy string

const (
	// ConfirmAuto books straight into Confirmed.
	ConfirmAuto ConfirmationPolicy = "auto"
	// ConfirmManual books into Pending until the professional acknowledges.
	ConfirmManual ConfirmationPolicy = "manual"
)

type ReschedulePolicy string

const (
	// RescheduleKeepConfirmed moves the interval without re-confirmation.
	RescheduleKeepConfirmed ReschedulePolicy = "keep_confirmed"
	// RescheduleReconfirm drops a confirmed appointment back to Pending.
	RescheduleReconfirm ReschedulePolicy = "reconfirm"
)

type Professional struct {
	ID                 string
	ConfirmationPolicy ConfirmationPolicy
	ReschedulePolicy   ReschedulePolicy
	NoShowGrace        time.Duration
}

type Client struct {
	ID string
}

// Provider is the participant directory the engine consults. It is an
// external collaborator; unknown ids surface as model.ErrNotFound.
type Provider interface {
	GetProfessional(ctx context.Context, id string) (Professional, error)
	GetClient(ctx context.Context, id string) (Client, error)
}

// StaticProvider serves a registered in-process set of participants with
// configurable defaults, used when no directory service address is given.
type StaticProvider struct {
	mu            sync.RWMutex
	professionals map[string]Professional
	clients       map[string]struct{}
	defaults      Professional
	openClients   bool
}

type StaticConfig struct {
	DefaultConfirmation ConfirmationPolicy
	DefaultReschedule   ReschedulePolicy
	DefaultNoShowGrace  time.Duration
	// OpenClients accepts any non-empty client id without registration,
	// matching a portal where client records live elsewhere.
	OpenClients bool
}

func NewStaticProvider(cfg StaticConfig) *StaticProvider {
	if cfg.DefaultConfirmation == "" {
		cfg.DefaultConfirmation = ConfirmAuto
	}
	if cfg.DefaultReschedule == "" {
		cfg.DefaultReschedule = RescheduleKeepConfirmed
	}
	if cfg.DefaultNoShowGrace <= 0 {
		cfg.DefaultNoShowGrace = 15 * time.Minute
	}
	return &StaticProvider{
		professionals: map[string]Professional{},
		clients:       map[string]struct{}{},
		defaults: Professional{
			ConfirmationPolicy: cfg.DefaultConfirmation,
			ReschedulePolicy:   cfg.DefaultReschedule,
			NoShowGrace:        cfg.DefaultNoShowGrace,
		},
		openClients: cfg.OpenClients,
	}
}

func (p *StaticProvider) RegisterProfessional(prof Professional) {
	if prof.ConfirmationPolicy == "" {
		prof.ConfirmationPolicy = p.defaults.ConfirmationPolicy
	}
	if prof.ReschedulePolicy == "" {
		prof.ReschedulePolicy = p.defaults.ReschedulePolicy
	}
	if prof.NoShowGrace <= 0 {
		prof.NoShowGrace = p.defaults.NoShowGrace
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.professionals[prof.ID] = prof
}

func (p *StaticProvider) RegisterClient(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[id] = struct{}{}
}

func (p *StaticProvider) GetProfessional(_ context.Context, id string) (Professional, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prof, ok := p.professionals[id]
	if !ok {
		return Professional{}, fmt.Errorf("professional %s: %w", id, model.ErrNotFound)
	}
	return prof, nil
}

func (p *StaticProvider) GetClient(_ context.Context, id string) (Client, error) {
	if id == "" {
		return Client{}, fmt.Errorf("client id empty: %w", model.ErrNotFound)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.openClients {
		return Client{ID: id}, nil
	}
	if _, ok := p.clients[id]; !ok {
		return Client{}, fmt.Errorf("client %s: %w", id, model.ErrNotFound)
	}
	return Client{ID: id}, nil
}
