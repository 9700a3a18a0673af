package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atendo/inboxsync/internal/api"
	"github.com/atendo/inboxsync/pkg/models"
)

// Companies reads tenant settings, most importantly the attendant visibility
// policy flag. Lookups are cached for the gateway's lifetime; company
// settings change rarely and the policy check runs on every list load.
type Companies struct {
	client *api.Client
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]models.Company
}

// NewCompanies builds a Companies gateway.
func NewCompanies(client *api.Client, logger *slog.Logger) *Companies {
	if logger == nil {
		logger = slog.Default()
	}
	return &Companies{
		client: client,
		logger: logger,
		cache:  make(map[string]models.Company),
	}
}

// Get fetches one company. Absence returns (nil, nil).
func (g *Companies) Get(ctx context.Context, companyID string) (*models.Company, error) {
	g.mu.Lock()
	if cached, ok := g.cache[companyID]; ok {
		g.mu.Unlock()
		return &cached, nil
	}
	g.mu.Unlock()

	var dto api.CompanyDTO
	err := g.client.Get(ctx, "companies/"+companyID, nil, &dto)
	if errors.Is(err, api.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gateway: get company %s: %w", companyID, err)
	}

	company := api.MapCompany(dto)
	g.mu.Lock()
	g.cache[companyID] = company
	g.mu.Unlock()
	return &company, nil
}
