package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"ProTrdx/internal/domain/errs"
	"ProTrdx/internal/domain/models"
	drepo "ProTrdx/internal/domain/repository"
	applogger "ProTrdx/pkg/logger"
)

// WatchlistService manages the tickers the pipeline analyses.
type WatchlistService struct {
	store  drepo.TickerRepository
	logger *applogger.Logger
	now    func() time.Time
}

func NewWatchlistService(store drepo.TickerRepository, l *applogger.Logger) *WatchlistService {
	if l == nil {
		l = applogger.NewNop()
	}
	return &WatchlistService{store: store, logger: l, now: time.Now}
}

func (w *WatchlistService) List(ctx context.Context) ([]models.Ticker, error) {
	return w.store.ListTickers(ctx)
}

// Create normalizes the symbol to upper case. An empty market means stock.
func (w *WatchlistService) Create(ctx context.Context, req *models.CreateTickerRequest) (*models.Ticker, error) {
	const op = "watchlist.create"
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, errs.New(errs.ErrData, op, "symbol is required")
	}
	market := models.Market(strings.ToLower(req.Market))
	if market == "" {
		market = models.MarketStock
	}
	if !market.Valid() {
		return nil, errs.New(errs.ErrData, op, "unknown market %q", req.Market)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	t := &models.Ticker{Symbol: symbol, Market: market, Active: active, CreatedAt: w.now().UTC()}
	if err := w.store.CreateTicker(ctx, t); err != nil {
		return nil, err
	}
	w.logger.Info("ticker added", applogger.String("symbol", symbol), applogger.String("market", string(market)))
	return t, nil
}

func (w *WatchlistService) SetActive(ctx context.Context, id string, active bool) error {
	return w.store.SetTickerActive(ctx, id, active)
}

func (w *WatchlistService) Delete(ctx context.Context, id string) error {
	return w.store.DeleteTicker(ctx, id)
}

// Seed inserts DefaultWatchlist into an empty store and returns how many
// tickers were added.
func (w *WatchlistService) Seed(ctx context.Context) (int, error) {
	existing, err := w.store.ListTickers(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	added := 0
	for _, def := range models.DefaultWatchlist {
		t := def
		t.CreatedAt = w.now().UTC()
		if err := w.store.CreateTicker(ctx, &t); err != nil {
			if errors.Is(err, errs.ErrConflict) {
				continue
			}
			return added, err
		}
		added++
	}
	w.logger.Info("watchlist seeded", applogger.Int("count", added))
	return added, nil
}
