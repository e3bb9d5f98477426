package usecase

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantra/tradecore/internal/channels"
	"github.com/quantra/tradecore/internal/domain"
)

// PositionsUpdater polls the open futures positions. A position with an
// unknown contract type is a fatal domain error; a position mode other
// than one-way is logged once per symbol and stored as-is.
type PositionsUpdater struct {
	*Updater
	deps UpdaterDeps

	warnedModes map[string]bool
}

func NewPositionsUpdater(deps UpdaterDeps) *PositionsUpdater {
	return &PositionsUpdater{
		Updater:     newUpdater(channels.PositionsChannelName, deps.Logger),
		deps:        deps,
		warnedModes: make(map[string]bool),
	}
}

func (u *PositionsUpdater) Start(ctx context.Context) error {
	return u.start(ctx, fixedInterval(PositionsRefreshTime), u.tick)
}

func (u *PositionsUpdater) tick(ctx context.Context) error {
	var firstErr error
	for _, symbol := range u.deps.Pairs {
		position, err := u.deps.Exchange.GetOpenPosition(ctx, symbol)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if position == nil {
			continue
		}
		if err := u.applyPosition(position); err != nil {
			return err
		}
	}
	if u.deps.Future != nil {
		u.deps.Future.RefreshFromPositions(u.deps.Personal.Positions.All())
	}
	return firstErr
}

func (u *PositionsUpdater) applyPosition(position *domain.Position) error {
	switch position.Contract {
	case domain.LinearContract, domain.InverseContract:
	default:
		return fmt.Errorf("%w: %q on %s",
			domain.ErrUnhandledContractType, position.Contract, position.Symbol)
	}
	if position.Mode != domain.OneWayMode && !u.warnedModes[position.Symbol] {
		u.warnedModes[position.Symbol] = true
		u.logger.Warn("unsupported position mode, accepting data as-is",
			zap.String("symbol", position.Symbol),
			zap.String("mode", string(position.Mode)))
	}
	if position.ShouldLiquidate(position.MarkPrice) {
		u.liquidate(position)
		return nil
	}
	u.deps.Personal.Positions.Upsert(position)
	u.publish(position)
	return nil
}

// publish hands a copy to the channel so later status flips on the
// updater's side cannot race with consumer callbacks.
func (u *PositionsUpdater) publish(position *domain.Position) {
	snapshot := *position
	u.deps.channel(channels.PositionsChannelName).Publish(channels.PositionsEvent{
		Cryptocurrency: u.deps.cryptocurrency(position.Symbol),
		Symbol:         position.Symbol,
		Positions:      []*domain.Position{&snapshot},
	})
}

// liquidate runs the local liquidation flow: the position goes through
// LIQUIDATING, the loss at the liquidation price settles into the
// ledger of the settlement asset, and the position ends CLOSED.
func (u *PositionsUpdater) liquidate(position *domain.Position) {
	u.logger.Warn("position crossed its liquidation price",
		zap.String("symbol", position.Symbol),
		zap.String("side", string(position.Side)),
		zap.String("mark", position.MarkPrice.String()),
		zap.String("liquidation", position.LiquidationPrice.String()))

	position.Status = domain.PositionLiquidating
	u.deps.Personal.Positions.Upsert(position)
	u.publish(position)

	realised := position.PnL(position.LiquidationPrice)
	if u.deps.Future != nil {
		base, quote := domain.SplitSymbol(position.Symbol)
		asset := quote
		if position.Contract == domain.InverseContract {
			asset = base
		}
		u.deps.Future.ApplyRealisedPnL(asset, realised)
	}

	u.deps.Personal.Positions.Remove(position.Symbol, position.Side)
	position.RealisedPnL = realised
	position.UnrealisedPnL = decimal.Zero
	position.Status = domain.PositionClosed
	u.publish(position)
}
