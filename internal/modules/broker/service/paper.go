package service

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sentinel_bot/internal/models"
)

// Paper: брокер без терминала: позиции в памяти, календарь лежит в рабочей папке.
type Paper struct {
	log            *zap.Logger
	workingDir     string
	timezoneOffset float64

	mu        sync.Mutex
	positions map[int64]models.BrokerPosition
	nextID    int64
	nextDeal  int64
	closed    []ClosedDeal
}

// ClosedDeal is a position closed through the paper broker.
type ClosedDeal struct {
	Position models.BrokerPosition
	Comment  string
	Magic    int64
	ClosedAt time.Time
}

func NewPaper(workingDir string, timezoneOffset float64, log *zap.Logger) *Paper {
	return &Paper{
		log:            log,
		workingDir:     workingDir,
		timezoneOffset: timezoneOffset,
		positions:      make(map[int64]models.BrokerPosition),
		nextID:         1,
		nextDeal:       1,
	}
}

func (p *Paper) WorkingDirectory(context.Context) (string, error) {
	abs, err := filepath.Abs(p.workingDir)
	if err != nil {
		return "", errors.Wrapf(err, "working dir %q", p.workingDir)
	}
	return abs, nil
}

// TimezoneOffset returns the configured broker offset from UTC in hours.
func (p *Paper) TimezoneOffset(_ context.Context, symbol string) (float64, error) {
	if symbol == "" {
		return 0, errors.New("empty symbol")
	}
	return p.timezoneOffset, nil
}

// Open adds a position and returns it with its id assigned.
func (p *Paper) Open(symbol string, side models.Side, volume, price decimal.Decimal, magic int64) models.BrokerPosition {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := models.BrokerPosition{
		PositionID: p.nextID,
		Symbol:     strings.ToUpper(symbol),
		Side:       side,
		Volume:     volume,
		OpenPrice:  price,
		Profit:     decimal.Zero,
		Magic:      magic,
		OpenedAt:   time.Now().UTC(),
	}
	p.positions[pos.PositionID] = pos
	p.nextID++
	return pos
}

func (p *Paper) OpenPositions(_ context.Context, symbol string) ([]models.BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	var out []models.BrokerPosition
	for _, pos := range p.positions {
		if symbol == "" || pos.Symbol == symbol {
			out = append(out, pos)
		}
	}
	slices.SortFunc(out, func(a, b models.BrokerPosition) int { return int(a.PositionID - b.PositionID) })
	return out, nil
}

func (p *Paper) ClosePosition(_ context.Context, position models.BrokerPosition, comment string, magic int64) (models.RequestResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[position.PositionID]
	if !ok {
		return models.RequestResult{
			Success:       false,
			ServerCode:    10013,
			ServerMessage: fmt.Sprintf("position %d not found", position.PositionID),
		}, nil
	}
	delete(p.positions, pos.PositionID)
	p.closed = append(p.closed, ClosedDeal{Position: pos, Comment: comment, Magic: magic, ClosedAt: time.Now().UTC()})

	deal := p.nextDeal
	p.nextDeal++
	p.log.Info("[BROKER] position closed",
		zap.Int64("position", pos.PositionID),
		zap.String("symbol", pos.Symbol),
		zap.String("volume", pos.Volume.String()),
		zap.String("comment", comment),
	)
	return models.RequestResult{
		Success:        true,
		Deal:           deal,
		ServerCode:     10009,
		ServerMessage:  "done",
		ExecutedVolume: pos.Volume,
		ExecutionPrice: pos.OpenPrice,
	}, nil
}

// Closed returns the deals closed so far.
func (p *Paper) Closed() []ClosedDeal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.closed)
}

var _ Broker = (*Paper)(nil)
