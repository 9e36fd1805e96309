package dom

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/tabpilot/api/schemas"
)

var errDegenerate = errors.New("degenerate geometry")

// Locator computes a viewport click point for a node. It tries content quads,
// then the box model, then the bounding client rect, and accepts the first
// non-degenerate result.
type Locator struct {
	page   Page
	logger *zap.Logger
}

// NewLocator creates a Locator.
func NewLocator(page Page, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{page: page, logger: logger.Named("locator")}
}

// Locate returns the click point for the first node matching selector, or nil
// when every geometry source failed. A nil result is not an error; callers fall
// back to simulated input.
func (l *Locator) Locate(ctx context.Context, selector string) *schemas.Coordinate {
	coord, method, attempts, err := RunStrategies(ctx, l.strategies(selector))
	if err != nil {
		for _, a := range attempts {
			l.logger.Debug("Geometry source failed.", zap.String("selector", selector), zap.String("method", a.Name), zap.Error(a.Err))
		}
		return nil
	}
	l.logger.Debug("Located element.", zap.String("selector", selector), zap.String("method", method), zap.Int("x", coord.X), zap.Int("y", coord.Y))
	return coord
}

func (l *Locator) strategies(selector string) []Strategy[*schemas.Coordinate] {
	return []Strategy[*schemas.Coordinate]{
		{
			Name: string(schemas.MethodContentQuads),
			Run: func(ctx context.Context) (*schemas.Coordinate, error) {
				quads, err := l.page.ContentQuads(ctx, selector)
				if err != nil {
					return nil, err
				}
				if len(quads) == 0 {
					return nil, fmt.Errorf("no content quads: %w", errDegenerate)
				}
				return quadPoint(quads[0], schemas.MethodContentQuads)
			},
		},
		{
			Name: string(schemas.MethodBoxModel),
			Run: func(ctx context.Context) (*schemas.Coordinate, error) {
				q, err := l.page.BoxModel(ctx, selector)
				if err != nil {
					return nil, err
				}
				return quadPoint(q, schemas.MethodBoxModel)
			},
		},
		{
			Name: string(schemas.MethodBoundingRect),
			Run: func(ctx context.Context) (*schemas.Coordinate, error) {
				r, err := l.page.BoundingRect(ctx, selector)
				if err != nil {
					return nil, err
				}
				if r.Empty() {
					return nil, fmt.Errorf("bounding rect %vx%v: %w", r.Width, r.Height, errDegenerate)
				}
				x, y := r.Center()
				return schemas.NewCoordinate(x, y, schemas.MethodBoundingRect), nil
			},
		},
	}
}

func quadPoint(q schemas.Quad, method schemas.CoordinateMethod) (*schemas.Coordinate, error) {
	if q.Area() <= 0 {
		return nil, fmt.Errorf("%s quad has zero area: %w", method, errDegenerate)
	}
	x, y := q.Center()
	return schemas.NewCoordinate(x, y, method), nil
}
