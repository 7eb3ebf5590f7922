package roll

import (
	"fmt"
	"math/rand/v2"

	"github.com/Moe-and-Friends/Amazake/internal/domain/model"
	"github.com/Moe-and-Friends/Amazake/internal/domain/rules"
)

type Service struct {
	intN func(n int) int
}

func NewService() *Service {
	return &Service{intN: rand.IntN}
}

// Fetch picks the action to apply for one target. Timeout is the only action today.
func (s *Service) Fetch(intervals []model.Interval) (model.Action, error) {
	timeout, err := s.Roll(intervals)
	if err != nil {
		return nil, err
	}
	return timeout, nil
}

// Roll selects an interval by weight, then a whole number of minutes uniformly within
// that interval's inclusive bounds.
func (s *Service) Roll(intervals []model.Interval) (model.Timeout, error) {
	if err := Validate(intervals); err != nil {
		return model.Timeout{}, err
	}

	total := 0
	for _, interval := range intervals {
		total += interval.Weight
	}

	pick := s.intN(total)
	chosen := intervals[len(intervals)-1]
	for _, interval := range intervals {
		if pick < interval.Weight {
			chosen = interval
			break
		}
		pick -= interval.Weight
	}

	span := chosen.UpperMinutes - chosen.LowerMinutes + 1
	return model.Timeout{Minutes: chosen.LowerMinutes + s.intN(span)}, nil
}

func Validate(intervals []model.Interval) error {
	if len(intervals) == 0 {
		return fmt.Errorf("%w: no timeout intervals configured", model.ErrInvalidConfig)
	}
	total := 0
	for i, interval := range intervals {
		if interval.Weight <= 0 {
			return fmt.Errorf("%w: interval %d has non-positive weight %d", model.ErrInvalidConfig, i, interval.Weight)
		}
		if interval.Weight > rules.MaxTotalWeight-total {
			return fmt.Errorf("%w: interval weights sum past %d", model.ErrInvalidConfig, rules.MaxTotalWeight)
		}
		total += interval.Weight
		if interval.LowerMinutes < 0 || interval.LowerMinutes > interval.UpperMinutes || interval.UpperMinutes > rules.MaxBoundMinutes {
			return fmt.Errorf("%w: interval %d has invalid bounds [%d, %d]", model.ErrInvalidConfig, i, interval.LowerMinutes, interval.UpperMinutes)
		}
	}
	return nil
}
