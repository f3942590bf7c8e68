package backtest

import (
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidParams  = errors.New("invalid strategy params")
	ErrLengthMismatch = errors.New("series length mismatch")
)

var validate = validator.New()

// Params are the strategy knobs. The thresholds are independent; when they
// overlap the short side wins. TxCostBps is a round-trip cost charged once per
// position change.
type Params struct {
	ThresholdLong  float64 `json:"threshold_long" yaml:"threshold_long" default:"0.55" validate:"gt=0,lt=1"`
	ThresholdShort float64 `json:"threshold_short" yaml:"threshold_short" default:"0.45" validate:"gt=0,lt=1"`
	TxCostBps      float64 `json:"tx_cost_bps" yaml:"tx_cost_bps" default:"5" validate:"gte=0"`
}

func DefaultParams() Params {
	var p Params
	// the tags are constant, Set only fails on malformed ones
	_ = defaults.Set(&p)
	return p
}

func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %s=%s", ErrInvalidParams, fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// costPerChange converts basis points into a return deduction.
func (p Params) costPerChange() float64 {
	return p.TxCostBps / 10000.0
}
