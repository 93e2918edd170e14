package shipping

import (
	"errors"
	"fmt"
)

const (
	MethodStandard = "standard"
	MethodExpress  = "express"
	MethodPickup   = "pickup"
)

var ErrUnknownMethod = errors.New("unknown shipping method")

// Rules prices the delivery methods offered at checkout. Standard delivery
// is free once the subtotal reaches FreeThreshold; a zero threshold
// disables free delivery.
type Rules struct {
	Standard      float64
	Express       float64
	FreeThreshold float64
}

func (r Rules) Cost(method string, subtotal float64) (float64, error) {
	switch method {
	case MethodPickup:
		return 0, nil
	case MethodStandard:
		if r.FreeThreshold > 0 && subtotal >= r.FreeThreshold {
			return 0, nil
		}
		return r.Standard, nil
	case MethodExpress:
		return r.Express, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}
