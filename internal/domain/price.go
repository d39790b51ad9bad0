package domain

// Direction represents the price movement direction
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// PriceState holds the last displayed value of a single price
type PriceState struct {
	Number    float64
	HasValue  bool
	Direction Direction
}

// Update records a new price and reports whether it differs from the previous one
func (ps *PriceState) Update(price float64) bool {
	if !ps.HasValue {
		ps.HasValue = true
		ps.Number = price
		ps.Direction = DirectionSame
		return true
	}
	if price == ps.Number {
		return false
	}

	switch {
	case price > ps.Number:
		ps.Direction = DirectionUp
	default:
		ps.Direction = DirectionDown
	}
	ps.Number = price
	return true
}
