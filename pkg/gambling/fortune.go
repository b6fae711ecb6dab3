package gambling

// Fortune is one row of the fortune table.
type Fortune struct {
	Name   string
	Weight int
	Payout int64
}

// FortuneTable is the fixed-cost draw, weights out of 100.
var FortuneTable = []Fortune{
	{Name: "GREAT_BLESSING", Weight: 4, Payout: 1500},
	{Name: "MIDDLE_BLESSING", Weight: 20, Payout: 500},
	{Name: "SMALL_BLESSING", Weight: 20, Payout: 300},
	{Name: "FUTURE_BLESSING", Weight: 20, Payout: 100},
	{Name: "CURSE", Weight: 25, Payout: 0},
	{Name: "GREAT_CURSE", Weight: 11, Payout: 0},
}

func fortuneTotalWeight() int {
	total := 0
	for _, fortune := range FortuneTable {
		total += fortune.Weight
	}
	return total
}

// PickFortune maps roll in [0, total weight) onto the table.
func PickFortune(roll int) Fortune {
	cumulative := 0
	for _, fortune := range FortuneTable {
		cumulative += fortune.Weight
		if roll < cumulative {
			return fortune
		}
	}
	return FortuneTable[len(FortuneTable)-1]
}
