package seeder

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Order is one generated demo row. The ordered_at column gives the
// classifier a temporal column to profile; amount, paid, and the varchar
// columns cover the numeric, boolean, and string families.
type Order struct {
	OrderID   int64
	Customer  string
	Country   string
	Device    string
	Status    string
	Amount    float64
	Paid      bool
	OrderedAt time.Time
}

type Generator struct {
	rnd         *rand.Rand
	cardinality int
	sequence    int64
	start       time.Time
}

func NewGenerator(seed int64, customerCardinality int) *Generator {
	return &Generator{
		rnd:         rand.New(rand.NewSource(seed)),
		cardinality: customerCardinality,
		start:       time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *Generator) NextOrder() Order {
	g.sequence++
	status := g.pickStatus()

	return Order{
		OrderID:   g.sequence,
		Customer:  fmt.Sprintf("customer-%03d", g.rnd.Intn(g.cardinality)+1),
		Country:   pickOne(g.rnd, []string{"US", "DE", "GB", "IN", "JP", "BR"}),
		Device:    pickOne(g.rnd, []string{"desktop", "mobile", "tablet"}),
		Status:    status,
		Amount:    g.pickAmount(status),
		Paid:      status == "paid" || status == "shipped",
		OrderedAt: g.start.Add(time.Duration(g.sequence) * time.Minute).Add(time.Duration(g.rnd.Intn(60)) * time.Second),
	}
}

func (g *Generator) pickStatus() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 55:
		return "paid"
	case p < 80:
		return "shipped"
	case p < 93:
		return "pending"
	default:
		return "cancelled"
	}
}

func (g *Generator) pickAmount(status string) float64 {
	if status == "cancelled" {
		return 0
	}
	return round2(5 + g.rnd.Float64()*295)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
