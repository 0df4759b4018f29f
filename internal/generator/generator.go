// Package generator produces synthetic cart-action traffic and posts it to the
// ingestion endpoint.
package generator

import (
	"math/rand"
	"time"

	v1 "github.com/aevon-lab/matview/internal/api/v1"
	"github.com/google/uuid"
)

// Product is one catalog entry.
type Product struct {
	Name  string
	Price float64
}

// Catalog is the item list the generator draws from.
var Catalog = []Product{
	{"Unisex Socks", 3.75}, {"Women's Earring", 8.00}, {"Women's Necklace", 12.00},
	{"Unisex Beanie", 10.00}, {"Men's Baseball Hat", 17.00}, {"Unisex Gloves", 20.00},
	{"Women's Flip Flop Shoes", 14.00}, {"Women's Silver Necklace", 15.50}, {"Men's Black Tee", 9.00},
	{"Men's Black Hoodie", 25.00}, {"Women's Blue Sweater", 27.00}, {"Women's Sweatpants", 21.00},
	{"Men's Athletic Shorts", 22.50}, {"Women's Athletic Shorts", 22.50}, {"Women's White Sweater", 32.00},
	{"Women's Green Sweater", 30.00}, {"Men's Windbreaker Jacket", 49.99}, {"Women's Sandal", 35.50},
	{"Women's Rainjacket", 55.00}, {"Women's Denim Shorts", 50.00}, {"Men's Fleece Jacket", 65.00},
	{"Women's Denim Jacket", 31.99}, {"Men's Walking Shoes", 79.99}, {"Women's Crewneck Sweater", 22.00},
	{"Men's Button-Up Shirt", 19.99}, {"Women's Flannel Shirt", 19.99}, {"Women's Light Jeans", 80.00},
	{"Men's Jeans", 85.00}, {"Women's Dark Jeans", 90.00}, {"Women's Red Top", 33.00},
	{"Men's White Shirt", 25.20}, {"Women's Pant", 40.00}, {"Women's Blazer Jacket", 87.50},
	{"Men's Puffy Jacket", 99.99}, {"Women's Puffy Jacket", 95.99}, {"Women's Athletic Shoes", 75.00},
	{"Men's Athletic Shoes", 70.00}, {"Women's Black Dress", 65.00}, {"Men's Suit Jacket", 92.00},
	{"Men's Suit Pant", 95.00}, {"Women's High Heel Shoe", 72.00}, {"Women's Cardigan Sweater", 25.00},
	{"Men's Dress Shoes", 120.00}, {"Unisex Puffy Jacket", 105.00}, {"Women's Red Dress", 130.00},
	{"Unisex Scarf", 29.99}, {"Women's White Dress", 84.99}, {"Unisex Sandals", 12.00},
	{"Women's Bag", 37.50},
}

// Regions are the buyer regions the generator draws from.
var Regions = []string{
	"AL", "AK", "AS", "AZ", "AR", "CA", "CO", "CT", "DE", "DC", "FM", "FL", "GA", "GU", "HI", "ID", "IL", "IN",
	"IA", "KS", "KY", "LA", "ME", "MH", "MD", "MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH", "NJ", "NM",
	"NY", "NC", "ND", "MP", "OH", "OK", "OR", "PW", "PA", "PR", "RI", "SC", "SD", "TN", "TX", "UT", "VT", "VI",
	"VA", "WA", "WV", "WI", "WY",
}

const (
	minCartID = 1000
	maxCartID = 99999
)

// Generator builds cart funnels. It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// New returns a generator. A zero seed uses the current time.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Next returns one cart funnel in order: the final action is drawn at random
// and preceded by Viewed, plus Added when the cart is Purchased.
func (g *Generator) Next() []v1.CartAction {
	product := Catalog[g.rng.Intn(len(Catalog))]
	final := v1.Actions[g.rng.Intn(len(v1.Actions))]

	base := v1.CartAction{
		CartID:      int64(minCartID + g.rng.Intn(maxCartID-minCartID+1)),
		Item:        product.Name,
		Price:       product.Price,
		BuyerRegion: Regions[g.rng.Intn(len(Regions))],
	}

	var steps []v1.Action
	switch final {
	case v1.ActionAdded:
		steps = []v1.Action{v1.ActionViewed, v1.ActionAdded}
	case v1.ActionPurchased:
		steps = []v1.Action{v1.ActionViewed, v1.ActionAdded, v1.ActionPurchased}
	default:
		steps = []v1.Action{v1.ActionViewed}
	}

	out := make([]v1.CartAction, 0, len(steps))
	for _, a := range steps {
		action := base
		action.ID = uuid.NewString()
		action.Action = a
		out = append(out, action)
	}
	return out
}
