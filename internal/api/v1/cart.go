package v1

// Action is the kind of interaction recorded by a cart action document.
type Action string

const (
	ActionViewed    Action = "Viewed"
	ActionAdded     Action = "Added"
	ActionPurchased Action = "Purchased"
)

// Actions lists every known action kind in funnel order.
var Actions = []Action{ActionViewed, ActionAdded, ActionPurchased}

// ValidAction reports whether s names a known action kind.
func ValidAction(s string) bool {
	for _, a := range Actions {
		if string(a) == s {
			return true
		}
	}
	return false
}

// Payload field names of a cart action document.
const (
	FieldCartID      = "cart_id"
	FieldAction      = "action"
	FieldItem        = "item"
	FieldPrice       = "price"
	FieldBuyerRegion = "buyer_region"
)

// CartAction is the typed form of the purchase-funnel payload carried by the sample feed.
type CartAction struct {
	ID          string  `json:"id"`
	CartID      int64   `json:"cart_id"`
	Action      Action  `json:"action"`
	Item        string  `json:"item"`
	Price       float64 `json:"price"`
	BuyerRegion string  `json:"buyer_region"`
}

// Payload converts the action into the generic map shape stored on a ChangeRecord.
func (c CartAction) Payload() map[string]interface{} {
	return map[string]interface{}{
		FieldCartID:      c.CartID,
		FieldAction:      string(c.Action),
		FieldItem:        c.Item,
		FieldPrice:       c.Price,
		FieldBuyerRegion: c.BuyerRegion,
	}
}

// Record wraps the action in a ChangeRecord keyed by the action ID.
func (c CartAction) Record() *ChangeRecord {
	return &ChangeRecord{
		SourceKey: c.ID,
		Payload:   c.Payload(),
	}
}
