package v1

import (
	"encoding/json"
	"testing"
)

func TestChangeRecord_Validation(t *testing.T) {
	tests := []struct {
		name    string
		record  ChangeRecord
		wantErr bool
	}{
		{
			name: "valid record",
			record: ChangeRecord{
				SourceKey: "cart-action-1",
				Payload:   map[string]interface{}{"action": "Viewed"},
			},
		},
		{
			name: "missing source_key",
			record: ChangeRecord{
				Payload: map[string]interface{}{"action": "Viewed"},
			},
			wantErr: true,
		},
		{
			name:    "missing payload",
			record:  ChangeRecord{SourceKey: "cart-action-1"},
			wantErr: true,
		},
		{
			name: "negative partition",
			record: ChangeRecord{
				SourceKey:   "cart-action-1",
				PartitionID: -1,
				Payload:     map[string]interface{}{},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestChangeRecord_JSONRoundTripKeepsPayloadNumbers(t *testing.T) {
	raw := []byte(`{"source_key":"a-1","payload":{"price":12.5,"buyer_region":"CA"}}`)

	var rec ChangeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Payload["price"] != 12.5 {
		t.Errorf("price = %v, want 12.5", rec.Payload["price"])
	}
	if rec.SequenceToken != 0 {
		t.Errorf("sequence token must not be client supplied, got %d", rec.SequenceToken)
	}
}

func TestCartAction_Record(t *testing.T) {
	action := CartAction{
		ID:          "a-1",
		CartID:      1234,
		Action:      ActionPurchased,
		Item:        "Unisex Socks",
		Price:       3.75,
		BuyerRegion: "CA",
	}

	rec := action.Record()
	if rec.SourceKey != "a-1" {
		t.Errorf("SourceKey = %q", rec.SourceKey)
	}
	if rec.Payload[FieldAction] != "Purchased" {
		t.Errorf("action = %v", rec.Payload[FieldAction])
	}
	if err := rec.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidAction(t *testing.T) {
	for _, a := range Actions {
		if !ValidAction(string(a)) {
			t.Errorf("ValidAction(%q) = false", a)
		}
	}
	if ValidAction("Refunded") || ValidAction("") {
		t.Error("unknown actions must be rejected")
	}
}
