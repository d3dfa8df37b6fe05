package lifecycle

import (
	"errors"
	"testing"
)

func TestCreateIntentParamsValidate(t *testing.T) {
	valid := CreateIntentParams{
		IntentID: "open-1",
		Type:     "LIMIT",
		Side:     "BUY",
		Qty:      0.5,
	}

	tests := []struct {
		name      string
		mutate    func(*CreateIntentParams)
		wantField string
	}{
		{name: "valid", mutate: func(p *CreateIntentParams) {}},
		{
			name:      "missing intent id",
			mutate:    func(p *CreateIntentParams) { p.IntentID = "" },
			wantField: "intent_id",
		},
		{
			name:      "missing type",
			mutate:    func(p *CreateIntentParams) { p.Type = "" },
			wantField: "type",
		},
		{
			name:      "missing side",
			mutate:    func(p *CreateIntentParams) { p.Side = "" },
			wantField: "side",
		},
		{
			name:      "zero qty",
			mutate:    func(p *CreateIntentParams) { p.Qty = 0 },
			wantField: "qty",
		},
		{
			name:      "negative qty",
			mutate:    func(p *CreateIntentParams) { p.Qty = -1 },
			wantField: "qty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := valid
			tt.mutate(&params)
			err := params.validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("validate() = %v, want nil", err)
				}
				return
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("validate() = %v, want *ValidationError", err)
			}
			if vErr.Field != tt.wantField {
				t.Fatalf("validate() field = %q, want %q", vErr.Field, tt.wantField)
			}
		})
	}
}
