package payos

import (
	"net/url"
	"testing"
)

func TestParseReturnParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		want    ReturnParams
		wantErr bool
	}{
		{
			name:  "successful payment redirect",
			query: "code=00&id=pl_abc&cancel=false&status=PAID&orderCode=1700000000123&amount=360000&success=true",
			want: ReturnParams{
				Code:      "00",
				ID:        "pl_abc",
				Cancel:    false,
				Status:    LinkStatusPaid,
				OrderCode: 1700000000123,
				Amount:    360000,
				Success:   true,
			},
		},
		{
			name:  "user cancelled at gateway",
			query: "code=00&id=pl_abc&cancel=true&status=CANCELLED&orderCode=42&amount=199000&success=false",
			want: ReturnParams{
				Code:      "00",
				ID:        "pl_abc",
				Cancel:    true,
				Status:    LinkStatusCancelled,
				OrderCode: 42,
				Amount:    199000,
			},
		},
		{
			name:  "lowercase status is normalized",
			query: "status=paid&orderCode=42&amount=1000",
			want: ReturnParams{
				Status:    LinkStatusPaid,
				OrderCode: 42,
				Amount:    1000,
			},
		},
		{
			name:  "absent numeric fields parse to zero",
			query: "cancel=true",
			want:  ReturnParams{Cancel: true},
		},
		{
			name:    "malformed order code",
			query:   "orderCode=not-a-number&amount=1000",
			wantErr: true,
		},
		{
			name:    "malformed amount",
			query:   "orderCode=42&amount=12.50",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			values, err := url.ParseQuery(tc.query)
			if err != nil {
				t.Fatalf("bad test query: %v", err)
			}

			got, err := ParseReturnParams(values.Get)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
