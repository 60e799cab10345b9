package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEqualSplits(t *testing.T) {
	tests := []struct {
		name    string
		total   string
		n       int
		want    []string
		wantErr bool
	}{
		{
			name:  "even division",
			total: "90.00",
			n:     3,
			want:  []string{"30", "30", "30"},
		},
		{
			name:  "remainder cents go to first shares",
			total: "100.00",
			n:     3,
			want:  []string{"33.34", "33.33", "33.33"},
		},
		{
			name:  "two remainder cents",
			total: "0.05",
			n:     3,
			want:  []string{"0.02", "0.02", "0.01"},
		},
		{
			name:  "single participant",
			total: "42.37",
			n:     1,
			want:  []string{"42.37"},
		},
		{
			name:  "zero total",
			total: "0",
			n:     4,
			want:  []string{"0", "0", "0", "0"},
		},
		{
			name:    "no participants",
			total:   "10",
			n:       0,
			wantErr: true,
		},
		{
			name:    "negative total",
			total:   "-10",
			n:       2,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := EqualSplits(money(tt.total), tt.n)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, shares, tt.n)

			sum := decimal.Zero
			for i, share := range shares {
				require.True(t, share.Equal(money(tt.want[i])),
					"share %d = %s, want %s", i, share, tt.want[i])
				sum = sum.Add(share)
			}
			require.True(t, sum.Equal(money(tt.total)), "shares must sum to the total exactly")
		})
	}
}
