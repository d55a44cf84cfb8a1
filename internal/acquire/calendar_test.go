package acquire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaySelector(t *testing.T) {
	dec14 := time.Date(2024, 12, 14, 0, 0, 0, 0, time.UTC)
	jan14 := time.Date(2025, 1, 14, 0, 0, 0, 0, time.UTC)

	twoMonths := `<html><body>
<div class="month"><div class="title"><span>December</span> <span>2024</span></div>
  <div class="title">December 2024</div>
  <span>13</span><span>14</span>
</div>
<div class="month"><div class="title">January 2025</div>
  <span>14</span><span>15</span>
</div></body></html>`

	tests := []struct {
		name    string
		html    string
		date    time.Time
		want    string
		wantErr error
	}{
		{
			name: "single match",
			html: `<div><span>13</span><span>14</span></div>`,
			date: dec14,
			want: "//span[text()='14']",
		},
		{
			name:    "single match in another month",
			html:    `<div><h4>January 2025</h4><span>14</span></div>`,
			date:    dec14,
			wantErr: ErrAmbiguousDate,
		},
		{
			name:    "single match under two headings",
			html:    `<div><h4>December 2024</h4><h4>January 2025</h4><span>14</span></div>`,
			date:    dec14,
			wantErr: ErrAmbiguousDate,
		},
		{
			name: "single match in target month",
			html: `<div><h4>December 2024</h4><span>14</span></div>`,
			date: dec14,
			want: "//span[text()='14']",
		},
		{
			name: "nested text does not count",
			html: `<div><span><b>14</b></span><span>14</span></div>`,
			date: dec14,
			want: "//span[text()='14']",
		},
		{
			name: "first month of two",
			html: `<div class="m"><h4>December 2024</h4><span>14</span></div>
			       <div class="m"><h4>January 2025</h4><span>14</span></div>`,
			date: dec14,
			want: "(//span[text()='14'])[1]",
		},
		{
			name: "second month of two",
			html: `<div class="m"><h4>December 2024</h4><span>14</span></div>
			       <div class="m"><h4>January 2025</h4><span>14</span></div>`,
			date: jan14,
			want: "(//span[text()='14'])[2]",
		},
		{
			name: "abbreviated headings",
			html: `<div class="m"><p>Dec 2024</p><span>14</span></div>
			       <div class="m"><p>Jan 2025</p><span>14</span></div>`,
			date: jan14,
			want: "(//span[text()='14'])[2]",
		},
		{
			name: "split heading elements are skipped",
			html: twoMonths,
			date: jan14,
			want: "(//span[text()='14'])[2]",
		},
		{
			name:    "no headings",
			html:    `<div><span>14</span></div><div><span>14</span></div>`,
			date:    dec14,
			wantErr: ErrAmbiguousDate,
		},
		{
			name: "target month not shown",
			html: `<div class="m"><h4>October 2024</h4><span>14</span></div>
			       <div class="m"><h4>November 2024</h4><span>14</span></div>`,
			date:    dec14,
			wantErr: ErrAmbiguousDate,
		},
		{
			name:    "day missing",
			html:    `<div><span>13</span></div>`,
			date:    dec14,
			wantErr: ErrDayNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := DaySelector(tt.html, tt.date)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Value)
		})
	}
}
