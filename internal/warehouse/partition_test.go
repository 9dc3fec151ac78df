package warehouse

import (
	"testing"
	"time"
)

func TestMonthPartitionName(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC), "fact_sales_y2010m12"},
		{time.Date(2011, 1, 31, 23, 59, 0, 0, time.UTC), "fact_sales_y2011m01"},
		{time.Date(2012, 9, 15, 0, 0, 0, 0, time.UTC), "fact_sales_y2012m09"},
	}

	for _, tt := range tests {
		if got := MonthPartitionName(tt.in); got != tt.want {
			t.Errorf("MonthPartitionName(%s): expected %s, got %s",
				tt.in.Format("2006-01-02"), tt.want, got)
		}
	}
}

func TestMonthStart(t *testing.T) {
	got := monthStart(time.Date(2010, 12, 15, 10, 30, 45, 0, time.UTC))
	want := time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected %s, got %s", want, got)
	}

	// First instant of a month is its own start
	got = monthStart(want)
	if !got.Equal(want) {
		t.Errorf("Expected %s, got %s", want, got)
	}
}
