package models

import (
	"testing"
	"time"
)

func TestAlert_ActiveAt(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		alert Alert
		want  bool
	}{
		{
			name: "currently active alert",
			alert: Alert{
				Onset:   now.Add(-1 * time.Hour),
				Expires: now.Add(2 * time.Hour),
			},
			want: true,
		},
		{
			name: "expired alert",
			alert: Alert{
				Onset:   now.Add(-3 * time.Hour),
				Expires: now.Add(-1 * time.Hour),
			},
			want: false,
		},
		{
			name: "future alert",
			alert: Alert{
				Onset:   now.Add(1 * time.Hour),
				Expires: now.Add(3 * time.Hour),
			},
			want: false,
		},
		{
			name:  "expires exactly now",
			alert: Alert{Expires: now},
			want:  false,
		},
		{
			name:  "onset exactly now",
			alert: Alert{Onset: now, Expires: now.Add(time.Hour)},
			want:  true,
		},
		{
			name:  "no onset, expires later",
			alert: Alert{Expires: now.Add(30 * time.Minute)},
			want:  true,
		},
		{
			name:  "no onset or expiry",
			alert: Alert{},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.alert.ActiveAt(now)
			if got != tt.want {
				t.Errorf("Alert.ActiveAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAlertSeverity_Rank(t *testing.T) {
	tests := []struct {
		severity AlertSeverity
		want     int
	}{
		{SeverityExtreme, 4},
		{SeveritySevere, 3},
		{SeverityModerate, 2},
		{SeverityMinor, 1},
		{SeverityUnknown, 0},
		{AlertSeverity("bogus"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.severity), func(t *testing.T) {
			if got := tt.severity.Rank(); got != tt.want {
				t.Errorf("Rank() = %d, want %d", got, tt.want)
			}
		})
	}
}
