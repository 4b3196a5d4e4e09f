package provider

import "testing"

func f(v float64) *float64 { return &v }

func TestWeatherSeverityScore_Rain(t *testing.T) {
	score := WeatherSeverityScore("Rain. Mild.", f(4.0), f(10.0), f(0.6))
	// 1.8*4 + 2.5*0.6 + 0 (wind below 25) + 3 (rain) = 7.2+1.5+3 = 11.7
	if score < 11.6 || score > 11.8 {
		t.Errorf("unexpected severity score: %v", score)
	}
}

func TestWeatherSeverityScore_ThunderBonus(t *testing.T) {
	calm := WeatherSeverityScore("Sunny. Mild.", nil, nil, nil)
	thunder := WeatherSeverityScore("Thunderstorms. Warm.", nil, nil, nil)
	if thunder-calm < 7.9 {
		t.Errorf("expected thunder bonus of ~8, got delta %v", thunder-calm)
	}
}

func TestWeatherSeverityScore_ClampsProbability(t *testing.T) {
	over100 := WeatherSeverityScore("Cloudy.", nil, nil, f(150))
	capped := WeatherSeverityScore("Cloudy.", nil, nil, f(1.0))
	if over100 != capped {
		t.Errorf("expected out-of-range probability to clamp the same as 1.0: %v vs %v", over100, capped)
	}
}

func TestWeatherSeverityScore_HighWindAboveThreshold(t *testing.T) {
	lowWind := WeatherSeverityScore("Cloudy.", nil, f(20), nil)
	highWind := WeatherSeverityScore("Cloudy.", nil, f(33), nil)
	if lowWind != 0 {
		t.Errorf("expected zero contribution below 25kph threshold, got %v", lowWind)
	}
	if highWind <= 0 {
		t.Errorf("expected positive contribution above threshold, got %v", highWind)
	}
}

func TestCongestionLevel(t *testing.T) {
	cases := []struct {
		jam  float64
		want string
	}{
		{1.0, "low"},
		{3.99, "low"},
		{4.0, "medium"},
		{6.99, "medium"},
		{7.0, "high"},
		{10.0, "high"},
	}
	for _, tc := range cases {
		if got := CongestionLevel(&tc.jam); got != tc.want {
			t.Errorf("jam=%v: expected %v, got %v", tc.jam, tc.want, got)
		}
	}
}

func TestCongestionLevel_Nil(t *testing.T) {
	if got := CongestionLevel(nil); got != "" {
		t.Errorf("expected empty string for nil jam factor, got %v", got)
	}
}

func TestDeriveJamFactor(t *testing.T) {
	jam := DeriveJamFactor(30, 60) // half speed -> mid congestion
	if jam < 4.9 || jam > 5.1 {
		t.Errorf("expected jam factor around 5, got %v", jam)
	}
}

func TestDeriveJamFactor_ZeroFreeFlow(t *testing.T) {
	if got := DeriveJamFactor(10, 0); got != 0 {
		t.Errorf("expected zero jam factor when free flow speed is zero, got %v", got)
	}
}
