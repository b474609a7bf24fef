package model

// Phase is the race session state.
type Phase string

// Session phases, in the order a race normally moves through them.
const (
	PhaseIdle                  Phase = "idle"
	PhaseTrackSelected         Phase = "track_selected"
	PhaseGridReady             Phase = "grid_ready"
	PhaseRunning               Phase = "running"
	PhaseFinished              Phase = "finished"
	PhaseAwaitingRestartAnswer Phase = "awaiting_restart_answer"
	PhaseClosed                Phase = "closed"
)

// Weather is the race-day condition selected with the track.
type Weather string

// Weather conditions.
const (
	WeatherSunny     Weather = "sunny"
	WeatherCloudy    Weather = "cloudy"
	WeatherLightRain Weather = "light_rain"
	WeatherHeavyRain Weather = "heavy_rain"
)

// Weathers lists the conditions in menu order.
var Weathers = []Weather{WeatherSunny, WeatherCloudy, WeatherLightRain, WeatherHeavyRain}

// Variance scales outcome randomness.
func (w Weather) Variance() float64 {
	switch w {
	case WeatherCloudy:
		return 1.1
	case WeatherLightRain:
		return 1.5
	case WeatherHeavyRain:
		return 2.0
	default:
		return 1.0
	}
}

// Impact scales raw performance; wet conditions slow everyone down.
func (w Weather) Impact() float64 {
	switch w {
	case WeatherCloudy:
		return 0.98
	case WeatherLightRain:
		return 0.85
	case WeatherHeavyRain:
		return 0.72
	default:
		return 1.0
	}
}

// IsWet reports rain conditions.
func (w Weather) IsWet() bool {
	return w == WeatherLightRain || w == WeatherHeavyRain
}

// Valid reports whether w is a known condition.
func (w Weather) Valid() bool {
	for _, k := range Weathers {
		if k == w {
			return true
		}
	}
	return false
}
