package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"enrichment-svc/pkg/geo"
	"enrichment-svc/pkg/timeutil"
	"enrichment-svc/vrp"
)

// Emulator is a deterministic stand-in for the live HERE platform client.
// Every call derives its randomness from SHA-256(seed|call-specific
// material), so identical inputs against the same seed reproduce
// byte-identical results across processes.
type Emulator struct {
	cfg Config

	mu             sync.Mutex
	weatherCache   map[string]WeatherResult
	trafficCache   map[string]vrp.Observation
	forecastCache  map[string]vrp.ForecastWindow
	stats          Stats
}

// NewEmulator builds a deterministic provider seeded by cfg.EmulatorSeed.
func NewEmulator(cfg Config) *Emulator {
	cfg = NewConfig(cfg)
	return &Emulator{
		cfg:           cfg,
		weatherCache:  make(map[string]WeatherResult),
		trafficCache:  make(map[string]vrp.Observation),
		forecastCache: make(map[string]vrp.ForecastWindow),
		stats:         Stats{Emulated: true},
	}
}

// rng derives a *rand.Rand from the emulator seed plus arbitrary
// call-specific parts, matching the original's hashlib.sha256(seed|material)
// derivation.
func (e *Emulator) rng(parts ...string) *rand.Rand {
	material := strings.Join(parts, "|")
	digest := sha256.Sum256([]byte(e.cfg.EmulatorSeed + "|" + material))
	hexDigest := hex.EncodeToString(digest[:])
	seed, _ := strconv.ParseUint(hexDigest[:16], 16, 64)
	return rand.New(rand.NewSource(int64(seed)))
}

type simulatedWeather struct {
	temperatureC             float64
	precipitationMM          *float64
	precipitationProbability float64
	windKPH                  float64
	condition                string
}

func comfortPhrase(tempC float64) string {
	switch {
	case tempC <= 2:
		return "Cold."
	case tempC <= 8:
		return "Chilly."
	case tempC <= 16:
		return "Cool."
	case tempC <= 24:
		return "Mild."
	case tempC <= 31:
		return "Warm."
	default:
		return "Hot."
	}
}

func conditionPhrase(cloudiness float64, precipMM *float64, thunderProb float64) string {
	switch {
	case thunderProb >= 0.85:
		return "Thunderstorms."
	case precipMM != nil && *precipMM >= 7.0:
		return "Heavy rain."
	case precipMM != nil && *precipMM >= 1.0:
		return "Rain."
	case cloudiness < 0.15:
		return "Sunny."
	case cloudiness < 0.30:
		return "Mostly clear."
	case cloudiness < 0.50:
		return "Partly cloudy."
	case cloudiness < 0.70:
		return "Scattered clouds."
	case cloudiness < 0.88:
		return "Cloudy."
	default:
		return "Overcast."
	}
}

// simulateWeatherAt reproduces the seasonal/diurnal weather model: a
// sinusoidal seasonal baseline adjusted for latitude and time of day,
// cloudiness driving a gamma-distributed rain trigger, and wind scaling
// with cloudiness.
func (e *Emulator) simulateWeatherAt(lat, lng float64, t time.Time) simulatedWeather {
	hour := float64(t.Hour())
	doy := float64(t.YearDay())
	rng := e.rng("weather", fmt.Sprintf("%.3f", lat), fmt.Sprintf("%.3f", lng), t.Format("2006010215"))

	seasonal := 14.0 + 9.0*math.Sin(2.0*math.Pi*(doy-170)/365.0)
	latAdjust := -math.Abs(lat-40.0) * 0.22
	diurnal := 5.8 * math.Sin(2.0*math.Pi*(hour-14)/24.0)
	tempC := seasonal + latAdjust + diurnal + uniform(rng, -1.8, 1.8)

	cloudiness := clamp01(0.45 + 0.30*math.Sin(2.0*math.Pi*(hour+3)/24.0) + uniform(rng, -0.25, 0.25))
	rainTrigger := math.Max(0, cloudiness-0.50) + uniform(rng, -0.15, 0.25)
	thunderProb := clamp01(rainTrigger - 0.55)

	var precipMM *float64
	if rainTrigger > 0.15 {
		v := math.Max(0, gammaVariate(rng, 1.3, 1.4)*rainTrigger)
		v = math.Round(v*100) / 100
		if v != 0 {
			precipMM = &v
		}
	}

	precipProb := math.Max(0, math.Min(1, rainTrigger))
	windKPH := math.Max(0, 4.0+cloudiness*16.0+uniform(rng, -3.0, 10.0))
	conditionMain := conditionPhrase(cloudiness, precipMM, thunderProb)
	condition := strings.TrimSpace(conditionMain + " " + comfortPhrase(tempC))

	return simulatedWeather{
		temperatureC:             math.Round(tempC*10) / 10,
		precipitationMM:          precipMM,
		precipitationProbability: round2(precipProb),
		windKPH:                  round2(windKPH),
		condition:                condition,
	}
}

// FetchWeather returns a realtime observation plus a window_hours-long
// forecast, each slot scored by WeatherSeverityScore.
func (e *Emulator) FetchWeather(ctx context.Context, coord vrp.Coordinate, referenceTime time.Time) (WeatherResult, error) {
	if referenceTime.IsZero() {
		referenceTime = time.Now()
	}
	reference := toUTCHour(referenceTime)
	key := fmt.Sprintf("%.4f:%.4f:%s", coord.Lat, coord.Lng, reference.Format(time.RFC3339))

	e.mu.Lock()
	if cached, ok := e.weatherCache[key]; ok {
		e.stats.CacheHits++
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	e.statsIncr(func(s *Stats) { s.WeatherQueries++; s.HTTPRequests++ })

	observed := e.simulateWeatherAt(coord.Lat, coord.Lng, reference)
	observedAt := timeutil.ToISOZ(reference)
	realtime := vrp.Observation{
		Kind:         vrp.ObservationWeather,
		Coordinate:   coord,
		Lat:          coord.Lat,
		Lng:          coord.Lng,
		Status:       vrp.StatusObserved,
		Condition:    observed.condition,
		TemperatureC: ptrOrNil(observed.temperatureC),
		PrecipMM:     observed.precipitationMM,
		WindKPH:      ptrOrNil(observed.windKPH),
		ObservedAt:   &observedAt,
		ProviderName: "here_weather_v3",
	}

	slots := make([]vrp.ForecastSlot, 0, e.cfg.ForecastWindowHours)
	for i := 1; i <= e.cfg.ForecastWindowHours; i++ {
		slotStart := reference.Add(time.Duration(i) * time.Hour)
		slotEnd := slotStart.Add(time.Hour)
		sim := e.simulateWeatherAt(coord.Lat, coord.Lng, slotStart)
		severity := WeatherSeverityScore(sim.condition, sim.precipitationMM, &sim.windKPH, &sim.precipitationProbability)
		slots = append(slots, vrp.ForecastSlot{
			StartUTC:  timeutil.ToISOZ(slotStart),
			EndUTC:    timeutil.ToISOZ(slotEnd),
			Score:     severity,
			Condition: sim.condition,
		})
	}

	forecast := worstWeatherWindow(e.cfg, slots)

	result := WeatherResult{Realtime: realtime, Forecast24h: forecast}

	e.mu.Lock()
	e.weatherCache[key] = result
	e.mu.Unlock()
	return result, nil
}

func worstWeatherWindow(cfg Config, slots []vrp.ForecastSlot) vrp.ForecastWindow {
	if len(slots) == 0 {
		return vrp.ForecastWindow{WindowHours: cfg.ForecastWindowHours, IntervalMin: cfg.ForecastIntervalMin}
	}
	worst := slots[0].Score
	for _, s := range slots {
		if s.Score > worst {
			worst = s.Score
		}
	}
	worstSlots := make([]vrp.ForecastSlot, 0, 6)
	for _, s := range slots {
		if math.Abs(s.Score-worst) <= 0.05 {
			worstSlots = append(worstSlots, s)
			if len(worstSlots) == 6 {
				break
			}
		}
	}
	score := round3(worst)
	return vrp.ForecastWindow{
		WindowHours:    cfg.ForecastWindowHours,
		IntervalMin:    cfg.ForecastIntervalMin,
		Slots:          slots,
		WorstCaseScore: &score,
		WorstSlots:     worstSlots,
	}
}

// FetchTrafficStatus returns a rush-hour-shaped jam factor for coord,
// with a 30% chance of returning a sparse (null speed/congestion)
// reading, mirroring real sparse flow coverage.
func (e *Emulator) FetchTrafficStatus(ctx context.Context, coord vrp.Coordinate) (vrp.Observation, error) {
	now := time.Now().UTC().Truncate(time.Minute)
	bucket := now.Add(-time.Duration(now.Minute()%5) * time.Minute)
	key := fmt.Sprintf("%.4f:%.4f:%d:%s", coord.Lat, coord.Lng, e.cfg.TrafficRadiusM, bucket.Format(time.RFC3339))

	e.mu.Lock()
	if cached, ok := e.trafficCache[key]; ok {
		e.stats.CacheHits++
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	e.statsIncr(func(s *Stats) { s.TrafficQueries++; s.HTTPRequests += 2 })

	rng := e.rng("traffic", fmt.Sprintf("%.3f", coord.Lat), fmt.Sprintf("%.3f", coord.Lng),
		strconv.Itoa(e.cfg.TrafficRadiusM), bucket.Format("200601021504"))

	hour := float64(bucket.Hour())
	rushWave := (math.Exp(-math.Pow((hour-8.0)/2.2, 2)) + math.Exp(-math.Pow((hour-17.5)/2.8, 2))) * 4.8
	randomWave := uniform(rng, 0, 2.6)
	jamFactor := math.Max(0, math.Min(10, round2(rushWave+randomWave)))

	freeFlowSpeed := uniform(rng, 22.0, 95.0)
	realizedRatio := math.Max(0.18, 1.0-(jamFactor/11.5)+uniform(rng, -0.06, 0.04))
	speed := freeFlowSpeed * realizedRatio

	sparse := rng.Float64() < 0.30

	obs := vrp.Observation{
		Kind:         vrp.ObservationTraffic,
		Coordinate:   coord,
		Lat:          coord.Lat,
		Lng:          coord.Lng,
		Status:       vrp.StatusObserved,
		ObservedAt:   ptrStr(timeutil.ToISOZ(bucket)),
		ProviderName: "here_traffic_v7",
	}

	if !sparse {
		obs.Congestion = CongestionLevel(&jamFactor)
		obs.SpeedKPH = ptrOrNil(speed)
		obs.FreeFlowKPH = ptrOrNil(freeFlowSpeed)
		obs.JamFactor = ptrOrNil(jamFactor)
	}

	e.mu.Lock()
	e.trafficCache[key] = obs
	e.mu.Unlock()
	return obs, nil
}

// FetchTrafficForecast simulates a window of route-duration ratios from
// origin to destination, rush/weekend modulated.
func (e *Emulator) FetchTrafficForecast(ctx context.Context, origin, destination vrp.Coordinate, referenceTime time.Time) (vrp.ForecastWindow, error) {
	if referenceTime.IsZero() {
		referenceTime = time.Now()
	}
	reference := toUTCHour(referenceTime)
	key := fmt.Sprintf("%.5f:%.5f:%.5f:%.5f:%s:%d", origin.Lat, origin.Lng, destination.Lat, destination.Lng,
		reference.Format(time.RFC3339), e.cfg.ForecastIntervalMin)

	e.mu.Lock()
	if cached, ok := e.forecastCache[key]; ok {
		e.stats.CacheHits++
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	e.statsIncr(func(s *Stats) { s.RoutingQueries++; s.HTTPRequests++ })

	distanceKM := math.Max(1.0, geo.HaversineKM(geo.Point(origin), geo.Point(destination))*1.18)
	baseSpeed := math.Max(22.0, 76.0-(distanceKM*0.04))
	baseDurationSec := int((distanceKM / baseSpeed) * 3600.0)

	var slots []vrp.ForecastSlot
	end := reference.Add(time.Duration(e.cfg.ForecastWindowHours) * time.Hour)
	for current := reference; !current.After(end); current = current.Add(time.Duration(e.cfg.ForecastIntervalMin) * time.Minute) {
		rng := e.rng("routing", fmt.Sprintf("%.3f", origin.Lat), fmt.Sprintf("%.3f", origin.Lng),
			fmt.Sprintf("%.3f", destination.Lat), fmt.Sprintf("%.3f", destination.Lng), current.Format("2006010215"))
		hour := float64(current.Hour())
		rush := math.Exp(-math.Pow((hour-8.0)/2.1, 2)) + math.Exp(-math.Pow((hour-17.0)/2.6, 2))
		weekend := 1.0
		if wd := current.Weekday(); wd == time.Saturday || wd == time.Sunday {
			weekend = 0.75
		}
		ratio := 1.0 + (0.03+(0.09*rush*weekend))*uniform(rng, 0.55, 1.45)
		ratio = math.Max(1.0, round4(ratio))

		durationSec := int(math.Round(float64(baseDurationSec) * ratio))
		delaySec := durationSec - baseDurationSec
		if delaySec < 0 {
			delaySec = 0
		}
		slots = append(slots, vrp.ForecastSlot{
			StartUTC:   timeutil.ToISOZ(current),
			DelayRatio: ratio,
			DelaySec:   float64(delaySec),
		})
	}

	forecast := worstTrafficWindow(e.cfg, slots)

	e.mu.Lock()
	e.forecastCache[key] = forecast
	e.mu.Unlock()
	return forecast, nil
}

func worstTrafficWindow(cfg Config, slots []vrp.ForecastSlot) vrp.ForecastWindow {
	if len(slots) == 0 {
		return vrp.ForecastWindow{WindowHours: cfg.ForecastWindowHours, IntervalMin: cfg.ForecastIntervalMin}
	}
	worstRatio := slots[0].DelayRatio
	worstDelay := slots[0].DelaySec
	for _, s := range slots {
		if s.DelayRatio > worstRatio {
			worstRatio = s.DelayRatio
		}
		if s.DelaySec > worstDelay {
			worstDelay = s.DelaySec
		}
	}
	worstSlots := make([]vrp.ForecastSlot, 0, 6)
	for _, s := range slots {
		if math.Abs(s.DelayRatio-worstRatio) <= 0.01 {
			worstSlots = append(worstSlots, s)
			if len(worstSlots) == 6 {
				break
			}
		}
	}
	ratio := round4(worstRatio)
	delay := worstDelay
	return vrp.ForecastWindow{
		WindowHours:         cfg.ForecastWindowHours,
		IntervalMin:         cfg.ForecastIntervalMin,
		Slots:               slots,
		WorstCaseDelayRatio: &ratio,
		WorstCaseDelaySec:   &delay,
		WorstSlots:          worstSlots,
	}
}

// Stats returns a snapshot of this emulator's call counters.
func (e *Emulator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Emulator) statsIncr(fn func(*Stats)) {
	e.mu.Lock()
	fn(&e.stats)
	e.mu.Unlock()
}

func ptrOrNil(v float64) *float64 {
	return &v
}

func ptrStr(s string) *string {
	return &s
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// uniform returns a float uniformly distributed in [lo, hi), matching
// Python's random.uniform semantics closely enough for simulation
// purposes.
func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// gammaVariate approximates Python's random.gammavariate(alpha, beta)
// using the Marsaglia-Tsang method for alpha >= 1.
func gammaVariate(rng *rand.Rand, alpha, beta float64) float64 {
	if alpha < 1 {
		u := rng.Float64()
		return gammaVariate(rng, alpha+1, beta) * math.Pow(u, 1.0/alpha)
	}
	d := alpha - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1.0 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*(x*x*x*x) {
			return d * v * beta
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v * beta
		}
	}
}
