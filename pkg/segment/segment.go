// Package segment builds per-route Segments from consecutive stops and
// matches caller-supplied and provider-fetched weather/traffic
// observations onto them.
package segment

import (
	"context"
	"math"
	"time"

	"enrichment-svc/pkg/geo"
	"enrichment-svc/pkg/provider"
	"enrichment-svc/pkg/timeutil"
	"enrichment-svc/vrp"
)

// Build emits len(stops)-1 segments for one route. avgSpeedKPH drives the
// eta_min_from_departure field; departureTime is nil when the caller gave
// no departure_time, in which case every segment's eta_utc stays nil.
func Build(stops []vrp.Stop, avgSpeedKPH float64, departureTime *time.Time) []vrp.Segment {
	if len(stops) < 2 {
		return nil
	}
	if avgSpeedKPH <= 0 {
		avgSpeedKPH = 1
	}

	segments := make([]vrp.Segment, 0, len(stops)-1)
	cumulative := 0.0

	for i := 0; i < len(stops)-1; i++ {
		start := stops[i].Coord()
		end := stops[i+1].Coord()
		dist := geo.HaversineKM(geo.Point(start), geo.Point(end))
		cumulative += dist

		etaMin := cumulative / avgSpeedKPH * 60.0

		var etaUTC *string
		if departureTime != nil {
			t := departureTime.Add(time.Duration(etaMin * float64(time.Minute)))
			s := timeutil.ToISOZ(t)
			etaUTC = &s
		}

		mid := geo.Midpoint(geo.Point(start), geo.Point(end))

		segments = append(segments, vrp.Segment{
			SegmentIndex:        i,
			FromStopID:          stops[i].ID,
			ToStopID:            stops[i+1].ID,
			DistanceKM:          dist,
			CumulativeKM:        cumulative,
			ETAMinFromDeparture: etaMin,
			ETAUTC:              etaUTC,
			Midpoint:            vrp.Coordinate(mid),
			Start:               start,
			End:                 end,
		})
	}

	return segments
}

// matchScore implements s(obs, segment) = haversine_km(obs, midpoint) +
// |obs.time - segment.eta| / 90min. A missing timestamp on either side
// drops the time term.
func matchScore(obs vrp.Observation, seg vrp.Segment) float64 {
	distKM := geo.HaversineKM(geo.Point(obs.Coordinate), geo.Point(seg.Midpoint))

	timeTerm := 0.0
	if obs.ObservedAt != nil && seg.ETAUTC != nil {
		obsTime, obsOK := timeutil.ParseUTC(*obs.ObservedAt)
		etaTime, etaOK := timeutil.ParseUTC(*seg.ETAUTC)
		if obsOK && etaOK {
			deltaMin := math.Abs(obsTime.Sub(etaTime).Minutes())
			timeTerm = deltaMin / 90.0
		}
	}

	return distKM + timeTerm
}

// MatchCallerObservations attaches, per segment and per kind, the
// lowest-scoring caller-supplied observation to that segment. Returns a
// map keyed by segment index, each holding at most one weather and one
// traffic observation.
func MatchCallerObservations(segments []vrp.Segment, observations []vrp.Observation) map[int]map[vrp.ObservationKind]vrp.Observation {
	result := make(map[int]map[vrp.ObservationKind]vrp.Observation, len(segments))

	for _, seg := range segments {
		best := make(map[vrp.ObservationKind]vrp.Observation)
		bestScore := make(map[vrp.ObservationKind]float64)

		for _, obs := range observations {
			score := matchScore(obs, seg)
			if current, ok := bestScore[obs.Kind]; !ok || score < current {
				bestScore[obs.Kind] = score
				best[obs.Kind] = obs
			}
		}

		if len(best) > 0 {
			result[seg.SegmentIndex] = best
		}
	}

	return result
}

// ReferenceTime resolves the provider lookup time for a segment per the
// priority eta_utc > departure_time > now.
func ReferenceTime(seg vrp.Segment, departureTime *time.Time, now time.Time) time.Time {
	if seg.ETAUTC != nil {
		if t, ok := timeutil.ParseUTC(*seg.ETAUTC); ok {
			return t
		}
	}
	if departureTime != nil {
		return *departureTime
	}
	return now
}

// Enrichment is the resolved weather/traffic pair attached to one
// segment after caller observations, provider data, and forecasts have
// all been reconciled.
type Enrichment struct {
	Weather  vrp.Observation
	Traffic  vrp.Observation
	Forecast vrp.ForecastWindow
}

// AttachProvider fills in weather/traffic for one segment, applying the
// supersede rule: a provider reading overwrites a caller-supplied
// observation when the provider's status is "observed" or the caller's
// status is not; forecasts always overwrite whatever forecast window was
// previously set.
func AttachProvider(ctx context.Context, p provider.TrafficWeatherProvider, seg vrp.Segment, callerMatch map[vrp.ObservationKind]vrp.Observation, departureTime *time.Time, now time.Time) Enrichment {
	var enrichment Enrichment
	if w, ok := callerMatch[vrp.ObservationWeather]; ok {
		enrichment.Weather = w
	}
	if t, ok := callerMatch[vrp.ObservationTraffic]; ok {
		enrichment.Traffic = t
	}

	refTime := ReferenceTime(seg, departureTime, now)

	if p != nil {
		if weatherResult, err := p.FetchWeather(ctx, seg.Midpoint, refTime); err == nil {
			if weatherResult.Realtime.Status == vrp.StatusObserved || enrichment.Weather.Status != vrp.StatusObserved {
				enrichment.Weather = weatherResult.Realtime
			}
			enrichment.Forecast = weatherResult.Forecast24h
		}

		if trafficObs, err := p.FetchTrafficStatus(ctx, seg.Midpoint); err == nil {
			if trafficObs.Status == vrp.StatusObserved || enrichment.Traffic.Status != vrp.StatusObserved {
				enrichment.Traffic = trafficObs
			}
		}
	}

	return enrichment
}
