package enrichment

import (
	"context"
	"strings"
	"time"

	"enrichment-svc/vrp"
)

// merger implements the overlay semantics required when a later
// enrichment pass (e.g. a standalone municipality run) is combined with
// an earlier one: keep the base, overlay the municipality_/province_/
// distance_* keys the new pass produced, join routes by vehicle_id and
// segments by segment_index, append the new pass's errors not already
// present and truncate, and keep the merge idempotent so applying the
// same pass twice is a no-op.

// MergeSemanticLayers overlays next onto base. base may be nil (the
// caller had no prior semantic layer at all). The result always carries
// next's version/generated_at_utc since it is the newer pass.
func MergeSemanticLayers(base, next *SemanticLayer) *SemanticLayer {
	if next == nil {
		return base
	}
	if base == nil {
		return next
	}

	merged := *base
	merged.Version = next.Version
	merged.GeneratedAtUTC = next.GeneratedAtUTC
	merged.Status = mergeStatus(base.Status, next.Status)
	seen := make(map[string]bool, len(base.Errors))
	for _, e := range base.Errors {
		seen[e] = true
	}
	merged.Errors = append([]string{}, base.Errors...)
	for _, e := range next.Errors {
		if !seen[e] {
			merged.Errors = append(merged.Errors, e)
		}
	}
	merged.Errors = truncateErrors(merged.Errors)

	merged.Config.DistanceMode = next.Config.DistanceMode
	merged.Config.MunicipalityEnabled = next.Config.MunicipalityEnabled
	merged.Config.ProvinceCapitalLookup = next.Config.ProvinceCapitalLookup
	merged.Summary = make(map[string]any, len(base.Summary)+len(next.Summary))
	for k, v := range base.Summary {
		merged.Summary[k] = v
	}
	for k, v := range next.Summary {
		if strings.HasPrefix(k, "municipality_") || strings.HasPrefix(k, "province_") || strings.HasPrefix(k, "distance_") {
			merged.Summary[k] = v
		}
	}

	if next.MunicipalityAPI.Status != "" && next.MunicipalityAPI.Status != "disabled" {
		merged.MunicipalityAPI = next.MunicipalityAPI
		merged.MunicipalityAddressBook = mergeAddressBooks(base.MunicipalityAddressBook, next.MunicipalityAddressBook)
		merged.MunicipalityPhase1Points = next.MunicipalityPhase1Points
		merged.MunicipalityPostOutputNotice = next.MunicipalityPostOutputNotice
	}

	merged.Routes = mergeRoutes(base.Routes, next.Routes)

	return &merged
}

func mergeStatus(base, next string) string {
	if base == StatusFailed || next == StatusFailed {
		return StatusFailed
	}
	if base == StatusPartial || next == StatusPartial {
		return StatusPartial
	}
	return StatusOK
}

func truncateErrors(errs []string) []string {
	if len(errs) > 40 {
		return errs[:40]
	}
	return errs
}

// mergeAddressBooks keeps every resolved coordinate from both passes;
// the newer pass wins on key collision since it ran against a shared,
// still-warm address book and would simply return the same value.
func mergeAddressBooks(base, next map[string]vrp.AdminResolution) map[string]vrp.AdminResolution {
	out := make(map[string]vrp.AdminResolution, len(base)+len(next))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

// mergeRoutes joins base and next route contexts by vehicle_id, with
// next's municipality_/province_ fields overlaid on top of base's
// weather/traffic/poi fields.
func mergeRoutes(base, next []RouteSemanticContext) []RouteSemanticContext {
	byVehicle := make(map[int]RouteSemanticContext, len(base))
	order := make([]int, 0, len(base))
	for _, r := range base {
		byVehicle[r.VehicleID] = r
		order = append(order, r.VehicleID)
	}

	for _, nr := range next {
		br, ok := byVehicle[nr.VehicleID]
		if !ok {
			byVehicle[nr.VehicleID] = nr
			order = append(order, nr.VehicleID)
			continue
		}
		br.MunicipalityVector = nr.MunicipalityVector
		br.ProvinceVector = nr.ProvinceVector
		br.ProvinceCapitalVector = nr.ProvinceCapitalVector
		br.StopMunicipalityLinks = nr.StopMunicipalityLinks
		br.SegmentContext = mergeSegments(br.SegmentContext, nr.SegmentContext)
		byVehicle[nr.VehicleID] = br
	}

	out := make([]RouteSemanticContext, 0, len(order))
	for _, id := range order {
		out = append(out, byVehicle[id])
	}
	return out
}

// mergeSegments joins base and next segment contexts by segment_index,
// overlaying only the municipality_* fields next contributes.
func mergeSegments(base, next []SegmentContext) []SegmentContext {
	byIndex := make(map[int]SegmentContext, len(base))
	order := make([]int, 0, len(base))
	for _, s := range base {
		byIndex[s.SegmentIndex] = s
		order = append(order, s.SegmentIndex)
	}

	for _, ns := range next {
		bs, ok := byIndex[ns.SegmentIndex]
		if !ok {
			byIndex[ns.SegmentIndex] = ns
			order = append(order, ns.SegmentIndex)
			continue
		}
		bs.MunicipalityTrace = ns.MunicipalityTrace
		bs.MunicipalityNames = ns.MunicipalityNames
		bs.ProvinceNames = ns.ProvinceNames
		bs.ProvinceCapitalNames = ns.ProvinceCapitalNames
		byIndex[ns.SegmentIndex] = bs
	}

	out := make([]SegmentContext, 0, len(order))
	for _, idx := range order {
		out = append(out, byIndex[idx])
	}
	return out
}

// EnrichMunicipality runs the municipality-only pass against an existing
// /solve_vrp result (used by POST /enrich_municipality): HERE platform
// calls are disabled, municipality resolution is forced on regardless of
// the original request's configuration, and the result is merged onto
// the caller-supplied prior response rather than replacing it.
func (o *Orchestrator) EnrichMunicipality(ctx context.Context, req Request, priorVRPResult Response) (*Response, error) {
	municipalityOn := true
	hereOff := false
	req.MunicipalityEnrichmentEnabled = &municipalityOn
	req.UseHerePlatform = &hereOff

	eff := resolve(req)

	deadline := time.Duration(eff.RequestDeadlineSec) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	layer, err := o.safeRunSemanticLayer(runCtx, req, eff, priorVRPResult.Routes, false)
	if err != nil {
		priorVRPResult.SemanticLayerError = err.Error()
		return &priorVRPResult, nil
	}

	merged := priorVRPResult
	merged.SemanticLayer = MergeSemanticLayers(priorVRPResult.SemanticLayer, layer)
	return &merged, nil
}
