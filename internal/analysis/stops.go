package analysis

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/route109-tracker/internal/mbta"
)

type patternInfo struct {
	id          string
	name        string
	directionID int
	typicality  int
	sortOrder   int
	stops       []mbta.Resource
}

// RouteStops prints the ordered stop list for both directions of a route,
// flagging the stops whose names match the given targets. The stop list is
// fetched from the most typical route pattern per direction, with fallbacks
// when the pattern stop endpoints return nothing.
func RouteStops(ctx context.Context, client *mbta.Client, routeID string, targetNames []string, w io.Writer) error {
	patterns, err := client.RoutePatterns(ctx, routeID)
	if err != nil {
		return fmt.Errorf("fetching route patterns: %w", err)
	}

	direction0 := selectPattern(patterns, 0)
	direction1 := selectPattern(patterns, 1)
	if direction0 == nil || direction1 == nil {
		return fmt.Errorf("could not find route patterns for both directions of route %s", routeID)
	}

	for _, pattern := range []*patternInfo{direction0, direction1} {
		stops, err := client.StopsForPattern(ctx, pattern.id)
		if err != nil || len(stops) == 0 {
			stops, err = client.StopsFiltered(ctx, pattern.id)
		}
		if err != nil || len(stops) == 0 {
			stops, err = client.StopsForDirection(ctx, routeID, pattern.directionID)
			if err != nil {
				return fmt.Errorf("fetching stops for direction %d: %w", pattern.directionID, err)
			}
		}
		sortStops(stops)
		pattern.stops = stops
	}

	fmt.Fprintf(w, "Route %s stop sequences (from route_patterns)\n", routeID)

	for _, labeled := range []struct {
		label   string
		pattern *patternInfo
	}{
		{"Direction 0", direction0},
		{"Direction 1", direction1},
	} {
		fmt.Fprintf(w, "\n%s: %s\n", labeled.label, labeled.pattern.name)
		missingSeq := false
		for idx, stop := range labeled.pattern.stops {
			name := ""
			if stop.Attributes.Name != nil {
				name = *stop.Attributes.Name
			}
			if seq := stop.Attributes.Sequence; seq != nil {
				fmt.Fprintf(w, "  %2d. %s - %s\n", *seq, stop.ID, name)
			} else {
				missingSeq = true
				fmt.Fprintf(w, "  %2d? %s - %s\n", idx+1, stop.ID, name)
			}
		}
		if missingSeq {
			fmt.Fprintf(w, "  Note: '?' indicates missing sequence from API; index order used instead.\n")
		}

		for _, target := range targetNames {
			matches := matchStops(labeled.pattern.stops, target)
			if len(matches) > 0 {
				fmt.Fprintf(w, "  %s: %s\n", target, strings.Join(matches, ", "))
			} else {
				fmt.Fprintf(w, "  %s: not found\n", target)
			}
		}
	}

	return nil
}

// selectPattern picks the most typical pattern for a direction.
func selectPattern(patterns []mbta.Resource, directionID int) *patternInfo {
	var candidates []*patternInfo
	for _, pattern := range patterns {
		if !directionMatches(pattern, directionID) {
			continue
		}
		info := &patternInfo{id: pattern.ID, directionID: directionID, typicality: 99, sortOrder: 99}
		if pattern.Attributes.Name != nil {
			info.name = *pattern.Attributes.Name
		}
		if pattern.Attributes.Typicality != nil {
			info.typicality = *pattern.Attributes.Typicality
		}
		if pattern.Attributes.SortOrder != nil {
			info.sortOrder = *pattern.Attributes.SortOrder
		}
		candidates = append(candidates, info)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].typicality != candidates[j].typicality {
			return candidates[i].typicality < candidates[j].typicality
		}
		return candidates[i].sortOrder < candidates[j].sortOrder
	})
	return candidates[0]
}

func sortStops(stops []mbta.Resource) {
	sort.SliceStable(stops, func(i, j int) bool {
		si, sj := stops[i].Attributes.Sequence, stops[j].Attributes.Sequence
		switch {
		case si == nil && sj == nil:
			return false
		case si == nil:
			return false
		case sj == nil:
			return true
		default:
			return *si < *sj
		}
	})
}

func matchStops(stops []mbta.Resource, target string) []string {
	var ids []string
	lowered := strings.ToLower(target)
	for _, stop := range stops {
		if stop.Attributes.Name == nil {
			continue
		}
		if strings.Contains(strings.ToLower(*stop.Attributes.Name), lowered) {
			ids = append(ids, stop.ID)
		}
	}
	return ids
}
