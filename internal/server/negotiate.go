package server

import (
	"sort"
	"strconv"
	"strings"
)

type mediaRange struct {
	typ, sub string
	q        float64
	order    int
}

// parseAccept returns the ranges of an Accept header, best first. Ranges with
// q=0 are kept so they can exclude a type.
func parseAccept(header string) []mediaRange {
	var out []mediaRange
	for i, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		params := strings.Split(part, ";")
		typ, sub, ok := strings.Cut(strings.ToLower(strings.TrimSpace(params[0])), "/")
		if !ok {
			continue
		}
		r := mediaRange{typ: typ, sub: sub, q: 1, order: i}
		for _, p := range params[1:] {
			k, v, _ := strings.Cut(strings.TrimSpace(p), "=")
			if strings.EqualFold(k, "q") {
				if q, err := strconv.ParseFloat(v, 64); err == nil {
					r.q = q
				}
			}
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].q != out[j].q {
			return out[i].q > out[j].q
		}
		return specificity(out[i]) > specificity(out[j])
	})
	return out
}

func specificity(r mediaRange) int {
	switch {
	case r.typ == "*":
		return 0
	case r.sub == "*":
		return 1
	default:
		return 2
	}
}

func (r mediaRange) matches(contentType string) bool {
	typ, sub, _ := strings.Cut(strings.ToLower(contentType), "/")
	return (r.typ == "*" || r.typ == typ) && (r.sub == "*" || r.sub == sub)
}

// negotiate picks the offered content type the client prefers. An empty
// Accept header takes the first offer. It returns "" when nothing is
// acceptable.
func negotiate(accept string, offers []string) string {
	if len(offers) == 0 {
		return ""
	}
	if strings.TrimSpace(accept) == "" {
		return offers[0]
	}
	ranges := parseAccept(accept)
	best, bestQ, bestRank := "", 0.0, -1
	for _, offer := range offers {
		// The most specific matching range decides the quality of an offer.
		q, rank := 0.0, -1
		for _, r := range ranges {
			if r.matches(offer) && specificity(r) > rank {
				q, rank = r.q, specificity(r)
			}
		}
		if q > bestQ || (q == bestQ && q > 0 && rank > bestRank) {
			best, bestQ, bestRank = offer, q, rank
		}
	}
	return best
}
