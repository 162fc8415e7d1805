package advisor

import "github.com/PabloGalante/carbon-advisor/internal/domain"

// Normalize turns the raw grounding chunks of one answer into citations.
//
// A web source wins over a maps source when a chunk carries both. Chunks
// without a usable source are dropped. Input order is kept and duplicate
// URIs are not merged. The result is never nil.
func Normalize(chunks []domain.GroundingChunk) []domain.Citation {
	out := make([]domain.Citation, 0, len(chunks))
	for _, c := range chunks {
		cit, ok := citationFor(c)
		if !ok {
			continue
		}
		out = append(out, cit)
	}
	return out
}

func citationFor(c domain.GroundingChunk) (domain.Citation, bool) {
	switch {
	case c.Web != nil && c.Web.URI != "":
		return domain.Citation{Kind: domain.SourceWeb, URI: c.Web.URI, Title: c.Web.Title}, true
	case c.Maps != nil && c.Maps.URI != "":
		return domain.Citation{Kind: domain.SourceMap, URI: c.Maps.URI, Title: c.Maps.Title}, true
	default:
		return domain.Citation{}, false
	}
}
