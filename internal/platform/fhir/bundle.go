package fhir

import (
	"encoding/json"
	"fmt"
	"time"
)

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// SearchBundleParams describes the page a searchset bundle represents.
// QueryStr holds the search parameters without _count/_offset.
type SearchBundleParams struct {
	BaseURL  string
	QueryStr string
	Count    int
	Offset   int
	Total    int
}

// NewSearchBundle wraps resources in a searchset Bundle with self/next/previous
// links. Each resource must carry an "id"; fullUrl is BaseURL/id.
func NewSearchBundle(resources []interface{}, params SearchBundleParams) (*Bundle, error) {
	now := time.Now().UTC()
	entries := make([]BundleEntry, 0, len(resources))
	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal bundle entry: %w", err)
		}
		var head struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(raw, &head)
		entry := BundleEntry{Resource: raw, Search: &BundleSearch{Mode: "match"}}
		if head.ID != "" {
			entry.FullURL = params.BaseURL + "/" + head.ID
		}
		entries = append(entries, entry)
	}

	total := params.Total
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         pageLinks(params),
		Entry:        entries,
	}, nil
}

func pageLinks(p SearchBundleParams) []BundleLink {
	page := func(offset int) string {
		qs := p.QueryStr
		if qs != "" {
			qs += "&"
		}
		return fmt.Sprintf("%s?%s_count=%d&_offset=%d", p.BaseURL, qs, p.Count, offset)
	}

	links := []BundleLink{{Relation: "self", URL: page(p.Offset)}}
	if p.Count > 0 && p.Offset+p.Count < p.Total {
		links = append(links, BundleLink{Relation: "next", URL: page(p.Offset + p.Count)})
	}
	if p.Offset > 0 {
		prev := p.Offset - p.Count
		if prev < 0 {
			prev = 0
		}
		links = append(links, BundleLink{Relation: "previous", URL: page(prev)})
	}
	return links
}
