package model

import (
	"github.com/google/uuid"
)

// Bundle is a container for a set of resources, returned by searches.
type Bundle struct {
	ResourceTypeName string        `json:"resourceType"`
	ID               string        `json:"id,omitempty"`
	BundleType       string        `json:"type"`
	Total            int           `json:"total"`
	Entry            []BundleEntry `json:"entry,omitempty"`
}

// BundleEntry is one resource within a bundle.
type BundleEntry struct {
	FullURL  string              `json:"fullUrl,omitempty"`
	Resource Resource            `json:"resource,omitempty"`
	Search   *BundleEntrySearch  `json:"search,omitempty"`
}

// BundleEntrySearch describes how an entry relates to the search.
type BundleEntrySearch struct {
	Mode string `json:"mode,omitempty"`
}

// NewSearchSet builds a searchset bundle from the given resources. Entries
// carry a fullUrl relative to baseURL when one is provided.
func NewSearchSet(baseURL string, resources []Resource) *Bundle {
	b := &Bundle{
		ResourceTypeName: "Bundle",
		ID:               uuid.NewString(),
		BundleType:       "searchset",
		Total:            len(resources),
	}
	for _, r := range resources {
		entry := BundleEntry{
			Resource: r,
			Search:   &BundleEntrySearch{Mode: "match"},
		}
		if baseURL != "" && r.GetID() != "" {
			entry.FullURL = baseURL + "/" + r.ResourceType() + "/" + r.GetID()
		}
		b.Entry = append(b.Entry, entry)
	}
	return b
}
