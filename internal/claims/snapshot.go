package claims

import (
	"sort"

	"claimstack/pkg/domain"
)

// Snapshot is a serializable copy of the full store state, used by the
// persistence drivers to hydrate and persist.
type Snapshot struct {
	Claims      []domain.Claim      `json:"claims"`
	Items       []domain.ClaimItem  `json:"items"`
	Attachments []domain.Attachment `json:"attachments"`
}

// ExportState returns a deterministic snapshot of committed state.
func (s *MemoryStore) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Claims:      make([]domain.Claim, 0, len(s.state.claims)),
		Items:       make([]domain.ClaimItem, 0, len(s.state.items)),
		Attachments: make([]domain.Attachment, 0, len(s.state.attachments)),
	}
	for _, c := range s.state.claims {
		snap.Claims = append(snap.Claims, domain.CloneClaim(c))
	}
	for _, it := range s.state.items {
		snap.Items = append(snap.Items, domain.CloneItem(it))
	}
	for _, a := range s.state.attachments {
		snap.Attachments = append(snap.Attachments, domain.CloneAttachment(a))
	}
	sort.Slice(snap.Claims, func(i, j int) bool { return snap.Claims[i].ID < snap.Claims[j].ID })
	sort.Slice(snap.Items, func(i, j int) bool { return snap.Items[i].ID < snap.Items[j].ID })
	sort.Slice(snap.Attachments, func(i, j int) bool { return snap.Attachments[i].ID < snap.Attachments[j].ID })
	return snap
}

// ImportState replaces committed state with the snapshot contents.
func (s *MemoryStore) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := newState()
	for _, c := range snap.Claims {
		st.claims[c.ID] = domain.CloneClaim(c)
	}
	for _, it := range snap.Items {
		st.items[it.ID] = domain.CloneItem(it)
	}
	for _, a := range snap.Attachments {
		st.attachments[a.ID] = domain.CloneAttachment(a)
	}
	s.state = st
}
