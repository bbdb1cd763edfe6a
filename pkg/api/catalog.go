package api

type (
	// CatalogIndex lists the sequence entries a target's catalog provides,
	// in mount order
	CatalogIndex struct {
		Plugin    TargetID          `json:"plugin,omitempty"`
		Sequences []CatalogEntryRef `json:"sequences"`
	}

	// CatalogEntryRef points at a sequence document and the handler module
	// that implements its beats
	CatalogEntryRef struct {
		File     string `json:"file"`
		Handlers string `json:"handlersPath"`
	}

	// PluginManifest declares the plugins a host knows about
	PluginManifest struct {
		Version string       `json:"version,omitempty"`
		Plugins []PluginDecl `json:"plugins"`
	}

	// PluginDecl declares a single plugin. Runtime, when present, names an
	// exported registration function that is called with the executor
	PluginDecl struct {
		Runtime *RuntimeDecl `json:"runtime,omitempty"`
		ID      TargetID     `json:"id"`
	}

	// RuntimeDecl locates a plugin's runtime registration export
	RuntimeDecl struct {
		Module string `json:"module"`
		Export string `json:"export"`
	}
)

// IDs returns the declared plugin ids in manifest order, without duplicates
func (m *PluginManifest) IDs() []TargetID {
	if m == nil {
		return nil
	}
	seen := map[TargetID]struct{}{}
	res := make([]TargetID, 0, len(m.Plugins))
	for _, p := range m.Plugins {
		if p.ID == "" {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		res = append(res, p.ID)
	}
	return res
}
