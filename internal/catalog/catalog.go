package catalog

// Station holds the display metadata for one streamable source.
// The playback core only ever consumes the ID; the rest exists so the
// control surface can render status.
type Station struct {
	ID    string
	Title string
	Genre string
}

// stations maps source ids to their display metadata.
var stations = map[string]Station{
	"groove-salad": {
		ID:    "groove-salad",
		Title: "Groove Salad",
		Genre: "ambient",
	},
	"drone-zone": {
		ID:    "drone-zone",
		Title: "Drone Zone",
		Genre: "ambient",
	},
	"beat-lounge": {
		ID:    "beat-lounge",
		Title: "Beat Lounge",
		Genre: "lofi hip hop",
	},
	"midnight-jazz": {
		ID:    "midnight-jazz",
		Title: "Midnight Jazz",
		Genre: "jazz",
	},
	"neon-drive": {
		ID:    "neon-drive",
		Title: "Neon Drive",
		Genre: "synthwave",
	},
	"deep-signal": {
		ID:    "deep-signal",
		Title: "Deep Signal",
		Genre: "electronic",
	},
}

// Lookup returns the station metadata for a source id.
func Lookup(id string) (Station, bool) {
	s, ok := stations[id]
	return s, ok
}

// IDs returns all known source ids.
func IDs() []string {
	ids := make([]string, 0, len(stations))
	for id := range stations {
		ids = append(ids, id)
	}
	return ids
}

// IsKnown checks if a source id exists in the catalog.
func IsKnown(id string) bool {
	_, ok := stations[id]
	return ok
}
