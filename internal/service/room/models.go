package room

type Role string

const (
	RoleHost   Role = "HOST"
	RoleViewer Role = "VIEWER"
)

// Snapshot is the state shipped to a late joiner. All three fields are read
// under the same room lock so a join racing a mutation never sees a torn mix
// of old source and new position.
type Snapshot struct {
	SourceLocation *string `json:"source_location"`
	CurrentTime    float64 `json:"current_time"`
	IsPlaying      bool    `json:"is_playing"`
}

type ChatMessage struct {
	Text string `json:"text"`
	Role Role   `json:"role"`
	Time int64  `json:"time"`
}

type SourceState struct {
	Location string `json:"location"`
	Label    string `json:"label"`
}
