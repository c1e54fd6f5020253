package pipeline

import (
	"github.com/carematch/community-recommender/internal/extract"
	"github.com/carematch/community-recommender/internal/ranking"
)

// State is the consultation lifecycle phase, logged on every transition.
type State string

const (
	StateCreated     State = "created"
	StateExtracting  State = "extracting"
	StateFiltering   State = "filtering"
	StateRankingDet  State = "ranking_det"
	StateShortlisted State = "shortlisted"
	StateRankingAI   State = "ranking_ai"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// ConsultationResult is the object handed to collaborators: the CRM writer,
// the HTTP facade, and the CLI.
type ConsultationResult struct {
	ConsultationID     string                      `json:"consultation_id,omitempty"`
	ClientInfo         *extract.ClientRequirements `json:"client_info"`
	Recommendations    []ranking.Recommendation    `json:"recommendations"`
	PerformanceMetrics *Metrics                    `json:"performance_metrics"`
	CRMPushed          bool                        `json:"crm_pushed"`
	NoMatches          bool                        `json:"no_matches,omitempty"`
}
