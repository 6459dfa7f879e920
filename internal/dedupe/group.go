package dedupe

import "fmt"

// Group is a cluster of messages judged duplicates of one primary message.
type Group struct {
	PrimaryID string    `json:"primary_id"`
	MemberIDs []string  `json:"member_ids"`
	Scores    []float64 `json:"scores"`
	Subject   string    `json:"subject"`
}

// Count is the number of messages in the group, primary included.
func (g Group) Count() int {
	return len(g.MemberIDs) + 1
}

// Validate checks the group invariants.
func (g Group) Validate() error {
	if g.PrimaryID == "" {
		return fmt.Errorf("primary_id is required")
	}
	if len(g.MemberIDs) == 0 {
		return fmt.Errorf("group %s has no members", g.PrimaryID)
	}
	if len(g.MemberIDs) != len(g.Scores) {
		return fmt.Errorf("group %s has %d members but %d scores", g.PrimaryID, len(g.MemberIDs), len(g.Scores))
	}
	for i, s := range g.Scores {
		if s < 0 || s > 1 {
			return fmt.Errorf("group %s score %d out of range: %v", g.PrimaryID, i, s)
		}
	}
	return nil
}

// Map renders the group as a plain mapping for notifiers.
func (g Group) Map() map[string]any {
	members := make([]string, len(g.MemberIDs))
	copy(members, g.MemberIDs)
	scores := make([]float64, len(g.Scores))
	copy(scores, g.Scores)

	return map[string]any{
		"primary_id": g.PrimaryID,
		"member_ids": members,
		"scores":     scores,
		"subject":    g.Subject,
		"count":      g.Count(),
	}
}
