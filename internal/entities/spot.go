package entities

// Spot is a single addressable parking space. Attributes are static except
// for operator edits through the admin API.
type Spot struct {
	ID            string `json:"id"`
	Zone          string `json:"zone"`
	EVCapable     bool   `json:"ev_capable"`
	Accessible    bool   `json:"accessible"`
	ProximityRank int    `json:"proximity_rank"`
}

// Constraints filter the candidate spots for a booking request.
type Constraints struct {
	Zone           string   `json:"zone"`
	NeedEV         bool     `json:"need_ev"`
	NeedAccessible bool     `json:"need_accessible"`
	SpotIDs        []string `json:"spot_ids,omitempty"`
}

// Matches reports whether a spot satisfies the constraints. The locator
// applies the same filter in SQL; this is the in-process check used when
// matching waitlist entries against a freed spot.
func (c Constraints) Matches(s Spot) bool {
	if c.Zone != "" && c.Zone != s.Zone {
		return false
	}
	if c.NeedEV && !s.EVCapable {
		return false
	}
	if c.NeedAccessible && !s.Accessible {
		return false
	}
	if len(c.SpotIDs) > 0 {
		for _, id := range c.SpotIDs {
			if id == s.ID {
				return true
			}
		}
		return false
	}
	return true
}
