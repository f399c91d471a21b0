package gamification

import (
	"fmt"

	"github.com/trezcool/gamifica/core"
)

type (
	Rank struct {
		Label string `json:"label"`
		Tier  int    `json:"tier"` // 1-based
	}

	RankProgress struct {
		Percent   int    `json:"percent"`
		Missing   int    `json:"missing"`
		NextLabel string `json:"next_label,omitempty"`
		IsMax     bool   `json:"is_max"`
	}

	// RankCalculator maps XP to display ranks over a fixed band table.
	RankCalculator struct {
		bands []core.RankBand
	}
)

func NewRankCalculator(bands []core.RankBand) (*RankCalculator, error) {
	if len(bands) == 0 || bands[0].MinXP != 0 {
		return nil, fmt.Errorf("rank bands must start at 0 XP")
	}
	for i := 1; i < len(bands); i++ {
		if bands[i].MinXP <= bands[i-1].MinXP {
			return nil, fmt.Errorf("rank band %q must be above %d XP", bands[i].Label, bands[i-1].MinXP)
		}
	}
	cp := make([]core.RankBand, len(bands))
	copy(cp, bands)
	return &RankCalculator{bands: cp}, nil
}

// tier returns the index of the highest band reached with xp.
func (rc *RankCalculator) tier(xp int) int {
	idx := 0
	for i, band := range rc.bands {
		if xp >= band.MinXP {
			idx = i
		}
	}
	return idx
}

func (rc *RankCalculator) Rank(xp int) Rank {
	idx := rc.tier(xp)
	return Rank{Label: rc.bands[idx].Label, Tier: idx + 1}
}

// ProgressToNext reports how far xp is from the next band's threshold.
// Percent is floor(xp / next threshold * 100). Past the highest band it is 100 and IsMax is set.
func (rc *RankCalculator) ProgressToNext(xp int) RankProgress {
	if xp < 0 {
		xp = 0
	}
	idx := rc.tier(xp)
	if idx == len(rc.bands)-1 {
		return RankProgress{Percent: 100, IsMax: true}
	}
	next := rc.bands[idx+1]
	return RankProgress{
		Percent:   xp * 100 / next.MinXP,
		Missing:   next.MinXP - xp,
		NextLabel: next.Label,
	}
}
