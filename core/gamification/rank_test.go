package gamification_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/tests"
)

func TestNewRankCalculator(t *testing.T) {
	tests := []struct {
		name    string
		bands   []core.RankBand
		wantErr bool
	}{
		{name: "no bands", wantErr: true},
		{name: "first band above 0", bands: []core.RankBand{{Label: "Novice", MinXP: 10}}, wantErr: true},
		{name: "not increasing", bands: []core.RankBand{{Label: "Novice"}, {Label: "Apprentice", MinXP: 100}, {Label: "Explorer", MinXP: 100}}, wantErr: true},
		{name: "single band", bands: []core.RankBand{{Label: "Novice"}}},
		{name: "valid", bands: testutil.Conf().Rank.Bands},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gamification.NewRankCalculator(tt.bands)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRankCalculator(t *testing.T) {
	rc, err := gamification.NewRankCalculator(testutil.Conf().Rank.Bands)
	require.NoError(t, err)

	tests := []struct {
		xp           int
		wantRank     gamification.Rank
		wantProgress gamification.RankProgress
	}{
		{
			xp:           0,
			wantRank:     gamification.Rank{Label: "Novice", Tier: 1},
			wantProgress: gamification.RankProgress{Percent: 0, Missing: 100, NextLabel: "Apprentice"},
		},
		{
			xp:           99,
			wantRank:     gamification.Rank{Label: "Novice", Tier: 1},
			wantProgress: gamification.RankProgress{Percent: 99, Missing: 1, NextLabel: "Apprentice"},
		},
		{
			xp:           100,
			wantRank:     gamification.Rank{Label: "Apprentice", Tier: 2},
			wantProgress: gamification.RankProgress{Percent: 40, Missing: 150, NextLabel: "Explorer"},
		},
		{
			xp:           333,
			wantRank:     gamification.Rank{Label: "Explorer", Tier: 3},
			wantProgress: gamification.RankProgress{Percent: 66, Missing: 167, NextLabel: "Specialist"},
		},
		{
			xp:           1000,
			wantRank:     gamification.Rank{Label: "Master", Tier: 5},
			wantProgress: gamification.RankProgress{Percent: 100, IsMax: true},
		},
		{
			xp:           25000,
			wantRank:     gamification.Rank{Label: "Master", Tier: 5},
			wantProgress: gamification.RankProgress{Percent: 100, IsMax: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.wantRank.Label, func(t *testing.T) {
			assert.Equal(t, tt.wantRank, rc.Rank(tt.xp))
			assert.Equal(t, tt.wantProgress, rc.ProgressToNext(tt.xp))
		})
	}
}
