package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRankBands(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []RankBand
		wantErr bool
	}{
		{
			name: "default",
			in:   "Novice:0,Apprentice:100, Explorer : 250 ,",
			want: []RankBand{{Label: "Novice"}, {Label: "Apprentice", MinXP: 100}, {Label: "Explorer", MinXP: 250}},
		},
		{name: "empty", in: "", wantErr: true},
		{name: "missing colon", in: "Novice", wantErr: true},
		{name: "not a number", in: "Novice:zero", wantErr: true},
		{name: "not starting at 0", in: "Novice:10,Apprentice:100", wantErr: true},
		{name: "not increasing", in: "Novice:0,Apprentice:100,Explorer:50", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRankBands(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Go basics", CleanString("  Go basics \n"))
	assert.Equal(t, "hero", CleanString(" HERO ", true))
}

func TestDBOrdering_String(t *testing.T) {
	assert.Equal(t, "username ASC", DBOrdering{Field: "username", Ascending: true}.String())
	assert.Equal(t, "xp DESC", DBOrdering{Field: "xp"}.String())
}
