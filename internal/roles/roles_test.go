package roles

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"helmhud/internal/profile"
)

func TestQualifiedThresholds(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *profile.Profile)
		want  []Key
	}{
		{
			name:  "fresh profile qualifies for nothing",
			setup: func(p *profile.Profile) {},
			want:  nil,
		},
		{
			name:  "single reaction earns initiate",
			setup: func(p *profile.Profile) { p.ReactionCount = 1 },
			want:  []Key{Initiate},
		},
		{
			name: "five unique emoji earn seeker",
			setup: func(p *profile.Profile) {
				for _, e := range []string{"🔥", "💧", "🌿", "⚡", "🌈"} {
					p.RecordEmoji(e)
				}
			},
			want: []Key{Seeker},
		},
		{
			name:  "ten reactions stack initiate and harvester",
			setup: func(p *profile.Profile) { p.ReactionCount = 10 },
			want:  []Key{Harvester, Initiate},
		},
		{
			name: "three originated chains earn mason",
			setup: func(p *profile.Profile) {
				p.ChainsOriginated["🔥💧"] = 1
				p.ChainsOriginated["🌿🌿"] = 1
				p.ChainsOriginated["⚡🌈"] = 1
			},
			want: []Key{Mason},
		},
		{
			name:  "five corrections earn guard and knight needs flags too",
			setup: func(p *profile.Profile) { p.Corrections = 5 },
			want:  []Key{Guard},
		},
		{
			name: "knight needs corrections and flags",
			setup: func(p *profile.Profile) {
				p.Corrections = 3
				p.ProblematicFlags = 2
			},
			want: []Key{Knight},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profile.New("u")
			tt.setup(p)
			if tt.want == nil {
				assert.Empty(t, QualifiedList(p))
			} else {
				assert.Equal(t, tt.want, QualifiedList(p))
			}
		})
	}
}

func TestRoleNonExclusivity(t *testing.T) {
	p := profile.New("u")
	p.Influence = 150
	p.Definitions["🔥"] = "fire"
	p.Definitions["💧"] = "water"
	p.Definitions["🌿"] = "growth"
	p.Definitions["⚡"] = "spark"
	p.Definitions["🌈"] = "promise"

	q := Qualified(p)
	assert.True(t, q[Forger])
	assert.True(t, q[Walker])
	assert.False(t, q[Knight])
}

func TestDiffGrantsOnly(t *testing.T) {
	p := profile.New("u")
	p.ReactionCount = 10

	held := map[Key]bool{Initiate: true}
	grants := Diff(Qualified(p), held)
	assert.Equal(t, []Key{Harvester}, grants)

	// Held roles outside the qualifying set are never revoked.
	held = map[Key]bool{Walker: true}
	grants = Diff(Qualified(p), held)
	assert.Equal(t, []Key{Harvester, Initiate}, grants)
}
