package invite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		facts Facts
		want  Decision
	}{
		{"member and onboarded", Facts{AlreadyMember: true, Onboarded: true}, AlreadyMember},
		{"member without name", Facts{AlreadyMember: true, Onboarded: false}, AlreadyMember},
		{"new and onboarded", Facts{AlreadyMember: false, Onboarded: true}, AcceptAndJoin},
		{"new without name", Facts{AlreadyMember: false, Onboarded: false}, DeferToOnboarding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.facts))
		})
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "accept_and_join", AcceptAndJoin.String())
	assert.Equal(t, "unknown", Decision(42).String())
}
