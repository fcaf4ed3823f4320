package natsbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgkit-backend/internal/models"
)

func TestEncodeDecode_MemberJoined(t *testing.T) {
	in := models.MemberJoined{
		V:                1,
		TS:               1700000000000,
		OrganizationID:   "org-1",
		OrganizationSlug: "acme",
		OrganizationName: "Acme",
		UserID:           "user-1",
		UserEmail:        "new@example.com",
		Role:             "admin",
		Via:              "email",
	}

	data, err := Encode(in)
	require.NoError(t, err)

	var out models.MemberJoined
	require.NoError(t, Decode(data, &out))
	assert.Equal(t, in, out)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	var out models.EmailInviteRequested
	assert.Error(t, Decode([]byte{0xc1}, &out))
}
