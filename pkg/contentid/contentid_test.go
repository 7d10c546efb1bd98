package contentid

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{"canonical", "EP0001-CUSA00745_00-RS00ABCDEF123456", true},
		{"hyphens only", strings.Repeat("a-", 18), true},
		{"one short", "EP0001-CUSA00745_00-RS00ABCDEF12345", false},
		{"one long", "EP0001-CUSA00745_00-RS00ABCDEF1234567", false},
		{"space", "EP0001-CUSA00745_00-RS00ABCDEF 23456", false},
		{"non ascii", "EP0001-CUSA00745_00-RS00ABCDEF1234é", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.id)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	t.Run("Position", func(t *testing.T) {
		err := Validate("EP0001-CUSA00745_00-RS00ABCDEF!23456")
		var e *Error
		require.True(t, errors.As(err, &e))
		assert.Equal(t, 30, e.Pos)
	})
}

func TestFromName(t *testing.T) {
	id, err := FromName("EP0001", "CUSA00745", "song_p.psarc")
	require.NoError(t, err)
	assert.Len(t, id, Length)
	assert.True(t, strings.HasPrefix(id, "EP0001-CUSA00745_00-RS00"))

	again, err := FromName("EP0001", "CUSA00745", "song_p.psarc")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	other, err := FromName("EP0001", "CUSA00745", "other_p.psarc")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	_, err = FromName("EP01", "CUSA00745", "x")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestFromAppID(t *testing.T) {
	id, err := FromAppID("UP0001", "CUSA00745", 221680)
	require.NoError(t, err)
	assert.Equal(t, "UP0001-CUSA00745_00-APPID22168000000", id)

	id, err = FromAppID("UP0001", "CUSA00745", 12345678901234567890)
	require.NoError(t, err)
	assert.Equal(t, "UP0001-CUSA00745_00-APPID12345678901", id)
}

func TestParts(t *testing.T) {
	region, title, label, err := Parts("EP0001-CUSA00745_00-RS00ABCDEF123456")
	require.NoError(t, err)
	assert.Equal(t, "EP0001", region)
	assert.Equal(t, "CUSA00745", title)
	assert.Equal(t, "RS00ABCDEF123456", label)

	_, _, _, err = Parts(strings.Repeat("A", Length))
	assert.ErrorIs(t, err, ErrInvalid)
}
