package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erpai/verification-be/internal/api/storage"
)

func TestJobCursorRoundTrip(t *testing.T) {
	original := &storage.JobCursor{ID: 42, JobNo: "J100"}

	encoded, err := EncodeJobCursor(original)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded, err := DecodeJobCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.JobNo, decoded.JobNo)
}

func TestDecodeJobCursorEmpty(t *testing.T) {
	cursor, err := DecodeJobCursor("")
	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecodeJobCursorInvalid(t *testing.T) {
	tests := []struct {
		name   string
		cursor string
	}{
		{name: "not base64", cursor: "%%%"},
		{name: "missing separator", cursor: "bm9zZXBhcmF0b3I="}, // "noseparator"
		{name: "non numeric id", cursor: "YWJjfEoxMDA="},        // "abc|J100"
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJobCursor(tt.cursor)
			assert.Error(t, err)
		})
	}
}
