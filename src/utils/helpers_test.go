package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRedemptionCode(t *testing.T) {
	seen := map[string]bool{}
	for range 200 {
		code, err := GenerateRedemptionCode()
		require.NoError(t, err)
		assert.True(t, IsRedemptionCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestIsRedemptionCode(t *testing.T) {
	assert.True(t, IsRedemptionCode("TIX-AB12CD34"))
	assert.False(t, IsRedemptionCode("TIX-ab12cd34"))
	assert.False(t, IsRedemptionCode("PUR-AB12CD34"))
	assert.False(t, IsRedemptionCode("TIX-AB12CD3"))
}

func TestGeneratePurchaseRef(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	ref, err := GeneratePurchaseRef(now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "PUR-1700000000123-"))
	assert.Len(t, ref, len("PUR-1700000000123-0000"))
}

func TestCheckInMediaKey(t *testing.T) {
	key := CheckInMediaKey("TIX-AB12CD34", time.UnixMilli(42))
	assert.Equal(t, "check-in/tix-ab12cd34-42.jpg", key)
}

func TestDecodePhotoData(t *testing.T) {
	b, err := DecodePhotoData("data:image/jpeg;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)

	b, err = DecodePhotoData("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)

	b, err = DecodePhotoData("")
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = DecodePhotoData("data:image/jpeg,aGVsbG8=")
	assert.ErrorIs(t, err, ErrInvalidPhotoData)

	_, err = DecodePhotoData("not base64!!")
	assert.ErrorIs(t, err, ErrInvalidPhotoData)

	assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", EncodePhotoData([]byte("hello")))
}
