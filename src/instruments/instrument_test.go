package instruments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/stocktax/src/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code string
		want models.AssetType
	}{
		{"US.AAPL", models.AssetStock},
		{"HK.00700", models.AssetStock},
		{"US.TSLA240419C200000", models.AssetOption},
		{"US.TSLA240419P180000", models.AssetOption},
		{"HK.TCH240530C320000", models.AssetOption},
		{"TSLA240419C200000", models.AssetOption}, // bare form, no market prefix
		{"US.BRK.B", models.AssetStock},
		{"", models.AssetStock},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.code))
		})
	}
}

func TestMultiplier(t *testing.T) {
	assert.Equal(t, int64(1), Multiplier("US.AAPL"))
	assert.Equal(t, int64(100), Multiplier("US.TSLA240419C200000"))
}

func TestParseOptionCode(t *testing.T) {
	c, err := ParseOptionCode("US.TSLA240419C200000")
	require.NoError(t, err)
	assert.Equal(t, "US", c.Market)
	assert.Equal(t, "TSLA", c.Underlying)
	assert.Equal(t, time.Date(2024, time.April, 19, 0, 0, 0, 0, time.UTC), c.Expiry)
	assert.Equal(t, "C", c.Right)
	assert.Equal(t, "200000", c.Strike)
}

func TestParseOptionCode_BareForm(t *testing.T) {
	c, err := ParseOptionCode("TSLA240419P180000")
	require.NoError(t, err)
	assert.Empty(t, c.Market)
	assert.Equal(t, "TSLA", c.Underlying)
	assert.Equal(t, "P", c.Right)
}

func TestParseOptionCode_Invalid(t *testing.T) {
	_, err := ParseOptionCode("US.AAPL")
	assert.Error(t, err)

	// Month 13 is not a calendar date even though the shape matches.
	_, err = ParseOptionCode("US.TSLA241319C200000")
	assert.Error(t, err)
}

func TestExpirationDate(t *testing.T) {
	expiry, err := ExpirationDate("US.TSLA240419C200000")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.April, 19, 0, 0, 0, 0, time.UTC), expiry)

	_, err = ExpirationDate("US.AAPL")
	assert.Error(t, err)
}

func TestIsExpired(t *testing.T) {
	expiry := time.Date(2024, time.April, 19, 0, 0, 0, 0, time.UTC)

	assert.False(t, IsExpired(expiry, time.Date(2024, time.April, 19, 23, 0, 0, 0, time.UTC)),
		"a contract is live on its expiry day")
	assert.False(t, IsExpired(expiry, time.Date(2024, time.April, 18, 0, 0, 0, 0, time.UTC)))
	assert.True(t, IsExpired(expiry, time.Date(2024, time.April, 20, 0, 0, 0, 0, time.UTC)))
}
