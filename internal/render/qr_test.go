package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQRPayload(t *testing.T) {
	now := time.Date(2026, 1, 4, 17, 6, 30, 0, time.UTC)

	payload := NewQRPayload(now, "ECH-20260104-00007", "WB 12 AB 3456", "Sand", 12, 450.5)

	assert.Equal(t, "Sunday", payload.Day)
	assert.Equal(t, "2026-01-04", payload.Date)
	assert.Equal(t, "17:06", payload.Time)
	assert.Equal(t, "2026-01-04 19:06", payload.ExpiredTime)
	assert.Equal(t, "ECH-20260104-00007", payload.ChallanNo)
	assert.Equal(t, "WB 12 AB 3456", payload.CarNumber)
	assert.Equal(t, 12, payload.Wheels)
	assert.Equal(t, "Sand", payload.CargoType)
	assert.Equal(t, 450.5, payload.Cft)
	assert.Equal(t, now.Add(2*time.Hour).UnixMilli(), payload.ExpiryTS)
}

func TestNewQRPayloadConvertsToUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2026, 1, 4, 22, 36, 0, 0, ist) // 17:06 UTC

	payload := NewQRPayload(now, "ECH-20260104-00001", "WB 1", "Sand", 6, 100)

	assert.Equal(t, "2026-01-04", payload.Date)
	assert.Equal(t, "17:06", payload.Time)
}

func TestEncodeQR(t *testing.T) {
	payload := NewQRPayload(time.Now(), "ECH-20260104-00001", "WB 12 AB 3456", "Sand", 10, 320)

	png, err := EncodeQR(payload)
	require.NoError(t, err)
	require.NotEmpty(t, png)

	// PNG magic bytes
	assert.True(t, bytes.HasPrefix(png, []byte{0x89, 'P', 'N', 'G'}))
}

func TestRenderChallanHTML(t *testing.T) {
	html, err := RenderChallanHTML(ChallanData{
		ChallanNo:     "ECH-20260104-00042",
		DateTime:      "04-01-2026 17:06",
		CarNumber:     "WB 12 AB 3456",
		Wheels:        12,
		Location:      "Riverbank North",
		Cft:           450.5,
		PoliceStation: "Central PS",
		Consignee:     "R. Das",
		Token:         "a1b2c3d4",
	}, []byte("fake-png"))
	require.NoError(t, err)

	assert.Contains(t, html, "ECH-20260104-00042")
	assert.Contains(t, html, "WB 12 AB 3456")
	assert.Contains(t, html, "data:image/png;base64,")
}
