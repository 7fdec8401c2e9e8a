package render

import (
	"encoding/json"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// qrValidity is how long a printed challan QR stays verifiable.
const qrValidity = 2 * time.Hour

const qrImageSize = 256

// QRPayload is the structured token embedded in the challan QR code. Times are
// UTC; ExpiryTS is a JavaScript millisecond timestamp so scanning frontends
// can compare it directly against Date.now().
type QRPayload struct {
	Day         string  `json:"day"`          // "Monday"
	Date        string  `json:"date"`         // "2026-01-04"
	Time        string  `json:"time"`         // "17:06"
	ExpiredTime string  `json:"expired_time"` // "2026-01-04 19:06"
	ChallanNo   string  `json:"challan_no"`
	CarNumber   string  `json:"car_number"`
	Wheels      int     `json:"wheels"`
	CargoType   string  `json:"cargo_type"`
	Cft         float64 `json:"cft"`
	ExpiryTS    int64   `json:"expiry_ts"`
}

// NewQRPayload builds the token for a challan at the given generation time.
func NewQRPayload(now time.Time, challanNo, carNumber, cargoType string, wheels int, cft float64) QRPayload {
	now = now.UTC()
	expiry := now.Add(qrValidity)
	return QRPayload{
		Day:         now.Format("Monday"),
		Date:        now.Format("2006-01-02"),
		Time:        now.Format("15:04"),
		ExpiredTime: expiry.Format("2006-01-02 15:04"),
		ChallanNo:   challanNo,
		CarNumber:   carNumber,
		Wheels:      wheels,
		CargoType:   cargoType,
		Cft:         cft,
		ExpiryTS:    expiry.UnixMilli(),
	}
}

// EncodeQR renders the payload as a PNG QR image.
func EncodeQR(payload QRPayload) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(string(data), qrcode.Medium, qrImageSize)
}
