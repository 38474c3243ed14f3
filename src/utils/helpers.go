package utils

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

const (
	RedemptionCodePrefix = "TIX-"
	redemptionCodeLength = 8
	redemptionAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var redemptionCodePattern = regexp.MustCompile(`^TIX-[A-Z0-9]{8}$`)

var ErrInvalidPhotoData = errors.New("invalid photo data")

func IsProd() bool {
	return os.Getenv("API_ENV") == "production"
}

// GenerateRedemptionCode returns TIX- followed by 8 upper-case alphanumerics.
func GenerateRedemptionCode() (string, error) {
	var sb strings.Builder
	sb.WriteString(RedemptionCodePrefix)
	max := big.NewInt(int64(len(redemptionAlphabet)))
	for range redemptionCodeLength {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(redemptionAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

func IsRedemptionCode(code string) bool {
	return redemptionCodePattern.MatchString(code)
}

// GeneratePurchaseRef returns the display id PUR-<unix ms>-<4 digits>.
func GeneratePurchaseRef(now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PUR-%d-%04d", now.UnixMilli(), n.Int64()), nil
}

// CheckInMediaKey names the evidence object for a redemption.
func CheckInMediaKey(code string, at time.Time) string {
	return fmt.Sprintf("check-in/%s-%d.jpg", slug.Make(code), at.UnixMilli())
}

// DecodePhotoData accepts raw base64 or a data:image/...;base64, URI.
func DecodePhotoData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, nil
	}
	if strings.HasPrefix(data, "data:") {
		i := strings.Index(data, ",")
		if i < 0 || !strings.Contains(data[:i], ";base64") {
			return nil, ErrInvalidPhotoData
		}
		data = data[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPhotoData, err.Error())
	}
	return b, nil
}

// EncodePhotoData is the inverse of DecodePhotoData for jpeg payloads.
func EncodePhotoData(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(b)
}
