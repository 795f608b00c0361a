package flows

import (
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func gjwtDate(t time.Time) *gjwt.NumericDate {
	return gjwt.NewNumericDate(t)
}
