package transfer

import "github.com/golang-jwt/jwt/v5"

// CustomClaims scopes an operator token to one brand.
type CustomClaims struct {
	BrandID int64 `json:"brand_id"`
	jwt.RegisteredClaims
}
