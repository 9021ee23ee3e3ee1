package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/psds-microservice/ticket-tracker/internal/apierror"
	"github.com/psds-microservice/ticket-tracker/internal/model"
)

const principalKey = "principal"

// Identity headers used when no JWT secret is configured (trusted gateway mode).
const (
	HeaderUserID         = "X-User-Id"
	HeaderUserRole       = "X-User-Role"
	HeaderOrganizationID = "X-Organization-Id"
)

// Claims is the bearer token payload: sub is the user id.
type Claims struct {
	Role           string `json:"role"`
	OrganizationID string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// Principal resolves the caller for every request and aborts with 401 when
// there is none. With a non-empty secret only HS256 bearer tokens are
// accepted; otherwise identity comes from the gateway headers.
func Principal(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			p   model.Principal
			err error
		)
		if secret != "" {
			p, err = fromBearer(c.GetHeader("Authorization"), []byte(secret))
		} else {
			p, err = fromHeaders(c)
		}
		if err != nil {
			apierror.Unauthorized(c, err.Error())
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by Principal.
func PrincipalFrom(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}

func fromHeaders(c *gin.Context) (model.Principal, error) {
	id := strings.TrimSpace(c.GetHeader(HeaderUserID))
	if id == "" {
		return model.Principal{}, errors.New("missing " + HeaderUserID + " header")
	}
	role, ok := model.ParseRole(c.GetHeader(HeaderUserRole))
	if !ok {
		return model.Principal{}, errors.New("missing or unknown " + HeaderUserRole + " header")
	}
	return model.Principal{
		ID:             id,
		Role:           role,
		OrganizationID: strings.TrimSpace(c.GetHeader(HeaderOrganizationID)),
	}, nil
}

func fromBearer(header string, secret []byte) (model.Principal, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return model.Principal{}, errors.New("missing bearer token")
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return model.Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return model.Principal{}, errors.New("token has no subject")
	}
	role, ok := model.ParseRole(claims.Role)
	if !ok {
		return model.Principal{}, errors.New("token has unknown role")
	}
	return model.Principal{ID: claims.Subject, Role: role, OrganizationID: claims.OrganizationID}, nil
}
