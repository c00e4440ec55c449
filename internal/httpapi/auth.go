package httpapi

import (
	"net/http"
	"strings"

	"github.com/MazePlayLabs/gamepass/pkg/gamepass"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const callerContextKey = "caller_account"

// callerMiddleware authenticates requests with an HS256 bearer token whose
// subject is the caller account id.
func callerMiddleware(signingKey []byte, issuer string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx.GetHeader("Authorization"))
		if token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing bearer token"))
			return
		}
		caller, err := parseCaller(token, signingKey, issuer)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid bearer token"))
			return
		}
		ctx.Set(callerContextKey, caller)
		ctx.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

func parseCaller(raw string, signingKey []byte, issuer string) (gamepass.AccountID, error) {
	claims := jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return gamepass.AccountID{}, err
	}
	return gamepass.NewAccountID(claims.Subject)
}

func callerFrom(ctx *gin.Context) (gamepass.AccountID, bool) {
	value, ok := ctx.Get(callerContextKey)
	if !ok {
		return gamepass.AccountID{}, false
	}
	caller, ok := value.(gamepass.AccountID)
	return caller, ok
}
