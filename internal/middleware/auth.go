package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"keyframes-backend/internal/config"
)

const (
	UserIDKey  = "user_id"
	SessionKey = "session"

	WorkspaceHeader = "X-Workspace-ID"
)

// Session identifies the caller of a request. It is passed explicitly to every
// service call.
type Session struct {
	UserID      uuid.UUID
	WorkspaceID uuid.UUID
}

// SessionFrom returns the session stored by AuthMiddleware.
func SessionFrom(c *gin.Context) (Session, bool) {
	v, ok := c.Get(SessionKey)
	if !ok {
		return Session{}, false
	}
	s, ok := v.(Session)
	return s, ok
}

func unauthorized(c *gin.Context, errMsg, message string) {
	body := gin.H{"error": errMsg}
	if message != "" {
		body["message"] = message
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, body)
}

// bearerToken reads the token from the Authorization header. Browsers cannot
// set headers on EventSource requests, so the access_token query parameter is
// accepted as a fallback.
func bearerToken(c *gin.Context) (string, string) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if q := c.Query("access_token"); q != "" {
			return q, ""
		}
		return "", "missing authorization header"
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", "invalid authorization header format"
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", "empty token"
	}

	// The token may arrive URL-encoded.
	if decoded, err := url.QueryUnescape(tokenString); err == nil && decoded != tokenString {
		tokenString = decoded
	}
	return tokenString, ""
}

// checkPayload decodes the claims segment before full parsing so malformed
// tokens get a specific error message.
func checkPayload(segment string) string {
	payload, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		padded := segment
		if len(padded)%4 != 0 {
			padded += strings.Repeat("=", 4-len(padded)%4)
		}
		payload, err = base64.URLEncoding.DecodeString(padded)
		if err != nil {
			return "token payload is not valid base64: " + err.Error()
		}
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "token payload is not valid JSON. The token may be truncated or not a Supabase JWT."
	}
	return ""
}

func workspaceClaim(claims jwt.MapClaims) string {
	if ws, ok := claims["workspace_id"].(string); ok {
		return ws
	}
	if meta, ok := claims["app_metadata"].(map[string]interface{}); ok {
		if ws, ok := meta["workspace_id"].(string); ok {
			return ws
		}
	}
	return ""
}

// WorkspaceMembers reports whether a user belongs to a workspace.
// supabase.DatabaseClient satisfies it.
type WorkspaceMembers interface {
	IsWorkspaceMember(ctx context.Context, workspaceID, userID uuid.UUID) (bool, error)
}

// AuthMiddleware validates the Supabase JWT and stores the caller's Session.
// The workspace comes from the signed claims. A WorkspaceHeader naming another
// workspace is only honored when members confirms the user belongs to it.
func AuthMiddleware(cfg *config.Config, members WorkspaceMembers) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, problem := bearerToken(c)
		if problem != "" {
			unauthorized(c, problem, "")
			return
		}

		tokenParts := strings.Split(tokenString, ".")
		if len(tokenParts) != 3 {
			unauthorized(c, "invalid token format", "JWT token must have 3 parts separated by dots")
			return
		}
		if msg := checkPayload(tokenParts[1]); msg != "" {
			unauthorized(c, "invalid token payload", msg)
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			if cfg.SupabaseJWTSecret == "" {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.SupabaseJWTSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			var errorMsg string
			switch {
			case strings.Contains(err.Error(), "signature is invalid"):
				errorMsg = "token signature is invalid - check JWT secret"
			case strings.Contains(err.Error(), "token is expired"):
				errorMsg = "token has expired"
			case strings.Contains(err.Error(), "signing method"):
				errorMsg = "token must use HS256 algorithm"
			default:
				errorMsg = err.Error()
			}
			unauthorized(c, "invalid token", errorMsg)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			unauthorized(c, "invalid token claims", "")
			return
		}

		sub, ok := claims["sub"].(string)
		if !ok {
			unauthorized(c, "missing user id in token", "")
			return
		}
		userID, err := uuid.Parse(sub)
		if err != nil {
			unauthorized(c, "invalid user id in token", "")
			return
		}

		session := Session{UserID: userID}
		if ws := workspaceClaim(claims); ws != "" {
			workspaceID, err := uuid.Parse(ws)
			if err != nil {
				unauthorized(c, "invalid workspace id in token", "")
				return
			}
			session.WorkspaceID = workspaceID
		}

		if ws := c.GetHeader(WorkspaceHeader); ws != "" {
			workspaceID, err := uuid.Parse(ws)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid workspace id"})
				return
			}
			if workspaceID != session.WorkspaceID {
				if members == nil {
					c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this workspace"})
					return
				}
				member, err := members.IsWorkspaceMember(c.Request.Context(), workspaceID, userID)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to verify workspace membership"})
					return
				}
				if !member {
					c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this workspace"})
					return
				}
			}
			session.WorkspaceID = workspaceID
		}

		c.Set(UserIDKey, sub)
		c.Set(SessionKey, session)
		c.Next()
	}
}
