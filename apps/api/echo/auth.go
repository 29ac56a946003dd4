package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/etda/school/core"
	"github.com/etda/school/core/user"
)

const (
	tokenContextKey = "userToken"
	userContextKey  = "user"
	audience        = "School"
	revokedPrefix   = "auth:revoked:"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
}

// NewClaims builds the claims of usr. origIat carries the first issue time over token refreshes.
func NewClaims(conf *core.Config, usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	oriat := now.Unix()
	if len(origIat) > 0 {
		oriat = origIat[0]
	}
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			Issuer:    conf.AppName,
			Subject:   usr.ID,
			Audience:  audience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: oriat,
		Name:         usr.Name,
		Email:        usr.Email,
		Role:         usr.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

type authenticator struct {
	conf   *core.Config
	cache  core.Cache
	usrSvc user.Service
	jwt    echo.MiddlewareFunc
}

func newAuthenticator(conf *core.Config, cache core.Cache, usrSvc user.Service) *authenticator {
	return &authenticator{
		conf:   conf,
		cache:  cache,
		usrSvc: usrSvc,
		jwt: middleware.JWTWithConfig(middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    tokenContextKey,
			Claims:        new(Claims),
		}),
	}
}

// middleware validates the bearer token and rejects the revoked ones.
func (a *authenticator) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return a.jwt(func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			revoked, err := a.isRevoked(ctx, claims)
			if err != nil {
				return errors.Wrap(err, "checking token revocation")
			}
			if revoked {
				return errTokenRevoked
			}
			return next(ctx)
		})
	}
}

// portalMiddleware only lets users of role through.
// Others are answered with the dashboard they belong to.
func (a *authenticator) portalMiddleware(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := a.contextUser(ctx)
			if err != nil {
				return err
			}
			if usr.Role != role {
				return ctx.JSON(http.StatusForbidden, echo.Map{
					"error":    core.ErrPermissionDenied.Error(),
					"redirect": usr.DashboardPath(),
				})
			}
			return next(ctx)
		}
	}
}

func (a *authenticator) authenticate(ctx echo.Context, email, pwd string) (user.User, error) {
	usr, err := a.usrSvc.GetByEmail(ctx.Request().Context(), email)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	usr, err = a.usrSvc.SetLastLogin(ctx.Request().Context(), usr)
	return usr, errors.Wrap(err, "setting last login")
}

func (a *authenticator) issue(usr user.User, origIat ...int64) (string, error) {
	return GenerateToken(a.conf, NewClaims(a.conf, usr, origIat...))
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// contextUser loads the user behind the token once per request.
// Deleted users are unauthorized and deactivated ones forbidden.
func (a *authenticator) contextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(userContextKey).(user.User); ok {
		return usr, nil
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := a.usrSvc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	ctx.Set(userContextKey, usr)
	return usr, nil
}

func (a *authenticator) refresh(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	usr, err := a.contextUser(ctx)
	if err != nil {
		return "", err
	}

	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}
	token, err := a.issue(usr, claims.OrigIssuedAt)
	if err != nil {
		return "", errors.Wrap(err, "generating token")
	}
	// the refreshed token replaces the current one
	return token, a.revoke(ctx, claims)
}

// revoke blacklists the token id until the token expires.
func (a *authenticator) revoke(ctx echo.Context, claims Claims) error {
	if claims.Id == "" {
		return nil
	}
	ttl := time.Until(time.Unix(claims.ExpiresAt, 0))
	if ttl <= 0 {
		return nil
	}
	err := a.cache.Set(ctx.Request().Context(), revokedPrefix+claims.Id, []byte(claims.Subject), ttl)
	return errors.Wrap(err, "revoking token")
}

func (a *authenticator) isRevoked(ctx echo.Context, claims Claims) (bool, error) {
	if claims.Id == "" {
		return false, nil
	}
	_, err := a.cache.Get(ctx.Request().Context(), revokedPrefix+claims.Id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, core.ErrCacheMiss):
		return false, nil
	default:
		return false, err
	}
}
