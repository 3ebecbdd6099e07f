package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/shared"
)

// Issuer signs and validates HS256 token pairs.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      *RefreshStore
	now        func() time.Time
}

// NewIssuer constructs an Issuer. The store may be nil, in which case
// refresh tokens are stateless and cannot be revoked.
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration, store *RefreshStore) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		now:        time.Now,
	}
}

// Issue mints an access/refresh token pair for the identity.
func (i *Issuer) Issue(ctx context.Context, identity authz.Identity) (string, string, error) {
	access, err := i.sign(identity, TokenTypeAccess, i.accessTTL, "")
	if err != nil {
		return "", "", err
	}
	jti := uuid.NewString()
	refresh, err := i.sign(identity, TokenTypeRefresh, i.refreshTTL, jti)
	if err != nil {
		return "", "", err
	}
	if i.store != nil {
		if err := i.store.Save(ctx, jti, identity.UserID, i.refreshTTL); err != nil {
			return "", "", err
		}
	}
	return access, refresh, nil
}

// ParseAccess validates an access token and returns its identity.
func (i *Issuer) ParseAccess(token string) (authz.Identity, error) {
	claims, err := i.parse(token, TokenTypeAccess)
	if err != nil {
		return authz.Identity{}, err
	}
	return authz.Identity{UserID: claims.UserID, IsAdmin: claims.IsAdmin}, nil
}

// Refresh validates a refresh token and mints a new access token carrying
// the same identity.
func (i *Issuer) Refresh(ctx context.Context, token string) (string, error) {
	claims, err := i.parse(token, TokenTypeRefresh)
	if err != nil {
		return "", err
	}
	if i.store != nil {
		ok, err := i.store.Valid(ctx, claims.ID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", shared.ErrUnauthenticated
		}
	}
	return i.sign(authz.Identity{UserID: claims.UserID, IsAdmin: claims.IsAdmin}, TokenTypeAccess, i.accessTTL, "")
}

// RefreshIdentity validates a refresh token and returns its identity. Used
// by the admin-only user_roles route, which the original service guarded
// with a refresh token.
func (i *Issuer) RefreshIdentity(ctx context.Context, token string) (authz.Identity, error) {
	claims, err := i.parse(token, TokenTypeRefresh)
	if err != nil {
		return authz.Identity{}, err
	}
	if i.store != nil {
		ok, err := i.store.Valid(ctx, claims.ID)
		if err != nil {
			return authz.Identity{}, err
		}
		if !ok {
			return authz.Identity{}, shared.ErrUnauthenticated
		}
	}
	return authz.Identity{UserID: claims.UserID, IsAdmin: claims.IsAdmin}, nil
}

// RevokeRefresh invalidates a refresh token.
func (i *Issuer) RevokeRefresh(ctx context.Context, token string) error {
	claims, err := i.parse(token, TokenTypeRefresh)
	if err != nil {
		return err
	}
	if i.store == nil {
		return nil
	}
	return i.store.Revoke(ctx, claims.ID)
}

func (i *Issuer) sign(identity authz.Identity, tokenType string, ttl time.Duration, jti string) (string, error) {
	now := i.now().UTC()
	claims := Claims{
		UserID:    identity.UserID,
		IsAdmin:   identity.IsAdmin,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

func (i *Issuer) parse(token, wantType string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil || !parsed.Valid {
		return nil, errors.Join(shared.ErrUnauthenticated, err)
	}
	if claims.TokenType != wantType {
		return nil, shared.ErrUnauthenticated
	}
	return claims, nil
}
