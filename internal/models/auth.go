package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor is whoever issued a request: an authenticated user or an anonymous visitor.
type Actor struct {
	UserID        string
	Name          string
	Email         string
	Authenticated bool
}

// AnonymousActor returns the actor for requests without a valid token.
func AnonymousActor() Actor {
	return Actor{}
}

// ActorFromClaims builds an authenticated actor.
func ActorFromClaims(claims *JWTClaims) Actor {
	if claims == nil || claims.UserID == "" {
		return AnonymousActor()
	}
	return Actor{
		UserID:        claims.UserID,
		Name:          claims.FullName,
		Email:         claims.Email,
		Authenticated: true,
	}
}
