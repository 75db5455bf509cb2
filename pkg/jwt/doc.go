// Package jwt signs and verifies HS256 access tokens on top of
// github.com/golang-jwt/jwt/v5 and carries parsed claims through the
// request context.
//
//	svc, _ := jwt.New([]byte(secret), jwt.WithIssuer("crmkit"))
//	token, _ := svc.Generate(&claims)
//
//	r.Use(jwt.MiddlewareWithConfig(jwt.MiddlewareConfig{
//	    Service:   svc,
//	    NewClaims: func() jwt.Claims { return &MyClaims{} },
//	}))
//
// Parse accepts only HS256; any other alg header is rejected before the key
// is consulted.
package jwt
