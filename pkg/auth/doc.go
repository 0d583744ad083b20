// Package auth implements the Gatehouse authentication engine.
//
// # Overview
//
// The engine proves who a caller is and carries that proof across requests.
// Exactly one strategy is active per deployment:
//
//	session            - server-side session, id in the signed "sid" cookie
//	jwt                - access/refresh pair in the response body, bearer header
//	federated-session  - session strategy plus identity provider login
//	federated-jwt      - token pair in httpOnly cookies plus provider login
//
// # Key Components
//
// Hasher: bcrypt with a bounded number of concurrent hashes
//
//	hasher, err := auth.NewHasher(auth.DefaultHashCost, 0)
//	hash, err := hasher.Hash(ctx, "correct horse")
//	ok := hasher.Verify(ctx, "correct horse", hash)
//
// TokenIssuer: HS256 tokens with distinct access and refresh secrets. The
// "typ" claim keeps one kind of token from being accepted as the other.
//
//	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
//		AccessSecret:  accessSecret,
//		RefreshSecret: refreshSecret,
//	})
//
// Ledger: exactly one refresh token per identity is honored. Login replaces
// it, Logout clears it and Rotate checks it with a compare-and-swap.
//
//	pair, err := ledger.Login(ctx, identity)
//	rotation, err := ledger.Rotate(ctx, pair.RefreshToken)
//
// SessionManager: the session store is the only source of truth
//
//	session, err := sessions.CreateSession(ctx, identity.ID)
//	identityID, err := sessions.ResolveSession(ctx, session.ID)
//
// Federator: maps (provider, subject) onto a local identity, creating one on
// first login. Concurrent first logins converge on a single identity.
//
// # Resolution Results
//
// Strategy.Resolve never returns a bare error. Callers switch on the result:
//
//	switch res := strategy.Resolve(r).(type) {
//	case auth.Authenticated:
//		// res.Identity
//	case auth.Rejected:
//		// 401, res.Reason
//	case auth.SystemError:
//		// 500 or 503, res.Err
//	}
//
// # Errors
//
// Every error the engine returns carries a Kind. The HTTP layer maps kinds to
// status codes; callers use IsKind or errors.Is with the exported sentinels.
package auth
