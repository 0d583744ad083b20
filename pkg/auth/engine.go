package auth

import (
	"time"

	"github.com/platinummonkey/gatehouse/pkg/observability"
)

// EngineConfig selects the strategy and tunes the engine's components
type EngineConfig struct {
	Strategy        StrategyName
	Tokens          TokenConfig
	Rotation        RotationPolicy
	HashCost        int
	HashConcurrency int
	SessionTTL      time.Duration
	Cookies         CookiePolicy
}

// Engine wires the authentication components for one strategy. Handlers
// depend on the engine rather than on package globals.
type Engine struct {
	Strategy   Strategy
	Hasher     *Hasher
	Tokens     *TokenIssuer
	Ledger     *Ledger
	Sessions   *SessionManager
	Federator  *Federator
	Accounts   *AccountService
	Audit      *AuditLogger
	Identities IdentityStore
}

// NewEngine builds an engine over the given stores. sessionStore is required
// by the session strategies and may be nil for the token strategies; the
// token settings are required by the token strategies only.
func NewEngine(cfg EngineConfig, identities IdentityStore, sessionStore SessionStore, logger *observability.Logger) (*Engine, error) {
	if identities == nil {
		return nil, Fatal("identity store is required", nil)
	}
	name := cfg.Strategy
	if name == "" {
		name = StrategySession
	}

	hasher, err := NewHasher(cfg.HashCost, cfg.HashConcurrency)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Hasher:     hasher,
		Federator:  NewFederator(identities),
		Audit:      NewAuditLogger(logger),
		Identities: identities,
	}

	switch name {
	case StrategySession, StrategyFederatedSession:
		if sessionStore == nil {
			return nil, Fatal("session store is required for the "+string(name)+" strategy", nil)
		}
		e.Sessions = NewSessionManager(sessionStore, cfg.SessionTTL)
		if name == StrategySession {
			e.Strategy = NewSessionStrategy(e.Sessions, identities, cfg.Cookies)
		} else {
			e.Strategy = NewFederatedSessionStrategy(e.Sessions, identities, cfg.Cookies)
		}
	case StrategyJWT, StrategyFederatedJWT:
		e.Tokens, err = NewTokenIssuer(cfg.Tokens)
		if err != nil {
			return nil, err
		}
		e.Ledger = NewLedger(e.Tokens, identities, cfg.Rotation)
		if name == StrategyJWT {
			e.Strategy = NewAccessRefreshJwtStrategy(e.Tokens, e.Ledger, cfg.Cookies)
		} else {
			e.Strategy = NewFederatedJwtStrategy(e.Tokens, e.Ledger, cfg.Cookies)
		}
		if sessionStore != nil {
			e.Sessions = NewSessionManager(sessionStore, cfg.SessionTTL)
		}
	default:
		if _, err := ParseStrategyName(string(name)); err != nil {
			return nil, err
		}
	}

	e.Accounts = NewAccountService(identities, hasher, e.Ledger, e.Sessions)
	return e, nil
}
