// Package redisstore implements auth.SessionStore on Redis (go-redis v8).
//
// Sessions live under gatehouse:session:<id> with a TTL equal to their
// remaining lifetime, so Redis expires them without a purge job. The set
// gatehouse:identity_sessions:<identity> lists the sessions of one identity
// for DeleteByIdentity.
package redisstore
