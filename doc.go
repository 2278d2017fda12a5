// Package bank implements the backend of a small demo bank: bearer session
// authentication, an account lifecycle gated by an administrator, a relay
// that turns lifecycle changes into notifications and messages, and card
// submissions stored as tokens.
//
// Sessions:
//   - SessionStore issues opaque random tokens with a fixed lifetime. Expiry
//     is lazy: a token is checked when it is presented and an expired row is
//     deleted on that lookup.
//   - RouteAuthenticator exposes ProtectedRoute, AdminRoute and ApprovedRoute
//     guards built on middleware/sessionware.
//
// User lifecycle:
//   - Users are pending, approved, rejected or suspended. UserStateMachine
//     owns the transition graph and emits an ActivityEvent for every change.
//   - Only approved users sign in. The bootstrap admin, seeded by
//     EnsureAdmin, is never subject to the lifecycle and cannot be deleted.
//
// Activity sinks:
//   - ActivitySink receives every audit event. Relay is a sink: it writes the
//     user notification and the admin message for each transition. Sinks run
//     best-effort, errors are logged and never fail the originating request.
package bank
