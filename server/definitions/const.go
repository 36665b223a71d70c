// Copyright (C) 2024 Christian Rößner
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package definitions

const (
	// LogKeyMsg represents the message content in log entries.
	LogKeyMsg = "msg"

	// LogKeyError represents error information in log entries.
	LogKeyError = "error"

	// LogKeyInstance represents instance identification in log entries.
	LogKeyInstance = "instance"

	// LogKeyScenario names the scenario a harness log line belongs to.
	LogKeyScenario = "scenario"

	// LogKeyTenantID represents the tenant a request was issued for.
	LogKeyTenantID = "tenant_id"

	// LogKeyUserID represents the user identifier of an account.
	LogKeyUserID = "user_id"

	// LogKeyEmail represents the login name of an account.
	LogKeyEmail = "email"

	// LogKeyClientIP represents the IP address of the client.
	LogKeyClientIP = "client_ip"

	// LogKeyUserAgent represents the user-agent string of the client.
	LogKeyUserAgent = "user_agent"

	// LogKeyTokenPrefix is a short, non-secret prefix of a hashed refresh token.
	LogKeyTokenPrefix = "token_hash_prefix"

	// LogKeyStatus is an HTTP status code.
	LogKeyStatus = "status"

	// LogKeyPath is an HTTP request path.
	LogKeyPath = "path"

	// LogKeyLatency is an elapsed time.
	LogKeyLatency = "latency"

	// LogKeyURL is a target URL.
	LogKeyURL = "url"

	// LogKeyEvent names a security or overload event.
	LogKeyEvent = "event"

	// LogKeyMethod is an HTTP request method.
	LogKeyMethod = "method"
)

// Log levels understood by the logging setup.
const (
	LogLevelNone  = "none"
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
)

// Security and overload events emitted by the target. The harness looks for them in the event log.
const (
	EventRefreshReplay = "security.refresh_replay_detected"
	EventHashBusy      = "auth.hash_busy"
)

// Request headers used to carry the simulated client origin.
const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderUserAgent    = "User-Agent"
	HeaderRetryAfter   = "Retry-After"
)

// HTTP surface of the authentication service.
const (
	PathJWKS     = "/.well-known/jwks.json"
	PathRegister = "/api/auth/register"
	PathLogin    = "/api/auth/login"
	PathRefresh  = "/api/auth/refresh"
	PathMetrics  = "/metrics"
	PathPing     = "/ping"
	PathPprof    = "/debug/pprof"
)

// Error codes returned in JSON bodies of rejected requests.
const (
	CodeHashBusy    = "hash_busy"
	CodeRateLimited = "rate_limited"
	CodeReplay      = "refresh_replay"
)
