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

/*
Authtarget is a small reference implementation of the authentication service that authprobe exercises. It offers
tenant scoped registration and login with argon2id passwords, RS256 access tokens published through a JWKS document,
rotating refresh tokens with reuse detection, a bounded password hashing pool and per account rate limits.

Everything the probe looks at is observable: Prometheus metrics on /metrics and security events as structured log
lines, optionally appended to a dedicated file.
*/

package main
