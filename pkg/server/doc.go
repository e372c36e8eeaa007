// Copyright 2025 The Perch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server provides the Perch HTTP API.
//
// The server wires the storage, auth, media, and rate limiting packages
// behind a chi router versioned under /v1. Every JSON response uses one
// envelope: {"success":true,"data":...} on success and
// {"success":false,"error":{"code","message"}} on failure, so clients
// branch on one shape.
//
// Construction follows dependency injection throughout: the caller builds
// the store, validator, limiters, and media store and passes them in via
// Options. The server owns only the HTTP listeners.
package server
