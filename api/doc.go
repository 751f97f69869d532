// Package api groups the HTTP surface of the MemFlow service.
//
// The admin API exposes:
//   - Round recording and memory injection for host chat bots
//   - Memory search with optional Markdown reports
//   - Conversation buffer status and flush-threshold tuning
//   - Sanitized configuration views
//   - A WebSocket feed of upload events
//   - Health monitoring endpoints
//
// # Authentication
//
// Admin endpoints require a Bearer JWT obtained from /api/v1/auth/login:
//
//	Authorization: Bearer <token>
//
// Health endpoints (/health, /healthz, /ready, /version) are unauthenticated.
package api
