// Package http exposes the booking service over HTTP.
//
// Public endpoints:
//   - GET /healthz
//   - GET /setup reports {"setup_required"}; POST /setup creates the first
//     administrator from {"name","email","password"}.
//   - POST /register creates a regular account once setup is complete.
//   - POST /login issues a session token. Body: {"email","password"}. The token
//     is returned in the body, the X-Session-Token header and a session_token
//     cookie. POST /logout clears the cookie.
//   - GET /slots?date=YYYY-MM-DD lists the slots starting that day with live
//     availability.
//   - GET /availability?from=YYYY-MM-DD&days=N groups the next N days of slots
//     by day.
//
// Endpoints requiring a session (Authorization: Bearer or the cookie):
//   - POST /slots, POST /slots/recurring, DELETE /slots/{id}: slot
//     administration for administrators.
//   - GET /slots/{id}/availability
//   - POST /slots/{id}/bookings books one seat; the response carries an
//     optional "warning" when the confirmation mail could not be sent.
//   - POST /bookings/{id}/cancel
//   - GET /bookings?scope=all|created_by|mine&status=&from=&until= and the
//     same query on /bookings/export.csv and /bookings/export.ics.
//   - GET /settings and PUT /settings for administrators.
//
// Until the first account exists every endpoint except /healthz and /setup
// answers 409 with error_code SETUP_REQUIRED. Errors share the body
// {"error_code","message","errors"}.
package http
