// Package http provides the HTTP handlers for the verification API.
//
// Handlers own request decoding, presence validation and response shaping;
// all policy decisions live in the services layer. Error responses carry a
// success flag and a short caller-facing message, with status classes
// 400 (validation), 401 (unknown key), 403 (bans, inactive key, device
// mismatch) and 500 (store failures, always generic).
package http
