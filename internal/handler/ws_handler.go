/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which is responsible for rate limiting,
evaluating the session before the upgrade, and handing the upgraded connection to the Gateway.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"chatgate/internal/pkg/auth/session"
	"chatgate/internal/pkg/errs"
	"chatgate/internal/pkg/limiter"
	"chatgate/internal/pkg/logx"
	"chatgate/internal/pkg/resp"
)

const (
	handshakeAccepted = "accepted"
	handshakeRejected = "rejected"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// The session is evaluated like any HTTP request; cookies refreshed on the way in ride on
// the 101 response. Requests without an active session get 401 and are never upgraded.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			deps.Metrics.Handshake(handshakeRejected)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		header := http.Header{}
		res, err := deps.Sessions.Authenticate(r.Context(), header, r)
		if err != nil {
			deps.Metrics.Handshake(handshakeRejected)
			resp.RespondErr(w, r, err)
			return
		}

		if !res.State.IsAuthenticated() || !res.Identity.IsActive() {
			// Cleared cookies still reach the browser on the rejection.
			copyHeader(w.Header(), header)
			logx.Info("WebSocket connection rejected: No active session.", "state", res.State.String())
			deps.Metrics.Handshake(handshakeRejected)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if res.Refreshed {
			header.Set(session.RefreshedHeader, "true")
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			// Upgrade has already written the HTTP error.
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			deps.Metrics.Handshake(handshakeRejected)
			return
		}

		client, err := deps.Gateway.Attach(conn, res.Identity)
		if err != nil {
			logx.Error(err, "Failed to attach WebSocket connection", "user_id", res.Identity.ID)
			deps.Metrics.Handshake(handshakeRejected)
			return
		}

		deps.Metrics.Handshake(handshakeAccepted)
		logx.Info("WebSocket connection established and client registered",
			"conn_id", client.ID(),
			"user_id", res.Identity.ID,
			"refreshed", res.Refreshed,
		)
	}
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
