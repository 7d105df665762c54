/*
Package nocsdk is the client SDK for the NOC assistant backends: the SSO
service that issues tokens and the chat/RAG service that answers questions
and stores reference documents.

# AuthClient vs Client

The package is organized around two types:

  - AuthClient: unauthenticated SSO calls (login, registration, email
    verification, Google login, token refresh)
  - Client: bearer-authenticated calls against one backend, with
    transparent recovery from access token expiry

Both share a tokenstore.Store through a SessionGuard:

	store := tokenstore.NewMemory()
	guard := nocsdk.NewSessionGuard(store, onLogout, logger)
	auth := nocsdk.NewAuthClient(ssoURL, httpClient, guard)

	_, err := auth.Login(ctx, nocsdk.LoginRequest{Email: email, Password: password})
	var mfa *nocsdk.MFARequiredError
	if errors.As(err, &mfa) {
		code, _ := nocsdk.TOTPCode(secret, time.Now())
		_, err = auth.Login(ctx, nocsdk.LoginRequest{Email: email, Password: password, OTP: code})
	}

	chat := nocsdk.New(nocsdk.Config{
		BaseURL:   chatURL,
		Store:     store,
		Refresher: auth,
		Guard:     guard,
	})
	reply, err := chat.SendChat(ctx, "show CPU load for core-01", "")

# Token Refresh

When a request on a Client receives 401 it is retried once after a refresh.
Only one refresh runs per RefreshCoordinator at a time:

 1. The first request to see the 401 becomes the leader and calls the
    Refresher with the stored refresh token
 2. Requests that see a 401 while the refresh is running wait for it
 3. On success the new tokens are stored and every waiter retries with
    the new access token
 4. On failure every waiter gets the refresh error and the session ends

Clients that refresh against the same endpoint can share a coordinator
through CoordinatorRegistry so they also share the refresh.

# Session End

A 403 on any request, a failed refresh, or a 401 with no refresh token
clears both tokens and fires the LoginBoundary once per session, however
many requests fail together.

# Errors

Failed requests return *APIError, classified once as KindHTTP,
KindNetwork or KindMalformed. Use errors.Is with ErrUnauthorized,
ErrPermissionDenied, ErrUnexpectedResponse and ErrRefreshFailed rather
than inspecting status codes.
*/
package nocsdk
