// Package session holds the console's authentication state.
//
// # Lifecycle
//
// A Store starts empty. Initialize hydrates it from the two storage scopes,
// installs a request hook on the shared api.Client and re-validates any
// restored token by fetching the profile; if that fails the session is
// cleared. Login, FetchUserInfo and Logout mutate it afterwards.
//
// # Scopes
//
// Login writes the token, username and profile to exactly one scope:
//
//   - kv.Persistent when the user asked to be remembered
//   - kv.Transient otherwise
//
// Profile refreshes are always cached in the persistent scope. Logout
// removes the session keys from both scopes.
//
// # Usage
//
//	client := api.NewClient(cfg.Server.BaseURL, httpClient, logger)
//	store := session.New(scopes, client, client, logger)
//	if err := store.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if _, err := store.Login(ctx, session.Credentials{Username: u, Password: p, Remember: true}); err != nil {
//	    return err
//	}
package session
