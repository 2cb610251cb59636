// Package auth authenticates requests to the local backlog server with
// static API keys.
//
// Keys come from the server.api_keys configuration section. A request
// presents its key as "Authorization: Bearer <key>" or in the X-API-Key
// header. When no keys are configured the middleware is not installed and
// the server is open, which is the default for a loopback listener.
//
//	server:
//	  api_keys:
//	    - name: ci
//	      key: 5f0c...
//	    - name: old-agent
//	      key: 7c9e...
//	      disabled: true
package auth
