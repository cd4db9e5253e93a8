// Package local_server is a small HTTP/1.1 server for local tooling.
//
// A Server reads requests off its connections and hands each one to a
// Conductor, which:
//   - rejects bodies whose length disagrees with content-length (400)
//   - answers OPTIONS preflights directly (200, empty body)
//   - dispatches to an exact (path, method) Route
//   - falls back to a mounted FileServant for GET only
//   - answers 404 when nothing matched and 500 when a handler fails
//
// Every Conductor response passes through the CORS middleware, which grants
// access to localhost and 127.0.0.1 origins and answers "null" otherwise.
// Routes and mounts live in a Registry (normally a RouteTable) that is built
// before serving starts and only read afterwards.
package local_server
