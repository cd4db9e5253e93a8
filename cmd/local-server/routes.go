package main

import (
	"fmt"

	"local_server"
	"local_server/internal/config"
)

type routeInfo struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

type infoResponse struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Routes  []routeInfo `json:"routes"`
	Static  []string    `json:"static"`
}

// buildRegistry registers the built-in routes and configured static
// mounts. The table is complete before the server starts.
func buildRegistry(cfg *config.Config) (*local_server.RouteTable, error) {
	table := local_server.NewRouteTable()

	static := make([]string, 0, len(cfg.Static))
	for _, m := range cfg.Static {
		if err := table.Mount(m.Prefix, local_server.NewDirServant(m.Dir)); err != nil {
			return nil, fmt.Errorf("mount %s: %w", m.Prefix, err)
		}
		static = append(static, m.Prefix)
	}

	info := func(*local_server.RequestObject) (*local_server.Response, error) {
		resp := infoResponse{Name: "local-server", Version: version, Static: static}
		for _, r := range table.Routes() {
			resp.Routes = append(resp.Routes, routeInfo{Method: r.Method.String(), Path: r.Path})
		}
		return local_server.JSON(local_server.StatusOK, resp)
	}

	routes := []struct {
		method  local_server.Method
		path    string
		handler local_server.Handler
	}{
		{local_server.MethodGet, "/health", local_server.HealthHandler()},
		{local_server.MethodHead, "/health", local_server.HealthHandler()},
		{local_server.MethodGet, "/api/v1/info", local_server.HandlerFunc(info)},
		{local_server.MethodPost, "/api/v1/echo", local_server.EchoHandler()},
	}
	for _, r := range routes {
		if err := table.Handle(r.method, r.path, r.handler); err != nil {
			return nil, err
		}
	}
	return table, nil
}
