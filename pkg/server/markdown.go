package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/remote-mcp-servers/registry-sync/pkg/servers"
	"github.com/remote-mcp-servers/registry-sync/pkg/sources/blockchain"
	"github.com/remote-mcp-servers/registry-sync/pkg/sources/official"
)

const aboutMarkdown = `# About Remote MCP Servers

This registry is a community-driven directory of remote servers that speak the Model Context Protocol (MCP).

It collects servers from the official MCP registry and from on-chain app listings, and publishes them in one catalog that agents can browse and search.
`

// metaNamespaces lists the meta blocks consulted for display fields, most
// authoritative first.
var metaNamespaces = []string{official.MetaNamespace, blockchain.MetaNamespace}

func (s *Server) serverPageURL(id string) string {
	return strings.TrimRight(s.cfg.SiteURL, "/") + "/servers/" + id
}

func writeMarkdown(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/markdown; charset=UTF-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func orUnknown(v string) string {
	if v == "" {
		return "Unknown"
	}
	return v
}

func (s *Server) serversMarkdownHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := s.servers.ListActive(r.Context())
	if err != nil {
		s.logger.Error("list servers for markdown", "error", err)
		writeMarkdown(w, http.StatusInternalServerError, "# Server Registry\n\nCould not load servers.\n")
		return
	}

	var b strings.Builder
	b.WriteString("# Browse All MCP Servers\n\n")
	b.WriteString("A complete list of all active remote MCP servers.\n\n")
	for i := range rows {
		srv := &rows[i]
		link := s.serverPageURL(srv.ID)
		fmt.Fprintf(&b, "## %s\n", srv.Name)
		fmt.Fprintf(&b, "**Category:** %s\n", orUnknown(srv.MetaString("category", metaNamespaces...)))
		fmt.Fprintf(&b, "**Description:** %s\n", srv.Description)
		fmt.Fprintf(&b, "**Details:** [%s](%s)\n\n", link, link)
	}
	writeMarkdown(w, http.StatusOK, b.String())
}

func (s *Server) serverMarkdownHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	notFound := fmt.Sprintf("# Server Not Found\n\nThe server with ID `%s` could not be found or is not active.\n", id)

	if uuid.Validate(id) != nil {
		writeMarkdown(w, http.StatusNotFound, notFound)
		return
	}
	srv, err := s.servers.Get(r.Context(), id)
	switch {
	case errors.Is(err, servers.ErrServerNotFound):
		writeMarkdown(w, http.StatusNotFound, notFound)
		return
	case err != nil:
		s.logger.Error("get server for markdown", "id", id, "error", err)
		writeMarkdown(w, http.StatusInternalServerError, "# Server Registry\n\nCould not load server.\n")
		return
	}
	if srv.Status != servers.StatusActive {
		writeMarkdown(w, http.StatusNotFound, notFound)
		return
	}

	maintainer := srv.MetaString("provider", official.MetaNamespace)
	if maintainer == "" {
		maintainer = srv.MetaString("publisher", blockchain.MetaNamespace)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", srv.Name)
	if srv.Description != "" {
		fmt.Fprintf(&b, "> %s\n\n", srv.Description)
	}
	fmt.Fprintf(&b, "**Category:** %s\n", orUnknown(srv.MetaString("category", metaNamespaces...)))
	fmt.Fprintf(&b, "**Maintainer:** %s\n", orUnknown(maintainer))
	if srv.LatestVersion != "" {
		fmt.Fprintf(&b, "**Version:** %s\n", srv.LatestVersion)
	}
	for _, remote := range srv.RemoteList() {
		fmt.Fprintf(&b, "**MCP URL:** [%s](%s) (%s)\n", remote.URL, remote.URL, remote.Type)
	}
	if repo := srv.RepositoryValue(); repo != nil {
		fmt.Fprintf(&b, "**Repository:** [%s](%s)\n", repo.URL, repo.URL)
	}
	link := s.serverPageURL(srv.ID)
	fmt.Fprintf(&b, "**View on site:** [%s](%s)\n", link, link)

	writeMarkdown(w, http.StatusOK, b.String())
}

func (s *Server) aboutMarkdownHandler(w http.ResponseWriter, _ *http.Request) {
	writeMarkdown(w, http.StatusOK, aboutMarkdown)
}
