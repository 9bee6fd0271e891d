package http

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/melih/docker-cicd-manager/internal/core/ports"
)

const defaultPreviewPort = "80"

// ProxyHandler routes preview subdomains to running test containers.
type ProxyHandler struct {
	service ports.ContainerService
	domain  string
}

// NewProxyHandler creates a proxy for hosts of the form <name>.<previewDomain>.
func NewProxyHandler(service ports.ContainerService, previewDomain string) *ProxyHandler {
	return &ProxyHandler{service: service, domain: strings.TrimPrefix(previewDomain, ".")}
}

// ProxyRequest intercepts requests to preview subdomains (e.g. web-test.preview.localhost)
// and routes them to the test container of that name. Other requests pass through.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	host := c.Hostname()
	if hostOnly, _, err := net.SplitHostPort(host); err == nil {
		host = hostOnly
	}

	// 1. Extract Subdomain
	name, ok := strings.CutSuffix(host, "."+h.domain)
	if !ok || name == "" || strings.Contains(name, ".") {
		return c.Next()
	}

	// 2. Find the running test container by name
	containers, err := h.service.ListContainers(c.Context(), false)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to list containers")
	}

	var target *domain.Container
	for i := range containers {
		ct := &containers[i]
		if ct.Name == name && ct.IsTest() && ct.Running() && ct.IPAddress != "" {
			target = ct
			break
		}
	}
	if target == nil {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("Preview '%s' not found or not running", name))
	}

	port := target.Labels[domain.LabelPreviewPort]
	if port == "" {
		port = defaultPreviewPort
	}

	// 3. Proxy the Request
	remote, err := url.Parse("http://" + net.JoinHostPort(target.IPAddress, port))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid target URL")
	}

	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite Host so the app inside sees the address it listens on.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "Proxy Info: target=%s error=%v", remote.Host, err)
	}

	return adaptor.HTTPHandler(proxy)(c)
}
