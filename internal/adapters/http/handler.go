package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/docker-cicd-manager/internal/core/domain"
	"github.com/melih/docker-cicd-manager/internal/core/ports"
)

const defaultBuiltImage = "cicd-built-image:latest"

type ContainerHandler struct {
	service ports.ContainerService
	builder ports.BuilderService
}

// NewContainerHandler wires the handlers. builder may be nil, in which case
// requests with a repo_url are rejected.
func NewContainerHandler(service ports.ContainerService, builder ports.BuilderService) *ContainerHandler {
	return &ContainerHandler{service: service, builder: builder}
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrImageRequired):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func (h *ContainerHandler) Info(c *fiber.Ctx) error {
	info, err := h.service.Info(c.Context())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(info)
}

func (h *ContainerHandler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.service.ListContainers(c.Context(), c.QueryBool("all", false))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(containers)
}

func (h *ContainerHandler) GetContainer(c *fiber.Ctx) error {
	container, err := h.service.GetContainer(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(container)
}

type CreateContainerRequest struct {
	domain.ContainerSpec
	RepoURL    string `json:"repo_url"` // build the image from this repository first
	Ref        string `json:"ref"`
	Dockerfile string `json:"dockerfile"`
}

func (h *ContainerHandler) CreateContainer(c *fiber.Ctx) error {
	var req CreateContainerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	spec := req.ContainerSpec
	if req.RepoURL != "" {
		if h.builder == nil {
			return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
				"error": "Building from source is not enabled",
			})
		}
		if spec.Image == "" {
			spec.Image = defaultBuiltImage
		}

		// Note: This is a blocking operation and might take time!
		image, err := h.builder.BuildImage(c.Context(), domain.BuildRequest{
			RepoURL:    req.RepoURL,
			Ref:        req.Ref,
			Image:      spec.Image,
			Dockerfile: req.Dockerfile,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Build failed: " + err.Error(),
			})
		}
		spec.Image = image
	}

	container, err := h.service.CreateTestContainer(c.Context(), spec)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(container)
}

// StopContainer stops the container and, with ?remove=true, removes it.
func (h *ContainerHandler) StopContainer(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.StopContainer(c.Context(), id); err != nil {
		return fail(c, err)
	}
	if c.QueryBool("remove", false) {
		if err := h.service.RemoveContainer(c.Context(), id, true); err != nil {
			return fail(c, err)
		}
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *ContainerHandler) WaitContainer(c *fiber.Ctx) error {
	id := c.Params("id")
	code, err := h.service.WaitContainer(c.Context(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"id":        id,
		"exit_code": code,
	})
}

func (h *ContainerHandler) GetContainerLogs(c *fiber.Ctx) error {
	opts := domain.LogOptions{
		Timestamps: c.QueryBool("timestamps", false),
		Tail:       c.Query("tail"),
	}
	switch c.Query("stream") {
	case "stdout":
		opts.Stdout = true
	case "stderr":
		opts.Stderr = true
	}

	logs, err := h.service.GetContainerLogs(c.Context(), c.Params("id"), opts)
	if err != nil {
		return fail(c, err)
	}
	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(logs)
}

// Cleanup removes test containers; ?scope=session limits it to this server's session.
func (h *ContainerHandler) Cleanup(c *fiber.Ctx) error {
	removed, err := h.service.CleanupTestContainers(c.Context(), domain.ParseCleanupScope(c.Query("scope")))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"removed": removed,
			"error":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{"removed": removed})
}
