package docker

import "github.com/docker/docker/api/types/container"

var containerConfigForTest = container.Config{Image: "nginx:latest"}
