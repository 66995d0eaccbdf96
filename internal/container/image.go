package container

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	dockerimage "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// EnsureImage pulls the node image when it is not available locally.
// Node images are prebuilt and published; nothing is built here.
func EnsureImage(ctx context.Context, docker *client.Client, imageName string) error {
	_, err := docker.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	slog.Info("pulling node image", "image", imageName)
	reader, err := docker.ImagePull(ctx, imageName, dockerimage.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", imageName, err)
	}
	defer reader.Close()

	// Drain the pull output
	if _, err := io.Copy(io.Discard, reader); err != nil {
		slog.Warn("error reading pull output", "error", err)
	}
	return nil
}
