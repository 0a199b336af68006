// Package providers resolves the Container Client and Blob Client
// implementations named in config.ProviderConfig into the api.ContainerClient
// / api.BlobClient this process will drive runs against.
package providers

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/loadforge/loadforge/pkg/api"
	"github.com/loadforge/loadforge/pkg/blob"
	"github.com/loadforge/loadforge/pkg/config"
	"github.com/loadforge/loadforge/pkg/container"
)

// ContainerClient builds the configured api.ContainerClient.
func ContainerClient(cfg config.ProviderConfig) (api.ContainerClient, error) {
	switch cfg.Container {
	case "", "fake":
		return container.NewFake(), nil
	case "docker":
		return container.NewDocker(cfg.DockerNetwork)
	case "ecs":
		sess, err := session.NewSession()
		if err != nil {
			return nil, fmt.Errorf("creating AWS session: %w", err)
		}
		return container.NewECS(sess, container.ECSConfig{
			Cluster:        cfg.ECSCluster,
			TaskDefFamily:  cfg.ECSTaskDefFamily,
			Subnets:        cfg.ECSSubnets,
			SecurityGroups: cfg.ECSSecurityGroups,
			LogGroup:       cfg.ECSLogGroup,
		}), nil
	default:
		return nil, fmt.Errorf("unknown container provider %q", cfg.Container)
	}
}

// BlobClient builds the configured api.BlobClient.
func BlobClient(cfg config.ProviderConfig) (api.BlobClient, error) {
	switch cfg.Blob {
	case "", "memory":
		return blob.NewMemory(), nil
	case "s3":
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.S3Region)})
		if err != nil {
			return nil, fmt.Errorf("creating AWS session: %w", err)
		}
		return blob.NewS3(sess), nil
	default:
		return nil, fmt.Errorf("unknown blob provider %q", cfg.Blob)
	}
}
