// Package secrets resolves secret material from Google Cloud Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

var ErrInvalidName = errors.New("secret name must be projects/<project>/secrets/<name>[/versions/<v>]")

// ErrCorrupted is returned when the payload checksum does not match.
var ErrCorrupted = errors.New("secret payload checksum mismatch")

type accessFunc func(ctx context.Context, name string) (*secretmanagerpb.SecretPayload, error)

// openAccessor is a seam for tests.
var openAccessor = func(ctx context.Context, opts ...option.ClientOption) (accessFunc, func() error, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}
	access := func(ctx context.Context, name string) (*secretmanagerpb.SecretPayload, error) {
		res, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err != nil {
			return nil, err
		}
		return res.GetPayload(), nil
	}
	return access, client.Close, nil
}

// VersionName expands a secret path to a version path, defaulting to latest.
func VersionName(name string) (string, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	parts := strings.Split(name, "/")
	switch {
	case len(parts) == 4 && parts[0] == "projects" && parts[2] == "secrets":
		return name + "/versions/latest", nil
	case len(parts) == 6 && parts[0] == "projects" && parts[2] == "secrets" && parts[4] == "versions":
		return name, nil
	}
	return "", ErrInvalidName
}

// Load reads one secret version and returns it as a trimmed string.
func Load(ctx context.Context, name string, opts ...option.ClientOption) (string, error) {
	version, err := VersionName(name)
	if err != nil {
		return "", err
	}

	access, closeFn, err := openAccessor(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("secret manager client: %w", err)
	}
	defer closeFn()

	payload, err := access(ctx, version)
	if err != nil {
		return "", fmt.Errorf("access secret version: %w", err)
	}

	data := payload.GetData()
	if payload.DataCrc32C != nil {
		sum := crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli))
		if int64(sum) != payload.GetDataCrc32C() {
			return "", ErrCorrupted
		}
	}
	return strings.TrimSpace(string(data)), nil
}
