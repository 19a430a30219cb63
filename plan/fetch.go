package plan

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"
	"go.uber.org/zap"

	"github.com/teranos/dcheck/errors"
)

// Fetch resolves a plan source to a local file path. Local paths are returned
// unchanged; remote sources (https://, s3::, gcs::) are downloaded
// into dir with go-getter.
func Fetch(ctx context.Context, src, dir string, logger *zap.SugaredLogger) (string, error) {
	pwd, err := os.Getwd()
	if err != nil {
		pwd = "."
	}

	detected, err := getter.Detect(src, pwd, getter.Detectors)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "failed to detect plan source %s", src), errors.ErrSpecInvalid)
	}

	parsed, err := url.Parse(detected)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "failed to parse plan source %s", detected), errors.ErrSpecInvalid)
	}
	if parsed.Scheme == "" || parsed.Scheme == "file" {
		return src, nil
	}

	// Keep the extension so FormatForPath still works on the downloaded copy
	name := path.Base(parsed.Path)
	if name == "" || name == "/" || name == "." {
		name = "plan.yaml"
	}
	dst := filepath.Join(dir, name)

	logger.Infow("Fetching plan",
		"source", src,
		"detected", detected,
		"destination", dst,
	)

	client := &getter.Client{
		Ctx:     ctx,
		Src:     detected,
		Dst:     dst,
		Mode:    getter.ClientModeFile,
		Getters: getter.Getters,
	}
	if err := client.Get(); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "failed to fetch plan %s", src), errors.ErrSpecInvalid)
	}
	return dst, nil
}
