package main

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-resumableupload/checkpoint"
	"github.com/bitrise-io/go-resumableupload/multipart"
	"github.com/bitrise-io/go-resumableupload/network"
	"github.com/bitrise-io/go-resumableupload/uploader"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/docker/go-units"
)

// Supported storage backends.
const (
	backendS3     = "s3"
	backendAPI    = "api"
	backendMemory = "memory"
)

const (
	defaultRetries   = 3
	defaultRetryWait = 5 * time.Second
)

type config struct {
	Paths  []string
	Bucket string
	Prefix string

	Backend      string
	Region       string
	AccessKeyID  string
	SecretKey    string
	Endpoint     string
	UsePathStyle bool
	APIBaseURL   string
	APIToken     string

	ThreadNum        int
	PartSize         int64
	EnableCheckpoint bool
	CheckpointDir    string
	Headers          map[string]string

	Retries     uint
	RetryWait   time.Duration
	MetricsFile string
	Verbose     bool
}

func parseConfig(envRepo env.Repository) (config, error) {
	cfg := config{
		Bucket:        envRepo.Get("RESUMABLE_UPLOAD_BUCKET"),
		Prefix:        strings.Trim(envRepo.Get("RESUMABLE_UPLOAD_PREFIX"), "/"),
		Backend:       strings.ToLower(envRepo.Get("RESUMABLE_UPLOAD_BACKEND")),
		Region:        envRepo.Get("AWS_REGION"),
		AccessKeyID:   envRepo.Get("AWS_ACCESS_KEY_ID"),
		SecretKey:     envRepo.Get("AWS_SECRET_ACCESS_KEY"),
		Endpoint:      envRepo.Get("RESUMABLE_UPLOAD_ENDPOINT"),
		APIBaseURL:    envRepo.Get("RESUMABLE_UPLOAD_API_URL"),
		APIToken:      envRepo.Get("RESUMABLE_UPLOAD_API_TOKEN"),
		MetricsFile:   envRepo.Get("RESUMABLE_UPLOAD_METRICS_FILE"),
		CheckpointDir: envRepo.Get("RESUMABLE_UPLOAD_CHECKPOINT_DIR"),
		Headers:       map[string]string{},
	}

	for _, line := range strings.Split(envRepo.Get("RESUMABLE_UPLOAD_PATHS"), "\n") {
		if path := strings.TrimSpace(line); path != "" {
			cfg.Paths = append(cfg.Paths, path)
		}
	}
	if len(cfg.Paths) == 0 {
		return config{}, fmt.Errorf("RESUMABLE_UPLOAD_PATHS is not defined")
	}
	if cfg.Bucket == "" {
		return config{}, fmt.Errorf("RESUMABLE_UPLOAD_BUCKET is not defined")
	}

	switch cfg.Backend {
	case "":
		cfg.Backend = backendS3
	case backendS3, backendAPI, backendMemory:
	default:
		return config{}, fmt.Errorf("unknown backend %q, should be one of: %s, %s, %s", cfg.Backend, backendS3, backendAPI, backendMemory)
	}
	if cfg.Backend == backendAPI && (cfg.APIBaseURL == "" || cfg.APIToken == "") {
		return config{}, fmt.Errorf("RESUMABLE_UPLOAD_API_URL and RESUMABLE_UPLOAD_API_TOKEN are required for the %s backend", backendAPI)
	}

	var err error
	if cfg.UsePathStyle, err = parseBool(envRepo, "RESUMABLE_UPLOAD_PATH_STYLE", false); err != nil {
		return config{}, err
	}
	if cfg.EnableCheckpoint, err = parseBool(envRepo, "RESUMABLE_UPLOAD_CHECKPOINT", true); err != nil {
		return config{}, err
	}
	if cfg.Verbose, err = parseBool(envRepo, "RESUMABLE_UPLOAD_VERBOSE", false); err != nil {
		return config{}, err
	}

	cfg.ThreadNum = uploader.DefaultThreadNum
	if s := envRepo.Get("RESUMABLE_UPLOAD_THREADS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return config{}, fmt.Errorf("invalid RESUMABLE_UPLOAD_THREADS: %w", err)
		}
		if n < 1 || n > uploader.MaxThreadNum {
			return config{}, fmt.Errorf("RESUMABLE_UPLOAD_THREADS should be between 1 and %d", uploader.MaxThreadNum)
		}
		cfg.ThreadNum = n
	}

	cfg.PartSize = multipart.DefaultPartSize
	if s := envRepo.Get("RESUMABLE_UPLOAD_PART_SIZE"); s != "" {
		size, err := units.RAMInBytes(s)
		if err != nil {
			return config{}, fmt.Errorf("invalid RESUMABLE_UPLOAD_PART_SIZE: %w", err)
		}
		if size <= 0 {
			return config{}, fmt.Errorf("RESUMABLE_UPLOAD_PART_SIZE should be positive")
		}
		cfg.PartSize = size
	}

	cfg.Retries = defaultRetries
	if s := envRepo.Get("RESUMABLE_UPLOAD_RETRIES"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return config{}, fmt.Errorf("invalid RESUMABLE_UPLOAD_RETRIES: %w", err)
		}
		cfg.Retries = uint(n)
	}

	cfg.RetryWait = defaultRetryWait
	if s := envRepo.Get("RESUMABLE_UPLOAD_RETRY_WAIT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return config{}, fmt.Errorf("invalid RESUMABLE_UPLOAD_RETRY_WAIT: %w", err)
		}
		cfg.RetryWait = d
	}

	if contentType := envRepo.Get("RESUMABLE_UPLOAD_CONTENT_TYPE"); contentType != "" {
		cfg.Headers["content-type"] = contentType
	}
	if callback := envRepo.Get("RESUMABLE_UPLOAD_CALLBACK"); callback != "" {
		cfg.Headers[network.HeaderCallback] = callback
	}
	if callbackVar := envRepo.Get("RESUMABLE_UPLOAD_CALLBACK_VAR"); callbackVar != "" {
		cfg.Headers[network.HeaderCallbackVar] = callbackVar
	}

	return cfg, nil
}

func parseBool(envRepo env.Repository, key string, defaultValue bool) (bool, error) {
	s := envRepo.Get(key)
	if s == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// uploaderConfig returns the uploader settings for one file. With a checkpoint directory every
// object gets its own checkpoint file named after its escaped key, otherwise it sits next to the file.
func (c config) uploaderConfig(item uploadItem) uploader.Config {
	cfg := uploader.Config{
		ThreadNum:        c.ThreadNum,
		PartSize:         c.PartSize,
		EnableCheckpoint: c.EnableCheckpoint,
		Headers:          c.Headers,
	}
	if c.CheckpointDir != "" {
		cfg.CheckpointPath = filepath.Join(c.CheckpointDir, url.PathEscape(item.Key)+checkpoint.PathSuffix)
	}
	return cfg
}
