package eeks

import (
	"log"
	"os"
	"os/exec"
	"strings"
)

// Config holds the three boolean environment-variable switches this runtime
// recognizes, plus the resolved extensions/cache roots. Unset = default (all
// three default on); an unrecognized value logs a warning and falls back to
// the default, mirroring the original Rust check_environment_boolean.
type Config struct {
	// Sccache wraps builds of non-workspace extensions with a compiler
	// cache wrapper, if the wrapper binary is actually usable.
	Sccache bool
	// DeepChecking folds the build tool's dep manifest into dirty detection.
	DeepChecking bool
	// Batched coalesces two or more workspace rebuilds into a single
	// workspace-wide build.
	Batched bool

	// ExtensionsRoot is <cwd>/extensions by default.
	ExtensionsRoot string
	// CacheRoot is <cwd>/target/extensions by default.
	CacheRoot string

	// FetchToken is an optional GitHub OAuth token used when downloading a
	// precompiled extension declared by a ".remote" sidecar file (spec.md
	// §3, "precompiled, source-less extension"). Empty means unauthenticated
	// requests, subject to GitHub's anonymous rate limit.
	FetchToken string
}

// LoadConfig reads EEKS_SCCACHE, EEKS_DEEP_CHECKING and EEKS_BATCHED from
// the environment and resolves the extensions/cache roots relative to cwd.
// logger may be nil, in which case log.Default() is used.
func LoadConfig(logger *log.Logger) Config {
	if logger == nil {
		logger = log.Default()
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cfg := Config{
		Sccache:        checkEnvBool(logger, "EEKS_SCCACHE", true),
		DeepChecking:   checkEnvBool(logger, "EEKS_DEEP_CHECKING", true),
		Batched:        checkEnvBool(logger, "EEKS_BATCHED", true),
		ExtensionsRoot: cwd + "/extensions",
		CacheRoot:      cwd + "/target/extensions",
		FetchToken:     os.Getenv("EEKS_GITHUB_TOKEN"),
	}
	if cfg.Sccache && !sccacheUsable() {
		logger.Printf("sccache requested but not usable, disabling")
		cfg.Sccache = false
	}
	return cfg
}

func checkEnvBool(logger *log.Logger, key string, def bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		logger.Printf("%s not set, %s by default", key, onOff(def))
		return def
	}
	switch strings.ToLower(val) {
	case "true":
		return true
	case "false":
		return false
	default:
		logger.Printf("bad value for %s (%q), %s by default", key, val, onOff(def))
		return def
	}
}

func onOff(b bool) string {
	if b {
		return "enabling"
	}
	return "disabling"
}

// sccacheUsable probes for a working sccache binary on PATH, the same
// startup check the original Rust runtime performs before trusting
// EEKS_SCCACHE.
func sccacheUsable() bool {
	cmd := exec.Command("sccache", "--version")
	return cmd.Run() == nil
}
