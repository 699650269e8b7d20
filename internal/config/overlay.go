package config

import (
	"os"
	"path/filepath"
	"strings"
)

// OverlayProfile replaces profile.summary with the contents of profile.summary_file when set.
// A relative path is resolved against baseDir.
func OverlayProfile(cfg *Config, baseDir string) error {
	p := strings.TrimSpace(cfg.Profile.SummaryFile)
	if p == "" {
		return nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		cfg.Profile.Summary = s
	}
	return nil
}
