package config

import (
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetByPath returns the value at a dot-separated config path, e.g. "server.port".
func GetByPath(cfg *Config, path string) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("empty config path")
	}
	paths := ListPaths(cfg)
	if v, ok := paths[path]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("unknown config path: %s", path)
}

// Sanitize returns a copy of the config with sensitive values masked.
func Sanitize(cfg *Config) *Config {
	copy := *cfg

	copy.Slack.BotToken = maskString(copy.Slack.BotToken)
	copy.Slack.SigningSecret = maskString(copy.Slack.SigningSecret)
	copy.Replicate.APIToken = maskString(copy.Replicate.APIToken)

	if copy.AMQP.URL != "" {
		if u, err := url.Parse(copy.AMQP.URL); err == nil && u.User != nil {
			if _, has := u.User.Password(); has {
				u.User = url.UserPassword(u.User.Username(), "***")
			}
			copy.AMQP.URL = u.String()
		}
	}
	return &copy
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// Dump renders the config as YAML.
func Dump(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// ListPaths returns every leaf config path with its current value.
func ListPaths(cfg *Config) map[string]any {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil
	}
	result := make(map[string]any)
	flattenMap("", m, result)
	return result
}

func flattenMap(prefix string, m map[string]any, result map[string]any) {
	for k, v := range m {
		path := k
		if prefix != "" {
			path = strings.Join([]string{prefix, k}, ".")
		}
		switch val := v.(type) {
		case map[string]any:
			flattenMap(path, val, result)
		default:
			result[path] = val
		}
	}
}
