package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Info describes a DSN without exposing its password.
type Info struct {
	Type        string `json:"type"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	User        string `json:"user,omitempty"`
	Name        string `json:"name,omitempty"`
	SSLMode     string `json:"ssl_mode,omitempty"`
	Path        string `json:"path,omitempty"`
	PasswordSet bool   `json:"password_set"`
}

// Describe parses dsn into an Info.
func Describe(dsn string) (Info, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return Info{}, fmt.Errorf("empty dsn")
	}

	if IsSQLiteDSN(trimmed) {
		pathPart := trimmed
		if strings.HasPrefix(strings.ToLower(pathPart), "file:") {
			pathPart = pathPart[len("file:"):]
		}
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return Info{Type: "sqlite", Path: strings.TrimSpace(pathPart)}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return Info{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			parsedPort, errPort := strconv.Atoi(rawPort)
			if errPort != nil {
				return Info{}, fmt.Errorf("parse port: %w", errPort)
			}
			port = parsedPort
		}
		info := Info{
			Type:    "postgres",
			Host:    strings.TrimSpace(u.Hostname()),
			Port:    port,
			Name:    strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
			SSLMode: strings.TrimSpace(u.Query().Get("sslmode")),
		}
		if info.SSLMode == "" {
			info.SSLMode = "disable"
		}
		if u.User != nil {
			info.User = strings.TrimSpace(u.User.Username())
			_, info.PasswordSet = u.User.Password()
		}
		return info, nil
	default:
		return Info{}, fmt.Errorf("unsupported dsn scheme")
	}
}
