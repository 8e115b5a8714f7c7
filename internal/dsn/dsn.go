// Package dsn parses the library's connection string format (spec.md §6):
// semicolon-separated key=value pairs, case-insensitive keys, unknown keys
// ignored. Grounded on the teacher's flat key=value config parsing idiom in
// internal/config/config.go, adapted from YAML fields to an inline string.
package dsn

import "strings"

// Info holds the resolved connection parameters, populated with spec.md's
// documented defaults.
type Info struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
}

// defaults mirror spec.md §6's "Connection string" table.
func defaults() Info {
	return Info{
		Host: "localhost",
		Port: "5432",
	}
}

// Parse parses a semicolon-separated key=value connection string. Unknown
// keys are ignored; keys are matched case-insensitively; recognized
// aliases (host/server, database/db, username/user/uid, password/pwd) all
// map onto the same field.
func Parse(connStr string) Info {
	info := defaults()
	for _, pair := range strings.Split(connStr, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(pair[:eq]))
		val := strings.TrimSpace(pair[eq+1:])

		switch key {
		case "host", "server":
			info.Host = val
		case "port":
			info.Port = val
		case "database", "db":
			info.Database = val
		case "username", "user", "uid":
			info.Username = val
		case "password", "pwd":
			info.Password = val
		}
	}
	return info
}

// Addr returns the "host:port" form suitable for net.Dialer.DialContext.
func (i Info) Addr() string {
	return i.Host + ":" + i.Port
}
