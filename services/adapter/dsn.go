package adapter

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"dbmonitorapi/pkg/apperrors"
)

// BuildDSN builds the driver connection string for a SQL engine kind from
// the decrypted field map. Extra options with scalar values become DSN query
// parameters (e.g. sslmode, tls, connect_timeout); nested values are skipped
// since no driver here accepts structured options through the DSN.
func BuildDSN(kind string, fields map[string]string, extra map[string]interface{}) (driverName, dsn string, err error) {
	kind = Normalize(kind)
	host := fieldOr(fields, "host", "localhost")
	port := fields["port"]
	if port == "" && DefaultPort(kind) > 0 {
		port = strconv.Itoa(DefaultPort(kind))
	}
	user := fields["username"]
	pass := fields["password"]
	database := fields["database"]

	switch kind {
	case EnginePostgres:
		u := &url.URL{
			Scheme: "postgres",
			Host:   fmt.Sprintf("%s:%s", host, port),
			Path:   "/" + database,
		}
		if user != "" {
			u.User = url.UserPassword(user, pass)
		}
		u.RawQuery = extraQuery(extra).Encode()
		return "pgx", u.String(), nil

	case EngineMySQL:
		q := extraQuery(extra)
		q.Set("parseTime", "true")
		cred := ""
		if user != "" {
			cred = fmt.Sprintf("%s:%s@", user, pass)
		}
		return "mysql", fmt.Sprintf("%stcp(%s:%s)/%s?%s", cred, host, port, database, q.Encode()), nil

	case EngineMSSQL:
		u := &url.URL{
			Scheme: "sqlserver",
			Host:   host,
		}
		if port != "" {
			u.Host = fmt.Sprintf("%s:%s", host, port)
		}
		if user != "" {
			u.User = url.UserPassword(user, pass)
		}
		q := extraQuery(extra)
		if database != "" {
			q.Set("database", database)
		}
		u.RawQuery = q.Encode()
		return "sqlserver", u.String(), nil

	case EngineOracle:
		u := &url.URL{
			Scheme: "oracle",
			Host:   fmt.Sprintf("%s:%s", host, port),
			Path:   "/" + database,
		}
		if user != "" {
			u.User = url.UserPassword(user, pass)
		}
		u.RawQuery = extraQuery(extra).Encode()
		return "oracle", u.String(), nil

	case EngineSQLite:
		path := fields["filePath"]
		if path == "" {
			return "", "", apperrors.New(apperrors.Validation, "sqlite requires a file path")
		}
		return "sqlite", path, nil
	}

	return "", "", apperrors.Newf(apperrors.Validation, "no DSN builder for engine: %s", kind)
}

func fieldOr(fields map[string]string, key, def string) string {
	if v := fields[key]; v != "" {
		return v
	}
	return def
}

// extraQuery flattens scalar extra options into URL query values with a
// stable order.
func extraQuery(extra map[string]interface{}) url.Values {
	q := url.Values{}
	if len(extra) == 0 {
		return q
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := extra[k].(type) {
		case string:
			q.Set(k, v)
		case bool:
			q.Set(k, strconv.FormatBool(v))
		case float64:
			// JSON numbers decode as float64; render integers without a
			// fractional part.
			if v == float64(int64(v)) {
				q.Set(k, strconv.FormatInt(int64(v), 10))
			} else {
				q.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
			}
		case int:
			q.Set(k, strconv.Itoa(v))
		}
	}
	return q
}
