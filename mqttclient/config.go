// Package mqttclient is a concrete protocol/mqtt.Client implementation over
// paho.golang: connection settings, manual-ack publish/subscribe, and
// session-loss detection. It deliberately omits the
// reconnection state machine, retry/backoff policies, and SAT-file/X.509
// credential loading that a production client would carry — those are the
// caller's concern, not the transport adapter's.
package mqttclient

import (
	"crypto/tls"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/edgerpc/mqttrpc/internal/wallclock"
	"github.com/sosodev/duration"
)

// Settings are the resolved connection parameters for Connect.
type Settings struct {
	Hostname  string
	Port      int
	UseTLS    bool
	TLSConfig *tls.Config

	ClientID   string
	Username   string
	Password   []byte
	CleanStart bool

	KeepAlive             uint16
	SessionExpiryInterval uint32
	ConnectionTimeout     time.Duration
}

// maxClientIDLength and validClientIDCharacters mirror the MQTT v5 client
// identifier constraints: 1-23 UTF-8 bytes, alphanumeric only.
const maxClientIDLength = 23

var validClientIDCharacters = []byte(
	"0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
)

// randomClientID generates a random valid MQTT client ID. Only useful for
// testing: a random ID invalidates MQTT's session-persistence guarantees.
func randomClientID() string {
	seed := wallclock.Instance.Now().UnixNano()
	// #nosec G404
	r := rand.New(rand.NewSource(seed))

	id := make([]byte, maxClientIDLength)
	for i := range id {
		id[i] = validClientIDCharacters[r.Intn(len(validClientIDCharacters))]
	}
	return string(id)
}

// SettingsFromConnectionString parses a ";"-delimited connection string,
// e.g. "HostName=localhost;TcpPort=1883;UseTls=false;ClientId=test".
func SettingsFromConnectionString(connStr string) (*Settings, error) {
	return settingsFromMap(parseToMap(connStr, ";"))
}

// SettingsFromEnv parses settings from MQTT_-prefixed environment variables,
// e.g. MQTT_HOST_NAME, MQTT_TCP_PORT, MQTT_USE_TLS.
func SettingsFromEnv() (*Settings, error) {
	return settingsFromMap(envToMap(os.Environ()))
}

func parseToMap(connStr string, delimiter string) map[string]string {
	settings := make(map[string]string)

	connStr = strings.TrimSuffix(connStr, delimiter)
	for _, param := range strings.Split(connStr, delimiter) {
		kv := strings.SplitN(param, "=", 2)
		if len(kv) == 2 {
			k := strings.ToLower(strings.TrimSpace(kv[0]))
			v := strings.TrimSpace(kv[1])
			settings[k] = v
		}
	}
	return settings
}

func envToMap(env []string) map[string]string {
	settings := make(map[string]string)

	for _, envVar := range env {
		kv := strings.SplitN(envVar, "=", 2)
		if len(kv) != 2 || !strings.HasPrefix(kv[0], "MQTT_") {
			continue
		}
		k := strings.ToLower(
			strings.ReplaceAll(strings.TrimPrefix(kv[0], "MQTT_"), "_", ""),
		)
		settings[k] = strings.TrimSpace(kv[1])
	}
	return settings
}

// settingsFromMap builds Settings from a lowercased key-value map, applying
// the same field defaults as the connection-settings reference:
// https://github.com/Azure/iot-operations-sdks/blob/main/doc/reference/connection-settings.md
func settingsFromMap(m map[string]string) (*Settings, error) {
	s := &Settings{
		CleanStart:            true,
		KeepAlive:             60,
		SessionExpiryInterval: 3600,
		ConnectionTimeout:     30 * time.Second,
		Port:                  8883,
		UseTLS:                true,
		ClientID:              randomClientID(),
	}

	if v := m["cleanstart"]; v != "" {
		var err error
		if s.CleanStart, err = strconv.ParseBool(v); err != nil {
			return nil, &InvalidArgumentError{
				message: "unable to parse CleanStart as a boolean",
				wrapped: err,
			}
		}
	}

	if v := m["keepalive"]; v != "" {
		seconds, err := parseISODurationSeconds(v, math.MaxUint16)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "unable to parse KeepAlive as an ISO8601 duration",
				wrapped: err,
			}
		}
		s.KeepAlive = uint16(seconds)
	}

	if v := m["sessionexpiry"]; v != "" {
		seconds, err := parseISODurationSeconds(v, math.MaxUint32)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "unable to parse SessionExpiry as an ISO8601 duration",
				wrapped: err,
			}
		}
		s.SessionExpiryInterval = uint32(seconds)
	}

	if v := m["connectiontimeout"]; v != "" {
		parsed, err := duration.Parse(v)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "unable to parse ConnectionTimeout as an ISO8601 duration",
				wrapped: err,
			}
		}
		s.ConnectionTimeout = parsed.ToTimeDuration()
	}

	if v := m["clientid"]; v != "" {
		s.ClientID = v
	}
	if v := m["username"]; v != "" {
		s.Username = v
	}
	if v := m["password"]; v != "" {
		s.Password = []byte(v)
	}

	hostname := m["hostname"]
	if hostname == "" {
		return nil, &InvalidArgumentError{message: "HostName must be provided"}
	}
	s.Hostname = hostname

	if v := m["tcpport"]; v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "unable to parse TcpPort as an integer",
				wrapped: err,
			}
		}
		s.Port = port
	}

	if v := m["usetls"]; v != "" {
		useTLS, err := strconv.ParseBool(v)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "unable to parse UseTls as a boolean",
				wrapped: err,
			}
		}
		s.UseTLS = useTLS
	}

	if s.UseTLS {
		s.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return s, nil
}

func parseISODurationSeconds(v string, max float64) (float64, error) {
	parsed, err := duration.Parse(v)
	if err != nil {
		return 0, err
	}
	seconds := parsed.ToTimeDuration().Seconds()
	if seconds < 0 || seconds > max {
		return 0, &InvalidArgumentError{
			message: "duration is outside of the valid MQTT range",
		}
	}
	return seconds, nil
}
